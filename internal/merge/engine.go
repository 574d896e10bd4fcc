// Package merge reconciles freshly classified items against the owner's open items.
//
// Identity is the normalized content string (see Key). An incoming item whose key is
// unknown becomes a new row; a known key whose stored item lacks a date or time is
// enriched in place; a known key that is already fully scheduled is a duplicate and
// produces nothing. Enrichment never clears a field.
package merge

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pbaille/braindump/internal/dates"
	"github.com/pbaille/braindump/internal/domain"
)

// Outcome is what Merge did with one incoming item
type Outcome int

const (
	Inserted Outcome = iota
	Enriched
	Duplicate
	Skipped
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Enriched:
		return "enriched"
	case Duplicate:
		return "duplicate"
	default:
		return "skipped"
	}
}

// Batch is the set of writes a merge pass produced
type Batch struct {
	// Inserts are new rows, in emit order
	Inserts []domain.OrganizedItem
	// Enriched are previously stored rows whose date or time was filled in
	Enriched []domain.OrganizedItem
	// Duplicates lists the content of incoming items that changed nothing
	Duplicates []string
}

// Items returns inserts followed by enriched rows
func (b Batch) Items() []domain.OrganizedItem {
	out := make([]domain.OrganizedItem, 0, len(b.Inserts)+len(b.Enriched))
	out = append(out, b.Inserts...)
	return append(out, b.Enriched...)
}

// Empty reports whether the batch writes nothing
func (b Batch) Empty() bool {
	return len(b.Inserts) == 0 && len(b.Enriched) == 0
}

// Options configures an Engine
type Options struct {
	OwnerID string
	// SourceFragmentID is recorded on every inserted item and feeds its replay key
	SourceFragmentID *string
	Logger           *zap.Logger
	// Now and NewID default to time.Now and uuid.NewString
	Now   func() time.Time
	NewID func() string
}

type entry struct {
	item   *domain.OrganizedItem
	stored bool
}

// Engine holds the identity map for one pass. It is safe for concurrent use; all
// access to the map is serialized.
type Engine struct {
	mu       sync.Mutex
	opts     Options
	logger   *zap.Logger
	index    map[string]*entry
	inserts  []*domain.OrganizedItem
	enriched []*domain.OrganizedItem
	touched  map[string]bool
	dups     []string
}

// New seeds an Engine from the owner's currently open items. Completed items are
// ignored; the open slice is copied, never mutated.
func New(opts Options, open []domain.OrganizedItem) *Engine {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}

	e := &Engine{
		opts:    opts,
		logger:  opts.Logger,
		index:   make(map[string]*entry, len(open)),
		touched: make(map[string]bool),
	}
	for i := range open {
		if open[i].Completed {
			continue
		}
		key := Key(open[i].Content)
		if _, exists := e.index[key]; exists {
			continue
		}
		it := open[i]
		e.index[key] = &entry{item: &it, stored: true}
	}
	return e
}

// MergeAll merges every category of c in taxonomy order and returns the resulting batch
func (e *Engine) MergeAll(c domain.Categorized) Batch {
	for _, cat := range domain.Categories {
		for _, item := range *c.List(cat) {
			e.Merge(cat, item)
		}
	}
	return e.Batch()
}

// Merge reconciles a single validated item
func (e *Engine) Merge(cat domain.Category, item domain.CategoryItem) Outcome {
	content := strings.TrimSpace(item.Content())
	if content == "" || !cat.Valid() {
		e.logger.Warn("skipping unusable item", zap.String("category", string(cat)))
		return Skipped
	}
	key := Key(content)

	e.mu.Lock()
	defer e.mu.Unlock()

	existing, ok := e.index[key]
	if !ok {
		it := e.newItem(cat, content, key, item)
		e.index[key] = &entry{item: it}
		e.inserts = append(e.inserts, it)
		return Inserted
	}

	if existing.item.Scheduled() || !e.enrich(existing.item, item) {
		e.logger.Warn("duplicate item skipped", zap.String("content", content))
		e.dups = append(e.dups, content)
		return Duplicate
	}

	if existing.stored && !e.touched[existing.item.ID] {
		e.touched[existing.item.ID] = true
		e.enriched = append(e.enriched, existing.item)
	}
	e.logger.Info("enriched existing item",
		zap.String("content", existing.item.Content),
		zap.Bool("stored", existing.stored))
	return Enriched
}

// enrich fills date and time from item; it reports whether anything changed
func (e *Engine) enrich(dst *domain.OrganizedItem, item domain.CategoryItem) bool {
	changed := false
	if item.Date != nil && (dst.Date == nil || *dst.Date != *item.Date) {
		d := *item.Date
		dst.Date = &d
		dst.DayOfWeek = weekday(dst.Date)
		changed = true
	}
	if item.Time != nil && (dst.Time == nil || *dst.Time != *item.Time) {
		tm := *item.Time
		dst.Time = &tm
		changed = true
	}
	if changed {
		dst.UpdatedAt = e.opts.Now()
	}
	return changed
}

func (e *Engine) newItem(cat domain.Category, content, key string, item domain.CategoryItem) *domain.OrganizedItem {
	now := e.opts.Now()
	it := &domain.OrganizedItem{
		ID:               e.opts.NewID(),
		OwnerID:          e.opts.OwnerID,
		SourceFragmentID: e.opts.SourceFragmentID,
		Category:         cat,
		Content:          content,
		Completed:        false,
		ReplayKey:        ReplayKey(e.opts.OwnerID, e.opts.SourceFragmentID, key),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if item.Recurrence != nil {
		it.Recurrence = domain.ParseRecurrence(*item.Recurrence)
	}
	if item.Date != nil {
		d := *item.Date
		it.Date = &d
		it.DayOfWeek = weekday(it.Date)
	}
	if item.Time != nil {
		tm := *item.Time
		it.Time = &tm
	}
	return it
}

// Batch snapshots the writes accumulated so far
func (e *Engine) Batch() Batch {
	e.mu.Lock()
	defer e.mu.Unlock()

	b := Batch{
		Inserts:    make([]domain.OrganizedItem, 0, len(e.inserts)),
		Enriched:   make([]domain.OrganizedItem, 0, len(e.enriched)),
		Duplicates: append([]string(nil), e.dups...),
	}
	for _, it := range e.inserts {
		b.Inserts = append(b.Inserts, *it)
	}
	for _, it := range e.enriched {
		b.Enriched = append(b.Enriched, *it)
	}
	return b
}

func weekday(date *string) *string {
	if date == nil {
		return nil
	}
	name, ok := dates.Weekday(*date)
	if !ok {
		return nil
	}
	return &name
}
