// Package pipeline runs organization passes: it turns an owner's pending fragments
// into categorized, deduplicated, date-resolved items and commits them.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pbaille/braindump/internal/classifier"
	"github.com/pbaille/braindump/internal/contract"
	"github.com/pbaille/braindump/internal/dates"
	"github.com/pbaille/braindump/internal/domain"
	"github.com/pbaille/braindump/internal/merge"
	"github.com/pbaille/braindump/internal/response"
)

// DefaultOracleTimeout bounds one oracle call when Options.OracleTimeout is unset
const DefaultOracleTimeout = 60 * time.Second

// Deps are the collaborators of an Organizer
type Deps struct {
	Fragments FragmentStore
	Organized OrganizedStore
	Archive   ArchiveStore
	Oracle    classifier.Oracle
	Logger    *zap.Logger
}

// Options tune an Organizer
type Options struct {
	OracleTimeout time.Duration
	// DefaultTimezone applies when a request names none
	DefaultTimezone string
	// Now and NewID are passed through to the merge engine
	Now   func() time.Time
	NewID func() string
}

// Request identifies one pass
type Request struct {
	OwnerID  string
	Timezone string
	// AnchorDate overrides "today" in Timezone; only the calendar day is used
	AnchorDate time.Time
}

// Result reports what a pass committed
type Result struct {
	OwnerID    string
	Timezone   string
	AnchorDate time.Time
	// Classified is the validated oracle reply before merging
	Classified domain.Categorized
	Inserted   []domain.OrganizedItem
	Enriched   []domain.OrganizedItem
	Duplicates []string
	// Consumed lists the fragment ids the pass read and purged
	Consumed []string
	// NulledFields counts date and time values dropped by validation
	NulledFields int
	// ArchiveErr is set when the archive copy failed; the pass still succeeded
	ArchiveErr error
}

// Items returns inserted followed by enriched items
func (r *Result) Items() []domain.OrganizedItem {
	out := make([]domain.OrganizedItem, 0, len(r.Inserted)+len(r.Enriched))
	out = append(out, r.Inserted...)
	return append(out, r.Enriched...)
}

// ByCategory groups Items by category. Every category is present, possibly empty.
func (r *Result) ByCategory() map[domain.Category][]domain.OrganizedItem {
	groups := domain.Group(r.Items())
	for _, cat := range domain.Categories {
		if groups[cat] == nil {
			groups[cat] = []domain.OrganizedItem{}
		}
	}
	return groups
}

// Organizer runs passes. One Organizer may serve many owners concurrently; each pass
// gets its own merge engine.
type Organizer struct {
	fragments FragmentStore
	organized OrganizedStore
	archive   ArchiveStore
	oracle    classifier.Oracle
	logger    *zap.Logger
	opts      Options
}

// New creates an Organizer
func New(d Deps, opts Options) *Organizer {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if opts.OracleTimeout <= 0 {
		opts.OracleTimeout = DefaultOracleTimeout
	}
	if opts.DefaultTimezone == "" {
		opts.DefaultTimezone = "UTC"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Organizer{
		fragments: d.Fragments,
		organized: d.Organized,
		archive:   d.Archive,
		oracle:    d.Oracle,
		logger:    d.Logger,
		opts:      opts,
	}
}

// location resolves the request timezone, falling back to UTC
func (o *Organizer) location(tz string) (string, *time.Location) {
	if tz == "" {
		tz = o.opts.DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		o.logger.Warn("unknown timezone, using UTC", zap.String("timezone", tz), zap.Error(err))
		return "UTC", time.UTC
	}
	return tz, loc
}

func (o *Organizer) anchor(req Request, loc *time.Location) time.Time {
	if !req.AnchorDate.IsZero() {
		return dates.Day(req.AnchorDate)
	}
	return dates.Today(o.opts.Now(), loc)
}

// Contract assembles the pass context and returns the contract text without calling
// the oracle or writing anything
func (o *Organizer) Contract(ctx context.Context, req Request) (string, error) {
	tz, loc := o.location(req.Timezone)
	pc, err := o.assemble(ctx, req.OwnerID, tz, o.anchor(req, loc))
	if err != nil {
		return "", err
	}
	return contract.Build(pc.request), nil
}

// Organize runs one pass for req.OwnerID.
//
// Nothing is written until the oracle reply has been parsed and merged. Once the first
// write starts the pass runs to completion even if ctx is cancelled: items are
// committed in one transaction, then copied to the archive, then the consumed
// fragments are purged. A purge failure is returned as *PurgeError alongside the
// result.
func (o *Organizer) Organize(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	tz, loc := o.location(req.Timezone)
	anchor := o.anchor(req, loc)
	log := o.logger.With(zap.String("owner", req.OwnerID), zap.String("anchor", anchor.Format(dates.DateLayout)))

	pc, err := o.assemble(ctx, req.OwnerID, tz, anchor)
	if err != nil {
		return nil, err
	}
	log.Info("assembled pass",
		zap.Int("fragments", len(pc.fragments)),
		zap.Int("open_items", len(pc.open)))

	reply, err := o.classify(ctx, pc)
	if err != nil {
		return nil, err
	}

	classified, nulled, err := response.NewValidator(anchor, log).ParseAndValidate(reply)
	if err != nil {
		log.Warn("unparseable oracle reply", zap.Int("bytes", len(reply)), zap.Error(err))
		return nil, fmt.Errorf("parse oracle reply: %w", err)
	}
	log.Debug("oracle reply accepted", zap.Int("classified", classified.Len()))

	src := pc.fragments[0].ID
	engine := merge.New(merge.Options{
		OwnerID:          req.OwnerID,
		SourceFragmentID: &src,
		Logger:           log,
		Now:              o.opts.Now,
		NewID:            o.opts.NewID,
	}, pc.open)
	batch := engine.MergeAll(classified)

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("organize: %w", err)
	}

	res := &Result{
		OwnerID:      req.OwnerID,
		Timezone:     tz,
		AnchorDate:   anchor,
		Classified:   classified,
		Inserted:     batch.Inserts,
		Enriched:     batch.Enriched,
		Duplicates:   batch.Duplicates,
		Consumed:     pc.fragmentIDs(),
		NulledFields: nulled,
	}

	if err := o.commit(context.WithoutCancel(ctx), log, res, batch); err != nil {
		return res, err
	}

	log.Info("pass complete",
		zap.Int("inserted", len(res.Inserted)),
		zap.Int("enriched", len(res.Enriched)),
		zap.Int("duplicates", len(res.Duplicates)),
		zap.Duration("elapsed", time.Since(start)))
	return res, nil
}

func (o *Organizer) classify(ctx context.Context, pc *passContext) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.opts.OracleTimeout)
	defer cancel()

	start := time.Now()
	reply, err := o.oracle.Classify(callCtx, classifier.Request{
		Contract: contract.Build(pc.request),
		Source:   pc.request,
	})
	elapsed := time.Since(start)
	if err == nil {
		o.logger.Debug("oracle replied", zap.Duration("elapsed", elapsed), zap.Int("bytes", len(reply)))
		return reply, nil
	}

	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return "", fmt.Errorf("organize: %w", ctx.Err())
	case classifier.IsTimeout(err):
		o.logger.Warn("oracle timed out", zap.Duration("elapsed", elapsed), zap.Error(err))
		return "", fmt.Errorf("%w after %s: %w", ErrOracleTimeout, elapsed.Round(time.Millisecond), err)
	}
	o.logger.Warn("oracle failed", zap.Duration("elapsed", elapsed), zap.Error(err))
	return "", fmt.Errorf("%w: %w", ErrOracleUnavailable, err)
}

// commit writes the batch, copies it to the archive and purges consumed fragments
func (o *Organizer) commit(ctx context.Context, log *zap.Logger, res *Result, batch merge.Batch) error {
	items := batch.Items()
	if len(items) > 0 {
		if err := o.organized.InsertOrganized(ctx, items); err != nil {
			log.Error("commit failed", zap.Int("items", len(items)), zap.Error(err))
			return fmt.Errorf("%w: %w", ErrPersistenceWrite, err)
		}
		// a replayed insert lands on the row written by the earlier pass
		for i := range res.Inserted {
			res.Inserted[i].ID = items[i].ID
		}

		if o.archive != nil {
			if err := o.archive.Archive(ctx, items); err != nil {
				log.Error("archive copy failed", zap.Error(err))
				res.ArchiveErr = fmt.Errorf("%w: %w", ErrArchivalWrite, err)
			}
		}
	}

	if err := o.fragments.PurgeFragments(ctx, res.OwnerID, res.Consumed); err != nil {
		committed := make([]string, len(items))
		for i, it := range items {
			committed[i] = it.ID
		}
		log.Error("purge failed after commit", zap.Strings("committed", committed), zap.Error(err))
		return &PurgeError{OwnerID: res.OwnerID, Committed: committed, Err: err}
	}
	return nil
}
