package pipeline

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pbaille/braindump/internal/contract"
	"github.com/pbaille/braindump/internal/domain"
)

// FragmentStore is the raw fragment boundary the pipeline reads from and purges
type FragmentStore interface {
	PendingFragments(ctx context.Context, ownerID string) ([]domain.RawFragment, error)
	PurgeFragments(ctx context.Context, ownerID string, ids []string) error
}

// OrganizedStore is the organized item boundary
type OrganizedStore interface {
	OpenItems(ctx context.Context, ownerID string) ([]domain.OrganizedItem, error)
	// InsertOrganized commits items atomically and rewrites each items[i].ID to the
	// id of the stored row
	InsertOrganized(ctx context.Context, items []domain.OrganizedItem) error
}

// ArchiveStore receives append-only copies of committed items
type ArchiveStore interface {
	Archive(ctx context.Context, items []domain.OrganizedItem) error
}

// passContext is everything one pass reads before calling the oracle
type passContext struct {
	fragments []domain.RawFragment
	open      []domain.OrganizedItem
	request   domain.ClassificationRequest
}

func (p *passContext) fragmentIDs() []string {
	ids := make([]string, len(p.fragments))
	for i, f := range p.fragments {
		ids[i] = f.ID
	}
	return ids
}

// assemble reads pending fragments and open items concurrently and builds the
// classification request
func (o *Organizer) assemble(ctx context.Context, ownerID, tz string, anchor time.Time) (*passContext, error) {
	pc := &passContext{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		frags, err := o.fragments.PendingFragments(gctx, ownerID)
		if err != nil {
			return fmt.Errorf("fetch pending fragments: %w", err)
		}
		pc.fragments = frags
		return nil
	})
	g.Go(func() error {
		open, err := o.organized.OpenItems(gctx, ownerID)
		if err != nil {
			return fmt.Errorf("fetch open items: %w", err)
		}
		pc.open = open
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(pc.fragments) == 0 {
		return nil, ErrInputEmpty
	}

	pc.request = domain.ClassificationRequest{
		NewInputText:      contract.NewInputText(pc.fragments),
		PreviousItemsText: contract.PreviousItemsText(pc.open),
		Timezone:          tz,
		AnchorDate:        anchor,
	}
	return pc, nil
}
