package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbaille/braindump/internal/domain"
)

func ptr(s string) *string { return &s }

func openTestStore(t *testing.T, driver string) *Store {
	t.Helper()
	s, err := Open(driver, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	// strictly increasing clock so ordering by created_at is deterministic
	base := time.Date(2025, 1, 13, 8, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Millisecond)
	}
	return s
}

func forEachDriver(t *testing.T, fn func(t *testing.T, s *Store)) {
	for _, driver := range []string{DriverCGO, DriverPureGo} {
		t.Run(driver, func(t *testing.T) {
			fn(t, openTestStore(t, driver))
		})
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("postgres", filepath.Join(t.TempDir(), "x.db"))
	assert.Error(t, err)
}

func TestFragments(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s *Store) {
		ctx := context.Background()

		a, err := s.AddFragment(ctx, "alice", "Dentist tomorrow 3pm")
		require.NoError(t, err)
		b, err := s.AddFragment(ctx, "alice", "Buy milk")
		require.NoError(t, err)
		_, err = s.AddFragment(ctx, "bob", "bob's note")
		require.NoError(t, err)

		pending, err := s.PendingFragments(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, pending, 2)
		assert.Equal(t, a.ID, pending[0].ID)
		assert.Equal(t, b.ID, pending[1].ID)
		assert.False(t, pending[0].CreatedAt.IsZero())

		require.NoError(t, s.DeleteFragment(ctx, "alice", a.ID))
		assert.ErrorIs(t, s.DeleteFragment(ctx, "alice", a.ID), ErrNotFound)
		assert.ErrorIs(t, s.DeleteFragment(ctx, "bob", b.ID), ErrNotFound, "owners are isolated")
	})
}

func TestPurgeOnlyConsumedFragments(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s *Store) {
		ctx := context.Background()

		a, _ := s.AddFragment(ctx, "alice", "one")
		b, _ := s.AddFragment(ctx, "alice", "two")
		late, _ := s.AddFragment(ctx, "alice", "captured mid-pass")
		_, _ = s.AddFragment(ctx, "bob", "other owner")

		require.NoError(t, s.PurgeFragments(ctx, "alice", []string{a.ID, b.ID}))

		pending, err := s.PendingFragments(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, late.ID, pending[0].ID)

		require.NoError(t, s.PurgeFragments(ctx, "alice", nil))
		pending, _ = s.PendingFragments(ctx, "alice")
		assert.Empty(t, pending)

		bob, _ := s.PendingFragments(ctx, "bob")
		assert.Len(t, bob, 1)
	})
}

func newItem(id, content string) domain.OrganizedItem {
	return domain.OrganizedItem{
		ID:        id,
		OwnerID:   "alice",
		Category:  domain.CategoryDo,
		Content:   content,
		ReplayKey: "rk-" + id,
		CreatedAt: time.Date(2025, 1, 13, 9, 0, 0, 0, time.UTC),
	}
}

func TestInsertAndEnrichOrganized(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s *Store) {
		ctx := context.Background()

		milk := newItem("a", "Buy milk")
		milk.Category = domain.CategoryShoppingList
		milk.SourceFragmentID = ptr("frag-1")
		milk.Recurrence = domain.RecurWeekly
		dentist := newItem("b", "Dentist")
		dentist.Date = ptr("2025-01-14")
		dentist.DayOfWeek = ptr("Tuesday")
		dentist.Time = ptr("15:00")
		require.NoError(t, s.InsertOrganized(ctx, []domain.OrganizedItem{milk, dentist}))

		open, err := s.OpenItems(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, open, 2)
		assert.Equal(t, "Buy milk", open[0].Content)
		assert.Equal(t, domain.CategoryShoppingList, open[0].Category)
		assert.Equal(t, domain.RecurWeekly, open[0].Recurrence)
		assert.Equal(t, "frag-1", *open[0].SourceFragmentID)
		assert.Nil(t, open[0].Date)
		assert.Equal(t, "Tuesday", *open[1].DayOfWeek)

		// enrichment by id fills the date
		milk.Date = ptr("2025-01-15")
		milk.DayOfWeek = ptr("Wednesday")
		require.NoError(t, s.InsertOrganized(ctx, []domain.OrganizedItem{milk}))

		// a stale copy without date must not clear it
		stale := milk
		stale.Date, stale.DayOfWeek = nil, nil
		require.NoError(t, s.InsertOrganized(ctx, []domain.OrganizedItem{stale}))

		open, err = s.OpenItems(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, open, 2)
		assert.Equal(t, "2025-01-15", *open[0].Date)
		assert.Equal(t, "Wednesday", *open[0].DayOfWeek)
	})
}

func TestInsertReplayDoesNotDuplicate(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s *Store) {
		ctx := context.Background()

		first := newItem("first-id", "Learn Spanish")
		first.ReplayKey = "same-key"
		require.NoError(t, s.InsertOrganized(ctx, []domain.OrganizedItem{first}))

		retry := newItem("retry-id", "Learn Spanish")
		retry.ReplayKey = "same-key"
		retry.Time = ptr("18:00")
		require.NoError(t, s.InsertOrganized(ctx, []domain.OrganizedItem{retry}))

		all, err := s.ListOrganized(ctx, "alice", true)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, "first-id", all[0].ID)
		assert.Equal(t, "18:00", *all[0].Time)
	})
}

func TestInsertRejectsInvalidCategory(t *testing.T) {
	s := openTestStore(t, DriverCGO)
	bad := newItem("x", "x")
	bad.Category = "upcoming"
	assert.Error(t, s.InsertOrganized(context.Background(), []domain.OrganizedItem{bad}))

	all, err := s.ListOrganized(context.Background(), "alice", true)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCompletionAndFind(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		require.NoError(t, s.InsertOrganized(ctx, []domain.OrganizedItem{
			newItem("abc123", "one"), newItem("abd456", "two"),
		}))

		it, err := s.FindItem(ctx, "alice", "abc")
		require.NoError(t, err)
		assert.Equal(t, "one", it.Content)

		_, err = s.FindItem(ctx, "alice", "ab")
		assert.Error(t, err, "ambiguous prefix")
		_, err = s.FindItem(ctx, "alice", "zzz")
		assert.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, s.SetCompleted(ctx, "alice", "abc123", true))
		open, _ := s.OpenItems(ctx, "alice")
		require.Len(t, open, 1)
		assert.Equal(t, "two", open[0].Content)

		all, _ := s.ListOrganized(ctx, "alice", true)
		assert.Len(t, all, 2)

		assert.ErrorIs(t, s.SetCompleted(ctx, "bob", "abc123", false), ErrNotFound)
	})
}

func TestArchiveIsAppendOnly(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		it := newItem("a", "Buy milk")

		require.NoError(t, s.Archive(ctx, []domain.OrganizedItem{it}))
		it.Date = ptr("2025-01-15")
		require.NoError(t, s.Archive(ctx, []domain.OrganizedItem{it}))

		archived, err := s.ListArchive(ctx, "alice", 10)
		require.NoError(t, err)
		require.Len(t, archived, 2)
		assert.Equal(t, "2025-01-15", *archived[0].Date, "newest first")
		assert.Nil(t, archived[1].Date)
	})
}

func TestInsertReplayReportsStoredID(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s *Store) {
		ctx := context.Background()

		first := newItem("first-id", "Call mum")
		first.ReplayKey = "same-key"
		batch := []domain.OrganizedItem{first}
		require.NoError(t, s.InsertOrganized(ctx, batch))
		assert.Equal(t, "first-id", batch[0].ID)
		require.NoError(t, s.SetCompleted(ctx, "alice", "first-id", true))

		retry := newItem("retry-id", "Call mum")
		retry.ReplayKey = "same-key"
		fresh := newItem("fresh-id", "Water plants")
		batch = []domain.OrganizedItem{retry, fresh}
		require.NoError(t, s.InsertOrganized(ctx, batch))
		assert.Equal(t, "first-id", batch[0].ID)
		assert.Equal(t, "fresh-id", batch[1].ID)

		it, err := s.FindItem(ctx, "alice", batch[0].ID)
		require.NoError(t, err)
		assert.True(t, it.Completed)
		_, err = s.FindItem(ctx, "alice", "retry-id")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestFindItemMatchesWildcardsLiterally(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		require.NoError(t, s.InsertOrganized(ctx, []domain.OrganizedItem{newItem("only-one", "Call mum")}))

		for _, prefix := range []string{"%", "_", "o_ly", `\`} {
			_, err := s.FindItem(ctx, "alice", prefix)
			assert.ErrorIs(t, err, ErrNotFound, prefix)
		}
		for _, prefix := range []string{"", "   "} {
			_, err := s.FindItem(ctx, "alice", prefix)
			assert.Error(t, err)
			assert.NotErrorIs(t, err, ErrNotFound)
		}

		it, err := s.FindItem(ctx, "alice", "only")
		require.NoError(t, err)
		assert.Equal(t, "Call mum", it.Content)
	})
}
