package merge

import (
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbaille/braindump/internal/domain"
)

var fixedNow = time.Date(2025, 1, 13, 9, 0, 0, 0, time.UTC)

func ptr(s string) *string { return &s }

func testOptions() Options {
	n := 0
	return Options{
		OwnerID:          "owner-1",
		SourceFragmentID: ptr("frag-1"),
		Now:              func() time.Time { return fixedNow },
		NewID: func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		},
	}
}

// apply folds a batch into a store snapshot keyed by id, the way the sqlite store does
func apply(store []domain.OrganizedItem, b Batch) []domain.OrganizedItem {
	byID := make(map[string]domain.OrganizedItem, len(store))
	for _, it := range store {
		byID[it.ID] = it
	}
	for _, it := range b.Items() {
		byID[it.ID] = it
	}
	out := make([]domain.OrganizedItem, 0, len(byID))
	for _, it := range byID {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func TestEnrichExistingItemInsteadOfInserting(t *testing.T) {
	open := []domain.OrganizedItem{{
		ID: "stored-1", OwnerID: "owner-1", Category: domain.CategoryShoppingList, Content: "Buy milk",
	}}

	c := domain.NewCategorized()
	c.Add(domain.CategoryShoppingList, domain.CategoryItem{Item: "Buy milk", Date: ptr("2025-01-15")})

	b := New(testOptions(), open).MergeAll(c)

	assert.Empty(t, b.Inserts)
	require.Len(t, b.Enriched, 1)
	got := b.Enriched[0]
	assert.Equal(t, "stored-1", got.ID)
	assert.Equal(t, "2025-01-15", *got.Date)
	assert.Equal(t, "Wednesday", *got.DayOfWeek)
	assert.Nil(t, got.Time)

	after := apply(open, b)
	require.Len(t, after, 1)
	assert.Equal(t, "Buy milk", after[0].Content)
	assert.Nil(t, open[0].Date, "seed slice must not be mutated")
}

func TestVerbatimDuplicatesInOneBatch(t *testing.T) {
	c := domain.NewCategorized()
	dentist := domain.CategoryItem{Item: "Dentist tomorrow 3pm", Date: ptr("2025-01-14"), Time: ptr("15:00")}
	c.Add(domain.CategoryDo, dentist)
	c.Add(domain.CategoryDo, dentist)

	b := New(testOptions(), nil).MergeAll(c)

	require.Len(t, b.Inserts, 1)
	assert.Equal(t, "2025-01-14", *b.Inserts[0].Date)
	assert.Equal(t, "15:00", *b.Inserts[0].Time)
	assert.Equal(t, "Tuesday", *b.Inserts[0].DayOfWeek)
	assert.Equal(t, []string{"Dentist tomorrow 3pm"}, b.Duplicates)
}

func TestPendingInsertIsEnrichedByLaterDuplicate(t *testing.T) {
	c := domain.NewCategorized()
	c.Add(domain.CategoryDo, domain.CategoryItem{Item: "Call plumber"})
	c.Add(domain.CategoryPlan, domain.CategoryItem{Item: "call plumber", Time: ptr("10:00")})

	b := New(testOptions(), nil).MergeAll(c)

	require.Len(t, b.Inserts, 1)
	assert.Empty(t, b.Enriched)
	assert.Equal(t, domain.CategoryDo, b.Inserts[0].Category)
	assert.Equal(t, "10:00", *b.Inserts[0].Time)
}

func TestScheduledItemIsDuplicate(t *testing.T) {
	open := []domain.OrganizedItem{{
		ID: "stored-1", Content: "Dentist", Date: ptr("2025-01-14"), Time: ptr("15:00"),
	}}
	c := domain.NewCategorized()
	c.Add(domain.CategoryDo, domain.CategoryItem{Item: "Dentist", Date: ptr("2025-01-20"), Time: ptr("09:00")})

	e := New(testOptions(), open)
	assert.Equal(t, Duplicate, e.Merge(domain.CategoryDo, c.Do[0]))
	assert.True(t, e.Batch().Empty())
}

func TestCompletedItemsDoNotParticipate(t *testing.T) {
	open := []domain.OrganizedItem{{ID: "done", Content: "Buy milk", Completed: true}}
	e := New(testOptions(), open)

	assert.Equal(t, Inserted, e.Merge(domain.CategoryShoppingList, domain.CategoryItem{Item: "Buy milk"}))
}

func TestSkipsEmptyContent(t *testing.T) {
	e := New(testOptions(), nil)
	assert.Equal(t, Skipped, e.Merge(domain.CategoryDo, domain.CategoryItem{Item: "   "}))
	assert.Equal(t, Inserted, e.Merge(domain.CategoryThink, domain.CategoryItem{Title: "Story plot ideas"}))
	assert.Equal(t, Skipped, e.Merge(domain.Category("upcoming"), domain.CategoryItem{Item: "x"}))
}

func TestNewItemFields(t *testing.T) {
	e := New(testOptions(), nil)
	e.Merge(domain.CategoryImportantDates, domain.CategoryItem{
		Item: "  Mom's birthday ", Recurrence: ptr("yearly"), Date: ptr("2025-03-15"),
	})
	b := e.Batch()
	require.Len(t, b.Inserts, 1)

	want := domain.OrganizedItem{
		ID:               "id-1",
		OwnerID:          "owner-1",
		SourceFragmentID: ptr("frag-1"),
		Category:         domain.CategoryImportantDates,
		Content:          "Mom's birthday",
		Recurrence:       domain.RecurYearly,
		Date:             ptr("2025-03-15"),
		DayOfWeek:        ptr("Saturday"),
		ReplayKey:        ReplayKey("owner-1", ptr("frag-1"), "mom's birthday"),
		CreatedAt:        fixedNow,
		UpdatedAt:        fixedNow,
	}
	if diff := cmp.Diff(want, b.Inserts[0]); diff != "" {
		t.Errorf("new item mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	start := []domain.OrganizedItem{
		{ID: "a", Content: "Buy milk"},
		{ID: "b", Content: "Dentist", Date: ptr("2025-01-14")},
	}
	c := domain.NewCategorized()
	c.Add(domain.CategoryShoppingList, domain.CategoryItem{Item: "Buy milk", Date: ptr("2025-01-15")})
	c.Add(domain.CategoryDo, domain.CategoryItem{Item: "Dentist", Time: ptr("15:00")})
	c.Add(domain.CategoryPlan, domain.CategoryItem{Item: "Learn Spanish"})

	once := apply(start, New(testOptions(), start).MergeAll(c))

	second := New(testOptions(), once).MergeAll(c)
	assert.Empty(t, second.Inserts, "replay must not insert")
	twice := apply(once, second)

	if diff := cmp.Diff(once, twice, cmpopts.IgnoreFields(domain.OrganizedItem{}, "UpdatedAt")); diff != "" {
		t.Errorf("second pass changed the store (-once +twice):\n%s", diff)
	}
	assert.Len(t, twice, 3)
}

func TestMergeIsMonotonic(t *testing.T) {
	store := []domain.OrganizedItem{{ID: "a", Content: "Gym"}}
	batches := []domain.CategoryItem{
		{Item: "Gym", Date: ptr("2025-01-15")},
		{Item: "Gym"},
		{Item: "Gym", Time: ptr("07:00")},
		{Item: "Gym"},
		{Item: "GYM", Date: ptr("2025-01-16"), Time: ptr("08:00")},
	}

	hadDate, hadTime := false, false
	for i, item := range batches {
		c := domain.NewCategorized()
		c.Add(domain.CategoryDo, item)
		store = apply(store, New(testOptions(), store).MergeAll(c))

		require.Len(t, store, 1, "step %d", i)
		if hadDate {
			assert.NotNil(t, store[0].Date, "step %d cleared date", i)
		}
		if hadTime {
			assert.NotNil(t, store[0].Time, "step %d cleared time", i)
		}
		hadDate = hadDate || store[0].Date != nil
		hadTime = hadTime || store[0].Time != nil
	}
	// once fully scheduled, later values are ignored
	assert.Equal(t, "2025-01-15", *store[0].Date)
	assert.Equal(t, "07:00", *store[0].Time)
}

func TestConcurrentMergeKeepsOneRowPerKey(t *testing.T) {
	e := New(Options{OwnerID: "o"}, nil)

	var wg sync.WaitGroup
	for _, cat := range domain.Categories {
		wg.Add(1)
		go func(cat domain.Category) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				e.Merge(cat, domain.CategoryItem{Item: fmt.Sprintf("item %d", i%10)})
			}
		}(cat)
	}
	wg.Wait()

	assert.Len(t, e.Batch().Inserts, 10)
}

func TestKey(t *testing.T) {
	assert.Equal(t, Key("Buy milk"), Key("  buy   MILK "))
	assert.Equal(t, Key("Straße"), Key("STRASSE"))
	assert.NotEqual(t, Key("Buy milk"), Key("Buy milk."))
	assert.NotEqual(t, Key("Buy milk"), Key("Purchase milk"))
}

func TestReplayKey(t *testing.T) {
	a := ReplayKey("o", ptr("f1"), "buy milk")
	assert.Equal(t, a, ReplayKey("o", ptr("f1"), "buy milk"))
	assert.NotEqual(t, a, ReplayKey("o", ptr("f2"), "buy milk"))
	assert.NotEqual(t, a, ReplayKey("p", ptr("f1"), "buy milk"))
	assert.NotEqual(t, a, ReplayKey("o", nil, "buy milk"))
}
