package domain

import (
	"strings"
	"time"
)

// Category is one of the five fixed buckets an organized item can live in
type Category string

const (
	CategoryDo             Category = "do"
	CategoryPlan           Category = "plan"
	CategoryThink          Category = "think"
	CategoryShoppingList   Category = "shopping_list"
	CategoryImportantDates Category = "important_dates_events"
)

// Categories lists the taxonomy in processing order
var Categories = []Category{
	CategoryDo,
	CategoryPlan,
	CategoryThink,
	CategoryShoppingList,
	CategoryImportantDates,
}

var categoryLabels = map[Category]string{
	CategoryDo:             "Do",
	CategoryPlan:           "Plan",
	CategoryThink:          "Think",
	CategoryShoppingList:   "Shopping List",
	CategoryImportantDates: "Important Dates/Events",
}

// Label returns the display name, which is also the key used in oracle output
func (c Category) Label() string {
	return categoryLabels[c]
}

// Valid reports whether c belongs to the fixed taxonomy
func (c Category) Valid() bool {
	_, ok := categoryLabels[c]
	return ok
}

// ParseCategory accepts either the stored code ("shopping_list") or the label ("Shopping List")
func ParseCategory(s string) (Category, bool) {
	s = strings.TrimSpace(s)
	for c, label := range categoryLabels {
		if strings.EqualFold(s, string(c)) || strings.EqualFold(s, label) {
			return c, true
		}
	}
	return "", false
}

// Recurrence is the closed recurrence vocabulary. The empty value means one-time.
type Recurrence string

const (
	RecurNone    Recurrence = ""
	RecurDaily   Recurrence = "daily"
	RecurWeekly  Recurrence = "weekly"
	RecurMonthly Recurrence = "monthly"
	RecurYearly  Recurrence = "yearly"
)

// ParseRecurrence maps s onto the vocabulary; anything unrecognized is one-time
func ParseRecurrence(s string) Recurrence {
	switch r := Recurrence(strings.ToLower(strings.TrimSpace(s))); r {
	case RecurDaily, RecurWeekly, RecurMonthly, RecurYearly:
		return r
	}
	return RecurNone
}

// RawFragment is a piece of freeform text captured for an owner and not yet organized
type RawFragment struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ClassificationRequest carries everything one organize pass feeds the contract builder
type ClassificationRequest struct {
	NewInputText      string
	PreviousItemsText string
	Timezone          string
	AnchorDate        time.Time
}

// CategoryItem is a single item as produced by the classification oracle
type CategoryItem struct {
	Item       string  `json:"item"`
	Title      string  `json:"title,omitempty"`
	Recurrence *string `json:"recurrence"`
	Date       *string `json:"date"`
	Time       *string `json:"time"`
	Completed  bool    `json:"completed"`
}

// Content returns the identity text of the item, falling back to the title
func (c CategoryItem) Content() string {
	if strings.TrimSpace(c.Item) != "" {
		return c.Item
	}
	return c.Title
}

// Categorized is the oracle's output object keyed by category label
type Categorized struct {
	Do                   []CategoryItem `json:"Do"`
	Plan                 []CategoryItem `json:"Plan"`
	Think                []CategoryItem `json:"Think"`
	ShoppingList         []CategoryItem `json:"Shopping List"`
	ImportantDatesEvents []CategoryItem `json:"Important Dates/Events"`
}

// NewCategorized returns a Categorized with every list non-nil, so it encodes as [] not null
func NewCategorized() Categorized {
	return Categorized{
		Do:                   []CategoryItem{},
		Plan:                 []CategoryItem{},
		Think:                []CategoryItem{},
		ShoppingList:         []CategoryItem{},
		ImportantDatesEvents: []CategoryItem{},
	}
}

// List returns a pointer to the list backing category c
func (c *Categorized) List(cat Category) *[]CategoryItem {
	switch cat {
	case CategoryDo:
		return &c.Do
	case CategoryPlan:
		return &c.Plan
	case CategoryThink:
		return &c.Think
	case CategoryShoppingList:
		return &c.ShoppingList
	case CategoryImportantDates:
		return &c.ImportantDatesEvents
	}
	return nil
}

// Add appends item to category cat
func (c *Categorized) Add(cat Category, item CategoryItem) {
	if l := c.List(cat); l != nil {
		*l = append(*l, item)
	}
}

// Len counts items across all categories
func (c *Categorized) Len() int {
	n := 0
	for _, cat := range Categories {
		n += len(*c.List(cat))
	}
	return n
}

// OrganizedItem is a stored, categorized action item
type OrganizedItem struct {
	ID               string     `json:"id"`
	OwnerID          string     `json:"owner_id"`
	SourceFragmentID *string    `json:"source_fragment_id,omitempty"`
	Category         Category   `json:"category"`
	Content          string     `json:"content"`
	Recurrence       Recurrence `json:"recurrence,omitempty"`
	Date             *string    `json:"date"`
	DayOfWeek        *string    `json:"day_of_week"`
	Time             *string    `json:"time"`
	Completed        bool       `json:"completed"`
	ReplayKey        string     `json:"replay_key"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Scheduled reports whether both date and time are known
func (o OrganizedItem) Scheduled() bool {
	return o.Date != nil && o.Time != nil
}

// Group buckets items by category, preserving their order within each bucket
func Group(items []OrganizedItem) map[Category][]OrganizedItem {
	out := make(map[Category][]OrganizedItem, len(Categories))
	for _, it := range items {
		out[it.Category] = append(out[it.Category], it)
	}
	return out
}
