// Package dates implements the relative-date rules used to build the oracle contract
// and to resolve phrases locally. Every function takes an explicit anchor date; nothing
// here reads the clock.
package dates

import (
	"fmt"
	"strings"
	"time"

	"github.com/pbaille/braindump/internal/domain"
)

const (
	// DateLayout is the canonical calendar date format (YYYY-MM-DD)
	DateLayout = "2006-01-02"
	// TimeLayout is the canonical 24-hour clock format (HH:MM)
	TimeLayout = "15:04"
)

// Kind identifies a relative-date phrase family
type Kind int

const (
	KindNone Kind = iota
	KindToday
	KindTomorrow
	KindDayAfterTomorrow
	KindThisWeekday
	KindNextWeekday
	KindNextWeek
	KindNextMonth
)

var kindNames = map[Kind]string{
	KindNone:             "none",
	KindToday:            "today",
	KindTomorrow:         "tomorrow",
	KindDayAfterTomorrow: "day after tomorrow",
	KindThisWeekday:      "this weekday",
	KindNextWeekday:      "next weekday",
	KindNextWeek:         "next week",
	KindNextMonth:        "next month",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Params refines a phrase kind
type Params struct {
	// Weekday is the target weekday for KindThisWeekday and KindNextWeekday
	Weekday time.Weekday
	// DayOfMonth is the optional day for KindNextMonth; zero means the 1st
	DayOfMonth int
	// Clock is free clock text such as "3pm", "9:30 am" or "14:00"
	Clock string
	// Recurrence is free recurrence text such as "weekly" or "every day"
	Recurrence string
}

// Resolution is the concrete outcome of a phrase
type Resolution struct {
	Date       *time.Time
	Time       *string
	Recurrence domain.Recurrence
}

// DateString returns the resolved date in DateLayout, or nil
func (r Resolution) DateString() *string {
	if r.Date == nil {
		return nil
	}
	s := r.Date.Format(DateLayout)
	return &s
}

// Day truncates t to its calendar date in t's own location and re-expresses it as
// midnight UTC, so that date arithmetic never crosses DST boundaries.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today returns the calendar date of now in loc
func Today(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return Day(now.In(loc))
}

// ParseDate parses a strict YYYY-MM-DD calendar date
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// Weekday returns the long-form weekday name for a YYYY-MM-DD date
func Weekday(date string) (string, bool) {
	t, err := ParseDate(date)
	if err != nil {
		return "", false
	}
	return t.Weekday().String(), true
}

// Resolve maps a phrase kind and its parameters to a concrete date, time and recurrence
// relative to anchor. The resulting date is never before anchor.
func Resolve(kind Kind, p Params, anchor time.Time) (Resolution, error) {
	anchor = Day(anchor)

	res := Resolution{Recurrence: domain.ParseRecurrence(normalizeRecurrence(p.Recurrence))}
	if clock, ok := ParseClock(p.Clock); ok {
		res.Time = &clock
	}

	var date time.Time
	switch kind {
	case KindNone:
		return res, nil
	case KindToday:
		date = anchor
	case KindTomorrow:
		date = anchor.AddDate(0, 0, 1)
	case KindDayAfterTomorrow:
		date = anchor.AddDate(0, 0, 2)
	case KindThisWeekday:
		date = thisWeekday(anchor, p.Weekday)
	case KindNextWeekday:
		date = nextWeekday(anchor, p.Weekday)
	case KindNextWeek:
		date = mondayOf(anchor.AddDate(0, 0, 7))
	case KindNextMonth:
		d, err := nextMonth(anchor, p.DayOfMonth)
		if err != nil {
			return Resolution{}, err
		}
		date = d
	default:
		return Resolution{}, fmt.Errorf("unknown phrase kind %d", int(kind))
	}

	res.Date = &date
	return res, nil
}

// thisWeekday returns the next strictly-future occurrence of wd. A weekday equal to the
// anchor's counts as already passed and lands a week later.
func thisWeekday(anchor time.Time, wd time.Weekday) time.Time {
	a := int(anchor.Weekday())
	w := int(wd)
	if w > a {
		return anchor.AddDate(0, 0, w-a)
	}
	return anchor.AddDate(0, 0, 7-(a-w))
}

// nextWeekday always lands in [anchor+7, anchor+13]
func nextWeekday(anchor time.Time, wd time.Weekday) time.Time {
	offset := (int(wd) - int(anchor.Weekday()) + 7) % 7
	return anchor.AddDate(0, 0, 7+offset)
}

func mondayOf(t time.Time) time.Time {
	back := (int(t.Weekday()) + 6) % 7
	return t.AddDate(0, 0, -back)
}

func nextMonth(anchor time.Time, day int) (time.Time, error) {
	if day == 0 {
		day = 1
	}
	first := time.Date(anchor.Year(), anchor.Month()+1, 1, 0, 0, 0, 0, time.UTC)
	t := time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
	if day < 1 || t.Month() != first.Month() {
		return time.Time{}, fmt.Errorf("day %d does not exist in %s %d", day, first.Month(), first.Year())
	}
	return t, nil
}

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "tues": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

// ParseWeekday accepts full or abbreviated English weekday names
func ParseWeekday(s string) (time.Weekday, bool) {
	wd, ok := weekdayNames[strings.ToLower(strings.TrimSpace(s))]
	return wd, ok
}

func normalizeRecurrence(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "every day", "everyday", "each day", "daily":
		return "daily"
	case "every week", "each week", "weekly":
		return "weekly"
	case "every month", "each month", "monthly":
		return "monthly"
	case "every year", "each year", "yearly", "annually", "annual":
		return "yearly"
	}
	return s
}

// OnOrAfter reports whether date (YYYY-MM-DD) is a real calendar date not before anchor
func OnOrAfter(date string, anchor time.Time) bool {
	t, err := ParseDate(date)
	if err != nil {
		return false
	}
	return !t.Before(Day(anchor))
}
