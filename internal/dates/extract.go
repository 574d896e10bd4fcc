package dates

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	fullWeekday = `(sunday|monday|tuesday|wednesday|thursday|friday|saturday)`
	anyWeekday  = `(sunday|monday|tuesday|wednesday|thursday|friday|saturday|sun|mon|tues|tue|wed|thurs|thur|thu|fri|sat)`
)

// Match is a relative-date phrase found in free text
type Match struct {
	Kind   Kind
	Params Params
	Phrase string
}

type phrasePattern struct {
	kind Kind
	re   *regexp.Regexp
}

// Patterns are tried in order; more specific phrases come first so that
// "day after tomorrow" is not read as "tomorrow".
var phrasePatterns = []phrasePattern{
	{KindDayAfterTomorrow, regexp.MustCompile(`\bday after tomorrow\b`)},
	{KindNextMonth, regexp.MustCompile(`\b(?:next|following) month(?:\s+(?:on\s+)?(?:the\s+)?(\d{1,2})(?:st|nd|rd|th)?\b)?`)},
	{KindNextWeekday, regexp.MustCompile(`\b(?:next|following)\s+` + anyWeekday + `\b`)},
	{KindNextWeek, regexp.MustCompile(`\b(?:next|following) week\b`)},
	{KindThisWeekday, regexp.MustCompile(`\b(?:this coming|this|coming)\s+` + anyWeekday + `\b`)},
	{KindTomorrow, regexp.MustCompile(`\b(?:tomorrow|tmrw|next day|day after)\b`)},
	{KindToday, regexp.MustCompile(`\b(?:today|tonight|this morning|this afternoon|this evening)\b`)},
	{KindThisWeekday, regexp.MustCompile(`\b` + fullWeekday + `s?\b`)},
}

var (
	meridiemRe = regexp.MustCompile(`(?:^|[^\d:])(\d{1,2}(?:[:.][0-5]\d)?\s?(?:am|pm|a\.m\.|p\.m\.))(?:[^a-z]|$)`)
	hhmmRe     = regexp.MustCompile(`\b((?:[01]?\d|2[0-3]):[0-5]\d)\b`)
	namedRe    = regexp.MustCompile(`\b(noon|midday|midnight)\b`)

	recurrencePatterns = []struct {
		word string
		re   *regexp.Regexp
	}{
		{"daily", regexp.MustCompile(`\b(?:every ?day|each day|daily)\b`)},
		{"weekly", regexp.MustCompile(`\b(?:every week|each week|weekly|every ` + fullWeekday + `)\b`)},
		{"monthly", regexp.MustCompile(`\b(?:every month|each month|monthly)\b`)},
		{"yearly", regexp.MustCompile(`\b(?:every year|each year|yearly|annually)\b`)},
	}
)

// FindPhrase locates the first relative-date phrase in text by pattern priority
func FindPhrase(text string) (Match, bool) {
	lower := strings.ToLower(text)
	for _, p := range phrasePatterns {
		m := p.re.FindStringSubmatch(lower)
		if m == nil {
			continue
		}
		match := Match{Kind: p.kind, Phrase: m[0]}
		switch p.kind {
		case KindThisWeekday, KindNextWeekday:
			wd, ok := ParseWeekday(m[1])
			if !ok {
				continue
			}
			match.Params.Weekday = wd
		case KindNextMonth:
			if len(m) > 1 && m[1] != "" {
				match.Params.DayOfMonth, _ = strconv.Atoi(m[1])
			}
		}
		return match, true
	}
	return Match{}, false
}

// FindClock returns the first clock expression in text
func FindClock(text string) string {
	lower := strings.ToLower(text)
	if m := meridiemRe.FindStringSubmatch(lower); m != nil {
		return m[1]
	}
	if m := hhmmRe.FindStringSubmatch(lower); m != nil {
		return m[1]
	}
	if m := namedRe.FindStringSubmatch(lower); m != nil {
		return m[1]
	}
	return ""
}

// FindRecurrence returns the first recurrence keyword in text
func FindRecurrence(text string) string {
	lower := strings.ToLower(text)
	for _, r := range recurrencePatterns {
		if r.re.MatchString(lower) {
			return r.word
		}
	}
	return ""
}

const monthName = `(january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sept|sep|oct|nov|dec)`

var (
	isoDateRe   = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)
	monthDayRe  = regexp.MustCompile(`\b` + monthName + `\.?\s+(\d{1,2})(?:st|nd|rd|th)?\b`)
	dayMonthRe  = regexp.MustCompile(`\b(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?` + monthName + `\b`)
	monthByName = map[string]time.Month{
		"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
		"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
		"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
	}
)

// FindAbsolute looks for an explicit calendar date ("2025-03-15", "March 15",
// "15th of March") and returns its next occurrence on or after anchor.
func FindAbsolute(text string, anchor time.Time) (time.Time, bool) {
	anchor = Day(anchor)
	lower := strings.ToLower(text)

	if m := isoDateRe.FindStringSubmatch(lower); m != nil {
		if t, err := ParseDate(m[1]); err == nil && !t.Before(anchor) {
			return t, true
		}
		return time.Time{}, false
	}

	var month time.Month
	var day int
	if m := monthDayRe.FindStringSubmatch(lower); m != nil {
		month = monthByName[m[1][:3]]
		day, _ = strconv.Atoi(m[2])
	} else if m := dayMonthRe.FindStringSubmatch(lower); m != nil {
		day, _ = strconv.Atoi(m[1])
		month = monthByName[m[2][:3]]
	} else {
		return time.Time{}, false
	}
	return NextOccurrence(month, day, anchor)
}

// NextOccurrence returns the first month/day on or after anchor, looking at most one
// year ahead so that Feb 29 resolves in a leap year only when one is that close.
func NextOccurrence(month time.Month, day int, anchor time.Time) (time.Time, bool) {
	anchor = Day(anchor)
	for _, year := range []int{anchor.Year(), anchor.Year() + 1} {
		t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
		if t.Month() != month || t.Day() != day {
			continue
		}
		if !t.Before(anchor) {
			return t, true
		}
	}
	return time.Time{}, false
}

// Extract scans free text for a date phrase, a clock time and a recurrence keyword and
// resolves them against anchor. Without a relative phrase an explicit calendar date is
// used. A phrase that cannot be resolved yields no date.
func Extract(text string, anchor time.Time) (Resolution, Match) {
	match, _ := FindPhrase(text)
	match.Params.Clock = FindClock(text)
	match.Params.Recurrence = FindRecurrence(text)

	res, err := Resolve(match.Kind, match.Params, anchor)
	if err != nil {
		res, _ = Resolve(KindNone, match.Params, anchor)
	}
	if match.Kind == KindNone {
		if t, ok := FindAbsolute(text, anchor); ok {
			res.Date = &t
		}
	}
	return res, match
}
