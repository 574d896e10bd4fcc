// Package contract assembles the instruction text handed to the classification oracle.
//
// The output is a pure function of the request: the same input, previous items,
// timezone and anchor date always produce the same text.
package contract

import (
	"fmt"
	"strings"
	"time"

	"github.com/pbaille/braindump/internal/dates"
	"github.com/pbaille/braindump/internal/domain"
)

// SystemPrompt is the role line sent alongside the contract when the oracle supports one
const SystemPrompt = "You are a structured note-organizing assistant."

var categoryDescriptions = map[domain.Category]string{
	domain.CategoryDo:             "Actions to complete (tasks, to-dos, reminders). Purchase-related items never go here, they always go in Shopping List",
	domain.CategoryPlan:           "Things to research, learn, explore, or prepare",
	domain.CategoryThink:          "Ideas, reflections, concepts, creative thoughts",
	domain.CategoryShoppingList:   "Any items to buy or purchase, consumable (groceries, food) or not (furniture, electronics)",
	domain.CategoryImportantDates: "Birthdays, anniversaries, deadlines and other significant dates",
}

// Build returns the full contract text for req
func Build(req domain.ClassificationRequest) string {
	anchor := dates.Day(req.AnchorDate)
	today := anchor.Format(dates.DateLayout)
	tz := req.Timezone
	if tz == "" {
		tz = "UTC"
	}

	var sb strings.Builder

	sb.WriteString("You are organizing user notes into categories.\n")
	fmt.Fprintf(&sb, "Process only the NEW INPUT and PREVIOUS ITEMS given at the end. The current date is %s (%s, timezone %s). ", today, anchor.Weekday(), tz)
	sb.WriteString("Use it for every date calculation and never substitute your own notion of today. ")
	sb.WriteString("Do not create items from the examples in these instructions unless the user wrote them.\n\n")

	sb.WriteString("### Categories:\n")
	sb.WriteString(categorization())
	sb.WriteString("\n\n### Refinement:\n")
	sb.WriteString(refinement())
	sb.WriteString("\n\n### Deduplication:\n")
	sb.WriteString(deduplication())
	sb.WriteString("\n\n### DateTime:\n")
	sb.WriteString(dateTimeRules(anchor, tz))
	sb.WriteString("\n\n### Output Format:\n")
	sb.WriteString(outputSchema())

	sb.WriteString("\n\n**NEW INPUT:**\n")
	sb.WriteString(req.NewInputText)
	sb.WriteString("\n")

	if strings.TrimSpace(req.PreviousItemsText) != "" {
		sb.WriteString("\n**PREVIOUS ITEMS:**\n")
		sb.WriteString(req.PreviousItemsText)
		sb.WriteString("\n")
	}

	return sb.String()
}

func categorization() string {
	lines := make([]string, 0, len(domain.Categories))
	for _, c := range domain.Categories {
		lines = append(lines, fmt.Sprintf("- **%s:** %s", c.Label(), categoryDescriptions[c]))
	}
	return strings.Join(lines, "\n")
}

func refinement() string {
	return `- Make tasks clear and actionable
- Preserve explicit context (dates, times, people, places, details)
- Do not split a task into several tasks unless the user explicitly listed them separately
- Do not invent new or unrelated tasks; only categorize and clarify existing input
- Shopping or purchase items are never placed in Do
- Keep all entries logically unique

### Key Classification Rules:
1. Actionable with a specific date or time -> Do
2. Significant life event or annual occasion -> Important Dates/Events
3. Involves buying or purchasing -> Shopping List
4. Needs research or preparation -> Plan
5. An idea or concept -> Think`
}

func deduplication() string {
	return `- Compare NEW INPUT items against PREVIOUS ITEMS
- Remove exact duplicates
- Merge semantically similar items into one
- When merging, keep the most specific entry (the one with a date, time or more detail)
- When an item repeats a PREVIOUS ITEM, reuse the previous wording exactly`
}

func dateTimeRules(anchor time.Time, tz string) string {
	today := anchor.Format(dates.DateLayout)
	plus := func(days int) string { return anchor.AddDate(0, 0, days).Format(dates.DateLayout) }

	var sb strings.Builder

	fmt.Fprintf(&sb, "1. Current Reference Date: %s (%s), timezone %s.\n", today, anchor.Weekday(), tz)
	sb.WriteString("Use this as the base date for all date calculations.\n\n")

	sb.WriteString("2. Date Output Requirements:\n")
	sb.WriteString("- Output actual calculated dates, never placeholders such as YYYY or MM\n")
	fmt.Fprintf(&sb, "- Format: YYYY-MM-DD (e.g. %s)\n", today)
	fmt.Fprintf(&sb, "- Every date must be on or after %s\n", today)
	sb.WriteString("- If no date applies, use null\n\n")

	sb.WriteString("3. Basic Date Terms:\n")
	fmt.Fprintf(&sb, "- \"today\" -> %s\n", today)
	fmt.Fprintf(&sb, "- \"tomorrow\", \"day after\" or \"next day\" -> %s\n", plus(1))
	fmt.Fprintf(&sb, "- \"day after tomorrow\" -> %s\n\n", plus(2))

	sb.WriteString("4. Weekday Calculations:\n")
	sb.WriteString("a) \"this [weekday]\" or \"coming [weekday]\":\n")
	sb.WriteString("- If the weekday has not occurred yet this week, use this week's date\n")
	sb.WriteString("- If it has already occurred this week, including today, use next week's date\n")
	fmt.Fprintf(&sb, "- With the current date %s (%s):\n", today, anchor.Weekday())
	for _, wd := range weekOrder {
		res, _ := dates.Resolve(dates.KindThisWeekday, dates.Params{Weekday: wd}, anchor)
		fmt.Fprintf(&sb, "  * \"this/coming %s\" = %s\n", wd, *res.DateString())
	}
	sb.WriteString("b) \"next [weekday]\" or \"following [weekday]\":\n")
	sb.WriteString("- Always use the weekday in the following week; \"following\" means exactly the same as \"next\"\n")
	fmt.Fprintf(&sb, "- With the current date %s (%s):\n", today, anchor.Weekday())
	for _, wd := range weekOrder {
		res, _ := dates.Resolve(dates.KindNextWeekday, dates.Params{Weekday: wd}, anchor)
		fmt.Fprintf(&sb, "  * \"next/following %s\" = %s\n", wd, *res.DateString())
	}
	sb.WriteString("\n")

	nextWeek, _ := dates.Resolve(dates.KindNextWeek, dates.Params{}, anchor)
	nextMonth, _ := dates.Resolve(dates.KindNextMonth, dates.Params{}, anchor)
	nextMonth15, err := dates.Resolve(dates.KindNextMonth, dates.Params{DayOfMonth: 15}, anchor)

	sb.WriteString("5. Other \"Next/Following\" Terms:\n")
	sb.WriteString("a) \"next week\" or \"following week\" without a weekday: add 7 days and use the Monday of that week\n")
	fmt.Fprintf(&sb, "- Example: \"next week\" = %s\n", *nextWeek.DateString())
	sb.WriteString("b) \"next month\" or \"following month\": use the given day of the following month, otherwise the 1st\n")
	fmt.Fprintf(&sb, "- Example: \"next month\" = %s\n", *nextMonth.DateString())
	if err == nil {
		fmt.Fprintf(&sb, "- Example: \"next month 15th\" = %s\n", *nextMonth15.DateString())
	}
	sb.WriteString("\n")

	sb.WriteString("6. Time Processing Rules:\n")
	sb.WriteString("- Format: HH:MM, 24-hour, zero-padded\n")
	sb.WriteString("- Convert 12-hour times to 24-hour (e.g. \"3pm\" -> \"15:00\", \"9am\" -> \"09:00\")\n")
	sb.WriteString("- If no time is given, use null\n\n")

	sb.WriteString("7. Recurrence Rules:\n")
	sb.WriteString("- daily: occurs every day\n")
	sb.WriteString("- weekly: occurs every week on the same day\n")
	sb.WriteString("- monthly: occurs every month on the same date\n")
	sb.WriteString("- yearly: occurs every year on the same date\n")
	sb.WriteString("- null: one-time; any other value is treated as null\n\n")

	sb.WriteString("8. Keywords:\n")
	sb.WriteString("- \"this/coming\" is this week's occurrence, or next week's if it already passed\n")
	sb.WriteString("- \"next/following\" is always the following week's occurrence\n")
	fmt.Fprintf(&sb, "- The current date is always %s; never take a date from the examples as the current date", today)

	return sb.String()
}

var weekOrder = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
	time.Friday, time.Saturday, time.Sunday,
}

func outputSchema() string {
	const item = `{"item": string, "recurrence": "daily"|"weekly"|"monthly"|"yearly"|null, "date": "YYYY-MM-DD"|null, "time": "HH:MM"|null, "completed": boolean}`

	var sb strings.Builder
	sb.WriteString("Return ONLY this JSON object, optionally inside a ```json fenced block:\n")
	sb.WriteString("```json\n{\n")
	for i, c := range domain.Categories {
		fmt.Fprintf(&sb, "  %q: [%s]", c.Label(), item)
		if i < len(domain.Categories)-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("}\n```")
	return sb.String()
}

// PreviousItemsText joins the content of open items the way the contract expects
func PreviousItemsText(items []domain.OrganizedItem) string {
	contents := make([]string, 0, len(items))
	for _, it := range items {
		if it.Completed {
			continue
		}
		contents = append(contents, it.Content)
	}
	return strings.Join(contents, ", ")
}

// NewInputText concatenates pending fragment contents, one per line
func NewInputText(fragments []domain.RawFragment) string {
	contents := make([]string, 0, len(fragments))
	for _, f := range fragments {
		if c := strings.TrimSpace(f.Content); c != "" {
			contents = append(contents, c)
		}
	}
	return strings.Join(contents, "\n")
}
