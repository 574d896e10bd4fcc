// Package render draws organized items for the terminal.
package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/pbaille/braindump/internal/domain"
	"github.com/pbaille/braindump/internal/pipeline"
)

var (
	headStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#5B8DEF"))
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	whenStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B"))
	doneStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666")).Strikethrough(true)
)

// ShortID is the id prefix shown to users and accepted back by the CLI
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// When formats an item's schedule, e.g. "Tue 2025-01-14 15:00 · weekly"
func When(it domain.OrganizedItem) string {
	var parts []string
	if it.DayOfWeek != nil {
		day := *it.DayOfWeek
		if len(day) > 3 {
			day = day[:3]
		}
		parts = append(parts, day)
	}
	if it.Date != nil {
		parts = append(parts, *it.Date)
	}
	if it.Time != nil {
		parts = append(parts, *it.Time)
	}
	when := strings.Join(parts, " ")
	if it.Recurrence != domain.RecurNone {
		if when != "" {
			when += " · "
		}
		when += string(it.Recurrence)
	}
	return when
}

// Line renders one item
func Line(it domain.OrganizedItem) string {
	box := "[ ]"
	content := it.Content
	if it.Completed {
		box = "[x]"
		content = doneStyle.Render(content)
	}
	line := fmt.Sprintf("%s %s %s", dimStyle.Render(ShortID(it.ID)), box, content)
	if w := When(it); w != "" {
		line += "  " + whenStyle.Render(w)
	}
	return line
}

// Board renders items grouped by category in taxonomy order. Empty categories are
// omitted.
func Board(items []domain.OrganizedItem) string {
	if len(items) == 0 {
		return dimStyle.Render("nothing organized yet")
	}

	groups := domain.Group(items)
	var panels []string
	for _, cat := range domain.Categories {
		list := groups[cat]
		if len(list) == 0 {
			continue
		}
		lines := make([]string, len(list))
		for i, it := range list {
			lines[i] = Line(it)
		}
		head := headStyle.Render(fmt.Sprintf("%s (%d)", cat.Label(), len(list)))
		panels = append(panels, boxStyle.Render(head+"\n"+strings.Join(lines, "\n")))
	}
	return lipgloss.JoinVertical(lipgloss.Left, panels...)
}

// Summary renders the outcome of an organization pass
func Summary(res *pipeline.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Organized %d fragment(s) as of %s (%s): %d new, %d updated, %d duplicate(s)\n",
		len(res.Consumed), res.AnchorDate.Format("Mon 2006-01-02"), res.Timezone,
		len(res.Inserted), len(res.Enriched), len(res.Duplicates))
	if res.NulledFields > 0 {
		fmt.Fprintf(&sb, "%s\n", dimStyle.Render(fmt.Sprintf("dropped %d invalid date/time value(s)", res.NulledFields)))
	}
	if res.ArchiveErr != nil {
		fmt.Fprintf(&sb, "warning: %v\n", res.ArchiveErr)
	}
	if items := res.Items(); len(items) > 0 {
		sb.WriteString(Board(items))
		sb.WriteString("\n")
	}
	return sb.String()
}
