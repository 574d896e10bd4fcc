package contract

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pbaille/braindump/internal/domain"
)

func testRequest() domain.ClassificationRequest {
	return domain.ClassificationRequest{
		NewInputText:      "Dentist tomorrow 3pm\nBuy milk",
		PreviousItemsText: "Call mom, Learn Spanish",
		Timezone:          "Europe/Paris",
		AnchorDate:        time.Date(2025, 1, 13, 0, 0, 0, 0, time.UTC),
	}
}

func TestBuildInjectsAnchorDate(t *testing.T) {
	out := Build(testRequest())

	assert.Contains(t, out, "Current Reference Date: 2025-01-13 (Monday), timezone Europe/Paris")
	assert.Contains(t, out, `"tomorrow", "day after" or "next day" -> 2025-01-14`)
	assert.Contains(t, out, `"day after tomorrow" -> 2025-01-15`)
	assert.Contains(t, out, `"this/coming Monday" = 2025-01-20`)
	assert.Contains(t, out, `"this/coming Tuesday" = 2025-01-14`)
	assert.Contains(t, out, `"next/following Friday" = 2025-01-24`)
	assert.Contains(t, out, `"next week" = 2025-01-20`)
	assert.Contains(t, out, `"next month 15th" = 2025-02-15`)
	assert.Contains(t, out, "never substitute your own notion of today")
}

func TestBuildExamplesFollowAnchor(t *testing.T) {
	req := testRequest()
	req.AnchorDate = time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC) // Wednesday
	out := Build(req)

	assert.Contains(t, out, `"this/coming Wednesday" = 2025-03-12`)
	assert.Contains(t, out, `"this/coming Thursday" = 2025-03-06`)
	assert.NotContains(t, out, "2025-01-", "examples must be computed from the anchor")
}

func TestBuildSections(t *testing.T) {
	out := Build(testRequest())

	for _, section := range []string{"### Categories:", "### Refinement:", "### Deduplication:", "### DateTime:", "### Output Format:"} {
		assert.Contains(t, out, section)
	}
	for _, c := range domain.Categories {
		assert.Contains(t, out, "**"+c.Label()+":**")
		assert.Contains(t, out, `"`+c.Label()+`": [`)
	}
	assert.Contains(t, out, "never go here, they always go in Shopping List")
	assert.Contains(t, out, "**NEW INPUT:**\nDentist tomorrow 3pm\nBuy milk\n")
	assert.Contains(t, out, "**PREVIOUS ITEMS:**\nCall mom, Learn Spanish\n")

	idx := func(s string) int { return strings.Index(out, s) }
	assert.Less(t, idx("### Categories:"), idx("### Refinement:"))
	assert.Less(t, idx("### Refinement:"), idx("### Deduplication:"))
	assert.Less(t, idx("### Deduplication:"), idx("### DateTime:"))
	assert.Less(t, idx("### DateTime:"), idx("### Output Format:"))
}

func TestBuildDeterministic(t *testing.T) {
	assert.Equal(t, Build(testRequest()), Build(testRequest()))
}

func TestBuildOmitsEmptyPreviousItems(t *testing.T) {
	req := testRequest()
	req.PreviousItemsText = "  "
	req.Timezone = ""
	out := Build(req)

	assert.NotContains(t, out, "**PREVIOUS ITEMS:**")
	assert.Contains(t, out, "timezone UTC")
}

func TestInputTexts(t *testing.T) {
	frags := []domain.RawFragment{{Content: " a "}, {Content: ""}, {Content: "b"}}
	assert.Equal(t, "a\nb", NewInputText(frags))

	items := []domain.OrganizedItem{
		{Content: "Buy milk"},
		{Content: "Done thing", Completed: true},
		{Content: "Call mom"},
	}
	assert.Equal(t, "Buy milk, Call mom", PreviousItemsText(items))
}
