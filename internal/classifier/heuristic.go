package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/pbaille/braindump/internal/dates"
	"github.com/pbaille/braindump/internal/domain"
)

var (
	shoppingRe  = regexp.MustCompile(`\b(buy|buying|purchase|order|groceries|grocery|shopping|restock|get (?:a |some )?new)\b`)
	importantRe = regexp.MustCompile(`\b(birthday|anniversary|deadline|wedding|due date|graduation|christmas|holiday|fiscal year)\b`)
	planRe      = regexp.MustCompile(`\b(research|learn|explore|prepare|plan|compare|study|look into|figure out|organise|organize)\b`)
	thinkRe     = regexp.MustCompile(`\b(idea|ideas|think about|maybe|concept|concepts|reflect|wonder|what if|thoughts?)\b`)

	splitRe = regexp.MustCompile(`[\n;]+`)
)

// Heuristic is a rule-based oracle. It needs no network and satisfies the same reply
// format as the model-backed oracles: one item per input line, dates resolved with
// the local date rules, categories chosen by keyword.
type Heuristic struct{}

// NewHeuristic creates a Heuristic oracle
func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

// Classify returns a bare JSON category object for req.Source
func (h *Heuristic) Classify(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	out := domain.NewCategorized()
	for _, line := range splitRe.Split(req.Source.NewInputText, -1) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		res, _ := dates.Extract(line, req.Source.AnchorDate)
		item := domain.CategoryItem{
			Item: line,
			Date: res.DateString(),
			Time: res.Time,
		}
		if res.Recurrence != domain.RecurNone {
			r := string(res.Recurrence)
			item.Recurrence = &r
		}
		out.Add(Categorize(line), item)
	}

	b, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("marshal reply: %w", err)
	}
	return string(b), nil
}

// Categorize picks a category by keyword. Purchases win over everything else, so a
// dated shopping item still lands in the shopping list.
func Categorize(text string) domain.Category {
	lower := strings.ToLower(text)
	switch {
	case shoppingRe.MatchString(lower):
		return domain.CategoryShoppingList
	case importantRe.MatchString(lower):
		return domain.CategoryImportantDates
	case planRe.MatchString(lower):
		return domain.CategoryPlan
	case thinkRe.MatchString(lower):
		return domain.CategoryThink
	}
	return domain.CategoryDo
}
