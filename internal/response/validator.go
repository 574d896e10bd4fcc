// Package response turns the oracle's raw reply into validated category items.
package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pbaille/braindump/internal/dates"
	"github.com/pbaille/braindump/internal/domain"
)

// ErrParse means the oracle output was not recognizable as the category object
var ErrParse = errors.New("unrecognized oracle response")

var fencedRe = regexp.MustCompile("(?is)```json\\s*(.*?)\\s*```")

// Parse extracts the category object from raw. Two shapes are accepted: a ```json
// fenced block, or a bare JSON object. Anything else wraps ErrParse.
func Parse(raw string) (domain.Categorized, error) {
	var out domain.Categorized

	body := strings.TrimSpace(raw)
	if m := fencedRe.FindStringSubmatch(body); m != nil {
		body = m[1]
	} else if strings.Contains(body, "```") {
		return out, fmt.Errorf("%w: fenced block is not tagged json", ErrParse)
	}

	if !strings.HasPrefix(body, "{") || !strings.HasSuffix(body, "}") {
		return out, fmt.Errorf("%w: no JSON object found", ErrParse)
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &keys); err != nil {
		return out, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if !hasCategoryKey(keys) {
		return out, fmt.Errorf("%w: object has none of the category keys", ErrParse)
	}

	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return domain.Categorized{}, fmt.Errorf("%w: %v", ErrParse, err)
	}

	return out, nil
}

func hasCategoryKey(keys map[string]json.RawMessage) bool {
	for _, cat := range domain.Categories {
		if _, ok := keys[cat.Label()]; ok {
			return true
		}
	}
	return false
}

// Validator checks each item's date and time against one anchor date
type Validator struct {
	anchor time.Time
	logger *zap.Logger
}

// NewValidator creates a Validator for anchor
func NewValidator(anchor time.Time, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{anchor: dates.Day(anchor), logger: logger}
}

// Validate nulls out invalid date, time and recurrence fields in place. Items are never
// dropped. It returns the number of fields that were nulled.
func (v *Validator) Validate(c *domain.Categorized) int {
	nulled := 0
	for _, cat := range domain.Categories {
		items := *c.List(cat)
		for i := range items {
			nulled += v.validateItem(cat, &items[i])
		}
	}
	return nulled
}

func (v *Validator) validateItem(cat domain.Category, it *domain.CategoryItem) int {
	nulled := 0

	if it.Date != nil {
		d := strings.TrimSpace(*it.Date)
		if d == "" || !dates.OnOrAfter(d, v.anchor) {
			v.logger.Debug("nulling invalid date",
				zap.String("category", cat.Label()),
				zap.String("item", it.Content()),
				zap.String("date", *it.Date))
			it.Date = nil
			nulled++
		} else {
			it.Date = &d
		}
	}

	if it.Time != nil {
		tm := strings.TrimSpace(*it.Time)
		if !dates.ValidTime(tm) {
			v.logger.Debug("nulling invalid time",
				zap.String("category", cat.Label()),
				zap.String("item", it.Content()),
				zap.String("time", *it.Time))
			it.Time = nil
			nulled++
		} else {
			it.Time = &tm
		}
	}

	if it.Recurrence != nil {
		r := domain.ParseRecurrence(*it.Recurrence)
		if r == domain.RecurNone {
			it.Recurrence = nil
		} else {
			s := string(r)
			it.Recurrence = &s
		}
	}

	it.Completed = false
	return nulled
}

// ParseAndValidate runs Parse followed by Validate and reports how many fields were nulled
func (v *Validator) ParseAndValidate(raw string) (domain.Categorized, int, error) {
	c, err := Parse(raw)
	if err != nil {
		return c, 0, err
	}
	n := v.Validate(&c)
	if n > 0 {
		v.logger.Info("degraded invalid fields", zap.Int("fields", n), zap.Int("items", c.Len()))
	}
	return c, n, nil
}
