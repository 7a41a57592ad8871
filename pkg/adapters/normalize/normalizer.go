// Package normalize provides the default slot normalizer.
package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/cadence/pkg/domain"
)

// Normalizer implements ports.SlotNormalizer for the built-in slot types:
// text, number, date, and bool. Unknown or empty types pass values through
// untouched.
type Normalizer struct {
	// Now anchors relative date words; overridable for tests.
	Now func() time.Time
}

// New creates a Normalizer.
func New() *Normalizer {
	return &Normalizer{Now: time.Now}
}

// Normalize converts a raw extracted value to the slot's declared type.
func (n *Normalizer) Normalize(spec domain.SlotSpec, raw any) (any, error) {
	switch spec.Type {
	case "", "text":
		return normalizeText(raw)
	case "number":
		return normalizeNumber(raw)
	case "date":
		return n.normalizeDate(raw)
	case "bool":
		return normalizeBool(raw)
	default:
		return raw, nil
	}
}

func normalizeText(raw any) (any, error) {
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v), nil
	default:
		return fmt.Sprintf("%v", raw), nil
	}
}

func normalizeNumber(raw any) (any, error) {
	switch v := raw.(type) {
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float64:
		return v, nil
	case string:
		trimmed := strings.TrimSpace(v)
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return nil, fmt.Errorf("not a number: %q", v)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("cannot convert %T to number", raw)
	}
}

// dateLayouts are tried in order for string dates.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"January 2, 2006",
	"Jan 2, 2006",
	"02/01/2006",
}

func (n *Normalizer) normalizeDate(raw any) (any, error) {
	s, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("cannot convert %T to date", raw)
	}
	trimmed := strings.TrimSpace(s)

	switch strings.ToLower(trimmed) {
	case "today":
		return n.Now().Format("2006-01-02"), nil
	case "tomorrow":
		return n.Now().AddDate(0, 0, 1).Format("2006-01-02"), nil
	case "yesterday":
		return n.Now().AddDate(0, 0, -1).Format("2006-01-02"), nil
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}
	return nil, fmt.Errorf("unrecognized date: %q", s)
}

var truthy = map[string]bool{
	"yes": true, "y": true, "true": true, "sure": true, "ok": true, "yep": true,
}

var falsy = map[string]bool{
	"no": true, "n": true, "false": true, "nope": true, "nah": true,
}

func normalizeBool(raw any) (any, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		word := strings.ToLower(strings.TrimSpace(v))
		if truthy[word] {
			return true, nil
		}
		if falsy[word] {
			return false, nil
		}
		return nil, fmt.Errorf("not a yes/no value: %q", v)
	default:
		return nil, fmt.Errorf("cannot convert %T to bool", raw)
	}
}
