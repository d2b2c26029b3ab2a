package dictionary

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the wire format of date values.
const DateLayout = "2006-01-02"

var ErrInvalidValue = errors.New("invalid value")

// valueHandler is the per-FieldType behaviour of a condition value.
type valueHandler struct {
	// ordered fields accept > and < in addition to =.
	ordered   bool
	normalize func(f SearchField, v any) (any, error)
}

var valueHandlers = map[FieldType]valueHandler{
	FieldString: {normalize: normalizeString},
	FieldNumber: {ordered: true, normalize: normalizeNumber},
	FieldDate:   {ordered: true, normalize: normalizeDate},
	FieldSelect: {normalize: normalizeSelect},
}

// Ordered reports whether values of this field can be compared with > and <.
func (f SearchField) Ordered() bool {
	return valueHandlers[f.Type].ordered
}

// NormalizeValue checks v against the field type and returns its canonical
// form: float64 for number fields, string otherwise.
func (f SearchField) NormalizeValue(v any) (any, error) {
	h, ok := valueHandlers[f.Type]
	if !ok {
		return nil, fmt.Errorf("%w: field %q has unknown type %q", ErrInvalidValue, f.Key, f.Type)
	}
	out, err := h.normalize(f, v)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidValue, f.Key, err)
	}
	return out, nil
}

func normalizeString(_ SearchField, v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("expected text, got %T", v)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("empty text")
	}
	return s, nil
}

func normalizeNumber(_ SearchField, v any) (any, error) {
	var n float64
	switch x := v.(type) {
	case float64:
		n = x
	case float32:
		n = float64(x)
	case int:
		n = float64(x)
	case int64:
		n = float64(x)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return nil, err
		}
		n = f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return nil, fmt.Errorf("not a number: %q", x)
		}
		n = f
	default:
		return nil, fmt.Errorf("expected number, got %T", v)
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return nil, errors.New("not a finite number")
	}
	return n, nil
}

func normalizeDate(_ SearchField, v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("expected date string, got %T", v)
	}
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("expected date as %s, got %q", DateLayout, s)
	}
	return t.Format(DateLayout), nil
}

func normalizeSelect(f SearchField, v any) (any, error) {
	var s string
	switch x := v.(type) {
	case string:
		s = x
	case float64:
		s = strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		s = strconv.Itoa(x)
	case json.Number:
		s = x.String()
	default:
		return nil, fmt.Errorf("expected option value, got %T", v)
	}
	if _, ok := f.OptionLabel(s); !ok {
		return nil, fmt.Errorf("%q is not an option", s)
	}
	return s, nil
}
