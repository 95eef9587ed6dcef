package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

type object map[string]any

func asObject(v any) object {
	m, ok := v.(map[string]any)
	if !ok {
		return object{}
	}
	return object(m)
}

// first returns the first alias that is present and not null.
func (o object) first(keys ...string) (any, bool) {
	for _, key := range keys {
		v, ok := o[key]
		if ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// firstTruthy returns the first alias holding a truthy value.
func (o object) firstTruthy(keys ...string) (any, bool) {
	for _, key := range keys {
		if v := o[key]; truthy(v) {
			return v, true
		}
	}
	return nil, false
}

// firstString returns the first alias holding a non-empty string.
func (o object) firstString(keys ...string) (string, bool) {
	for _, key := range keys {
		if s, ok := nonEmptyString(o[key]); ok {
			return s, true
		}
	}
	return "", false
}

// number coerces numbers, numeric strings and booleans. NaN and infinities are
// rejected.
func number(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func numberOr(v any, fallback float64) float64 {
	if f, ok := number(v); ok {
		return f
	}
	return fallback
}

func optionalNumber(v any) *float64 {
	f, ok := number(v)
	if !ok {
		return nil
	}
	return &f
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0 && !math.IsNaN(t)
	case json.Number:
		f, err := t.Float64()
		return err == nil && f != 0
	case string:
		return t != ""
	default:
		return true
	}
}

func nonEmptyString(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(raw)
	}
}
