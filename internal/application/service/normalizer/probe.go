package normalizer

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// object returns raw[key] as a JSON object, or nil.
func object(raw map[string]any, key string) map[string]any {
	if raw == nil {
		return nil
	}
	if v, ok := raw[key].(map[string]any); ok {
		return v
	}
	return nil
}

func has(raw map[string]any, key string) bool {
	if raw == nil {
		return false
	}
	_, ok := raw[key]
	return ok
}

// number coerces JSON numbers, numeric strings and bools. ok is false when the
// value is absent or cannot be read as a finite number.
func number(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case int32:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case bool:
		if n {
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

func text(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		s = strings.TrimSpace(s)
		return s, s != ""
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case json.Number:
		return s.String(), true
	default:
		return "", false
	}
}

func boolean(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		return parsed, err == nil
	default:
		if f, ok := number(v); ok {
			return f != 0, true
		}
		return false, false
	}
}

// firstNumber returns the first alias present as a number, or 0.
func firstNumber(raw map[string]any, aliases ...string) float64 {
	f, _ := lookupNumber(raw, aliases...)
	return f
}

func lookupNumber(raw map[string]any, aliases ...string) (float64, bool) {
	if raw == nil {
		return 0, false
	}
	for _, alias := range aliases {
		if v, ok := raw[alias]; ok {
			if f, ok := number(v); ok {
				return f, true
			}
		}
	}
	return 0, false
}

func firstText(raw map[string]any, aliases ...string) string {
	if raw == nil {
		return ""
	}
	for _, alias := range aliases {
		if v, ok := raw[alias]; ok {
			if s, ok := text(v); ok {
				return s
			}
		}
	}
	return ""
}

// priceOf reads {"price": x} entries, as used by quote books.
func priceOf(raw map[string]any, key string) float64 {
	return firstNumber(object(raw, key), "price")
}

func sizeOf(raw map[string]any, key string) float64 {
	return firstNumber(object(raw, key), "size", "quantity")
}

// timestamp reads epoch seconds, epoch millis or RFC3339 text. Zero means absent.
func timestamp(raw map[string]any, aliases ...string) time.Time {
	if raw == nil {
		return time.Time{}
	}
	for _, alias := range aliases {
		v, ok := raw[alias]
		if !ok {
			continue
		}
		if s, ok := v.(string); ok {
			s = strings.TrimSpace(s)
			if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
				return t.UTC()
			}
		}
		if f, ok := number(v); ok && f > 0 {
			return epoch(f)
		}
	}
	return time.Time{}
}

func epoch(f float64) time.Time {
	switch {
	case f >= 1e17:
		return time.Unix(0, int64(f)).UTC()
	case f >= 1e14:
		return time.UnixMicro(int64(f)).UTC()
	case f >= 1e11:
		return time.UnixMilli(int64(f)).UTC()
	default:
		sec, frac := math.Modf(f)
		return time.Unix(int64(sec), int64(frac*1e9)).UTC()
	}
}
