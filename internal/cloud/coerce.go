package cloud

import (
	"encoding/json"
	"math"
	"time"
)

// Field readers never fail: a missing field or a value of the wrong type
// yields the zero value. Remote documents carry no schema, so a reader has
// to accept whatever another client wrote.

// String reads a string field
func (d Document) String(key string) string {
	s, _ := d[key].(string)
	return s
}

// Bool reads a boolean field
func (d Document) Bool(key string) bool {
	b, _ := d[key].(bool)
	return b
}

// Int64 reads a numeric field, truncating fractions
func (d Document) Int64(key string) int64 {
	switch v := d[key].(type) {
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case float32:
		return int64(v)
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0
		}
		return int64(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		if f, err := v.Float64(); err == nil {
			return int64(f)
		}
	}
	return 0
}

// Float64 reads a numeric field
func (d Document) Float64(key string) float64 {
	switch v := d[key].(type) {
	case int:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case float32:
		return float64(v)
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0
		}
		return v
	case json.Number:
		f, _ := v.Float64()
		return f
	}
	return 0
}

// Cents reads an amount stored in currency units and returns it in cents
func (d Document) Cents(key string) int64 {
	return int64(math.Round(d.Float64(key) * 100))
}

// Time reads a timestamp. Native timestamps and RFC 3339 strings are accepted.
func (d Document) Time(key string) time.Time {
	switch v := d[key].(type) {
	case time.Time:
		return v.UTC()
	case *time.Time:
		if v != nil {
			return v.UTC()
		}
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
			if t, err := time.Parse(layout, v); err == nil {
				return t.UTC()
			}
		}
	}
	return time.Time{}
}

func centsToUnits(c int64) float64 {
	return float64(c) / 100
}
