package source

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Record is one raw entry of a collection as decoded from JSON: strings,
// float64 numbers, bools, nested maps and slices.
type Record map[string]any

// Item is a Record together with where it was read from.
type Item struct {
	Record     Record
	Collection string
	File       string
	Index      int
}

// Ref identifies an item in error reports when no natural key is available.
func (it Item) Ref() string {
	if name := it.Record.String("name"); name != "" {
		return name
	}
	return fmt.Sprintf("%s#%d", it.File, it.Index)
}

func (r Record) Has(key string) bool {
	_, ok := r[key]
	return ok
}

// String returns the value under key when it is a string, or "".
func (r Record) String(key string) string {
	s, _ := r[key].(string)
	return s
}

func (r Record) Bool(key string) bool {
	switch v := r[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	default:
		return false
	}
}

// Int returns the numeric value under key. Numeric strings are accepted.
func (r Record) Int(key string) (int, bool) {
	return AsInt(r[key])
}

func (r Record) Float(key string) (float64, bool) {
	return AsFloat(r[key])
}

func (r Record) Map(key string) Record {
	return AsRecord(r[key])
}

func (r Record) Slice(key string) []any {
	s, _ := r[key].([]any)
	return s
}

// Strings returns the string elements under key, skipping anything else.
func (r Record) Strings(key string) []string {
	return AsStrings(r[key])
}

// Path walks nested maps, e.g. r.Path("classes", "fromClassList").
func (r Record) Path(keys ...string) any {
	var cur any = map[string]any(r)
	for _, k := range keys {
		m := AsRecord(cur)
		if m == nil {
			return nil
		}
		cur = m[k]
	}
	return cur
}

func AsRecord(v any) Record {
	switch m := v.(type) {
	case map[string]any:
		return Record(m)
	case Record:
		return m
	default:
		return nil
	}
}

func AsStrings(v any) []string {
	items, ok := v.([]any)
	if !ok {
		if s, ok := v.([]string); ok {
			return s
		}
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func AsInt(v any) (int, bool) {
	f, ok := AsFloat(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(f), true
}
