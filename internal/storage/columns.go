package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// Columns returns the column names of fields in sorted order, after checking
// that each is a valid identifier.
func Columns(fields map[string]any) ([]string, error) {
	cols := make([]string, 0, len(fields))
	for col := range fields {
		if err := ValidIdentifier(col); err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols, nil
}

// ColumnValue converts an entity value to a SQL argument. Scalars pass
// through; lists and objects are encoded as JSON text.
func ColumnValue(v any) (any, error) {
	switch v.(type) {
	case nil, string, bool, int, int32, int64, float32, float64:
		return v, nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode column value: %w", err)
		}
		return json.RawMessage(b), nil
	}
}

// DecodeJSON decodes a JSON document read back from a store. Integral
// numbers become int so rows compare equal to freshly transformed entities.
func DecodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return normalizeNumbers(v), nil
}

func normalizeNumbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil && i >= math.MinInt && i <= math.MaxInt {
			return int(i)
		}
		f, _ := x.Float64()
		return f
	case map[string]any:
		for k, item := range x {
			x[k] = normalizeNumbers(item)
		}
		return x
	case []any:
		for i, item := range x {
			x[i] = normalizeNumbers(item)
		}
		return x
	default:
		return v
	}
}
