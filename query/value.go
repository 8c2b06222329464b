// Package query holds filters, updates and projections over documents.
//
// Every filter and update has two renditions: an in-process one that the
// file and SQL backends evaluate against decoded documents, and a BSON one
// that the MongoDB backend hands to the server. Both follow MongoDB's
// semantics for dotted paths into arrays of embedded documents.
package query

import (
	"bytes"
	"reflect"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Canonical converts a value decoded from BSON (or built by hand) into the
// shapes the rest of the module works with: map[string]any, []any,
// time.Time in UTC truncated to milliseconds, and plain scalars.
func Canonical(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = Canonical(e)
		}
		return out
	case bson.M:
		return Canonical(map[string]any(t))
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = Canonical(e.Value)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Canonical(e)
		}
		return out
	case bson.A:
		return Canonical([]any(t))
	case primitive.DateTime:
		return t.Time().UTC()
	case time.Time:
		return t.UTC().Truncate(time.Millisecond)
	case int:
		return int64(t)
	default:
		return v
	}
}

// Compare orders two scalar values of the same kind. The second result is
// false when the values are not comparable (different kinds, or composite).
func Compare(a, b any) (int, bool) {
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(x, y), true
	case time.Time:
		y, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return x.Compare(y), true
	case primitive.ObjectID:
		y, ok := b.(primitive.ObjectID)
		if !ok {
			return 0, false
		}
		return bytes.Compare(x[:], y[:]), true
	case bool:
		y, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case x == y:
			return 0, true
		case !x:
			return -1, true
		default:
			return 1, true
		}
	}
	fa, ok := number(a)
	if !ok {
		return 0, false
	}
	fb, ok := number(b)
	if !ok {
		return 0, false
	}
	switch {
	case fa < fb:
		return -1, true
	case fa > fb:
		return 1, true
	}
	return 0, true
}

// Equal reports whether two document values are equal. Numbers compare by
// value across widths and times compare as instants.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if c, ok := Compare(a, b); ok {
		return c == 0
	}
	switch x := a.(type) {
	case map[string]any:
		y, ok := b.(map[string]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for k, v := range x {
			w, ok := y[k]
			if !ok || !Equal(v, w) {
				return false
			}
		}
		return true
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// values returns every value reachable at a dotted path. Arrays met on the
// way are traversed element by element, as MongoDB does for "authors.name".
func values(doc map[string]any, field string) []any {
	return collect(doc, strings.Split(field, "."))
}

func collect(v any, path []string) []any {
	if len(path) == 0 {
		return []any{v}
	}
	switch t := v.(type) {
	case map[string]any:
		next, ok := t[path[0]]
		if !ok {
			return nil
		}
		return collect(next, path[1:])
	case []any:
		var out []any
		for _, e := range t {
			if _, ok := e.(map[string]any); ok {
				out = append(out, collect(e, path)...)
			}
		}
		return out
	}
	return nil
}

// candidates expands array values so that a scalar operator matches when
// any element satisfies it. The array itself stays a candidate too.
func candidates(vs []any) []any {
	out := make([]any, 0, len(vs))
	for _, v := range vs {
		out = append(out, v)
		if arr, ok := v.([]any); ok {
			out = append(out, arr...)
		}
	}
	return out
}
