package query

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// Filter selects documents.
type Filter interface {
	// Match reports whether doc satisfies the filter.
	Match(doc map[string]any) bool
	// BSON renders the filter as a MongoDB query document.
	BSON() bson.D
	fmt.Stringer
}

// All matches every document.
func All() Filter { return all{} }

type all struct{}

func (all) Match(map[string]any) bool { return true }
func (all) BSON() bson.D              { return bson.D{} }
func (all) String() string            { return "{}" }

// Eq matches documents where field equals value. When the field holds an
// array, any element equal to value matches.
func Eq(field string, value any) Filter {
	return eq{field: field, value: Canonical(value)}
}

type eq struct {
	field string
	value any
}

func (f eq) Match(doc map[string]any) bool {
	for _, c := range candidates(values(doc, f.field)) {
		if Equal(c, f.value) {
			return true
		}
	}
	return false
}

func (f eq) BSON() bson.D   { return bson.D{{Key: f.field, Value: f.value}} }
func (f eq) String() string { return fmt.Sprintf("{%s: %v}", f.field, f.value) }

// Lt matches documents where field is less than value. When the field holds
// an array, any element less than value matches.
func Lt(field string, value any) Filter {
	return lt{field: field, value: Canonical(value)}
}

type lt struct {
	field string
	value any
}

func (f lt) Match(doc map[string]any) bool {
	for _, c := range candidates(values(doc, f.field)) {
		if n, ok := Compare(c, f.value); ok && n < 0 {
			return true
		}
	}
	return false
}

func (f lt) BSON() bson.D {
	return bson.D{{Key: f.field, Value: bson.D{{Key: "$lt", Value: f.value}}}}
}

func (f lt) String() string { return fmt.Sprintf("{%s: {$lt: %v}}", f.field, f.value) }

// Exists matches documents that carry field, whatever its value.
func Exists(field string) Filter { return exists{field: field} }

type exists struct{ field string }

func (f exists) Match(doc map[string]any) bool { return len(values(doc, f.field)) > 0 }

func (f exists) BSON() bson.D {
	return bson.D{{Key: f.field, Value: bson.D{{Key: "$exists", Value: true}}}}
}

func (f exists) String() string { return fmt.Sprintf("{%s: {$exists: true}}", f.field) }

// SizeGt matches documents whose array field has more than n elements.
// Documents without the field never match.
func SizeGt(field string, n int) Filter { return sizeGt{field: field, n: n} }

type sizeGt struct {
	field string
	n     int
}

func (f sizeGt) Match(doc map[string]any) bool {
	for _, v := range values(doc, f.field) {
		if arr, ok := v.([]any); ok && len(arr) > f.n {
			return true
		}
	}
	return false
}

func (f sizeGt) BSON() bson.D {
	size := bson.D{{Key: "$size", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$" + f.field, bson.A{}}}}}}
	return bson.D{{Key: "$expr", Value: bson.D{{Key: "$gt", Value: bson.A{size, f.n}}}}}
}

func (f sizeGt) String() string { return fmt.Sprintf("{size(%s) > %d}", f.field, f.n) }

// And matches documents satisfying every filter. An empty And matches all.
func And(filters ...Filter) Filter { return and(filters) }

type and []Filter

func (f and) Match(doc map[string]any) bool {
	for _, sub := range f {
		if !sub.Match(doc) {
			return false
		}
	}
	return true
}

func (f and) BSON() bson.D {
	if len(f) == 0 {
		return bson.D{}
	}
	parts := make(bson.A, 0, len(f))
	for _, sub := range f {
		parts = append(parts, sub.BSON())
	}
	return bson.D{{Key: "$and", Value: parts}}
}

func (f and) String() string {
	parts := make([]string, 0, len(f))
	for _, sub := range f {
		parts = append(parts, sub.String())
	}
	return "{$and: [" + strings.Join(parts, ", ") + "]}"
}
