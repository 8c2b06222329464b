package query

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Update modifies a single document.
type Update interface {
	// Apply mutates doc in place.
	Apply(doc map[string]any) error
	// BSON renders the update as either an update document or an
	// aggregation pipeline, whichever MongoDB needs for the operator.
	BSON() any
	fmt.Stringer
}

// Set assigns value to field, creating intermediate documents as needed.
func Set(field string, value any) Update {
	return set{field: field, value: Canonical(value)}
}

type set struct {
	field string
	value any
}

func (u set) Apply(doc map[string]any) error {
	return setPath(doc, u.field, u.value)
}

func (u set) BSON() any {
	return bson.D{{Key: "$set", Value: bson.D{{Key: u.field, Value: u.value}}}}
}

func (u set) String() string { return fmt.Sprintf("{$set: {%s: %v}}", u.field, u.value) }

// Push appends value to the array at field. A missing field becomes a
// one-element array.
func Push(field string, value any) Update {
	return push{field: field, value: Canonical(value)}
}

type push struct {
	field string
	value any
}

func (u push) Apply(doc map[string]any) error {
	cur, ok := getPath(doc, u.field)
	if !ok || cur == nil {
		return setPath(doc, u.field, []any{u.value})
	}
	arr, ok := cur.([]any)
	if !ok {
		return fmt.Errorf("cannot $push to non-array field %q", u.field)
	}
	next := make([]any, len(arr), len(arr)+1)
	copy(next, arr)
	return setPath(doc, u.field, append(next, u.value))
}

func (u push) BSON() any {
	return bson.D{{Key: "$push", Value: bson.D{{Key: u.field, Value: u.value}}}}
}

func (u push) String() string { return fmt.Sprintf("{$push: {%s: %v}}", u.field, u.value) }

// Concat rewrites field as its current string value followed by suffix.
// When the field is missing or not a string the result is null, matching
// the server's $concat.
func Concat(field, suffix string) Update {
	return concat{field: field, suffix: suffix}
}

type concat struct {
	field  string
	suffix string
}

func (u concat) Apply(doc map[string]any) error {
	cur, _ := getPath(doc, u.field)
	s, ok := cur.(string)
	if !ok {
		return setPath(doc, u.field, nil)
	}
	return setPath(doc, u.field, s+u.suffix)
}

func (u concat) BSON() any {
	expr := bson.D{{Key: "$concat", Value: bson.A{"$" + u.field, u.suffix}}}
	return mongo.Pipeline{{{Key: "$set", Value: bson.D{{Key: u.field, Value: expr}}}}}
}

func (u concat) String() string {
	return fmt.Sprintf("[{$set: {%s: {$concat: [$%s, %q]}}}]", u.field, u.field, u.suffix)
}

func getPath(doc map[string]any, field string) (any, bool) {
	parts := strings.Split(field, ".")
	cur := doc
	for i, p := range parts {
		v, ok := cur[p]
		if !ok {
			return nil, false
		}
		if i == len(parts)-1 {
			return v, true
		}
		next, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return nil, false
}

func setPath(doc map[string]any, field string, value any) error {
	parts := strings.Split(field, ".")
	cur := doc
	for _, p := range parts[:len(parts)-1] {
		v, ok := cur[p]
		if !ok || v == nil {
			next := map[string]any{}
			cur[p] = next
			cur = next
			continue
		}
		next, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("cannot set %q: %q is not a document", field, p)
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = value
	return nil
}
