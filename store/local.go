package store

import (
	"errors"
	"fmt"
	"iter"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/stevemurr/booksdb/query"
	"github.com/stevemurr/booksdb/schema"
)

// The helpers below implement insert, find, update and delete over a
// decoded collection. The memory, JSON file, SQLite and Postgres backends
// load a collection, run one of these, and persist what changed.

// prepareInsert assigns missing ids and validates docs in order. It returns
// the accepted prefix with its ids; a rejected document yields an
// *InsertError alongside whatever was accepted before it.
func prepareInsert(validator map[string]any, existing []Document, docs []Document) ([]Document, []any, error) {
	seen := make(map[string]bool, len(existing)+len(docs))
	for _, d := range existing {
		seen[idKey(d["_id"])] = true
	}
	accepted := make([]Document, 0, len(docs))
	ids := make([]any, 0, len(docs))
	for i, in := range docs {
		doc := copyDoc(in)
		if doc == nil {
			doc = Document{}
		}
		if _, ok := doc["_id"]; !ok {
			doc["_id"] = primitive.NewObjectID()
		}
		key := idKey(doc["_id"])
		if seen[key] {
			return accepted, ids, &InsertError{Index: i, Err: fmt.Errorf("%w: %v", ErrDuplicateKey, doc["_id"])}
		}
		if err := schema.Validate(validator, doc); err != nil {
			return accepted, ids, &InsertError{Index: i, Err: fmt.Errorf("%w: %v", ErrValidation, err)}
		}
		seen[key] = true
		accepted = append(accepted, doc)
		ids = append(ids, doc["_id"])
	}
	return accepted, ids, nil
}

// findMatches returns projected copies of the documents matching filter.
func findMatches(docs []Document, filter query.Filter, proj query.Projection) []Document {
	var out []Document
	for _, d := range docs {
		if filter.Match(d) {
			out = append(out, proj.Apply(copyDoc(d)))
		}
	}
	return out
}

// updateFirst applies update to a copy of the first matching document and
// validates the result. It returns the index of the match (-1 for none)
// and the replacement document.
func updateFirst(docs []Document, validator map[string]any, filter query.Filter, update query.Update) (int, Document, UpdateResult, error) {
	for i, d := range docs {
		if !filter.Match(d) {
			continue
		}
		res := UpdateResult{Matched: 1}
		next := copyDoc(d)
		if err := update.Apply(next); err != nil {
			return i, nil, res, err
		}
		next = copyDoc(next)
		if !query.Equal(next["_id"], d["_id"]) {
			return i, nil, res, errors.New("update may not change _id")
		}
		if err := schema.Validate(validator, next); err != nil {
			return i, nil, res, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		if !query.Equal(d, next) {
			res.Modified = 1
		}
		return i, next, res, nil
	}
	return -1, nil, UpdateResult{}, nil
}

// splitMatches partitions docs into those kept and those matching filter.
func splitMatches(docs []Document, filter query.Filter) (kept, removed []Document) {
	kept = make([]Document, 0, len(docs))
	for _, d := range docs {
		if filter.Match(d) {
			removed = append(removed, d)
		} else {
			kept = append(kept, d)
		}
	}
	return kept, removed
}

// seqOf yields docs, or a single error.
func seqOf(docs []Document, err error) iter.Seq2[Document, error] {
	return func(yield func(Document, error) bool) {
		if err != nil {
			yield(nil, err)
			return
		}
		for _, d := range docs {
			if !yield(d, nil) {
				return
			}
		}
	}
}
