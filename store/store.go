// Package store defines the backing store interface and implementations.
package store

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/stevemurr/booksdb/query"
)

// Document is a single record. Values are kept in the shapes produced by
// query.Canonical.
type Document = map[string]any

var (
	// ErrValidation marks a write the collection validator rejected.
	ErrValidation = errors.New("document failed validation")
	// ErrCollectionExists is returned when creating a collection twice.
	ErrCollectionExists = errors.New("collection already exists")
	// ErrDuplicateKey is returned when an insert reuses an existing _id.
	ErrDuplicateKey = errors.New("duplicate _id")
	// ErrUnknownBackend is returned by New for unsupported backend names.
	ErrUnknownBackend = errors.New("unknown store backend")
)

// Store is the interface that all backing stores must implement.
// It operates on named collections of documents, each collection carrying
// an optional validator that every insert and update must satisfy.
//
// Every call is applied on its own; no backend groups calls into a
// transaction.
type Store interface {
	// CreateCollection creates an empty collection with the given
	// $jsonSchema validator (nil for none).
	CreateCollection(ctx context.Context, name string, validator map[string]any) error

	// Drop removes a collection with its documents and validator. Dropping
	// a missing collection is not an error.
	Drop(ctx context.Context, name string) error

	// GetSchema returns the validator of a collection, or nil.
	GetSchema(ctx context.Context, collection string) (map[string]any, error)

	// ListSchemas returns all validators as collection_name -> validator.
	ListSchemas(ctx context.Context) (map[string]map[string]any, error)

	// ListCollections returns the names of all collections, sorted.
	ListCollections(ctx context.Context) ([]string, error)

	// InsertMany inserts docs in order, assigning an ObjectID _id to those
	// without one. Insertion stops at the first rejected document; the ones
	// before it stay inserted and an *InsertError names the rejected index.
	InsertMany(ctx context.Context, collection string, docs []Document) ([]any, error)

	// Find lazily yields the documents matching filter in insertion order,
	// projected by proj.
	Find(ctx context.Context, collection string, filter query.Filter, proj query.Projection) iter.Seq2[Document, error]

	// UpdateOne applies update to the first document matching filter.
	// Matching nothing is not an error.
	UpdateOne(ctx context.Context, collection string, filter query.Filter, update query.Update) (UpdateResult, error)

	// DeleteMany removes every document matching filter and returns how
	// many were removed.
	DeleteMany(ctx context.Context, collection string, filter query.Filter) (int64, error)

	Close() error
}

// UpdateResult reports what an UpdateOne touched.
type UpdateResult struct {
	Matched  int64
	Modified int64
}

// InsertError reports the document at which a bulk insert stopped.
type InsertError struct {
	Index int
	Err   error
}

func (e *InsertError) Error() string {
	return fmt.Sprintf("insert document %d: %v", e.Index, e.Err)
}

func (e *InsertError) Unwrap() error { return e.Err }

// FindOne returns the first document matching filter, or nil if none does.
func FindOne(ctx context.Context, s Store, collection string, filter query.Filter, proj query.Projection) (Document, error) {
	for doc, err := range s.Find(ctx, collection, filter, proj) {
		if err != nil {
			return nil, err
		}
		return doc, nil
	}
	return nil, nil
}

// Collect drains a Find result.
func Collect(seq iter.Seq2[Document, error]) ([]Document, error) {
	var docs []Document
	for doc, err := range seq {
		if err != nil {
			return docs, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
