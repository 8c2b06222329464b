package catalog

import (
	"context"
	"fmt"
	"io"
	"iter"

	"github.com/stevemurr/booksdb/query"
	"github.com/stevemurr/booksdb/store"
)

// Query is one of the named reads of the script.
type Query struct {
	Name        string
	Description string
	Collection  string
	Filter      query.Filter
	Projection  query.Projection
}

// Run lazily yields the query's results from s.
func (q Query) Run(ctx context.Context, s store.Store) iter.Seq2[store.Document, error] {
	return s.Find(ctx, q.Collection, q.Filter, q.Projection)
}

// Queries returns the reads in the order the script runs them.
func Queries() []Query {
	return []Query{
		{
			Name:        "all-books",
			Description: "Select all books",
			Collection:  BooksCollection,
			Filter:      query.All(),
		},
		{
			Name:        "poetry-books",
			Description: "Select all books for a given category",
			Collection:  BooksCollection,
			Filter:      query.Eq("category", "Poetry"),
			Projection:  query.Fields("title"),
		},
		{
			Name:        "books-before-2002",
			Description: "Select all books published before 2002",
			Collection:  BooksCollection,
			Filter:      query.Lt("releaseYear", year(2002)),
			Projection:  query.Fields("title", "releaseYear"),
		},
		{
			Name:        "books-with-coauthors",
			Description: "Select all books with more than one author",
			Collection:  BooksCollection,
			Filter:      query.SizeGt("authors", 1),
			Projection:  query.Fields("title", "authors"),
		},
		{
			Name:        "all-authors",
			Description: "Select all authors",
			Collection:  AuthorsCollection,
			Filter:      query.All(),
		},
		{
			Name:        "dead-authors",
			Description: "Select all dead authors",
			Collection:  AuthorsCollection,
			Filter:      query.Exists("dateOfDeath"),
			Projection:  query.Fields("name", "lastName"),
		},
		{
			Name:        "authors-born-before-1990",
			Description: "Select all authors born before 1990",
			Collection:  AuthorsCollection,
			Filter:      query.Lt("dateOfBirth", year(1990)),
			Projection:  query.Fields("name", "lastName"),
		},
		{
			Name:        "usa-authors",
			Description: "Select all authors from a given country",
			Collection:  AuthorsCollection,
			Filter:      query.Eq("country", "USA"),
			Projection:  query.Fields("name", "country"),
		},
	}
}

// QueryByName looks a query up by its name.
func QueryByName(name string) (Query, bool) {
	for _, q := range Queries() {
		if q.Name == name {
			return q, true
		}
	}
	return Query{}, false
}

// WriteResults runs q and writes a header line followed by one relaxed
// extended JSON document per line. It returns the number of documents
// written.
func WriteResults(ctx context.Context, w io.Writer, s store.Store, q Query) (int, error) {
	if _, err := fmt.Fprintf(w, "// %s (%s.find(%s))\n", q.Description, q.Collection, q.Filter); err != nil {
		return 0, err
	}
	n := 0
	for doc, err := range q.Run(ctx, s) {
		if err != nil {
			return n, fmt.Errorf("query %s: %w", q.Name, err)
		}
		b, err := store.ExtJSON(doc)
		if err != nil {
			return n, err
		}
		if _, err := fmt.Fprintf(w, "%s\n", b); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
