package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/stevemurr/booksdb/query"
	"github.com/stevemurr/booksdb/store"
)

// authorRefFields is the projection used to copy an author into a book.
var authorRefFields = query.Fields("name", "lastName")

// Script runs the bootstrap against a store. Every step is a separate
// store call: nothing is retried and nothing is rolled back.
type Script struct {
	Store store.Store
	// Out receives the results of the read queries.
	Out io.Writer
	// Now stamps the date of death set by MarkDanDeceased.
	Now    func() time.Time
	Logger *log.Logger
}

func NewScript(s store.Store, out io.Writer) *Script {
	return &Script{
		Store:  s,
		Out:    out,
		Now:    time.Now,
		Logger: log.Default(),
	}
}

// CreateCollections creates the authors and books collections with their
// validators. Each creation is attempted even if the other fails.
func (s *Script) CreateCollections(ctx context.Context) error {
	return errors.Join(
		s.Store.CreateCollection(ctx, AuthorsCollection, AuthorSchema()),
		s.Store.CreateCollection(ctx, BooksCollection, BookSchema()),
	)
}

// DropCollections removes both collections.
func (s *Script) DropCollections(ctx context.Context) error {
	return errors.Join(
		s.Store.Drop(ctx, BooksCollection),
		s.Store.Drop(ctx, AuthorsCollection),
	)
}

// SeedAuthors bulk-inserts SeedAuthors.
func (s *Script) SeedAuthors(ctx context.Context) ([]any, error) {
	docs := make([]store.Document, 0, len(SeedAuthors))
	for _, a := range SeedAuthors {
		doc, err := store.ToDocument(a)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return s.Store.InsertMany(ctx, AuthorsCollection, docs)
}

// AuthorRef copies the first author whose name equals name. Names are not
// unique; with several matches the store's natural order decides. A miss
// returns nil without error.
func (s *Script) AuthorRef(ctx context.Context, name string) (store.Document, error) {
	return store.FindOne(ctx, s.Store, AuthorsCollection, query.Eq("name", name), authorRefFields)
}

// SeedBooks bulk-inserts SeedBooks, embedding a copy of each book's author.
// An author lookup that misses embeds nil, which the books validator
// rejects.
func (s *Script) SeedBooks(ctx context.Context) ([]any, error) {
	docs := make([]store.Document, 0, len(SeedBooks))
	for _, b := range SeedBooks {
		ref, err := s.AuthorRef(ctx, b.Author)
		if err != nil {
			return nil, fmt.Errorf("look up author %q: %w", b.Author, err)
		}
		doc, err := store.ToDocument(Book{
			Title:       b.Title,
			ReleaseYear: []time.Time{b.Released},
			Category:    b.Category,
		})
		if err != nil {
			return nil, err
		}
		var embedded any
		if ref != nil {
			embedded = ref
		}
		doc["authors"] = []any{embedded}
		docs = append(docs, doc)
	}
	return s.Store.InsertMany(ctx, BooksCollection, docs)
}

// MarkDanDeceased sets dateOfDeath on the first author named Dan.
func (s *Script) MarkDanDeceased(ctx context.Context) (store.UpdateResult, error) {
	return s.Store.UpdateOne(ctx, AuthorsCollection,
		query.Eq("name", "Dan"),
		query.Set("dateOfDeath", s.Now()))
}

// AddEldoradoReleaseYear pushes EldoradoReissue onto Eldorado's release
// years.
func (s *Script) AddEldoradoReleaseYear(ctx context.Context) (store.UpdateResult, error) {
	return s.Store.UpdateOne(ctx, BooksCollection,
		query.Eq("title", EldoradoTitle),
		query.Push("releaseYear", EldoradoReissue))
}

// AddCoauthorToNewEdition pushes Dan onto the authors of the book titled
// "EldoradoNew Edition". No seeded book has that title, before or after
// the rename, so the update matches nothing.
func (s *Script) AddCoauthorToNewEdition(ctx context.Context) (store.UpdateResult, error) {
	ref, err := s.AuthorRef(ctx, "Dan")
	if err != nil {
		return store.UpdateResult{}, err
	}
	var embedded any
	if ref != nil {
		embedded = ref
	}
	return s.Store.UpdateOne(ctx, BooksCollection,
		query.Eq("title", newEditionTypoName),
		query.Push("authors", embedded))
}

// RenameEldorado appends NewEditionSuffix to the title of Eldorado.
func (s *Script) RenameEldorado(ctx context.Context) (store.UpdateResult, error) {
	return s.Store.UpdateOne(ctx, BooksCollection,
		query.Eq("title", EldoradoTitle),
		query.Concat("title", NewEditionSuffix))
}

// RunQueries writes the results of every query in Queries to Out.
func (s *Script) RunQueries(ctx context.Context) error {
	var errs []error
	for _, q := range Queries() {
		n, err := WriteResults(ctx, s.Out, s.Store, q)
		if err != nil {
			s.Logger.Printf("query=%s error: %v", q.Name, err)
			errs = append(errs, err)
			continue
		}
		s.Logger.Printf("query=%s returned=%d", q.Name, n)
	}
	return errors.Join(errs...)
}

// DeleteEdgarAllanBooks removes every book embedding an author named
// Edgar Allan.
func (s *Script) DeleteEdgarAllanBooks(ctx context.Context) (int64, error) {
	return s.Store.DeleteMany(ctx, BooksCollection, query.Eq("authors.name", "Edgar Allan"))
}

// DeleteDeadAuthors removes every author with a dateOfDeath.
func (s *Script) DeleteDeadAuthors(ctx context.Context) (int64, error) {
	return s.Store.DeleteMany(ctx, AuthorsCollection, query.Exists("dateOfDeath"))
}

type step struct {
	name string
	run  func(context.Context) (string, error)
}

func (s *Script) steps() []step {
	inserted := func(f func(context.Context) ([]any, error)) func(context.Context) (string, error) {
		return func(ctx context.Context) (string, error) {
			ids, err := f(ctx)
			return fmt.Sprintf("inserted=%d", len(ids)), err
		}
	}
	updated := func(f func(context.Context) (store.UpdateResult, error)) func(context.Context) (string, error) {
		return func(ctx context.Context) (string, error) {
			res, err := f(ctx)
			return fmt.Sprintf("matched=%d modified=%d", res.Matched, res.Modified), err
		}
	}
	deleted := func(f func(context.Context) (int64, error)) func(context.Context) (string, error) {
		return func(ctx context.Context) (string, error) {
			n, err := f(ctx)
			return fmt.Sprintf("deleted=%d", n), err
		}
	}
	plain := func(f func(context.Context) error) func(context.Context) (string, error) {
		return func(ctx context.Context) (string, error) { return "ok", f(ctx) }
	}

	return []step{
		{"create-collections", plain(s.CreateCollections)},
		{"seed-authors", inserted(s.SeedAuthors)},
		{"seed-books", inserted(s.SeedBooks)},
		{"mark-dan-deceased", updated(s.MarkDanDeceased)},
		{"add-eldorado-release-year", updated(s.AddEldoradoReleaseYear)},
		{"add-coauthor-to-new-edition", updated(s.AddCoauthorToNewEdition)},
		{"rename-eldorado", updated(s.RenameEldorado)},
		{"run-queries", plain(s.RunQueries)},
		{"delete-edgar-allan-books", deleted(s.DeleteEdgarAllanBooks)},
		{"delete-dead-authors", deleted(s.DeleteDeadAuthors)},
	}
}

// Run executes every step in order. A failing step is logged and the
// remaining steps still run; the returned error joins all failures.
func (s *Script) Run(ctx context.Context) error {
	var errs []error
	for _, st := range s.steps() {
		summary, err := st.run(ctx)
		if err != nil {
			s.Logger.Printf("step=%s failed: %v", st.name, err)
			errs = append(errs, fmt.Errorf("%s: %w", st.name, err))
			continue
		}
		s.Logger.Printf("step=%s %s", st.name, summary)
	}
	return errors.Join(errs...)
}
