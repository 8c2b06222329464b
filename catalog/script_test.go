package catalog

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevemurr/booksdb/query"
	"github.com/stevemurr/booksdb/store"
)

var fixedNow = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

func newScript(t *testing.T) (*Script, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	s := NewScript(store.NewMemoryStore(), &out)
	s.Now = func() time.Time { return fixedNow }
	s.Logger = log.New(io.Discard, "", 0)
	return s, &out
}

// seeded returns a script whose collections exist and hold the seed data.
func seeded(t *testing.T) *Script {
	t.Helper()
	s, _ := newScript(t)
	ctx := context.Background()
	require.NoError(t, s.CreateCollections(ctx))
	ids, err := s.SeedAuthors(ctx)
	require.NoError(t, err)
	require.Len(t, ids, len(SeedAuthors))
	ids, err = s.SeedBooks(ctx)
	require.NoError(t, err)
	require.Len(t, ids, len(SeedBooks))
	return s
}

func find(t *testing.T, s *Script, collection string, filter query.Filter) []store.Document {
	t.Helper()
	docs, err := store.Collect(s.Store.Find(context.Background(), collection, filter, nil))
	require.NoError(t, err)
	return docs
}

func titles(docs []store.Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d["title"].(string))
	}
	return out
}

func runQuery(t *testing.T, s *Script, name string) []store.Document {
	t.Helper()
	q, ok := QueryByName(name)
	require.True(t, ok, name)
	docs, err := store.Collect(q.Run(context.Background(), s.Store))
	require.NoError(t, err)
	return docs
}

func TestAuthorValidator(t *testing.T) {
	s, _ := newScript(t)
	ctx := context.Background()
	require.NoError(t, s.CreateCollections(ctx))

	_, err := s.Store.InsertMany(ctx, AuthorsCollection, []store.Document{
		{"name": "A", "lastName": "B"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrValidation)
	var insErr *store.InsertError
	require.ErrorAs(t, err, &insErr)
	assert.Equal(t, 0, insErr.Index)

	ids, err := s.Store.InsertMany(ctx, AuthorsCollection, []store.Document{
		{"name": "A", "lastName": "B", "country": "C"},
	})
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestBookValidatorRejectsEmptyReleaseYear(t *testing.T) {
	s := seeded(t)
	ref, err := s.AuthorRef(context.Background(), "Dan")
	require.NoError(t, err)

	_, err = s.Store.InsertMany(context.Background(), BooksCollection, []store.Document{{
		"title":       "Origin",
		"releaseYear": []any{},
		"category":    "Thriller",
		"authors":     []any{ref},
	}})
	assert.ErrorIs(t, err, store.ErrValidation)
}

func TestBookValidatorRejectsDuplicateReleaseYears(t *testing.T) {
	s := seeded(t)
	_, err := s.Store.InsertMany(context.Background(), BooksCollection, []store.Document{{
		"title":       "Origin",
		"releaseYear": []any{year(2017), year(2017)},
		"category":    "Thriller",
	}})
	assert.ErrorIs(t, err, store.ErrValidation)
}

func TestSeedBooksEmbedsAuthorCopy(t *testing.T) {
	s := seeded(t)
	books := find(t, s, BooksCollection, query.Eq("title", "Inferno"))
	require.Len(t, books, 1)

	authors := books[0]["authors"].([]any)
	require.Len(t, authors, 1)
	ref := authors[0].(map[string]any)
	assert.Equal(t, "Dan", ref["name"])
	assert.Equal(t, "Brown", ref["lastName"])
	assert.Contains(t, ref, "_id")
	assert.NotContains(t, ref, "country")
	assert.NotContains(t, ref, "dateOfBirth")
}

func TestEmbeddedAuthorsAreNotRefreshed(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	res, err := s.Store.UpdateOne(ctx, AuthorsCollection, query.Eq("name", "Dan"), query.Set("lastName", "Browne"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Modified)

	for _, b := range find(t, s, BooksCollection, query.Eq("authors.name", "Dan")) {
		ref := b["authors"].([]any)[0].(map[string]any)
		assert.Equal(t, "Brown", ref["lastName"], b["title"])
	}
}

func TestAuthorRefFirstMatchWins(t *testing.T) {
	s, _ := newScript(t)
	ctx := context.Background()
	require.NoError(t, s.CreateCollections(ctx))
	_, err := s.Store.InsertMany(ctx, AuthorsCollection, []store.Document{
		{"name": "Dan", "lastName": "Brown", "country": "USA"},
		{"name": "Dan", "lastName": "Simmons", "country": "USA"},
	})
	require.NoError(t, err)

	ref, err := s.AuthorRef(ctx, "Dan")
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, "Brown", ref["lastName"])
}

func TestSeedBooksWithoutAuthorsIsRejected(t *testing.T) {
	s, _ := newScript(t)
	ctx := context.Background()
	require.NoError(t, s.CreateCollections(ctx))

	ids, err := s.SeedBooks(ctx)
	require.Error(t, err)
	assert.Empty(t, ids)
	assert.ErrorIs(t, err, store.ErrValidation)
	var insErr *store.InsertError
	require.ErrorAs(t, err, &insErr)
	assert.Equal(t, 0, insErr.Index)
	assert.Empty(t, find(t, s, BooksCollection, query.All()))
}

func TestPoetryBooks(t *testing.T) {
	s := seeded(t)
	docs := runQuery(t, s, "poetry-books")
	assert.Equal(t, []string{"Romancero gitano", "Poeta en Nueva York", "Eldorado"}, titles(docs))
	for _, d := range docs {
		assert.ElementsMatch(t, []string{"_id", "title"}, keys(d))
	}
}

func keys(d store.Document) []string {
	out := make([]string, 0, len(d))
	for k := range d {
		out = append(out, k)
	}
	return out
}

func TestMarkDanDeceased(t *testing.T) {
	s := seeded(t)
	res, err := s.MarkDanDeceased(context.Background())
	require.NoError(t, err)
	assert.Equal(t, store.UpdateResult{Matched: 1, Modified: 1}, res)

	dan := find(t, s, AuthorsCollection, query.Eq("name", "Dan"))
	require.Len(t, dan, 1)
	died, ok := dan[0]["dateOfDeath"].(time.Time)
	require.True(t, ok)
	assert.True(t, died.Equal(fixedNow))
}

func TestAddEldoradoReleaseYear(t *testing.T) {
	s := seeded(t)
	res, err := s.AddEldoradoReleaseYear(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Modified)

	docs := find(t, s, BooksCollection, query.Eq("title", EldoradoTitle))
	require.Len(t, docs, 1)
	years := docs[0]["releaseYear"].([]any)
	require.Len(t, years, 2)
	assert.True(t, years[0].(time.Time).Equal(year(1849)))
	assert.True(t, years[1].(time.Time).Equal(year(2021)))
}

func TestAddCoauthorToNewEditionMatchesNothing(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	_, err := s.RenameEldorado(ctx)
	require.NoError(t, err)

	res, err := s.AddCoauthorToNewEdition(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.UpdateResult{}, res)
	assert.Empty(t, runQuery(t, s, "books-with-coauthors"))
}

func TestRenameEldorado(t *testing.T) {
	s := seeded(t)
	res, err := s.RenameEldorado(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Modified)

	assert.Empty(t, find(t, s, BooksCollection, query.Eq("title", EldoradoTitle)))
	assert.Len(t, find(t, s, BooksCollection, query.Eq("title", "Eldorado New Edition")), 1)
}

func TestBooksBefore2002(t *testing.T) {
	s := seeded(t)
	_, err := s.AddEldoradoReleaseYear(context.Background())
	require.NoError(t, err)

	docs := runQuery(t, s, "books-before-2002")
	assert.Len(t, docs, 8)
	assert.NotContains(t, titles(docs), "The Da Vinci Code")
	assert.NotContains(t, titles(docs), "Inferno")
	assert.Contains(t, titles(docs), EldoradoTitle)
}

func TestAuthorQueries(t *testing.T) {
	s := seeded(t)
	assert.Len(t, runQuery(t, s, "all-authors"), 3)
	assert.Len(t, runQuery(t, s, "authors-born-before-1990"), 3)
	assert.Len(t, runQuery(t, s, "dead-authors"), 2)

	usa := runQuery(t, s, "usa-authors")
	require.Len(t, usa, 2)
	for _, a := range usa {
		assert.Equal(t, "USA", a["country"])
		assert.NotContains(t, a, "lastName")
	}
}

func TestQueriesDoNotModifyData(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	var first, second bytes.Buffer
	s.Out = &first
	require.NoError(t, s.RunQueries(ctx))
	s.Out = &second
	require.NoError(t, s.RunQueries(ctx))
	assert.Equal(t, first.String(), second.String())
	assert.Equal(t, len(Queries()), strings.Count(first.String(), "// "))
}

func TestDeleteEdgarAllanBooks(t *testing.T) {
	s := seeded(t)
	n, err := s.DeleteEdgarAllanBooks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Len(t, find(t, s, BooksCollection, query.All()), 7)
}

func TestDeleteDeadAuthors(t *testing.T) {
	t.Run("after dan update", func(t *testing.T) {
		s := seeded(t)
		ctx := context.Background()
		_, err := s.MarkDanDeceased(ctx)
		require.NoError(t, err)
		n, err := s.DeleteDeadAuthors(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
		assert.Empty(t, find(t, s, AuthorsCollection, query.All()))
	})
	t.Run("without dan update", func(t *testing.T) {
		s := seeded(t)
		n, err := s.DeleteDeadAuthors(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
		left := find(t, s, AuthorsCollection, query.All())
		require.Len(t, left, 1)
		assert.Equal(t, "Dan", left[0]["name"])
	})
}

func TestRun(t *testing.T) {
	s, out := newScript(t)
	require.NoError(t, s.Run(context.Background()))

	assert.Equal(t, len(Queries()), strings.Count(out.String(), "\n// ")+1)
	assert.True(t, strings.HasPrefix(out.String(), "// Select all books"))
	assert.Contains(t, out.String(), `"title":"Eldorado New Edition"`)

	books := find(t, s, BooksCollection, query.All())
	assert.Len(t, books, 7)
	for _, b := range books {
		assert.NotEqual(t, "Edgar Allan", b["authors"].([]any)[0].(map[string]any)["name"])
	}
	assert.Empty(t, find(t, s, AuthorsCollection, query.All()))
}

func TestRunContinuesAfterFailedStep(t *testing.T) {
	s, out := newScript(t)
	ctx := context.Background()
	require.NoError(t, s.Store.CreateCollection(ctx, AuthorsCollection, nil))

	err := s.Run(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrCollectionExists))
	assert.Contains(t, err.Error(), "create-collections")

	assert.NotEmpty(t, out.String())
	assert.Len(t, find(t, s, BooksCollection, query.All()), 7)
	assert.Empty(t, find(t, s, AuthorsCollection, query.All()))
}

func TestDropCollections(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	require.NoError(t, s.DropCollections(ctx))
	names, err := s.Store.ListCollections(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)
	require.NoError(t, s.CreateCollections(ctx))
}
