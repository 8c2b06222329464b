package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stevemurr/booksdb/catalog"
	"github.com/stevemurr/booksdb/handler"
	"github.com/stevemurr/booksdb/query"
	"github.com/stevemurr/booksdb/store"
)

func setup(t *testing.T) *httptest.Server {
	t.Helper()
	s := store.NewMemoryStore()
	ctx := context.Background()
	script := catalog.NewScript(s, io.Discard)
	script.Logger = log.New(io.Discard, "", 0)
	if err := script.CreateCollections(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := script.SeedAuthors(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := script.SeedBooks(ctx); err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(handler.New(s))
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, url string, wantStatus int) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	if resp.StatusCode != wantStatus {
		t.Fatalf("GET %s: expected %d, got %d", url, wantStatus, resp.StatusCode)
	}
	return resp
}

func decodeJSON(t *testing.T, r io.Reader) map[string]any {
	t.Helper()
	var v map[string]any
	if err := json.NewDecoder(r).Decode(&v); err != nil {
		t.Fatal(err)
	}
	return v
}

func decodeJSONArray(t *testing.T, r io.Reader) []any {
	t.Helper()
	var v []any
	if err := json.NewDecoder(r).Decode(&v); err != nil {
		t.Fatal(err)
	}
	return v
}

func TestRootAndHealth(t *testing.T) {
	ts := setup(t)

	body := decodeJSON(t, get(t, ts.URL+"/", 200).Body)
	if body["status"] != "ok" {
		t.Fatalf("expected status=ok, got %v", body["status"])
	}
	if body["database"] != "booksDb" {
		t.Fatalf("expected database=booksDb, got %v", body["database"])
	}

	get(t, ts.URL+"/health", 200)
	get(t, ts.URL+"/nope", 404)
}

func TestCollections(t *testing.T) {
	ts := setup(t)

	names := decodeJSONArray(t, get(t, ts.URL+"/collections", 200).Body)
	if len(names) != 2 || names[0] != "authors" || names[1] != "books" {
		t.Fatalf("unexpected collections: %v", names)
	}

	books := decodeJSONArray(t, get(t, ts.URL+"/collections/books/documents", 200).Body)
	if len(books) != 10 {
		t.Fatalf("expected 10 books, got %d", len(books))
	}
	first := books[0].(map[string]any)
	if first["title"] != "Bodas de sangre" {
		t.Fatalf("expected insertion order, got %v", first["title"])
	}
	id, ok := first["_id"].(map[string]any)
	if !ok || id["$oid"] == nil {
		t.Fatalf("expected extended JSON _id, got %v", first["_id"])
	}
	angels := books[4].(map[string]any)
	years := angels["releaseYear"].([]any)
	if d := years[0].(map[string]any)["$date"]; d != "2000-01-01T00:00:00Z" {
		t.Fatalf("unexpected release year %v", d)
	}

	empty := decodeJSONArray(t, get(t, ts.URL+"/collections/missing/documents", 200).Body)
	if len(empty) != 0 {
		t.Fatalf("expected no documents, got %v", empty)
	}
}

func TestSchemas(t *testing.T) {
	ts := setup(t)

	all := decodeJSON(t, get(t, ts.URL+"/schemas", 200).Body)
	if _, ok := all["authors"]; !ok {
		t.Fatal("expected authors schema")
	}
	if _, ok := all["books"]; !ok {
		t.Fatal("expected books schema")
	}

	books := decodeJSON(t, get(t, ts.URL+"/schemas/books", 200).Body)
	required := books["required"].([]any)
	if len(required) != 3 {
		t.Fatalf("unexpected required list %v", required)
	}

	body := decodeJSON(t, get(t, ts.URL+"/schemas/missing", 404).Body)
	if body["detail"] == nil {
		t.Fatal("expected detail in 404 body")
	}
}

func TestQueries(t *testing.T) {
	ts := setup(t)

	list := decodeJSONArray(t, get(t, ts.URL+"/queries", 200).Body)
	if len(list) != len(catalog.Queries()) {
		t.Fatalf("expected %d queries, got %d", len(catalog.Queries()), len(list))
	}
	if list[1].(map[string]any)["name"] != "poetry-books" {
		t.Fatalf("unexpected query order: %v", list[1])
	}

	poetry := decodeJSONArray(t, get(t, ts.URL+"/queries/poetry-books", 200).Body)
	var titles []string
	for _, d := range poetry {
		doc := d.(map[string]any)
		if len(doc) != 2 {
			t.Fatalf("expected _id and title only, got %v", doc)
		}
		titles = append(titles, doc["title"].(string))
	}
	want := []string{"Romancero gitano", "Poeta en Nueva York", "Eldorado"}
	if len(titles) != len(want) {
		t.Fatalf("expected %v, got %v", want, titles)
	}
	for i := range want {
		if titles[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, titles)
		}
	}

	usa := decodeJSONArray(t, get(t, ts.URL+"/queries/usa-authors", 200).Body)
	if len(usa) != 2 {
		t.Fatalf("expected 2 USA authors, got %d", len(usa))
	}

	get(t, ts.URL+"/queries/nope", 404)
}

// brokenStore fails every read used by the handler.
type brokenStore struct {
	store.Store
}

var errBroken = errors.New("backend down")

func (brokenStore) ListCollections(context.Context) ([]string, error) { return nil, errBroken }

func (brokenStore) ListSchemas(context.Context) (map[string]map[string]any, error) {
	return nil, errBroken
}

func (brokenStore) Find(context.Context, string, query.Filter, query.Projection) iter.Seq2[store.Document, error] {
	return func(yield func(store.Document, error) bool) { yield(nil, errBroken) }
}

func TestStoreErrors(t *testing.T) {
	ts := httptest.NewServer(handler.New(brokenStore{}))
	defer ts.Close()

	for _, path := range []string{"/collections", "/schemas", "/collections/books/documents", "/queries/all-books"} {
		body := decodeJSON(t, get(t, ts.URL+path, 500).Body)
		if body["detail"] != errBroken.Error() {
			t.Fatalf("%s: unexpected detail %v", path, body["detail"])
		}
	}
}
