// Package handler provides the read-only HTTP inspection surface over a
// booksdb store.
package handler

import (
	"encoding/json"
	"fmt"
	"iter"
	"net/http"

	"github.com/stevemurr/booksdb/catalog"
	"github.com/stevemurr/booksdb/query"
	"github.com/stevemurr/booksdb/store"
)

// Handler holds the server dependencies and registers routes.
type Handler struct {
	store store.Store
	mux   *http.ServeMux
}

// New creates a Handler and wires up all routes.
func New(s store.Store) *Handler {
	h := &Handler{store: s, mux: http.NewServeMux()}
	h.routes()
	return h
}

// ServeHTTP makes Handler an http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) routes() {
	h.mux.HandleFunc("GET /", h.root)
	h.mux.HandleFunc("GET /health", h.health)

	h.mux.HandleFunc("GET /collections", h.listCollections)
	h.mux.HandleFunc("GET /collections/{collection}/documents", h.listDocuments)

	h.mux.HandleFunc("GET /schemas", h.listSchemas)
	h.mux.HandleFunc("GET /schemas/{collection}", h.getSchema)

	h.mux.HandleFunc("GET /queries", h.listQueries)
	h.mux.HandleFunc("GET /queries/{name}", h.runQuery)
}

// ---------- helpers ----------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

// writeDocuments drains seq and writes it as an array of relaxed extended
// JSON documents. Nothing is written until seq is fully read, so a read
// error still yields a clean 500.
func writeDocuments(w http.ResponseWriter, seq iter.Seq2[store.Document, error]) {
	docs := []json.RawMessage{}
	for doc, err := range seq {
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		b, err := store.ExtJSON(doc)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		docs = append(docs, b)
	}
	writeJSON(w, http.StatusOK, docs)
}

// ---------- status endpoints ----------

func (h *Handler) root(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"service":  "booksdb",
		"database": catalog.Database,
	})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// ---------- collections ----------

func (h *Handler) listCollections(w http.ResponseWriter, r *http.Request) {
	names, err := h.store.ListCollections(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, names)
}

func (h *Handler) listDocuments(w http.ResponseWriter, r *http.Request) {
	collection := r.PathValue("collection")
	writeDocuments(w, h.store.Find(r.Context(), collection, query.All(), nil))
}

// ---------- schemas ----------

func (h *Handler) listSchemas(w http.ResponseWriter, r *http.Request) {
	schemas, err := h.store.ListSchemas(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if schemas == nil {
		schemas = map[string]map[string]any{}
	}
	writeJSON(w, http.StatusOK, schemas)
}

func (h *Handler) getSchema(w http.ResponseWriter, r *http.Request) {
	collection := r.PathValue("collection")
	s, err := h.store.GetSchema(r.Context(), collection)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if s == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no schema for collection %q", collection))
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// ---------- queries ----------

type queryInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Collection  string `json:"collection"`
	Filter      string `json:"filter"`
}

func (h *Handler) listQueries(w http.ResponseWriter, r *http.Request) {
	qs := catalog.Queries()
	out := make([]queryInfo, 0, len(qs))
	for _, q := range qs {
		out = append(out, queryInfo{
			Name:        q.Name,
			Description: q.Description,
			Collection:  q.Collection,
			Filter:      q.Filter.String(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) runQuery(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	q, ok := catalog.QueryByName(name)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown query %q", name))
		return
	}
	writeDocuments(w, q.Run(r.Context(), h.store))
}
