package store

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sync"

	"github.com/stevemurr/booksdb/query"
)

// SqliteStore stores all collections in a single SQLite database. Documents
// are kept as canonical extended JSON; filters run in process.
//
// Tables:
//
//	collections(name, validator)            PRIMARY KEY (name)
//	documents(seq, collection, id, data)    UNIQUE (collection, id)
type SqliteStore struct {
	mu sync.RWMutex
	db *sql.DB
}

func NewSqliteStore(dbPath string) (*SqliteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS collections (
		name TEXT PRIMARY KEY,
		validator TEXT
	)`); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS documents (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		data TEXT NOT NULL,
		UNIQUE (collection, id)
	)`); err != nil {
		db.Close()
		return nil, err
	}
	return &SqliteStore{db: db}, nil
}

func (s *SqliteStore) Close() error {
	return s.db.Close()
}

func (s *SqliteStore) validator(ctx context.Context, collection string) (map[string]any, bool, error) {
	var raw sql.NullString
	err := s.db.QueryRowContext(ctx, "SELECT validator FROM collections WHERE name = ?", collection).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if !raw.Valid {
		return nil, true, nil
	}
	v, err := unmarshalDocument([]byte(raw.String))
	return v, true, err
}

func (s *SqliteStore) load(ctx context.Context, collection string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT data FROM documents WHERE collection = ? ORDER BY seq", collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var docs []Document
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		doc, err := unmarshalDocument([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("decode %s document: %w", collection, err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *SqliteStore) CreateCollection(ctx context.Context, name string, validator map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok, err := s.validator(ctx, name); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("%w: %s", ErrCollectionExists, name)
	}
	var raw sql.NullString
	if validator != nil {
		b, err := marshalDocument(validator)
		if err != nil {
			return err
		}
		raw = sql.NullString{String: string(b), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, "INSERT INTO collections (name, validator) VALUES (?, ?)", name, raw)
	return err
}

func (s *SqliteStore) Drop(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE collection = ?", name); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM collections WHERE name = ?", name); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SqliteStore) GetSchema(ctx context.Context, collection string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, _, err := s.validator(ctx, collection)
	return v, err
}

func (s *SqliteStore) ListSchemas(ctx context.Context) (map[string]map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, "SELECT name, validator FROM collections WHERE validator IS NOT NULL")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := make(map[string]map[string]any)
	for rows.Next() {
		var name, raw string
		if err := rows.Scan(&name, &raw); err != nil {
			return nil, err
		}
		v, err := unmarshalDocument([]byte(raw))
		if err != nil {
			continue
		}
		result[name] = v
	}
	return result, rows.Err()
}

func (s *SqliteStore) ListCollections(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM collections ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *SqliteStore) InsertMany(ctx context.Context, collection string, docs []Document) ([]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	validator, ok, err := s.validator(ctx, collection)
	if err != nil {
		return nil, err
	}
	existing, err := s.load(ctx, collection)
	if err != nil {
		return nil, err
	}
	accepted, ids, insertErr := prepareInsert(validator, existing, docs)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	if !ok {
		if _, err := tx.ExecContext(ctx, "INSERT INTO collections (name) VALUES (?)", collection); err != nil {
			return nil, err
		}
	}
	for _, doc := range accepted {
		b, err := marshalDocument(doc)
		if err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO documents (collection, id, data) VALUES (?, ?, ?)",
			collection, idKey(doc["_id"]), string(b),
		); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ids, insertErr
}

func (s *SqliteStore) Find(ctx context.Context, collection string, filter query.Filter, proj query.Projection) iter.Seq2[Document, error] {
	return func(yield func(Document, error) bool) {
		s.mu.RLock()
		docs, err := s.load(ctx, collection)
		s.mu.RUnlock()
		seqOf(findMatches(docs, filter, proj), err)(yield)
	}
}

func (s *SqliteStore) UpdateOne(ctx context.Context, collection string, filter query.Filter, update query.Update) (UpdateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	validator, _, err := s.validator(ctx, collection)
	if err != nil {
		return UpdateResult{}, err
	}
	docs, err := s.load(ctx, collection)
	if err != nil {
		return UpdateResult{}, err
	}
	i, next, res, err := updateFirst(docs, validator, filter, update)
	if err != nil || i < 0 {
		return res, err
	}
	b, err := marshalDocument(next)
	if err != nil {
		return UpdateResult{}, err
	}
	_, err = s.db.ExecContext(ctx,
		"UPDATE documents SET data = ? WHERE collection = ? AND id = ?",
		string(b), collection, idKey(next["_id"]),
	)
	return res, err
}

func (s *SqliteStore) DeleteMany(ctx context.Context, collection string, filter query.Filter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	docs, err := s.load(ctx, collection)
	if err != nil {
		return 0, err
	}
	_, removed := splitMatches(docs, filter)
	if len(removed) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	for _, doc := range removed {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM documents WHERE collection = ? AND id = ?",
			collection, idKey(doc["_id"]),
		); err != nil {
			return 0, err
		}
	}
	return int64(len(removed)), tx.Commit()
}
