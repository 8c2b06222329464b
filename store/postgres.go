package store

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stevemurr/booksdb/query"
)

// PostgresStore keeps collections in two Postgres tables. Documents are
// stored as canonical extended JSON in a JSONB column so they stay
// readable from psql; filters run in process like the SQLite backend.
type PostgresStore struct {
	mu   sync.RWMutex
	pool *pgxpool.Pool
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS booksdb_collections (
		name TEXT PRIMARY KEY,
		validator JSONB
	)`,
	`CREATE TABLE IF NOT EXISTS booksdb_documents (
		seq BIGSERIAL PRIMARY KEY,
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		data JSONB NOT NULL,
		UNIQUE (collection, id)
	)`,
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	for _, stmt := range postgresSchema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("create tables: %w", err)
		}
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) validator(ctx context.Context, collection string) (map[string]any, bool, error) {
	var raw *string
	err := s.pool.QueryRow(ctx,
		"SELECT validator::text FROM booksdb_collections WHERE name = $1", collection,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if raw == nil {
		return nil, true, nil
	}
	v, err := unmarshalDocument([]byte(*raw))
	return v, true, err
}

func (s *PostgresStore) load(ctx context.Context, collection string) ([]Document, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT data::text FROM booksdb_documents WHERE collection = $1 ORDER BY seq", collection,
	)
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

func (s *PostgresStore) CreateCollection(ctx context.Context, name string, validator map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var raw *string
	if validator != nil {
		b, err := marshalDocument(validator)
		if err != nil {
			return err
		}
		str := string(b)
		raw = &str
	}
	tag, err := s.pool.Exec(ctx,
		"INSERT INTO booksdb_collections (name, validator) VALUES ($1, $2::jsonb) ON CONFLICT (name) DO NOTHING",
		name, raw,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrCollectionExists, name)
	}
	return nil
}

func (s *PostgresStore) Drop(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "DELETE FROM booksdb_documents WHERE collection = $1", name); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, "DELETE FROM booksdb_collections WHERE name = $1", name)
		return err
	})
}

func (s *PostgresStore) GetSchema(ctx context.Context, collection string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, _, err := s.validator(ctx, collection)
	return v, err
}

func (s *PostgresStore) ListSchemas(ctx context.Context) (map[string]map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.pool.Query(ctx,
		"SELECT name, validator::text FROM booksdb_collections WHERE validator IS NOT NULL",
	)
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

func (s *PostgresStore) ListCollections(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.pool.Query(ctx, "SELECT name FROM booksdb_collections ORDER BY name")
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (s *PostgresStore) InsertMany(ctx context.Context, collection string, docs []Document) ([]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	validator, _, err := s.validator(ctx, collection)
	if err != nil {
		return nil, err
	}
	existing, err := s.load(ctx, collection)
	if err != nil {
		return nil, err
	}
	accepted, ids, insertErr := prepareInsert(validator, existing, docs)

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			"INSERT INTO booksdb_collections (name) VALUES ($1) ON CONFLICT (name) DO NOTHING", collection,
		); err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for _, doc := range accepted {
			b, err := marshalDocument(doc)
			if err != nil {
				return err
			}
			batch.Queue(
				"INSERT INTO booksdb_documents (collection, id, data) VALUES ($1, $2, $3::jsonb)",
				collection, idKey(doc["_id"]), string(b),
			)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return nil, err
	}
	return ids, insertErr
}

func (s *PostgresStore) Find(ctx context.Context, collection string, filter query.Filter, proj query.Projection) iter.Seq2[Document, error] {
	return func(yield func(Document, error) bool) {
		s.mu.RLock()
		docs, err := s.load(ctx, collection)
		s.mu.RUnlock()
		seqOf(findMatches(docs, filter, proj), err)(yield)
	}
}

func (s *PostgresStore) UpdateOne(ctx context.Context, collection string, filter query.Filter, update query.Update) (UpdateResult, error) {
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
	_, err = s.pool.Exec(ctx,
		"UPDATE booksdb_documents SET data = $1::jsonb WHERE collection = $2 AND id = $3",
		string(b), collection, idKey(next["_id"]),
	)
	return res, err
}

func (s *PostgresStore) DeleteMany(ctx context.Context, collection string, filter query.Filter) (int64, error) {
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
	ids := make([]string, len(removed))
	for i, doc := range removed {
		ids[i] = idKey(doc["_id"])
	}
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM booksdb_documents WHERE collection = $1 AND id = ANY($2)",
		collection, ids,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
