package store

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/stevemurr/booksdb/query"
)

// JsonFileStore stores each collection as a separate extended JSON file on
// disk.
//
// Layout:
//
//	data_dir/
//	  _schemas.json   # validator registry
//	  authors.json    # "authors" collection
//	  books.json      # "books" collection
type JsonFileStore struct {
	mu  sync.RWMutex
	dir string
}

func NewJsonFileStore(dir string) (*JsonFileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &JsonFileStore{dir: dir}, nil
}

func (s *JsonFileStore) collectionPath(collection string) string {
	return filepath.Join(s.dir, collection+".json")
}

func (s *JsonFileStore) schemasPath() string {
	return filepath.Join(s.dir, "_schemas.json")
}

func (s *JsonFileStore) exists(collection string) bool {
	_, err := os.Stat(s.collectionPath(collection))
	return err == nil
}

func (s *JsonFileStore) loadCollection(collection string) ([]Document, error) {
	data, err := os.ReadFile(s.collectionPath(collection))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	docs, err := unmarshalDocuments(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", collection, err)
	}
	return docs, nil
}

func (s *JsonFileStore) saveCollection(collection string, docs []Document) error {
	b, err := marshalDocuments(docs)
	if err != nil {
		return err
	}
	return os.WriteFile(s.collectionPath(collection), b, 0o644)
}

func (s *JsonFileStore) loadSchemas() (map[string]any, error) {
	data, err := os.ReadFile(s.schemasPath())
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}
	return unmarshalDocument(data)
}

func (s *JsonFileStore) saveSchemas(schemas map[string]any) error {
	b, err := marshalDocument(schemas)
	if err != nil {
		return err
	}
	return os.WriteFile(s.schemasPath(), b, 0o644)
}

func (s *JsonFileStore) validator(collection string) (map[string]any, error) {
	schemas, err := s.loadSchemas()
	if err != nil {
		return nil, err
	}
	v, _ := schemas[collection].(map[string]any)
	return v, nil
}

func (s *JsonFileStore) CreateCollection(_ context.Context, name string, validator map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exists(name) {
		return fmt.Errorf("%w: %s", ErrCollectionExists, name)
	}
	if validator != nil {
		schemas, err := s.loadSchemas()
		if err != nil {
			return err
		}
		schemas[name] = validator
		if err := s.saveSchemas(schemas); err != nil {
			return err
		}
	}
	return s.saveCollection(name, nil)
}

func (s *JsonFileStore) Drop(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.collectionPath(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	schemas, err := s.loadSchemas()
	if err != nil {
		return err
	}
	if _, ok := schemas[name]; !ok {
		return nil
	}
	delete(schemas, name)
	return s.saveSchemas(schemas)
}

func (s *JsonFileStore) GetSchema(_ context.Context, collection string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.validator(collection)
}

func (s *JsonFileStore) ListSchemas(_ context.Context) (map[string]map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, err := s.loadSchemas()
	if err != nil {
		return nil, err
	}
	result := make(map[string]map[string]any, len(raw))
	for k, v := range raw {
		if schema, ok := v.(map[string]any); ok {
			result[k] = schema
		}
	}
	return result, nil
}

func (s *JsonFileStore) ListCollections(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(names)
	return names, nil
}

func (s *JsonFileStore) InsertMany(_ context.Context, collection string, docs []Document) ([]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, err := s.loadCollection(collection)
	if err != nil {
		return nil, err
	}
	validator, err := s.validator(collection)
	if err != nil {
		return nil, err
	}
	accepted, ids, insertErr := prepareInsert(validator, existing, docs)
	if len(accepted) > 0 || !s.exists(collection) {
		if err := s.saveCollection(collection, append(existing, accepted...)); err != nil {
			return nil, err
		}
	}
	return ids, insertErr
}

func (s *JsonFileStore) Find(_ context.Context, collection string, filter query.Filter, proj query.Projection) iter.Seq2[Document, error] {
	return func(yield func(Document, error) bool) {
		s.mu.RLock()
		docs, err := s.loadCollection(collection)
		s.mu.RUnlock()
		seqOf(findMatches(docs, filter, proj), err)(yield)
	}
}

func (s *JsonFileStore) UpdateOne(_ context.Context, collection string, filter query.Filter, update query.Update) (UpdateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	docs, err := s.loadCollection(collection)
	if err != nil {
		return UpdateResult{}, err
	}
	validator, err := s.validator(collection)
	if err != nil {
		return UpdateResult{}, err
	}
	i, next, res, err := updateFirst(docs, validator, filter, update)
	if err != nil || i < 0 {
		return res, err
	}
	docs[i] = next
	return res, s.saveCollection(collection, docs)
}

func (s *JsonFileStore) DeleteMany(_ context.Context, collection string, filter query.Filter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	docs, err := s.loadCollection(collection)
	if err != nil {
		return 0, err
	}
	kept, removed := splitMatches(docs, filter)
	if len(removed) == 0 {
		return 0, nil
	}
	return int64(len(removed)), s.saveCollection(collection, kept)
}

func (s *JsonFileStore) Close() error { return nil }
