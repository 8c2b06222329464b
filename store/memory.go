package store

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"sync"

	"github.com/stevemurr/booksdb/query"
)

// MemoryStore keeps everything in memory. Data is lost on restart.
// Safe for concurrent use.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
}

type memCollection struct {
	validator map[string]any
	docs      []Document
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]*memCollection)}
}

// collection returns the named collection, creating it without a
// validator on first write. Callers hold the write lock.
func (m *MemoryStore) collection(name string) *memCollection {
	c, ok := m.collections[name]
	if !ok {
		c = &memCollection{}
		m.collections[name] = c
	}
	return c
}

func (m *MemoryStore) CreateCollection(_ context.Context, name string, validator map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[name]; ok {
		return fmt.Errorf("%w: %s", ErrCollectionExists, name)
	}
	m.collections[name] = &memCollection{validator: copyDoc(validator)}
	return nil
}

func (m *MemoryStore) Drop(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.collections, name)
	return nil
}

func (m *MemoryStore) GetSchema(_ context.Context, collection string) (map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[collection]
	if !ok {
		return nil, nil
	}
	return copyDoc(c.validator), nil
}

func (m *MemoryStore) ListSchemas(_ context.Context) (map[string]map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[string]map[string]any)
	for name, c := range m.collections {
		if c.validator != nil {
			result[name] = copyDoc(c.validator)
		}
	}
	return result, nil
}

func (m *MemoryStore) ListCollections(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.collections))
	for name := range m.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemoryStore) InsertMany(_ context.Context, collection string, docs []Document) ([]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.collection(collection)
	accepted, ids, err := prepareInsert(c.validator, c.docs, docs)
	c.docs = append(c.docs, accepted...)
	return ids, err
}

func (m *MemoryStore) Find(_ context.Context, collection string, filter query.Filter, proj query.Projection) iter.Seq2[Document, error] {
	return func(yield func(Document, error) bool) {
		m.mu.RLock()
		var matches []Document
		if c, ok := m.collections[collection]; ok {
			matches = findMatches(c.docs, filter, proj)
		}
		m.mu.RUnlock()
		for _, d := range matches {
			if !yield(d, nil) {
				return
			}
		}
	}
}

func (m *MemoryStore) UpdateOne(_ context.Context, collection string, filter query.Filter, update query.Update) (UpdateResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[collection]
	if !ok {
		return UpdateResult{}, nil
	}
	i, next, res, err := updateFirst(c.docs, c.validator, filter, update)
	if err != nil || i < 0 {
		return res, err
	}
	c.docs[i] = next
	return res, nil
}

func (m *MemoryStore) DeleteMany(_ context.Context, collection string, filter query.Filter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[collection]
	if !ok {
		return 0, nil
	}
	kept, removed := splitMatches(c.docs, filter)
	c.docs = kept
	return int64(len(removed)), nil
}

func (m *MemoryStore) Close() error { return nil }
