package checkpoint

import (
	"context"
	"sync"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is a Store that keeps checkpoints in memory
type MemoryStore struct {
	checkpoints struct {
		sync.Mutex
		*treemap.Map
	}
	closed bool
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	store := &MemoryStore{}
	store.checkpoints.Map = treemap.NewWith(utils.StringComparator)

	return store
}

// Save implements Store.Save
func (store *MemoryStore) Save(ctx context.Context, queryID string, continuation string) error {
	store.checkpoints.Lock()
	defer store.checkpoints.Unlock()

	if store.closed {
		return ErrClosed
	}

	store.checkpoints.Put(queryID, continuation)

	return nil
}

// Load implements Store.Load
func (store *MemoryStore) Load(ctx context.Context, queryID string) (string, error) {
	store.checkpoints.Lock()
	defer store.checkpoints.Unlock()

	if store.closed {
		return "", ErrClosed
	}

	continuation, ok := store.checkpoints.Get(queryID)

	if !ok {
		return "", ErrNotFound
	}

	return continuation.(string), nil
}

// Delete implements Store.Delete
func (store *MemoryStore) Delete(ctx context.Context, queryID string) error {
	store.checkpoints.Lock()
	defer store.checkpoints.Unlock()

	if store.closed {
		return ErrClosed
	}

	store.checkpoints.Remove(queryID)

	return nil
}

// Queries implements Store.Queries
func (store *MemoryStore) Queries(ctx context.Context) ([]string, error) {
	store.checkpoints.Lock()
	defer store.checkpoints.Unlock()

	if store.closed {
		return nil, ErrClosed
	}

	queries := make([]string, 0, store.checkpoints.Size())

	for _, key := range store.checkpoints.Keys() {
		queries = append(queries, key.(string))
	}

	return queries, nil
}

// Close implements Store.Close
func (store *MemoryStore) Close() error {
	store.checkpoints.Lock()
	defer store.checkpoints.Unlock()

	store.closed = true

	return nil
}
