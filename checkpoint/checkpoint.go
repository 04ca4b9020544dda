// Package checkpoint persists query continuations so that a
// query can be resumed by id after the process that started
// it goes away.
package checkpoint

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Load when no continuation
	// has been saved for a query
	ErrNotFound = errors.New("no checkpoint for query")
	// ErrClosed is returned by operations on a closed store
	ErrClosed = errors.New("checkpoint store is closed")
)

// Store saves the latest continuation of each query
type Store interface {
	// Save replaces the continuation saved for queryID
	Save(ctx context.Context, queryID string, continuation string) error
	// Load returns the continuation saved for queryID
	// or ErrNotFound
	Load(ctx context.Context, queryID string) (string, error)
	// Delete removes the continuation saved for queryID.
	// Deleting a query without a checkpoint is not an error.
	Delete(ctx context.Context, queryID string) error
	// Queries lists the ids of all saved queries in
	// ascending order
	Queries(ctx context.Context) ([]string, error)
	// Close releases any resources held by the store
	Close() error
}
