package checkpoint

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jrife/xpquery/utils/log"
	"github.com/jrife/xpquery/utils/uuid"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

var checkpointsBucket = []byte("checkpoints")

// BoltConfig configures a BoltStore
type BoltConfig struct {
	Path   string
	Logger *zap.Logger
}

var _ Store = (*BoltStore)(nil)

// BoltStore is a Store backed by a bbolt database file
type BoltStore struct {
	db     *bolt.DB
	logger *zap.Logger
}

// NewBoltStore opens or creates the database at config.Path
func NewBoltStore(config BoltConfig) (*BoltStore, error) {
	if config.Logger == nil {
		config.Logger = zap.L()
	}

	db, err := bolt.Open(config.Path, 0666, nil)

	if err != nil {
		return nil, fmt.Errorf("could not open bbolt store at %s: %s", config.Path, err)
	}

	if err := db.Update(func(txn *bolt.Tx) error {
		_, err := txn.CreateBucketIfNotExists(checkpointsBucket)

		return err
	}); err != nil {
		db.Close()

		return nil, fmt.Errorf("could not ensure checkpoints bucket exists: %s", err)
	}

	return &BoltStore{db: db, logger: config.Logger.With(zap.String("path", config.Path))}, nil
}

// NewTempBoltStore creates a store in a new file under
// the system temp directory. Purge removes it.
func NewTempBoltStore(logger *zap.Logger) (*BoltStore, error) {
	return NewBoltStore(BoltConfig{
		Path:   filepath.Join(os.TempDir(), fmt.Sprintf("xpquery-checkpoints-%s", uuid.MustUUID())),
		Logger: logger,
	})
}

// Save implements Store.Save
func (store *BoltStore) Save(ctx context.Context, queryID string, continuation string) error {
	logger := log.WithContext(ctx, store.logger).With(zap.String("operation", "Save"), zap.String("query", queryID))
	logger.Debug("start")
	defer logger.Debug("return")

	err := store.db.Update(func(txn *bolt.Tx) error {
		return txn.Bucket(checkpointsBucket).Put([]byte(queryID), []byte(continuation))
	})

	if err != nil {
		return wrapError("could not save checkpoint", err)
	}

	return nil
}

// Load implements Store.Load
func (store *BoltStore) Load(ctx context.Context, queryID string) (string, error) {
	logger := log.WithContext(ctx, store.logger).With(zap.String("operation", "Load"), zap.String("query", queryID))
	logger.Debug("start")
	defer logger.Debug("return")

	var continuation string

	err := store.db.View(func(txn *bolt.Tx) error {
		value := txn.Bucket(checkpointsBucket).Get([]byte(queryID))

		if value == nil {
			return ErrNotFound
		}

		continuation = string(value)

		return nil
	})

	if err != nil {
		return "", wrapError("could not load checkpoint", err)
	}

	return continuation, nil
}

// Delete implements Store.Delete
func (store *BoltStore) Delete(ctx context.Context, queryID string) error {
	logger := log.WithContext(ctx, store.logger).With(zap.String("operation", "Delete"), zap.String("query", queryID))
	logger.Debug("start")
	defer logger.Debug("return")

	err := store.db.Update(func(txn *bolt.Tx) error {
		return txn.Bucket(checkpointsBucket).Delete([]byte(queryID))
	})

	if err != nil {
		return wrapError("could not delete checkpoint", err)
	}

	return nil
}

// Queries implements Store.Queries
func (store *BoltStore) Queries(ctx context.Context) ([]string, error) {
	queries := []string{}

	err := store.db.View(func(txn *bolt.Tx) error {
		return txn.Bucket(checkpointsBucket).ForEach(func(k, v []byte) error {
			queries = append(queries, string(k))

			return nil
		})
	})

	if err != nil {
		return nil, wrapError("could not list checkpoints", err)
	}

	return queries, nil
}

// Close implements Store.Close
func (store *BoltStore) Close() error {
	return store.db.Close()
}

// Purge closes the store and removes its file
func (store *BoltStore) Purge() error {
	path := store.db.Path()

	if err := store.Close(); err != nil {
		return fmt.Errorf("could not close store: %s", err)
	}

	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("could not remove path %s: %s", path, err)
	}

	return nil
}

func wrapError(wrap string, err error) error {
	switch err {
	case bolt.ErrDatabaseNotOpen:
		return ErrClosed
	case ErrNotFound:
		fallthrough
	case nil:
		return err
	}

	return fmt.Errorf("%s: %w", wrap, err)
}
