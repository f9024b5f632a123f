package database

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// NewBadger opens an embedded badger database. An empty path or inMemory
// keeps everything in RAM.
func NewBadger(path string, inMemory bool) (*badger.DB, error) {
	opts := badger.DefaultOptions(path)
	if inMemory || path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}

	opts = opts.
		WithLogger(nil).
		WithSyncWrites(!inMemory && path != "").
		WithMemTableSize(16 << 20).
		WithValueLogFileSize(64 << 20).
		WithNumMemtables(2).
		WithBlockCacheSize(32 << 20).
		WithIndexCacheSize(16 << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger at %q: %w", path, err)
	}
	return db, nil
}
