package main

import (
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// IndexCache persists computed session indexes in BadgerDB so repeat
// queries skip re-parsing unchanged transcripts. Every entry is
// recomputable from its session; a stale or missing cache only costs a
// re-parse. Entries are keyed by session id and validated against the
// record's content fingerprint on read.
type IndexCache struct {
	db *badger.DB
}

// OpenIndexCache opens (or creates) the cache database in dirPath.
func OpenIndexCache(dirPath string) (*IndexCache, error) {
	opts := badger.DefaultOptions(dirPath).
		WithLoggingLevel(badger.ERROR)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open index cache: %w", err)
	}

	return &IndexCache{db: db}, nil
}

// Close closes the BadgerDB instance.
func (c *IndexCache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Get returns the cached index for a session if its fingerprint still
// matches the on-disk record.
func (c *IndexCache) Get(sessionID, fingerprint string) (*SessionIndex, bool) {
	var idx SessionIndex

	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(sessionID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &idx)
		})
	})
	if err != nil {
		return nil, false
	}
	if idx.Fingerprint != fingerprint {
		return nil, false
	}

	return &idx, true
}

// Put stores a freshly built index, replacing any previous entry for the
// session.
func (c *IndexCache) Put(idx *SessionIndex) error {
	return c.db.Update(func(txn *badger.Txn) error {
		data, err := json.Marshal(idx)
		if err != nil {
			return fmt.Errorf("failed to marshal index for %q: %w", idx.SessionID, err)
		}
		return txn.Set([]byte(idx.SessionID), data)
	})
}

// Prune drops cache entries for sessions no longer present in the store.
func (c *IndexCache) Prune(live map[string]struct{}) error {
	var stale [][]byte

	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			if _, ok := live[string(key)]; !ok {
				stale = append(stale, key)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if len(stale) == 0 {
		return nil
	}

	return c.db.Update(func(txn *badger.Txn) error {
		for _, key := range stale {
			if err := txn.Delete(key); err != nil && err != badger.ErrKeyNotFound {
				return err
			}
		}
		return nil
	})
}
