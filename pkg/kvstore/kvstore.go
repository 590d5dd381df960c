// Package kvstore adapts a durable, batched, atomically-writable
// sorted key-value store for use by the identity map and transaction log.
//
// Grounded on the badger transaction wrapper in
// pkg/metadata/store/badger/transaction.go: every write goes through
// db.Update(func(txn *badger.Txn) error {...}) so a batch is either fully
// applied or not applied at all, and every key is built from a small,
// disjoint set of ASCII prefixes the way pkg/metadata/store/badger/encoding.go
// partitions its own key space.
package kvstore

import (
	"bytes"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/txnfsal/txnfsal/internal/logger"
	"github.com/txnfsal/txnfsal/pkg/fsal"
)

// Key space prefixes. Each is followed by raw binary (a UUID, a host-handle,
// or a big-endian transaction ID) — never further ASCII structure.
const (
	PrefixUUIDIndex   = "uuid-" // UUID -> host-handle
	PrefixHandleIndex = "hdl-"  // host-handle -> UUID
	PrefixTxnLog      = "txn-"  // big-endian txn_id -> serialized record
	KeyNextUUID       = "__next_uuid__"
)

// anchorPrefixes lists every namespace that carries a sentinel anchor value,
// inserted at Open so ScanPrefix always has a well-defined lower bound even
// before the first real key in that namespace exists.
var anchorPrefixes = []string{PrefixUUIDIndex, PrefixHandleIndex, PrefixTxnLog}

var anchorValue = []byte{0x00}

// KV is a single key/value pair, used for batched writes.
type KV struct {
	Key   []byte
	Value []byte
}

// Store is a badger-backed implementation of the key-value adapter.
type Store struct {
	db *badger.DB
}

// Open opens (creating if necessary) the badger database at path and
// ensures every namespace prefix carries its sentinel anchor.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fsal.NewStorageError(fmt.Sprintf("open kv store: %v", err))
	}
	s := &Store{db: db}
	if err := s.ensureAnchors(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureAnchors() error {
	return s.db.Update(func(txn *badger.Txn) error {
		for _, prefix := range anchorPrefixes {
			key := []byte(prefix)
			if _, err := txn.Get(key); err == badger.ErrKeyNotFound {
				if err := txn.Set(key, anchorValue); err != nil {
					return err
				}
			} else if err != nil {
				return err
			}
		}
		return nil
	})
}

// Close releases the underlying database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fsal.NewStorageError(fmt.Sprintf("close kv store: %v", err))
	}
	return nil
}

// Get returns the value for key, and false if it does not exist.
func (s *Store) Get(key []byte) ([]byte, bool, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			value = append([]byte(nil), v...)
			return nil
		})
	})
	if err != nil {
		return nil, false, fsal.NewStorageError(fmt.Sprintf("get: %v", err))
	}
	return value, value != nil, nil
}

// PutBatch durably writes every pair in a single transaction.
func (s *Store) PutBatch(pairs []KV) error {
	return s.PutAtomic(pairs, nil)
}

// Delete removes a single key. Deleting an absent key is not an error.
func (s *Store) Delete(key []byte) error {
	return s.DeleteBatch([][]byte{key})
}

// DeleteBatch removes every key in a single transaction.
func (s *Store) DeleteBatch(keys [][]byte) error {
	return s.PutAtomic(nil, keys)
}

// PutAtomic applies every write and every deletion in a single transaction:
// either all of them land durably, or none do. This is the only write path
// the identity map's commit() and the transaction log's append()/remove()
// use, so a crash mid-batch never leaves a half-applied compound visible.
func (s *Store) PutAtomic(writes []KV, deletes [][]byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, kv := range writes {
			if err := txn.Set(kv.Key, kv.Value); err != nil {
				return err
			}
		}
		for _, key := range deletes {
			if err := txn.Delete(key); err != nil && err != badger.ErrKeyNotFound {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logger.Error("kv batch write failed", logger.Err(err))
		return fsal.NewStorageError(fmt.Sprintf("put_atomic: %v", err))
	}
	return nil
}

// ScanPrefix invokes fn for every key under prefix in sorted order,
// skipping the namespace's own sentinel anchor. fn may stop iteration early
// by returning a non-nil error, which ScanPrefix then returns unwrapped.
func (s *Store) ScanPrefix(prefix []byte, fn func(key, value []byte) error) error {
	var callbackErr error
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			if bytes.Equal(key, prefix) {
				continue // the namespace's sentinel anchor
			}
			var value []byte
			if err := item.Value(func(v []byte) error {
				value = append([]byte(nil), v...)
				return nil
			}); err != nil {
				return err
			}
			if err := fn(key, value); err != nil {
				callbackErr = err
				return err
			}
		}
		return nil
	})
	if callbackErr != nil {
		return callbackErr
	}
	if err != nil {
		return fsal.NewStorageError(fmt.Sprintf("scan_prefix: %v", err))
	}
	return nil
}
