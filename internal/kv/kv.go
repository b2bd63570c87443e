package kv

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/skshohagmiah/sockit/pkg/buffer"
)

var (
	ErrKeyNotFound = errors.New("key not found")
	ErrInvalidKey  = errors.New("invalid key")
	ErrNotCounter  = errors.New("value is not a counter")
)

// counterSize is the encoded size of a counter value.
const counterSize = buffer.SizeInt64

// Store is a badger-backed KV, on disk or purely in memory.
type Store struct {
	db       *badger.DB
	isMemory bool
}

// New opens a store at path.
func New(path string, logger *zap.Logger) (*Store, error) {
	opts := badger.DefaultOptions(path).
		WithLogger(newBadgerLogger(logger)).
		WithNumVersionsToKeep(1).
		WithSyncWrites(false).
		WithDetectConflicts(false).
		WithCompactL0OnClose(false)
	return open(opts, false)
}

// NewMemory opens a store that keeps everything in memory.
func NewMemory(logger *zap.Logger) (*Store, error) {
	opts := badger.DefaultOptions("").
		WithInMemory(true).
		WithLogger(newBadgerLogger(logger))
	return open(opts, true)
}

func open(opts badger.Options, isMemory bool) (*Store, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Store{db: db, isMemory: isMemory}, nil
}

// IsMemory reports whether the store was opened with NewMemory.
func (s *Store) IsMemory() bool { return s.isMemory }

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Set stores value under key. A positive ttl expires the key.
func (s *Store) Set(key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return ErrInvalidKey
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(newEntry(key, value, ttl))
	})
}

// Get returns a copy of the value under key.
func (s *Store) Get(key string) ([]byte, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}

	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrKeyNotFound
	}
	return value, err
}

// Incr adds delta to the counter under key and returns the new value. A
// missing key counts as zero.
func (s *Store) Incr(key string, delta int64) (int64, error) {
	if key == "" {
		return 0, ErrInvalidKey
	}

	var next int64
	err := s.db.Update(func(txn *badger.Txn) error {
		var current int64
		item, err := txn.Get([]byte(key))
		switch {
		case err == nil:
			err = item.Value(func(val []byte) error {
				var derr error
				current, derr = DecodeCounter(val)
				return derr
			})
			if err != nil {
				return err
			}
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		next = current + delta
		return txn.Set([]byte(key), EncodeCounter(next))
	})
	return next, err
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Exists reports whether key holds a live value.
func (s *Store) Exists(key string) (bool, error) {
	if key == "" {
		return false, ErrInvalidKey
	}
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Scan returns the keys starting with prefix in key order.
func (s *Store) Scan(prefix string) ([]string, error) {
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)

		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	return keys, err
}

// BatchSet stores every pair through one write batch. Empty keys are
// skipped.
func (s *Store) BatchSet(kvPairs map[string][]byte, ttl time.Duration) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for key, value := range kvPairs {
		if key == "" {
			continue
		}
		if err := wb.SetEntry(newEntry(key, value, ttl)); err != nil {
			return err
		}
	}
	return wb.Flush()
}

// BatchGet returns the values of the keys that exist. Missing keys are left
// out of the result.
func (s *Store) BatchGet(keys []string) (map[string][]byte, error) {
	result := make(map[string][]byte, len(keys))
	err := s.db.View(func(txn *badger.Txn) error {
		for _, key := range keys {
			if key == "" {
				continue
			}
			item, err := txn.Get([]byte(key))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if result[key], err = item.ValueCopy(nil); err != nil {
				return err
			}
		}
		return nil
	})
	return result, err
}

// BatchDelete removes keys through one write batch.
func (s *Store) BatchDelete(keys []string) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := wb.Delete([]byte(key)); err != nil {
			return err
		}
	}
	return wb.Flush()
}

func newEntry(key string, value []byte, ttl time.Duration) *badger.Entry {
	e := badger.NewEntry([]byte(key), value)
	if ttl > 0 {
		e = e.WithTTL(ttl)
	}
	return e
}

// EncodeCounter lays a counter out as one little-endian int64 field.
func EncodeCounter(v int64) []byte {
	b := buffer.MustNew(counterSize, counterSize)
	_ = b.WriteInt64(v)
	return b.Bytes()
}

// DecodeCounter reads a value written by EncodeCounter.
func DecodeCounter(val []byte) (int64, error) {
	if len(val) != counterSize {
		return 0, ErrNotCounter
	}
	b, err := buffer.Wrap(val, counterSize)
	if err != nil {
		return 0, err
	}
	return b.ReadInt64()
}
