package kv

import "time"

// KV is the key-value surface the network service drives.
type KV interface {
	Set(key string, value []byte, ttl time.Duration) error
	Get(key string) ([]byte, error)
	Incr(key string, delta int64) (int64, error)
	Delete(key string) error
	Exists(key string) (bool, error)
	Scan(prefix string) ([]string, error)

	BatchSet(kvPairs map[string][]byte, ttl time.Duration) error
	BatchGet(keys []string) (map[string][]byte, error)
	BatchDelete(keys []string) error

	Close() error
}

var _ KV = (*Store)(nil)
