package kv

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newMemoryStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewMemory(zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSetGetDelete(t *testing.T) {
	s := newMemoryStore(t)
	assert.True(t, s.IsMemory())

	require.NoError(t, s.Set("user:1", []byte("ada"), 0))
	got, err := s.Get("user:1")
	require.NoError(t, err)
	assert.Equal(t, []byte("ada"), got)

	ok, err := s.Exists("user:1")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Delete("user:1"))
	_, err = s.Get("user:1")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	ok, err = s.Exists("user:1")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, s.Delete("never-set"))
}

func TestEmptyKeyRejected(t *testing.T) {
	s := newMemoryStore(t)
	assert.ErrorIs(t, s.Set("", nil, 0), ErrInvalidKey)
	_, err := s.Get("")
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, err = s.Incr("", 1)
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, err = s.Exists("")
	assert.ErrorIs(t, err, ErrInvalidKey)
	assert.ErrorIs(t, s.Delete(""), ErrInvalidKey)
}

func TestTTLExpires(t *testing.T) {
	s := newMemoryStore(t)
	require.NoError(t, s.Set("session", []byte("x"), 3*time.Second))

	ok, err := s.Exists("session")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Eventually(t, func() bool {
		ok, err := s.Exists("session")
		return err == nil && !ok
	}, 8*time.Second, 100*time.Millisecond)
}

func TestIncr(t *testing.T) {
	s := newMemoryStore(t)

	v, err := s.Incr("hits", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	v, err = s.Incr("hits", 41)
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	v, err = s.Incr("hits", -50)
	require.NoError(t, err)
	assert.Equal(t, int64(-8), v)

	raw, err := s.Get("hits")
	require.NoError(t, err)
	n, err := DecodeCounter(raw)
	require.NoError(t, err)
	assert.Equal(t, int64(-8), n)

	require.NoError(t, s.Set("name", []byte("ada"), 0))
	_, err = s.Incr("name", 1)
	assert.ErrorIs(t, err, ErrNotCounter)
}

func TestCounterEncoding(t *testing.T) {
	assert.Equal(t, []byte{0x2A, 0, 0, 0, 0, 0, 0, 0}, EncodeCounter(42))
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, EncodeCounter(-1))

	_, err := DecodeCounter([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrNotCounter)
}

func TestBatch(t *testing.T) {
	s := newMemoryStore(t)
	require.NoError(t, s.BatchSet(map[string][]byte{
		"a": []byte("1"),
		"b": []byte("2"),
		"":  []byte("skipped"),
	}, 0))

	got, err := s.BatchGet([]string{"a", "b", "missing", ""})
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"a": []byte("1"), "b": []byte("2")}, got)

	require.NoError(t, s.BatchDelete([]string{"a", "missing"}))
	got, err = s.BatchGet([]string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"b": []byte("2")}, got)
}

func TestScan(t *testing.T) {
	s := newMemoryStore(t)
	for _, k := range []string{"user:2", "user:1", "order:1"} {
		require.NoError(t, s.Set(k, []byte("v"), 0))
	}

	keys, err := s.Scan("user:")
	require.NoError(t, err)
	assert.Equal(t, []string{"user:1", "user:2"}, keys)
}

func TestDiskStoreReopens(t *testing.T) {
	dir := t.TempDir()

	s, err := New(dir, nil)
	require.NoError(t, err)
	assert.False(t, s.IsMemory())
	require.NoError(t, s.Set("k", []byte("persisted"), 0))
	require.NoError(t, s.Close())

	s, err = New(dir, nil)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("persisted"), got)
}
