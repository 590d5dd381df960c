package kvstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenInsertsAnchors(t *testing.T) {
	s := openTestStore(t)

	for _, prefix := range anchorPrefixes {
		v, ok, err := s.Get([]byte(prefix))
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, anchorValue, v)
	}
}

func TestPutAtomicWriteAndDelete(t *testing.T) {
	s := openTestStore(t)

	err := s.PutAtomic([]KV{
		{Key: []byte(PrefixUUIDIndex + "a"), Value: []byte("1")},
		{Key: []byte(PrefixUUIDIndex + "b"), Value: []byte("2")},
	}, nil)
	require.NoError(t, err)

	v, ok, err := s.Get([]byte(PrefixUUIDIndex + "a"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("1"), v)

	err = s.PutAtomic(nil, [][]byte{[]byte(PrefixUUIDIndex + "a")})
	require.NoError(t, err)

	_, ok, err = s.Get([]byte(PrefixUUIDIndex + "a"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetMissingKeyReturnsNotFound(t *testing.T) {
	s := openTestStore(t)

	v, ok, err := s.Get([]byte(PrefixHandleIndex + "nope"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, v)
}

func TestScanPrefixSkipsAnchorAndOrdersKeys(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.PutBatch([]KV{
		{Key: []byte(PrefixUUIDIndex + "c"), Value: []byte("3")},
		{Key: []byte(PrefixUUIDIndex + "a"), Value: []byte("1")},
		{Key: []byte(PrefixUUIDIndex + "b"), Value: []byte("2")},
	}))

	var keys []string
	err := s.ScanPrefix([]byte(PrefixUUIDIndex), func(key, value []byte) error {
		keys = append(keys, string(key))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		PrefixUUIDIndex + "a",
		PrefixUUIDIndex + "b",
		PrefixUUIDIndex + "c",
	}, keys)
}

func TestScanPrefixPropagatesCallbackError(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.PutBatch([]KV{{Key: []byte(PrefixTxnLog + "x"), Value: []byte("v")}}))

	sentinel := assertErr{}
	err := s.ScanPrefix([]byte(PrefixTxnLog), func(key, value []byte) error {
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
}

type assertErr struct{}

func (assertErr) Error() string { return "stop" }
