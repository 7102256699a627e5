package records

import (
	"bytes"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/james-lawrence/kad/dht/int256"
)

func record(key int256.T, value string, ts int64) Record {
	return Record{Key: key, Value: []byte(value), Timestamp: time.UnixMilli(ts)}
}

func TestStorePut(t *testing.T) {
	key := int256.New("content")

	t.Run("newer record replaces older", func(t *testing.T) {
		s := NewStore()
		r1 := record(key, "r1", 1)
		r2 := record(key, "r2", 2)

		_, ok := s.Put(r1, PutOptions{NeedsVerify: true})
		require.True(t, ok)
		stored, ok := s.Put(r2, PutOptions{NeedsVerify: true})
		require.True(t, ok)
		require.Equal(t, []byte("r2"), stored.Value)

		current, ok := s.Get(key)
		require.True(t, ok)
		require.Equal(t, []byte("r2"), current.Value)
	})

	t.Run("older record is rejected with the newer one", func(t *testing.T) {
		s := NewStore()
		r1 := record(key, "r1", 1)
		r2 := record(key, "r2", 2)

		_, ok := s.Put(r2, PutOptions{})
		require.True(t, ok)
		existing, ok := s.Put(r1, PutOptions{})
		require.False(t, ok)
		require.Equal(t, []byte("r2"), existing.Value)

		current, _ := s.Get(key)
		require.Equal(t, []byte("r2"), current.Value)
	})

	t.Run("equal timestamp is rejected", func(t *testing.T) {
		s := NewStore()
		_, ok := s.Put(record(key, "first", 5), PutOptions{})
		require.True(t, ok)
		existing, ok := s.Put(record(key, "second", 5), PutOptions{})
		require.False(t, ok)
		require.Equal(t, []byte("first"), existing.Value)
	})

	t.Run("missing key", func(t *testing.T) {
		_, ok := NewStore().Get(key)
		require.False(t, ok)
	})

	t.Run("own records are never flagged for verification", func(t *testing.T) {
		s := NewStore()
		stored, ok := s.Put(record(key, "mine", 1), PutOptions{NeedsVerify: true, IsOwnRecord: true})
		require.True(t, ok)
		require.True(t, stored.IsOwnRecord)
		require.False(t, stored.NeedsVerify)
	})
}

func TestStoreConcurrentPut(t *testing.T) {
	const writers = 64
	var (
		s        = NewStore()
		key      = int256.New("contended")
		accepted atomic.Int32
		wg       sync.WaitGroup
	)

	// every writer carries the same timestamp, exactly one may win.
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := s.Put(record(key, string(rune('a'+i%26)), 10), PutOptions{}); ok {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, accepted.Load())
	require.Equal(t, 1, s.Len())
}

func TestStoreVerification(t *testing.T) {
	s := NewStore()
	a := record(int256.New("a"), "a", 1)
	b := record(int256.New("b"), "b", 1)
	c := record(int256.New("c"), "c", 1)

	s.Put(a, PutOptions{NeedsVerify: true})
	s.Put(b, PutOptions{NeedsVerify: true})
	s.Put(c, PutOptions{IsOwnRecord: true})

	require.Len(t, slices.Collect(s.Unverified()), 2)
	require.Len(t, slices.Collect(s.Own()), 1)

	t.Run("stale verification is ignored", func(t *testing.T) {
		require.False(t, s.MarkVerified(a.Key, time.UnixMilli(2)))
		require.Len(t, slices.Collect(s.Unverified()), 2)
	})

	require.True(t, s.MarkVerified(a.Key, a.Timestamp))
	unverified := slices.Collect(s.Unverified())
	require.Len(t, unverified, 1)
	require.Equal(t, b.Key, unverified[0].Key)

	require.True(t, s.Delete(b.Key, b.Timestamp))
	require.False(t, s.Delete(b.Key, b.Timestamp))
	require.Empty(t, slices.Collect(s.Unverified()))
	require.Equal(t, 2, s.Len())
}

func TestStoreWriteDebug(t *testing.T) {
	s := NewStore()
	s.Put(record(int256.New("a"), "a", 1), PutOptions{})
	var buf bytes.Buffer
	s.WriteDebug(&buf)
	require.Contains(t, buf.String(), "total count: 1")
}
