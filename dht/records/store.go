// Package records is the local key to record table consulted by PUT and GET
// handlers. For a given key only the record with the greatest timestamp is
// retained; writes carrying an equal or older timestamp are rejected.
package records

import (
	"fmt"
	"io"
	"iter"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/immutable"

	"github.com/james-lawrence/kad/dht/int256"
	"github.com/james-lawrence/kad/internal/atomicx"
)

type Record struct {
	Key       int256.T
	Value     []byte
	Timestamp time.Time
	// IsOwnRecord marks records authored by the local node; they are exempt
	// from verification and are republished periodically.
	IsOwnRecord bool
	// NeedsVerify marks third party records whose authenticity has not been
	// checked yet.
	NeedsVerify bool
}

// NewerThan reports whether the record supersedes other.
func (r Record) NewerThan(other Record) bool {
	return r.Timestamp.After(other.Timestamp)
}

type PutOptions struct {
	NeedsVerify bool
	IsOwnRecord bool
}

type keyHasher struct{}

func (keyHasher) Hash(k int256.T) uint32 {
	b := k.AsByteArray()
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func (keyHasher) Equal(a, b int256.T) bool {
	return a.Equal(b)
}

func NewStore() *Store {
	return &Store{
		snapshot: atomicx.Pointer(*immutable.NewMap[int256.T, Record](keyHasher{})),
	}
}

// Store readers work off an immutable snapshot, writers serialize on mu so the
// timestamp check and the write happen atomically.
type Store struct {
	mu       sync.Mutex
	snapshot *atomic.Pointer[immutable.Map[int256.T, Record]]
}

// Put stores the record unless a record with an equal or newer timestamp is
// already present. When rejected the stored record is returned.
func (t *Store) Put(r Record, opts PutOptions) (existing Record, accepted bool) {
	r.NeedsVerify = opts.NeedsVerify && !opts.IsOwnRecord
	r.IsOwnRecord = opts.IsOwnRecord

	t.mu.Lock()
	defer t.mu.Unlock()

	current := t.snapshot.Load()
	if existing, ok := current.Get(r.Key); ok && !r.NewerThan(existing) {
		return existing, false
	}

	t.snapshot.Store(current.Set(r.Key, r))
	return r, true
}

func (t *Store) Get(key int256.T) (Record, bool) {
	return t.snapshot.Load().Get(key)
}

func (t *Store) Len() int {
	return t.snapshot.Load().Len()
}

// MarkVerified clears the verification flag, provided the record has not been
// replaced since it was handed to the verifier.
func (t *Store) MarkVerified(key int256.T, ts time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	current := t.snapshot.Load()
	r, ok := current.Get(key)
	if !ok || !r.Timestamp.Equal(ts) {
		return false
	}

	r.NeedsVerify = false
	t.snapshot.Store(current.Set(key, r))
	return true
}

// Delete drops the record, typically after it failed verification.
func (t *Store) Delete(key int256.T, ts time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	current := t.snapshot.Load()
	r, ok := current.Get(key)
	if !ok || !r.Timestamp.Equal(ts) {
		return false
	}

	t.snapshot.Store(current.Delete(key))
	return true
}

// Unverified iterates the records awaiting verification.
func (t *Store) Unverified() iter.Seq[Record] {
	return t.filter(func(r Record) bool { return r.NeedsVerify })
}

// Own iterates the records authored locally, the republish set.
func (t *Store) Own() iter.Seq[Record] {
	return t.filter(func(r Record) bool { return r.IsOwnRecord })
}

func (t *Store) filter(match func(Record) bool) iter.Seq[Record] {
	snapshot := t.snapshot.Load()
	return func(yield func(Record) bool) {
		for i := snapshot.Iterator(); !i.Done(); {
			_, r, _ := i.Next()
			if !match(r) {
				continue
			}

			if !yield(r) {
				return
			}
		}
	}
}

func (t *Store) WriteDebug(w io.Writer) {
	var all []Record
	for r := range t.filter(func(Record) bool { return true }) {
		all = append(all, r)
	}

	slices.SortFunc(all, func(a, b Record) int {
		return a.Key.Cmp(b.Key)
	})

	fmt.Fprintf(w, "total count: %v\n\n", len(all))
	for _, r := range all {
		fmt.Fprintf(w, "%v (ts: %v, own: %t, verify: %t, size: %d)\n", r.Key, r.Timestamp.UTC().Format(time.RFC3339Nano), r.IsOwnRecord, r.NeedsVerify, len(r.Value))
	}
	fmt.Fprintln(w)
}
