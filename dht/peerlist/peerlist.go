// Package peerlist keeps the peers closest to a single target, ordered by
// XOR distance and bounded in size.
package peerlist

import (
	"strings"

	"github.com/anacrolix/multiless"
	"github.com/google/btree"

	"github.com/james-lawrence/kad/dht/int256"
	"github.com/james-lawrence/kad/dht/krpc"
)

type Entry struct {
	ID       krpc.NodeID
	Distance int256.T
}

func entryLess(a, b Entry) bool {
	return multiless.New().Cmp(
		a.Distance.Cmp(b.Distance),
	).Cmp(
		strings.Compare(string(a.ID), string(b.ID)),
	).Less()
}

// New list tracking at most capacity peers, capacity <= 0 is unbounded.
func New(target int256.T, capacity int) *List {
	return &List{
		target:   target,
		capacity: capacity,
		entries:  btree.NewG(2, entryLess),
		index:    make(map[krpc.NodeID]Entry),
	}
}

// List is always sorted ascending by distance to the target and never exceeds
// its capacity. Not safe for concurrent use.
type List struct {
	target   int256.T
	capacity int
	entries  *btree.BTreeG[Entry]
	index    map[krpc.NodeID]Entry
}

// Add hashes the id into the metric space and inserts it.
func (t *List) Add(id krpc.NodeID) bool {
	return t.add(id, id.Key())
}

// AddNode inserts the node using its kademlia id. Reports whether the node is
// tracked once the list has been truncated.
func (t *List) AddNode(n krpc.NodeInfo) bool {
	return t.add(n.ID, n.Key())
}

func (t *List) add(id krpc.NodeID, kid int256.T) bool {
	e := Entry{ID: id, Distance: kid.Distance(t.target)}
	if prev, ok := t.index[id]; ok {
		t.entries.Delete(prev)
	}

	t.entries.ReplaceOrInsert(e)
	t.index[id] = e

	for t.capacity > 0 && t.entries.Len() > t.capacity {
		dropped, _ := t.entries.DeleteMax()
		delete(t.index, dropped.ID)
	}

	_, ok := t.index[id]
	return ok
}

// IsCloser reports whether a peer with the given id would improve the list,
// always true while the list has spare capacity.
func (t *List) IsCloser(kid int256.T) bool {
	if t.capacity <= 0 || t.entries.Len() < t.capacity {
		return true
	}

	farthest, _ := t.entries.Max()
	return kid.Distance(t.target).Cmp(farthest.Distance) < 0
}

func (t *List) Contains(id krpc.NodeID) bool {
	_, ok := t.index[id]
	return ok
}

func (t *List) Len() int {
	return t.entries.Len()
}

// Entries in ascending distance.
func (t *List) Entries() []Entry {
	ret := make([]Entry, 0, t.entries.Len())
	t.entries.Ascend(func(e Entry) bool {
		ret = append(ret, e)
		return true
	})
	return ret
}

// Peers ids in ascending distance.
func (t *List) Peers() []krpc.NodeID {
	ret := make([]krpc.NodeID, 0, t.entries.Len())
	t.entries.Ascend(func(e Entry) bool {
		ret = append(ret, e.ID)
		return true
	})
	return ret
}
