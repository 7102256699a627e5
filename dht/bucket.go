package dht

import (
	"iter"
	"slices"
	"time"

	"github.com/james-lawrence/kad/dht/krpc"
)

type entry struct {
	info     krpc.NodeInfo
	lastSeen time.Time
}

// bucket entries are ordered least recently seen first.
type bucket struct {
	entries []entry
}

func (b *bucket) Len() int {
	return len(b.entries)
}

func (b *bucket) find(id krpc.NodeID) int {
	return slices.IndexFunc(b.entries, func(e entry) bool {
		return e.info.ID == id
	})
}

func (b *bucket) Get(id krpc.NodeID) (krpc.NodeInfo, bool) {
	if idx := b.find(id); idx >= 0 {
		return b.entries[idx].info, true
	}

	return krpc.NodeInfo{}, false
}

// Touch updates the contact and moves it to the most recently seen position.
// Returns false when the node is not present.
func (b *bucket) Touch(n krpc.NodeInfo, ts time.Time) bool {
	idx := b.find(n.ID)
	if idx < 0 {
		return false
	}

	b.entries = append(slices.Delete(b.entries, idx, idx+1), entry{info: n, lastSeen: ts})
	return true
}

func (b *bucket) Add(n krpc.NodeInfo, ts time.Time) {
	b.entries = append(b.entries, entry{info: n, lastSeen: ts})
}

func (b *bucket) Remove(id krpc.NodeID) bool {
	idx := b.find(id)
	if idx < 0 {
		return false
	}

	b.entries = slices.Delete(b.entries, idx, idx+1)
	return true
}

// Oldest returns up to n of the least recently seen nodes.
func (b *bucket) Oldest(n int) (ret []krpc.NodeInfo) {
	for _, e := range b.entries[:min(n, len(b.entries))] {
		ret = append(ret, e.info)
	}
	return ret
}

func (b *bucket) NodeIter() iter.Seq[krpc.NodeInfo] {
	return func(yield func(krpc.NodeInfo) bool) {
		for _, e := range b.entries {
			if !yield(e.info) {
				return
			}
		}
	}
}
