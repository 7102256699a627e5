// Package peerstore keeps the contact records of the peers the node has
// heard about, independently of whether they made it into the routing table.
package peerstore

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/anacrolix/multiless"

	"github.com/james-lawrence/kad/dht/int256"
	"github.com/james-lawrence/kad/dht/krpc"
)

type InMemory struct {
	// This is used for sorting peers by distance in WriteDebug.
	RootId int256.T
	mu     sync.RWMutex
	index  map[krpc.NodeID]NodeAndTime
}

type debugWriterInterface interface {
	WriteDebug(w io.Writer)
}

var _ interface {
	debugWriterInterface
} = (*InMemory)(nil)

type NodeAndTime struct {
	krpc.NodeInfo
	time.Time
}

// Get returns the last known contact record for the peer.
func (me *InMemory) Get(id krpc.NodeID) (krpc.NodeInfo, bool) {
	me.mu.RLock()
	defer me.mu.RUnlock()
	v, ok := me.index[id]
	return v.NodeInfo, ok
}

// Add records the contact, replacing any older record of the same peer.
func (me *InMemory) Add(n krpc.NodeInfo) {
	n.KadID = n.Key()
	me.mu.Lock()
	defer me.mu.Unlock()
	if me.index == nil {
		me.index = make(map[krpc.NodeID]NodeAndTime)
	}
	me.index[n.ID] = NodeAndTime{n, time.Now()}
}

func (me *InMemory) Remove(id krpc.NodeID) {
	me.mu.Lock()
	defer me.mu.Unlock()
	delete(me.index, id)
}

func (me *InMemory) Len() int {
	me.mu.RLock()
	defer me.mu.RUnlock()
	return len(me.index)
}

func (me *InMemory) GetAll() (ret []NodeAndTime) {
	me.mu.RLock()
	defer me.mu.RUnlock()
	ret = make([]NodeAndTime, 0, len(me.index))
	for _, v := range me.index {
		ret = append(ret, v)
	}
	return
}

func (me *InMemory) WriteDebug(w io.Writer) {
	all := me.GetAll()
	fmt.Fprintf(w, "total count: %v\n\n", len(all))
	sort.SliceStable(all, func(i, j int) bool {
		return multiless.New().Cmp(
			all[i].KadID.Distance(me.RootId).Cmp(all[j].KadID.Distance(me.RootId)),
		).Cmp(
			strings.Compare(string(all[i].ID), string(all[j].ID)),
		).Less()
	})

	for _, na := range all {
		fmt.Fprintf(w, "\t%v (age: %v)\n", na.NodeInfo, time.Since(na.Time))
	}
	fmt.Fprintln(w)
}
