// Package chansync holds the channel based synchronization primitives
// we need, modelled after github.com/anacrolix/chansync.
package chansync

import (
	"sync"
	"sync/atomic"
)

type Done <-chan struct{}

// SetOnce is a boolean value that can only be flipped from false to true.
// The zero value is ready to use.
type SetOnce struct {
	ch        chan struct{}
	closed    atomic.Bool
	initOnce  sync.Once
	closeOnce sync.Once
}

// Returns a channel that is closed when the event is flagged.
func (me *SetOnce) Done() Done {
	me.init()
	return me.ch
}

func (me *SetOnce) init() {
	me.initOnce.Do(func() {
		me.ch = make(chan struct{})
	})
}

// Set only returns true the first time it is called.
func (me *SetOnce) Set() (first bool) {
	me.closeOnce.Do(func() {
		me.init()
		first = true
		me.closed.Store(true)
		close(me.ch)
	})
	return
}

func (me *SetOnce) IsSet() bool {
	return me.closed.Load()
}
