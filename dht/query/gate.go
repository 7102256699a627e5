package query

import (
	"context"
	"sync/atomic"

	"github.com/james-lawrence/kad/internal/atomicx"
	"github.com/james-lawrence/kad/internal/chansync"
)

type GateState uint32

const (
	GateNotStarted GateState = iota
	GateRunning
	GateDone
)

func (t GateState) String() string {
	switch t {
	case GateNotStarted:
		return "not started"
	case GateRunning:
		return "running"
	default:
		return "done"
	}
}

// NewGate creates the gate ordinary lookups wait on until the node's bootstrap
// self lookup has completed.
func NewGate() *Gate {
	return &Gate{
		state: atomicx.Uint32(GateNotStarted),
	}
}

// OpenGate returns a gate that never blocks.
func OpenGate() *Gate {
	g := NewGate()
	g.Done()
	return g
}

// Gate moves NotStarted -> Running -> Done exactly once, releasing every waiter
// when it reaches Done.
type Gate struct {
	state *atomic.Uint32
	done  chansync.SetOnce
}

// Begin marks the self lookup as running, reports false if it already started.
func (t *Gate) Begin() bool {
	return t.state.CompareAndSwap(uint32(GateNotStarted), uint32(GateRunning))
}

// Done releases the waiters. Only the first call has an effect.
func (t *Gate) Done() {
	t.state.Store(uint32(GateDone))
	t.done.Set()
}

func (t *Gate) State() GateState {
	return GateState(t.state.Load())
}

// Wait blocks until the gate is done or the context is cancelled.
func (t *Gate) Wait(ctx context.Context) error {
	if t.done.IsSet() {
		return nil
	}

	select {
	case <-t.done.Done():
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}
