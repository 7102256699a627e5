// Package memnet is an in process transport delivering requests directly to
// the handler registered for the destination peer.
package memnet

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/james-lawrence/kad/dht/krpc"
	"github.com/james-lawrence/kad/internal/errorsx"
	"github.com/james-lawrence/kad/internal/langx"
)

const ErrUnreachable = errorsx.String("peer unreachable")

type Handler interface {
	HandleRequest(ctx context.Context, from krpc.NodeInfo, m krpc.Msg) (krpc.Response, error)
}

type Option func(*Network)

// OptionLatency delays every request by d.
func OptionLatency(d time.Duration) Option {
	return func(n *Network) {
		n.latency = d
	}
}

func New(options ...Option) *Network {
	return langx.Autoptr(langx.Clone(Network{
		mu:       &sync.RWMutex{},
		handlers: make(map[krpc.NodeID]Handler),
		offline:  make(map[krpc.NodeID]struct{}),
		sent:     &atomic.Uint64{},
	}, options...))
}

type Network struct {
	latency  time.Duration
	mu       *sync.RWMutex
	handlers map[krpc.NodeID]Handler
	offline  map[krpc.NodeID]struct{}
	sent     *atomic.Uint64
}

func (t *Network) Register(id krpc.NodeID, h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[id] = h
}

// Offline makes the peer unreachable until brought back online.
func (t *Network) Offline(id krpc.NodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.offline[id] = struct{}{}
}

func (t *Network) Online(id krpc.NodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.offline, id)
}

// Requests returns the number of requests sent over the network.
func (t *Network) Requests() uint64 {
	return t.sent.Load()
}

func (t *Network) handler(id krpc.NodeID) (Handler, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if _, down := t.offline[id]; down {
		return nil, false
	}

	h, ok := t.handlers[id]
	return h, ok
}

func (t *Network) SendRequest(ctx context.Context, to krpc.NodeInfo, m krpc.Msg) (krpc.Response, error) {
	t.sent.Add(1)

	if t.latency > 0 {
		select {
		case <-time.After(t.latency):
		case <-ctx.Done():
			return krpc.Response{}, context.Cause(ctx)
		}
	}

	h, ok := t.handler(to.ID)
	if !ok {
		return krpc.Response{}, errorsx.Wrapf(ErrUnreachable, "%s", to)
	}

	return h.HandleRequest(ctx, m.From, m)
}
