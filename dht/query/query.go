// Package query drives kademlia lookups. A run explores the peer space along
// several disjoint paths seeded from the routing table, querying at most alpha
// peers at a time across all of its paths and never the same peer twice.
package query

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/james-lawrence/kad/dht/int256"
	"github.com/james-lawrence/kad/dht/krpc"
	"github.com/james-lawrence/kad/internal/errorsx"
	"github.com/james-lawrence/kad/internal/langx"
)

const (
	DefaultAlpha = 3
	// DefaultDisjointPaths matches the default bucket size.
	DefaultDisjointPaths = 20
	// DefaultK bounds the best seen peers tracked by a run.
	DefaultK = 20
)

const (
	ErrQueryAborted = errorsx.String("query aborted")
	ErrStopped      = errorsx.String("query manager stopped")
)

func aborted(cause error) error {
	return fmt.Errorf("%w: %w", ErrQueryAborted, cause)
}

type logging interface {
	Println(v ...any)
	Printf(format string, v ...any)
	Print(v ...any)
}

// PeerSource answers closest peer questions offline, typically the routing table.
type PeerSource interface {
	ClosestPeers(target int256.T, count int) []krpc.NodeInfo
}

// QueryFunc queries a single peer. The context is cancelled when the run is
// aborted, implementations should return promptly once it is.
type QueryFunc func(ctx context.Context, peer krpc.NodeInfo) Result

type Option func(*Manager)

// OptionAlpha bounds the concurrent peer queries of a run, across all its paths.
func OptionAlpha(n int) Option {
	return func(m *Manager) {
		m.alpha = n
	}
}

func OptionDisjointPaths(n int) Option {
	return func(m *Manager) {
		m.paths = n
	}
}

// OptionK bounds the best seen peers tracked by every run.
func OptionK(n int) Option {
	return func(m *Manager) {
		m.k = n
	}
}

// OptionSelfQueryGate makes ordinary runs wait for the gate before contacting
// any peer. Self lookups bypass it.
func OptionSelfQueryGate(g *Gate) Option {
	return func(m *Manager) {
		m.gate = g
	}
}

// OptionSelf prevents runs from ever querying the local node.
func OptionSelf(id krpc.NodeID) Option {
	return func(m *Manager) {
		m.self = id
	}
}

func OptionLogger(l logging) Option {
	return func(m *Manager) {
		m.log = l
	}
}

// OptionDebug dumps every outcome to the logger.
func OptionDebug(l logging) Option {
	return func(m *Manager) {
		m.debug = l
	}
}

func New(source PeerSource, options ...Option) *Manager {
	m := langx.Autoptr(langx.Clone(Manager{
		source: source,
		alpha:  DefaultAlpha,
		paths:  DefaultDisjointPaths,
		k:      DefaultK,
		log:    log.New(io.Discard, "", log.Flags()),
		mu:     &sync.Mutex{},
		runs:   make(map[*Run]context.CancelCauseFunc),
	}, options...))

	if m.gate == nil {
		m.gate = OpenGate()
	}
	m.alpha = max(m.alpha, 1)
	m.paths = max(m.paths, 1)

	return m
}

// Manager owns the lookups started through it, stopping the manager aborts
// every run still in progress.
type Manager struct {
	source PeerSource
	alpha  int
	paths  int
	k      int
	self   krpc.NodeID
	gate   *Gate
	log    logging
	debug  logging

	mu      *sync.Mutex
	running bool
	runs    map[*Run]context.CancelCauseFunc
}

func (t *Manager) Alpha() int {
	return t.alpha
}

func (t *Manager) DisjointPaths() int {
	return t.paths
}

func (t *Manager) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = true
	return nil
}

// Stop aborts every active run and rejects new ones until started again.
func (t *Manager) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.running = false
	for r, cancel := range t.runs {
		cancel(ErrStopped)
		delete(t.runs, r)
	}

	return nil
}

// Run prepares a lookup for key, nothing happens until the returned run is
// iterated. A run can only be iterated once.
func (t *Manager) Run(key int256.T, fn QueryFunc, options ...RunOption) *Run {
	if fn == nil {
		panic("query function is required")
	}

	r := &Run{
		m:   t,
		key: key,
		fn:  fn,
	}
	for _, opt := range options {
		opt(r)
	}

	return r
}

func (t *Manager) track(r *Run, cancel context.CancelCauseFunc) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		return false
	}

	t.runs[r] = cancel
	return true
}

func (t *Manager) untrack(r *Run) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.runs, r)
}
