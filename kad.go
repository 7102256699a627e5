// Package kad wires the routing table, the lookup engine and the local record
// store into a kademlia node. The transport carrying requests between peers is
// provided by the caller through the Network interface.
package kad

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/james-lawrence/kad/dht"
	"github.com/james-lawrence/kad/dht/krpc"
	"github.com/james-lawrence/kad/dht/peerstore"
	"github.com/james-lawrence/kad/dht/query"
	"github.com/james-lawrence/kad/dht/records"
	"github.com/james-lawrence/kad/internal/atomicx"
	"github.com/james-lawrence/kad/internal/errorsx"
	"github.com/james-lawrence/kad/internal/langx"
)

const (
	DefaultSelfQueryInterval = 5 * time.Minute
	DefaultRefreshInterval   = 15 * time.Minute
	DefaultRepublishInterval = time.Hour
	DefaultVerifyInterval    = time.Minute
)

type (
	NodeID   = krpc.NodeID
	NodeInfo = krpc.NodeInfo
)

// PeerStore is the node's contact book, every peer learned about is recorded
// in it regardless of whether it fits in the routing table.
type PeerStore interface {
	Get(NodeID) (NodeInfo, bool)
	Add(NodeInfo)
}

// Network delivers a request to a peer and returns its answer.
type Network interface {
	SendRequest(ctx context.Context, to NodeInfo, m krpc.Msg) (krpc.Response, error)
}

type NetworkFunc func(ctx context.Context, to NodeInfo, m krpc.Msg) (krpc.Response, error)

func (t NetworkFunc) SendRequest(ctx context.Context, to NodeInfo, m krpc.Msg) (krpc.Response, error) {
	return t(ctx, to, m)
}

// Verifier checks the authenticity of third party records, records failing
// verification are dropped.
type Verifier interface {
	Verify(ctx context.Context, r records.Record) error
}

type VerifierFunc func(ctx context.Context, r records.Record) error

func (t VerifierFunc) Verify(ctx context.Context, r records.Record) error {
	return t(ctx, r)
}

type Option func(*Node)

func OptionK(k int) Option {
	return func(n *Node) {
		n.k = k
	}
}

func OptionAlpha(alpha int) Option {
	return func(n *Node) {
		n.alpha = alpha
	}
}

func OptionDisjointPaths(paths int) Option {
	return func(n *Node) {
		n.paths = paths
	}
}

func OptionPeerStore(s PeerStore) Option {
	return func(n *Node) {
		n.peers = s
	}
}

func OptionRecords(s *records.Store) Option {
	return func(n *Node) {
		n.records = s
	}
}

// OptionBootstrap seeds the routing table when the node starts.
func OptionBootstrap(peers ...NodeInfo) Option {
	return func(n *Node) {
		n.bootstrap = append(n.bootstrap, peers...)
	}
}

func OptionPingTimeout(d time.Duration) Option {
	return func(n *Node) {
		n.pingTimeout = d
	}
}

func OptionSelfQueryInterval(d time.Duration) Option {
	return func(n *Node) {
		n.selfQueryInterval = d
	}
}

func OptionRefreshInterval(d time.Duration) Option {
	return func(n *Node) {
		n.refreshInterval = d
	}
}

func OptionRepublishInterval(d time.Duration) Option {
	return func(n *Node) {
		n.republishInterval = d
	}
}

// OptionVerifier enables the background verification of third party records.
func OptionVerifier(v Verifier, interval time.Duration) Option {
	return func(n *Node) {
		n.verifier = v
		n.verifyInterval = interval
	}
}

func OptionLogger(l logging) Option {
	return func(n *Node) {
		n.log = l
	}
}

// OptionDebug dumps every lookup outcome to the logger.
func OptionDebug(l logging) Option {
	return func(n *Node) {
		n.debug = l
	}
}

// New creates a node identified by info, sending its requests over net.
func New(info NodeInfo, net Network, options ...Option) *Node {
	info.KadID = info.Key()

	n := langx.Autoptr(langx.Clone(Node{
		info:              info,
		net:               net,
		k:                 dht.DefaultK,
		alpha:             query.DefaultAlpha,
		pingTimeout:       5 * time.Second,
		selfQueryInterval: DefaultSelfQueryInterval,
		refreshInterval:   DefaultRefreshInterval,
		republishInterval: DefaultRepublishInterval,
		verifyInterval:    DefaultVerifyInterval,
		log:               LogDiscard(),
		gate:              query.NewGate(),
		wake:              make(chan struct{}, 1),
		unverified:        atomicx.Bool(false),
		lifecycle:         &sync.Mutex{},
		stopped:           &sync.WaitGroup{},
	}, options...))

	// disjoint paths track the bucket size unless configured.
	n.paths = langx.DefaultIfZero(n.k, n.paths)

	if n.peers == nil {
		n.peers = &peerstore.InMemory{RootId: info.KadID}
	}

	if n.records == nil {
		n.records = records.NewStore()
	}

	n.table = dht.NewTable(
		info,
		dht.TableOptionK(n.k),
		dht.TableOptionPinger(dht.PingerFunc(n.ping)),
		dht.TableOptionPingTimeout(n.pingTimeout),
		dht.TableOptionRefresh(n.refreshInterval, n.refresh),
		dht.TableOptionLogger(componentlog(n.log, "table", info.ID)),
	)

	qoptions := []query.Option{
		query.OptionK(n.k),
		query.OptionAlpha(n.alpha),
		query.OptionDisjointPaths(n.paths),
		query.OptionSelf(info.ID),
		query.OptionSelfQueryGate(n.gate),
		query.OptionLogger(componentlog(n.log, "query", info.ID)),
	}
	if n.debug != nil {
		qoptions = append(qoptions, query.OptionDebug(n.debug))
	}
	n.queries = query.New(n.table, qoptions...)

	return n
}

// Node is a member of the kademlia network. Ordinary lookups wait until the
// node finished its first self lookup, which happens on Start.
type Node struct {
	info              NodeInfo
	net               Network
	peers             PeerStore
	records           *records.Store
	table             *dht.Table
	queries           *query.Manager
	gate              *query.Gate
	verifier          Verifier
	bootstrap         []NodeInfo
	k                 int
	alpha             int
	paths             int
	pingTimeout       time.Duration
	selfQueryInterval time.Duration
	refreshInterval   time.Duration
	republishInterval time.Duration
	verifyInterval    time.Duration
	log               logging
	debug             logging

	wake       chan struct{}
	unverified *atomic.Bool

	lifecycle *sync.Mutex
	stop      context.CancelFunc
	stopped   *sync.WaitGroup
}

func (t *Node) Info() NodeInfo {
	return t.info
}

func (t *Node) Table() *dht.Table {
	return t.table
}

func (t *Node) Records() *records.Store {
	return t.records
}

// Start seeds the routing table from the bootstrap peers, performs the self
// lookup and schedules the background maintenance.
func (t *Node) Start(ctx context.Context) error {
	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()

	if t.stop != nil {
		return nil
	}

	if err := t.queries.Start(); err != nil {
		return errorsx.Wrap(err, "start query manager")
	}

	ctx, t.stop = context.WithCancel(ctx)

	for _, p := range t.bootstrap {
		t.learned(ctx, p)
	}

	if err := t.table.Start(ctx); err != nil {
		return errorsx.Wrap(err, "start routing table")
	}

	t.stopped.Add(1)
	go func() {
		defer t.stopped.Done()
		t.maintain(ctx)
	}()

	return nil
}

// Stop aborts the lookups in progress and halts the background maintenance.
func (t *Node) Stop() error {
	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()

	if t.stop == nil {
		return nil
	}

	t.stop()
	err := errorsx.Compact(
		t.queries.Stop(),
		t.table.Stop(),
	)
	t.stopped.Wait()
	t.stop = nil

	return err
}

// Ready blocks until the node completed its first self lookup.
func (t *Node) Ready(ctx context.Context) error {
	return t.gate.Wait(ctx)
}

// AddPeer makes the peer known to the node.
func (t *Node) AddPeer(ctx context.Context, p NodeInfo) (bool, error) {
	t.peers.Add(p)
	return t.table.AddOrRefresh(ctx, p)
}

// learned records a peer that proved to be alive.
func (t *Node) learned(ctx context.Context, p NodeInfo) {
	if p.ID == t.info.ID {
		return
	}

	if _, err := t.AddPeer(ctx, p); err != nil {
		t.log.Printf("unable to track peer %s: %v\n", p, err)
	}
}

func (t *Node) request(ctx context.Context, p NodeInfo, m krpc.Msg) (resp krpc.Response, err error) {
	if resp, err = t.net.SendRequest(ctx, p, m); err != nil {
		return resp, errorsx.Wrapf(err, "%s %s", m.Q, p)
	}

	t.learned(ctx, p)
	for _, c := range resp.CloserPeers {
		if c.ID != t.info.ID {
			t.peers.Add(c)
		}
	}

	return resp, nil
}

func (t *Node) ping(ctx context.Context, p NodeInfo) error {
	_, err := t.net.SendRequest(ctx, p, krpc.NewPing(t.info))
	return err
}

func (t *Node) String() string {
	return fmt.Sprintf("node(%s, %s)", t.info, t.table)
}
