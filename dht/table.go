package dht

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/time/rate"

	"github.com/james-lawrence/kad/dht/int256"
	"github.com/james-lawrence/kad/dht/krpc"
	"github.com/james-lawrence/kad/dht/peerlist"
	"github.com/james-lawrence/kad/internal/bitmapx"
	"github.com/james-lawrence/kad/internal/errorsx"
	"github.com/james-lawrence/kad/internal/langx"
)

func rateLimit(perSecond float64) rate.Limit {
	if perSecond <= 0 {
		return rate.Inf
	}

	return rate.Limit(perSecond)
}

func NewTable(self krpc.NodeInfo, options ...TableOption) *Table {
	return langx.Autoptr(langx.Clone(Table{
		self:        self,
		root:        self.Key(),
		k:           DefaultK,
		pingTimeout: defaultPingTimeout,
		limiter:     rate.NewLimiter(rateLimit(defaultPingRate), defaultPingBurst),
		log:         discardlog(),
		m:           &sync.RWMutex{},
		index:       make(map[krpc.NodeID]int, DefaultK),
		touched:     roaring.New(),
		lifecycle:   &sync.Mutex{},
		stopped:     &sync.WaitGroup{},
	}, options...))
}

// Table is the k-bucket routing table. Buckets are indexed by the position of
// the highest bit that differs between the local id and the peer's id, every
// known peer lives in exactly one bucket.
type Table struct {
	self            krpc.NodeInfo
	root            int256.T
	k               int
	pinger          Pinger
	pingTimeout     time.Duration
	limiter         *rate.Limiter
	refreshInterval time.Duration
	refresh         RefreshFn
	log             logging

	m       *sync.RWMutex
	buckets [int256.Bits]bucket
	index   map[krpc.NodeID]int
	// buckets that saw activity since the last refresh pass.
	touched *roaring.Bitmap

	lifecycle *sync.Mutex
	stop      context.CancelFunc
	stopped   *sync.WaitGroup
}

func (t *Table) K() int {
	return t.k
}

func (t *Table) Self() krpc.NodeInfo {
	return t.self
}

func (t *Table) bucketIndex(id int256.T) int {
	if id == t.root {
		panic("nobody puts the root ID in a bucket")
	}

	return int256.Bits - t.root.Distance(id).BitLen()
}

// Start schedules the background refresh of idle buckets. It has no effect on
// lookups already running.
func (t *Table) Start(ctx context.Context) error {
	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()

	if t.stop != nil || t.refresh == nil || t.refreshInterval <= 0 {
		return nil
	}

	ctx, t.stop = context.WithCancel(ctx)
	t.stopped.Add(1)
	go func() {
		defer t.stopped.Done()
		tick := time.NewTicker(t.refreshInterval)
		defer tick.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				t.refreshStale(ctx)
			}
		}
	}()

	return nil
}

func (t *Table) Stop() error {
	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()

	if t.stop == nil {
		return nil
	}

	t.stop()
	t.stopped.Wait()
	t.stop = nil
	return nil
}

// StaleBuckets returns the indices of the buckets, up to the deepest occupied
// one, that have seen no activity since the previous call.
func (t *Table) StaleBuckets() []int {
	t.m.Lock()
	defer t.m.Unlock()

	deepest := -1
	for i := range t.buckets {
		if t.buckets[i].Len() > 0 {
			deepest = i
		}
	}

	if deepest < 0 {
		return nil
	}

	stale := bitmapx.AndNot(bitmapx.Range(0, deepest), t.touched)
	t.touched.Clear()

	return bitmapx.Ints(stale)
}

func (t *Table) refreshStale(ctx context.Context) {
	for _, idx := range t.StaleBuckets() {
		target := int256.RandomInBucket(t.root, idx)
		if err := t.refresh(ctx, target); err != nil {
			t.log.Printf("bucket %d refresh failed: %v\n", idx, err)
		}

		if ctx.Err() != nil {
			return
		}
	}
}

func (t *Table) Len() (num int) {
	t.m.RLock()
	defer t.m.RUnlock()
	return len(t.index)
}

func (t *Table) Get(id krpc.NodeID) (krpc.NodeInfo, bool) {
	t.m.RLock()
	defer t.m.RUnlock()

	idx, ok := t.index[id]
	if !ok {
		return krpc.NodeInfo{}, false
	}

	return t.buckets[idx].Get(id)
}

// Each iterates over a snapshot of the known peers.
func (t *Table) Each() iter.Seq[krpc.NodeInfo] {
	t.m.RLock()
	snapshot := make([]krpc.NodeInfo, 0, len(t.index))
	for i := range t.buckets {
		snapshot = slices.AppendSeq(snapshot, t.buckets[i].NodeIter())
	}
	t.m.RUnlock()

	return slices.Values(snapshot)
}

// ClosestPeers returns up to count known peers ordered nearest first to the
// target. Never performs network io.
func (t *Table) ClosestPeers(target int256.T, count int) []krpc.NodeInfo {
	return t.ClosestPeersExcluding(target, count)
}

// ClosestPeersExcluding behaves like ClosestPeers, ignoring the listed peers.
func (t *Table) ClosestPeersExcluding(target int256.T, count int, exclude ...krpc.NodeID) []krpc.NodeInfo {
	if count <= 0 {
		return nil
	}

	t.m.RLock()
	defer t.m.RUnlock()

	closest := peerlist.New(target, count)
	infos := make(map[krpc.NodeID]krpc.NodeInfo, len(t.index))
	for i := range t.buckets {
		for n := range t.buckets[i].NodeIter() {
			if slices.Contains(exclude, n.ID) || !closest.IsCloser(n.KadID) {
				continue
			}

			if closest.AddNode(n) {
				infos[n.ID] = n
			}
		}
	}

	ret := make([]krpc.NodeInfo, 0, closest.Len())
	for _, id := range closest.Peers() {
		ret = append(ret, infos[id])
	}

	return ret
}

// AddOrRefresh records the peer as recently seen. A peer landing in a full
// bucket is only admitted when one of the least recently seen occupants fails
// a liveness probe, that occupant is evicted in its place. Reports whether the
// peer is present in the table afterwards.
func (t *Table) AddOrRefresh(ctx context.Context, n krpc.NodeInfo) (bool, error) {
	n.KadID = n.Key()
	if n.ID == t.self.ID || n.KadID == t.root {
		return false, ErrIsSelf
	}

	idx := t.bucketIndex(n.KadID)
	b := &t.buckets[idx]

	t.m.Lock()
	if b.Touch(n, time.Now()) {
		t.touched.Add(uint32(idx))
		t.m.Unlock()
		return true, nil
	}

	if t.admit(idx, n) {
		t.m.Unlock()
		return true, nil
	}
	candidates := b.Oldest(defaultPingCandidates)
	t.m.Unlock()

	for _, c := range candidates {
		alive, err := t.probe(ctx, c)
		if err != nil {
			return false, err
		}

		t.m.Lock()
		if alive {
			b.Touch(c, time.Now())
			t.m.Unlock()
			continue
		}

		if t.evict(idx, c.ID) {
			t.log.Printf("evicted unresponsive peer %s from bucket %d\n", c, idx)
		}
		admitted := t.admit(idx, n)
		t.m.Unlock()

		if admitted {
			return true, nil
		}
	}

	t.log.Printf("%s: bucket %d rejected %s\n", ErrBucketFull, idx, n)
	return false, nil
}

// admit inserts the node when the bucket has room, callers hold the lock.
func (t *Table) admit(idx int, n krpc.NodeInfo) bool {
	b := &t.buckets[idx]
	if _, ok := t.index[n.ID]; ok {
		return true
	}

	if b.Len() >= t.k {
		return false
	}

	b.Add(n, time.Now())
	t.index[n.ID] = idx
	t.touched.Add(uint32(idx))
	return true
}

// evict removes the node, callers hold the lock.
func (t *Table) evict(idx int, id krpc.NodeID) bool {
	if !t.buckets[idx].Remove(id) {
		return false
	}

	delete(t.index, id)
	return true
}

func (t *Table) probe(ctx context.Context, n krpc.NodeInfo) (alive bool, err error) {
	if t.pinger == nil {
		return true, nil
	}

	// probes over the rate limit are skipped, the occupant is presumed alive.
	if !t.limiter.Allow() {
		return true, nil
	}

	pctx, done := context.WithTimeout(ctx, t.pingTimeout)
	defer done()

	if err := t.pinger.Ping(pctx, n); err != nil {
		if cause := ctx.Err(); cause != nil {
			return false, errorsx.Wrap(cause, "liveness probe")
		}

		return false, nil
	}

	return true, nil
}

// Remove unconditionally evicts the peer, unknown peers are ignored.
func (t *Table) Remove(id krpc.NodeID) {
	t.m.Lock()
	defer t.m.Unlock()

	if idx, ok := t.index[id]; ok {
		t.evict(idx, id)
	}
}

func (t *Table) String() string {
	return fmt.Sprintf("table(%s, k=%d, peers=%d)", t.self.ID, t.k, t.Len())
}
