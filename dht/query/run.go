package query

import (
	"context"
	"iter"
	"sync"
	"sync/atomic"

	"github.com/davecgh/go-spew/spew"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/james-lawrence/kad/dht/int256"
	"github.com/james-lawrence/kad/dht/krpc"
	"github.com/james-lawrence/kad/dht/peerlist"
	"github.com/james-lawrence/kad/internal/errorsx"
	"github.com/james-lawrence/kad/internal/iterx"
)

const errConsumerStopped = errorsx.String("consumer stopped iterating")

type RunOption func(*Run)

// RunOptionSelfQuery marks the run as the node's own bootstrap lookup, it does
// not wait for the self query gate.
func RunOptionSelfQuery(r *Run) {
	r.selfQuery = true
}

var _ iterx.Seq[Outcome] = (*Run)(nil)

// Run is a single lookup. The queried set and the best seen peers are shared
// by all of the run's paths and guarded by mu.
type Run struct {
	m         *Manager
	key       int256.T
	fn        QueryFunc
	selfQuery bool

	consumed atomic.Bool
	mu       sync.Mutex
	queried  map[krpc.NodeID]struct{}
	closest  *peerlist.List
	err      error
}

func (t *Run) Key() int256.T {
	return t.key
}

// Each drives the run, yielding an outcome for every peer queried in
// completion order. Cancelling the context aborts the run, breaking out of the
// loop stops it without error. Returns once every dispatched query returned.
// Runs are one-shot, iterating a consumed run yields nothing.
func (t *Run) Each(ctx context.Context) iter.Seq[Outcome] {
	return func(yield func(Outcome) bool) {
		if !t.consumed.CompareAndSwap(false, true) {
			return
		}

		ctx, cancel := context.WithCancelCause(ctx)
		defer cancel(errConsumerStopped)

		if !t.m.track(t, cancel) {
			t.err = aborted(ErrStopped)
			return
		}
		defer t.m.untrack(t)

		if !t.selfQuery {
			if err := t.m.gate.Wait(ctx); err != nil {
				t.err = aborted(err)
				return
			}
		}

		t.mu.Lock()
		t.queried = make(map[krpc.NodeID]struct{})
		t.closest = peerlist.New(t.key, t.m.k)
		t.mu.Unlock()

		seeds := t.m.source.ClosestPeers(t.key, t.m.paths)
		if len(seeds) == 0 {
			return
		}

		var (
			failed    error
			discarded error
			outcomes  = make(chan Outcome)
			sem       = semaphore.NewWeighted(int64(t.m.alpha))
			g, gctx   = errgroup.WithContext(ctx)
		)

		for _, seed := range seeds[:min(len(seeds), t.m.paths)] {
			p := newPath(t, sem, outcomes, seed)
			g.Go(func() error {
				return p.explore(gctx)
			})
		}

		go func() {
			failed = g.Wait()
			close(outcomes)
		}()

		for o := range outcomes {
			// outcomes racing with an abort are discarded.
			if ctx.Err() != nil {
				discarded = context.Cause(ctx)
				continue
			}

			if t.m.debug != nil {
				t.m.debug.Printf("query %s outcome %s", t.key, spew.Sdump(o))
			}

			if !yield(o) {
				cancel(errConsumerStopped)
				for range outcomes {
				}
				return
			}
		}

		if err := errorsx.Compact(failed, discarded); err != nil {
			t.err = aborted(err)
		}
	}
}

// Err reports why the run failed as a whole. Only cancellation fails a run,
// in which case the error matches ErrQueryAborted.
func (t *Run) Err() error {
	return t.err
}

// Closest returns the best peers observed by the run, nearest first.
func (t *Run) Closest() []krpc.NodeID {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closest == nil {
		return nil
	}

	return t.closest.Peers()
}

func (t *Run) observe(n krpc.NodeInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closest.AddNode(n)
}

// claim marks the peer as queried, false when some path already claimed it.
func (t *Run) claim(id krpc.NodeID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.queried[id]; ok {
		return false
	}

	t.queried[id] = struct{}{}
	return true
}

func (t *Run) claimed(id krpc.NodeID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.queried[id]
	return ok
}

// merge records the discovered peers and returns those worth following: not
// yet queried and strictly closer to the key than the peer that returned them.
func (t *Run) merge(from candidate, discovered []krpc.NodeInfo) (ret []candidate) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, n := range discovered {
		if n.ID == t.m.self || n.ID == from.info.ID {
			continue
		}

		n.KadID = n.Key()
		t.closest.AddNode(n)

		if _, ok := t.queried[n.ID]; ok {
			continue
		}

		c := newCandidate(t.key, n)
		if c.distance.Cmp(from.distance) >= 0 {
			continue
		}

		ret = append(ret, c)
	}

	return ret
}
