package query

import (
	"context"
	"strings"

	"github.com/anacrolix/multiless"
	"github.com/google/btree"
	"golang.org/x/sync/semaphore"

	"github.com/james-lawrence/kad/dht/int256"
	"github.com/james-lawrence/kad/dht/krpc"
	"github.com/james-lawrence/kad/internal/errorsx"
)

type candidate struct {
	info     krpc.NodeInfo
	distance int256.T
}

func newCandidate(target int256.T, n krpc.NodeInfo) candidate {
	return candidate{info: n, distance: n.Key().Distance(target)}
}

func candidateLess(a, b candidate) bool {
	return multiless.New().Cmp(
		a.distance.Cmp(b.distance),
	).Cmp(
		strings.Compare(string(a.info.ID), string(b.info.ID)),
	).Less()
}

type completion struct {
	from   candidate
	result Result
}

// path is one of the disjoint branches of a run. Its frontier is only touched
// by the path's own goroutine.
type path struct {
	run      *Run
	sem      *semaphore.Weighted
	out      chan<- Outcome
	frontier *btree.BTreeG[candidate]
	done     chan completion
	inflight int
}

func newPath(r *Run, sem *semaphore.Weighted, out chan<- Outcome, seed krpc.NodeInfo) *path {
	p := &path{
		run:      r,
		sem:      sem,
		out:      out,
		frontier: btree.NewG(2, candidateLess),
		done:     make(chan completion, r.m.alpha),
	}

	seed.KadID = seed.Key()
	r.observe(seed)
	p.frontier.ReplaceOrInsert(newCandidate(r.key, seed))

	return p
}

// explore queries the frontier nearest first until it is exhausted.
func (t *path) explore(ctx context.Context) error {
	defer t.drain()

	for {
		if err := t.dispatch(ctx); err != nil {
			return err
		}

		if t.inflight == 0 {
			return nil
		}

		select {
		case c := <-t.done:
			t.inflight--
			if err := t.complete(ctx, c); err != nil {
				return err
			}
		case <-ctx.Done():
			return context.Cause(ctx)
		}
	}
}

// dispatch starts queries for the nearest candidates while concurrency slots
// are free. With queries outstanding it never waits for a slot, their results
// may reveal closer candidates.
func (t *path) dispatch(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}

		c, ok := t.frontier.Min()
		if !ok {
			return nil
		}

		if t.run.claimed(c.info.ID) {
			t.frontier.DeleteMin()
			continue
		}

		if t.inflight > 0 {
			if !t.sem.TryAcquire(1) {
				return nil
			}
		} else if err := t.sem.Acquire(ctx, 1); err != nil {
			return context.Cause(ctx)
		}

		t.frontier.DeleteMin()
		if !t.run.claim(c.info.ID) {
			t.sem.Release(1)
			continue
		}

		t.inflight++
		go func() {
			r := t.query(ctx, c.info)
			t.sem.Release(1)
			t.done <- completion{from: c, result: r}
		}()
	}
}

func (t *path) query(ctx context.Context, n krpc.NodeInfo) (r Result) {
	defer func() {
		if cause := recover(); cause != nil {
			r = Failure(errorsx.Wrapf(errorsx.Recovered(cause), "query %s", n.ID))
		}
	}()

	return t.run.fn(ctx, n)
}

func (t *path) complete(ctx context.Context, c completion) error {
	// results of calls that raced with an abort are discarded.
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}

	o := newOutcome(c.from.info.ID, c.result)
	if o.Err != nil {
		t.run.m.log.Printf("query %s: peer %s failed: %v\n", t.run.key, c.from.info.ID, o.Err)
	}

	for _, next := range t.run.merge(c.from, o.CloserPeers) {
		t.frontier.ReplaceOrInsert(next)
	}

	select {
	case t.out <- o:
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

// drain waits for outstanding queries, their results are dropped.
func (t *path) drain() {
	for ; t.inflight > 0; t.inflight-- {
		<-t.done
	}
}
