package kad

import (
	"context"
	"fmt"
	"time"

	"github.com/james-lawrence/kad/cstate"
	"github.com/james-lawrence/kad/dht/query"
	"github.com/james-lawrence/kad/internal/errorsx"
)

// selfQuery looks up the node's own id, populating the buckets nearest to it.
// The first self lookup opens the gate ordinary lookups wait on, whatever its
// outcome.
func (t *Node) selfQuery(ctx context.Context) error {
	if t.gate.Begin() {
		defer t.gate.Done()
	}

	run := t.queries.Run(t.info.KadID, t.findNode(t.info.KadID), query.RunOptionSelfQuery)
	for range run.Each(ctx) {
	}

	return errorsx.Wrap(run.Err(), "self query")
}

// Republish writes the node's own records to the peers currently closest to
// them.
func (t *Node) Republish(ctx context.Context) error {
	var errs []error
	for r := range t.records.Own() {
		if _, err := t.publish(ctx, r); err != nil {
			errs = append(errs, errorsx.Wrapf(err, "republish %s", r.Key))
		}

		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
	}

	return errorsx.Compact(errs...)
}

// Verify checks the pending third party records, dropping those that fail.
func (t *Node) Verify(ctx context.Context) error {
	if t.verifier == nil {
		return nil
	}

	for r := range t.records.Unverified() {
		if err := t.verifier.Verify(ctx, r); err != nil {
			if ctx.Err() != nil {
				return context.Cause(ctx)
			}

			t.log.Printf("dropping record %s: %v\n", r.Key, err)
			t.records.Delete(r.Key, r.Timestamp)
			continue
		}

		t.records.MarkVerified(r.Key, r.Timestamp)
	}

	return nil
}

// maintenance schedules the periodic node upkeep: self lookups, republishing
// own records and verifying third party records. A zero deadline disables the
// task.
type maintenance struct {
	*Node
	selfq     time.Time
	republish time.Time
	verify    time.Time
}

func deadline(now time.Time, d time.Duration) time.Time {
	if d <= 0 {
		return time.Time{}
	}

	return now.Add(d)
}

func due(deadline, now time.Time) bool {
	return !deadline.IsZero() && !deadline.After(now)
}

func newMaintenance(n *Node) *maintenance {
	now := time.Now()
	m := &maintenance{
		Node:      n,
		selfq:     now,
		republish: deadline(now, n.republishInterval),
	}

	if n.verifier != nil {
		m.verify = deadline(now, n.verifyInterval)
	}

	return m
}

func (t *maintenance) Update(ctx context.Context, s *cstate.Shared) cstate.T {
	now := time.Now()
	errs := make([]error, 0, 3)

	if t.verifier != nil && t.unverified.Swap(false) {
		t.verify = now
	}

	if due(t.selfq, now) {
		errs = append(errs, t.selfQuery(ctx))
		t.selfq = deadline(now, t.selfQueryInterval)
	}

	if due(t.republish, now) {
		errs = append(errs, t.Republish(ctx))
		t.republish = deadline(now, t.republishInterval)
	}

	if due(t.verify, now) {
		errs = append(errs, t.Verify(ctx))
		t.verify = deadline(now, t.verifyInterval)
	}

	var next time.Time
	for _, d := range []time.Time{t.selfq, t.republish, t.verify} {
		if !d.IsZero() && (next.IsZero() || d.Before(next)) {
			next = d
		}
	}

	wait := time.Duration(0)
	if !next.IsZero() {
		wait = max(time.Until(next), time.Millisecond)
	}

	return cstate.Warning(cstate.Idle(t, wait, t.wake), errorsx.Compact(errs...))
}

func (t *maintenance) String() string {
	return fmt.Sprintf("maintenance(self query %s, republish %s, verify %s)", t.selfq, t.republish, t.verify)
}

func (t *Node) maintain(ctx context.Context) {
	if err := cstate.Run(ctx, newMaintenance(t), componentlog(t.log, "maintenance", t.info.ID)); err != nil && ctx.Err() == nil {
		t.log.Println("maintenance stopped", err)
	}
}

// pending notes records awaiting verification, waking the maintenance.
func (t *Node) pending() {
	if t.verifier == nil {
		return
	}

	t.unverified.Store(true)
	select {
	case t.wake <- struct{}{}:
	default:
	}
}
