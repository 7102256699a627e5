package kad

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/james-lawrence/kad/dht/int256"
	"github.com/james-lawrence/kad/dht/krpc"
	"github.com/james-lawrence/kad/dht/query"
	"github.com/james-lawrence/kad/dht/records"
	"github.com/james-lawrence/kad/internal/errorsx"
	"github.com/james-lawrence/kad/internal/iterx"
)

func (t *Node) findNode(key int256.T) query.QueryFunc {
	return func(ctx context.Context, p NodeInfo) query.Result {
		resp, err := t.request(ctx, p, krpc.NewFindNode(t.info, key))
		if err != nil {
			return query.Failure(err)
		}

		return query.CloserPeers(resp.CloserPeers...)
	}
}

func (t *Node) getValue(key int256.T) query.QueryFunc {
	return func(ctx context.Context, p NodeInfo) query.Result {
		resp, err := t.request(ctx, p, krpc.NewGetValue(t.info, key))
		if err != nil {
			return query.Failure(err)
		}

		if resp.Record != nil {
			return query.Value(*resp.Record, resp.CloserPeers...)
		}

		return query.CloserPeers(resp.CloserPeers...)
	}
}

// FindPeers looks up the peers closest to the key, nearest first.
func (t *Node) FindPeers(ctx context.Context, key int256.T) ([]NodeInfo, error) {
	run := t.queries.Run(key, t.findNode(key))
	for range run.Each(ctx) {
	}

	if err := run.Err(); err != nil {
		return nil, errorsx.Wrapf(err, "find peers %s", key)
	}

	found := t.resolve(run.Closest())
	if len(found) == 0 {
		return nil, ErrNoPeers
	}

	return found, nil
}

// FindValue returns the newest of the local record and the first record
// returned by the network.
func (t *Node) FindValue(ctx context.Context, key int256.T) (records.Record, error) {
	local, hasLocal := t.records.Get(key)

	run := t.queries.Run(key, t.getValue(key))
	o, found := iterx.Find(run.Each(ctx), query.Outcome.Found)
	if err := run.Err(); err != nil {
		return records.Record{}, errorsx.Wrapf(err, "find value %s", key)
	}

	if found {
		if r, ok := o.Value.(records.Record); ok && (!hasLocal || r.NewerThan(local)) {
			return r, nil
		}
	}

	if hasLocal {
		return local, nil
	}

	return records.Record{}, ErrNotFound
}

// Put stores the value locally as an own record and publishes it to the peers
// closest to the key. Returns the number of peers that hold the record.
func (t *Node) Put(ctx context.Context, key int256.T, value []byte) (int, error) {
	r := records.Record{Key: key, Value: value, Timestamp: time.Now()}
	if existing, accepted := t.records.Put(r, records.PutOptions{IsOwnRecord: true}); !accepted {
		return 0, errorsx.Wrapf(ErrRecordOutdated, "put %s: local record from %s", key, existing.Timestamp)
	}

	return t.publish(ctx, r)
}

func (t *Node) publish(ctx context.Context, r records.Record) (int, error) {
	peers, err := t.FindPeers(ctx, r.Key)
	if err != nil {
		return 0, err
	}

	var (
		g      errgroup.Group
		stored atomic.Int64
		mu     sync.Mutex
		newest *records.Record
	)
	g.SetLimit(t.alpha)

	for _, p := range peers[:min(len(peers), t.k)] {
		g.Go(func() error {
			resp, err := t.request(ctx, p, krpc.NewPut(t.info, r))
			if err != nil {
				t.log.Printf("publish %s: %v\n", r.Key, err)
				return nil
			}

			if resp.Record == nil || !resp.Record.NewerThan(r) {
				stored.Add(1)
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			if newest == nil || resp.Record.NewerThan(*newest) {
				newest = resp.Record
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return int(stored.Load()), err
	}

	if newest != nil {
		if _, accepted := t.records.Put(*newest, records.PutOptions{NeedsVerify: true}); accepted {
			t.pending()
		}
		return int(stored.Load()), errorsx.Wrapf(ErrRecordOutdated, "publish %s: record from %s", r.Key, newest.Timestamp)
	}

	return int(stored.Load()), nil
}

// resolve returns the contact records of the peers, skipping the unknown.
func (t *Node) resolve(ids []NodeID) (ret []NodeInfo) {
	for _, id := range ids {
		if id == t.info.ID {
			continue
		}

		if p, ok := t.peers.Get(id); ok {
			ret = append(ret, p)
		}
	}

	return ret
}

func (t *Node) refresh(ctx context.Context, target int256.T) error {
	_, err := t.FindPeers(ctx, target)
	return errorsx.Ignore(err, ErrNoPeers)
}
