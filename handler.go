package kad

import (
	"context"

	"github.com/james-lawrence/kad/dht/int256"
	"github.com/james-lawrence/kad/dht/krpc"
	"github.com/james-lawrence/kad/dht/records"
	"github.com/james-lawrence/kad/internal/errorsx"
)

// PutResult is the answer to a remote write.
type PutResult struct {
	// NewerRecord is set when the write was rejected, it carries the record
	// that superseded it.
	NewerRecord *records.Record
	CloserPeers []NodeInfo
}

// HandleRequest serves a request received from a peer. The requester is
// recorded as recently seen.
func (t *Node) HandleRequest(ctx context.Context, from NodeInfo, m krpc.Msg) (krpc.Response, error) {
	t.learned(ctx, from)

	switch m.Q {
	case krpc.QueryPing:
		return krpc.Response{}, nil
	case krpc.QueryFindNode:
		return krpc.Response{
			CloserPeers: t.table.ClosestPeersExcluding(m.Key, t.k, t.info.ID, from.ID),
		}, nil
	case krpc.QueryGetValue:
		return t.HandleGet(ctx, from, m.Key), nil
	case krpc.QueryPut:
		if m.Record == nil {
			return krpc.Response{}, errorsx.Errorf("put %s: missing record", m.Key)
		}

		r := t.HandlePut(ctx, from, m.Key, *m.Record)
		return krpc.Response{Record: r.NewerRecord, CloserPeers: r.CloserPeers}, nil
	default:
		return krpc.Response{}, errorsx.Wrapf(ErrUnknownCommand, "%q", m.Q)
	}
}

// HandleGet answers with the local record, if any, and the peers closer to
// the key known to this node.
func (t *Node) HandleGet(ctx context.Context, from NodeInfo, key int256.T) (resp krpc.Response) {
	if r, ok := t.records.Get(key); ok {
		resp.Record = &r
	}

	resp.CloserPeers = t.table.ClosestPeersExcluding(key, t.k, t.info.ID, from.ID)
	return resp
}

// HandlePut stores a record written by a remote peer. Writes older than the
// local record are rejected with the newer record. Closer peers never include
// this node or the requester.
func (t *Node) HandlePut(ctx context.Context, from NodeInfo, key int256.T, r records.Record) PutResult {
	closer := t.table.ClosestPeersExcluding(key, t.k, t.info.ID, from.ID)

	r.Key = key
	existing, accepted := t.records.Put(r, records.PutOptions{NeedsVerify: true, IsOwnRecord: false})
	if !accepted {
		t.log.Printf("put %s from %s rejected, local record is newer (%s >= %s)\n", key, from, existing.Timestamp, r.Timestamp)
		return PutResult{NewerRecord: &existing, CloserPeers: closer}
	}
	t.pending()

	return PutResult{CloserPeers: closer}
}
