package kad_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/james-lawrence/kad"
	"github.com/james-lawrence/kad/dht/int256"
	"github.com/james-lawrence/kad/dht/krpc"
	"github.com/james-lawrence/kad/dht/query"
	"github.com/james-lawrence/kad/dht/records"
	"github.com/james-lawrence/kad/internal/errorsx"
	"github.com/james-lawrence/kad/internal/memnet"
	"github.com/james-lawrence/kad/kadtestx"
)

func unreachable(context.Context, kad.NodeInfo, krpc.Msg) (krpc.Response, error) {
	return krpc.Response{}, errorsx.String("unreachable")
}

func ids(peers []kad.NodeInfo) (ret []kad.NodeID) {
	for _, p := range peers {
		ret = append(ret, p.ID)
	}
	return ret
}

func TestHandlePut(t *testing.T) {
	ctx := context.Background()
	key := int256.New("content")
	self := kadtestx.NodeInfo("self")
	requester := kadtestx.NodeInfo("requester")

	n := kad.New(self, kad.NetworkFunc(unreachable))
	for i := range 5 {
		_, err := n.AddPeer(ctx, kadtestx.NodeInfo(fmt.Sprintf("peer-%d", i)))
		require.NoError(t, err)
	}
	_, err := n.AddPeer(ctx, requester)
	require.NoError(t, err)

	now := time.Now()

	t.Run("accepts new records", func(t *testing.T) {
		result := n.HandlePut(ctx, requester, key, records.Record{Value: []byte("v1"), Timestamp: now})
		require.Nil(t, result.NewerRecord)
		require.Len(t, result.CloserPeers, 5)
		require.NotContains(t, ids(result.CloserPeers), requester.ID)
		require.NotContains(t, ids(result.CloserPeers), self.ID)

		stored, ok := n.Records().Get(key)
		require.True(t, ok)
		require.Equal(t, []byte("v1"), stored.Value)
		require.True(t, stored.NeedsVerify)
		require.False(t, stored.IsOwnRecord)
	})

	t.Run("rejects older records with the stored one", func(t *testing.T) {
		result := n.HandlePut(ctx, requester, key, records.Record{Value: []byte("v0"), Timestamp: now.Add(-time.Second)})
		require.NotNil(t, result.NewerRecord)
		require.Equal(t, []byte("v1"), result.NewerRecord.Value)
		require.Len(t, result.CloserPeers, 5)
		require.NotContains(t, ids(result.CloserPeers), requester.ID)
	})

	t.Run("rejects equal timestamps", func(t *testing.T) {
		result := n.HandlePut(ctx, requester, key, records.Record{Value: []byte("other"), Timestamp: now})
		require.NotNil(t, result.NewerRecord)
		require.Equal(t, []byte("v1"), result.NewerRecord.Value)
	})

	t.Run("newer records replace the stored one", func(t *testing.T) {
		result := n.HandlePut(ctx, requester, key, records.Record{Value: []byte("v2"), Timestamp: now.Add(time.Second)})
		require.Nil(t, result.NewerRecord)

		stored, ok := n.Records().Get(key)
		require.True(t, ok)
		require.Equal(t, []byte("v2"), stored.Value)
	})
}

func TestHandleRequest(t *testing.T) {
	ctx := context.Background()
	n := kad.New(kadtestx.NodeInfo("self"), kad.NetworkFunc(unreachable))
	from := kadtestx.NodeInfo("from")

	t.Run("requesters are remembered", func(t *testing.T) {
		_, err := n.HandleRequest(ctx, from, krpc.NewPing(from))
		require.NoError(t, err)
		_, ok := n.Table().Get(from.ID)
		require.True(t, ok)
	})

	t.Run("find node excludes the requester", func(t *testing.T) {
		resp, err := n.HandleRequest(ctx, from, krpc.NewFindNode(from, int256.Random()))
		require.NoError(t, err)
		require.Empty(t, resp.CloserPeers)
	})

	t.Run("put without a record", func(t *testing.T) {
		_, err := n.HandleRequest(ctx, from, krpc.Msg{Q: krpc.QueryPut, From: from})
		require.Error(t, err)
	})

	t.Run("unknown command", func(t *testing.T) {
		_, err := n.HandleRequest(ctx, from, krpc.Msg{Q: "derp", From: from})
		require.ErrorIs(t, err, kad.ErrUnknownCommand)
	})
}

func TestLookupsRequireStart(t *testing.T) {
	ctx := context.Background()
	n := kad.New(kadtestx.NodeInfo("self"), kad.NetworkFunc(unreachable))

	_, err := n.FindPeers(ctx, int256.Random())
	require.ErrorIs(t, err, query.ErrQueryAborted)
	require.ErrorIs(t, err, query.ErrStopped)
}

func TestNodeWithoutPeers(t *testing.T) {
	ctx := context.Background()
	n := kadtestx.Node(t, memnet.New(), kadtestx.NodeInfo("lonely"))

	_, err := n.FindPeers(ctx, int256.Random())
	require.ErrorIs(t, err, kad.ErrNoPeers)

	_, err = n.FindValue(ctx, int256.Random())
	require.ErrorIs(t, err, kad.ErrNotFound)
}

func TestCluster(t *testing.T) {
	ctx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()

	net := memnet.New()
	nodes := kadtestx.Cluster(t, net, 16)
	key := int256.New("hello world")

	t.Run("every node learned about the others", func(t *testing.T) {
		for _, n := range nodes {
			peers, err := n.FindPeers(ctx, int256.Random())
			require.NoError(t, err)
			require.Len(t, peers, len(nodes)-1)
			require.NotContains(t, ids(peers), n.Info().ID)
		}
	})

	t.Run("find peers is ordered nearest first", func(t *testing.T) {
		peers, err := nodes[3].FindPeers(ctx, key)
		require.NoError(t, err)
		for i := 1; i < len(peers); i++ {
			require.Negative(t, int256.CmpTo(key, peers[i-1].Key(), peers[i].Key()))
		}
	})

	t.Run("values are found from any node", func(t *testing.T) {
		stored, err := nodes[5].Put(ctx, key, []byte("cool"))
		require.NoError(t, err)
		require.Equal(t, len(nodes)-1, stored)

		r, err := nodes[12].FindValue(ctx, key)
		require.NoError(t, err)
		require.Equal(t, []byte("cool"), r.Value)

		own, ok := nodes[5].Records().Get(key)
		require.True(t, ok)
		require.True(t, own.IsOwnRecord)
		require.False(t, own.NeedsVerify)
	})

	t.Run("republishing a superseded record", func(t *testing.T) {
		key := int256.New("contested")
		_, err := nodes[1].Put(ctx, key, []byte("old"))
		require.NoError(t, err)

		net.Offline(nodes[1].Info().ID)
		_, err = nodes[2].Put(ctx, key, []byte("new"))
		require.NoError(t, err)
		net.Online(nodes[1].Info().ID)

		require.ErrorIs(t, nodes[1].Republish(ctx), kad.ErrRecordOutdated)

		r, ok := nodes[1].Records().Get(key)
		require.True(t, ok)
		require.Equal(t, []byte("new"), r.Value)
		require.False(t, r.IsOwnRecord)
		require.True(t, r.NeedsVerify)
	})
}

func TestVerify(t *testing.T) {
	ctx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()

	verifier := kad.VerifierFunc(func(_ context.Context, r records.Record) error {
		if string(r.Value) == "forged" {
			return errorsx.String("bad signature")
		}
		return nil
	})

	net := memnet.New()
	nodes := kadtestx.Cluster(t, net, 4, kad.OptionVerifier(verifier, time.Hour))

	good, forged := int256.New("good"), int256.New("forged")
	_, err := nodes[0].Put(ctx, good, []byte("genuine"))
	require.NoError(t, err)
	_, err = nodes[0].Put(ctx, forged, []byte("forged"))
	require.NoError(t, err)

	n := nodes[3]
	require.NoError(t, n.Verify(ctx))

	r, ok := n.Records().Get(good)
	require.True(t, ok)
	require.False(t, r.NeedsVerify)

	_, ok = n.Records().Get(forged)
	require.False(t, ok)

	// own records are never verified.
	_, ok = nodes[0].Records().Get(forged)
	require.True(t, ok)
}
