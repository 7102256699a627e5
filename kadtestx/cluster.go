// Package kadtestx builds in process kademlia networks for tests.
package kadtestx

import (
	"context"
	"fmt"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/james-lawrence/kad"
	"github.com/james-lawrence/kad/dht/krpc"
	"github.com/james-lawrence/kad/internal/memnet"
)

func NodeInfo(id string) krpc.NodeInfo {
	return krpc.NewNodeInfo(krpc.NodeID(id), fmt.Sprintf("memory://%s", id), "")
}

// Node registers a node on the network and starts it, the node is stopped when
// the test completes.
func Node(t testing.TB, net *memnet.Network, info krpc.NodeInfo, options ...kad.Option) *kad.Node {
	ctx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()

	n := kad.New(
		info,
		net,
		append([]kad.Option{
			kad.OptionLogger(log.New(log.Writer(), fmt.Sprintf("[kad %s] ", info.ID), log.Flags())),
			kad.OptionPingTimeout(time.Second),
		}, options...)...,
	)
	net.Register(info.ID, n)

	require.NoError(t, n.Start(context.Background()))
	t.Cleanup(func() { require.NoError(t, n.Stop()) })
	require.NoError(t, n.Ready(ctx))

	return n
}

// Cluster starts size nodes, every node bootstraps from the first one.
func Cluster(t testing.TB, net *memnet.Network, size int, options ...kad.Option) (nodes []*kad.Node) {
	for i := range size {
		opts := options
		if i > 0 {
			opts = append([]kad.Option{kad.OptionBootstrap(nodes[0].Info())}, options...)
		}

		nodes = append(nodes, Node(t, net, NodeInfo(fmt.Sprintf("node-%02d", i)), opts...))
	}

	return nodes
}
