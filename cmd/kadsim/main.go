// Command kadsim runs a kademlia network in process and reports how lookups
// behave as peers drop out.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"os"
	"time"

	"github.com/alexflint/go-arg"

	"github.com/james-lawrence/kad"
	"github.com/james-lawrence/kad/dht/int256"
	"github.com/james-lawrence/kad/dht/krpc"
	"github.com/james-lawrence/kad/internal/errorsx"
	"github.com/james-lawrence/kad/internal/memnet"
)

type config struct {
	Nodes   int           `arg:"-n,--nodes" default:"64" help:"number of simulated nodes"`
	K       int           `arg:"-k" default:"20" help:"bucket size"`
	Alpha   int           `arg:"--alpha" default:"3" help:"concurrent queries per lookup"`
	Paths   int           `arg:"--paths" help:"disjoint paths per lookup, defaults to k"`
	Records int           `arg:"--records" default:"32" help:"records published before the lookups"`
	Offline float64       `arg:"--offline" default:"0.1" help:"fraction of nodes taken offline after publishing"`
	Latency time.Duration `arg:"--latency" default:"1ms" help:"delay added to every request"`
	Timeout time.Duration `arg:"--timeout" default:"2m" help:"overall deadline of the simulation"`
	Verbose bool          `arg:"-v,--verbose" help:"log node activity"`
}

func (config) Description() string {
	return "simulates a kademlia network over an in process transport"
}

func main() {
	var cfg config
	arg.MustParse(&cfg)

	ctx, done := context.WithTimeout(context.Background(), cfg.Timeout)
	defer done()

	if err := simulate(ctx, cfg); err != nil {
		log.Fatalln(err)
	}
}

func simulate(ctx context.Context, cfg config) error {
	if cfg.Nodes < 2 {
		return errorsx.Errorf("at least 2 nodes are required, got %d", cfg.Nodes)
	}

	var output io.Writer = io.Discard
	if cfg.Verbose {
		output = os.Stderr
	}

	net := memnet.New(memnet.OptionLatency(cfg.Latency))
	nodes := make([]*kad.Node, 0, cfg.Nodes)

	started := time.Now()
	for i := range cfg.Nodes {
		info := krpc.NewNodeInfo(krpc.NodeID(fmt.Sprintf("node-%04d", i)), fmt.Sprintf("memory://%d", i), "")
		options := []kad.Option{
			kad.OptionK(cfg.K),
			kad.OptionAlpha(cfg.Alpha),
			kad.OptionDisjointPaths(cfg.Paths),
			kad.OptionLogger(log.New(output, fmt.Sprintf("[%s] ", info.ID), log.Flags())),
		}
		if i > 0 {
			options = append(options, kad.OptionBootstrap(nodes[0].Info(), nodes[rand.IntN(len(nodes))].Info()))
		}

		n := kad.New(info, net, options...)
		net.Register(info.ID, n)
		if err := n.Start(ctx); err != nil {
			return errorsx.Wrapf(err, "start %s", info.ID)
		}
		defer func() { errorsx.LogErr(n.Stop()) }()

		if err := n.Ready(ctx); err != nil {
			return errorsx.Wrapf(err, "bootstrap %s", info.ID)
		}

		nodes = append(nodes, n)
	}
	log.Printf("bootstrapped %d nodes in %s, %d requests\n", len(nodes), time.Since(started), net.Requests())

	keys := make([]int256.T, 0, cfg.Records)
	started = time.Now()
	for i := range cfg.Records {
		key := int256.New(fmt.Sprintf("record-%d", i))
		stored, err := nodes[rand.IntN(len(nodes))].Put(ctx, key, []byte(fmt.Sprintf("value-%d", i)))
		if err != nil {
			log.Printf("publish %s failed: %v\n", key, err)
			continue
		}

		log.Printf("published %s to %d peers\n", key, stored)
		keys = append(keys, key)
	}
	log.Printf("published %d records in %s, %d requests\n", len(keys), time.Since(started), net.Requests())

	online := make([]*kad.Node, 0, len(nodes))
	for _, n := range nodes {
		if rand.Float64() < cfg.Offline {
			net.Offline(n.Info().ID)
			continue
		}

		online = append(online, n)
	}
	log.Printf("%d of %d nodes remain online\n", len(online), len(nodes))

	if len(online) == 0 {
		return errorsx.New("every node went offline")
	}

	var found int
	started = time.Now()
	before := net.Requests()
	for _, key := range keys {
		if _, err := online[rand.IntN(len(online))].FindValue(ctx, key); err != nil {
			log.Printf("lookup %s failed: %v\n", key, err)
			continue
		}

		found++
	}

	log.Printf(
		"found %d of %d records in %s, %.1f requests per lookup\n",
		found, len(keys), time.Since(started), float64(net.Requests()-before)/float64(max(len(keys), 1)),
	)

	return nil
}
