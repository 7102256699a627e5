// Package dht implements the local knowledge of the kademlia peer space: a
// k-bucket routing table answering nearest peer questions offline.
package dht

import (
	"context"
	"io"
	"log"
	"time"

	"github.com/james-lawrence/kad/dht/int256"
	"github.com/james-lawrence/kad/dht/krpc"
	"github.com/james-lawrence/kad/internal/errorsx"
)

const (
	// DefaultK is the bucket size, the k of the kademlia paper.
	DefaultK = 20

	defaultPingCandidates = 3
	defaultPingTimeout    = 5 * time.Second
	defaultPingRate       = 10
	defaultPingBurst      = 3
)

const (
	ErrIsSelf     = errorsx.String("the local node does not belong in the routing table")
	ErrBucketFull = errorsx.String("bucket is full")
)

type logging interface {
	Println(v ...any)
	Printf(format string, v ...any)
	Print(v ...any)
}

func discardlog() *log.Logger {
	return log.New(io.Discard, "", log.Flags())
}

// Pinger probes the liveness of a peer, any error marks the peer unresponsive.
type Pinger interface {
	Ping(ctx context.Context, n krpc.NodeInfo) error
}

type PingerFunc func(ctx context.Context, n krpc.NodeInfo) error

func (t PingerFunc) Ping(ctx context.Context, n krpc.NodeInfo) error {
	return t(ctx, n)
}

// RefreshFn performs a lookup for the target, used to repopulate buckets
// that have seen no activity.
type RefreshFn func(ctx context.Context, target int256.T) error

type TableOption func(*Table)

func TableOptionK(k int) TableOption {
	return func(t *Table) {
		t.k = k
	}
}

// TableOptionPinger sets the liveness probe used before evicting an occupant
// of a full bucket. Without one full buckets reject newcomers.
func TableOptionPinger(p Pinger) TableOption {
	return func(t *Table) {
		t.pinger = p
	}
}

func TableOptionPingTimeout(d time.Duration) TableOption {
	return func(t *Table) {
		t.pingTimeout = d
	}
}

// TableOptionPingRate bounds the liveness probes issued per second.
func TableOptionPingRate(perSecond float64, burst int) TableOption {
	return func(t *Table) {
		t.limiter.SetLimit(rateLimit(perSecond))
		t.limiter.SetBurst(burst)
	}
}

func TableOptionRefresh(interval time.Duration, fn RefreshFn) TableOption {
	return func(t *Table) {
		t.refreshInterval = interval
		t.refresh = fn
	}
}

func TableOptionLogger(l logging) TableOption {
	return func(t *Table) {
		t.log = l
	}
}
