package query

import (
	"github.com/james-lawrence/kad/dht/krpc"
)

type kind uint8

const (
	kindEmpty kind = iota
	kindValue
	kindCloserPeers
	kindFailure
)

// Result is what a single peer query produced. Construct it with Value,
// CloserPeers, Empty or Failure.
type Result struct {
	kind   kind
	value  any
	closer []krpc.NodeInfo
	err    error
}

// Value the peer holds for the key, optionally with peers closer to the key.
func Value(v any, closer ...krpc.NodeInfo) Result {
	return Result{kind: kindValue, value: v, closer: closer}
}

// CloserPeers the peer knows about.
func CloserPeers(closer ...krpc.NodeInfo) Result {
	return Result{kind: kindCloserPeers, closer: closer}
}

// Empty the peer could not help.
func Empty() Result {
	return Result{kind: kindEmpty}
}

// Failure the peer could not be queried.
func Failure(err error) Result {
	if err == nil {
		return Empty()
	}

	return Result{kind: kindFailure, err: err}
}

// Outcome of querying a single peer, emitted in completion order. Never
// carries both a value and an error.
type Outcome struct {
	From        krpc.NodeID
	Value       any
	CloserPeers []krpc.NodeInfo
	Err         error
}

// Found reports whether the peer returned a value.
func (t Outcome) Found() bool {
	return t.Value != nil
}

func newOutcome(from krpc.NodeID, r Result) Outcome {
	switch r.kind {
	case kindValue:
		return Outcome{From: from, Value: r.value, CloserPeers: r.closer}
	case kindCloserPeers:
		return Outcome{From: from, CloserPeers: r.closer}
	case kindFailure:
		return Outcome{From: from, Err: r.err}
	default:
		return Outcome{From: from}
	}
}
