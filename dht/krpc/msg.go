// Package krpc holds the types crossing the boundary between the kademlia
// engine and the transport that carries requests between peers.
package krpc

import (
	"github.com/james-lawrence/kad/dht/int256"
	"github.com/james-lawrence/kad/dht/records"
)

const (
	QueryPing     = "ping"
	QueryFindNode = "find_node"
	QueryGetValue = "get_value"
	QueryPut      = "put"
)

// Msg is a request sent to a peer. Only the fields the engine relies on are
// modelled, encoding is left to the transport.
type Msg struct {
	Q      string
	From   NodeInfo
	Key    int256.T
	Record *records.Record
}

// Response is a peer's answer to a Msg.
type Response struct {
	// Record set when the peer holds a record for the key. For puts it carries
	// the newer record that caused the write to be rejected.
	Record      *records.Record
	CloserPeers []NodeInfo
}

func NewPing(from NodeInfo) Msg {
	return Msg{Q: QueryPing, From: from}
}

func NewFindNode(from NodeInfo, key int256.T) Msg {
	return Msg{Q: QueryFindNode, From: from, Key: key}
}

func NewGetValue(from NodeInfo, key int256.T) Msg {
	return Msg{Q: QueryGetValue, From: from, Key: key}
}

func NewPut(from NodeInfo, r records.Record) Msg {
	return Msg{Q: QueryPut, From: from, Key: r.Key, Record: &r}
}
