package krpc

import (
	"fmt"

	"github.com/james-lawrence/kad/dht/int256"
)

// NodeID is the opaque, stable identity of a peer derived from its
// cryptographic identity.
type NodeID string

// Key hashes the identity into the metric space.
func (t NodeID) Key() int256.T {
	return int256.New(string(t))
}

// NodeInfo is a peer's routable contact record.
type NodeInfo struct {
	ID      NodeID
	KadID   int256.T
	KadHost string
	APIHost string
}

func NewNodeInfo(id NodeID, kadhost, apihost string) NodeInfo {
	return NodeInfo{
		ID:      id,
		KadID:   id.Key(),
		KadHost: kadhost,
		APIHost: apihost,
	}
}

// Key returns the kademlia id, deriving it when the contact record omitted it.
func (t NodeInfo) Key() int256.T {
	if t.KadID.IsZero() {
		return t.ID.Key()
	}

	return t.KadID
}

func (t NodeInfo) String() string {
	return fmt.Sprintf("%s@%s", t.ID, t.KadHost)
}
