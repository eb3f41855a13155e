package network

import (
	"github.com/stratum-smr/stratum/message"
	"github.com/stratum-smr/stratum/pkg/quorum"
)

type (
	// InformationProvider yields the local node identity, the public keys of
	// known peers and a snapshot of current membership. It is the read side of
	// whatever reconfiguration or discovery mechanism the deployment uses and
	// must be safe for concurrent use.
	InformationProvider interface {
		// OwnID is this node's identity.
		OwnID() quorum.NodeID

		// OwnPublicKey is the key peers verify this node's signatures with.
		OwnPublicKey() []byte

		// PublicKey looks up the verification key of a known node.
		PublicKey(id quorum.NodeID) ([]byte, bool)

		// KnownNodes is a snapshot of all currently known node ids.
		KnownNodes() []quorum.NodeID
	}

	// Node is the shared transport facade of one replica. A single node
	// instance is handed to the ordering, state-transfer and log-transfer
	// sub-protocols (wrapped per-protocol, see NodeWrap), so implementations
	// must be safe for concurrent use. Sends never block on the remote end;
	// delivery is best effort and failures are reported per target.
	Node interface {
		// ID is the identity the node sends under.
		ID() quorum.NodeID

		// Send delivers msg to a single target. When flush is set the
		// transport must not buffer the message.
		Send(msg message.SystemMessage, target quorum.NodeID, flush bool) error

		// SendSigned is Send with the envelope header signed by this node.
		SendSigned(msg message.SystemMessage, target quorum.NodeID, flush bool) error

		// Broadcast delivers msg to every target, returning the ids that
		// could not be reached rather than a single error, so the caller can
		// retry selectively.
		Broadcast(msg message.SystemMessage, targets []quorum.NodeID) []quorum.NodeID

		// BroadcastSigned is Broadcast with a signed envelope header.
		BroadcastSigned(msg message.SystemMessage, targets []quorum.NodeID) []quorum.NodeID

		// Incoming is the stream of envelopes delivered to this node.
		Incoming() <-chan *message.StoredMessage[message.SystemMessage]

		Close() error
	}
)

// StaticInfoProvider is an InformationProvider over a fixed membership table.
// Deployments with reconfiguration plug in their own provider; tests and
// bootstrap use this one.
type StaticInfoProvider struct {
	id    quorum.NodeID
	own   []byte
	keys  map[quorum.NodeID][]byte
	nodes []quorum.NodeID
}

func NewStaticInfoProvider(id quorum.NodeID, keys map[quorum.NodeID][]byte) *StaticInfoProvider {
	nodes := make([]quorum.NodeID, 0, len(keys))
	owned := make(map[quorum.NodeID][]byte, len(keys))
	for n, k := range keys {
		nodes = append(nodes, n)
		owned[n] = append([]byte(nil), k...)
	}
	return &StaticInfoProvider{id: id, own: owned[id], keys: owned, nodes: nodes}
}

func (p *StaticInfoProvider) OwnID() quorum.NodeID { return p.id }

func (p *StaticInfoProvider) OwnPublicKey() []byte { return p.own }

func (p *StaticInfoProvider) PublicKey(id quorum.NodeID) ([]byte, bool) {
	k, ok := p.keys[id]
	return k, ok
}

func (p *StaticInfoProvider) KnownNodes() []quorum.NodeID {
	nodes := make([]quorum.NodeID, len(p.nodes))
	copy(nodes, p.nodes)
	return nodes
}
