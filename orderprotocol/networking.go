package orderprotocol

import (
	"github.com/stratum-smr/stratum/message"
	"github.com/stratum-smr/stratum/pkg/quorum"
)

// SendNode is the transport surface handed to an ordering protocol. It speaks
// the protocol's own payload type P; the implementation wraps payloads into
// the service's envelope before they touch the wire, so a protocol never sees
// or constructs system messages itself.
type SendNode[O, P any] interface {
	// ID is the identity this node sends under.
	ID() quorum.NodeID

	// Send delivers a protocol payload to one target. flush bypasses
	// transport buffering.
	Send(payload P, target quorum.NodeID, flush bool) error

	// SendSigned is Send with a signed envelope header.
	SendSigned(payload P, target quorum.NodeID, flush bool) error

	// Broadcast delivers a payload to every target, returning the ids that
	// could not be reached.
	Broadcast(payload P, targets []quorum.NodeID) []quorum.NodeID

	// BroadcastSigned is Broadcast with a signed envelope header.
	BroadcastSigned(payload P, targets []quorum.NodeID) []quorum.NodeID

	// ForwardRequests relays client requests, preserving the headers the
	// clients signed, so the receiver can verify them as if delivered
	// directly.
	ForwardRequests(requests []*message.StoredMessage[message.Request[O]], targets []quorum.NodeID) []quorum.NodeID

	// ForwardProtocol relays a protocol message received from a third party
	// under its original header.
	ForwardProtocol(msg *message.StoredMessage[message.Protocol[P]], targets []quorum.NodeID) []quorum.NodeID
}
