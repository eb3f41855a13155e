package network

import (
	"github.com/stratum-smr/stratum/exec"
	"github.com/stratum-smr/stratum/logtransfer"
	"github.com/stratum-smr/stratum/message"
	"github.com/stratum-smr/stratum/orderprotocol"
	"github.com/stratum-smr/stratum/pkg/quorum"
	"github.com/stratum-smr/stratum/statetransfer"
)

// NodeWrap derives the per-protocol transport facades from one shared Node.
// Each sub-protocol only ever sees its own payload type; the wrap lifts
// payloads into the matching envelope variant on the way out, so no protocol
// can emit a variant that is not its own.
type NodeWrap[O, R, P, S, L any] struct {
	node Node
}

func Wrap[O, R, P, S, L any](node Node) NodeWrap[O, R, P, S, L] {
	return NodeWrap[O, R, P, S, L]{node: node}
}

func (w NodeWrap[O, R, P, S, L]) Node() Node { return w.node }

// OrderingNode is the facade handed to the ordering protocol.
func (w NodeWrap[O, R, P, S, L]) OrderingNode() orderprotocol.SendNode[O, P] {
	return protocolNode[O, P]{node: w.node}
}

// StateNode is the facade handed to the state transfer protocol.
func (w NodeWrap[O, R, P, S, L]) StateNode() statetransfer.SendNode[S] {
	return stateNode[S]{node: w.node}
}

// LogNode is the facade handed to the log transfer protocol.
func (w NodeWrap[O, R, P, S, L]) LogNode() logtransfer.SendNode[L] {
	return logNode[L]{node: w.node}
}

// ReplyNode is the facade handed to the executor for client replies.
func (w NodeWrap[O, R, P, S, L]) ReplyNode() exec.ReplyNode[R] {
	return replyNode[R]{node: w.node}
}

type protocolNode[O, P any] struct {
	node Node
}

func (n protocolNode[O, P]) ID() quorum.NodeID { return n.node.ID() }

func (n protocolNode[O, P]) Send(payload P, target quorum.NodeID, flush bool) error {
	return n.node.Send(message.NewProtocol(payload), target, flush)
}

func (n protocolNode[O, P]) SendSigned(payload P, target quorum.NodeID, flush bool) error {
	return n.node.SendSigned(message.NewProtocol(payload), target, flush)
}

func (n protocolNode[O, P]) Broadcast(payload P, targets []quorum.NodeID) []quorum.NodeID {
	return n.node.Broadcast(message.NewProtocol(payload), targets)
}

func (n protocolNode[O, P]) BroadcastSigned(payload P, targets []quorum.NodeID) []quorum.NodeID {
	return n.node.BroadcastSigned(message.NewProtocol(payload), targets)
}

func (n protocolNode[O, P]) ForwardRequests(requests []*message.StoredMessage[message.Request[O]], targets []quorum.NodeID) []quorum.NodeID {
	return n.node.BroadcastSigned(message.NewForwardedRequests(requests), targets)
}

func (n protocolNode[O, P]) ForwardProtocol(msg *message.StoredMessage[message.Protocol[P]], targets []quorum.NodeID) []quorum.NodeID {
	return n.node.BroadcastSigned(message.NewForwardedProtocol(msg), targets)
}

type stateNode[S any] struct {
	node Node
}

func (n stateNode[S]) ID() quorum.NodeID { return n.node.ID() }

func (n stateNode[S]) Send(payload S, target quorum.NodeID, flush bool) error {
	return n.node.Send(message.NewStateTransfer(payload), target, flush)
}

func (n stateNode[S]) SendSigned(payload S, target quorum.NodeID, flush bool) error {
	return n.node.SendSigned(message.NewStateTransfer(payload), target, flush)
}

func (n stateNode[S]) Broadcast(payload S, targets []quorum.NodeID) []quorum.NodeID {
	return n.node.Broadcast(message.NewStateTransfer(payload), targets)
}

func (n stateNode[S]) BroadcastSigned(payload S, targets []quorum.NodeID) []quorum.NodeID {
	return n.node.BroadcastSigned(message.NewStateTransfer(payload), targets)
}

type logNode[L any] struct {
	node Node
}

func (n logNode[L]) ID() quorum.NodeID { return n.node.ID() }

func (n logNode[L]) Send(payload L, target quorum.NodeID, flush bool) error {
	return n.node.Send(message.NewLogTransfer(payload), target, flush)
}

func (n logNode[L]) SendSigned(payload L, target quorum.NodeID, flush bool) error {
	return n.node.SendSigned(message.NewLogTransfer(payload), target, flush)
}

func (n logNode[L]) Broadcast(payload L, targets []quorum.NodeID) []quorum.NodeID {
	return n.node.Broadcast(message.NewLogTransfer(payload), targets)
}

func (n logNode[L]) BroadcastSigned(payload L, targets []quorum.NodeID) []quorum.NodeID {
	return n.node.BroadcastSigned(message.NewLogTransfer(payload), targets)
}

type replyNode[R any] struct {
	node Node
}

func wrapReply[R any](replyType exec.ReplyType, reply message.Reply[R]) message.SystemMessage {
	if replyType == exec.Ordered {
		return message.NewOrderedReply(reply)
	}
	return message.NewUnorderedReply(reply)
}

func (n replyNode[R]) Send(replyType exec.ReplyType, reply message.Reply[R], target quorum.NodeID, flush bool) error {
	return n.node.Send(wrapReply(replyType, reply), target, flush)
}

func (n replyNode[R]) SendSigned(replyType exec.ReplyType, reply message.Reply[R], target quorum.NodeID, flush bool) error {
	return n.node.SendSigned(wrapReply(replyType, reply), target, flush)
}

func (n replyNode[R]) Broadcast(replyType exec.ReplyType, reply message.Reply[R], targets []quorum.NodeID) []quorum.NodeID {
	return n.node.Broadcast(wrapReply(replyType, reply), targets)
}

func (n replyNode[R]) BroadcastSigned(replyType exec.ReplyType, reply message.Reply[R], targets []quorum.NodeID) []quorum.NodeID {
	return n.node.BroadcastSigned(wrapReply(replyType, reply), targets)
}
