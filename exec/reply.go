package exec

import (
	"github.com/stratum-smr/stratum/message"
	"github.com/stratum-smr/stratum/pkg/quorum"
)

// ReplyType selects the envelope variant a reply travels under: replies to
// ordered requests go out as OrderedReply, replies to read-only requests as
// UnorderedReply.
type ReplyType uint8

const (
	Ordered ReplyType = iota
	Unordered
)

func (t ReplyType) String() string {
	if t == Ordered {
		return "ordered"
	}
	return "unordered"
}

// ReplyNode is a network node capable of sending replies to clients. The
// reply type picks the envelope variant before the message is delegated to
// the transport; broadcast reports the targets that could not be reached so
// the executor can retry them selectively.
type ReplyNode[R any] interface {
	Send(replyType ReplyType, reply message.Reply[R], target quorum.NodeID, flush bool) error

	SendSigned(replyType ReplyType, reply message.Reply[R], target quorum.NodeID, flush bool) error

	Broadcast(replyType ReplyType, reply message.Reply[R], targets []quorum.NodeID) []quorum.NodeID

	BroadcastSigned(replyType ReplyType, reply message.Reply[R], targets []quorum.NodeID) []quorum.NodeID
}
