package message

import "fmt"

// Kind is the stable wire discriminant of a system message variant.
type Kind uint8

const (
	KindOrderedRequest Kind = iota + 1
	KindOrderedReply
	KindUnorderedRequest
	KindUnorderedReply
	KindProtocol
	KindStateTransfer
	KindLogTransfer
	KindForwardedProtocol
	KindForwardedRequests
)

func (k Kind) String() string {
	switch k {
	case KindOrderedRequest:
		return "OrderedRequest"
	case KindOrderedReply:
		return "OrderedReply"
	case KindUnorderedRequest:
		return "UnorderedRequest"
	case KindUnorderedReply:
		return "UnorderedReply"
	case KindProtocol:
		return "ProtocolMessage"
	case KindStateTransfer:
		return "StateTransferMessage"
	case KindLogTransfer:
		return "LogTransferMessage"
	case KindForwardedProtocol:
		return "ForwardedProtocolMessage"
	case KindForwardedRequests:
		return "ForwardedRequestMessage"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// SystemMessage is the tagged union of everything that flows on the wire
// between replicas and clients of one replicated service. Concrete variants
// are the generic structs below; consumers recover the payload with a type
// switch on the variant they are prepared to handle.
type SystemMessage interface {
	MsgKind() Kind
}

// Protocol carries an ordering-protocol-specific payload.
type Protocol[P any] struct {
	payload P
}

func NewProtocol[P any](payload P) Protocol[P] {
	return Protocol[P]{payload: payload}
}

func (Protocol[P]) MsgKind() Kind     { return KindProtocol }
func (m Protocol[P]) Payload() P      { return m.payload }

// StateTransfer carries a state catch-up payload.
type StateTransfer[S any] struct {
	payload S
}

func NewStateTransfer[S any](payload S) StateTransfer[S] {
	return StateTransfer[S]{payload: payload}
}

func (StateTransfer[S]) MsgKind() Kind { return KindStateTransfer }
func (m StateTransfer[S]) Payload() S  { return m.payload }

// LogTransfer carries a decision-log catch-up payload.
type LogTransfer[L any] struct {
	payload L
}

func NewLogTransfer[L any](payload L) LogTransfer[L] {
	return LogTransfer[L]{payload: payload}
}

func (LogTransfer[L]) MsgKind() Kind { return KindLogTransfer }
func (m LogTransfer[L]) Payload() L  { return m.payload }

// OrderedRequest is a client request that must go through consensus.
type OrderedRequest[O any] struct {
	request Request[O]
}

func NewOrderedRequest[O any](request Request[O]) OrderedRequest[O] {
	return OrderedRequest[O]{request: request}
}

func (OrderedRequest[O]) MsgKind() Kind          { return KindOrderedRequest }
func (m OrderedRequest[O]) Request() Request[O]  { return m.request }

// UnorderedRequest is a read-only client request answered without ordering.
type UnorderedRequest[O any] struct {
	request Request[O]
}

func NewUnorderedRequest[O any](request Request[O]) UnorderedRequest[O] {
	return UnorderedRequest[O]{request: request}
}

func (UnorderedRequest[O]) MsgKind() Kind         { return KindUnorderedRequest }
func (m UnorderedRequest[O]) Request() Request[O] { return m.request }

// OrderedReply answers an ordered request.
type OrderedReply[R any] struct {
	reply Reply[R]
}

func NewOrderedReply[R any](reply Reply[R]) OrderedReply[R] {
	return OrderedReply[R]{reply: reply}
}

func (OrderedReply[R]) MsgKind() Kind      { return KindOrderedReply }
func (m OrderedReply[R]) Reply() Reply[R]  { return m.reply }

// UnorderedReply answers an unordered request.
type UnorderedReply[R any] struct {
	reply Reply[R]
}

func NewUnorderedReply[R any](reply Reply[R]) UnorderedReply[R] {
	return UnorderedReply[R]{reply: reply}
}

func (UnorderedReply[R]) MsgKind() Kind     { return KindUnorderedReply }
func (m UnorderedReply[R]) Reply() Reply[R] { return m.reply }

// ForwardedProtocol relays a protocol message previously received by another
// replica, preserving the header it was originally signed under. Verification
// of a forward consults only the inner header and payload; the outer carrier
// lends it no trust.
type ForwardedProtocol[P any] struct {
	inner *StoredMessage[Protocol[P]]
}

func NewForwardedProtocol[P any](inner *StoredMessage[Protocol[P]]) ForwardedProtocol[P] {
	return ForwardedProtocol[P]{inner: inner}
}

func (ForwardedProtocol[P]) MsgKind() Kind { return KindForwardedProtocol }

// Inner is the stored message as the forwarding replica received it.
func (m ForwardedProtocol[P]) Inner() *StoredMessage[Protocol[P]] { return m.inner }

// ForwardedRequests relays a batch of client requests, each under the header
// the client originally signed.
type ForwardedRequests[O any] struct {
	requests []*StoredMessage[Request[O]]
}

func NewForwardedRequests[O any](requests []*StoredMessage[Request[O]]) ForwardedRequests[O] {
	return ForwardedRequests[O]{requests: requests}
}

func (ForwardedRequests[O]) MsgKind() Kind { return KindForwardedRequests }

func (m ForwardedRequests[O]) Requests() []*StoredMessage[Request[O]] { return m.requests }

// Codec round-trips system messages to wire bytes; both bundled codecs (the
// schema-based protowire one and the object-graph msgpack one) implement it
// for every variant.
type Codec interface {
	Marshal(msg SystemMessage) ([]byte, error)
	Unmarshal(data []byte) (SystemMessage, error)
}
