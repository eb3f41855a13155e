package message

import (
	"github.com/stratum-smr/stratum/pkg/digest"
	"github.com/stratum-smr/stratum/pkg/ordering"
)

// Request is a client operation as it travels through the system. The session
// identifies one client connection; the operation id increases monotonically
// within it, which lets replicas discard stale retransmissions.
type Request[O any] struct {
	session   ordering.SeqNo
	operation ordering.SeqNo
	payload   O
}

func NewRequest[O any](session, operation ordering.SeqNo, payload O) Request[O] {
	return Request[O]{session: session, operation: operation, payload: payload}
}

func (r Request[O]) Session() ordering.SeqNo { return r.session }
func (r Request[O]) Operation() O            { return r.payload }

// SequenceNumber implements ordering.Orderable over the operation id.
func (r Request[O]) SequenceNumber() ordering.SeqNo { return r.operation }

// Reply carries the result of an executed operation back to the client that
// issued it, echoing the session and operation id of the request.
type Reply[R any] struct {
	session   ordering.SeqNo
	operation ordering.SeqNo
	payload   R
}

func NewReply[R any](session, operation ordering.SeqNo, payload R) Reply[R] {
	return Reply[R]{session: session, operation: operation, payload: payload}
}

func (r Reply[R]) Session() ordering.SeqNo          { return r.session }
func (r Reply[R]) Payload() R                       { return r.payload }
func (r Reply[R]) SequenceNumber() ordering.SeqNo   { return r.operation }

// ClientRqInfo is the per-request metadata bundled with a completed decision:
// enough to identify the request without carrying its payload.
type ClientRqInfo struct {
	Digest    digest.Digest
	Session   ordering.SeqNo
	Operation ordering.SeqNo
}

// DescribeRequest captures the identifying metadata of a request given the
// digest of its serialized operation.
func DescribeRequest[O any](dg digest.Digest, rq Request[O]) ClientRqInfo {
	return ClientRqInfo{Digest: dg, Session: rq.Session(), Operation: rq.SequenceNumber()}
}

// StoredMessage pairs a message body with the header it was delivered under.
//
// Stored messages are handed around by pointer under shared, read-only
// ownership: the fields are unexported and there are no setters, so any
// number of subsystems (protocol driver, decision log, telemetry) may hold
// the same instance without copies or interior mutation. The instance lives
// as long as its longest holder.
type StoredMessage[M any] struct {
	header Header
	body   M
}

func NewStoredMessage[M any](header Header, body M) *StoredMessage[M] {
	return &StoredMessage[M]{header: header, body: body}
}

func (m *StoredMessage[M]) Header() Header { return m.header }
func (m *StoredMessage[M]) Message() M     { return m.body }
