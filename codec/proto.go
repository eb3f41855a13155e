// Package codec provides the two bundled wire codecs for system messages: a
// schema-based one over protobuf wire encoding and an object-graph one over
// msgpack. Both are built from a service's capability bundles, which supply
// the payload serializers.
package codec

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/stratum-smr/stratum/message"
	"github.com/stratum-smr/stratum/pkg/ordering"
	"github.com/stratum-smr/stratum/service"
)

var (
	ErrTruncated      = errors.New("message bytes are truncated")
	ErrUnknownVariant = errors.New("unknown system message variant")
)

// ProtoCodec encodes system messages with the protobuf wire format. The
// envelope is two fields: the variant tag and the variant body; variant
// bodies nest request, reply and forwarding frames the same way. No generated
// code is involved; the frames are small and fixed, so they are written with
// protowire directly.
type ProtoCodec[O, R, P, PF, S, L any] struct {
	svc service.Service[O, R, P, PF, S, L]
}

func NewProtoCodec[O, R, P, PF, S, L any](svc service.Service[O, R, P, PF, S, L]) *ProtoCodec[O, R, P, PF, S, L] {
	return &ProtoCodec[O, R, P, PF, S, L]{svc: svc}
}

// Envelope field numbers.
const (
	fieldKind = 1
	fieldBody = 2
)

// Request and reply frame field numbers.
const (
	fieldSession   = 1
	fieldOperation = 2
	fieldPayload   = 3
)

// Forwarding frame field numbers.
const (
	fieldHeader = 1
	fieldInner  = 2
)

func (c *ProtoCodec[O, R, P, PF, S, L]) Marshal(msg message.SystemMessage) ([]byte, error) {
	body, err := c.marshalBody(msg)
	if err != nil {
		return nil, err
	}
	buf := protowire.AppendTag(nil, fieldKind, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(msg.MsgKind()))
	buf = protowire.AppendTag(buf, fieldBody, protowire.BytesType)
	buf = protowire.AppendBytes(buf, body)
	return buf, nil
}

func (c *ProtoCodec[O, R, P, PF, S, L]) marshalBody(msg message.SystemMessage) ([]byte, error) {
	switch m := msg.(type) {
	case message.OrderedRequest[O]:
		return c.marshalRequest(m.Request())
	case message.UnorderedRequest[O]:
		return c.marshalRequest(m.Request())
	case message.OrderedReply[R]:
		return c.marshalReply(m.Reply())
	case message.UnorderedReply[R]:
		return c.marshalReply(m.Reply())
	case message.Protocol[P]:
		return c.svc.Order.MarshalProtocol(m.Payload())
	case message.StateTransfer[S]:
		return c.svc.State.MarshalState(m.Payload())
	case message.LogTransfer[L]:
		return c.svc.Log.MarshalLog(m.Payload())
	case message.ForwardedProtocol[P]:
		inner, err := c.svc.Order.MarshalProtocol(m.Inner().Message().Payload())
		if err != nil {
			return nil, err
		}
		return appendForwardFrame(nil, m.Inner().Header(), inner), nil
	case message.ForwardedRequests[O]:
		var buf []byte
		for _, rq := range m.Requests() {
			frame, err := c.marshalRequest(rq.Message())
			if err != nil {
				return nil, err
			}
			entry := appendForwardFrame(nil, rq.Header(), frame)
			buf = protowire.AppendTag(buf, fieldInner, protowire.BytesType)
			buf = protowire.AppendBytes(buf, entry)
		}
		return buf, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownVariant, msg)
	}
}

func (c *ProtoCodec[O, R, P, PF, S, L]) marshalRequest(rq message.Request[O]) ([]byte, error) {
	payload, err := c.svc.App.MarshalRequest(rq.Operation())
	if err != nil {
		return nil, err
	}
	buf := protowire.AppendTag(nil, fieldSession, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(rq.Session()))
	buf = protowire.AppendTag(buf, fieldOperation, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(rq.SequenceNumber()))
	buf = protowire.AppendTag(buf, fieldPayload, protowire.BytesType)
	buf = protowire.AppendBytes(buf, payload)
	return buf, nil
}

func (c *ProtoCodec[O, R, P, PF, S, L]) marshalReply(rp message.Reply[R]) ([]byte, error) {
	payload, err := c.svc.App.MarshalReply(rp.Payload())
	if err != nil {
		return nil, err
	}
	buf := protowire.AppendTag(nil, fieldSession, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(rp.Session()))
	buf = protowire.AppendTag(buf, fieldOperation, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(rp.SequenceNumber()))
	buf = protowire.AppendTag(buf, fieldPayload, protowire.BytesType)
	buf = protowire.AppendBytes(buf, payload)
	return buf, nil
}

func appendForwardFrame(buf []byte, h message.Header, inner []byte) []byte {
	buf = protowire.AppendTag(buf, fieldHeader, protowire.BytesType)
	buf = protowire.AppendBytes(buf, message.MarshalHeader(h))
	buf = protowire.AppendTag(buf, fieldInner, protowire.BytesType)
	buf = protowire.AppendBytes(buf, inner)
	return buf
}

func (c *ProtoCodec[O, R, P, PF, S, L]) Unmarshal(data []byte) (message.SystemMessage, error) {
	var kind message.Kind
	var body []byte
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, ErrTruncated
		}
		data = data[n:]
		switch {
		case num == fieldKind && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, ErrTruncated
			}
			kind = message.Kind(v)
			data = data[n:]
		case num == fieldBody && typ == protowire.BytesType:
			b, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, ErrTruncated
			}
			body = b
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, ErrTruncated
			}
			data = data[n:]
		}
	}
	return c.unmarshalBody(kind, body)
}

func (c *ProtoCodec[O, R, P, PF, S, L]) unmarshalBody(kind message.Kind, body []byte) (message.SystemMessage, error) {
	switch kind {
	case message.KindOrderedRequest:
		rq, err := c.unmarshalRequest(body)
		if err != nil {
			return nil, err
		}
		return message.NewOrderedRequest(rq), nil
	case message.KindUnorderedRequest:
		rq, err := c.unmarshalRequest(body)
		if err != nil {
			return nil, err
		}
		return message.NewUnorderedRequest(rq), nil
	case message.KindOrderedReply:
		rp, err := c.unmarshalReply(body)
		if err != nil {
			return nil, err
		}
		return message.NewOrderedReply(rp), nil
	case message.KindUnorderedReply:
		rp, err := c.unmarshalReply(body)
		if err != nil {
			return nil, err
		}
		return message.NewUnorderedReply(rp), nil
	case message.KindProtocol:
		p, err := c.svc.Order.UnmarshalProtocol(body)
		if err != nil {
			return nil, err
		}
		return message.NewProtocol(p), nil
	case message.KindStateTransfer:
		s, err := c.svc.State.UnmarshalState(body)
		if err != nil {
			return nil, err
		}
		return message.NewStateTransfer(s), nil
	case message.KindLogTransfer:
		l, err := c.svc.Log.UnmarshalLog(body)
		if err != nil {
			return nil, err
		}
		return message.NewLogTransfer(l), nil
	case message.KindForwardedProtocol:
		h, inner, err := consumeForwardFrame(body)
		if err != nil {
			return nil, err
		}
		p, err := c.svc.Order.UnmarshalProtocol(inner)
		if err != nil {
			return nil, err
		}
		return message.NewForwardedProtocol(message.NewStoredMessage(h, message.NewProtocol(p))), nil
	case message.KindForwardedRequests:
		var requests []*message.StoredMessage[message.Request[O]]
		for len(body) > 0 {
			num, typ, n := protowire.ConsumeTag(body)
			if n < 0 {
				return nil, ErrTruncated
			}
			body = body[n:]
			if num != fieldInner || typ != protowire.BytesType {
				n := protowire.ConsumeFieldValue(num, typ, body)
				if n < 0 {
					return nil, ErrTruncated
				}
				body = body[n:]
				continue
			}
			entry, n := protowire.ConsumeBytes(body)
			if n < 0 {
				return nil, ErrTruncated
			}
			body = body[n:]
			h, frame, err := consumeForwardFrame(entry)
			if err != nil {
				return nil, err
			}
			rq, err := c.unmarshalRequest(frame)
			if err != nil {
				return nil, err
			}
			requests = append(requests, message.NewStoredMessage(h, rq))
		}
		return message.NewForwardedRequests(requests), nil
	default:
		return nil, fmt.Errorf("%w: kind %d", ErrUnknownVariant, kind)
	}
}

func (c *ProtoCodec[O, R, P, PF, S, L]) unmarshalRequest(body []byte) (message.Request[O], error) {
	session, operation, payload, err := consumeRequestFrame(body)
	if err != nil {
		return message.Request[O]{}, err
	}
	op, err := c.svc.App.UnmarshalRequest(payload)
	if err != nil {
		return message.Request[O]{}, err
	}
	return message.NewRequest(session, operation, op), nil
}

func (c *ProtoCodec[O, R, P, PF, S, L]) unmarshalReply(body []byte) (message.Reply[R], error) {
	session, operation, payload, err := consumeRequestFrame(body)
	if err != nil {
		return message.Reply[R]{}, err
	}
	rp, err := c.svc.App.UnmarshalReply(payload)
	if err != nil {
		return message.Reply[R]{}, err
	}
	return message.NewReply(session, operation, rp), nil
}

func consumeRequestFrame(body []byte) (session, operation ordering.SeqNo, payload []byte, err error) {
	for len(body) > 0 {
		num, typ, n := protowire.ConsumeTag(body)
		if n < 0 {
			return 0, 0, nil, ErrTruncated
		}
		body = body[n:]
		switch {
		case num == fieldSession && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(body)
			if n < 0 {
				return 0, 0, nil, ErrTruncated
			}
			session = ordering.SeqNo(v)
			body = body[n:]
		case num == fieldOperation && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(body)
			if n < 0 {
				return 0, 0, nil, ErrTruncated
			}
			operation = ordering.SeqNo(v)
			body = body[n:]
		case num == fieldPayload && typ == protowire.BytesType:
			b, n := protowire.ConsumeBytes(body)
			if n < 0 {
				return 0, 0, nil, ErrTruncated
			}
			payload = b
			body = body[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, body)
			if n < 0 {
				return 0, 0, nil, ErrTruncated
			}
			body = body[n:]
		}
	}
	return session, operation, payload, nil
}

func consumeForwardFrame(body []byte) (message.Header, []byte, error) {
	var header message.Header
	var inner []byte
	for len(body) > 0 {
		num, typ, n := protowire.ConsumeTag(body)
		if n < 0 {
			return message.Header{}, nil, ErrTruncated
		}
		body = body[n:]
		switch {
		case num == fieldHeader && typ == protowire.BytesType:
			b, n := protowire.ConsumeBytes(body)
			if n < 0 {
				return message.Header{}, nil, ErrTruncated
			}
			h, _, err := message.UnmarshalHeader(b)
			if err != nil {
				return message.Header{}, nil, err
			}
			header = h
			body = body[n:]
		case num == fieldInner && typ == protowire.BytesType:
			b, n := protowire.ConsumeBytes(body)
			if n < 0 {
				return message.Header{}, nil, ErrTruncated
			}
			inner = b
			body = body[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, body)
			if n < 0 {
				return message.Header{}, nil, ErrTruncated
			}
			body = body[n:]
		}
	}
	return header, inner, nil
}
