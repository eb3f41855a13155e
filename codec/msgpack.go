package codec

import (
	"fmt"

	ugorji "github.com/ugorji/go/codec"

	"github.com/stratum-smr/stratum/message"
	"github.com/stratum-smr/stratum/pkg/ordering"
	"github.com/stratum-smr/stratum/service"
)

// MsgpackCodec encodes system messages as one msgpack document per envelope.
// It trades the compactness of the protowire codec for schemaless framing,
// which is convenient when debugging wire captures.
type MsgpackCodec[O, R, P, PF, S, L any] struct {
	svc    service.Service[O, R, P, PF, S, L]
	handle ugorji.MsgpackHandle
}

func NewMsgpackCodec[O, R, P, PF, S, L any](svc service.Service[O, R, P, PF, S, L]) *MsgpackCodec[O, R, P, PF, S, L] {
	return &MsgpackCodec[O, R, P, PF, S, L]{svc: svc}
}

// mpEnvelope is the flat wire document; which fields are populated depends on
// the variant kind, mirroring how the variants themselves are shaped.
type mpEnvelope struct {
	Kind    uint8
	Session uint64    `codec:",omitempty"`
	Op      uint64    `codec:",omitempty"`
	Payload []byte    `codec:",omitempty"`
	Header  []byte    `codec:",omitempty"`
	Entries []mpEntry `codec:",omitempty"`
}

// mpEntry is one forwarded client request: the original header plus the
// request frame.
type mpEntry struct {
	Header  []byte
	Session uint64
	Op      uint64
	Payload []byte
}

func (c *MsgpackCodec[O, R, P, PF, S, L]) Marshal(msg message.SystemMessage) ([]byte, error) {
	env := mpEnvelope{Kind: uint8(msg.MsgKind())}

	switch m := msg.(type) {
	case message.OrderedRequest[O]:
		if err := c.fillRequest(&env, m.Request()); err != nil {
			return nil, err
		}
	case message.UnorderedRequest[O]:
		if err := c.fillRequest(&env, m.Request()); err != nil {
			return nil, err
		}
	case message.OrderedReply[R]:
		if err := c.fillReply(&env, m.Reply()); err != nil {
			return nil, err
		}
	case message.UnorderedReply[R]:
		if err := c.fillReply(&env, m.Reply()); err != nil {
			return nil, err
		}
	case message.Protocol[P]:
		payload, err := c.svc.Order.MarshalProtocol(m.Payload())
		if err != nil {
			return nil, err
		}
		env.Payload = payload
	case message.StateTransfer[S]:
		payload, err := c.svc.State.MarshalState(m.Payload())
		if err != nil {
			return nil, err
		}
		env.Payload = payload
	case message.LogTransfer[L]:
		payload, err := c.svc.Log.MarshalLog(m.Payload())
		if err != nil {
			return nil, err
		}
		env.Payload = payload
	case message.ForwardedProtocol[P]:
		payload, err := c.svc.Order.MarshalProtocol(m.Inner().Message().Payload())
		if err != nil {
			return nil, err
		}
		env.Header = message.MarshalHeader(m.Inner().Header())
		env.Payload = payload
	case message.ForwardedRequests[O]:
		for _, rq := range m.Requests() {
			payload, err := c.svc.App.MarshalRequest(rq.Message().Operation())
			if err != nil {
				return nil, err
			}
			env.Entries = append(env.Entries, mpEntry{
				Header:  message.MarshalHeader(rq.Header()),
				Session: uint64(rq.Message().Session()),
				Op:      uint64(rq.Message().SequenceNumber()),
				Payload: payload,
			})
		}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownVariant, msg)
	}

	var buf []byte
	if err := ugorji.NewEncoderBytes(&buf, &c.handle).Encode(env); err != nil {
		return nil, err
	}
	return buf, nil
}

func (c *MsgpackCodec[O, R, P, PF, S, L]) fillRequest(env *mpEnvelope, rq message.Request[O]) error {
	payload, err := c.svc.App.MarshalRequest(rq.Operation())
	if err != nil {
		return err
	}
	env.Session = uint64(rq.Session())
	env.Op = uint64(rq.SequenceNumber())
	env.Payload = payload
	return nil
}

func (c *MsgpackCodec[O, R, P, PF, S, L]) fillReply(env *mpEnvelope, rp message.Reply[R]) error {
	payload, err := c.svc.App.MarshalReply(rp.Payload())
	if err != nil {
		return err
	}
	env.Session = uint64(rp.Session())
	env.Op = uint64(rp.SequenceNumber())
	env.Payload = payload
	return nil
}

func (c *MsgpackCodec[O, R, P, PF, S, L]) Unmarshal(data []byte) (message.SystemMessage, error) {
	var env mpEnvelope
	if err := ugorji.NewDecoderBytes(data, &c.handle).Decode(&env); err != nil {
		return nil, err
	}

	switch message.Kind(env.Kind) {
	case message.KindOrderedRequest:
		rq, err := c.requestFrom(env.Session, env.Op, env.Payload)
		if err != nil {
			return nil, err
		}
		return message.NewOrderedRequest(rq), nil
	case message.KindUnorderedRequest:
		rq, err := c.requestFrom(env.Session, env.Op, env.Payload)
		if err != nil {
			return nil, err
		}
		return message.NewUnorderedRequest(rq), nil
	case message.KindOrderedReply:
		rp, err := c.replyFrom(env.Session, env.Op, env.Payload)
		if err != nil {
			return nil, err
		}
		return message.NewOrderedReply(rp), nil
	case message.KindUnorderedReply:
		rp, err := c.replyFrom(env.Session, env.Op, env.Payload)
		if err != nil {
			return nil, err
		}
		return message.NewUnorderedReply(rp), nil
	case message.KindProtocol:
		p, err := c.svc.Order.UnmarshalProtocol(env.Payload)
		if err != nil {
			return nil, err
		}
		return message.NewProtocol(p), nil
	case message.KindStateTransfer:
		s, err := c.svc.State.UnmarshalState(env.Payload)
		if err != nil {
			return nil, err
		}
		return message.NewStateTransfer(s), nil
	case message.KindLogTransfer:
		l, err := c.svc.Log.UnmarshalLog(env.Payload)
		if err != nil {
			return nil, err
		}
		return message.NewLogTransfer(l), nil
	case message.KindForwardedProtocol:
		h, _, err := message.UnmarshalHeader(env.Header)
		if err != nil {
			return nil, err
		}
		p, err := c.svc.Order.UnmarshalProtocol(env.Payload)
		if err != nil {
			return nil, err
		}
		return message.NewForwardedProtocol(message.NewStoredMessage(h, message.NewProtocol(p))), nil
	case message.KindForwardedRequests:
		requests := make([]*message.StoredMessage[message.Request[O]], 0, len(env.Entries))
		for _, entry := range env.Entries {
			h, _, err := message.UnmarshalHeader(entry.Header)
			if err != nil {
				return nil, err
			}
			rq, err := c.requestFrom(entry.Session, entry.Op, entry.Payload)
			if err != nil {
				return nil, err
			}
			requests = append(requests, message.NewStoredMessage(h, rq))
		}
		return message.NewForwardedRequests(requests), nil
	default:
		return nil, fmt.Errorf("%w: kind %d", ErrUnknownVariant, env.Kind)
	}
}

func (c *MsgpackCodec[O, R, P, PF, S, L]) requestFrom(session, op uint64, payload []byte) (message.Request[O], error) {
	body, err := c.svc.App.UnmarshalRequest(payload)
	if err != nil {
		return message.Request[O]{}, err
	}
	return message.NewRequest(ordering.SeqNo(session), ordering.SeqNo(op), body), nil
}

func (c *MsgpackCodec[O, R, P, PF, S, L]) replyFrom(session, op uint64, payload []byte) (message.Reply[R], error) {
	body, err := c.svc.App.UnmarshalReply(payload)
	if err != nil {
		return message.Reply[R]{}, err
	}
	return message.NewReply(ordering.SeqNo(session), ordering.SeqNo(op), body), nil
}
