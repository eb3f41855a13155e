package service

import (
	"errors"
	"fmt"

	"github.com/stratum-smr/stratum/message"
	"github.com/stratum-smr/stratum/network"
	"github.com/stratum-smr/stratum/pkg/digest"
	"github.com/stratum-smr/stratum/pkg/sign"
)

var (
	ErrUnknownSender     = errors.New("sender is not a known node")
	ErrDigestMismatch    = errors.New("body digest does not match header")
	ErrInvalidSignature  = errors.New("header signature is invalid")
	ErrUnexpectedVariant = errors.New("verified message came back as a different variant")
)

// SignatureVerifier checks the envelope-level signature of a system message
// against its header and returns the message unchanged on success.
// Implementations must be deterministic and free of observable side effects:
// verifying the same (header, message) twice yields the same result and the
// same message.
type SignatureVerifier interface {
	VerifySignature(ni network.InformationProvider, header message.Header, msg message.SystemMessage) (message.SystemMessage, error)
}

// EnvelopeVerifier is the default SignatureVerifier. It re-serializes the
// message with the service codec, requires the body digest in the header to
// match, and verifies the header sign bytes under the sender's public key.
type EnvelopeVerifier struct {
	codec  message.Codec
	verify sign.VerifyFunc
}

func NewEnvelopeVerifier(codec message.Codec) *EnvelopeVerifier {
	return &EnvelopeVerifier{codec: codec, verify: sign.DefaultVerifyFunc()}
}

func (v *EnvelopeVerifier) VerifySignature(ni network.InformationProvider, header message.Header, msg message.SystemMessage) (message.SystemMessage, error) {
	body, err := v.codec.Marshal(msg)
	if err != nil {
		return msg, fmt.Errorf("serializing message for verification: %w", err)
	}
	if digest.Sum(body) != header.Digest() {
		return msg, ErrDigestMismatch
	}
	key, ok := ni.PublicKey(header.From())
	if !ok {
		return msg, fmt.Errorf("%w: %s", ErrUnknownSender, header.From())
	}
	if !v.verify(key, header.SignBytes(), header.Signature()) {
		return msg, ErrInvalidSignature
	}
	return msg, nil
}

// VerifyMessage dispatches a system message to the verifier of its variant.
// It returns whether the message checks out together with the (possibly
// normalized) message. The envelope-level signature of the outer header is
// the transport's concern (see SignatureVerifier); this covers everything
// variant-internal, including re-entering the envelope check for the headers
// embedded in forwarded messages.
//
// Ordered and unordered requests and replies are trusted at this layer: their
// signatures were checked by the transport when the envelope first arrived.
// A forwarded message earns no trust from its carrier: only the inner header
// and payload are consulted.
func (s Service[O, R, P, PF, S, L]) VerifyMessage(ni network.InformationProvider, sv SignatureVerifier, header message.Header, msg message.SystemMessage) (bool, message.SystemMessage, error) {
	helper := s.Helper(ni, sv)

	switch m := msg.(type) {
	case message.Protocol[P]:
		ok, payload, err := s.Order.VerifyProtocolMessage(ni, helper, header, m.Payload())
		if err != nil {
			return false, msg, err
		}
		return ok, message.NewProtocol(payload), nil

	case message.LogTransfer[L]:
		ok, payload, err := s.Log.VerifyLogMessage(ni, helper, header, m.Payload())
		if err != nil {
			return false, msg, err
		}
		return ok, message.NewLogTransfer(payload), nil

	case message.StateTransfer[S]:
		ok, payload, err := s.State.VerifyStateMessage(ni, header, m.Payload())
		if err != nil {
			return false, msg, err
		}
		return ok, message.NewStateTransfer(payload), nil

	case message.OrderedRequest[O], message.UnorderedRequest[O],
		message.OrderedReply[R], message.UnorderedReply[R]:
		return true, msg, nil

	case message.ForwardedProtocol[P]:
		inner := m.Inner()
		ok, _, err := s.Order.VerifyProtocolMessage(ni, helper, inner.Header(), inner.Message().Payload())
		if err != nil {
			return false, msg, err
		}
		return ok, msg, nil

	case message.ForwardedRequests[O]:
		result := true
		for _, stored := range m.Requests() {
			wrapped := WrapRequest(stored.Message())
			if _, err := sv.VerifySignature(ni, stored.Header(), wrapped); err != nil {
				result = false
			}
		}
		return result, msg, nil

	default:
		return false, msg, fmt.Errorf("unknown system message variant %T", msg)
	}
}

// VerifyEnvelope runs the envelope signature check followed by the
// variant-internal dispatch, which is what a transport does for every
// inbound message.
func (s Service[O, R, P, PF, S, L]) VerifyEnvelope(ni network.InformationProvider, sv SignatureVerifier, header message.Header, msg message.SystemMessage) (bool, message.SystemMessage, error) {
	msg, err := sv.VerifySignature(ni, header, msg)
	if err != nil {
		return false, msg, err
	}
	return s.VerifyMessage(ni, sv, header, msg)
}

// Helper builds the VerificationHelper protocol implementations use to check
// message parts embedded in their own payloads.
func (s Service[O, R, P, PF, S, L]) Helper(ni network.InformationProvider, sv SignatureVerifier) VerificationHelper[O, R, P] {
	return sigHelper[O, R, P, PF, S, L]{ni: ni, sv: sv}
}

// sigHelper wraps each embedded part into the full envelope type and runs it
// through the envelope signature verifier, so embedded parts share the
// top-level canonicalization.
type sigHelper[O, R, P, PF, S, L any] struct {
	ni network.InformationProvider
	sv SignatureVerifier
}

func (h sigHelper[O, R, P, PF, S, L]) VerifyRequestMessage(header message.Header, request message.Request[O]) (message.Request[O], error) {
	verified, err := h.sv.VerifySignature(h.ni, header, WrapRequest(request))
	if err != nil {
		return request, err
	}
	wrapped, ok := verified.(message.OrderedRequest[O])
	if !ok {
		return request, ErrUnexpectedVariant
	}
	return wrapped.Request(), nil
}

func (h sigHelper[O, R, P, PF, S, L]) VerifyReplyMessage(header message.Header, reply message.Reply[R]) (message.Reply[R], error) {
	verified, err := h.sv.VerifySignature(h.ni, header, WrapReply(reply))
	if err != nil {
		return reply, err
	}
	wrapped, ok := verified.(message.OrderedReply[R])
	if !ok {
		return reply, ErrUnexpectedVariant
	}
	return wrapped.Reply(), nil
}

func (h sigHelper[O, R, P, PF, S, L]) VerifyProtocolMessage(header message.Header, payload P) (P, error) {
	verified, err := h.sv.VerifySignature(h.ni, header, message.NewProtocol(payload))
	if err != nil {
		return payload, err
	}
	wrapped, ok := verified.(message.Protocol[P])
	if !ok {
		return payload, ErrUnexpectedVariant
	}
	return wrapped.Payload(), nil
}
