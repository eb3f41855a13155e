// Package service composes the four capability bundles that define the wire
// surface of one replicated service: the application payload types, the
// ordering protocol's messages, the state transfer messages and the log
// transfer messages. The composition is what the signature-verification
// dispatcher and the wire codecs are built from.
package service

import (
	"github.com/stratum-smr/stratum/message"
	"github.com/stratum-smr/stratum/network"
)

type (
	// ApplicationData defines how a service's request and reply payloads are
	// carried as bytes. Payload types must be cheaply copyable; the framework
	// never mutates them.
	ApplicationData[O, R any] interface {
		MarshalRequest(op O) ([]byte, error)
		UnmarshalRequest(data []byte) (O, error)
		MarshalReply(reply R) ([]byte, error)
		UnmarshalReply(data []byte) (R, error)
	}

	// VerificationHelper lets a protocol implementation validate the pieces
	// embedded in a multipart message (a consensus proof carrying client
	// requests and forwarded protocol messages, say) with the same
	// canonicalization as the top-level envelope. Each method wraps the piece
	// into the full system message, re-enters the envelope signature check
	// and hands back the verified piece.
	VerificationHelper[O, R, P any] interface {
		VerifyRequestMessage(header message.Header, request message.Request[O]) (message.Request[O], error)
		VerifyReplyMessage(header message.Header, reply message.Reply[R]) (message.Reply[R], error)
		VerifyProtocolMessage(header message.Header, payload P) (P, error)
	}

	// OrderingProtocolMessage is the capability bundle a pluggable ordering
	// protocol provides: verification and serialization of its own message
	// payload P and of the proofs PF it exchanges during catch-up. The
	// decision metadata type rides on the Decision model instead; see the
	// orderprotocol package.
	//
	// Verification must be deterministic, free of observable side effects and
	// return the (possibly normalized) payload alongside the verdict.
	OrderingProtocolMessage[O, R, P, PF any] interface {
		VerifyProtocolMessage(ni network.InformationProvider, helper VerificationHelper[O, R, P], header message.Header, payload P) (bool, P, error)
		VerifyProof(ni network.InformationProvider, helper VerificationHelper[O, R, P], proof PF) (bool, PF, error)
		MarshalProtocol(payload P) ([]byte, error)
		UnmarshalProtocol(data []byte) (P, error)
	}

	// StateTransferMessage is the capability bundle of a state transfer
	// protocol: its payload type S with verification and serialization.
	StateTransferMessage[S any] interface {
		VerifyStateMessage(ni network.InformationProvider, header message.Header, payload S) (bool, S, error)
		MarshalState(payload S) ([]byte, error)
		UnmarshalState(data []byte) (S, error)
	}

	// LogTransferMessage is the capability bundle of a log transfer protocol.
	// Its verifier receives the same helper as the ordering protocol's, since
	// transferred log entries embed ordering-protocol proofs and requests.
	LogTransferMessage[O, R, P, L any] interface {
		VerifyLogMessage(ni network.InformationProvider, helper VerificationHelper[O, R, P], header message.Header, payload L) (bool, L, error)
		MarshalLog(payload L) ([]byte, error)
		UnmarshalLog(data []byte) (L, error)
	}
)

// Service is the 4-tuple of capability bundles that fixes the wire message
// type of one replicated service. Its type parameters are the request O,
// reply R, protocol payload P, proof PF, state transfer payload S and log
// transfer payload L.
type Service[O, R, P, PF, S, L any] struct {
	App   ApplicationData[O, R]
	Order OrderingProtocolMessage[O, R, P, PF]
	State StateTransferMessage[S]
	Log   LogTransferMessage[O, R, P, L]
}

func NewService[O, R, P, PF, S, L any](
	app ApplicationData[O, R],
	order OrderingProtocolMessage[O, R, P, PF],
	state StateTransferMessage[S],
	log LogTransferMessage[O, R, P, L],
) Service[O, R, P, PF, S, L] {
	return Service[O, R, P, PF, S, L]{App: app, Order: order, State: state, Log: log}
}

// WrapRequest lifts a client request into the envelope type used for
// signature canonicalization, so clients and replicas sign and verify the
// exact same bytes.
func WrapRequest[O any](request message.Request[O]) message.SystemMessage {
	return message.NewOrderedRequest(request)
}

// WrapReply is the reply-side counterpart of WrapRequest.
func WrapReply[R any](reply message.Reply[R]) message.SystemMessage {
	return message.NewOrderedReply(reply)
}
