package service

import (
	"github.com/stratum-smr/stratum/message"
	"github.com/stratum-smr/stratum/network"
	"github.com/stratum-smr/stratum/pkg/ordering"
	"github.com/stratum-smr/stratum/pkg/quorum"
)

// NoMessage is the unit payload of the degenerate NoProtocol capability.
type NoMessage struct{}

// NoProtocol satisfies every capability bundle with unit payloads. Its
// verification always reports the message as unverified and hands the payload
// back unchanged. It exists so client-only facets, which never exchange
// protocol, state-transfer or log-transfer messages, can still instantiate a
// Service.
type NoProtocol[O, R any] struct{}

func (NoProtocol[O, R]) VerifyProtocolMessage(_ network.InformationProvider, _ VerificationHelper[O, R, NoMessage], _ message.Header, payload NoMessage) (bool, NoMessage, error) {
	return false, payload, nil
}

func (NoProtocol[O, R]) VerifyProof(_ network.InformationProvider, _ VerificationHelper[O, R, NoMessage], proof NoMessage) (bool, NoMessage, error) {
	return false, proof, nil
}

func (NoProtocol[O, R]) MarshalProtocol(NoMessage) ([]byte, error) {
	return nil, nil
}

func (NoProtocol[O, R]) UnmarshalProtocol([]byte) (NoMessage, error) {
	return NoMessage{}, nil
}

func (NoProtocol[O, R]) VerifyStateMessage(_ network.InformationProvider, _ message.Header, payload NoMessage) (bool, NoMessage, error) {
	return false, payload, nil
}

func (NoProtocol[O, R]) MarshalState(NoMessage) ([]byte, error) {
	return nil, nil
}

func (NoProtocol[O, R]) UnmarshalState([]byte) (NoMessage, error) {
	return NoMessage{}, nil
}

func (NoProtocol[O, R]) VerifyLogMessage(_ network.InformationProvider, _ VerificationHelper[O, R, NoMessage], _ message.Header, payload NoMessage) (bool, NoMessage, error) {
	return false, payload, nil
}

func (NoProtocol[O, R]) MarshalLog(NoMessage) ([]byte, error) {
	return nil, nil
}

func (NoProtocol[O, R]) UnmarshalLog([]byte) (NoMessage, error) {
	return NoMessage{}, nil
}

// ClientService is the degenerate service used by client-only facets: the
// application bundle is real, everything else is NoProtocol.
func ClientService[O, R any](app ApplicationData[O, R]) Service[O, R, NoMessage, NoMessage, NoMessage, NoMessage] {
	np := NoProtocol[O, R]{}
	return Service[O, R, NoMessage, NoMessage, NoMessage, NoMessage]{App: app, Order: np, State: np, Log: np}
}

// NoView is the view placeholder of NoProtocol services. Client-only facets
// have no quorum view, so every method panics: they must be unreachable, and
// reaching one is a wiring bug in the caller.
type NoView struct{}

func (NoView) SequenceNumber() ordering.SeqNo {
	panic("NoView has no sequence number: client-only services carry no quorum view")
}

func (NoView) Primary() quorum.NodeID {
	panic("NoView has no primary: client-only services carry no quorum view")
}

func (NoView) Quorum() int {
	panic("NoView has no quorum: client-only services carry no quorum view")
}

func (NoView) QuorumMembers() []quorum.NodeID {
	panic("NoView has no members: client-only services carry no quorum view")
}

func (NoView) F() int {
	panic("NoView has no fault budget: client-only services carry no quorum view")
}

func (NoView) N() int {
	panic("NoView has no node count: client-only services carry no quorum view")
}
