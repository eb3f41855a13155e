// Package logtransfer defines the contract of the sub-protocol that fetches
// missing decision-log entries from peers, for gaps too recent to warrant a
// full state transfer.
package logtransfer

import (
	"fmt"

	"github.com/stratum-smr/stratum/message"
	"github.com/stratum-smr/stratum/orderprotocol"
	"github.com/stratum-smr/stratum/pkg/ordering"
	"github.com/stratum-smr/stratum/pkg/quorum"
	"github.com/stratum-smr/stratum/timeouts"
)

// ResultKind discriminates the outcome of feeding work to a log transfer
// protocol.
type ResultKind uint8

const (
	// ResultRunning: the transfer made progress but is not done.
	ResultRunning ResultKind = iota + 1
	// ResultNotNeeded: the local log is already complete.
	ResultNotNeeded
	// ResultFinished: the missing range was recovered; the result carries
	// the recovered decisions in slot order.
	ResultFinished
	// ResultRestart: the transfer went stale and was restarted.
	ResultRestart
)

func (k ResultKind) String() string {
	switch k {
	case ResultRunning:
		return "LogTransferRunning"
	case ResultNotNeeded:
		return "LogTransferNotNeeded"
	case ResultFinished:
		return "LogTransferFinished"
	case ResultRestart:
		return "LogTransferRestart"
	default:
		return fmt.Sprintf("ResultKind(%d)", uint8(k))
	}
}

// Result reports transfer progress. A Finished result carries the recovered
// range and its decisions, each of which is terminal and verified.
type Result[MD, P, O any] struct {
	kind        ResultKind
	first, last ordering.SeqNo
	decisions   []orderprotocol.Decision[MD, P, O]
}

func Running[MD, P, O any]() Result[MD, P, O] {
	return Result[MD, P, O]{kind: ResultRunning}
}

func NotNeeded[MD, P, O any]() Result[MD, P, O] {
	return Result[MD, P, O]{kind: ResultNotNeeded}
}

func Finished[MD, P, O any](first, last ordering.SeqNo, decisions []orderprotocol.Decision[MD, P, O]) Result[MD, P, O] {
	return Result[MD, P, O]{kind: ResultFinished, first: first, last: last, decisions: decisions}
}

func Restarted[MD, P, O any]() Result[MD, P, O] {
	return Result[MD, P, O]{kind: ResultRestart}
}

func (r Result[MD, P, O]) Kind() ResultKind                               { return r.kind }
func (r Result[MD, P, O]) Range() (ordering.SeqNo, ordering.SeqNo)       { return r.first, r.last }
func (r Result[MD, P, O]) Decisions() []orderprotocol.Decision[MD, P, O] { return r.decisions }

func (r Result[MD, P, O]) String() string {
	if r.kind == ResultFinished {
		return fmt.Sprintf("%s(%d..%d, %d decisions)", r.kind, r.first, r.last, len(r.decisions))
	}
	return r.kind.String()
}

// LogTransferProtocol is the driver contract of a decision-log catch-up
// implementation with payload type L, recovering decisions typed by the
// ordering protocol's MD, P and O.
type LogTransferProtocol[MD, P, O, L any] interface {
	// RequestLatestLog starts a transfer towards the quorum's current log
	// head.
	RequestLatestLog() error

	// ProcessMessage feeds one verified log transfer message in.
	ProcessMessage(msg *message.StoredMessage[message.LogTransfer[L]]) (Result[MD, P, O], error)

	// HandleOffCtxMessage stashes a message received while no transfer runs;
	// peers' log requests are answered from here.
	HandleOffCtxMessage(msg *message.StoredMessage[message.LogTransfer[L]])

	// HandleTimeout reports an expired transfer timeout.
	HandleTimeout(expired []timeouts.RqTimeout) (Result[MD, P, O], error)
}

// SendNode is the transport facade handed to a log transfer protocol,
// speaking its payload type L.
type SendNode[L any] interface {
	ID() quorum.NodeID
	Send(payload L, target quorum.NodeID, flush bool) error
	SendSigned(payload L, target quorum.NodeID, flush bool) error
	Broadcast(payload L, targets []quorum.NodeID) []quorum.NodeID
	BroadcastSigned(payload L, targets []quorum.NodeID) []quorum.NodeID
}
