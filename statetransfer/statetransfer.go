// Package statetransfer defines the contract of the sub-protocol that brings
// a lagging replica's application state up to a recent checkpoint, so the
// ordering protocol can resume from there instead of replaying history.
package statetransfer

import (
	"fmt"

	"github.com/stratum-smr/stratum/message"
	"github.com/stratum-smr/stratum/pkg/ordering"
	"github.com/stratum-smr/stratum/pkg/quorum"
	"github.com/stratum-smr/stratum/timeouts"
)

// ResultKind discriminates the outcome of feeding work to a state transfer
// protocol.
type ResultKind uint8

const (
	// ResultRunning: the transfer made progress but is not done.
	ResultRunning ResultKind = iota + 1
	// ResultNotNeeded: the local state is already recent enough.
	ResultNotNeeded
	// ResultFinished: the state up to the carried slot is installed.
	ResultFinished
	// ResultRestart: the transfer went stale (the quorum moved on) and was
	// restarted from scratch.
	ResultRestart
)

func (k ResultKind) String() string {
	switch k {
	case ResultRunning:
		return "StateTransferRunning"
	case ResultNotNeeded:
		return "StateTransferNotNeeded"
	case ResultFinished:
		return "StateTransferFinished"
	case ResultRestart:
		return "StateTransferRestart"
	default:
		return fmt.Sprintf("ResultKind(%d)", uint8(k))
	}
}

// Result reports transfer progress. Seq is meaningful for NotNeeded and
// Finished and names the slot the installed state corresponds to.
type Result struct {
	kind ResultKind
	seq  ordering.SeqNo
}

func Running() Result                         { return Result{kind: ResultRunning} }
func NotNeeded(seq ordering.SeqNo) Result     { return Result{kind: ResultNotNeeded, seq: seq} }
func Finished(seq ordering.SeqNo) Result      { return Result{kind: ResultFinished, seq: seq} }
func Restarted() Result                       { return Result{kind: ResultRestart} }
func (r Result) Kind() ResultKind             { return r.kind }
func (r Result) SequenceNumber() ordering.SeqNo { return r.seq }

func (r Result) String() string {
	switch r.kind {
	case ResultNotNeeded, ResultFinished:
		return fmt.Sprintf("%s(%d)", r.kind, r.seq)
	default:
		return r.kind.String()
	}
}

// StateTransferProtocol is the driver contract of a state catch-up
// implementation with payload type S. Like the ordering protocol it is driven
// from a single goroutine by the replica.
type StateTransferProtocol[S any] interface {
	// RequestLatestState starts a transfer towards the most recent quorum
	// checkpoint.
	RequestLatestState() error

	// ProcessMessage feeds one verified state transfer message in.
	ProcessMessage(msg *message.StoredMessage[message.StateTransfer[S]]) (Result, error)

	// HandleOffCtxMessage stashes a message received while no transfer runs;
	// most protocols answer peers' state requests from here.
	HandleOffCtxMessage(msg *message.StoredMessage[message.StateTransfer[S]])

	// HandleAppCheckpoint hands the protocol a fresh application checkpoint
	// so it can serve future transfers.
	HandleAppCheckpoint(seq ordering.SeqNo, checkpoint []byte) error

	// HandleTimeout reports an expired transfer timeout; the protocol retries
	// against other peers or declares the transfer stale.
	HandleTimeout(expired []timeouts.RqTimeout) (Result, error)
}

// SendNode is the transport facade handed to a state transfer protocol,
// speaking its payload type S.
type SendNode[S any] interface {
	ID() quorum.NodeID
	Send(payload S, target quorum.NodeID, flush bool) error
	SendSigned(payload S, target quorum.NodeID, flush bool) error
	Broadcast(payload S, targets []quorum.NodeID) []quorum.NodeID
	BroadcastSigned(payload S, targets []quorum.NodeID) []quorum.NodeID
}
