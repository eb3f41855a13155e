package orderprotocol

import (
	"fmt"

	"github.com/stratum-smr/stratum/message"
	"github.com/stratum-smr/stratum/pkg/quorum"
)

// DecisionsAhead tells the caller what to do with decisions it may hold for
// slots beyond the ones just reported. A protocol that changed its mind about
// the future (a view change rolled back speculative slots, say) signals
// ClearAhead; steady-state progress signals Ignore.
type DecisionsAhead uint8

const (
	DecisionsAheadIgnore DecisionsAhead = iota + 1
	DecisionsAheadClearAhead
)

func (d DecisionsAhead) String() string {
	switch d {
	case DecisionsAheadIgnore:
		return "Ignore"
	case DecisionsAheadClearAhead:
		return "ClearAhead"
	default:
		return fmt.Sprintf("DecisionsAhead(%d)", uint8(d))
	}
}

// JoinInfo describes a node that was admitted to the quorum and the resulting
// membership.
type JoinInfo struct {
	Joined  quorum.NodeID
	Members []quorum.NodeID
}

// PollResultKind discriminates what a poll call asked the caller to do.
type PollResultKind uint8

const (
	// PollRunCst: the protocol fell behind and needs a state transfer.
	PollRunCst PollResultKind = iota + 1
	// PollReceiveMsg: nothing buffered, feed the protocol from the network.
	PollReceiveMsg
	// PollExec: the protocol dequeued a previously stashed message and wants
	// it run through ProcessMessage now.
	PollExec
	// PollProgressed: one or more decisions advanced.
	PollProgressed
	// PollQuorumJoined: a node was admitted, possibly alongside decisions.
	PollQuorumJoined
	// PollRePoll: internal bookkeeping only, poll again immediately.
	PollRePoll
)

func (k PollResultKind) String() string {
	switch k {
	case PollRunCst:
		return "RunCst"
	case PollReceiveMsg:
		return "ReceiveMsg"
	case PollExec:
		return "Exec"
	case PollProgressed:
		return "ProgressedDecision"
	case PollQuorumJoined:
		return "QuorumJoined"
	case PollRePoll:
		return "RePoll"
	default:
		return fmt.Sprintf("PollResultKind(%d)", uint8(k))
	}
}

// PollResult is what OrderingProtocol.Poll hands back to the replica loop.
// Exactly the fields relevant to the kind are populated.
type PollResult[MD, P, O any] struct {
	kind      PollResultKind
	msg       *message.StoredMessage[message.Protocol[P]]
	ahead     DecisionsAhead
	decisions []Decision[MD, P, O]
	join      *JoinInfo
}

func RunCstPoll[MD, P, O any]() PollResult[MD, P, O] {
	return PollResult[MD, P, O]{kind: PollRunCst}
}

func ReceiveMsgPoll[MD, P, O any]() PollResult[MD, P, O] {
	return PollResult[MD, P, O]{kind: PollReceiveMsg}
}

func ExecPoll[MD, P, O any](msg *message.StoredMessage[message.Protocol[P]]) PollResult[MD, P, O] {
	return PollResult[MD, P, O]{kind: PollExec, msg: msg}
}

func ProgressedPoll[MD, P, O any](ahead DecisionsAhead, decisions []Decision[MD, P, O]) PollResult[MD, P, O] {
	return PollResult[MD, P, O]{kind: PollProgressed, ahead: ahead, decisions: decisions}
}

func QuorumJoinedPoll[MD, P, O any](ahead DecisionsAhead, decisions []Decision[MD, P, O], join JoinInfo) PollResult[MD, P, O] {
	return PollResult[MD, P, O]{kind: PollQuorumJoined, ahead: ahead, decisions: decisions, join: &join}
}

func RePoll[MD, P, O any]() PollResult[MD, P, O] {
	return PollResult[MD, P, O]{kind: PollRePoll}
}

func (r PollResult[MD, P, O]) Kind() PollResultKind { return r.kind }

// Message is the stashed protocol message of a PollExec result.
func (r PollResult[MD, P, O]) Message() *message.StoredMessage[message.Protocol[P]] { return r.msg }

func (r PollResult[MD, P, O]) Ahead() DecisionsAhead           { return r.ahead }
func (r PollResult[MD, P, O]) Decisions() []Decision[MD, P, O] { return r.decisions }
func (r PollResult[MD, P, O]) Join() *JoinInfo                 { return r.join }

func (r PollResult[MD, P, O]) String() string {
	switch r.kind {
	case PollProgressed, PollQuorumJoined:
		return fmt.Sprintf("PollResult{%s, ahead: %s, decisions: %d}", r.kind, r.ahead, len(r.decisions))
	default:
		return fmt.Sprintf("PollResult{%s}", r.kind)
	}
}

// ExecResultKind discriminates the outcome of feeding one message to the
// protocol.
type ExecResultKind uint8

const (
	// ExecDropped: the message was discarded as irrelevant or invalid.
	ExecDropped ExecResultKind = iota + 1
	// ExecQueued: the message belongs to a future slot and was stashed; poll
	// will surface it again when its time comes.
	ExecQueued
	// ExecNoUpdate: processed, but no decision moved.
	ExecNoUpdate
	// ExecProgressed: one or more decisions advanced.
	ExecProgressed
	// ExecQuorumJoined: a node was admitted, possibly alongside decisions.
	ExecQuorumJoined
	// ExecRunCst: the message revealed the protocol is behind; run a state
	// transfer.
	ExecRunCst
)

func (k ExecResultKind) String() string {
	switch k {
	case ExecDropped:
		return "MessageDropped"
	case ExecQueued:
		return "MessageQueued"
	case ExecNoUpdate:
		return "MessageProcessedNoUpdate"
	case ExecProgressed:
		return "ProgressedDecision"
	case ExecQuorumJoined:
		return "QuorumJoined"
	case ExecRunCst:
		return "RunCst"
	default:
		return fmt.Sprintf("ExecResultKind(%d)", uint8(k))
	}
}

// ExecResult is what ProcessMessage and HandleTimeout hand back to the
// replica loop.
type ExecResult[MD, P, O any] struct {
	kind      ExecResultKind
	ahead     DecisionsAhead
	decisions []Decision[MD, P, O]
	join      *JoinInfo
}

func DroppedExec[MD, P, O any]() ExecResult[MD, P, O] {
	return ExecResult[MD, P, O]{kind: ExecDropped}
}

func QueuedExec[MD, P, O any]() ExecResult[MD, P, O] {
	return ExecResult[MD, P, O]{kind: ExecQueued}
}

func NoUpdateExec[MD, P, O any]() ExecResult[MD, P, O] {
	return ExecResult[MD, P, O]{kind: ExecNoUpdate}
}

func ProgressedExec[MD, P, O any](ahead DecisionsAhead, decisions []Decision[MD, P, O]) ExecResult[MD, P, O] {
	return ExecResult[MD, P, O]{kind: ExecProgressed, ahead: ahead, decisions: decisions}
}

func QuorumJoinedExec[MD, P, O any](ahead DecisionsAhead, decisions []Decision[MD, P, O], join JoinInfo) ExecResult[MD, P, O] {
	return ExecResult[MD, P, O]{kind: ExecQuorumJoined, ahead: ahead, decisions: decisions, join: &join}
}

func RunCstExec[MD, P, O any]() ExecResult[MD, P, O] {
	return ExecResult[MD, P, O]{kind: ExecRunCst}
}

func (r ExecResult[MD, P, O]) Kind() ExecResultKind            { return r.kind }
func (r ExecResult[MD, P, O]) Ahead() DecisionsAhead           { return r.ahead }
func (r ExecResult[MD, P, O]) Decisions() []Decision[MD, P, O] { return r.decisions }
func (r ExecResult[MD, P, O]) Join() *JoinInfo                 { return r.join }

func (r ExecResult[MD, P, O]) String() string {
	switch r.kind {
	case ExecProgressed, ExecQuorumJoined:
		return fmt.Sprintf("ExecResult{%s, ahead: %s, decisions: %d}", r.kind, r.ahead, len(r.decisions))
	default:
		return fmt.Sprintf("ExecResult{%s}", r.kind)
	}
}
