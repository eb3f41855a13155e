package orderprotocol

import (
	"github.com/stratum-smr/stratum/message"
	"github.com/stratum-smr/stratum/pkg/ordering"
)

// WriteMode controls how a log write relates to the caller's progress.
// Blocking writes gate protocol progress on durability; non-blocking writes
// let the protocol run ahead of the disk and are flushed in batches.
type WriteMode uint8

const (
	WriteBlocking WriteMode = iota + 1
	WriteNonBlocking
)

func (m WriteMode) String() string {
	switch m {
	case WriteBlocking:
		return "Blocking"
	case WriteNonBlocking:
		return "NonBlocking"
	default:
		return "WriteMode(?)"
	}
}

// ExecutionResult is the application's feedback after consuming a decision
// batch: whether state kept accumulating or a checkpoint should begin so the
// decision log can be truncated.
type ExecutionResult uint8

const (
	ExecutionNil ExecutionResult = iota + 1
	ExecutionBeginCheckpoint
)

func (r ExecutionResult) String() string {
	switch r {
	case ExecutionNil:
		return "Nil"
	case ExecutionBeginCheckpoint:
		return "BeginCheckpoint"
	default:
		return "ExecutionResult(?)"
	}
}

// OrderingProtocolLog is the persistence hook a protocol writes its progress
// through. Implementations decide durability; the protocol only states what
// happened and how urgently it must hit stable storage.
type OrderingProtocolLog[MD, P any] interface {
	// WriteMetadata records the metadata of a slot.
	WriteMetadata(mode WriteMode, seq ordering.SeqNo, metadata MD) error

	// WriteMessage records a protocol message that advanced a slot.
	WriteMessage(mode WriteMode, seq ordering.SeqNo, msg *message.StoredMessage[message.Protocol[P]]) error

	// WriteDecided marks a slot terminal.
	WriteDecided(mode WriteMode, seq ordering.SeqNo) error

	// WriteInvalidated discards everything recorded for a slot that was
	// rolled back before completion.
	WriteInvalidated(mode WriteMode, seq ordering.SeqNo) error

	// WriteCheckpointed truncates the log up to and including seq after the
	// application checkpointed.
	WriteCheckpointed(mode WriteMode, seq ordering.SeqNo) error
}
