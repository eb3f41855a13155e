package statetransfer

import (
	"github.com/stratum-smr/stratum/pkg/digest"
	"github.com/stratum-smr/stratum/pkg/ordering"
)

// StateDescriptor summarizes a divisible checkpoint: which slot it captures
// and the digests of its parts, so a receiver can fetch parts from different
// peers and verify each independently.
type StateDescriptor struct {
	seq   ordering.SeqNo
	parts []digest.Digest
}

func NewStateDescriptor(seq ordering.SeqNo, parts []digest.Digest) StateDescriptor {
	return StateDescriptor{seq: seq, parts: parts}
}

func (d StateDescriptor) SequenceNumber() ordering.SeqNo { return d.seq }
func (d StateDescriptor) Parts() []digest.Digest         { return d.parts }

// StatePart is one verifiable chunk of a divisible checkpoint.
type StatePart struct {
	index int
	body  []byte
}

func NewStatePart(index int, body []byte) StatePart {
	return StatePart{index: index, body: body}
}

func (p StatePart) Index() int   { return p.index }
func (p StatePart) Body() []byte { return p.body }

// Digest is the identity of the part, matched against the descriptor.
func (p StatePart) Digest() digest.Digest { return digest.Sum(p.body) }

// DivisibleStateTransfer extends the base contract for applications whose
// state splits into independently transferable parts. The replica feeds
// descriptor and parts separately as the application produces them.
type DivisibleStateTransfer[S any] interface {
	StateTransferProtocol[S]

	// HandleStateDescriptor hands the protocol the descriptor of the latest
	// local checkpoint.
	HandleStateDescriptor(descriptor StateDescriptor) error

	// HandleStateParts hands the protocol checkpoint parts it asked the
	// application for.
	HandleStateParts(parts []StatePart) error
}

// InstallStateMessage is what a completed transfer delivers to the
// application: the slot the state corresponds to and its parts in index
// order.
type InstallStateMessage struct {
	seq   ordering.SeqNo
	parts []StatePart
}

func NewInstallStateMessage(seq ordering.SeqNo, parts []StatePart) InstallStateMessage {
	return InstallStateMessage{seq: seq, parts: parts}
}

func (m InstallStateMessage) SequenceNumber() ordering.SeqNo { return m.seq }
func (m InstallStateMessage) Parts() []StatePart             { return m.parts }
