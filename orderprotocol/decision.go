package orderprotocol

import (
	"fmt"
	"sort"

	"github.com/stratum-smr/stratum/exec"
	"github.com/stratum-smr/stratum/message"
	"github.com/stratum-smr/stratum/pkg/digest"
	"github.com/stratum-smr/stratum/pkg/ordering"
)

// InfoKind discriminates the progress stages a decision can report. The
// numeric order is the completion order: metadata first, protocol message
// batches while consensus runs, a terminal done entry last.
type InfoKind uint8

const (
	InfoMetadata InfoKind = iota + 1
	InfoPartial
	InfoDone
)

func (k InfoKind) String() string {
	switch k {
	case InfoMetadata:
		return "DecisionMetadata"
	case InfoPartial:
		return "PartialDecisionInformation"
	case InfoDone:
		return "DecisionDone"
	default:
		return fmt.Sprintf("InfoKind(%d)", uint8(k))
	}
}

// DecisionInfo is one progress entry of a decision: the protocol's metadata
// for the slot, a batch of protocol messages that advanced it, or the final
// executable outcome. Exactly the fields of the entry's kind are populated.
type DecisionInfo[MD, P, O any] struct {
	kind     InfoKind
	metadata MD
	messages []*message.StoredMessage[message.Protocol[P]]
	done     ProtocolConsensusDecision[O]
}

func MetadataInfo[MD, P, O any](metadata MD) DecisionInfo[MD, P, O] {
	return DecisionInfo[MD, P, O]{kind: InfoMetadata, metadata: metadata}
}

func PartialInfo[MD, P, O any](messages []*message.StoredMessage[message.Protocol[P]]) DecisionInfo[MD, P, O] {
	return DecisionInfo[MD, P, O]{kind: InfoPartial, messages: messages}
}

func DoneInfo[MD, P, O any](done ProtocolConsensusDecision[O]) DecisionInfo[MD, P, O] {
	return DecisionInfo[MD, P, O]{kind: InfoDone, done: done}
}

func (i DecisionInfo[MD, P, O]) Kind() InfoKind { return i.kind }
func (i DecisionInfo[MD, P, O]) Metadata() MD   { return i.metadata }
func (i DecisionInfo[MD, P, O]) Messages() []*message.StoredMessage[message.Protocol[P]] {
	return i.messages
}
func (i DecisionInfo[MD, P, O]) Done() ProtocolConsensusDecision[O] { return i.done }

// Decision aggregates everything learned about one consensus slot so far. The
// entries stay sorted by kind so a reader always sees metadata before partial
// batches before the terminal outcome, regardless of arrival order.
type Decision[MD, P, O any] struct {
	seq  ordering.SeqNo
	info []DecisionInfo[MD, P, O]
}

// SequenceNumber implements ordering.Orderable over the slot number.
func (d Decision[MD, P, O]) SequenceNumber() ordering.SeqNo { return d.seq }

// Info is the progress bundle in kind order. Callers must not mutate it.
func (d Decision[MD, P, O]) Info() []DecisionInfo[MD, P, O] { return d.info }

// Completed reports whether the decision carries its terminal outcome.
func (d Decision[MD, P, O]) Completed() bool {
	for _, entry := range d.info {
		if entry.kind == InfoDone {
			return true
		}
	}
	return false
}

// ExecutableBatch returns the terminal outcome, if the decision has reached
// one.
func (d Decision[MD, P, O]) ExecutableBatch() (ProtocolConsensusDecision[O], bool) {
	for _, entry := range d.info {
		if entry.kind == InfoDone {
			return entry.done, true
		}
	}
	return ProtocolConsensusDecision[O]{}, false
}

func (d Decision[MD, P, O]) String() string {
	return fmt.Sprintf("Decision{seq: %d, entries: %d, completed: %v}", d.seq, len(d.info), d.Completed())
}

// DecisionFromMetadata starts a decision from the protocol's slot metadata.
func DecisionFromMetadata[MD, P, O any](seq ordering.SeqNo, metadata MD) Decision[MD, P, O] {
	return Decision[MD, P, O]{seq: seq, info: []DecisionInfo[MD, P, O]{MetadataInfo[MD, P, O](metadata)}}
}

// DecisionFromMessage starts a decision from a single protocol message that
// advanced the slot.
func DecisionFromMessage[MD, P, O any](seq ordering.SeqNo, msg *message.StoredMessage[message.Protocol[P]]) Decision[MD, P, O] {
	return DecisionFromMessages[MD, P, O](seq, []*message.StoredMessage[message.Protocol[P]]{msg})
}

// DecisionFromMessages starts a decision from a batch of protocol messages.
func DecisionFromMessages[MD, P, O any](seq ordering.SeqNo, msgs []*message.StoredMessage[message.Protocol[P]]) Decision[MD, P, O] {
	return Decision[MD, P, O]{seq: seq, info: []DecisionInfo[MD, P, O]{PartialInfo[MD, P, O](msgs)}}
}

// CompletedDecision builds a decision that is already terminal.
func CompletedDecision[MD, P, O any](seq ordering.SeqNo, outcome ProtocolConsensusDecision[O]) Decision[MD, P, O] {
	return Decision[MD, P, O]{seq: seq, info: []DecisionInfo[MD, P, O]{DoneInfo[MD, P, O](outcome)}}
}

// FullDecision builds a terminal decision that also carries its metadata and
// the messages that produced it, the shape recovered decisions arrive in
// during log transfer.
func FullDecision[MD, P, O any](
	seq ordering.SeqNo,
	metadata MD,
	msgs []*message.StoredMessage[message.Protocol[P]],
	outcome ProtocolConsensusDecision[O],
) Decision[MD, P, O] {
	return Decision[MD, P, O]{seq: seq, info: []DecisionInfo[MD, P, O]{
		MetadataInfo[MD, P, O](metadata),
		PartialInfo[MD, P, O](msgs),
		DoneInfo[MD, P, O](outcome),
	}}
}

// Append merges one more progress entry into the decision, keeping the
// bundle sorted. Metadata and terminal entries are unique: appending a second
// one is a no-op, so replayed progress reports cannot corrupt the bundle.
func (d Decision[MD, P, O]) Append(entry DecisionInfo[MD, P, O]) Decision[MD, P, O] {
	if entry.kind != InfoPartial && d.hasKind(entry.kind) {
		return d
	}
	if entry.kind == InfoPartial && d.hasMessages(entry.messages) {
		return d
	}
	info := make([]DecisionInfo[MD, P, O], len(d.info), len(d.info)+1)
	copy(info, d.info)
	info = append(info, entry)
	sort.SliceStable(info, func(i, j int) bool { return info[i].kind < info[j].kind })
	return Decision[MD, P, O]{seq: d.seq, info: info}
}

// Merge folds two views of the same slot into one. Merging is commutative and
// idempotent, so progress reports from poll and process paths can be combined
// in any order without double counting. Decisions for different slots cannot
// be merged; that is a protocol bug and reported as such.
func MergeDecisions[MD, P, O any](a, b Decision[MD, P, O]) (Decision[MD, P, O], error) {
	if a.seq != b.seq {
		return Decision[MD, P, O]{}, NewDecisionError(ErrSeqMismatch, a.seq, b.seq)
	}
	merged := a
	for _, entry := range b.info {
		merged = merged.Append(entry)
	}
	return merged, nil
}

func (d Decision[MD, P, O]) hasKind(k InfoKind) bool {
	for _, entry := range d.info {
		if entry.kind == k {
			return true
		}
	}
	return false
}

// hasMessages checks for an existing partial entry over the exact same
// message batch. Stored messages are shared by pointer, so identity of the
// first element plus equal length identifies a replayed batch.
func (d Decision[MD, P, O]) hasMessages(msgs []*message.StoredMessage[message.Protocol[P]]) bool {
	for _, entry := range d.info {
		if entry.kind != InfoPartial || len(entry.messages) != len(msgs) {
			continue
		}
		if len(msgs) == 0 || entry.messages[0] == msgs[0] {
			return true
		}
	}
	return false
}

// ProtocolConsensusDecision is the terminal outcome of one slot: the batch of
// client operations the protocol committed, in execution order, together with
// the per-request metadata and the digest the quorum agreed on.
type ProtocolConsensusDecision[O any] struct {
	seq       ordering.SeqNo
	batch     exec.UpdateBatch[O]
	clientRqs []message.ClientRqInfo
	digest    digest.Digest
}

func NewProtocolConsensusDecision[O any](
	seq ordering.SeqNo,
	batch exec.UpdateBatch[O],
	clientRqs []message.ClientRqInfo,
	dg digest.Digest,
) ProtocolConsensusDecision[O] {
	return ProtocolConsensusDecision[O]{seq: seq, batch: batch, clientRqs: clientRqs, digest: dg}
}

func (p ProtocolConsensusDecision[O]) SequenceNumber() ordering.SeqNo      { return p.seq }
func (p ProtocolConsensusDecision[O]) Batch() exec.UpdateBatch[O]          { return p.batch }
func (p ProtocolConsensusDecision[O]) ClientRequests() []message.ClientRqInfo { return p.clientRqs }
func (p ProtocolConsensusDecision[O]) Digest() digest.Digest               { return p.digest }
