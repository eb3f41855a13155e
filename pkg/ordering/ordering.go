package ordering

// SeqNo is the monotonic sequence number that totally orders consensus
// decisions. It is wide enough that a session never wraps it; arithmetic is
// plain and comparisons are total.
type SeqNo uint64

// InitialSeq is the sequence number of the first decision of a session.
const InitialSeq SeqNo = 0

// InvalidSeqNo marks a slot that has not been assigned; no decision ever
// carries it.
const InvalidSeqNo SeqNo = ^SeqNo(0)

// Orderable is the capability of yielding a sequence number. Every entity that
// takes part in the ordered progression of the protocol (messages, decisions,
// views) exposes it.
type Orderable interface {
	SequenceNumber() SeqNo
}

// Next returns the sequence number that follows s.
func (s SeqNo) Next() SeqNo {
	return s + 1
}

// Prev returns the sequence number that precedes s. The first slot has no
// predecessor; asking for one yields InvalidSeqNo.
func (s SeqNo) Prev() SeqNo {
	if s == InitialSeq {
		return InvalidSeqNo
	}
	return s - 1
}

// After reports whether s strictly follows other.
func (s SeqNo) After(other SeqNo) bool {
	return s > other
}

// Equals reports whether the two slots are the same.
func (s SeqNo) Equals(other SeqNo) bool {
	return s == other
}

// Compare returns -1, 0 or 1 depending on whether s precedes, equals or
// follows other.
func (s SeqNo) Compare(other SeqNo) int {
	switch {
	case s < other:
		return -1
	case s > other:
		return 1
	default:
		return 0
	}
}

// Max returns the greater of the two sequence numbers.
func Max(a, b SeqNo) SeqNo {
	if a > b {
		return a
	}
	return b
}
