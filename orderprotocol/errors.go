package orderprotocol

import (
	"errors"
	"fmt"

	"github.com/stratum-smr/stratum/pkg/ordering"
)

var (
	// ErrSeqMismatch is returned when two decisions for different slots are
	// merged.
	ErrSeqMismatch = errors.New("decisions refer to different sequence numbers")

	// ErrUnsupportedJoin is returned by protocols that have no dynamic
	// membership when asked to admit a node.
	ErrUnsupportedJoin = errors.New("ordering protocol does not support joining nodes")
)

// DecisionError wraps a decision-level failure with the two slot numbers
// involved. Callers match on the wrapped sentinel with errors.Is.
type DecisionError struct {
	err  error
	have ordering.SeqNo
	got  ordering.SeqNo
}

func NewDecisionError(err error, have, got ordering.SeqNo) *DecisionError {
	return &DecisionError{err: err, have: have, got: got}
}

func (e *DecisionError) Error() string {
	return fmt.Sprintf("%v (have %d, got %d)", e.err, e.have, e.got)
}

func (e *DecisionError) Unwrap() error { return e.err }
