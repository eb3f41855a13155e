// Package exec holds the execution-facing types of the framework: the
// batches of decided operations and the handle the replica uses to feed them
// to the application executor.
package exec

import (
	"errors"
	"os"

	"github.com/rs/zerolog"

	"github.com/stratum-smr/stratum/pkg/ordering"
	"github.com/stratum-smr/stratum/pkg/quorum"
)

// Update is one decided client operation, attributed to the client that
// issued it.
type Update[O any] struct {
	from      quorum.NodeID
	session   ordering.SeqNo
	operation ordering.SeqNo
	payload   O
}

func NewUpdate[O any](from quorum.NodeID, session, operation ordering.SeqNo, payload O) Update[O] {
	return Update[O]{from: from, session: session, operation: operation, payload: payload}
}

func (u Update[O]) From() quorum.NodeID             { return u.from }
func (u Update[O]) Session() ordering.SeqNo         { return u.session }
func (u Update[O]) Operation() O                    { return u.payload }
func (u Update[O]) SequenceNumber() ordering.SeqNo  { return u.operation }

// UpdateBatch is the executable payload of one completed decision: all of the
// requests decided at one sequence number, in execution order.
type UpdateBatch[O any] struct {
	seq     ordering.SeqNo
	updates []Update[O]
}

func NewUpdateBatch[O any](seq ordering.SeqNo) UpdateBatch[O] {
	return UpdateBatch[O]{seq: seq}
}

func (b UpdateBatch[O]) SequenceNumber() ordering.SeqNo { return b.seq }
func (b UpdateBatch[O]) Len() int                       { return len(b.updates) }
func (b UpdateBatch[O]) Updates() []Update[O]           { return b.updates }

// Add appends one decided operation to the batch.
func (b *UpdateBatch[O]) Add(update Update[O]) {
	b.updates = append(b.updates, update)
}

var ErrHandleClosed = errors.New("executor handle is closed")

// UnorderedBatch groups updates that execute outside the total order, such
// as read-only requests served from current state. It carries no slot number.
type UnorderedBatch[O any] struct {
	updates []Update[O]
}

func NewUnorderedBatch[O any](updates ...Update[O]) UnorderedBatch[O] {
	return UnorderedBatch[O]{updates: updates}
}

func (b UnorderedBatch[O]) Len() int             { return len(b.updates) }
func (b UnorderedBatch[O]) Updates() []Update[O] { return b.updates }

func (b *UnorderedBatch[O]) Add(update Update[O]) {
	b.updates = append(b.updates, update)
}

// Handle is the producer end of the channel feeding decided batches to the
// executor. There is a single producer per ordering protocol driver; the
// executor drains Batches on its own goroutine.
type Handle[O any] struct {
	batches   chan UpdateBatch[O]
	unordered chan UnorderedBatch[O]
	closed    chan struct{}
	logger    zerolog.Logger
}

// HandleOption configures an executor handle.
type HandleOption[O any] func(*Handle[O])

func WithHandleLogger[O any](logger zerolog.Logger) HandleOption[O] {
	return func(h *Handle[O]) {
		h.logger = logger
	}
}

func NewHandle[O any](buffer int, opts ...HandleOption[O]) *Handle[O] {
	h := &Handle[O]{
		batches:   make(chan UpdateBatch[O], buffer),
		unordered: make(chan UnorderedBatch[O], buffer),
		closed:    make(chan struct{}),
		logger:    zerolog.New(os.Stdout),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// QueueUpdate hands a decided batch to the executor. It blocks when the
// executor is behind, which is the backpressure that keeps the ordering
// protocol from outrunning execution.
func (h *Handle[O]) QueueUpdate(batch UpdateBatch[O]) error {
	select {
	case <-h.closed:
		return ErrHandleClosed
	case h.batches <- batch:
		h.logger.Debug().
			Uint64("seq", uint64(batch.SequenceNumber())).
			Int("requests", batch.Len()).
			Msg("queued decided batch for execution")
		return nil
	}
}

// QueueUnordered hands requests that bypass ordering to the executor. These
// are served against whatever state execution has reached.
func (h *Handle[O]) QueueUnordered(batch UnorderedBatch[O]) error {
	select {
	case <-h.closed:
		return ErrHandleClosed
	case h.unordered <- batch:
		h.logger.Debug().
			Int("requests", batch.Len()).
			Msg("queued unordered batch for execution")
		return nil
	}
}

// Batches is the consumer end, drained by the executor.
func (h *Handle[O]) Batches() <-chan UpdateBatch[O] {
	return h.batches
}

// Unordered delivers batches queued through QueueUnordered.
func (h *Handle[O]) Unordered() <-chan UnorderedBatch[O] {
	return h.unordered
}

// Close releases any producer blocked in QueueUpdate. Batches already queued
// remain readable.
func (h *Handle[O]) Close() {
	close(h.closed)
}
