// Package timeouts is the shared timeout service of the replica: the
// sub-protocols schedule tickets against it and receive the expired ones back
// in batches through a single channel.
package timeouts

import (
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stratum-smr/stratum/message"
	"github.com/stratum-smr/stratum/pkg/ordering"
)

// Kind says which sub-protocol scheduled a ticket.
type Kind uint8

const (
	// KindClientRequests watches a set of client requests for completion.
	KindClientRequests Kind = iota + 1
	// KindCstRequest bounds a state-transfer round.
	KindCstRequest
	// KindLogTransfer bounds a log-transfer round.
	KindLogTransfer
)

func (k Kind) String() string {
	switch k {
	case KindClientRequests:
		return "client-requests"
	case KindCstRequest:
		return "cst-request"
	case KindLogTransfer:
		return "log-transfer"
	default:
		return "unknown"
	}
}

// RqTimeout is an expired ticket as delivered to the protocol that scheduled
// it. Times counts how often the same ticket has expired, so protocols can
// back off or escalate (a view change, say) on repeated expiry.
type RqTimeout struct {
	id       uuid.UUID
	kind     Kind
	requests []message.ClientRqInfo
	seq      ordering.SeqNo
	times    int
}

func (t RqTimeout) ID() uuid.UUID                     { return t.id }
func (t RqTimeout) Kind() Kind                        { return t.kind }
func (t RqTimeout) Requests() []message.ClientRqInfo  { return t.requests }
func (t RqTimeout) SequenceNumber() ordering.SeqNo    { return t.seq }
func (t RqTimeout) Times() int                        { return t.times }

type pending struct {
	ticket   RqTimeout
	duration time.Duration
	timer    *time.Timer
}

// Timeouts schedules, cancels and delivers timeout tickets. It serializes its
// own state; every method is safe for concurrent use. Expired tickets are
// re-armed until cancelled, with the Times counter increasing on each expiry.
type Timeouts struct {
	mu      sync.Mutex
	pending map[uuid.UUID]*pending
	expired chan []RqTimeout
	logger  zerolog.Logger
	stopped bool
}

// Option configures the timeouts service.
type Option func(*Timeouts)

func WithLogger(logger zerolog.Logger) Option {
	return func(t *Timeouts) {
		t.logger = logger
	}
}

func New(buffer int, opts ...Option) *Timeouts {
	t := &Timeouts{
		pending: make(map[uuid.UUID]*pending),
		expired: make(chan []RqTimeout, buffer),
		logger:  zerolog.New(os.Stdout),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// TimeoutClientRequests schedules a ticket watching the given requests,
// returning its id for cancellation.
func (t *Timeouts) TimeoutClientRequests(after time.Duration, requests []message.ClientRqInfo) uuid.UUID {
	return t.schedule(RqTimeout{
		id:       uuid.New(),
		kind:     KindClientRequests,
		requests: requests,
	}, after)
}

// TimeoutCstRequest bounds the state-transfer round targeting seq.
func (t *Timeouts) TimeoutCstRequest(after time.Duration, seq ordering.SeqNo) uuid.UUID {
	return t.schedule(RqTimeout{id: uuid.New(), kind: KindCstRequest, seq: seq}, after)
}

// TimeoutLogTransfer bounds the log-transfer round targeting seq.
func (t *Timeouts) TimeoutLogTransfer(after time.Duration, seq ordering.SeqNo) uuid.UUID {
	return t.schedule(RqTimeout{id: uuid.New(), kind: KindLogTransfer, seq: seq}, after)
}

func (t *Timeouts) schedule(ticket RqTimeout, after time.Duration) uuid.UUID {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return ticket.id
	}
	p := &pending{ticket: ticket, duration: after}
	p.timer = time.AfterFunc(after, func() { t.fire(ticket.id) })
	t.pending[ticket.id] = p
	return ticket.id
}

func (t *Timeouts) fire(id uuid.UUID) {
	t.mu.Lock()
	p, ok := t.pending[id]
	if !ok || t.stopped {
		t.mu.Unlock()
		return
	}
	p.ticket.times++
	ticket := p.ticket
	// re-arm until cancelled
	p.timer.Reset(p.duration)
	t.mu.Unlock()

	select {
	case t.expired <- []RqTimeout{ticket}:
	default:
		t.logger.Warn().
			Str("kind", ticket.kind.String()).
			Msg("dropping expired timeout, receiver is not draining")
	}
}

// Cancel removes a ticket. Cancelling an unknown or already-cancelled id is a
// no-op, so completion paths need not track whether the ticket fired.
func (t *Timeouts) Cancel(id uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.pending[id]; ok {
		p.timer.Stop()
		delete(t.pending, id)
	}
}

// Expired is the single channel all expired tickets are delivered on.
func (t *Timeouts) Expired() <-chan []RqTimeout {
	return t.expired
}

// Stop cancels every pending ticket. Tickets already delivered remain
// readable from Expired.
func (t *Timeouts) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	for id, p := range t.pending {
		p.timer.Stop()
		delete(t.pending, id)
	}
}
