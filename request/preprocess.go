// Package request contains the client-request pre-processing stage that sits
// between the transport and the ordering protocol: it drops retransmissions
// and stale operations and hands the surviving requests to the protocol in
// batches.
package request

import (
	"os"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog"

	"github.com/stratum-smr/stratum/message"
	"github.com/stratum-smr/stratum/pkg/digest"
	"github.com/stratum-smr/stratum/pkg/ordering"
)

// BatchOutput delivers pre-processed request batches to the ordering
// protocol, which drains it from its poll loop.
type BatchOutput[O any] <-chan []*message.StoredMessage[message.Request[O]]

// PreProcessor receives raw client requests (directly from the transport or
// re-entered from forwarded request batches) and emits deduplicated batches.
type PreProcessor[O any] interface {
	// Submit enqueues one request. Duplicates within the dedup window and
	// operations at or below the client's last seen watermark are dropped.
	Submit(rq *message.StoredMessage[message.Request[O]]) error

	// Flush emits whatever requests are buffered, regardless of batch size.
	Flush()

	// Output is the batch channel consumed by the ordering protocol.
	Output() BatchOutput[O]
}

// Processor is the default PreProcessor. Deduplication is two-layered: an LRU
// window over request digests catches recent retransmissions, and a per-
// session watermark catches replays of operations that already went through.
type Processor[O any] struct {
	mu         sync.Mutex
	marshal    func(O) ([]byte, error)
	seen       *lru.Cache
	watermarks map[ordering.SeqNo]ordering.SeqNo
	batch      []*message.StoredMessage[message.Request[O]]
	batchSize  int
	out        chan []*message.StoredMessage[message.Request[O]]
	logger     zerolog.Logger
}

// ProcessorOption configures a Processor.
type ProcessorOption[O any] func(*Processor[O])

func WithProcessorLogger[O any](logger zerolog.Logger) ProcessorOption[O] {
	return func(p *Processor[O]) {
		p.logger = logger
	}
}

// NewProcessor builds a pre-processor with the given dedup window and target
// batch size. marshal serializes an operation for digesting and must match
// the service's application bundle.
func NewProcessor[O any](window, batchSize int, marshal func(O) ([]byte, error), opts ...ProcessorOption[O]) (*Processor[O], error) {
	seen, err := lru.New(window)
	if err != nil {
		return nil, err
	}
	p := &Processor[O]{
		marshal:    marshal,
		seen:       seen,
		watermarks: make(map[ordering.SeqNo]ordering.SeqNo),
		batchSize:  batchSize,
		out:        make(chan []*message.StoredMessage[message.Request[O]], 16),
		logger:     zerolog.New(os.Stdout),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Processor[O]) Submit(rq *message.StoredMessage[message.Request[O]]) error {
	body, err := p.marshal(rq.Message().Operation())
	if err != nil {
		return err
	}
	dg := digest.Sum(body)

	p.mu.Lock()
	defer p.mu.Unlock()

	session := rq.Message().Session()
	op := rq.Message().SequenceNumber()
	if mark, ok := p.watermarks[session]; ok && !op.After(mark) {
		p.logger.Debug().
			Uint64("session", uint64(session)).
			Uint64("operation", uint64(op)).
			Msg("dropping stale client request")
		return nil
	}
	if found, _ := p.seen.ContainsOrAdd(dg, struct{}{}); found {
		return nil
	}

	p.watermarks[session] = op
	p.batch = append(p.batch, rq)
	if len(p.batch) >= p.batchSize {
		p.emit()
	}
	return nil
}

func (p *Processor[O]) Flush() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.emit()
}

// emit pushes the current batch without blocking; the caller holds the lock.
func (p *Processor[O]) emit() {
	if len(p.batch) == 0 {
		return
	}
	select {
	case p.out <- p.batch:
		p.batch = nil
	default:
		p.logger.Warn().
			Int("requests", len(p.batch)).
			Msg("holding request batch, ordering protocol is not draining")
	}
}

func (p *Processor[O]) Output() BatchOutput[O] {
	return p.out
}

// DescribeAll captures the identifying metadata of every request in a batch,
// in batch order, for timeout tracking and decision bookkeeping.
func DescribeAll[O any](marshal func(O) ([]byte, error), batch []*message.StoredMessage[message.Request[O]]) ([]message.ClientRqInfo, error) {
	infos := make([]message.ClientRqInfo, 0, len(batch))
	for _, rq := range batch {
		body, err := marshal(rq.Message().Operation())
		if err != nil {
			return nil, err
		}
		infos = append(infos, message.DescribeRequest(digest.Sum(body), rq.Message()))
	}
	return infos, nil
}
