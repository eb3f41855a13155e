// Package replica owns the driving loop of one replicated node: it polls the
// ordering protocol, routes verified network messages to the right
// sub-protocol, feeds completed decisions to the executor and falls back to
// state or log transfer when the protocol reports it is behind.
package replica

import (
	"errors"
	"os"
	"time"

	"github.com/ef-ds/deque"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"

	"github.com/stratum-smr/stratum/exec"
	"github.com/stratum-smr/stratum/logtransfer"
	"github.com/stratum-smr/stratum/message"
	"github.com/stratum-smr/stratum/network"
	"github.com/stratum-smr/stratum/orderprotocol"
	"github.com/stratum-smr/stratum/pkg/ordering"
	"github.com/stratum-smr/stratum/request"
	"github.com/stratum-smr/stratum/service"
	"github.com/stratum-smr/stratum/statetransfer"
	"github.com/stratum-smr/stratum/timeouts"
)

var (
	ErrNotIdle     = errors.New("replica is already running")
	ErrWrongStatus = errors.New("replica is not in a status that allows this operation")
)

// maxConsecutivePolls bounds how many internal poll results the loop consumes
// before it turns to the network, so a chatty protocol cannot starve inbound
// messages.
const maxConsecutivePolls = 128

const transferTimeout = 5 * time.Second

// Runner drives one replica. Both the ordering protocol and the transfer
// protocols are driven from the runner's single loop goroutine; the executor
// and the transport run on their own.
type Runner[MD, O, R, P, PF, S, L any] struct {
	svc      service.Service[O, R, P, PF, S, L]
	protocol orderprotocol.OrderingProtocol[MD, P, O]
	state    statetransfer.StateTransferProtocol[S]
	log      logtransfer.LogTransferProtocol[MD, P, O, L]

	node     network.Node
	ni       network.InformationProvider
	verifier service.SignatureVerifier

	executor *exec.Handle[O]
	preproc  request.PreProcessor[O]
	timeouts *timeouts.Timeouts

	status    atomic.Int32
	executing atomic.Bool

	// stash buffers messages pulled off the wire but not routable in the
	// current status; the loop drains it before reading the network again.
	stash deque.Deque

	// pending aggregates decision progress per slot until terminal; next is
	// the slot whose completion unblocks delivery to the executor.
	pending map[ordering.SeqNo]orderprotocol.Decision[MD, P, O]
	next    ordering.SeqNo

	logger zerolog.Logger
	quit   chan struct{}
	done   chan struct{}
}

// Config collects the collaborators a runner is built from. All fields are
// required except Logger.
type Config[MD, O, R, P, PF, S, L any] struct {
	Service       service.Service[O, R, P, PF, S, L]
	Protocol      orderprotocol.OrderingProtocol[MD, P, O]
	StateTransfer statetransfer.StateTransferProtocol[S]
	LogTransfer   logtransfer.LogTransferProtocol[MD, P, O, L]
	Node          network.Node
	Info          network.InformationProvider
	Verifier      service.SignatureVerifier
	Executor      *exec.Handle[O]
	PreProcessor  request.PreProcessor[O]
	Timeouts      *timeouts.Timeouts
	Logger        *zerolog.Logger
}

func New[MD, O, R, P, PF, S, L any](cfg Config[MD, O, R, P, PF, S, L]) *Runner[MD, O, R, P, PF, S, L] {
	logger := zerolog.New(os.Stdout)
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	return &Runner[MD, O, R, P, PF, S, L]{
		svc:      cfg.Service,
		protocol: cfg.Protocol,
		state:    cfg.StateTransfer,
		log:      cfg.LogTransfer,
		node:     cfg.Node,
		ni:       cfg.Info,
		verifier: cfg.Verifier,
		executor: cfg.Executor,
		preproc:  cfg.PreProcessor,
		timeouts: cfg.Timeouts,
		pending:  make(map[ordering.SeqNo]orderprotocol.Decision[MD, P, O]),
		next:     cfg.Protocol.SequenceNumber(),
		logger:   logger.With().Str("node", cfg.Node.ID().String()).Logger(),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Status is the replica's current lifecycle phase.
func (r *Runner[MD, O, R, P, PF, S, L]) Status() Status {
	return Status(r.status.Load())
}

// Start launches the loop goroutine. Shutdown goes through Stop.
func (r *Runner[MD, O, R, P, PF, S, L]) Start() error {
	if !r.status.CompareAndSwap(int32(Idle), int32(Normal)) {
		return ErrNotIdle
	}
	if err := r.protocol.HandleExecutionChanged(true); err != nil {
		r.status.Store(int32(Idle))
		return err
	}
	r.executing.Store(true)
	go r.run()
	return nil
}

// Stop halts the loop and waits for it to exit. Extra calls wait for the
// first one to finish.
func (r *Runner[MD, O, R, P, PF, S, L]) Stop() {
	for {
		cur := Status(r.status.Load())
		switch cur {
		case Idle:
			return
		case ShuttingDown:
			<-r.done
			return
		}
		if r.status.CompareAndSwap(int32(cur), int32(ShuttingDown)) {
			break
		}
	}
	close(r.quit)
	<-r.done
	r.timeouts.Stop()
	r.executor.Close()
}

// JoinQuorum starts this node's admission into a running quorum. It requires
// an ordering protocol with dynamic membership; progress is reported through
// QuorumJoined results, which flip the replica back to Normal once its own
// admission lands.
func (r *Runner[MD, O, R, P, PF, S, L]) JoinQuorum() error {
	rp, ok := r.protocol.(orderprotocol.ReconfigurableOrderProtocol[MD, P, O])
	if !ok {
		return orderprotocol.ErrUnsupportedJoin
	}
	if !r.status.CompareAndSwap(int32(Normal), int32(Joining)) {
		return ErrWrongStatus
	}
	if err := rp.JoinQuorum(); err != nil {
		r.status.CompareAndSwap(int32(Joining), int32(Normal))
		return err
	}
	return nil
}

// SetExecuting reports whether the application is consuming decided batches.
// The ordering protocol halts proposals while execution is stopped.
func (r *Runner[MD, O, R, P, PF, S, L]) SetExecuting(executing bool) error {
	if r.executing.Swap(executing) == executing {
		return nil
	}
	return r.protocol.HandleExecutionChanged(executing)
}

func (r *Runner[MD, O, R, P, PF, S, L]) run() {
	defer close(r.done)
	for {
		select {
		case <-r.quit:
			return
		default:
		}

		switch Status(r.status.Load()) {
		case Normal, Joining:
			// a joining replica keeps driving the protocol; admission is
			// negotiated over ordinary protocol traffic
			r.stepNormal()
		case OutOfDate:
			if !r.stepCatchUp() {
				return
			}
		default:
			return
		}
	}
}

// stepNormal runs one iteration of the steady-state loop: drain the
// protocol's internal work, then service the network once.
func (r *Runner[MD, O, R, P, PF, S, L]) stepNormal() {
	for polls := 0; polls < maxConsecutivePolls; polls++ {
		result := r.protocol.Poll()
		switch result.Kind() {
		case orderprotocol.PollRePoll:
			continue
		case orderprotocol.PollReceiveMsg:
			r.receive()
			return
		case orderprotocol.PollExec:
			res, err := r.protocol.ProcessMessage(result.Message())
			if err != nil {
				r.logger.Error().Err(err).Msg("processing dequeued protocol message")
				return
			}
			r.handleExecResult(res)
		case orderprotocol.PollProgressed:
			r.deliverDecisions(result.Ahead(), result.Decisions())
		case orderprotocol.PollQuorumJoined:
			r.handleJoin(result.Join())
			r.deliverDecisions(result.Ahead(), result.Decisions())
		case orderprotocol.PollRunCst:
			r.beginCatchUp()
			return
		}
	}
	// poll budget exhausted; make sure the network gets its turn
	r.receive()
}

// receive takes one message (stashed first, then from the wire) and routes
// it. Blocking on the wire is bounded by timeout expiry and shutdown. After a
// blocking read the channel is drained into the stash, so a burst is absorbed
// without re-entering the select per message.
func (r *Runner[MD, O, R, P, PF, S, L]) receive() {
	if v, ok := r.stash.PopFront(); ok {
		r.route(v.(*message.StoredMessage[message.SystemMessage]))
		return
	}
	select {
	case <-r.quit:
	case expired := <-r.timeouts.Expired():
		r.handleTimeouts(expired)
	case stored, ok := <-r.node.Incoming():
		if !ok {
			return
		}
		r.drain()
		r.route(stored)
	}
}

// drain moves whatever else is already buffered on the wire into the stash.
func (r *Runner[MD, O, R, P, PF, S, L]) drain() {
	for {
		select {
		case stored, ok := <-r.node.Incoming():
			if !ok {
				return
			}
			r.stash.PushBack(stored)
		default:
			return
		}
	}
}

// route verifies one inbound envelope and dispatches it by variant and by the
// replica's current status.
func (r *Runner[MD, O, R, P, PF, S, L]) route(stored *message.StoredMessage[message.SystemMessage]) {
	ok, verified, err := r.svc.VerifyMessage(r.ni, r.verifier, stored.Header(), stored.Message())
	if err != nil || !ok {
		r.logger.Debug().
			Err(err).
			Str("from", stored.Header().From().String()).
			Str("kind", stored.Message().MsgKind().String()).
			Msg("discarding message that failed verification")
		return
	}

	switch m := verified.(type) {
	case message.Protocol[P]:
		inner := message.NewStoredMessage(stored.Header(), m)
		r.routeProtocol(inner)

	case message.ForwardedProtocol[P]:
		r.routeProtocol(m.Inner())

	case message.OrderedRequest[O]:
		r.submitRequest(message.NewStoredMessage(stored.Header(), m.Request()))

	case message.UnorderedRequest[O]:
		// unordered requests skip the ordering pipeline entirely
		rq := m.Request()
		update := exec.NewUpdate(stored.Header().From(), rq.Session(), rq.SequenceNumber(), rq.Operation())
		if err := r.executor.QueueUnordered(exec.NewUnorderedBatch(update)); err != nil {
			r.logger.Warn().Err(err).Msg("dropping unordered request, executor closed")
		}

	case message.ForwardedRequests[O]:
		for _, rq := range m.Requests() {
			r.submitRequest(rq)
		}

	case message.StateTransfer[S]:
		inner := message.NewStoredMessage(stored.Header(), m)
		if Status(r.status.Load()) == OutOfDate {
			r.advanceStateTransfer(inner)
		} else {
			r.state.HandleOffCtxMessage(inner)
		}

	case message.LogTransfer[L]:
		inner := message.NewStoredMessage(stored.Header(), m)
		if Status(r.status.Load()) == OutOfDate {
			r.advanceLogTransfer(inner)
		} else {
			r.log.HandleOffCtxMessage(inner)
		}

	default:
		r.logger.Debug().
			Str("kind", verified.MsgKind().String()).
			Msg("ignoring message variant not handled by replicas")
	}
}

func (r *Runner[MD, O, R, P, PF, S, L]) routeProtocol(msg *message.StoredMessage[message.Protocol[P]]) {
	if status := Status(r.status.Load()); status != Normal && status != Joining {
		r.protocol.HandleOffCtxMessage(msg)
		return
	}
	res, err := r.protocol.ProcessMessage(msg)
	if err != nil {
		r.logger.Error().Err(err).Msg("processing protocol message")
		return
	}
	r.handleExecResult(res)
}

func (r *Runner[MD, O, R, P, PF, S, L]) submitRequest(rq *message.StoredMessage[message.Request[O]]) {
	if err := r.preproc.Submit(rq); err != nil {
		r.logger.Warn().Err(err).Msg("dropping client request the pre-processor rejected")
	}
}

func (r *Runner[MD, O, R, P, PF, S, L]) handleExecResult(res orderprotocol.ExecResult[MD, P, O]) {
	switch res.Kind() {
	case orderprotocol.ExecDropped, orderprotocol.ExecQueued, orderprotocol.ExecNoUpdate:
	case orderprotocol.ExecProgressed:
		r.deliverDecisions(res.Ahead(), res.Decisions())
	case orderprotocol.ExecQuorumJoined:
		r.handleJoin(res.Join())
		r.deliverDecisions(res.Ahead(), res.Decisions())
	case orderprotocol.ExecRunCst:
		r.beginCatchUp()
	}
}

func (r *Runner[MD, O, R, P, PF, S, L]) handleJoin(join *orderprotocol.JoinInfo) {
	if join == nil {
		return
	}
	r.logger.Info().
		Str("joined", join.Joined.String()).
		Int("members", len(join.Members)).
		Msg("node admitted to the quorum")
	if join.Joined == r.node.ID() && Status(r.status.Load()) == Joining {
		r.status.Store(int32(Normal))
	}
}

// deliverDecisions folds reported progress into the pending map and hands
// completed decisions to the executor, strictly in slot order. A ClearAhead
// report first discards speculative progress beyond the slots being reported,
// since the protocol has revoked it.
func (r *Runner[MD, O, R, P, PF, S, L]) deliverDecisions(ahead orderprotocol.DecisionsAhead, decisions []orderprotocol.Decision[MD, P, O]) {
	if ahead == orderprotocol.DecisionsAheadClearAhead {
		horizon := r.next
		for _, d := range decisions {
			horizon = ordering.Max(horizon, d.SequenceNumber())
		}
		for seq := range r.pending {
			if seq.After(horizon) {
				delete(r.pending, seq)
			}
		}
		r.logger.Info().
			Uint64("horizon", uint64(horizon)).
			Msg("cleared speculative decisions ahead of reported progress")
	}

	for _, d := range decisions {
		seq := d.SequenceNumber()
		if r.next.After(seq) {
			// already delivered; a replayed progress report
			continue
		}
		if existing, ok := r.pending[seq]; ok {
			merged, err := orderprotocol.MergeDecisions(existing, d)
			if err != nil {
				r.logger.Error().Err(err).Msg("merging decision progress")
				continue
			}
			r.pending[seq] = merged
		} else {
			r.pending[seq] = d
		}
	}

	for {
		d, ok := r.pending[r.next]
		if !ok || !d.Completed() {
			return
		}
		outcome, _ := d.ExecutableBatch()
		if err := r.executor.QueueUpdate(outcome.Batch()); err != nil {
			r.logger.Error().Err(err).Msg("queueing decided batch")
			return
		}
		delete(r.pending, r.next)
		r.next = r.next.Next()
	}
}

// beginCatchUp drops to OutOfDate and kicks off a state transfer. Protocol
// messages received meanwhile are stashed with the protocol itself. A joining
// replica drops out of Joining too; admission progress keeps arriving through
// QuorumJoined results once it is back in step.
func (r *Runner[MD, O, R, P, PF, S, L]) beginCatchUp() {
	for {
		cur := Status(r.status.Load())
		if cur != Normal && cur != Joining {
			return
		}
		if r.status.CompareAndSwap(int32(cur), int32(OutOfDate)) {
			break
		}
	}
	r.logger.Info().Msg("ordering protocol fell behind, starting state transfer")
	if err := r.state.RequestLatestState(); err != nil {
		r.logger.Error().Err(err).Msg("requesting latest state")
	}
	r.timeouts.TimeoutCstRequest(transferTimeout, r.protocol.SequenceNumber())
}

// stepCatchUp services transfers and keeps stashing everything else. Returns
// false when the replica is shutting down.
func (r *Runner[MD, O, R, P, PF, S, L]) stepCatchUp() bool {
	if v, ok := r.stash.PopFront(); ok {
		r.route(v.(*message.StoredMessage[message.SystemMessage]))
		return true
	}
	select {
	case <-r.quit:
		return false
	case expired := <-r.timeouts.Expired():
		r.handleTimeouts(expired)
	case stored, ok := <-r.node.Incoming():
		if !ok {
			return false
		}
		r.route(stored)
	}
	return true
}

func (r *Runner[MD, O, R, P, PF, S, L]) advanceStateTransfer(msg *message.StoredMessage[message.StateTransfer[S]]) {
	res, err := r.state.ProcessMessage(msg)
	if err != nil {
		r.logger.Error().Err(err).Msg("processing state transfer message")
		return
	}
	r.handleStateResult(res)
}

func (r *Runner[MD, O, R, P, PF, S, L]) handleStateResult(res statetransfer.Result) {
	switch res.Kind() {
	case statetransfer.ResultNotNeeded:
		r.finishCatchUp(res.SequenceNumber())
	case statetransfer.ResultFinished:
		// the state is installed; recover the decisions past the checkpoint
		if err := r.installProtocolSeq(res.SequenceNumber()); err != nil {
			return
		}
		if err := r.log.RequestLatestLog(); err != nil {
			r.logger.Error().Err(err).Msg("requesting latest log")
		}
		r.timeouts.TimeoutLogTransfer(transferTimeout, res.SequenceNumber())
	case statetransfer.ResultRestart:
		r.logger.Warn().Msg("state transfer restarted")
	}
}

func (r *Runner[MD, O, R, P, PF, S, L]) advanceLogTransfer(msg *message.StoredMessage[message.LogTransfer[L]]) {
	res, err := r.log.ProcessMessage(msg)
	if err != nil {
		r.logger.Error().Err(err).Msg("processing log transfer message")
		return
	}
	r.handleLogResult(res)
}

func (r *Runner[MD, O, R, P, PF, S, L]) handleLogResult(res logtransfer.Result[MD, P, O]) {
	switch res.Kind() {
	case logtransfer.ResultNotNeeded:
		r.finishCatchUp(r.next)
	case logtransfer.ResultFinished:
		_, last := res.Range()
		r.deliverDecisions(orderprotocol.DecisionsAheadIgnore, res.Decisions())
		r.finishCatchUp(last.Next())
	case logtransfer.ResultRestart:
		r.logger.Warn().Msg("log transfer restarted")
	}
}

func (r *Runner[MD, O, R, P, PF, S, L]) installProtocolSeq(seq ordering.SeqNo) error {
	next := seq.Next()
	if err := r.protocol.InstallSeqNo(next); err != nil {
		r.logger.Error().Err(err).Msg("installing sequence number after transfer")
		return err
	}
	r.next = ordering.Max(r.next, next)
	return nil
}

// finishCatchUp returns to Normal with the protocol positioned at seq.
// Recovered decisions still parked below seq are flushed to the executor
// before the delivery cursor moves past them.
func (r *Runner[MD, O, R, P, PF, S, L]) finishCatchUp(seq ordering.SeqNo) {
	if seq.After(r.next) {
		if err := r.protocol.InstallSeqNo(seq); err != nil {
			r.logger.Error().Err(err).Msg("installing sequence number after transfer")
			return
		}
		r.flushPendingBelow(seq)
		r.next = seq
	}
	if r.status.CompareAndSwap(int32(OutOfDate), int32(Normal)) {
		r.logger.Info().
			Uint64("seq", uint64(r.next)).
			Msg("caught up, resuming normal operation")
	}
}

// flushPendingBelow delivers every completed pending decision in a slot
// before seq, in slot order. Slots with no pending decision were covered by
// the transferred state and are skipped.
func (r *Runner[MD, O, R, P, PF, S, L]) flushPendingBelow(seq ordering.SeqNo) {
	for s := r.next; seq.After(s); s = s.Next() {
		d, ok := r.pending[s]
		if !ok || !d.Completed() {
			continue
		}
		outcome, _ := d.ExecutableBatch()
		if err := r.executor.QueueUpdate(outcome.Batch()); err != nil {
			r.logger.Error().Err(err).Msg("queueing recovered batch")
			return
		}
		delete(r.pending, s)
	}
}

func (r *Runner[MD, O, R, P, PF, S, L]) handleTimeouts(expired []timeouts.RqTimeout) {
	byKind := make(map[timeouts.Kind][]timeouts.RqTimeout)
	for _, t := range expired {
		byKind[t.Kind()] = append(byKind[t.Kind()], t)
	}

	if client := byKind[timeouts.KindClientRequests]; len(client) > 0 {
		res, err := r.protocol.HandleTimeout(client)
		if err != nil {
			r.logger.Error().Err(err).Msg("handling client request timeout")
		} else {
			r.handleExecResult(res)
		}
	}
	if cst := byKind[timeouts.KindCstRequest]; len(cst) > 0 && Status(r.status.Load()) == OutOfDate {
		res, err := r.state.HandleTimeout(cst)
		if err != nil {
			r.logger.Error().Err(err).Msg("handling state transfer timeout")
		} else {
			r.handleStateResult(res)
		}
	}
	if lt := byKind[timeouts.KindLogTransfer]; len(lt) > 0 && Status(r.status.Load()) == OutOfDate {
		res, err := r.log.HandleTimeout(lt)
		if err != nil {
			r.logger.Error().Err(err).Msg("handling log transfer timeout")
		} else {
			r.handleLogResult(res)
		}
	}
}
