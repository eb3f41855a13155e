package network

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/gammazero/workerpool"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"

	"github.com/stratum-smr/stratum/message"
	"github.com/stratum-smr/stratum/pkg/digest"
	"github.com/stratum-smr/stratum/pkg/quorum"
	"github.com/stratum-smr/stratum/pkg/sign"
)

var (
	ErrUnknownTarget = errors.New("target node is not on this network")
	ErrNodeClosed    = errors.New("node has left the network")
)

const localInboxSize = 256

// LocalHub is an in-process network. Every node that joins gets an inbox;
// sends go through a shared worker pool so a slow receiver stalls neither the
// sender nor deliveries to other nodes. Messages take the same shape they
// would on a real transport: serialized by the node's codec, framed under a
// digest-carrying header, signed when the caller asks for it.
type LocalHub struct {
	mu      sync.RWMutex
	inboxes map[quorum.NodeID]*localInbox
	pool    *workerpool.WorkerPool
	logger  zerolog.Logger
}

// localInbox queues deliveries for one node. Pool workers pop the head under
// the inbox lock, so messages to the same target keep their send order even
// though different targets are serviced in parallel.
type localInbox struct {
	mu      sync.Mutex
	pending []*message.StoredMessage[message.SystemMessage]
	ch      chan *message.StoredMessage[message.SystemMessage]
	closed  bool
}

func (in *localInbox) close() {
	in.mu.Lock()
	defer in.mu.Unlock()
	if !in.closed {
		in.closed = true
		close(in.ch)
	}
}

// HubOption configures a LocalHub.
type HubOption func(*LocalHub)

func WithHubLogger(logger zerolog.Logger) HubOption {
	return func(h *LocalHub) {
		h.logger = logger
	}
}

func NewLocalHub(workers int, opts ...HubOption) *LocalHub {
	h := &LocalHub{
		inboxes: make(map[quorum.NodeID]*localInbox),
		pool:    workerpool.New(workers),
		logger:  zerolog.New(os.Stdout),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Join adds a node to the network. The codec serializes outbound bodies for
// digesting; the signer backs SendSigned and BroadcastSigned.
func (h *LocalHub) Join(id quorum.NodeID, codec message.Codec, signer sign.Signer) (*LocalNode, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.inboxes[id]; ok {
		return nil, fmt.Errorf("node %s already joined", id)
	}
	inbox := &localInbox{
		ch: make(chan *message.StoredMessage[message.SystemMessage], localInboxSize),
	}
	h.inboxes[id] = inbox

	return &LocalNode{
		id:     id,
		hub:    h,
		codec:  codec,
		signer: signer,
		inbox:  inbox.ch,
		logger: h.logger.With().Str("node", id.String()).Logger(),
	}, nil
}

// deliver queues a message on the target inbox and lets a pool worker push it
// to the receiving channel. Delivery is best effort; a full inbox drops the
// message the way a saturated link would.
func (h *LocalHub) deliver(target quorum.NodeID, msg *message.StoredMessage[message.SystemMessage]) error {
	h.mu.RLock()
	inbox, ok := h.inboxes[target]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTarget, target)
	}
	inbox.mu.Lock()
	inbox.pending = append(inbox.pending, msg)
	inbox.mu.Unlock()
	h.pool.Submit(func() {
		inbox.mu.Lock()
		defer inbox.mu.Unlock()
		if inbox.closed || len(inbox.pending) == 0 {
			return
		}
		next := inbox.pending[0]
		inbox.pending = inbox.pending[1:]
		select {
		case inbox.ch <- next:
		default:
			h.logger.Warn().
				Str("target", target.String()).
				Str("kind", next.Message().MsgKind().String()).
				Msg("dropping message, inbox is full")
		}
	})
	return nil
}

func (h *LocalHub) leave(id quorum.NodeID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if inbox, ok := h.inboxes[id]; ok {
		delete(h.inboxes, id)
		inbox.close()
	}
}

// Shutdown drains pending deliveries and closes every remaining inbox.
func (h *LocalHub) Shutdown() {
	h.pool.StopWait()
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, inbox := range h.inboxes {
		delete(h.inboxes, id)
		inbox.close()
	}
}

// LocalNode is one endpoint of a LocalHub and implements Node.
type LocalNode struct {
	id     quorum.NodeID
	hub    *LocalHub
	codec  message.Codec
	signer sign.Signer
	nonce  atomic.Uint64
	closed atomic.Bool
	inbox  chan *message.StoredMessage[message.SystemMessage]
	logger zerolog.Logger
}

func (n *LocalNode) ID() quorum.NodeID { return n.id }

// envelope serializes the body and builds the header binding it, signing the
// header when asked.
func (n *LocalNode) envelope(msg message.SystemMessage, target quorum.NodeID, signed bool) (message.Header, error) {
	body, err := n.codec.Marshal(msg)
	if err != nil {
		return message.Header{}, fmt.Errorf("serializing %s: %w", msg.MsgKind(), err)
	}
	header := message.NewHeader(n.id, target, n.nonce.Inc(), len(body), digest.Sum(body))
	if signed {
		sig, err := n.signer.Sign(header.SignBytes())
		if err != nil {
			return message.Header{}, fmt.Errorf("signing %s: %w", msg.MsgKind(), err)
		}
		header = header.Signed(sig)
	}
	return header, nil
}

func (n *LocalNode) send(msg message.SystemMessage, target quorum.NodeID, signed bool) error {
	if n.closed.Load() {
		return ErrNodeClosed
	}
	header, err := n.envelope(msg, target, signed)
	if err != nil {
		return err
	}
	return n.hub.deliver(target, message.NewStoredMessage(header, msg))
}

func (n *LocalNode) Send(msg message.SystemMessage, target quorum.NodeID, flush bool) error {
	return n.send(msg, target, false)
}

func (n *LocalNode) SendSigned(msg message.SystemMessage, target quorum.NodeID, flush bool) error {
	return n.send(msg, target, true)
}

func (n *LocalNode) broadcast(msg message.SystemMessage, targets []quorum.NodeID, signed bool) []quorum.NodeID {
	var failed []quorum.NodeID
	for _, target := range targets {
		if err := n.send(msg, target, signed); err != nil {
			n.logger.Debug().
				Str("target", target.String()).
				Err(err).
				Msg("broadcast delivery failed")
			failed = append(failed, target)
		}
	}
	return failed
}

func (n *LocalNode) Broadcast(msg message.SystemMessage, targets []quorum.NodeID) []quorum.NodeID {
	return n.broadcast(msg, targets, false)
}

func (n *LocalNode) BroadcastSigned(msg message.SystemMessage, targets []quorum.NodeID) []quorum.NodeID {
	return n.broadcast(msg, targets, true)
}

func (n *LocalNode) Incoming() <-chan *message.StoredMessage[message.SystemMessage] {
	return n.inbox
}

func (n *LocalNode) Close() error {
	if !n.closed.CompareAndSwap(false, true) {
		return ErrNodeClosed
	}
	n.hub.leave(n.id)
	return nil
}
