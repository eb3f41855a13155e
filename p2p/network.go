// Package p2p implements the replica transport over libp2p streams. Each
// envelope travels as one length-delimited frame: the serialized header
// followed by the codec-serialized body. Node ids map to libp2p peer ids
// through a static table handed in at construction.
package p2p

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/libp2p/go-libp2p/core/host"
	libp2pnetwork "github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"

	"github.com/stratum-smr/stratum/message"
	"github.com/stratum-smr/stratum/network"
	"github.com/stratum-smr/stratum/pkg/digest"
	"github.com/stratum-smr/stratum/pkg/quorum"
	"github.com/stratum-smr/stratum/pkg/sign"
)

const ProtocolID = protocol.ID("/stratum/replica/1.0.0")

// maxFrameSize bounds a single envelope on the wire.
const maxFrameSize = 32 << 20

const dialTimeout = 10 * time.Second

var (
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")
	ErrUnknownPeer   = errors.New("no peer id known for target node")
	ErrClosed        = errors.New("transport is closed")
)

var _ network.Node = (*Network)(nil)

// Network is one replica's endpoint. Outbound streams are cached per peer and
// redialed on failure; inbound streams feed the shared incoming channel.
type Network struct {
	host   host.Host
	self   quorum.NodeID
	codec  message.Codec
	signer sign.Signer
	peers  map[quorum.NodeID]peer.ID
	nonce  atomic.Uint64
	closed atomic.Bool

	mu      sync.Mutex
	streams map[quorum.NodeID]*outbound

	inbox  chan *message.StoredMessage[message.SystemMessage]
	logger zerolog.Logger
}

// outbound owns the cached stream to one peer. Its lock covers the whole
// frame write (and any redial), so frames from concurrent senders never
// interleave on the wire.
type outbound struct {
	mu sync.Mutex
	s  libp2pnetwork.Stream
}

// Option configures a Network.
type Option func(*Network)

func WithLogger(logger zerolog.Logger) Option {
	return func(n *Network) {
		n.logger = logger
	}
}

// NewNetwork wires a libp2p host into the replica transport. peers maps every
// known node id, this node's included, to its libp2p identity.
func NewNetwork(
	h host.Host,
	self quorum.NodeID,
	codec message.Codec,
	signer sign.Signer,
	peers map[quorum.NodeID]peer.ID,
	opts ...Option,
) *Network {
	n := &Network{
		host:    h,
		self:    self,
		codec:   codec,
		signer:  signer,
		peers:   peers,
		streams: make(map[quorum.NodeID]*outbound),
		inbox:   make(chan *message.StoredMessage[message.SystemMessage], 256),
		logger:  zerolog.New(os.Stdout).With().Str("node", self.String()).Logger(),
	}
	for _, opt := range opts {
		opt(n)
	}
	h.SetStreamHandler(ProtocolID, n.handleStream)
	return n
}

func (n *Network) ID() quorum.NodeID { return n.self }

func (n *Network) Incoming() <-chan *message.StoredMessage[message.SystemMessage] {
	return n.inbox
}

// handleStream reads frames off an inbound stream until it errors or the
// transport closes.
func (n *Network) handleStream(s libp2pnetwork.Stream) {
	defer s.Reset()

	r := bufio.NewReader(s)
	for {
		frame, err := readFrame(r)
		if err != nil {
			return
		}
		header, consumed, err := message.UnmarshalHeader(frame)
		if err != nil {
			n.logger.Debug().Err(err).Msg("discarding frame with bad header")
			continue
		}
		body := frame[consumed:]
		if len(body) != header.Length() || digest.Sum(body) != header.Digest() {
			n.logger.Debug().
				Str("from", header.From().String()).
				Msg("discarding frame, body does not match header")
			continue
		}
		msg, err := n.codec.Unmarshal(body)
		if err != nil {
			n.logger.Debug().Err(err).Msg("discarding undecodable frame")
			continue
		}
		if n.closed.Load() {
			return
		}
		select {
		case n.inbox <- message.NewStoredMessage(header, msg):
		default:
			n.logger.Warn().
				Str("kind", msg.MsgKind().String()).
				Msg("dropping inbound message, inbox is full")
		}
	}
}

func readFrame(r *bufio.Reader) ([]byte, error) {
	size, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	if size > maxFrameSize {
		return nil, ErrFrameTooLarge
	}
	frame := make([]byte, size)
	if _, err := io.ReadFull(r, frame); err != nil {
		return nil, err
	}
	return frame, nil
}

// frame serializes one envelope: body via codec, header binding it, optional
// signature, all behind a uvarint length prefix.
func (n *Network) frame(msg message.SystemMessage, target quorum.NodeID, signed bool) ([]byte, error) {
	body, err := n.codec.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("serializing %s: %w", msg.MsgKind(), err)
	}
	header := message.NewHeader(n.self, target, n.nonce.Inc(), len(body), digest.Sum(body))
	if signed {
		sig, err := n.signer.Sign(header.SignBytes())
		if err != nil {
			return nil, fmt.Errorf("signing %s: %w", msg.MsgKind(), err)
		}
		header = header.Signed(sig)
	}
	hb := message.MarshalHeader(header)
	frame := make([]byte, 0, binary.MaxVarintLen64+len(hb)+len(body))
	frame = binary.AppendUvarint(frame, uint64(len(hb)+len(body)))
	frame = append(frame, hb...)
	frame = append(frame, body...)
	return frame, nil
}

// outboundTo returns the write slot for the target, creating it on first use.
func (n *Network) outboundTo(target quorum.NodeID) (*outbound, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if o, ok := n.streams[target]; ok {
		return o, nil
	}
	if _, ok := n.peers[target]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPeer, target)
	}
	o := &outbound{}
	n.streams[target] = o
	return o, nil
}

func (n *Network) dial(target quorum.NodeID) (libp2pnetwork.Stream, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	s, err := n.host.NewStream(ctx, n.peers[target], ProtocolID)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", target, err)
	}
	return s, nil
}

func (n *Network) send(msg message.SystemMessage, target quorum.NodeID, signed bool) error {
	if n.closed.Load() {
		return ErrClosed
	}
	frame, err := n.frame(msg, target, signed)
	if err != nil {
		return err
	}
	o, err := n.outboundTo(target)
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.s == nil {
		if o.s, err = n.dial(target); err != nil {
			return err
		}
	}
	if _, err := o.s.Write(frame); err != nil {
		// the cached stream may have gone stale; redial once
		_ = o.s.Reset()
		if o.s, err = n.dial(target); err != nil {
			return err
		}
		if _, err := o.s.Write(frame); err != nil {
			_ = o.s.Reset()
			o.s = nil
			return fmt.Errorf("writing to %s: %w", target, err)
		}
	}
	return nil
}

func (n *Network) Send(msg message.SystemMessage, target quorum.NodeID, flush bool) error {
	return n.send(msg, target, false)
}

func (n *Network) SendSigned(msg message.SystemMessage, target quorum.NodeID, flush bool) error {
	return n.send(msg, target, true)
}

func (n *Network) broadcast(msg message.SystemMessage, targets []quorum.NodeID, signed bool) []quorum.NodeID {
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

func (n *Network) Broadcast(msg message.SystemMessage, targets []quorum.NodeID) []quorum.NodeID {
	return n.broadcast(msg, targets, false)
}

func (n *Network) BroadcastSigned(msg message.SystemMessage, targets []quorum.NodeID) []quorum.NodeID {
	return n.broadcast(msg, targets, true)
}

func (n *Network) Close() error {
	if !n.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	n.host.RemoveStreamHandler(ProtocolID)
	n.mu.Lock()
	defer n.mu.Unlock()
	var errs *multierror.Error
	for target, o := range n.streams {
		delete(n.streams, target)
		o.mu.Lock()
		if o.s != nil {
			if err := o.s.Close(); err != nil {
				errs = multierror.Append(errs, err)
			}
			o.s = nil
		}
		o.mu.Unlock()
	}
	return errs.ErrorOrNil()
}
