// Package orderprotocol defines the contract between a replica and its
// pluggable ordering protocol: the driver interface the replica polls and
// feeds, the decision model that reports consensus progress, and the
// transport and persistence surfaces a protocol implementation is handed.
package orderprotocol

import (
	"github.com/stratum-smr/stratum/exec"
	"github.com/stratum-smr/stratum/message"
	"github.com/stratum-smr/stratum/pkg/ordering"
	"github.com/stratum-smr/stratum/pkg/quorum"
	"github.com/stratum-smr/stratum/request"
	"github.com/stratum-smr/stratum/timeouts"
)

// OrderingProtocol is the driver contract of a consensus implementation. The
// replica owns the loop: it polls for work, routes network messages in via
// ProcessMessage and reports execution progress back in. A protocol is driven
// from a single goroutine; implementations need no internal locking for these
// methods.
//
// The type parameters are the protocol's decision metadata MD, its wire
// payload P and the service's request payload O.
type OrderingProtocol[MD, P, O any] interface {
	ordering.Orderable

	// Poll asks the protocol for its next unit of work. The replica keeps
	// polling while results are internal (RePoll) and turns to the network
	// only when told to (ReceiveMsg); see the result kinds for the full
	// vocabulary.
	Poll() PollResult[MD, P, O]

	// ProcessMessage feeds one verified protocol message in. The message is
	// shared: the protocol may retain it but must not mutate it.
	ProcessMessage(msg *message.StoredMessage[message.Protocol[P]]) (ExecResult[MD, P, O], error)

	// InstallSeqNo moves the protocol to the given slot after a state or log
	// transfer. Decisions below it are settled elsewhere and must not be
	// re-proposed.
	InstallSeqNo(seq ordering.SeqNo) error

	// HandleTimeout reports expired request timeouts; the protocol decides
	// whether they warrant a view change or request forwarding.
	HandleTimeout(expired []timeouts.RqTimeout) (ExecResult[MD, P, O], error)

	// HandleExecutionChanged tells the protocol whether the application is
	// currently consuming decisions. While halted the protocol should stop
	// proposing so the execution backlog stays bounded.
	HandleExecutionChanged(executing bool) error

	// HandleOffCtxMessage stashes a message that arrived while the replica
	// was not in a state to process it (joining or transferring state). The
	// protocol surfaces it again through Poll once relevant.
	HandleOffCtxMessage(msg *message.StoredMessage[message.Protocol[P]])
}

// OrderingProtocolArgs is everything a protocol implementation receives at
// construction: its transport facade, the shared timeout service, the
// request pre-processing pipeline and the quorum it starts from.
type OrderingProtocolArgs[O, P any] struct {
	Node     SendNode[O, P]
	Timeouts *timeouts.Timeouts

	// Executor lets the protocol hand decided batches straight to execution
	// when it runs without the bundled replica loop.
	Executor *exec.Handle[O]

	// PreProcessor accepts the requests the protocol pulls out of proposals
	// it did not originate; Requests streams the batches back out.
	PreProcessor request.PreProcessor[O]
	Requests     request.BatchOutput[O]

	// InitialQuorum is the membership the protocol boots with.
	InitialQuorum []quorum.NodeID
}

// Initializer constructs a protocol instance from its own configuration type
// and the shared arguments.
type Initializer[CF, MD, P, O any] func(cfg CF, args OrderingProtocolArgs[O, P]) (OrderingProtocol[MD, P, O], error)

// ToleranceFunc maps a network size to the number of faulty nodes the
// protocol withstands.
type ToleranceFunc func(n int) int

// ByzantineTolerance is the standard BFT bound: n >= 3f+1.
func ByzantineTolerance(n int) int {
	return (n - 1) / 3
}

// CrashTolerance is the bound for crash-only fault models: n >= 2f+1.
func CrashTolerance(n int) int {
	return (n - 1) / 2
}

// ByzantineNetworkSize is the smallest network tolerating f byzantine nodes.
func ByzantineNetworkSize(f int) int {
	return 3*f + 1
}

// PermissionedOrderingProtocol is implemented by protocols that run over an
// explicit membership view (classic PBFT-style quorums).
type PermissionedOrderingProtocol[MD, P, O any] interface {
	OrderingProtocol[MD, P, O]

	// View is the membership the protocol currently operates under.
	View() quorum.NetworkView

	// InstallView replaces the membership after a reconfiguration settled.
	InstallView(view quorum.NetworkView) error
}

// ReconfigurableOrderProtocol is implemented by protocols whose quorum admits
// nodes at runtime.
type ReconfigurableOrderProtocol[MD, P, O any] interface {
	OrderingProtocol[MD, P, O]

	// AttemptQuorumJoin starts the admission of another node. Progress is
	// reported asynchronously through QuorumJoined results.
	AttemptQuorumJoin(node quorum.NodeID) error

	// JoinQuorum starts this node's own admission.
	JoinQuorum() error
}
