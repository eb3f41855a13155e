package quorum

import (
	"errors"
	"fmt"

	"github.com/stratum-smr/stratum/pkg/ordering"
)

// NodeID identifies a replica or client within the system. It is cheap to
// copy, comparable and usable as a map key.
type NodeID uint32

func (id NodeID) String() string {
	return fmt.Sprintf("node(%d)", uint32(id))
}

// NetworkView is an immutable snapshot of quorum membership for permissioned
// ordering protocols. Mutation happens by replacing the whole view.
type NetworkView interface {
	ordering.Orderable

	// Primary is the node leading the view.
	Primary() NodeID

	// Quorum is the number of nodes whose agreement constitutes a decision.
	Quorum() int

	// QuorumMembers is the ordered list of the view's members.
	QuorumMembers() []NodeID

	// F is the number of faulty nodes the view tolerates.
	F() int

	// N is the total number of nodes in the view.
	N() int
}

var (
	ErrViewTooSmall      = errors.New("view requires at least 3f + 1 members")
	ErrPrimaryNotMember  = errors.New("view primary is not a quorum member")
	ErrDuplicateMember   = errors.New("view contains a duplicate member")
)

// View is the concrete membership snapshot used by byzantine fault tolerant
// protocols, holding n = len(members) nodes of which f may be faulty.
type View struct {
	seq     ordering.SeqNo
	primary NodeID
	members []NodeID
	f       int
}

// NewView builds a view snapshot, enforcing n >= 3f + 1 and membership of the
// primary. The member list is kept in the order given, as protocols commonly
// derive the primary rotation from it.
func NewView(seq ordering.SeqNo, primary NodeID, members []NodeID, f int) (View, error) {
	if len(members) < 3*f+1 {
		return View{}, ErrViewTooSmall
	}
	seen := make(map[NodeID]struct{}, len(members))
	hasPrimary := false
	for _, m := range members {
		if _, ok := seen[m]; ok {
			return View{}, ErrDuplicateMember
		}
		seen[m] = struct{}{}
		if m == primary {
			hasPrimary = true
		}
	}
	if !hasPrimary {
		return View{}, ErrPrimaryNotMember
	}
	owned := make([]NodeID, len(members))
	copy(owned, members)
	return View{seq: seq, primary: primary, members: owned, f: f}, nil
}

func (v View) SequenceNumber() ordering.SeqNo {
	return v.seq
}

func (v View) Primary() NodeID {
	return v.primary
}

// Quorum is the 2f + 1 agreement threshold of the view.
func (v View) Quorum() int {
	return 2*v.f + 1
}

func (v View) QuorumMembers() []NodeID {
	members := make([]NodeID, len(v.members))
	copy(members, v.members)
	return members
}

func (v View) F() int {
	return v.f
}

func (v View) N() int {
	return len(v.members)
}

// Contains reports whether id is a member of the view.
func (v View) Contains(id NodeID) bool {
	for _, m := range v.members {
		if m == id {
			return true
		}
	}
	return false
}
