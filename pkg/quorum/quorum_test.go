package quorum_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stratum-smr/stratum/pkg/quorum"
)

func TestNewViewEnforcesSize(t *testing.T) {
	_, err := quorum.NewView(0, 1, []quorum.NodeID{1, 2, 3}, 1)
	require.ErrorIs(t, err, quorum.ErrViewTooSmall)

	view, err := quorum.NewView(0, 1, []quorum.NodeID{1, 2, 3, 4}, 1)
	require.NoError(t, err)
	require.Equal(t, 4, view.N())
	require.Equal(t, 1, view.F())
	require.Equal(t, 3, view.Quorum())
}

func TestNewViewRejectsForeignPrimary(t *testing.T) {
	_, err := quorum.NewView(0, 9, []quorum.NodeID{1, 2, 3, 4}, 1)
	require.ErrorIs(t, err, quorum.ErrPrimaryNotMember)
}

func TestNewViewRejectsDuplicateMembers(t *testing.T) {
	_, err := quorum.NewView(0, 1, []quorum.NodeID{1, 2, 2, 3}, 1)
	require.ErrorIs(t, err, quorum.ErrDuplicateMember)
}

func TestViewMembership(t *testing.T) {
	view, err := quorum.NewView(3, 2, []quorum.NodeID{1, 2, 3, 4, 5, 6, 7}, 2)
	require.NoError(t, err)
	require.EqualValues(t, 3, view.SequenceNumber())
	require.Equal(t, quorum.NodeID(2), view.Primary())
	require.Equal(t, 5, view.Quorum())
	require.True(t, view.Contains(7))
	require.False(t, view.Contains(8))
}
