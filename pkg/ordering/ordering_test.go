package ordering_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stratum-smr/stratum/pkg/ordering"
)

func TestSeqNoOrdering(t *testing.T) {
	require.EqualValues(t, 1, ordering.InitialSeq.Next())
	require.True(t, ordering.SeqNo(5).After(4))
	require.False(t, ordering.SeqNo(4).After(4))
	require.Equal(t, -1, ordering.SeqNo(1).Compare(2))
	require.Equal(t, 0, ordering.SeqNo(2).Compare(2))
	require.Equal(t, 1, ordering.SeqNo(3).Compare(2))
	require.EqualValues(t, 7, ordering.Max(3, 7))
	require.True(t, ordering.SeqNo(4).Equals(4))
	require.False(t, ordering.SeqNo(4).Equals(5))
}

func TestSeqNoPrev(t *testing.T) {
	require.EqualValues(t, 4, ordering.SeqNo(5).Prev())
	require.Equal(t, ordering.InvalidSeqNo, ordering.InitialSeq.Prev())
	require.True(t, ordering.InvalidSeqNo.After(ordering.SeqNo(1<<62)))
}
