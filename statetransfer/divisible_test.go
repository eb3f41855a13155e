package statetransfer_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stratum-smr/stratum/pkg/digest"
	"github.com/stratum-smr/stratum/statetransfer"
)

func TestStatePartsMatchDescriptor(t *testing.T) {
	parts := []statetransfer.StatePart{
		statetransfer.NewStatePart(0, []byte("accounts")),
		statetransfer.NewStatePart(1, []byte("balances")),
	}
	digests := make([]digest.Digest, len(parts))
	for i, p := range parts {
		digests[i] = p.Digest()
	}
	descriptor := statetransfer.NewStateDescriptor(12, digests)

	require.EqualValues(t, 12, descriptor.SequenceNumber())
	for i, p := range parts {
		require.Equal(t, descriptor.Parts()[i], p.Digest())
	}

	// a corrupted part no longer matches its descriptor entry
	corrupted := statetransfer.NewStatePart(0, []byte("tampered"))
	require.NotEqual(t, descriptor.Parts()[0], corrupted.Digest())
}

func TestInstallStateMessage(t *testing.T) {
	msg := statetransfer.NewInstallStateMessage(9, []statetransfer.StatePart{
		statetransfer.NewStatePart(0, []byte("chunk")),
	})
	require.EqualValues(t, 9, msg.SequenceNumber())
	require.Len(t, msg.Parts(), 1)
	require.Equal(t, []byte("chunk"), msg.Parts()[0].Body())
}
