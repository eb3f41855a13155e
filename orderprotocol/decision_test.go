package orderprotocol_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stratum-smr/stratum/exec"
	"github.com/stratum-smr/stratum/message"
	"github.com/stratum-smr/stratum/orderprotocol"
	"github.com/stratum-smr/stratum/pkg/digest"
	"github.com/stratum-smr/stratum/pkg/ordering"
	"github.com/stratum-smr/stratum/pkg/quorum"
)

func quorumID(n uint32) quorum.NodeID { return quorum.NodeID(n) }

type meta struct {
	Round uint32
}

type payload struct {
	Body string
}

func protocolMsg(t *testing.T, from uint32, body string) *message.StoredMessage[message.Protocol[payload]] {
	t.Helper()
	header := message.NewHeader(quorumID(from), quorumID(1), 1, len(body), digest.Sum([]byte(body)))
	return message.NewStoredMessage(header, message.NewProtocol(payload{Body: body}))
}

func outcome(seq ordering.SeqNo) orderprotocol.ProtocolConsensusDecision[string] {
	batch := exec.NewUpdateBatch[string](seq)
	batch.Add(exec.NewUpdate(quorumID(9), 1, 1, "op"))
	return orderprotocol.NewProtocolConsensusDecision(seq, batch, nil, digest.Sum([]byte("batch")))
}

func TestDecisionProgressesToCompletion(t *testing.T) {
	d := orderprotocol.DecisionFromMetadata[meta, payload, string](4, meta{Round: 1})
	require.False(t, d.Completed())

	d = d.Append(orderprotocol.PartialInfo[meta, payload, string](
		[]*message.StoredMessage[message.Protocol[payload]]{protocolMsg(t, 2, "prepare")},
	))
	require.False(t, d.Completed())

	d = d.Append(orderprotocol.DoneInfo[meta, payload, string](outcome(4)))
	require.True(t, d.Completed())

	batch, ok := d.ExecutableBatch()
	require.True(t, ok)
	require.EqualValues(t, 4, batch.SequenceNumber())
	require.Equal(t, 1, batch.Batch().Len())
}

func TestDecisionEntriesStaySorted(t *testing.T) {
	// entries arrive out of completion order but read back sorted
	d := orderprotocol.CompletedDecision[meta, payload, string](7, outcome(7))
	d = d.Append(orderprotocol.MetadataInfo[meta, payload, string](meta{Round: 2}))
	d = d.Append(orderprotocol.PartialInfo[meta, payload, string](
		[]*message.StoredMessage[message.Protocol[payload]]{protocolMsg(t, 3, "commit")},
	))

	info := d.Info()
	require.Len(t, info, 3)
	require.Equal(t, orderprotocol.InfoMetadata, info[0].Kind())
	require.Equal(t, orderprotocol.InfoPartial, info[1].Kind())
	require.Equal(t, orderprotocol.InfoDone, info[2].Kind())
}

func TestDecisionTerminalEntryIsUnique(t *testing.T) {
	d := orderprotocol.CompletedDecision[meta, payload, string](3, outcome(3))
	d = d.Append(orderprotocol.DoneInfo[meta, payload, string](outcome(3)))
	require.Len(t, d.Info(), 1)

	d = d.Append(orderprotocol.MetadataInfo[meta, payload, string](meta{Round: 1}))
	d = d.Append(orderprotocol.MetadataInfo[meta, payload, string](meta{Round: 9}))
	require.Len(t, d.Info(), 2)
	// the first metadata entry wins
	require.EqualValues(t, 1, d.Info()[0].Metadata().Round)
}

func TestMergeDecisionsRejectsSeqMismatch(t *testing.T) {
	a := orderprotocol.DecisionFromMetadata[meta, payload, string](1, meta{})
	b := orderprotocol.DecisionFromMetadata[meta, payload, string](2, meta{})

	_, err := orderprotocol.MergeDecisions(a, b)
	require.Error(t, err)
	require.ErrorIs(t, err, orderprotocol.ErrSeqMismatch)
}

func TestMergeDecisionsIsCommutativeAndIdempotent(t *testing.T) {
	msgs := []*message.StoredMessage[message.Protocol[payload]]{protocolMsg(t, 2, "prepare")}
	a := orderprotocol.DecisionFromMetadata[meta, payload, string](5, meta{Round: 1})
	b := orderprotocol.DecisionFromMessages[meta, payload, string](5, msgs)

	ab, err := orderprotocol.MergeDecisions(a, b)
	require.NoError(t, err)
	ba, err := orderprotocol.MergeDecisions(b, a)
	require.NoError(t, err)
	require.Len(t, ab.Info(), 2)
	require.Len(t, ba.Info(), 2)
	require.Equal(t, ab.Info()[0].Kind(), ba.Info()[0].Kind())
	require.Equal(t, ab.Info()[1].Kind(), ba.Info()[1].Kind())

	// merging the same progress again changes nothing
	again, err := orderprotocol.MergeDecisions(ab, b)
	require.NoError(t, err)
	require.Len(t, again.Info(), 2)
}

func TestFullDecisionCarriesEverything(t *testing.T) {
	msgs := []*message.StoredMessage[message.Protocol[payload]]{
		protocolMsg(t, 2, "prepare"),
		protocolMsg(t, 3, "commit"),
	}
	d := orderprotocol.FullDecision(6, meta{Round: 3}, msgs, outcome(6))

	require.True(t, d.Completed())
	require.EqualValues(t, 6, d.SequenceNumber())
	require.Len(t, d.Info(), 3)
	require.Len(t, d.Info()[1].Messages(), 2)
}

func TestToleranceBounds(t *testing.T) {
	require.Equal(t, 1, orderprotocol.ByzantineTolerance(4))
	require.Equal(t, 1, orderprotocol.ByzantineTolerance(5))
	require.Equal(t, 2, orderprotocol.ByzantineTolerance(7))
	require.Equal(t, 1, orderprotocol.CrashTolerance(3))
	require.Equal(t, 2, orderprotocol.CrashTolerance(5))
}
