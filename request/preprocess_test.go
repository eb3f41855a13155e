package request_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stratum-smr/stratum/message"
	"github.com/stratum-smr/stratum/pkg/digest"
	"github.com/stratum-smr/stratum/pkg/ordering"
	"github.com/stratum-smr/stratum/request"
)

func marshal(op string) ([]byte, error) { return []byte(op), nil }

func storedRequest(session, op ordering.SeqNo, body string) *message.StoredMessage[message.Request[string]] {
	rq := message.NewRequest(session, op, body)
	header := message.NewHeader(2, 1, uint64(op), len(body), digest.Sum([]byte(body)))
	return message.NewStoredMessage(header, rq)
}

func TestBatchEmittedAtTargetSize(t *testing.T) {
	p, err := request.NewProcessor(16, 2, marshal)
	require.NoError(t, err)

	require.NoError(t, p.Submit(storedRequest(1, 1, "a")))
	select {
	case <-p.Output():
		t.Fatal("batch emitted before reaching target size")
	default:
	}

	require.NoError(t, p.Submit(storedRequest(1, 2, "b")))
	batch := <-p.Output()
	require.Len(t, batch, 2)
	require.Equal(t, "a", batch[0].Message().Operation())
	require.Equal(t, "b", batch[1].Message().Operation())
}

func TestDuplicateRequestsAreDropped(t *testing.T) {
	p, err := request.NewProcessor(16, 4, marshal)
	require.NoError(t, err)

	require.NoError(t, p.Submit(storedRequest(1, 1, "a")))
	// a retransmission of the same operation
	require.NoError(t, p.Submit(storedRequest(1, 1, "a")))
	p.Flush()

	batch := <-p.Output()
	require.Len(t, batch, 1)
}

func TestStaleOperationsAreDropped(t *testing.T) {
	p, err := request.NewProcessor(16, 4, marshal)
	require.NoError(t, err)

	require.NoError(t, p.Submit(storedRequest(1, 5, "new")))
	// the session watermark is now 5; older operations are replays
	require.NoError(t, p.Submit(storedRequest(1, 3, "old")))
	p.Flush()

	batch := <-p.Output()
	require.Len(t, batch, 1)
	require.Equal(t, "new", batch[0].Message().Operation())
}

func TestSessionsAreIndependent(t *testing.T) {
	p, err := request.NewProcessor(16, 4, marshal)
	require.NoError(t, err)

	require.NoError(t, p.Submit(storedRequest(1, 5, "s1 op5")))
	require.NoError(t, p.Submit(storedRequest(2, 3, "s2 op3")))
	p.Flush()

	batch := <-p.Output()
	require.Len(t, batch, 2)
}

func TestFlushOnEmptyBufferEmitsNothing(t *testing.T) {
	p, err := request.NewProcessor(16, 4, marshal)
	require.NoError(t, err)

	p.Flush()
	select {
	case batch := <-p.Output():
		t.Fatalf("unexpected batch of %d requests", len(batch))
	default:
	}
}

func TestDescribeAll(t *testing.T) {
	batch := []*message.StoredMessage[message.Request[string]]{
		storedRequest(1, 1, "a"),
		storedRequest(1, 2, "b"),
	}
	infos, err := request.DescribeAll(marshal, batch)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	require.Equal(t, digest.Sum([]byte("a")), infos[0].Digest)
	require.EqualValues(t, 2, infos[1].Operation)
}
