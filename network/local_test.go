package network_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stratum-smr/stratum/exec"
	"github.com/stratum-smr/stratum/message"
	"github.com/stratum-smr/stratum/network"
	"github.com/stratum-smr/stratum/pkg/digest"
	"github.com/stratum-smr/stratum/pkg/quorum"
	"github.com/stratum-smr/stratum/pkg/sign"
)

// wireCodec serializes messages just well enough for digesting. The in-process
// hub hands the message object through directly, so decoding never happens.
type wireCodec struct{}

func (wireCodec) Marshal(msg message.SystemMessage) ([]byte, error) {
	return []byte(fmt.Sprintf("%d|%v", msg.MsgKind(), msg)), nil
}

func (wireCodec) Unmarshal([]byte) (message.SystemMessage, error) {
	return nil, errors.New("in-process transport does not decode")
}

func receiveOne(t *testing.T, node network.Node) *message.StoredMessage[message.SystemMessage] {
	t.Helper()
	select {
	case stored := <-node.Incoming():
		return stored
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
		return nil
	}
}

func TestLocalHubDeliversSignedEnvelopes(t *testing.T) {
	hub := network.NewLocalHub(2)
	defer hub.Shutdown()

	signer := sign.GenerateTestSigner()
	n1, err := hub.Join(1, wireCodec{}, signer)
	require.NoError(t, err)
	n2, err := hub.Join(2, wireCodec{}, sign.GenerateTestSigner())
	require.NoError(t, err)
	defer n1.Close()
	defer n2.Close()

	msg := message.NewProtocol("prepare")
	require.NoError(t, n1.SendSigned(msg, 2, true))

	stored := receiveOne(t, n2)
	require.Equal(t, quorum.NodeID(1), stored.Header().From())
	require.Equal(t, quorum.NodeID(2), stored.Header().To())
	require.Equal(t, msg, stored.Message())

	body, err := wireCodec{}.Marshal(msg)
	require.NoError(t, err)
	require.Equal(t, digest.Sum(body), stored.Header().Digest())
	verify := sign.DefaultVerifyFunc()
	require.True(t, verify(signer.PublicKey(), stored.Header().SignBytes(), stored.Header().Signature()))
}

func TestBroadcastReportsUnreachableTargets(t *testing.T) {
	hub := network.NewLocalHub(2)
	defer hub.Shutdown()

	n1, err := hub.Join(1, wireCodec{}, sign.GenerateTestSigner())
	require.NoError(t, err)
	n2, err := hub.Join(2, wireCodec{}, sign.GenerateTestSigner())
	require.NoError(t, err)
	defer n1.Close()
	defer n2.Close()

	failed := n1.Broadcast(message.NewProtocol("commit"), []quorum.NodeID{2, 99})
	require.Equal(t, []quorum.NodeID{99}, failed)
	receiveOne(t, n2)
}

func TestClosedNodeRefusesToSend(t *testing.T) {
	hub := network.NewLocalHub(1)
	defer hub.Shutdown()

	n1, err := hub.Join(1, wireCodec{}, sign.GenerateTestSigner())
	require.NoError(t, err)
	require.NoError(t, n1.Close())

	err = n1.Send(message.NewProtocol("x"), 1, false)
	require.ErrorIs(t, err, network.ErrNodeClosed)
	require.Error(t, n1.Close())
}

func TestNodeWrapRoutesByVariant(t *testing.T) {
	hub := network.NewLocalHub(2)
	defer hub.Shutdown()

	n1, err := hub.Join(1, wireCodec{}, sign.GenerateTestSigner())
	require.NoError(t, err)
	client, err := hub.Join(7, wireCodec{}, sign.GenerateTestSigner())
	require.NoError(t, err)
	defer n1.Close()
	defer client.Close()

	wrap := network.Wrap[string, string, string, string, string](n1)

	// replies pick their envelope from the reply type
	reply := message.NewReply(1, 4, "done")
	require.NoError(t, wrap.ReplyNode().Send(exec.Ordered, reply, 7, false))
	stored := receiveOne(t, client)
	require.Equal(t, message.KindOrderedReply, stored.Message().MsgKind())
	require.Equal(t, reply, stored.Message().(message.OrderedReply[string]).Reply())

	require.NoError(t, wrap.ReplyNode().Send(exec.Unordered, reply, 7, false))
	stored = receiveOne(t, client)
	require.Equal(t, message.KindUnorderedReply, stored.Message().MsgKind())

	// the ordering facade wraps payloads as protocol messages
	require.NoError(t, wrap.OrderingNode().SendSigned("prepare", 7, false))
	stored = receiveOne(t, client)
	require.Equal(t, message.KindProtocol, stored.Message().MsgKind())
	require.Equal(t, "prepare", stored.Message().(message.Protocol[string]).Payload())

	// forwarded requests keep their original envelopes
	rq := message.NewRequest(1, 1, "write")
	rqHeader := message.NewHeader(7, 1, 1, 5, digest.Sum([]byte("write")))
	failed := wrap.OrderingNode().ForwardRequests(
		[]*message.StoredMessage[message.Request[string]]{message.NewStoredMessage(rqHeader, rq)},
		[]quorum.NodeID{7},
	)
	require.Empty(t, failed)
	stored = receiveOne(t, client)
	fwd := stored.Message().(message.ForwardedRequests[string])
	require.Len(t, fwd.Requests(), 1)
	require.Equal(t, rqHeader, fwd.Requests()[0].Header())

	// transfer facades wrap their own variants
	require.NoError(t, wrap.StateNode().Send("chunk", 7, false))
	require.Equal(t, message.KindStateTransfer, receiveOne(t, client).Message().MsgKind())
	require.NoError(t, wrap.LogNode().Send("entries", 7, false))
	require.Equal(t, message.KindLogTransfer, receiveOne(t, client).Message().MsgKind())
}

func TestSequentialSendsKeepTheirOrder(t *testing.T) {
	hub := network.NewLocalHub(8)
	defer hub.Shutdown()

	sender, err := hub.Join(1, wireCodec{}, sign.GenerateTestSigner())
	require.NoError(t, err)
	receiver, err := hub.Join(2, wireCodec{}, sign.GenerateTestSigner())
	require.NoError(t, err)

	const count = 100
	for i := 0; i < count; i++ {
		require.NoError(t, sender.Send(message.NewProtocol(fmt.Sprintf("op %03d", i)), 2, true))
	}

	for i := 0; i < count; i++ {
		stored := receiveOne(t, receiver)
		proto, ok := stored.Message().(message.Protocol[string])
		require.True(t, ok)
		require.Equal(t, fmt.Sprintf("op %03d", i), proto.Payload())
	}
}
