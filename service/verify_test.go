package service_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stratum-smr/stratum/codec"
	"github.com/stratum-smr/stratum/message"
	"github.com/stratum-smr/stratum/network"
	"github.com/stratum-smr/stratum/pkg/digest"
	"github.com/stratum-smr/stratum/pkg/quorum"
	"github.com/stratum-smr/stratum/pkg/sign"
	"github.com/stratum-smr/stratum/service"
)

// echoApp carries string payloads verbatim.
type echoApp struct{}

func (echoApp) MarshalRequest(op string) ([]byte, error)      { return []byte(op), nil }
func (echoApp) UnmarshalRequest(data []byte) (string, error)  { return string(data), nil }
func (echoApp) MarshalReply(reply string) ([]byte, error)     { return []byte(reply), nil }
func (echoApp) UnmarshalReply(data []byte) (string, error)    { return string(data), nil }

// textProtocol verifies its messages by re-entering the envelope signature
// check through the helper, the way real protocols validate embedded parts.
type textProtocol struct{}

func (textProtocol) VerifyProtocolMessage(_ network.InformationProvider, helper service.VerificationHelper[string, string, string], header message.Header, payload string) (bool, string, error) {
	verified, err := helper.VerifyProtocolMessage(header, payload)
	if err != nil {
		return false, payload, nil
	}
	return true, verified, nil
}

func (textProtocol) VerifyProof(_ network.InformationProvider, _ service.VerificationHelper[string, string, string], proof string) (bool, string, error) {
	return true, proof, nil
}

func (textProtocol) MarshalProtocol(payload string) ([]byte, error)    { return []byte(payload), nil }
func (textProtocol) UnmarshalProtocol(data []byte) (string, error)     { return string(data), nil }

type textState struct{}

func (textState) VerifyStateMessage(_ network.InformationProvider, _ message.Header, payload string) (bool, string, error) {
	return true, payload, nil
}
func (textState) MarshalState(payload string) ([]byte, error) { return []byte(payload), nil }
func (textState) UnmarshalState(data []byte) (string, error)  { return string(data), nil }

type textLog struct{}

func (textLog) VerifyLogMessage(_ network.InformationProvider, _ service.VerificationHelper[string, string, string], _ message.Header, payload string) (bool, string, error) {
	return true, payload, nil
}
func (textLog) MarshalLog(payload string) ([]byte, error) { return []byte(payload), nil }
func (textLog) UnmarshalLog(data []byte) (string, error)  { return string(data), nil }

type fixture struct {
	svc      service.Service[string, string, string, string, string, string]
	codec    message.Codec
	verifier service.SignatureVerifier
	info     *network.StaticInfoProvider
	signers  map[quorum.NodeID]*sign.Ed25519Signer
}

func newFixture(t *testing.T, nodes ...quorum.NodeID) *fixture {
	t.Helper()
	svc := service.NewService[string, string, string, string, string, string](
		echoApp{}, textProtocol{}, textState{}, textLog{},
	)
	wire := codec.NewProtoCodec(svc)

	signers := make(map[quorum.NodeID]*sign.Ed25519Signer)
	keys := make(map[quorum.NodeID][]byte)
	for _, id := range nodes {
		signer := sign.GenerateTestSigner()
		signers[id] = signer
		keys[id] = signer.PublicKey()
	}
	return &fixture{
		svc:      svc,
		codec:    wire,
		verifier: service.NewEnvelopeVerifier(wire),
		info:     network.NewStaticInfoProvider(nodes[0], keys),
		signers:  signers,
	}
}

// envelope builds the header a transport would deliver msg under, signed by
// from.
func (f *fixture) envelope(t *testing.T, from, to quorum.NodeID, msg message.SystemMessage) message.Header {
	t.Helper()
	body, err := f.codec.Marshal(msg)
	require.NoError(t, err)
	header := message.NewHeader(from, to, 1, len(body), digest.Sum(body))
	sig, err := f.signers[from].Sign(header.SignBytes())
	require.NoError(t, err)
	return header.Signed(sig)
}

func TestVerifyEnvelopeAcceptsSignedMessage(t *testing.T) {
	f := newFixture(t, 1, 2)
	msg := message.NewProtocol("prepare")
	header := f.envelope(t, 2, 1, msg)

	ok, verified, err := f.svc.VerifyEnvelope(f.info, f.verifier, header, msg)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "prepare", verified.(message.Protocol[string]).Payload())
}

func TestVerifyEnvelopeRejectsTamperedBody(t *testing.T) {
	f := newFixture(t, 1, 2)
	header := f.envelope(t, 2, 1, message.NewProtocol("prepare"))

	// deliver a different body under the same header
	_, _, err := f.svc.VerifyEnvelope(f.info, f.verifier, header, message.NewProtocol("commit"))
	require.ErrorIs(t, err, service.ErrDigestMismatch)
}

func TestVerifyEnvelopeRejectsUnknownSender(t *testing.T) {
	f := newFixture(t, 1, 2)
	msg := message.NewProtocol("prepare")
	body, err := f.codec.Marshal(msg)
	require.NoError(t, err)
	header := message.NewHeader(99, 1, 1, len(body), digest.Sum(body))

	_, _, err = f.svc.VerifyEnvelope(f.info, f.verifier, header, msg)
	require.ErrorIs(t, err, service.ErrUnknownSender)
}

func TestVerifyEnvelopeRejectsBadSignature(t *testing.T) {
	f := newFixture(t, 1, 2)
	msg := message.NewProtocol("prepare")
	header := f.envelope(t, 2, 1, msg)

	forged := header.Signed(make([]byte, 64))
	_, _, err := f.svc.VerifyEnvelope(f.info, f.verifier, forged, msg)
	require.ErrorIs(t, err, service.ErrInvalidSignature)
}

func TestVerifyMessageIsDeterministic(t *testing.T) {
	f := newFixture(t, 1, 2)
	msg := message.NewProtocol("prepare")
	header := f.envelope(t, 2, 1, msg)

	for i := 0; i < 3; i++ {
		ok, verified, err := f.svc.VerifyMessage(f.info, f.verifier, header, msg)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, msg, verified)
	}
}

func TestForwardedProtocolTrustsOnlyInnerHeader(t *testing.T) {
	f := newFixture(t, 1, 2, 3)
	inner := message.NewProtocol("prepare")
	innerHeader := f.envelope(t, 2, 1, inner)
	forwarded := message.NewForwardedProtocol(message.NewStoredMessage(innerHeader, inner))

	// the outer header is unsigned; only the inner one is consulted
	outer := message.NewHeader(3, 1, 7, 0, digest.Digest{})
	ok, _, err := f.svc.VerifyMessage(f.info, f.verifier, outer, forwarded)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestForwardedProtocolRejectsForgedInnerHeader(t *testing.T) {
	f := newFixture(t, 1, 2, 3)
	inner := message.NewProtocol("prepare")
	innerHeader := f.envelope(t, 2, 1, inner).Signed(make([]byte, 64))
	forwarded := message.NewForwardedProtocol(message.NewStoredMessage(innerHeader, inner))

	outer := f.envelope(t, 3, 1, forwarded)
	ok, _, err := f.svc.VerifyMessage(f.info, f.verifier, outer, forwarded)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestForwardedRequestsVerifyAsConjunction(t *testing.T) {
	f := newFixture(t, 1, 2, 3)

	good := message.NewRequest(1, 1, "write")
	goodHeader := f.envelope(t, 2, 1, service.WrapRequest(good))

	batch := message.NewForwardedRequests([]*message.StoredMessage[message.Request[string]]{
		message.NewStoredMessage(goodHeader, good),
	})
	outer := f.envelope(t, 3, 1, batch)
	ok, _, err := f.svc.VerifyMessage(f.info, f.verifier, outer, batch)
	require.NoError(t, err)
	require.True(t, ok)

	// one forged entry poisons the whole batch
	bad := message.NewRequest(1, 2, "erase")
	badHeader := f.envelope(t, 2, 1, service.WrapRequest(bad)).Signed(make([]byte, 64))
	poisoned := message.NewForwardedRequests([]*message.StoredMessage[message.Request[string]]{
		message.NewStoredMessage(goodHeader, good),
		message.NewStoredMessage(badHeader, bad),
	})
	outer = f.envelope(t, 3, 1, poisoned)
	ok, _, err = f.svc.VerifyMessage(f.info, f.verifier, outer, poisoned)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRequestsAndRepliesAreTrustedAtThisLayer(t *testing.T) {
	f := newFixture(t, 1, 2)
	rq := message.NewOrderedRequest(message.NewRequest(1, 1, "write"))
	header := f.envelope(t, 2, 1, rq)

	ok, verified, err := f.svc.VerifyMessage(f.info, f.verifier, header, rq)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, rq, verified)
}

func TestNoProtocolReportsUnverified(t *testing.T) {
	svc := service.ClientService[string, string](echoApp{})
	wire := codec.NewProtoCodec(svc)
	verifier := service.NewEnvelopeVerifier(wire)
	signer := sign.GenerateTestSigner()
	info := network.NewStaticInfoProvider(1, map[quorum.NodeID][]byte{1: signer.PublicKey()})

	msg := message.NewProtocol(service.NoMessage{})
	ok, verified, err := svc.VerifyMessage(info, verifier, message.Header{}, msg)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, msg, verified)
}
