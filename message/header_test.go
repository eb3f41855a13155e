package message_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stratum-smr/stratum/message"
	"github.com/stratum-smr/stratum/pkg/digest"
	"github.com/stratum-smr/stratum/pkg/sign"
)

func TestHeaderRoundTrip(t *testing.T) {
	dg := digest.Sum([]byte("body"))
	header := message.NewHeader(2, 5, 77, 4, dg).Signed([]byte("signature"))

	data := message.MarshalHeader(header)
	got, consumed, err := message.UnmarshalHeader(data)
	require.NoError(t, err)
	require.Equal(t, len(data), consumed)
	require.Equal(t, header, got)
}

func TestHeaderUnmarshalTruncated(t *testing.T) {
	header := message.NewHeader(2, 5, 77, 4, digest.Sum([]byte("body")))
	data := message.MarshalHeader(header)

	_, _, err := message.UnmarshalHeader(data[:10])
	require.ErrorIs(t, err, message.ErrHeaderTruncated)
}

func TestSignBytesBindSignatureToBody(t *testing.T) {
	signer := sign.GenerateTestSigner()
	verify := sign.DefaultVerifyFunc()

	header := message.NewHeader(1, 2, 1, 4, digest.Sum([]byte("body")))
	sig, err := signer.Sign(header.SignBytes())
	require.NoError(t, err)
	require.True(t, verify(signer.PublicKey(), header.SignBytes(), sig))

	// the same route and nonce over a different body must not verify
	other := message.NewHeader(1, 2, 1, 5, digest.Sum([]byte("other")))
	require.False(t, verify(signer.PublicKey(), other.SignBytes(), sig))
}

func TestSignedReturnsACopy(t *testing.T) {
	header := message.NewHeader(1, 2, 3, 4, digest.Sum([]byte("body")))
	signed := header.Signed([]byte("sig"))

	require.Empty(t, header.Signature())
	require.Equal(t, []byte("sig"), signed.Signature())
	require.Equal(t, header.Digest(), signed.Digest())
}
