package sign

import (
	"crypto/ed25519"
	"errors"
)

// Signer manages a node's private key and signs outbound message headers.
//
// The signer must always produce signatures that verify under the public key
// the network information provider advertises for this node. Implementations
// backed by a remote or hardware key should serialize their own access.
type Signer interface {
	// PublicKey returns the verification key corresponding to the signing key.
	PublicKey() []byte

	Sign(msg []byte) ([]byte, error)
}

// VerifyFunc dictates how signatures are verified. This needs to match the
// key protocol of the signer.
type VerifyFunc func(publicKey, message, signature []byte) bool

// DefaultVerifyFunc verifies ed25519 signatures.
func DefaultVerifyFunc() VerifyFunc {
	return func(publicKey, message, signature []byte) bool {
		if len(publicKey) != ed25519.PublicKeySize {
			return false
		}
		return ed25519.Verify(publicKey, message, signature)
	}
}

var ErrInvalidKeySize = errors.New("ed25519 private key has the wrong size")

// Ed25519Signer signs with an in-memory ed25519 private key. It is the
// default signer used by the bundled transports.
type Ed25519Signer struct {
	key ed25519.PrivateKey
}

func NewEd25519Signer(key ed25519.PrivateKey) (*Ed25519Signer, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, ErrInvalidKeySize
	}
	return &Ed25519Signer{key: key}, nil
}

func (s *Ed25519Signer) PublicKey() []byte {
	return []byte(s.key.Public().(ed25519.PublicKey))
}

func (s *Ed25519Signer) Sign(msg []byte) ([]byte, error) {
	return ed25519.Sign(s.key, msg), nil
}
