package sign

import (
	"crypto/ed25519"
	"crypto/rand"
)

// GenerateTestSigner creates a throwaway ed25519 signer for tests and local
// networks. Not for production keys.
func GenerateTestSigner() *Ed25519Signer {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		panic(err)
	}
	return &Ed25519Signer{key: priv}
}
