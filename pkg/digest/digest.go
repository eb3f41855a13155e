package digest

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Size is the length in bytes of every digest in the system.
const Size = blake2b.Size256

// Digest is a fixed-size cryptographic hash, comparable and usable as a map
// key. Batches, requests and wire envelopes are all addressed by it.
type Digest [Size]byte

// Sum hashes data with BLAKE2b-256.
func Sum(data []byte) Digest {
	return blake2b.Sum256(data)
}

// SumParts hashes the concatenation of parts, each length-prefixed so that
// part boundaries cannot be shifted without changing the digest.
func SumParts(parts ...[]byte) Digest {
	h, err := blake2b.New256(nil)
	if err != nil {
		// blake2b.New256 only fails when a key is supplied
		panic(err)
	}
	var lenBuf [4]byte
	for _, p := range parts {
		lenBuf[0] = byte(len(p) >> 24)
		lenBuf[1] = byte(len(p) >> 16)
		lenBuf[2] = byte(len(p) >> 8)
		lenBuf[3] = byte(len(p))
		h.Write(lenBuf[:])
		h.Write(p)
	}
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

// FromBytes copies b into a digest, requiring exactly Size bytes.
func FromBytes(b []byte) (Digest, error) {
	var d Digest
	if len(b) != Size {
		return d, fmt.Errorf("digest must be %d bytes, got %d", Size, len(b))
	}
	copy(d[:], b)
	return d, nil
}

func (d Digest) Bytes() []byte {
	return d[:]
}

// String renders a short hex prefix, enough to tell digests apart in logs.
func (d Digest) String() string {
	return hex.EncodeToString(d[:8])
}
