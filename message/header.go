package message

import (
	"encoding/binary"
	"errors"

	"github.com/stratum-smr/stratum/pkg/digest"
	"github.com/stratum-smr/stratum/pkg/quorum"
)

// Header describes one wire envelope: who sent it, who it is for, a nonce
// protecting against replay, the length and digest of the serialized body and
// an optional signature over the sign bytes.
//
// Headers are value types and are never mutated after construction; a
// forwarded message keeps the inner header it was originally delivered with.
type Header struct {
	from      quorum.NodeID
	to        quorum.NodeID
	nonce     uint64
	length    int
	digest    digest.Digest
	signature []byte
}

func NewHeader(from, to quorum.NodeID, nonce uint64, length int, dg digest.Digest) Header {
	return Header{from: from, to: to, nonce: nonce, length: length, digest: dg}
}

// Signed returns a copy of h carrying the given signature.
func (h Header) Signed(signature []byte) Header {
	h.signature = append([]byte(nil), signature...)
	return h
}

func (h Header) From() quorum.NodeID    { return h.from }
func (h Header) To() quorum.NodeID      { return h.to }
func (h Header) Nonce() uint64          { return h.nonce }
func (h Header) Length() int            { return h.length }
func (h Header) Digest() digest.Digest  { return h.digest }
func (h Header) Signature() []byte      { return h.signature }

// headerVersion tags the sign-bytes layout so it can evolve without old
// signatures verifying under a new layout.
const headerVersion = 1

// SignBytes is the canonical encoding signed by the sender. It covers the
// route, the nonce and the body digest, which binds the signature to exactly
// one body: any change to the payload changes the digest and voids the
// signature.
func (h Header) SignBytes() []byte {
	buf := make([]byte, 0, 1+4+4+8+8+digest.Size)
	buf = append(buf, headerVersion)
	buf = binary.BigEndian.AppendUint32(buf, uint32(h.from))
	buf = binary.BigEndian.AppendUint32(buf, uint32(h.to))
	buf = binary.BigEndian.AppendUint64(buf, h.nonce)
	buf = binary.BigEndian.AppendUint64(buf, uint64(h.length))
	buf = append(buf, h.digest[:]...)
	return buf
}

var ErrHeaderTruncated = errors.New("header bytes are truncated")

// MarshalHeader encodes the full header, signature included, for transports
// that frame the header ahead of the body.
func MarshalHeader(h Header) []byte {
	buf := make([]byte, 0, 1+4+4+8+8+digest.Size+2+len(h.signature))
	buf = append(buf, h.SignBytes()...)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(h.signature)))
	buf = append(buf, h.signature...)
	return buf
}

// UnmarshalHeader reverses MarshalHeader, returning the header and the number
// of bytes consumed.
func UnmarshalHeader(b []byte) (Header, int, error) {
	const fixed = 1 + 4 + 4 + 8 + 8 + digest.Size + 2
	if len(b) < fixed {
		return Header{}, 0, ErrHeaderTruncated
	}
	if b[0] != headerVersion {
		return Header{}, 0, errors.New("unsupported header version")
	}
	var h Header
	h.from = quorum.NodeID(binary.BigEndian.Uint32(b[1:5]))
	h.to = quorum.NodeID(binary.BigEndian.Uint32(b[5:9]))
	h.nonce = binary.BigEndian.Uint64(b[9:17])
	h.length = int(binary.BigEndian.Uint64(b[17:25]))
	copy(h.digest[:], b[25:25+digest.Size])
	sigLen := int(binary.BigEndian.Uint16(b[25+digest.Size : fixed]))
	if len(b) < fixed+sigLen {
		return Header{}, 0, ErrHeaderTruncated
	}
	if sigLen > 0 {
		h.signature = append([]byte(nil), b[fixed:fixed+sigLen]...)
	}
	return h, fixed + sigLen, nil
}
