package frame

import (
	"crypto/rand"
	"io"
)

// MaskingKey is the 4-byte XOR key applied to client-to-server payloads
// per RFC 6455, section 5.3.
type MaskingKey [4]byte

// NewMaskingKey returns a fresh masking key read from src. A nil src uses
// crypto/rand, the production default; tests inject a deterministic reader.
func NewMaskingKey(src io.Reader) (MaskingKey, error) {
	if src == nil {
		src = rand.Reader
	}
	var key MaskingKey
	if _, err := io.ReadFull(src, key[:]); err != nil {
		return key, err
	}
	return key, nil
}

// MaskBytes applies XOR masking to data in place per RFC 6455, section 5.3.
// pos is the offset of data[0] within the frame payload, so a payload may be
// masked across multiple calls. Masking is an involution: applying it twice
// with the same key and offset restores the original bytes, so the same
// function masks on write and unmasks on read.
//
// The returned value is the offset to pass for the payload's next chunk.
func MaskBytes(key MaskingKey, pos int64, data []byte) int64 {
	for i := range data {
		data[i] ^= key[(pos+int64(i))&3]
	}
	return (pos + int64(len(data))) & 3
}
