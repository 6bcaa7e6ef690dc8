package frame

import (
	"encoding/binary"
)

// Frame header constants per RFC 6455, section 5.2.
const (
	// MaxHeaderSize is the largest possible encoded header:
	// 2 bytes base + 8 bytes extended length + 4 bytes masking key.
	MaxHeaderSize = 14

	// MaxControlPayload is the control frame payload limit
	// (RFC 6455, section 5.5).
	MaxControlPayload = 125

	// First byte bits (RFC 6455, section 5.2).
	finalBit = 1 << 7 // FIN bit indicates final fragment
	rsv1Bit  = 1 << 6 // RSV1 bit used for permessage-deflate (RFC 7692)
	rsv2Bit  = 1 << 5 // RSV2 bit reserved
	rsv3Bit  = 1 << 4 // RSV3 bit reserved

	// Second byte bits (RFC 6455, section 5.2).
	maskBit = 1 << 7 // MASK bit indicates payload is masked

	// Masks and length indicators (RFC 6455, section 5.2).
	opcodeMask     = 0x0f // Opcode occupies bits 0-3
	payloadLenMask = 0x7f // Payload length occupies bits 0-6
	payloadLen16   = 126  // Indicates 16-bit extended payload length follows
	payloadLen64   = 127  // Indicates 64-bit extended payload length follows
)

// Header holds the decoded fields of a WebSocket frame header.
// Rsv1 set on the first frame of a message means the message is compressed
// with permessage-deflate (RFC 7692, section 6).
type Header struct {
	Final         bool
	Rsv1          bool
	Rsv2          bool
	Rsv3          bool
	Opcode        Opcode
	Masked        bool
	PayloadLength int64
}

// Frame owns a header and the fully materialized, unmasked payload.
// len(Payload) always equals Header.PayloadLength for frames produced by
// the reassembly layer.
type Frame struct {
	Header  Header
	Payload []byte
}

// New returns a data or control frame with the payload length filled in
// from the payload.
func New(op Opcode, final bool, payload []byte) *Frame {
	return &Frame{
		Header: Header{
			Final:         final,
			Opcode:        op,
			PayloadLength: int64(len(payload)),
		},
		Payload: payload,
	}
}

// HeaderSize returns the number of bytes WriteHeader needs for h:
// 2 bytes base, 0/2/8 extended length bytes, and 4 key bytes when masked.
func HeaderSize(h Header) int {
	n := 2
	switch {
	case h.PayloadLength < payloadLen16:
	case h.PayloadLength <= 0xffff:
		n += 2
	default:
		n += 8
	}
	if h.Masked {
		n += 4
	}
	return n
}

// WriteHeader encodes h into buf per RFC 6455, section 5.2, followed by the
// masking key when h.Masked is set, and returns the number of bytes written.
// It returns ErrShortBuffer when buf is smaller than HeaderSize(h).
//
// key must be non-nil exactly when h.Masked is set; this is a caller
// contract and is not re-validated here.
func WriteHeader(buf []byte, h Header, key *MaskingKey) (int, error) {
	size := HeaderSize(h)
	if len(buf) < size {
		return 0, ErrShortBuffer
	}

	b0 := byte(h.Opcode) & opcodeMask
	if h.Final {
		b0 |= finalBit
	}
	if h.Rsv1 {
		b0 |= rsv1Bit
	}
	if h.Rsv2 {
		b0 |= rsv2Bit
	}
	if h.Rsv3 {
		b0 |= rsv3Bit
	}
	buf[0] = b0

	var b1 byte
	if h.Masked {
		b1 = maskBit
	}
	switch {
	case h.PayloadLength < payloadLen16:
		buf[1] = b1 | byte(h.PayloadLength)
	case h.PayloadLength <= 0xffff:
		buf[1] = b1 | payloadLen16
		binary.BigEndian.PutUint16(buf[2:4], uint16(h.PayloadLength))
	default:
		buf[1] = b1 | payloadLen64
		binary.BigEndian.PutUint64(buf[2:10], uint64(h.PayloadLength))
	}

	if h.Masked {
		copy(buf[size-4:size], key[:])
	}

	return size, nil
}

// ParseHeader decodes a frame header from the start of data. It returns the
// header, the masking key when present, and the number of bytes consumed.
// When data does not yet hold a complete header it returns n == 0 and a nil
// error; the caller should retry with more bytes.
//
// A complete header is validated before it is returned: reserved opcodes,
// RSV2/RSV3, fragmented control frames, oversized control payloads and a
// 64-bit length with the most significant bit set are all protocol errors.
func ParseHeader(data []byte) (h Header, key MaskingKey, n int, err error) {
	if len(data) < 2 {
		return h, key, 0, nil
	}

	h.Final = data[0]&finalBit != 0
	h.Rsv1 = data[0]&rsv1Bit != 0
	h.Rsv2 = data[0]&rsv2Bit != 0
	h.Rsv3 = data[0]&rsv3Bit != 0
	h.Opcode = Opcode(data[0] & opcodeMask)
	h.Masked = data[1]&maskBit != 0

	n = 2
	length := int64(data[1] & payloadLenMask)
	switch length {
	case payloadLen16:
		if len(data) < n+2 {
			return h, key, 0, nil
		}
		length = int64(binary.BigEndian.Uint16(data[n : n+2]))
		n += 2
	case payloadLen64:
		if len(data) < n+8 {
			return h, key, 0, nil
		}
		v := binary.BigEndian.Uint64(data[n : n+8])
		if v>>63 != 0 {
			return h, key, 0, ErrPayloadLengthOverflow
		}
		length = int64(v)
		n += 8
	}
	h.PayloadLength = length

	if h.Masked {
		if len(data) < n+4 {
			return h, key, 0, nil
		}
		copy(key[:], data[n:n+4])
		n += 4
	}

	if !h.Opcode.valid() {
		return h, key, 0, ErrReservedOpcode
	}
	if h.Rsv2 || h.Rsv3 {
		return h, key, 0, ErrReservedBits
	}
	if h.Opcode.IsControl() {
		if !h.Final {
			return h, key, 0, ErrFragmentedControlFrame
		}
		if h.PayloadLength > MaxControlPayload {
			return h, key, 0, ErrControlFrameTooBig
		}
	}

	return h, key, n, nil
}
