package frame

import "errors"

// ProtocolError reports a violation of RFC 6455 framing rules by the peer.
// A protocol error is fatal to the connection: the stream discards any
// in-flight frame state and makes no attempt to resynchronize.
type ProtocolError string

func (e ProtocolError) Error() string {
	return "wswire: protocol error: " + string(e)
}

// Protocol errors returned by the codec and the layers above it.
var (
	ErrReservedOpcode         = ProtocolError("reserved opcode")
	ErrReservedBits           = ProtocolError("reserved bits set")
	ErrFragmentedControlFrame = ProtocolError("fragmented control frame")
	ErrControlFrameTooBig     = ProtocolError("control frame payload exceeds 125 bytes")
	ErrPayloadLengthOverflow  = ProtocolError("payload length most significant bit set")
)

var (
	// ErrShortBuffer is returned by WriteHeader when the destination buffer
	// cannot hold the encoded header. It indicates a caller bug, not a
	// peer fault.
	ErrShortBuffer = errors.New("wswire: buffer too small for frame header")

	// ErrConnectionClosed is returned once the transport reports EOF.
	// It is terminal but does not indicate a fault on either side.
	ErrConnectionClosed = errors.New("wswire: connection closed")
)
