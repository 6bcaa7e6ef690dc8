package frame

// Opcode identifies the frame type per RFC 6455, section 5.2.
type Opcode byte

// Opcodes defined in RFC 6455, section 11.8.
const (
	OpContinuation Opcode = 0x0
	OpText         Opcode = 0x1
	OpBinary       Opcode = 0x2
	OpClose        Opcode = 0x8
	OpPing         Opcode = 0x9
	OpPong         Opcode = 0xA
)

// IsData reports whether the opcode names a data frame. Continuation frames
// count as data: they carry fragments of a Text or Binary message.
func (op Opcode) IsData() bool {
	return op == OpContinuation || op == OpText || op == OpBinary
}

// IsControl reports whether the opcode names a control frame (RFC 6455,
// section 5.5). Control frames may interleave with a fragmented message.
func (op Opcode) IsControl() bool {
	return op == OpClose || op == OpPing || op == OpPong
}

// valid reports whether RFC 6455 defines the opcode. Values 0x3-0x7 and
// 0xB-0xF are reserved; a frame carrying one is a protocol violation.
func (op Opcode) valid() bool {
	return op.IsData() || op.IsControl()
}

func (op Opcode) String() string {
	switch op {
	case OpContinuation:
		return "continuation"
	case OpText:
		return "text"
	case OpBinary:
		return "binary"
	case OpClose:
		return "close"
	case OpPing:
		return "ping"
	case OpPong:
		return "pong"
	default:
		return "reserved"
	}
}
