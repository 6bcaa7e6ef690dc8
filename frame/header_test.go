package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderSize(t *testing.T) {
	tests := []struct {
		name     string
		header   Header
		expected int
	}{
		{
			name:     "Short payload",
			header:   Header{Opcode: OpText, PayloadLength: 5},
			expected: 2,
		},
		{
			name:     "Boundary 125",
			header:   Header{Opcode: OpBinary, PayloadLength: 125},
			expected: 2,
		},
		{
			name:     "Boundary 126 needs 16-bit length",
			header:   Header{Opcode: OpBinary, PayloadLength: 126},
			expected: 4,
		},
		{
			name:     "Boundary 65535",
			header:   Header{Opcode: OpBinary, PayloadLength: 65535},
			expected: 4,
		},
		{
			name:     "Boundary 65536 needs 64-bit length",
			header:   Header{Opcode: OpBinary, PayloadLength: 65536},
			expected: 10,
		},
		{
			name:     "Masked short payload",
			header:   Header{Opcode: OpText, Masked: true, PayloadLength: 5},
			expected: 6,
		},
		{
			name:     "Masked 64-bit length",
			header:   Header{Opcode: OpBinary, Masked: true, PayloadLength: 1 << 20},
			expected: 14,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, HeaderSize(tt.header))
		})
	}
}

func TestWriteHeaderExactBytes(t *testing.T) {
	tests := []struct {
		name     string
		header   Header
		key      *MaskingKey
		expected []byte
	}{
		{
			name:     "Final text frame of 5 bytes",
			header:   Header{Final: true, Opcode: OpText, PayloadLength: 5},
			expected: []byte{0x81, 0x05},
		},
		{
			name:     "Non-final binary frame",
			header:   Header{Opcode: OpBinary, PayloadLength: 0},
			expected: []byte{0x02, 0x00},
		},
		{
			name:     "Compressed final text frame",
			header:   Header{Final: true, Rsv1: true, Opcode: OpText, PayloadLength: 3},
			expected: []byte{0xc1, 0x03},
		},
		{
			name:     "16-bit extended length",
			header:   Header{Final: true, Opcode: OpBinary, PayloadLength: 256},
			expected: []byte{0x82, 0x7e, 0x01, 0x00},
		},
		{
			name:     "64-bit extended length",
			header:   Header{Final: true, Opcode: OpBinary, PayloadLength: 65536},
			expected: []byte{0x82, 0x7f, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00},
		},
		{
			name:     "Masked ping carries the key",
			header:   Header{Final: true, Opcode: OpPing, Masked: true, PayloadLength: 2},
			key:      &MaskingKey{0x01, 0x02, 0x03, 0x04},
			expected: []byte{0x89, 0x82, 0x01, 0x02, 0x03, 0x04},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, MaxHeaderSize)
			n, err := WriteHeader(buf, tt.header, tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, buf[:n])
		})
	}
}

func TestWriteHeaderShortBuffer(t *testing.T) {
	h := Header{Final: true, Opcode: OpBinary, Masked: true, PayloadLength: 65536}
	key := MaskingKey{1, 2, 3, 4}

	for size := 0; size < HeaderSize(h); size++ {
		_, err := WriteHeader(make([]byte, size), h, &key)
		assert.ErrorIs(t, err, ErrShortBuffer, "buffer of %d bytes", size)
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	headers := []Header{
		{Final: true, Opcode: OpText, PayloadLength: 5},
		{Final: false, Opcode: OpBinary, PayloadLength: 0},
		{Final: true, Rsv1: true, Opcode: OpText, PayloadLength: 125},
		{Final: true, Opcode: OpBinary, PayloadLength: 126},
		{Final: true, Opcode: OpBinary, PayloadLength: 65535},
		{Final: true, Opcode: OpBinary, PayloadLength: 65536},
		{Final: true, Opcode: OpBinary, PayloadLength: 1 << 40},
		{Final: true, Opcode: OpClose, PayloadLength: 2},
		{Final: true, Opcode: OpPing, Masked: true, PayloadLength: 0},
		{Final: true, Rsv1: true, Opcode: OpBinary, Masked: true, PayloadLength: 300},
	}

	for _, h := range headers {
		var key *MaskingKey
		if h.Masked {
			key = &MaskingKey{0xde, 0xad, 0xbe, 0xef}
		}

		buf := make([]byte, MaxHeaderSize)
		n, err := WriteHeader(buf, h, key)
		require.NoError(t, err)

		decoded, decodedKey, m, err := ParseHeader(buf[:n])
		require.NoError(t, err)
		assert.Equal(t, n, m)
		assert.Equal(t, h, decoded)
		if h.Masked {
			assert.Equal(t, *key, decodedKey)
		}
	}
}

func TestParseHeaderIncomplete(t *testing.T) {
	full := []byte{0x82, 0xfe, 0x01, 0x00, 0x01, 0x02, 0x03, 0x04} // masked binary, 256 bytes

	for size := 0; size < len(full); size++ {
		_, _, n, err := ParseHeader(full[:size])
		require.NoError(t, err, "prefix of %d bytes", size)
		assert.Zero(t, n, "prefix of %d bytes", size)
	}

	_, _, n, err := ParseHeader(full)
	require.NoError(t, err)
	assert.Equal(t, len(full), n)
}

func TestParseHeaderRejections(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected error
	}{
		{
			name:     "Reserved data opcode",
			data:     []byte{0x83, 0x00},
			expected: ErrReservedOpcode,
		},
		{
			name:     "Reserved control opcode",
			data:     []byte{0x8b, 0x00},
			expected: ErrReservedOpcode,
		},
		{
			name:     "RSV2 set",
			data:     []byte{0xa1, 0x00},
			expected: ErrReservedBits,
		},
		{
			name:     "RSV3 set",
			data:     []byte{0x91, 0x00},
			expected: ErrReservedBits,
		},
		{
			name:     "Non-final ping",
			data:     []byte{0x09, 0x00},
			expected: ErrFragmentedControlFrame,
		},
		{
			name:     "Control frame with 200 byte payload",
			data:     []byte{0x88, 0x7e, 0x00, 0xc8},
			expected: ErrControlFrameTooBig,
		},
		{
			name:     "64-bit length with high bit set",
			data:     []byte{0x82, 0x7f, 0x80, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01},
			expected: ErrPayloadLengthOverflow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, err := ParseHeader(tt.data)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.expected)

			var protoErr ProtocolError
			assert.ErrorAs(t, err, &protoErr)
		})
	}
}

func TestOpcodeClassification(t *testing.T) {
	for op := Opcode(0); op < 16; op++ {
		switch op {
		case OpContinuation, OpText, OpBinary:
			assert.True(t, op.IsData(), "opcode %d", op)
			assert.False(t, op.IsControl(), "opcode %d", op)
		case OpClose, OpPing, OpPong:
			assert.True(t, op.IsControl(), "opcode %d", op)
			assert.False(t, op.IsData(), "opcode %d", op)
		default:
			assert.False(t, op.valid(), "opcode %d", op)
			assert.Equal(t, "reserved", op.String())
		}
	}
}
