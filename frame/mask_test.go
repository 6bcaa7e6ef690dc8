package frame

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskBytesInvolution(t *testing.T) {
	tests := []struct {
		name    string
		key     MaskingKey
		pos     int64
		payload []byte
	}{
		{
			name:    "Simple text",
			key:     MaskingKey{0x37, 0xfa, 0x21, 0x3d},
			payload: []byte("Hello"),
		},
		{
			name:    "Empty payload",
			key:     MaskingKey{0x01, 0x02, 0x03, 0x04},
			payload: []byte{},
		},
		{
			name:    "Non-zero frame offset",
			key:     MaskingKey{0xff, 0x00, 0xff, 0x00},
			pos:     3,
			payload: []byte("offset payload"),
		},
		{
			name:    "Payload longer than key cycle",
			key:     MaskingKey{0xaa, 0xbb, 0xcc, 0xdd},
			payload: bytes.Repeat([]byte{0x5a}, 1000),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := make([]byte, len(tt.payload))
			copy(data, tt.payload)

			MaskBytes(tt.key, tt.pos, data)
			if len(tt.payload) > 0 && !isZeroKey(tt.key) {
				assert.NotEqual(t, tt.payload, data)
			}

			MaskBytes(tt.key, tt.pos, data)
			assert.Equal(t, tt.payload, data)
		})
	}
}

func isZeroKey(key MaskingKey) bool {
	return key == MaskingKey{}
}

func TestMaskBytesRFCExample(t *testing.T) {
	// RFC 6455, section 5.7: "Hello" masked with 0x37 0xfa 0x21 0x3d.
	key := MaskingKey{0x37, 0xfa, 0x21, 0x3d}
	data := []byte("Hello")

	MaskBytes(key, 0, data)

	assert.Equal(t, []byte{0x7f, 0x9f, 0x4d, 0x51, 0x58}, data)
}

func TestMaskBytesSplitMatchesWhole(t *testing.T) {
	key := MaskingKey{0x12, 0x34, 0x56, 0x78}
	payload := []byte("payload masked across several chunks")

	whole := make([]byte, len(payload))
	copy(whole, payload)
	MaskBytes(key, 0, whole)

	split := make([]byte, len(payload))
	copy(split, payload)
	pos := int64(0)
	offset := 0
	for offset < len(split) {
		end := offset + 5
		if end > len(split) {
			end = len(split)
		}
		pos = MaskBytes(key, pos, split[offset:end])
		offset = end
	}

	assert.Equal(t, whole, split)
}

func TestNewMaskingKey(t *testing.T) {
	t.Run("Deterministic source", func(t *testing.T) {
		src := bytes.NewReader([]byte{0x01, 0x02, 0x03, 0x04, 0x05})

		key, err := NewMaskingKey(src)
		require.NoError(t, err)
		assert.Equal(t, MaskingKey{0x01, 0x02, 0x03, 0x04}, key)
	})

	t.Run("Default source", func(t *testing.T) {
		_, err := NewMaskingKey(nil)
		require.NoError(t, err)
	})

	t.Run("Exhausted source", func(t *testing.T) {
		src := bytes.NewReader([]byte{0x01})

		_, err := NewMaskingKey(src)
		require.Error(t, err)
	})
}
