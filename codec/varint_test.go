package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeRemainingLength(t *testing.T) {
	tests := []struct {
		name  string
		value uint32
		want  []byte
	}{
		{"zero", 0, []byte{0x00}},
		{"one byte max", 127, []byte{0x7F}},
		{"two bytes min", 128, []byte{0x80, 0x01}},
		{"two bytes max", 16383, []byte{0xFF, 0x7F}},
		{"three bytes min", 16384, []byte{0x80, 0x80, 0x01}},
		{"three bytes max", 2097151, []byte{0xFF, 0xFF, 0x7F}},
		{"four bytes min", 2097152, []byte{0x80, 0x80, 0x80, 0x01}},
		{"four bytes max", MaxRemainingLength, []byte{0xFF, 0xFF, 0xFF, 0x7F}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := encodeRemainingLength(tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncodeRemainingLengthTooLarge(t *testing.T) {
	_, err := encodeRemainingLength(MaxRemainingLength + 1)
	assert.ErrorIs(t, err, ErrRemainingLengthExceeded)
}

func TestDecodeRemainingLength(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want uint32
	}{
		{"zero", []byte{0x00}, 0},
		{"one byte max", []byte{0x7F}, 127},
		{"two bytes", []byte{0x80, 0x01}, 128},
		{"max", []byte{0xFF, 0xFF, 0xFF, 0x7F}, MaxRemainingLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeRemainingLength(bytes.NewReader(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeRemainingLengthErrors(t *testing.T) {
	t.Run("fifth continuation byte", func(t *testing.T) {
		_, err := decodeRemainingLength(bytes.NewReader([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0x01}))
		assert.ErrorIs(t, err, ErrRemainingLengthExceeded)
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := decodeRemainingLength(bytes.NewReader([]byte{0x80}))
		assert.ErrorIs(t, err, ErrBufferUnderflow)
	})
}

func TestRemainingLengthRoundTrip(t *testing.T) {
	for _, v := range []uint32{0, 1, 127, 128, 16383, 16384, 2097151, 2097152, MaxRemainingLength} {
		b, err := encodeRemainingLength(v)
		require.NoError(t, err)
		got, err := decodeRemainingLength(bytes.NewReader(b))
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}
