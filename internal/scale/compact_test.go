package scale_test

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hedeqiang/chainprobe/internal/scale"
)

func TestCompactKnownVectors(t *testing.T) {
	tests := []struct {
		n   uint64
		hex string
	}{
		{0, "00"},
		{1, "04"},
		{42, "a8"},
		{63, "fc"},
		{64, "0101"},
		{69, "1501"},
		{16383, "fdff"},
		{16384, "02000100"},
		{1073741823, "feffffff"},
		{1073741824, "0300000040"},
		{1 << 32, "070000000001"},
	}

	for _, tt := range tests {
		enc := scale.EncodeCompact(tt.n)
		assert.Equal(t, tt.hex, hex.EncodeToString(enc), "encode %d", tt.n)

		n, size, err := scale.DecodeCompact(enc)
		require.NoError(t, err)
		assert.Equal(t, tt.n, n)
		assert.Equal(t, len(enc), size)
	}
}

func TestDecodeCompactShortInput(t *testing.T) {
	for _, in := range []string{"", "01", "020001", "0300"} {
		b, _ := hex.DecodeString(in)
		_, _, err := scale.DecodeCompact(b)
		assert.ErrorIs(t, err, scale.ErrShortInput, "input %q", in)
	}
}

func TestDecodeFixedVec(t *testing.T) {
	b := append(scale.EncodeCompact(2), 1, 2, 3, 4)
	items, err := scale.DecodeFixedVec(b, 2)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{{1, 2}, {3, 4}}, items)

	_, err = scale.DecodeFixedVec(append(b, 5), 2)
	assert.Error(t, err)

	items, err = scale.DecodeFixedVec([]byte{0}, 32)
	require.NoError(t, err)
	assert.Empty(t, items)
}
