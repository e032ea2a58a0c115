package intcodec

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUvarint32_RoundTrip(t *testing.T) {
	values := []uint32{0, 1, 127, 128, 300, 16384, 1 << 21, 1 << 28, math.MaxUint32}
	var buf [MaxUvarint32Len]byte
	for _, v := range values {
		n := PutUvarint32(buf[:], v)
		decoded, m := Uvarint32(buf[:n])
		assert.Equal(t, v, decoded)
		assert.Equal(t, n, m)
	}
}

func TestUvarint32_Truncated(t *testing.T) {
	buf := AppendUvarint32(nil, math.MaxUint32)
	for i := 0; i < len(buf); i++ {
		_, n := Uvarint32(buf[:i])
		assert.True(t, n <= 0, "expected error for truncated input of %d bytes", i)
	}
}

func TestEncodeBlock_Constant(t *testing.T) {
	values := make([]uint32, BlockSize)
	for i := range values {
		values[i] = 42
	}
	data := EncodeBlock(nil, values)
	require.NotEmpty(t, data)
	assert.Equal(t, byte(0), data[0], "all-equal blocks must use the constant tag")

	decoded := make([]uint32, BlockSize)
	rest, err := DecodeBlock(data, decoded)
	require.NoError(t, err)
	assert.Empty(t, rest)
	assert.Equal(t, values, decoded)
}

func TestEncodeBlock_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for iter := 0; iter < 100; iter++ {
		n := 1 + rng.Intn(BlockSize)
		values := make([]uint32, n)
		shift := uint(rng.Intn(32))
		for i := range values {
			values[i] = rng.Uint32() >> shift
		}

		data := EncodeBlock(nil, values)
		decoded := make([]uint32, n)
		rest, err := DecodeBlock(data, decoded)
		require.NoError(t, err)
		assert.Empty(t, rest)
		assert.Equal(t, values, decoded)
	}
}

func TestEncodeBlock_Empty(t *testing.T) {
	assert.Empty(t, EncodeBlock(nil, nil))
	rest, err := DecodeBlock(nil, nil)
	assert.NoError(t, err)
	assert.Empty(t, rest)
}

func TestEncodeBlock_ConsumesExactly(t *testing.T) {
	values := make([]uint32, BlockSize)
	for i := range values {
		values[i] = uint32(i * 3)
	}
	data := EncodeBlock(nil, values)
	data = EncodeBlock(data, values)

	decoded := make([]uint32, BlockSize)
	rest, err := DecodeBlock(data, decoded)
	require.NoError(t, err)
	assert.Equal(t, values, decoded)

	rest, err = DecodeBlock(rest, decoded)
	require.NoError(t, err)
	assert.Empty(t, rest)
	assert.Equal(t, values, decoded)
}

func TestDecodeBlock_Truncated(t *testing.T) {
	values := make([]uint32, BlockSize)
	for i := range values {
		values[i] = uint32(i) * 1000
	}
	data := EncodeBlock(nil, values)
	decoded := make([]uint32, BlockSize)
	for i := 0; i < len(data); i++ {
		_, err := DecodeBlock(data[:i], decoded)
		assert.Error(t, err, "expected error for truncated input of %d bytes", i)
	}
}
