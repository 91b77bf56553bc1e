package bits

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetWithZeroBits(t *testing.T) {
	r := NewRbspBitReader([]byte{0x00, 0x01, 0x02, 0x03})
	v, err := r.Get(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), v)
}

func TestGetWithMoreThan32Bits(t *testing.T) {
	r := NewRbspBitReader([]byte{0x00, 0x01, 0x02, 0x03})
	_, err := r.Get(33)
	assert.ErrorIs(t, err, ErrInvalidWidth)
}

func TestGetWithCacheLoad(t *testing.T) {
	r := NewRbspBitReader([]byte{0xab, 0xcd, 0x12, 0x34})
	v, err := r.Get(16)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xabcd), v)

	v, err = r.Get(16)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x1234), v)
}

func TestGetWithPartialCacheFill(t *testing.T) {
	r := NewRbspBitReader([]byte{0x77, 0x88, 0x99})
	v, err := r.Get(16)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x7788), v)

	_, err = r.Get(32)
	assert.ErrorIs(t, err, ErrUnderflow)
	assert.True(t, r.Error())

	// Sticky: subsequent reads keep failing.
	_, err = r.Get(1)
	assert.ErrorIs(t, err, ErrUnderflow)
}

func TestGetWithEmulationPreventionBytes1(t *testing.T) {
	r := NewRbspBitReader([]byte{0x00, 0x00, 0x03, 0x00, 0x00, 0x03, 0x12, 0x34})
	v, err := r.Get(32)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x00000000), v)

	v, err = r.Get(16)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x1234), v)
}

func TestGetWithEmulationPreventionBytes2(t *testing.T) {
	r := NewRbspBitReader([]byte{0x00, 0x00, 0x03, 0x56})
	v, err := r.Get(16)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x0000), v)

	v, err = r.Get(8)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x56), v)
}

func TestGetWithEmulationPreventionBytes3(t *testing.T) {
	r := NewRbspBitReader([]byte{0x00, 0x00, 0x03, 0x78})
	v, err := r.Get(24)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x000078), v)
}

// The emulation sequence straddles the boundary between the first and
// second Get calls.
func TestGetWithEmulationPreventionBytes4(t *testing.T) {
	r := NewRbspBitReader([]byte{0x01, 0x01, 0x60, 0x00, 0x00, 0x03, 0xaa, 0xbb})
	v, err := r.Get(32)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x01016000), v)

	v, err = r.Get(16)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x00aa), v)

	v, err = r.Get(8)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xbb), v)
}

func TestExpGolomb(t *testing.T) {
	// 0b1 -> 0, 0b010 -> 1, 0b011 -> 2, 0b00100 -> 3
	r := NewRbspBitReader([]byte{0b1_010_011_0, 0b0100_0000})
	v, err := r.GetExpGolomb()
	require.NoError(t, err)
	assert.Equal(t, uint32(0), v)

	v, err = r.GetExpGolomb()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), v)

	v, err = r.GetExpGolomb()
	require.NoError(t, err)
	assert.Equal(t, uint32(2), v)

	v, err = r.GetExpGolomb()
	require.NoError(t, err)
	assert.Equal(t, uint32(3), v)
}
