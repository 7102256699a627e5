package int256

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistance(t *testing.T) {
	t.Run("zero iff equal", func(t *testing.T) {
		a := New("node-a")
		require.True(t, a.Distance(a).IsZero())
		require.False(t, a.Distance(New("node-b")).IsZero())
	})

	t.Run("symmetric", func(t *testing.T) {
		a, b := Random(), Random()
		require.Equal(t, a.Distance(b), b.Distance(a))
	})

	t.Run("big endian comparison", func(t *testing.T) {
		target := Zero()
		require.Equal(t, -1, CmpTo(target, FromPrefix(0x00, 0xFF), FromPrefix(0x01)))
		require.Equal(t, 1, CmpTo(target, FromPrefix(0x80), FromPrefix(0x7F, 0xFF)))
		require.Equal(t, 0, CmpTo(target, FromPrefix(0x10), FromPrefix(0x10)))
	})
}

func TestNew(t *testing.T) {
	require.Equal(t, New("derp"), New([]byte("derp")))
	require.NotEqual(t, New("derp"), New("derp2"))
}

func TestBitLen(t *testing.T) {
	assert.Equal(t, 0, Zero().BitLen())
	assert.Equal(t, Bits, Max().BitLen())
	assert.Equal(t, Bits-7, FromPrefix(0x01).BitLen())
	assert.Equal(t, 1, FromByteArray([Size]byte{Size - 1: 0x01}).BitLen())
}

func TestBits(t *testing.T) {
	var id T
	id.SetBit(0, true)
	id.SetBit(9, true)
	require.True(t, id.GetBit(0))
	require.False(t, id.GetBit(1))
	require.True(t, id.GetBit(9))
	require.Equal(t, FromPrefix(0x80, 0x40), id)
	id.SetBit(0, false)
	require.Equal(t, FromPrefix(0x00, 0x40), id)
}

func TestRandomInBucket(t *testing.T) {
	root := Random()
	for i := range Bits {
		id := RandomInBucket(root, i)
		require.Equal(t, Bits-i, root.Distance(id).BitLen(), "bucket %d", i)
	}
}

func TestFromBytes(t *testing.T) {
	_, err := FromBytes([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrInvalidLength)

	id := Random()
	decoded, err := FromHexEncodedString(id.String())
	require.NoError(t, err)
	require.Equal(t, id, decoded)
}
