package bitmapx_test

import (
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/require"

	"github.com/james-lawrence/kad/internal/bitmapx"
)

func TestRange(t *testing.T) {
	require.Equal(t, []int{2, 3, 4}, bitmapx.Ints(bitmapx.Range(2, 4)))
	require.True(t, bitmapx.Contains(bitmapx.Range(0, 10), 0, 5, 10))
	require.False(t, bitmapx.Contains(bitmapx.Range(0, 10), 11))
}

func TestAndNot(t *testing.T) {
	touched := roaring.BitmapOf(1, 3)
	all := bitmapx.Range(0, 4)
	require.Equal(t, []int{0, 2, 4}, bitmapx.Ints(bitmapx.AndNot(all, touched)))
	require.Equal(t, []int{0, 1, 2, 3, 4}, bitmapx.Ints(all), "source bitmap must not be modified")
	require.Equal(t, []int{0, 1, 2, 3, 4}, bitmapx.Ints(bitmapx.AndNot(all, nil)))
	require.Nil(t, bitmapx.Ints(nil))
}
