package bitmapx

import (
	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/exp/constraints"
)

// Lazy ...
func Lazy(m *roaring.Bitmap) *roaring.Bitmap {
	if m != nil {
		return m
	}

	return roaring.New()
}

// Contains returns iff all the bits are set within the bitmap
func Contains(m *roaring.Bitmap, bits ...int) (b bool) {
	m = Lazy(m)
	b = true
	for _, i := range bits {
		b = b && m.ContainsInt(i)
	}
	return b
}

// AndNot returns the combination of the two bitmaps without modifying
func AndNot(l *roaring.Bitmap, rs ...*roaring.Bitmap) (dup *roaring.Bitmap) {
	dup = Lazy(l).Clone()
	for _, r := range rs {
		dup.AndNot(Lazy(r))
	}
	return dup
}

// Range returns a bitmap with every bit in [min, max] set.
func Range[T constraints.Integer](min, max T) *roaring.Bitmap {
	m := roaring.New()
	m.AddRange(uint64(min), uint64(max)+1)
	return m
}

// Ints returns the set bits in ascending order.
func Ints(m *roaring.Bitmap) (ret []int) {
	for i := Lazy(m).Iterator(); i.HasNext(); {
		ret = append(ret, int(i.Next()))
	}
	return ret
}
