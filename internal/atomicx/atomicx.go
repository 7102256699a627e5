// Package atomicx builds sync/atomic values already holding their initial
// value, convenient inside struct literals.
package atomicx

import (
	"sync/atomic"

	"golang.org/x/exp/constraints"
)

// Pointer stores a copy of v.
func Pointer[T any](v T) *atomic.Pointer[T] {
	p := &atomic.Pointer[T]{}
	p.Store(&v)
	return p
}

// Uint32 accepts the enumerations backed by integers, such as state machines.
func Uint32[T constraints.Integer](n T) *atomic.Uint32 {
	u := &atomic.Uint32{}
	u.Store(uint32(n))
	return u
}

func Bool(b bool) *atomic.Bool {
	v := &atomic.Bool{}
	v.Store(b)
	return v
}
