// Package int256 implements the 256 bit keys of the kademlia metric space.
// Node identities are hashed into keys with sha256, distances are the XOR of
// two keys compared as big-endian unsigned integers.
package int256

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"math/bits"

	"github.com/james-lawrence/kad/internal/errorsx"
)

// Bits in a key.
const Bits = 256

// Size of a key in bytes.
const Size = Bits / 8

// ErrInvalidLength returned when decoding a key of the wrong size.
const ErrInvalidLength = errorsx.String("invalid key length")

type T struct {
	bits [Size]uint8
}

// New hashes the provided identity into the key space.
func New[Y string | []byte](b Y) (ret T) {
	ret.bits = sha256.Sum256([]byte(b))
	return ret
}

func Random() (id T) {
	n, err := rand.Read(id.bits[:])
	if err != nil {
		panic(err)
	}
	if n < len(id.bits) {
		panic(io.ErrShortWrite)
	}

	return id
}

func Zero() (id T) {
	return id
}

func Max() (id T) {
	for i := range id.bits {
		id.bits[i] = 0xFF
	}
	return id
}

// RandomInBucket generates a random key that shares exactly index leading
// bits with root, i.e. it lands in bucket index of a table rooted at root.
func RandomInBucket(root T, index int) (ret T) {
	ret = Random()
	for i := range index {
		ret.SetBit(i, root.GetBit(i))
	}

	if index < Bits {
		ret.SetBit(index, !root.GetBit(index))
	}

	return ret
}

// compare a and b using the target.
// returns -1 is a is closer to target.
// return 0 if they are equal distance.
// return 1 if b is closer to target.
func CmpTo(target T, a T, b T) int {
	return target.Distance(a).Cmp(target.Distance(b))
}

func (me T) String() string {
	return hex.EncodeToString(me.bits[:])
}

func (me T) AsByteArray() [Size]byte {
	return me.bits
}

func (me T) Bytes() []byte {
	return me.bits[:]
}

// BitLen is the minimum number of bits required to represent the key as an
// unsigned integer.
func (me T) BitLen() int {
	for i, b := range me.bits {
		if b != 0 {
			return (Size-i-1)*8 + bits.Len8(b)
		}
	}

	return 0
}

func (me *T) SetBit(index int, val bool) {
	var orVal uint8
	if val {
		orVal = 1 << (7 - index%8)
	}
	var mask uint8 = ^(1 << (7 - index%8))
	me.bits[index/8] = me.bits[index/8]&mask | orVal
}

func (me T) GetBit(index int) bool {
	return me.bits[index/8]>>(7-index%8)&1 == 1
}

func (l T) Cmp(r T) int {
	return bytes.Compare(l.bits[:], r.bits[:])
}

func (l T) Equal(r T) bool {
	return l.bits == r.bits
}

func (me T) IsZero() bool {
	return me.bits == [Size]byte{}
}

func (me *T) Xor(a, b *T) *T {
	for i := range me.bits {
		me.bits[i] = a.bits[i] ^ b.bits[i]
	}

	return me
}

// Distance is the XOR of the two keys. Symmetric and zero iff a == b.
func (a T) Distance(b T) (ret T) {
	ret.Xor(&a, &b)
	return
}

func FromBytes(b []byte) (ret T, err error) {
	if len(b) != Size {
		return ret, errorsx.Wrapf(ErrInvalidLength, "expected %d bytes, received %d", Size, len(b))
	}

	copy(ret.bits[:], b)
	return ret, nil
}

func FromByteArray(b [Size]byte) (ret T) {
	ret.bits = b
	return ret
}

// FromPrefix left aligns the provided bytes, remaining bits are zero.
func FromPrefix(b ...byte) (ret T) {
	copy(ret.bits[:], b)
	return ret
}

func FromHexEncodedString(s string) (ret T, err error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return ret, err
	}
	return FromBytes(b)
}
