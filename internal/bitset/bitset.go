package bitset

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

// FixedBitSet is a bit vector of fixed length.
type FixedBitSet struct {
	set    *bitset.BitSet
	length int
}

// Bits2Words returns the number of words needed to hold n bits.
func Bits2Words(n int) int {
	if n <= 0 {
		return 0
	}
	return ((n - 1) >> 6) + 1
}

// New creates a FixedBitSet that can hold bits [0, length).
func New(length int) *FixedBitSet {
	if length < 0 {
		length = 0
	}
	return &FixedBitSet{set: bitset.New(uint(length)), length: length}
}

// EnsureCapacity returns b if it can hold numBits bits, otherwise a grown copy.
func EnsureCapacity(b *FixedBitSet, numBits int) *FixedBitSet {
	if b == nil {
		return New(numBits)
	}
	if numBits <= b.length {
		return b
	}
	grown := New(numBits)
	grown.set.InPlaceUnion(b.set)
	return grown
}

// Len returns the number of addressable bits.
func (b *FixedBitSet) Len() int { return b.length }

// Set sets bit i. Panics if i is out of range.
func (b *FixedBitSet) Set(i int) {
	if i < 0 || i >= b.length {
		panic(fmt.Sprintf("bitset: index %d out of range [0, %d)", i, b.length))
	}
	b.set.Set(uint(i))
}

// Clear clears bit i. Out of range indices are ignored.
func (b *FixedBitSet) Clear(i int) {
	if i < 0 || i >= b.length {
		return
	}
	b.set.Clear(uint(i))
}

// Test reports whether bit i is set. Any index outside [0, Len) is unset.
func (b *FixedBitSet) Test(i int) bool {
	if i < 0 || i >= b.length {
		return false
	}
	return b.set.Test(uint(i))
}

// NextSetBit returns the index of the first set bit at or after i, or -1.
func (b *FixedBitSet) NextSetBit(i int) int {
	if i < 0 {
		i = 0
	}
	if i >= b.length {
		return -1
	}
	j, ok := b.set.NextSet(uint(i))
	if !ok || int(j) >= b.length {
		return -1
	}
	return int(j)
}

// PrevSetBit returns the index of the last set bit at or before i, or -1.
func (b *FixedBitSet) PrevSetBit(i int) int {
	if i < 0 || b.length == 0 {
		return -1
	}
	i = min(i, b.length-1)
	j, ok := b.set.PreviousSet(uint(i))
	if !ok {
		return -1
	}
	return int(j)
}

// Cardinality returns the number of set bits.
func (b *FixedBitSet) Cardinality() int { return int(b.set.Count()) }

// Clone returns a deep copy.
func (b *FixedBitSet) Clone() *FixedBitSet {
	return &FixedBitSet{set: b.set.Clone(), length: b.length}
}

// And keeps only bits also set in other. Len is unchanged.
func (b *FixedBitSet) And(other *FixedBitSet) {
	b.set.InPlaceIntersection(other.set)
}

// Or sets every bit set in other. other must not be longer than b.
func (b *FixedBitSet) Or(other *FixedBitSet) {
	if other.length > b.length {
		panic(fmt.Sprintf("bitset: union of %d bits into %d", other.length, b.length))
	}
	b.set.InPlaceUnion(other.set)
}

// AndNot clears every bit set in other.
func (b *FixedBitSet) AndNot(other *FixedBitSet) {
	b.set.InPlaceDifference(other.set)
}

// Intersects reports whether b and other share a set bit.
func (b *FixedBitSet) Intersects(other *FixedBitSet) bool {
	return IntersectionCount(b, other) > 0
}

// IntersectionCount returns |a ∩ b| without allocating.
func IntersectionCount(a, b *FixedBitSet) int {
	return int(a.set.IntersectionCardinality(b.set))
}

// UnionCount returns |a ∪ b| without allocating.
func UnionCount(a, b *FixedBitSet) int {
	return int(a.set.UnionCardinality(b.set))
}

// AndNotCount returns |a \ b| without allocating.
func AndNotCount(a, b *FixedBitSet) int {
	return int(a.set.DifferenceCardinality(b.set))
}
