package docset

import (
	"sync"
	"sync/atomic"

	"github.com/hupe1980/facetgo/internal/bitset"
)

const noDocsThisSegment = -1

// BitDocSet is a DocSet backed by a fixed-size bit vector.
type BitDocSet struct {
	bits *bitset.FixedBitSet
	size atomic.Int64 // -1 until computed

	floorOnce sync.Once
	floorDocs []int
}

// NewBitDocSet wraps bits. The set takes ownership of bits.
func NewBitDocSet(bits *bitset.FixedBitSet) *BitDocSet {
	return NewBitDocSetWithSize(bits, -1)
}

// NewBitDocSetWithSize wraps bits with a known cardinality; pass -1 if unknown.
func NewBitDocSetWithSize(bits *bitset.FixedBitSet, size int) *BitDocSet {
	b := &BitDocSet{bits: bits}
	b.size.Store(int64(size))
	return b
}

// FromDocs builds a BitDocSet holding docs with room for maxDoc ordinals.
// Ordinals outside [0, maxDoc) are ignored.
func FromDocs(maxDoc int, docs ...int) *BitDocSet {
	bits := bitset.New(maxDoc)
	for _, d := range docs {
		if d >= 0 && d < maxDoc {
			bits.Set(d)
		}
	}
	return NewBitDocSet(bits)
}

// ToBitDocSet converts ds to a BitDocSet able to hold maxDoc ordinals.
func ToBitDocSet(ds DocSet, maxDoc int) *BitDocSet {
	if b, ok := ds.(*BitDocSet); ok && b.bits.Len() >= maxDoc {
		return b
	}
	bits := bitset.New(max(maxDoc, ds.bound()))
	ds.appendTo(bits)
	return NewBitDocSetWithSize(bits, ds.Size())
}

// Bits exposes the backing bit vector. Callers must not mutate it.
func (b *BitDocSet) Bits() *bitset.FixedBitSet { return b.bits }

func (b *BitDocSet) rank() int  { return rankBits }
func (b *BitDocSet) bound() int { return b.bits.Len() }

// Size returns the cardinality, computing and caching it on first use.
func (b *BitDocSet) Size() int {
	if s := b.size.Load(); s >= 0 {
		return int(s)
	}
	s := b.bits.Cardinality()
	b.size.Store(int64(s))
	return s
}

func (b *BitDocSet) Exists(doc int) bool { return b.bits.Test(doc) }

func (b *BitDocSet) Iterator() Iterator {
	return &bitIterator{bits: b.bits, next: 0}
}

func (b *BitDocSet) appendTo(dst *bitset.FixedBitSet) {
	if dst.Len() >= b.bits.Len() {
		dst.Or(b.bits)
		return
	}
	for i := b.bits.NextSetBit(0); i >= 0 && i < dst.Len(); i = b.bits.NextSetBit(i + 1) {
		dst.Set(i)
	}
}

func (b *BitDocSet) Intersection(other DocSet) DocSet {
	if other.rank() > b.rank() {
		return other.Intersection(b)
	}
	o := other.(*BitDocSet)
	var out *bitset.FixedBitSet
	if b.bits.Len() >= o.bits.Len() {
		out = b.bits.Clone()
		out.And(o.bits)
	} else {
		out = o.bits.Clone()
		out.And(b.bits)
	}
	return NewBitDocSet(out)
}

func (b *BitDocSet) IntersectionSize(other DocSet) int {
	if other.rank() > b.rank() {
		return other.IntersectionSize(b)
	}
	return bitset.IntersectionCount(b.bits, other.(*BitDocSet).bits)
}

func (b *BitDocSet) Intersects(other DocSet) bool {
	if other.rank() > b.rank() {
		return other.Intersects(b)
	}
	return b.bits.Intersects(other.(*BitDocSet).bits)
}

func (b *BitDocSet) Union(other DocSet) DocSet {
	if other.rank() > b.rank() {
		return other.Union(b)
	}
	o := other.(*BitDocSet)
	out := b.bits.Clone()
	out = bitset.EnsureCapacity(out, o.bits.Len())
	out.Or(o.bits)
	return NewBitDocSet(out)
}

func (b *BitDocSet) UnionSize(other DocSet) int {
	if other.rank() > b.rank() {
		return other.UnionSize(b)
	}
	return bitset.UnionCount(b.bits, other.(*BitDocSet).bits)
}

// AndNot is asymmetric and always computed by the receiver.
func (b *BitDocSet) AndNot(other DocSet) DocSet {
	out := b.bits.Clone()
	if o, ok := other.(*BitDocSet); ok {
		out.AndNot(o.bits)
		return NewBitDocSet(out)
	}
	for doc := range All(other) {
		out.Clear(doc)
	}
	return NewBitDocSet(out)
}

func (b *BitDocSet) AndNotSize(other DocSet) int {
	if o, ok := other.(*BitDocSet); ok {
		return bitset.AndNotCount(b.bits, o.bits)
	}
	return b.Size() - b.IntersectionSize(other)
}

// floorDoc returns the first member at or after the base of leaves[ord], or
// noDocsThisSegment. The table for all leaves is computed once.
func (b *BitDocSet) floorDoc(leaves Leaves, ord int) int {
	b.floorOnce.Do(func() {
		setMax := b.bits.Len()
		floor := make([]int, len(leaves))
		next := -1
		for i, seg := range leaves {
			base, end := seg.Base, seg.End()
			switch {
			case next >= end:
				floor[i] = noDocsThisSegment
			case next >= base:
				floor[i] = next
			default:
				if setMax <= base {
					floor[i] = noDocsThisSegment
					continue
				}
				next = b.bits.NextSetBit(base)
				if next < 0 {
					next = NoMoreDocs
				}
				if next >= end {
					floor[i] = noDocsThisSegment
				} else {
					floor[i] = next
				}
			}
		}
		b.floorDocs = floor
	})
	if ord < 0 || ord >= len(b.floorDocs) {
		return noDocsThisSegment
	}
	return b.floorDocs[ord]
}

func (b *BitDocSet) SegmentIterator(leaves Leaves, ord int) SegmentIterator {
	if ord < 0 || ord >= len(leaves) {
		return nil
	}
	seg := leaves[ord]
	if seg.MaxDoc < 1 {
		return nil
	}
	first := b.floorDoc(leaves, ord)
	if first == noDocsThisSegment {
		return nil
	}
	return &bitSegmentIterator{
		set:  b,
		base: seg.Base,
		end:  seg.End(),
		pos:  first - 1,
		doc:  -1,
	}
}

type bitIterator struct {
	bits *bitset.FixedBitSet
	next int
}

func (it *bitIterator) Next() (int, bool) {
	if it.next < 0 {
		return 0, false
	}
	doc := it.bits.NextSetBit(it.next)
	if doc < 0 {
		it.next = -1
		return 0, false
	}
	it.next = doc + 1
	return doc, true
}

type bitSegmentIterator struct {
	set  *BitDocSet
	base int
	end  int
	pos  int
	doc  int
}

func (it *bitSegmentIterator) DocID() int { return it.doc }

func (it *bitSegmentIterator) NextDoc() int {
	next := it.pos + 1
	if next >= it.end {
		it.doc = NoMoreDocs
		return it.doc
	}
	return it.seek(next)
}

func (it *bitSegmentIterator) Advance(target int) int {
	if target == NoMoreDocs || target+it.base >= it.end {
		it.doc = NoMoreDocs
		return it.doc
	}
	return it.seek(target + it.base)
}

func (it *bitSegmentIterator) seek(from int) int {
	it.pos = it.set.bits.NextSetBit(from)
	if it.pos < 0 || it.pos >= it.end {
		it.pos = it.end
		it.doc = NoMoreDocs
		return it.doc
	}
	it.doc = it.pos - it.base
	return it.doc
}

// Cost pro-rates a known cardinality to the segment, else returns the
// segment length.
func (it *bitSegmentIterator) Cost() int64 {
	maxDoc := it.end - it.base
	size := it.set.size.Load()
	if size < 0 {
		return int64(maxDoc)
	}
	bitsLen := it.set.bits.Len()
	if bitsLen == 0 {
		return 0
	}
	return int64(float64(size) * (float64(bitset.Bits2Words(maxDoc)<<6) / float64(bitsLen)))
}
