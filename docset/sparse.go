package docset

import (
	"math"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/facetgo/internal/bitset"
)

// SparseDocSet is a DocSet backed by a roaring bitmap.
type SparseDocSet struct {
	bm     *roaring.Bitmap
	maxDoc int
}

// NewSparse builds a SparseDocSet bounded by maxDoc.
// Ordinals outside [0, maxDoc) are ignored.
func NewSparse(maxDoc int, docs ...int) *SparseDocSet {
	bm := roaring.New()
	for _, d := range docs {
		if d >= 0 && d < maxDoc {
			bm.Add(uint32(d))
		}
	}
	return &SparseDocSet{bm: bm, maxDoc: maxDoc}
}

// FromRoaring picks a representation for bm: sparse when it holds fewer than
// maxDoc/64+5 members, a bit vector otherwise. Members at or above maxDoc
// are dropped. bm must not be mutated after the call.
func FromRoaring(bm *roaring.Bitmap, maxDoc int) DocSet {
	if maxDoc < 0 {
		maxDoc = 0
	}
	if last, ok := maximum(bm); ok && int(last) >= maxDoc {
		bm = bm.Clone()
		bm.RemoveRange(uint64(maxDoc), math.MaxUint32+1)
	}
	card := int(bm.GetCardinality())
	if card < (maxDoc>>6)+5 {
		return &SparseDocSet{bm: bm, maxDoc: maxDoc}
	}
	bits := bitset.New(maxDoc)
	it := bm.Iterator()
	for it.HasNext() {
		d := int(it.Next())
		if d >= maxDoc {
			break
		}
		bits.Set(d)
	}
	return NewBitDocSet(bits)
}

func maximum(bm *roaring.Bitmap) (uint32, bool) {
	if bm.IsEmpty() {
		return 0, false
	}
	return bm.Maximum(), true
}

// Empty returns an empty set bounded by maxDoc.
func Empty(maxDoc int) DocSet {
	return &SparseDocSet{bm: roaring.New(), maxDoc: maxDoc}
}

// Bitmap exposes the backing bitmap. Callers must not mutate it.
func (s *SparseDocSet) Bitmap() *roaring.Bitmap { return s.bm }

func (s *SparseDocSet) rank() int  { return rankSparse }
func (s *SparseDocSet) bound() int { return s.maxDoc }

func (s *SparseDocSet) Size() int { return int(s.bm.GetCardinality()) }

func (s *SparseDocSet) Exists(doc int) bool {
	if doc < 0 || doc >= s.maxDoc {
		return false
	}
	return s.bm.Contains(uint32(doc))
}

func (s *SparseDocSet) Iterator() Iterator {
	return &sparseIterator{it: s.bm.Iterator()}
}

func (s *SparseDocSet) appendTo(dst *bitset.FixedBitSet) {
	limit := dst.Len()
	it := s.bm.Iterator()
	for it.HasNext() {
		d := int(it.Next())
		if d >= limit {
			return
		}
		dst.Set(d)
	}
}

func (s *SparseDocSet) filter(keep func(doc int) bool) *SparseDocSet {
	out := roaring.New()
	it := s.bm.Iterator()
	for it.HasNext() {
		d := it.Next()
		if keep(int(d)) {
			out.Add(d)
		}
	}
	return &SparseDocSet{bm: out, maxDoc: s.maxDoc}
}

func (s *SparseDocSet) Intersection(other DocSet) DocSet {
	if o, ok := other.(*SparseDocSet); ok {
		return &SparseDocSet{bm: roaring.And(s.bm, o.bm), maxDoc: max(s.maxDoc, o.maxDoc)}
	}
	return s.filter(other.Exists)
}

func (s *SparseDocSet) IntersectionSize(other DocSet) int {
	if o, ok := other.(*SparseDocSet); ok {
		return int(s.bm.AndCardinality(o.bm))
	}
	n := 0
	it := s.bm.Iterator()
	for it.HasNext() {
		if other.Exists(int(it.Next())) {
			n++
		}
	}
	return n
}

func (s *SparseDocSet) Intersects(other DocSet) bool {
	if o, ok := other.(*SparseDocSet); ok {
		return s.bm.Intersects(o.bm)
	}
	it := s.bm.Iterator()
	for it.HasNext() {
		if other.Exists(int(it.Next())) {
			return true
		}
	}
	return false
}

// Union with a bit vector yields a bit vector over the larger bound.
func (s *SparseDocSet) Union(other DocSet) DocSet {
	if o, ok := other.(*SparseDocSet); ok {
		return &SparseDocSet{bm: roaring.Or(s.bm, o.bm), maxDoc: max(s.maxDoc, o.maxDoc)}
	}
	bits := bitset.New(max(s.maxDoc, other.bound()))
	other.appendTo(bits)
	s.appendTo(bits)
	return NewBitDocSet(bits)
}

func (s *SparseDocSet) UnionSize(other DocSet) int {
	if o, ok := other.(*SparseDocSet); ok {
		return int(s.bm.OrCardinality(o.bm))
	}
	return unionSize(s, other)
}

func (s *SparseDocSet) AndNot(other DocSet) DocSet {
	if o, ok := other.(*SparseDocSet); ok {
		return &SparseDocSet{bm: roaring.AndNot(s.bm, o.bm), maxDoc: s.maxDoc}
	}
	return s.filter(func(doc int) bool { return !other.Exists(doc) })
}

func (s *SparseDocSet) AndNotSize(other DocSet) int {
	return s.Size() - s.IntersectionSize(other)
}

func (s *SparseDocSet) SegmentIterator(leaves Leaves, ord int) SegmentIterator {
	if ord < 0 || ord >= len(leaves) {
		return nil
	}
	seg := leaves[ord]
	if seg.MaxDoc < 1 || s.bm.IsEmpty() {
		return nil
	}
	cost := s.countRange(seg.Base, seg.End())
	if cost == 0 {
		return nil
	}
	it := s.bm.Iterator()
	it.AdvanceIfNeeded(uint32(seg.Base))
	return &sparseSegmentIterator{it: it, base: seg.Base, end: seg.End(), doc: -1, cost: cost}
}

// countRange returns the number of members in [from, to).
func (s *SparseDocSet) countRange(from, to int) int64 {
	upper := s.bm.Rank(uint32(to - 1))
	var lower uint64
	if from > 0 {
		lower = s.bm.Rank(uint32(from - 1))
	}
	return int64(upper - lower)
}

type sparseIterator struct {
	it roaring.IntPeekable
}

func (it *sparseIterator) Next() (int, bool) {
	if !it.it.HasNext() {
		return 0, false
	}
	return int(it.it.Next()), true
}

type sparseSegmentIterator struct {
	it   roaring.IntPeekable
	base int
	end  int
	doc  int
	cost int64
}

func (it *sparseSegmentIterator) DocID() int { return it.doc }

func (it *sparseSegmentIterator) NextDoc() int {
	if it.doc == NoMoreDocs || !it.it.HasNext() {
		it.doc = NoMoreDocs
		return it.doc
	}
	d := int(it.it.Next())
	if d >= it.end {
		it.doc = NoMoreDocs
		return it.doc
	}
	it.doc = d - it.base
	return it.doc
}

func (it *sparseSegmentIterator) Advance(target int) int {
	if target == NoMoreDocs || target+it.base >= it.end {
		it.doc = NoMoreDocs
		return it.doc
	}
	it.it.AdvanceIfNeeded(uint32(target + it.base))
	return it.NextDoc()
}

func (it *sparseSegmentIterator) Cost() int64 { return it.cost }
