package docset

import (
	"iter"
	"math"

	"github.com/hupe1980/facetgo/internal/bitset"
)

// NoMoreDocs is returned by SegmentIterator once it is exhausted.
const NoMoreDocs = math.MaxInt32

// Segment describes one storage segment of an index.
type Segment struct {
	// Ord is the position of the segment in its Leaves.
	Ord int
	// Base is the ordinal of the first document in the segment.
	Base int
	// MaxDoc is the number of documents in the segment.
	MaxDoc int
}

// End returns one past the last ordinal of the segment.
func (s Segment) End() int { return s.Base + s.MaxDoc }

// Contains reports whether the global ordinal doc falls into s.
func (s Segment) Contains(doc int) bool { return doc >= s.Base && doc < s.End() }

// Leaves is the ordered, contiguous list of segments of one index.
type Leaves []Segment

// MaxDoc returns the total number of documents covered by the leaves.
func (l Leaves) MaxDoc() int {
	if len(l) == 0 {
		return 0
	}
	return l[len(l)-1].End()
}

// Iterator yields document ordinals in ascending order.
// Iterators are single use; request a new one to rescan.
type Iterator interface {
	Next() (doc int, ok bool)
}

// SegmentIterator walks the documents of one segment using
// segment-relative ordinals.
type SegmentIterator interface {
	// DocID returns the current document, -1 before the first call to
	// NextDoc or Advance, NoMoreDocs when exhausted.
	DocID() int
	NextDoc() int
	// Advance moves to the first document >= target.
	Advance(target int) int
	// Cost estimates the number of documents the iterator will produce.
	Cost() int64
}

// DocSet is an immutable set of document ordinals.
type DocSet interface {
	// Size returns the cardinality.
	Size() int
	// Exists reports membership. Ordinals outside the representation are absent.
	Exists(doc int) bool
	Iterator() Iterator

	Intersection(other DocSet) DocSet
	IntersectionSize(other DocSet) int
	Intersects(other DocSet) bool
	Union(other DocSet) DocSet
	UnionSize(other DocSet) int
	AndNot(other DocSet) DocSet
	AndNotSize(other DocSet) int

	// SegmentIterator returns an iterator over the members of leaves[ord], or
	// nil when the segment holds no members. All calls on one instance must
	// pass the leaves of the same index.
	SegmentIterator(leaves Leaves, ord int) SegmentIterator

	rank() int
	// appendTo sets every member below dst.Len() in dst.
	appendTo(dst *bitset.FixedBitSet)
	// bound is one past the largest ordinal the representation can hold.
	bound() int
}

const (
	rankBits   = 1
	rankSparse = 2
)

// All returns the members of ds as an ascending sequence.
func All(ds DocSet) iter.Seq[int] {
	return func(yield func(int) bool) {
		it := ds.Iterator()
		for {
			doc, ok := it.Next()
			if !ok || !yield(doc) {
				return
			}
		}
	}
}

// Slice collects the members of ds.
func Slice(ds DocSet) []int {
	out := make([]int, 0, ds.Size())
	for doc := range All(ds) {
		out = append(out, doc)
	}
	return out
}

// Equal reports whether a and b have the same members.
func Equal(a, b DocSet) bool {
	if a.Size() != b.Size() {
		return false
	}
	return a.IntersectionSize(b) == a.Size()
}

// unionSize relies on |A ∪ B| = |A| + |B| - |A ∩ B|.
func unionSize(a, b DocSet) int {
	return a.Size() + b.Size() - a.IntersectionSize(b)
}
