// Package docset implements immutable sets of document ordinals.
//
// Two representations share the DocSet interface:
//
//   - BitDocSet: a fixed-size bit vector with word-parallel set algebra.
//   - SparseDocSet: a roaring bitmap for small or clustered sets.
//
// Operations between differently represented sets are resolved by capability
// rank: the higher ranked operand performs the symmetric operations. Callers
// must not assume which representation a result has.
//
// A DocSet can also be iterated one storage segment at a time via
// SegmentIterator. BitDocSet memoizes the first document of every segment on
// the first per-segment request.
package docset
