// Package bitset provides a fixed-size, word-parallel bit vector on top of
// github.com/bits-and-blooms/bitset.
//
// Layout:
//   - One uint64 word per 64 bits, bit i lives in word i>>6 at position i&63
//   - Bits at or beyond Len are always zero
//   - Not safe for concurrent mutation; readers may share an unmodified set
//
// Used internally for:
//   - Dense document sets (docset.BitDocSet)
//   - Per-shard bucket flags and has-more tracking during merges
package bitset
