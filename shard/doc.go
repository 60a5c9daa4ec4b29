// Package shard is a reference facet shard: an in-memory segmented index
// with roaring postings, a small query language, and a facet processor that
// answers initial, refinement and augmentation requests.
//
// Query syntax:
//
//	*:*                  every live document
//	field:value          term, "quoted" values may contain spaces
//	field:[lo TO hi]     inclusive range; {lo TO hi} is exclusive; * is open
//	a AND b              conjunction
//
// Integer fields compare numerically, string fields lexicographically.
package shard
