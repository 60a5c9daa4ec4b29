// Package facet defines the facet request descriptors, the shard result
// shape and the refinement messages exchanged between the coordinator and
// the shards.
//
// Refinement messages use compact tags:
//
//	_l  leaf-missing bucket values (existence only)
//	_p  partial-missing [value, sub-refinement] pairs
//	_s  present buckets that need child recursion [value, sub-refinement]
//	_a  leaf values to bulk-collect for a deferred top-level facet
//	_q  [value, sub-refinement] pairs to bulk-collect with partial child data
//
// A bulk-collect marker is the refinement {"_a": []}.
package facet
