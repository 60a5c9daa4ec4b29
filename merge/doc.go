// Package merge combines per-shard facet results into one answer and
// decides which additional data every shard must contribute for that answer
// to be exact.
//
// A merge runs in passes. In every pass the caller merges each shard's
// response exactly once, then asks the RootMerger for the refinement of each
// shard, sends it, and merges the responses in the next pass. The engine does
// not de-duplicate: merging one shard's response twice in a pass counts it
// twice.
//
// Each FieldMerger moves through pivot states:
//
//	PRE         an ancestor or the node itself still refines; no pruning
//	INIT_PIVOT  the node may prune in this pass
//	PIVOT       pruned; deferred top-level children are bulk-collected
//	REFINE      steady state
package merge
