// Package facetgo computes distributed terms facets over sharded indexes.
//
// A Coordinator fans a facet request out to every shard, merges the partial
// bucket lists and, where the merged top buckets may be inaccurate, sends
// refinement requests back to the shards that did not report them. Passes
// repeat until no node needs more refinement.
//
// # Quick Start
//
//	b := shard.NewBuilder()
//	b.Add(shard.Doc{"cat": "book", "price": 12})
//	s := shard.New(b.Build(), shard.WithName("s0"))
//
//	coord, _ := facetgo.NewFromShards([]*shard.Shard{s})
//	req := facetgo.Root().
//	    Sub("cats", facetgo.Terms("cat").Limit(5).Refine(facet.RefineSimple)).
//	    MustBuild()
//	res, _ := coord.Facet(ctx, &facetgo.Query{Facet: req})
//
// # Refinement
//
// Each terms node chooses a refine method:
//
//	facet.RefineNone       first-pass counts are final
//	facet.RefineSimple     one refinement pass for the node
//	facet.RefineIterative  passes continue while the node's parent refines
//
// Shards answer refinement requests with exact counts for the requested
// buckets, so refined nodes report exact top buckets within the overrequest
// and overrefine windows.
//
// # Partial Results
//
// A shard that fails or times out is recorded in Result.ShardErrors and
// treated as holding more buckets everywhere; the result status becomes
// StatusPartial. Only when every shard fails in the first pass does Facet
// return ErrAllShardsFailed.
//
// # Transports
//
// Shards are reached through transport.Client. transport.Local calls a shard
// in process; transport.Wire encodes every request with a codec (JSON,
// go-json, optionally zstd or lz4 compressed) and can be throttled by a
// resource.Controller:
//
//	coord, _ := facetgo.NewFromShards(shards,
//	    facetgo.WithCodec(codec.Zstd(codec.GoJSON{})),
//	    facetgo.WithResourceController(resource.NewController(resource.Config{
//	        MaxConcurrentRequests: 4,
//	        IOLimitBytesPerSec:    64 << 20,
//	    })),
//	)
package facetgo
