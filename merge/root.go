package merge

import "github.com/hupe1980/facetgo/facet"

// RootMerger merges the root bucket of a facet tree. Shards compute the root
// count and stats on every pass; only the first response of each shard is
// counted.
type RootMerger struct {
	req    *facet.Request
	bucket *Bucket
}

// NewRootMerger creates the merger of the root request req.
func NewRootMerger(req *facet.Request) *RootMerger {
	return &RootMerger{req: req}
}

// Merge ingests the root bucket returned by ctx.ShardNum.
func (r *RootMerger) Merge(res *facet.BucketResult, ctx *Context) {
	if r.bucket == nil {
		r.bucket = newBucket(nil, r.req, ctx)
	}
	skip := res.Skip || ctx.ShardFlag(r.bucket.number)
	r.bucket.merge(res, ctx, skip)
}

// Refinement returns the per sub-facet refinement of ctx.ShardNum for the
// current pass, or nil when the shard has nothing to refine.
func (r *RootMerger) Refinement(ctx *Context) map[string]*facet.Refinement {
	if r.bucket == nil {
		return nil
	}

	missing := !ctx.ShardFlag(r.bucket.number)
	prev := ctx.setBucketWasMissing(missing)
	defer ctx.setBucketWasMissing(prev)

	tags := ctx.subsWithRefinement(r.req)
	if missing {
		tags = ctx.subsWithPartial(r.req)
	}
	return r.bucket.refinement(ctx, tags)
}

// Sub returns the merger of the named top facet or nil.
func (r *RootMerger) Sub(name string) *FieldMerger {
	if r.bucket == nil {
		return nil
	}
	return r.bucket.Sub(name)
}

// Result returns the merged facet tree.
func (r *RootMerger) Result(ctx *Context) *facet.BucketResult {
	if r.bucket == nil {
		return &facet.BucketResult{}
	}
	return r.bucket.result(ctx)
}
