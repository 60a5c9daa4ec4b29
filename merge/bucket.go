package merge

import (
	"github.com/hupe1980/facetgo/facet"
)

// Bucket is the merged state of one bucket value of a facet node.
type Bucket struct {
	Value any
	Count int64

	number int
	req    *facet.Request
	stats  map[string]StatMerger
	subs   map[string]*FieldMerger
}

func newBucket(value any, req *facet.Request, ctx *Context) *Bucket {
	return &Bucket{
		Value:  value,
		number: ctx.newBucketNumber(),
		req:    req,
	}
}

// Merge adds one shard's bucket. Counts and stats of skip buckets are not
// added; their sub-facets always are.
func (b *Bucket) Merge(res *facet.BucketResult, ctx *Context) {
	b.merge(res, ctx, res.Skip)
}

func (b *Bucket) merge(res *facet.BucketResult, ctx *Context, skip bool) {
	ctx.setShardFlag(b.number)

	if !skip {
		b.Count += res.Count
		for name, v := range res.Stats {
			spec, ok := b.req.Stats[name]
			if !ok {
				continue
			}
			if b.stats == nil {
				b.stats = make(map[string]StatMerger, len(b.req.Stats))
			}
			m, ok := b.stats[name]
			if !ok {
				m = newStatMerger(spec)
				b.stats[name] = m
			}
			m.Merge(v)
		}
	}

	for name, sub := range res.Subs {
		sreq, ok := b.req.Facets[name]
		if !ok || sub == nil {
			continue
		}
		if b.subs == nil {
			b.subs = make(map[string]*FieldMerger, len(b.req.Facets))
		}
		m, ok := b.subs[name]
		if !ok {
			m = NewFieldMerger(sreq)
			b.subs[name] = m
		}
		m.Merge(sub, ctx)
	}
}

// Stat returns the merger of stat name or nil.
func (b *Bucket) Stat(name string) StatMerger {
	return b.stats[name]
}

// Sub returns the merger of sub-facet name or nil.
func (b *Bucket) Sub(name string) *FieldMerger {
	return b.subs[name]
}

// refinement collects the refinement of the named sub-facets, or nil if none
// of them needs any.
func (b *Bucket) refinement(ctx *Context, names []string) map[string]*facet.Refinement {
	var out map[string]*facet.Refinement
	for _, name := range names {
		m := b.subs[name]
		if m == nil {
			continue
		}
		if r := m.Refinement(ctx); r != nil {
			if out == nil {
				out = make(map[string]*facet.Refinement, len(names))
			}
			out[name] = r
		}
	}
	return out
}

func (b *Bucket) result(ctx *Context) *facet.BucketResult {
	out := &facet.BucketResult{Value: b.Value, Count: b.Count}
	for name, m := range b.stats {
		if v, ok := m.Value(); ok {
			if out.Stats == nil {
				out.Stats = make(map[string]float64, len(b.stats))
			}
			out.Stats[name] = v
		}
	}
	for _, name := range b.req.SubNames() {
		m := b.subs[name]
		if m == nil {
			continue
		}
		if out.Subs == nil {
			out.Subs = make(map[string]*facet.FacetResult, len(b.subs))
		}
		out.Subs[name] = m.Result(ctx)
	}
	return out
}
