package facetgo

import (
	"maps"

	"github.com/hupe1980/facetgo/facet"
)

// RequestBuilder is an immutable fluent builder for facet requests.
// Each method returns a new builder with the updated configuration.
type RequestBuilder struct {
	req  facet.Request
	subs map[string]RequestBuilder
	err  error
}

// Root creates a builder for the root of a facet tree.
//
// Example:
//
//	req, err := facetgo.Root().
//	    Stat("revenue", facet.StatSum, "price").
//	    Sub("cats", facetgo.Terms("cat").Limit(5).Refine(facet.RefineSimple)).
//	    Build()
func Root() RequestBuilder {
	return RequestBuilder{req: *facet.NewRoot()}
}

// Terms creates a builder for a terms facet over field.
// Defaults: count desc, limit 10, mincount 1, heuristic overrequest and overrefine.
func Terms(field string) RequestBuilder {
	return RequestBuilder{req: *facet.NewTerms(field)}
}

// Limit sets the number of buckets returned. -1 returns all buckets.
func (b RequestBuilder) Limit(n int) RequestBuilder {
	b.req.Limit = n
	return b
}

// Offset skips the first n buckets.
func (b RequestBuilder) Offset(n int) RequestBuilder {
	b.req.Offset = n
	return b
}

// Mincount drops buckets with fewer documents.
func (b RequestBuilder) Mincount(n int) RequestBuilder {
	b.req.Mincount = n
	return b
}

// Sort sets the final sort, e.g. "count desc", "index asc" or a stat name.
// A malformed sort is reported by Build.
func (b RequestBuilder) Sort(s string) RequestBuilder {
	sort, err := facet.ParseSort(s)
	if err != nil {
		if b.err == nil {
			b.err = err
		}
		return b
	}
	b.req.Sort = sort
	return b
}

// PrelimSort sets the sort used to pick shard candidates.
func (b RequestBuilder) PrelimSort(s string) RequestBuilder {
	sort, err := facet.ParseSort(s)
	if err != nil {
		if b.err == nil {
			b.err = err
		}
		return b
	}
	b.req.PrelimSort = &sort
	return b
}

// Overrequest sets the extra buckets asked from each shard. -1 uses the
// heuristic.
func (b RequestBuilder) Overrequest(n int) RequestBuilder {
	b.req.Overrequest = n
	return b
}

// Overrefine sets the extra merged buckets considered for refinement. -1
// uses the heuristic.
func (b RequestBuilder) Overrefine(n int) RequestBuilder {
	b.req.Overrefine = n
	return b
}

// Refine sets the refine method.
func (b RequestBuilder) Refine(m facet.RefineMethod) RequestBuilder {
	b.req.Refine = m
	return b
}

// ProcessEmpty computes sub-facets of buckets with an empty domain.
func (b RequestBuilder) ProcessEmpty(enabled bool) RequestBuilder {
	b.req.ProcessEmpty = enabled
	return b
}

// TopLevel defers the facet on shards until its ancestors finished
// refining. Not allowed directly below the root.
func (b RequestBuilder) TopLevel(enabled bool) RequestBuilder {
	b.req.TopLevel = enabled
	return b
}

// Stat adds a per-bucket aggregate.
func (b RequestBuilder) Stat(name, fn, field string) RequestBuilder {
	stats := make(map[string]facet.StatSpec, len(b.req.Stats)+1)
	maps.Copy(stats, b.req.Stats)
	stats[name] = facet.StatSpec{Func: fn, Field: field}
	b.req.Stats = stats
	return b
}

// Domain changes the documents the facet aggregates over.
func (b RequestBuilder) Domain(d *facet.Domain) RequestBuilder {
	b.req.Domain = d
	return b
}

// Sub adds a named sub-facet.
func (b RequestBuilder) Sub(name string, sub RequestBuilder) RequestBuilder {
	subs := make(map[string]RequestBuilder, len(b.subs)+1)
	maps.Copy(subs, b.subs)
	subs[name] = sub
	b.subs = subs
	return b
}

// Build assembles and validates the request tree.
func (b RequestBuilder) Build() (*facet.Request, error) {
	req, err := b.build()
	if err != nil {
		return nil, translateError(err)
	}
	if req.IsRoot() {
		if err := req.Validate(); err != nil {
			return nil, translateError(err)
		}
	}
	return req, nil
}

// MustBuild is like Build but panics on error.
func (b RequestBuilder) MustBuild() *facet.Request {
	req, err := b.Build()
	if err != nil {
		panic(err)
	}
	return req
}

func (b RequestBuilder) build() (*facet.Request, error) {
	if b.err != nil {
		return nil, b.err
	}
	req := b.req
	if len(b.subs) > 0 {
		req.Facets = make(map[string]*facet.Request, len(b.subs))
		for name, sub := range b.subs {
			r, err := sub.build()
			if err != nil {
				return nil, err
			}
			req.Facets[name] = r
		}
	}
	return &req, nil
}
