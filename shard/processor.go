package shard

import (
	"cmp"
	"context"
	"fmt"

	"github.com/hupe1980/facetgo/collect"
	"github.com/hupe1980/facetgo/docset"
	"github.com/hupe1980/facetgo/domain"
	"github.com/hupe1980/facetgo/facet"
	"github.com/hupe1980/facetgo/internal/queue"
)

// Process evaluates one facet request. The initial request (no Refine)
// returns the top buckets of every facet; a refinement request returns only
// the buckets named in Refine. The root count and stats are computed on
// every pass.
func (s *Shard) Process(ctx context.Context, req *facet.ShardRequest) (*facet.BucketResult, error) {
	if req == nil || req.Facet == nil {
		return nil, facet.NewRequestError("missing facet request", nil)
	}
	if err := req.Facet.Validate(); err != nil {
		return nil, err
	}

	top, err := s.topLevel(req)
	if err != nil {
		return nil, err
	}
	qs := make([]domain.Query, 0, len(top.Filters)+1)
	qs = append(qs, top.Query.Query)
	for _, f := range top.Filters {
		qs = append(qs, f.Query)
	}
	base, err := s.Resolve(ctx, qs...)
	if err != nil {
		return nil, err
	}

	p := &processor{
		shard:    s,
		ctx:      ctx,
		resolver: domain.NewResolver(s, top, s.logger),
	}
	docs, err := p.resolver.Resolve(ctx, &domain.Context{Base: base}, req.Facet)
	if err != nil {
		return nil, err
	}

	out := &facet.BucketResult{}
	if err := p.fillBucket(out, req.Facet, &domain.Context{Base: docs}, docs, false, req.Refine, req.IsRefinement()); err != nil {
		return nil, err
	}
	s.logger.DebugContext(ctx, "processed facet request",
		"pass", req.Pass, "refinement", req.IsRefinement(), "count", out.Count)
	return out, nil
}

func (s *Shard) topLevel(req *facet.ShardRequest) (*domain.TopLevel, error) {
	raw := req.Query
	if raw == "" {
		raw = MatchAll
	}
	q, err := s.Parse(raw)
	if err != nil {
		return nil, facet.WrapRequestError("bad main query", raw, err)
	}
	top := &domain.TopLevel{
		Query:  domain.TaggedQuery{Query: q, Tags: req.QueryTags},
		Params: req.Params,
	}
	for _, f := range req.Filters {
		fq, err := s.Parse(f.Query)
		if err != nil {
			return nil, facet.WrapRequestError("bad filter query", f.Query, err)
		}
		top.Filters = append(top.Filters, domain.TaggedQuery{Query: fq, Tags: f.Tags})
	}
	return top, nil
}

// processor holds the state of one Process call.
type processor struct {
	shard    *Shard
	ctx      context.Context
	resolver *domain.Resolver
}

// fillBucket computes count and stats of docs into b, unless skip, and the
// sub-facets. With onlyWithInfo only sub-facets named in refine are
// evaluated.
func (p *processor) fillBucket(b *facet.BucketResult, req *facet.Request, fc *domain.Context, docs docset.DocSet, skip bool, refine map[string]*facet.Refinement, onlyWithInfo bool) error {
	if err := p.ctx.Err(); err != nil {
		return err
	}
	if skip {
		b.Skip = true
	} else if err := p.collectStats(b, req, docs); err != nil {
		return err
	}

	empty := docs.Size() == 0
	for _, name := range req.SubNames() {
		sub := req.Facets[name]
		info := refine[name]
		if info == nil && (onlyWithInfo || sub.TopLevel) {
			continue
		}
		if empty && info == nil && !sub.ProcessEmpty {
			continue
		}
		res, err := p.processField(sub, fc, info)
		if err != nil {
			return err
		}
		if b.Subs == nil {
			b.Subs = make(map[string]*facet.FacetResult, len(req.Facets))
		}
		b.Subs[name] = res
	}
	return nil
}

func (p *processor) collectStats(b *facet.BucketResult, req *facet.Request, docs docset.DocSet) error {
	c, err := p.collector(req, 1)
	if err != nil {
		return err
	}
	if _, err := c.Collect(docs, 0); err != nil {
		return err
	}
	c.SetValues(b, 0)
	return nil
}

func (p *processor) collector(req *facet.Request, numSlots int) (*collect.Collector, error) {
	accs := make([]collect.Accumulator, 0, len(req.Stats)+1)
	accs = append(accs, collect.NewCountAcc(numSlots))
	for _, name := range req.StatNames() {
		acc, err := collect.NewStatAcc(name, req.Stats[name], p.shard.idx, numSlots)
		if err != nil {
			return nil, err
		}
		accs = append(accs, acc)
	}
	return collect.NewCollector(p.shard.idx.Leaves(), accs...), nil
}

// processField evaluates the field facet req inside the bucket context fc.
func (p *processor) processField(req *facet.Request, fc *domain.Context, info *facet.Refinement) (*facet.FacetResult, error) {
	docs, err := p.resolver.Resolve(p.ctx, fc, req)
	if err != nil {
		return nil, err
	}
	switch {
	case info == nil || info.IsBulkCollect():
		return p.topBuckets(req, fc, docs, nil)
	case info.IsAugment():
		return p.augment(req, fc, docs, info)
	default:
		return p.refine(req, fc, docs, info)
	}
}

type candidate struct {
	value any
	count int64
	docs  docset.DocSet
	stat  float64
	has   bool
}

// ShardLimit returns how many buckets a shard returns for req, or -1 for
// all of them.
func ShardLimit(req *facet.Request) int {
	if req.Limit < 0 {
		return -1
	}
	n := req.Offset + req.Limit
	switch {
	case req.Overrequest >= 0:
		n += req.Overrequest
	case req.Offset < 10:
		n = (n*11+9)/10 + 4
	}
	return n
}

// topBuckets returns the best ShardLimit buckets of docs by the initial
// sort. partial maps native values to the sub-facet refinement used when
// such a bucket is among the results.
func (p *processor) topBuckets(req *facet.Request, fc *domain.Context, docs docset.DocSet, partial map[any]map[string]*facet.Refinement) (*facet.FacetResult, error) {
	ix := p.shard.idx
	mincount := int64(min(req.Mincount, 1))

	s := req.InitialSort()
	var statColl *collect.Collector
	if s.Variable != facet.SortCount && s.Variable != facet.SortIndex {
		sub := &facet.Request{Stats: map[string]facet.StatSpec{s.Variable: req.Stats[s.Variable]}}
		var err error
		if statColl, err = p.collector(sub, 1); err != nil {
			return nil, err
		}
	}

	top := queue.NewTopN(ShardLimit(req), candidateCmp(s))
	for _, t := range ix.Terms(req.Field) {
		if err := p.ctx.Err(); err != nil {
			return nil, err
		}
		bdocs := docs.Intersection(ix.Postings(req.Field, t))
		c := candidate{value: t, count: int64(bdocs.Size()), docs: bdocs}
		if c.count < mincount {
			continue
		}
		if statColl != nil {
			var tmp facet.BucketResult
			statColl.Reset()
			if _, err := statColl.Collect(bdocs, 0); err != nil {
				return nil, err
			}
			statColl.SetValues(&tmp, 0)
			c.stat, c.has = tmp.Stats[s.Variable]
		}
		top.Offer(c)
	}

	out := &facet.FacetResult{More: top.Dropped()}
	for _, c := range top.Drain() {
		b := &facet.BucketResult{Value: c.value}
		refine := partial[c.value]
		if err := p.fillBucket(b, req, fc.Sub(termQuery{field: req.Field, value: c.value}, c.docs), c.docs, false, refine, false); err != nil {
			return nil, err
		}
		out.Buckets = append(out.Buckets, b)
	}
	if out.Buckets == nil {
		out.Buckets = []*facet.BucketResult{}
	}
	return out, nil
}

// candidateCmp orders candidates the way the merger orders buckets.
func candidateCmp(s facet.Sort) func(a, b candidate) int {
	mul := s.Direction.Multiplier()
	switch s.Variable {
	case facet.SortCount:
		return func(a, b candidate) int {
			if c := cmp.Compare(a.count, b.count) * -mul; c != 0 {
				return c
			}
			return facet.CompareValues(a.value, b.value)
		}
	case facet.SortIndex:
		return func(a, b candidate) int {
			return facet.CompareValues(a.value, b.value) * -mul
		}
	default:
		return func(a, b candidate) int {
			switch {
			case a.has && !b.has:
				return -1
			case !a.has && b.has:
				return 1
			case a.has && b.has:
				if c := cmp.Compare(a.stat, b.stat) * -mul; c != 0 {
					return c
				}
			}
			return facet.CompareValues(a.value, b.value)
		}
	}
}

// refine returns exactly the buckets named by info: full buckets for _l,
// full buckets with sub-refinement for _p, and skip buckets for _s.
func (p *processor) refine(req *facet.Request, fc *domain.Context, docs docset.DocSet, info *facet.Refinement) (*facet.FacetResult, error) {
	out := &facet.FacetResult{Buckets: make([]*facet.BucketResult, 0, len(info.Leaf)+len(info.Partial)+len(info.Skip))}
	add := func(value any, subs map[string]*facet.Refinement, skip bool) error {
		b, err := p.bucket(req, fc, docs, value, subs, skip)
		if err != nil {
			return err
		}
		out.Buckets = append(out.Buckets, b)
		return nil
	}
	for _, v := range info.Leaf {
		if err := add(v, nil, false); err != nil {
			return nil, err
		}
	}
	for _, br := range info.Partial {
		if err := add(br.Value, br.Subs, false); err != nil {
			return nil, err
		}
	}
	for _, br := range info.Skip {
		if err := add(br.Value, br.Subs, true); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (p *processor) bucket(req *facet.Request, fc *domain.Context, docs docset.DocSet, value any, subs map[string]*facet.Refinement, skip bool) (*facet.BucketResult, error) {
	v, err := p.native(req.Field, value)
	if err != nil {
		return nil, err
	}
	bdocs := docs.Intersection(p.shard.idx.Postings(req.Field, v))
	b := &facet.BucketResult{Value: v}
	if err := p.fillBucket(b, req, fc.Sub(termQuery{field: req.Field, value: v}, bdocs), bdocs, skip, subs, skip); err != nil {
		return nil, err
	}
	return b, nil
}

func (p *processor) native(name string, value any) (any, error) {
	f := p.shard.idx.fields[name]
	if f == nil {
		return facet.NormalizeValue(value), nil
	}
	return f.native(value)
}

// augment bulk-evaluates the facet, then adds the requested buckets the bulk
// result did not contain.
func (p *processor) augment(req *facet.Request, fc *domain.Context, docs docset.DocSet, info *facet.Refinement) (*facet.FacetResult, error) {
	partial := make(map[any]map[string]*facet.Refinement, len(info.AugmentPartial))
	for _, br := range info.AugmentPartial {
		v, err := p.native(req.Field, br.Value)
		if err != nil {
			return nil, err
		}
		partial[v] = br.Subs
	}

	out, err := p.topBuckets(req, fc, docs, partial)
	if err != nil {
		return nil, err
	}
	if len(info.AugmentLeaf) == 0 && len(info.AugmentPartial) == 0 {
		return out, nil
	}

	returned := make(map[any]struct{}, len(out.Buckets))
	for _, b := range out.Buckets {
		returned[b.Value] = struct{}{}
	}
	p.checkKinds(req, out, info)

	rest := &facet.Refinement{}
	for _, v := range info.AugmentLeaf {
		nv, err := p.native(req.Field, v)
		if err != nil {
			return nil, err
		}
		if _, ok := returned[nv]; !ok {
			rest.Leaf = append(rest.Leaf, nv)
		}
	}
	for _, br := range info.AugmentPartial {
		nv, err := p.native(req.Field, br.Value)
		if err != nil {
			return nil, err
		}
		if _, ok := returned[nv]; !ok {
			rest.Partial = append(rest.Partial, facet.BucketRefinement{Value: nv, Subs: br.Subs})
		}
	}
	rest.Skip = info.Skip

	more, err := p.refine(req, fc, docs, rest)
	if err != nil {
		return nil, err
	}
	out.Buckets = append(out.Buckets, more.Buckets...)
	return out, nil
}

// checkKinds logs when the requested values are of another kind than the
// values the field produced.
func (p *processor) checkKinds(req *facet.Request, res *facet.FacetResult, info *facet.Refinement) {
	if len(res.Buckets) == 0 {
		return
	}
	var requested any
	switch {
	case len(info.AugmentPartial) > 0:
		requested = info.AugmentPartial[len(info.AugmentPartial)-1].Value
	case len(info.AugmentLeaf) > 0:
		requested = info.AugmentLeaf[len(info.AugmentLeaf)-1]
	default:
		return
	}
	produced := res.Buckets[len(res.Buckets)-1].Value
	if facet.SameKind(produced, requested) {
		return
	}
	p.shard.logger.ErrorContext(p.ctx, "augmentation value type mismatch",
		"field", req.Field,
		"produced", fmt.Sprintf("%T", produced),
		"requested", fmt.Sprintf("%T", facet.NormalizeValue(requested)))
	if p.shard.mismatch != nil {
		p.shard.mismatch.RecordTypeMismatch(req.Field)
	}
}
