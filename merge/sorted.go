package merge

import (
	"cmp"
	"slices"

	"github.com/hupe1980/facetgo/facet"
	"github.com/hupe1980/facetgo/internal/bitset"
)

// PivotState tracks when pruning becomes valid for a node and whether its
// top-level children have been initialized.
type PivotState int

const (
	// PivotPre means an ancestor or the node itself still refines.
	PivotPre PivotState = iota
	// PivotInit is the first pass in which the node may prune.
	PivotInit
	// PivotPruned means the node pruned once; top-level children may still
	// be bulk-collected.
	PivotPruned
	// PivotRefine is the terminal steady state.
	PivotRefine
)

func (p PivotState) String() string {
	switch p {
	case PivotInit:
		return "init_pivot"
	case PivotPruned:
		return "pivot"
	case PivotRefine:
		return "refine"
	default:
		return "pre"
	}
}

// FieldMerger merges the bucket lists of one terms facet node across shards
// and decides which buckets each shard must refine.
type FieldMerger struct {
	req *facet.Request

	buckets map[any]*Bucket
	list    []*Bucket

	shardHasMore *bitset.FixedBitSet

	lastPass              int
	pending               PendingRefinement
	currentPassRefinement bool
	pivot                 PivotState
	pruned                bool
	// sorted is the pruned window once pruned, else the InitialSort order
	// cached for the current pass.
	sorted []*Bucket
}

// NewFieldMerger creates the merger of req.
func NewFieldMerger(req *facet.Request) *FieldMerger {
	return &FieldMerger{
		req:      req,
		buckets:  make(map[any]*Bucket),
		lastPass: -1,
	}
}

// Request returns the facet request of the node.
func (m *FieldMerger) Request() *facet.Request { return m.req }

// Len returns the number of buckets held.
func (m *FieldMerger) Len() int { return len(m.list) }

// Bucket returns the bucket of value or nil.
func (m *FieldMerger) Bucket(value any) *Bucket { return m.buckets[facet.NormalizeValue(value)] }

// Pivot returns the pivot state.
func (m *FieldMerger) Pivot() PivotState { return m.pivot }

// Pending returns the pending refinement state of the current pass.
func (m *FieldMerger) Pending() PendingRefinement { return m.pending }

// Pruned reports whether the node has pruned its bucket list.
func (m *FieldMerger) Pruned() bool { return m.pruned }

// Merge ingests one shard's bucket list for ctx.ShardNum.
//
// Every shard result must be merged exactly once per pass. Merging the same
// response twice counts it twice.
func (m *FieldMerger) Merge(res *facet.FacetResult, ctx *Context) {
	if res.More {
		if m.shardHasMore == nil {
			m.shardHasMore = bitset.New(ctx.NumShards)
		}
		m.shardHasMore.Set(ctx.ShardNum)
	}

	for _, br := range res.Buckets {
		key := facet.NormalizeValue(br.Value)
		b, ok := m.buckets[key]
		if !ok {
			if m.pruned {
				// Only buckets inside the pruned window are refined.
				continue
			}
			b = newBucket(key, m.req, ctx)
			m.buckets[key] = b
			m.list = append(m.list, b)
		}
		b.Merge(br, ctx)
	}
}

func (m *FieldMerger) hasMore(shard int) bool {
	return m.shardHasMore != nil && m.shardHasMore.Test(shard)
}

func (m *FieldMerger) checkPass(ctx *Context) {
	if m.lastPass == ctx.Pass() {
		return
	}

	switch {
	case m.lastPass < 0:
		m.pending = NoRefinement
		if m.req.DoRefine() {
			m.pending = Ongoing
		}
	case m.req.Refine == facet.RefineSimple:
		m.pending = NoRefinement
		if m.currentPassRefinement {
			m.pending = PendingResults
		}
	case m.req.Refine == facet.RefineIterative:
		m.pending = ctx.maybeIterativeRefinement(m.currentPassRefinement)
	default:
		m.pending = NoRefinement
	}

	m.lastPass = ctx.Pass()
	m.currentPassRefinement = false

	switch m.pivot {
	case PivotPre, PivotInit:
		if m.pending == Ongoing {
			m.pivot = PivotPre
		} else {
			m.pivot = PivotInit
		}
	case PivotPruned:
		m.pivot = PivotRefine
	}

	if !m.pruned {
		m.sorted = nil
	}
}

func (m *FieldMerger) comparator(s facet.Sort) func(a, b *Bucket) int {
	mul := s.Direction.Multiplier()
	switch s.Variable {
	case facet.SortCount:
		return func(a, b *Bucket) int {
			if c := cmp.Compare(a.Count, b.Count) * -mul; c != 0 {
				return c
			}
			return facet.CompareValues(a.Value, b.Value)
		}
	case facet.SortIndex:
		return func(a, b *Bucket) int {
			return facet.CompareValues(a.Value, b.Value) * -mul
		}
	default:
		name := s.Variable
		return func(a, b *Bucket) int {
			sa, aok := sortableStat(a, name)
			sb, bok := sortableStat(b, name)
			switch {
			case aok && !bok:
				return -1
			case !aok && bok:
				return 1
			case aok && bok:
				if c := sa.Compare(sb) * -mul; c != 0 {
					return c
				}
			}
			return facet.CompareValues(a.Value, b.Value)
		}
	}
}

func sortableStat(b *Bucket, name string) (Sortable, bool) {
	s, ok := b.stats[name].(Sortable)
	if !ok {
		return nil, false
	}
	if _, has := s.Value(); !has {
		return nil, false
	}
	return s, true
}

func (m *FieldMerger) sortBuckets(s facet.Sort) []*Bucket {
	out := slices.Clone(m.list)
	if out == nil {
		out = []*Bucket{}
	}
	slices.SortStableFunc(out, m.comparator(s))
	return out
}

// candidates returns the bucket order refinement walks in this pass.
func (m *FieldMerger) candidates() []*Bucket {
	if m.pruned || m.sorted != nil {
		return m.sorted
	}
	m.sorted = m.sortBuckets(m.req.InitialSort())
	return m.sorted
}

// isBucketComplete reports whether every shard that may hold b has counted
// it. Failed shards are left out: they are never asked again.
func (m *FieldMerger) isBucketComplete(b *Bucket, ctx *Context) bool {
	if ctx.NumShards <= 1 {
		return true
	}
	for shard := 0; shard < ctx.NumShards; shard++ {
		if ctx.ShardFailed(shard) {
			continue
		}
		if m.hasMore(shard) && !ctx.shardFlag(b.number, shard) {
			return false
		}
	}
	return true
}

// filter drops buckets below mincount and, with refinement enabled,
// incomplete buckets. Then it applies the offset (unless skipOffset) and
// the limit.
func (m *FieldMerger) filter(list []*Bucket, ctx *Context, skipOffset bool) []*Bucket {
	out := list[:0]
	for _, b := range list {
		if b.Count < int64(m.req.Mincount) {
			continue
		}
		if m.req.DoRefine() && !m.isBucketComplete(b, ctx) {
			continue
		}
		out = append(out, b)
	}
	if !skipOffset {
		out = out[min(m.req.Offset, len(out)):]
	}
	if m.req.Limit >= 0 && len(out) > m.req.Limit {
		out = out[:m.req.Limit]
	}
	return out
}

func (m *FieldMerger) prune(ctx *Context) {
	kept := m.filter(m.sortBuckets(m.req.Sort), ctx, false)

	buckets := make(map[any]*Bucket, len(kept))
	for _, b := range kept {
		buckets[b.Value] = b
	}
	m.buckets = buckets
	m.list = slices.Clone(kept)
	m.sorted = kept
	m.pruned = true

	if m.pivot == PivotInit {
		m.pivot = PivotPruned
	}
}

// CandidateWindow returns how many of numBuckets sorted buckets refinement
// inspects for req.
func CandidateWindow(req *facet.Request, numBuckets int) int {
	if req.Limit < 0 {
		return numBuckets
	}
	n := req.Offset + req.Limit
	if req.Overrefine >= 0 {
		n += req.Overrefine
	} else if !exactWindow(req) {
		if req.Overrequest >= 0 {
			n += req.Overrequest
		} else {
			n = (n*11+9)/10 + 4
		}
	}
	return min(n, numBuckets)
}

// exactWindow reports whether the top offset+limit buckets are exact
// without any over-refinement.
func exactWindow(req *facet.Request) bool {
	if req.Mincount > 1 {
		return false
	}
	s := req.InitialSort()
	return (s.Variable == facet.SortIndex && s.Direction == facet.Asc) ||
		(s.Variable == facet.SortCount && s.Direction == facet.Desc)
}

// Refinement returns what ctx.ShardNum must send for this node in the
// current pass, or nil.
func (m *FieldMerger) Refinement(ctx *Context) *facet.Refinement {
	m.checkPass(ctx)

	initialPivot := m.pivot
	tl, hasTopLevel := ctx.topLevelSubs(m.req)

	overlap := false
	if m.pending != Ongoing && ctx.ancestorPending != Ongoing {
		if !m.pruned {
			m.prune(ctx)
		}
		overlap = hasTopLevel
	} else if hasTopLevel {
		ctx.setHasPendingTopLevel()
	}

	tags := ctx.subsWithRefinement(m.req)
	if len(tags) == 0 && !m.req.DoRefine() {
		return nil
	}
	partialTags := ctx.subsWithPartial(m.req)

	thisMissing := ctx.BucketWasMissing()
	shardHasMore := thisMissing || m.hasMore(ctx.ShardNum) || ctx.ShardFailed(ctx.ShardNum)
	returnedAll := !shardHasMore && !m.req.ProcessEmpty
	if returnedAll && len(tags) == 0 && len(partialTags) == 0 {
		return nil
	}

	buckets := m.candidates()
	buckets = buckets[:CandidateWindow(m.req, len(buckets))]

	prevAncestor := ctx.updateAncestorPending(m.pending)
	defer ctx.setAncestorPending(prevAncestor)
	defer ctx.setBucketWasMissing(thisMissing)

	var (
		leaf          []any
		partial, skip []facet.BucketRefinement
	)
	for _, b := range buckets {
		var bref map[string]*facet.Refinement
		added := false

		if !returnedAll && !ctx.ShardFlag(b.number) {
			ctx.setBucketWasMissing(true)
			if len(partialTags) > 0 {
				bref = b.refinement(ctx, partialTags)
			}
			switch {
			case bref != nil:
				partial = append(partial, facet.BucketRefinement{Value: b.Value, Subs: bref})
				added = true
			case !overlap:
				leaf = append(leaf, b.Value)
				added = true
			}
		} else if len(tags) > 0 {
			ctx.setBucketWasMissing(false)
			bref = b.refinement(ctx, tags)
			if bref != nil {
				skip = append(skip, facet.BucketRefinement{Value: b.Value, Subs: bref})
				added = true
			}
		}

		if overlap {
			bref = m.topLevelRefinement(ctx, b, tl, bref, initialPivot)
			if !added && len(bref) > 0 {
				skip = append(skip, facet.BucketRefinement{Value: b.Value, Subs: bref})
			}
		}
	}

	if len(leaf) == 0 && len(partial) == 0 && len(skip) == 0 {
		return nil
	}
	if len(leaf) > 0 || len(partial) > 0 {
		m.currentPassRefinement = true
	}

	r := &facet.Refinement{Skip: skip}
	if thisMissing && m.req.Refine == facet.RefineIterative {
		r.AugmentLeaf, r.AugmentPartial = leaf, partial
	} else {
		r.Leaf, r.Partial = leaf, partial
	}
	return r
}

// topLevelRefinement adds the refinement of deferred top-level facets below
// b to bref. Top-level children that were never collected get the
// bulk-collect marker while the node is pivoting.
func (m *FieldMerger) topLevelRefinement(ctx *Context, b *Bucket, tl topLevelSubs, bref map[string]*facet.Refinement, pivot PivotState) map[string]*facet.Refinement {
	set := func(name string, r *facet.Refinement) {
		if bref == nil {
			bref = make(map[string]*facet.Refinement)
		}
		bref[name] = r
	}

	for _, name := range tl.descendants {
		if bref[name] != nil {
			continue
		}
		if sub := b.subs[name]; sub != nil {
			if r := sub.Refinement(ctx); r != nil {
				set(name, r)
			}
		}
	}

	if pivot == PivotInit || pivot == PivotPruned {
		for _, name := range tl.children {
			if bref[name] == nil && b.subs[name] == nil {
				set(name, facet.BulkCollect())
			}
		}
	}
	return bref
}

// Result returns the final bucket list: sorted, mincount and completeness
// applied, offset and limit windowed.
func (m *FieldMerger) Result(ctx *Context) *facet.FacetResult {
	var list []*Bucket
	if m.pruned {
		list = slices.Clone(m.sorted)
		slices.SortStableFunc(list, m.comparator(m.req.Sort))
	} else {
		list = m.sortBuckets(m.req.Sort)
	}
	list = m.filter(list, ctx, m.pruned)

	out := &facet.FacetResult{Buckets: make([]*facet.BucketResult, 0, len(list))}
	for _, b := range list {
		out.Buckets = append(out.Buckets, b.result(ctx))
	}
	return out
}
