package facet

// BucketResult is one bucket produced by a shard or by the merger.
// The root of a facet tree is a BucketResult without a value.
type BucketResult struct {
	Value any   `json:"val"`
	Count int64 `json:"count"`
	// Skip marks a bucket returned only to carry sub-facet refinement; its
	// count and stats must not be merged again.
	Skip  bool                    `json:"_skip,omitempty"`
	Stats map[string]float64      `json:"stats,omitempty"`
	Subs  map[string]*FacetResult `json:"facets,omitempty"`
}

// FacetResult is the bucket list of one facet node.
type FacetResult struct {
	Buckets []*BucketResult `json:"buckets"`
	// More reports that the shard holds buckets it did not return.
	More bool `json:"more,omitempty"`
}

// Sub returns the named sub-facet result or nil.
func (b *BucketResult) Sub(name string) *FacetResult {
	if b == nil || b.Subs == nil {
		return nil
	}
	return b.Subs[name]
}

// Find returns the bucket holding value or nil.
func (f *FacetResult) Find(value any) *BucketResult {
	if f == nil {
		return nil
	}
	for _, b := range f.Buckets {
		if CompareValues(b.Value, value) == 0 {
			return b
		}
	}
	return nil
}

// TaggedFilter is a top-level filter query with its exclusion tags.
type TaggedFilter struct {
	Query string   `json:"q"`
	Tags  []string `json:"tags,omitempty"`
}

// ShardRequest is one facet request sent to one shard.
type ShardRequest struct {
	// Query is the main query; QueryTags make it excludable.
	Query     string         `json:"q"`
	QueryTags []string       `json:"qtags,omitempty"`
	Filters   []TaggedFilter `json:"fq,omitempty"`
	// Params holds request parameters referenced by filters.
	Params map[string][]string `json:"params,omitempty"`
	Facet  *Request            `json:"facet"`
	// Refine holds the per-sub-facet refinement of the root bucket. It is nil
	// for the initial request.
	Refine map[string]*Refinement `json:"refine,omitempty"`
	Pass   int                    `json:"pass"`
}

// IsRefinement reports whether r is a refinement request.
func (r *ShardRequest) IsRefinement() bool { return r.Refine != nil }
