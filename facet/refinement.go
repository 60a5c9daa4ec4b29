package facet

import (
	"encoding/json"
	"fmt"
)

// Refinement is the per-node refinement message sent to one shard.
type Refinement struct {
	// Leaf lists values of buckets the shard never reported (_l).
	Leaf []any
	// Partial lists missing buckets with sub-refinement (_p).
	Partial []BucketRefinement
	// Skip lists reported buckets whose children need refinement (_s).
	Skip []BucketRefinement
	// AugmentLeaf lists values to bulk-collect (_a). A non-nil empty slice is
	// the bulk-collect marker.
	AugmentLeaf []any
	// AugmentPartial lists values to bulk-collect with sub-refinement (_q).
	AugmentPartial []BucketRefinement
}

// BulkCollect returns the {"_a": []} marker requesting unconstrained
// evaluation of a deferred top-level facet.
func BulkCollect() *Refinement {
	return &Refinement{AugmentLeaf: []any{}}
}

// IsBulkCollect reports whether r is the bulk-collect marker.
func (r *Refinement) IsBulkCollect() bool {
	return r != nil && r.AugmentLeaf != nil && len(r.AugmentLeaf) == 0 &&
		r.AugmentPartial == nil && !r.HasRefining()
}

// IsAugment reports whether r carries _a or _q entries.
func (r *Refinement) IsAugment() bool {
	return r != nil && (r.AugmentLeaf != nil || r.AugmentPartial != nil)
}

// HasRefining reports whether r carries _l, _p or _s entries.
func (r *Refinement) HasRefining() bool {
	return r != nil && (len(r.Leaf) > 0 || len(r.Partial) > 0 || len(r.Skip) > 0)
}

// IsEmpty reports whether r carries no entries at all.
func (r *Refinement) IsEmpty() bool {
	return r == nil || (!r.HasRefining() && !r.IsAugment())
}

type refinementWire struct {
	Leaf           []any               `json:"_l,omitempty"`
	Partial        []BucketRefinement  `json:"_p,omitempty"`
	Skip           []BucketRefinement  `json:"_s,omitempty"`
	AugmentLeaf    *[]any              `json:"_a,omitempty"`
	AugmentPartial *[]BucketRefinement `json:"_q,omitempty"`
}

func (r Refinement) MarshalJSON() ([]byte, error) {
	w := refinementWire{Leaf: r.Leaf, Partial: r.Partial, Skip: r.Skip}
	if r.AugmentLeaf != nil {
		w.AugmentLeaf = &r.AugmentLeaf
	}
	if r.AugmentPartial != nil {
		w.AugmentPartial = &r.AugmentPartial
	}
	return json.Marshal(w)
}

func (r *Refinement) UnmarshalJSON(b []byte) error {
	var w refinementWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*r = Refinement{Leaf: normalizeAll(w.Leaf), Partial: w.Partial, Skip: w.Skip}
	if w.AugmentLeaf != nil {
		r.AugmentLeaf = normalizeAll(*w.AugmentLeaf)
		if r.AugmentLeaf == nil {
			r.AugmentLeaf = []any{}
		}
	}
	if w.AugmentPartial != nil {
		r.AugmentPartial = *w.AugmentPartial
		if r.AugmentPartial == nil {
			r.AugmentPartial = []BucketRefinement{}
		}
	}
	return nil
}

// BucketRefinement pairs a bucket value with the refinement of its
// sub-facets. It is encoded as a two element array.
type BucketRefinement struct {
	Value any
	Subs  map[string]*Refinement
}

func (br BucketRefinement) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{br.Value, br.Subs})
}

func (br *BucketRefinement) UnmarshalJSON(b []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return NewRequestError("bucket refinement must be a [value, refinement] pair", string(b))
	}
	var v any
	if err := json.Unmarshal(pair[0], &v); err != nil {
		return err
	}
	var subs map[string]*Refinement
	if err := json.Unmarshal(pair[1], &subs); err != nil {
		return err
	}
	*br = BucketRefinement{Value: NormalizeValue(v), Subs: subs}
	return nil
}

func (br BucketRefinement) String() string {
	return fmt.Sprintf("[%v %v]", br.Value, br.Subs)
}
