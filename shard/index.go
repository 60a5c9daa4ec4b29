package shard

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/facetgo/collect"
	"github.com/hupe1980/facetgo/docset"
	"github.com/hupe1980/facetgo/facet"
)

// ErrFieldKind is returned when a field receives values of two kinds.
var ErrFieldKind = errors.New("shard: conflicting field kind")

// FieldKind is the term type of an indexed field.
type FieldKind int

const (
	KindUnknown FieldKind = iota
	KindString
	KindInt
)

func (k FieldKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	default:
		return "unknown"
	}
}

// Doc is one document. String values are indexed as string terms, integer
// values as int terms. Single numeric values (int, int64, float64) are also
// kept as doc values for stats; float64 values are not indexed as terms.
type Doc map[string]any

type field struct {
	name     string
	kind     FieldKind
	postings map[any]*roaring.Bitmap
	// Built by Builder.Build.
	terms []any
	docs  map[any]docset.DocSet
}

func (f *field) native(v any) (any, error) {
	v = facet.NormalizeValue(v)
	switch f.kind {
	case KindString:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return fmt.Sprint(v), nil
	case KindInt:
		switch t := v.(type) {
		case int64:
			return t, nil
		case string:
			n, err := strconv.ParseInt(t, 10, 64)
			if err != nil {
				return nil, facet.NewRequestError(fmt.Sprintf("value is not an integer for field %q", f.name), t)
			}
			return n, nil
		}
		return nil, facet.NewRequestError(fmt.Sprintf("value is not an integer for field %q", f.name), v)
	}
	return v, nil
}

// segmentValues holds the numeric doc values of one field in one segment.
type segmentValues struct {
	values []float64
	has    *roaring.Bitmap
}

func (s *segmentValues) Value(segDoc int) (float64, bool) {
	if segDoc < 0 || segDoc >= len(s.values) || !s.has.Contains(uint32(segDoc)) {
		return 0, false
	}
	return s.values[segDoc], true
}

func (s *segmentValues) set(segDoc int, v float64) {
	if n := segDoc + 1; n > len(s.values) {
		s.values = append(s.values, make([]float64, n-len(s.values))...)
	}
	s.values[segDoc] = v
	s.has.Add(uint32(segDoc))
}

// Index is an immutable in-memory index split into segments. Document
// ordinals are global; segment-local ordinals are relative to the segment
// base.
type Index struct {
	leaves  docset.Leaves
	fields  map[string]*field
	numeric map[string][]*segmentValues
	deleted *roaring.Bitmap
	live    docset.DocSet
}

// MaxDoc is one past the largest document ordinal.
func (ix *Index) MaxDoc() int { return ix.leaves.MaxDoc() }

// Leaves returns the segments in ordinal order.
func (ix *Index) Leaves() docset.Leaves { return ix.leaves }

// LiveDocuments returns all documents that are not deleted.
func (ix *Index) LiveDocuments() docset.DocSet { return ix.live }

// NumDeleted returns the number of deleted documents.
func (ix *Index) NumDeleted() int { return int(ix.deleted.GetCardinality()) }

// Kind returns the term kind of name, KindUnknown if no document has it.
func (ix *Index) Kind(name string) FieldKind {
	if f := ix.fields[name]; f != nil {
		return f.kind
	}
	return KindUnknown
}

// Terms returns the terms of name in ascending order.
func (ix *Index) Terms(name string) []any {
	if f := ix.fields[name]; f != nil {
		return f.terms
	}
	return nil
}

// Postings returns the documents holding term value in field name,
// including deleted ones.
func (ix *Index) Postings(name string, value any) docset.DocSet {
	f := ix.fields[name]
	if f == nil {
		return docset.Empty(ix.MaxDoc())
	}
	v, err := f.native(value)
	if err != nil {
		return docset.Empty(ix.MaxDoc())
	}
	if ds, ok := f.docs[v]; ok {
		return ds
	}
	return docset.Empty(ix.MaxDoc())
}

// NumericValues implements collect.NumericSource.
func (ix *Index) NumericValues(name string, seg docset.Segment) (collect.SegmentValues, error) {
	segs := ix.numeric[name]
	if seg.Ord < 0 || seg.Ord >= len(segs) || segs[seg.Ord] == nil {
		return nil, nil
	}
	return segs[seg.Ord], nil
}

func (ix *Index) bitmap(ds docset.DocSet) *roaring.Bitmap {
	if s, ok := ds.(*docset.SparseDocSet); ok {
		return s.Bitmap()
	}
	bm := roaring.New()
	for doc := range docset.All(ds) {
		bm.Add(uint32(doc))
	}
	return bm
}

func (ix *Index) docSet(bm *roaring.Bitmap) docset.DocSet {
	if !ix.deleted.IsEmpty() {
		bm = roaring.AndNot(bm, ix.deleted)
	}
	return docset.FromRoaring(bm, ix.MaxDoc())
}

// Builder assembles an Index. It is not safe for concurrent use.
type Builder struct {
	leaves   docset.Leaves
	fields   map[string]*field
	numeric  map[string][]*segmentValues
	deleted  *roaring.Bitmap
	segStart int
	next     int
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		fields:  make(map[string]*field),
		numeric: make(map[string][]*segmentValues),
		deleted: roaring.New(),
	}
}

// Add indexes doc into the open segment and returns its ordinal.
func (b *Builder) Add(doc Doc) (int, error) {
	if err := b.check(doc); err != nil {
		return 0, err
	}
	return b.add(doc), nil
}

// AddBlock indexes children followed by their parent as one contiguous
// block and returns the parent ordinal. Blocks never span segments.
func (b *Builder) AddBlock(children []Doc, parent Doc) (int, error) {
	for _, c := range children {
		if err := b.check(c); err != nil {
			return 0, err
		}
	}
	if err := b.check(parent); err != nil {
		return 0, err
	}
	for _, c := range children {
		b.add(c)
	}
	return b.add(parent), nil
}

// check validates doc without changing the builder.
func (b *Builder) check(doc Doc) error {
	for name, v := range doc {
		k, _, err := termsOf(v)
		if err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
		if k == KindUnknown {
			continue
		}
		if f := b.fields[name]; f != nil && f.kind != k {
			return fmt.Errorf("%w: field %q is %s, got %s", ErrFieldKind, name, f.kind, k)
		}
	}
	return nil
}

func (b *Builder) add(doc Doc) int {
	id := b.next
	b.next++
	segDoc := id - b.segStart
	seg := len(b.leaves)

	for name, v := range doc {
		kind, terms, _ := termsOf(v)
		if kind != KindUnknown {
			f := b.fields[name]
			if f == nil {
				f = &field{name: name, kind: kind, postings: make(map[any]*roaring.Bitmap)}
				b.fields[name] = f
			}
			for _, t := range terms {
				bm := f.postings[t]
				if bm == nil {
					bm = roaring.New()
					f.postings[t] = bm
				}
				bm.Add(uint32(id))
			}
		}
		if num, ok := numericOf(v); ok {
			segs := b.numeric[name]
			for len(segs) <= seg {
				segs = append(segs, nil)
			}
			if segs[seg] == nil {
				segs[seg] = &segmentValues{has: roaring.New()}
			}
			segs[seg].set(segDoc, num)
			b.numeric[name] = segs
		}
	}
	return id
}

// Flush seals the open segment. Flushing an empty segment is a no-op.
func (b *Builder) Flush() {
	if b.next == b.segStart {
		return
	}
	b.leaves = append(b.leaves, docset.Segment{
		Ord:    len(b.leaves),
		Base:   b.segStart,
		MaxDoc: b.next - b.segStart,
	})
	b.segStart = b.next
}

// Delete marks every document holding value in field name as deleted and
// returns how many documents matched.
func (b *Builder) Delete(name string, value any) (int, error) {
	f := b.fields[name]
	if f == nil {
		return 0, nil
	}
	v, err := f.native(value)
	if err != nil {
		return 0, err
	}
	bm := f.postings[v]
	if bm == nil {
		return 0, nil
	}
	b.deleted.Or(bm)
	return int(bm.GetCardinality()), nil
}

// Build flushes the open segment and returns the Index. The builder must not
// be used afterwards.
func (b *Builder) Build() *Index {
	b.Flush()
	ix := &Index{
		leaves:  b.leaves,
		fields:  b.fields,
		numeric: b.numeric,
		deleted: b.deleted,
	}
	maxDoc := ix.MaxDoc()

	for _, f := range ix.fields {
		f.terms = make([]any, 0, len(f.postings))
		f.docs = make(map[any]docset.DocSet, len(f.postings))
		for t, bm := range f.postings {
			bm.RunOptimize()
			f.terms = append(f.terms, t)
			f.docs[t] = docset.FromRoaring(bm, maxDoc)
		}
		slices.SortFunc(f.terms, facet.CompareValues)
	}

	all := roaring.New()
	if maxDoc > 0 {
		all.AddRange(0, uint64(maxDoc))
	}
	ix.live = ix.docSet(all)
	return ix
}

func termsOf(v any) (FieldKind, []any, error) {
	switch t := v.(type) {
	case string:
		return KindString, []any{t}, nil
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return KindString, out, nil
	case int:
		return KindInt, []any{int64(t)}, nil
	case int64:
		return KindInt, []any{t}, nil
	case []int:
		out := make([]any, len(t))
		for i, n := range t {
			out[i] = int64(n)
		}
		return KindInt, out, nil
	case []int64:
		out := make([]any, len(t))
		for i, n := range t {
			out[i] = n
		}
		return KindInt, out, nil
	case float64:
		if math.IsNaN(t) {
			return KindUnknown, nil, errors.New("NaN value")
		}
		return KindUnknown, nil, nil
	}
	return KindUnknown, nil, fmt.Errorf("unsupported value type %T", v)
}

func numericOf(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case float64:
		return t, true
	}
	return 0, false
}
