package shard

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/facetgo/docset"
	"github.com/hupe1980/facetgo/domain"
	"github.com/hupe1980/facetgo/facet"
	"github.com/hupe1980/facetgo/internal/cache"
	"github.com/hupe1980/facetgo/resource"
)

// Compile time check to ensure Shard satisfies the Executor interface.
var _ domain.Executor = (*Shard)(nil)

// MismatchRecorder is notified when an augmentation request carries values
// of another kind than the field produces.
type MismatchRecorder interface {
	RecordTypeMismatch(field string)
}

// Shard answers facet requests over one Index.
// It is safe for concurrent use.
type Shard struct {
	name     string
	idx      *Index
	filters  *cache.ShardedLRU[string, docset.DocSet]
	logger   *slog.Logger
	mismatch MismatchRecorder
}

// Option configures a Shard.
type Option func(*Shard)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(s *Shard) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithName sets the name the shard logs under.
func WithName(name string) Option {
	return func(s *Shard) {
		s.name = name
	}
}

// WithFilterCache caches resolved single-query domains up to capacity bytes.
// rc, if not nil, is charged for the cached memory.
func WithFilterCache(capacity int64, rc *resource.Controller) Option {
	return func(s *Shard) {
		if capacity > 0 {
			s.filters = cache.NewShardedLRU[string, docset.DocSet](capacity, rc)
		}
	}
}

// WithMismatchRecorder sets the recorder of augmentation type mismatches.
func WithMismatchRecorder(r MismatchRecorder) Option {
	return func(s *Shard) {
		s.mismatch = r
	}
}

// New creates a Shard serving idx.
func New(idx *Index, opts ...Option) *Shard {
	s := &Shard{
		name:   "shard",
		idx:    idx,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("shard", s.name)
	return s
}

// Name returns the shard name.
func (s *Shard) Name() string { return s.name }

// Index returns the served index.
func (s *Shard) Index() *Index { return s.idx }

// CacheStats returns the filter cache hits and misses.
func (s *Shard) CacheStats() (hits, misses int64) {
	if s.filters == nil {
		return 0, 0
	}
	return s.filters.Stats()
}

// Parse implements domain.Executor.
func (s *Shard) Parse(q string) (domain.Query, error) {
	return ParseQuery(q)
}

// Resolve implements domain.Executor.
func (s *Shard) Resolve(ctx context.Context, queries ...domain.Query) (docset.DocSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(queries) == 0 {
		return s.idx.LiveDocuments(), nil
	}

	cacheable := s.filters != nil && len(queries) == 1
	if cacheable {
		if _, ok := queries[0].(docsQuery); ok {
			cacheable = false
		}
	}
	if cacheable {
		if ds, ok := s.filters.Get(queries[0].String()); ok {
			return ds, nil
		}
	}

	var bm *roaring.Bitmap
	for _, q := range queries {
		pq, ok := q.(query)
		if !ok {
			return nil, fmt.Errorf("shard: foreign query type %T", q)
		}
		if bm == nil {
			bm = pq.eval(s.idx)
			continue
		}
		bm.And(pq.eval(s.idx))
	}
	ds := s.idx.docSet(bm)

	if cacheable {
		s.filters.Set(queries[0].String(), ds, docSetBytes(ds))
	}
	return ds, nil
}

// Count implements domain.Executor.
func (s *Shard) Count(ctx context.Context, q domain.Query, d docset.DocSet) (int, error) {
	ds, err := s.Resolve(ctx, q)
	if err != nil {
		return 0, err
	}
	return ds.IntersectionSize(d), nil
}

// LiveDocuments implements domain.Executor.
func (s *Shard) LiveDocuments() docset.DocSet { return s.idx.LiveDocuments() }

// MaxDoc implements domain.Executor.
func (s *Shard) MaxDoc() int { return s.idx.MaxDoc() }

// Leaves implements domain.Executor.
func (s *Shard) Leaves() docset.Leaves { return s.idx.Leaves() }

// JoinQuery implements domain.Executor.
func (s *Shard) JoinQuery(ctx context.Context, join facet.JoinField, d docset.DocSet) (domain.Query, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bm := s.join(join.From, join.To, s.idx.bitmap(d))
	return docsQuery{
		label: fmt.Sprintf("{!join from=%s to=%s}", join.From, join.To),
		bm:    bm,
	}, nil
}

// GraphQuery implements domain.Executor. The result includes the start
// documents.
func (s *Shard) GraphQuery(ctx context.Context, graph facet.GraphField, d docset.DocSet) (domain.Query, error) {
	visited := s.idx.bitmap(d).Clone()
	frontier := visited.Clone()
	for depth := 0; graph.MaxDepth <= 0 || depth < graph.MaxDepth; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next := s.join(graph.From, graph.To, frontier)
		next.AndNot(visited)
		if next.IsEmpty() {
			break
		}
		visited.Or(next)
		frontier = next
	}
	return docsQuery{
		label: fmt.Sprintf("{!graph from=%s to=%s maxDepth=%d}", graph.From, graph.To, graph.MaxDepth),
		bm:    visited,
	}, nil
}

// join returns the documents whose to field holds a value that the from
// field holds in some document of docs.
func (s *Shard) join(from, to string, docs *roaring.Bitmap) *roaring.Bitmap {
	out := roaring.New()
	ff, tf := s.idx.fields[from], s.idx.fields[to]
	if ff == nil || tf == nil {
		return out
	}
	for _, t := range ff.terms {
		if !ff.postings[t].Intersects(docs) {
			continue
		}
		v, err := tf.native(t)
		if err != nil {
			continue
		}
		if bm := tf.postings[v]; bm != nil {
			out.Or(bm)
		}
	}
	return out
}

// docSetBytes estimates the memory held by ds.
func docSetBytes(ds docset.DocSet) int64 {
	switch t := ds.(type) {
	case *docset.SparseDocSet:
		return int64(t.Bitmap().GetSizeInBytes()) + 32
	case *docset.BitDocSet:
		return int64(t.Bits().Len()/8) + 32
	}
	return 64
}
