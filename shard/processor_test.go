package shard

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/facetgo/facet"
)

// products holds six documents in two segments:
//
//	0 book  acme 10 2001
//	1 book  acme 20 2002
//	2 book  zeta  5 2002
//	3 music acme  7
//	4 music beta  3
//	5 film  zeta  1
func products(t *testing.T, opts ...Option) *Shard {
	t.Helper()
	b := NewBuilder()
	docs := []Doc{
		{"cat": "book", "brand": "acme", "price": 10.0, "year": 2001},
		{"cat": "book", "brand": "acme", "price": 20.0, "year": 2002},
		{"cat": "book", "brand": "zeta", "price": 5.0, "year": 2002},
		{"cat": "music", "brand": "acme", "price": 7.0},
		{"cat": "music", "brand": "beta", "price": 3.0},
		{"cat": "film", "brand": "zeta", "price": 1.0},
	}
	for i, d := range docs {
		_, err := b.Add(d)
		require.NoError(t, err)
		if i == 2 {
			b.Flush()
		}
	}
	return New(b.Build(), opts...)
}

func summary(res *facet.FacetResult) []string {
	if res == nil {
		return nil
	}
	out := make([]string, 0, len(res.Buckets))
	for _, b := range res.Buckets {
		out = append(out, fmt.Sprintf("%v:%d", b.Value, b.Count))
	}
	return out
}

// catsRequest is a root with a sum stat and a cat facet returning two
// buckets per shard.
func catsRequest() (*facet.Request, *facet.Request) {
	root := facet.NewRoot()
	root.Stats = map[string]facet.StatSpec{"total": {Func: facet.StatSum, Field: "price"}}
	cats := facet.NewTerms("cat")
	cats.Limit = 2
	cats.Overrequest = 0
	cats.Refine = facet.RefineSimple
	cats.Stats = map[string]facet.StatSpec{"max": {Func: facet.StatMax, Field: "price"}}
	root.Facets = map[string]*facet.Request{"cats": cats}
	return root, cats
}

func TestProcessInitial(t *testing.T) {
	s := products(t)
	root, _ := catsRequest()

	res, err := s.Process(context.Background(), &facet.ShardRequest{Facet: root})
	require.NoError(t, err)

	assert.Equal(t, int64(6), res.Count)
	assert.InDelta(t, 46.0, res.Stats["total"], 1e-9)

	cats := res.Sub("cats")
	require.NotNil(t, cats)
	assert.True(t, cats.More)
	assert.Equal(t, []string{"book:3", "music:2"}, summary(cats))
	assert.InDelta(t, 20.0, cats.Find("book").Stats["max"], 1e-9)
	assert.InDelta(t, 7.0, cats.Find("music").Stats["max"], 1e-9)
}

func TestProcessReturnsEverythingWithinLimit(t *testing.T) {
	s := products(t)
	root, cats := catsRequest()
	cats.Limit = 10
	cats.Overrequest = -1

	res, err := s.Process(context.Background(), &facet.ShardRequest{Facet: root})
	require.NoError(t, err)
	assert.False(t, res.Sub("cats").More)
	assert.Equal(t, []string{"book:3", "music:2", "film:1"}, summary(res.Sub("cats")))
}

func TestShardLimit(t *testing.T) {
	tests := []struct {
		offset, limit, overrequest int
		want                       int
	}{
		{0, 10, -1, 15},
		{0, 2, -1, 7},
		{10, 10, -1, 20},
		{0, 10, 3, 13},
		{5, 10, 0, 15},
		{0, -1, -1, -1},
	}
	for _, tt := range tests {
		req := facet.NewTerms("f")
		req.Offset, req.Limit, req.Overrequest = tt.offset, tt.limit, tt.overrequest
		assert.Equal(t, tt.want, ShardLimit(req), "%+v", tt)
	}
}

func TestProcessStatSort(t *testing.T) {
	s := products(t)
	root, cats := catsRequest()
	cats.Sort = facet.Sort{Variable: "max", Direction: facet.Desc}
	cats.Limit = 1

	res, err := s.Process(context.Background(), &facet.ShardRequest{Facet: root})
	require.NoError(t, err)
	assert.Equal(t, []string{"book:3"}, summary(res.Sub("cats")))

	cats.Sort.Direction = facet.Asc
	res, err = s.Process(context.Background(), &facet.ShardRequest{Facet: root})
	require.NoError(t, err)
	assert.Equal(t, []string{"film:1"}, summary(res.Sub("cats")))
}

func TestProcessRefinement(t *testing.T) {
	s := products(t)
	root, cats := catsRequest()
	brands := facet.NewTerms("brand")
	brands.Refine = facet.RefineSimple
	cats.Facets = map[string]*facet.Request{"brands": brands}
	root.Facets["other"] = facet.NewTerms("brand")

	req := &facet.ShardRequest{
		Facet: root,
		Pass:  1,
		Refine: map[string]*facet.Refinement{
			"cats": {
				Leaf: []any{"film"},
				Partial: []facet.BucketRefinement{{
					Value: "music",
					Subs:  map[string]*facet.Refinement{"brands": {Leaf: []any{"beta"}}},
				}},
				Skip: []facet.BucketRefinement{{
					Value: "book",
					Subs:  map[string]*facet.Refinement{"brands": {Leaf: []any{"zeta"}}},
				}},
			},
		},
	}
	res, err := s.Process(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, int64(6), res.Count)
	assert.Nil(t, res.Sub("other"), "facets without refinement are not evaluated")

	got := res.Sub("cats")
	require.NotNil(t, got)
	assert.False(t, got.More)
	assert.Equal(t, []string{"film:1", "music:2", "book:0"}, summary(got))

	film := got.Find("film")
	assert.InDelta(t, 1.0, film.Stats["max"], 1e-9)
	assert.Equal(t, []string{"zeta:1"}, summary(film.Sub("brands")))

	music := got.Find("music")
	assert.False(t, music.Skip)
	assert.Equal(t, []string{"beta:1"}, summary(music.Sub("brands")))

	book := got.Find("book")
	assert.True(t, book.Skip)
	assert.Nil(t, book.Stats)
	assert.Equal(t, []string{"zeta:1"}, summary(book.Sub("brands")))
}

func TestProcessRefineIntField(t *testing.T) {
	s := products(t)
	root := facet.NewRoot()
	root.Facets = map[string]*facet.Request{"years": facet.NewTerms("year")}

	res, err := s.Process(context.Background(), &facet.ShardRequest{
		Facet:  root,
		Refine: map[string]*facet.Refinement{"years": {Leaf: []any{"2002", int64(2001), int64(1999)}}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"2002:2", "2001:1", "1999:0"}, summary(res.Sub("years")))
	assert.Equal(t, int64(2002), res.Sub("years").Buckets[0].Value)

	_, err = s.Process(context.Background(), &facet.ShardRequest{
		Facet:  root,
		Refine: map[string]*facet.Refinement{"years": {Leaf: []any{"abc"}}},
	})
	require.ErrorIs(t, err, facet.ErrBadRequest)
}

func TestProcessTopLevelDeferred(t *testing.T) {
	s := products(t)
	root, cats := catsRequest()
	tl := facet.NewTerms("brand")
	tl.TopLevel = true
	cats.Facets = map[string]*facet.Request{"tl": tl}

	res, err := s.Process(context.Background(), &facet.ShardRequest{Facet: root})
	require.NoError(t, err)
	for _, b := range res.Sub("cats").Buckets {
		assert.Nil(t, b.Sub("tl"), "top-level facet of %v must be deferred", b.Value)
	}

	res, err = s.Process(context.Background(), &facet.ShardRequest{
		Facet: root,
		Refine: map[string]*facet.Refinement{
			"cats": {Skip: []facet.BucketRefinement{{
				Value: "book",
				Subs:  map[string]*facet.Refinement{"tl": facet.BulkCollect()},
			}}},
		},
	})
	require.NoError(t, err)
	book := res.Sub("cats").Find("book")
	require.NotNil(t, book)
	assert.True(t, book.Skip)
	assert.Equal(t, []string{"acme:2", "zeta:1"}, summary(book.Sub("tl")))
}

func TestProcessAugment(t *testing.T) {
	s := products(t)
	root, cats := catsRequest()
	cats.Facets = map[string]*facet.Request{"brands": facet.NewTerms("brand")}

	t.Run("leaf", func(t *testing.T) {
		res, err := s.Process(context.Background(), &facet.ShardRequest{
			Facet:  root,
			Refine: map[string]*facet.Refinement{"cats": {AugmentLeaf: []any{"film", "book"}}},
		})
		require.NoError(t, err)
		got := res.Sub("cats")
		assert.True(t, got.More)
		assert.Equal(t, []string{"book:3", "music:2", "film:1"}, summary(got))
		assert.Equal(t, []string{"zeta:1"}, summary(got.Find("film").Sub("brands")))
	})

	t.Run("partial", func(t *testing.T) {
		res, err := s.Process(context.Background(), &facet.ShardRequest{
			Facet: root,
			Refine: map[string]*facet.Refinement{"cats": {AugmentPartial: []facet.BucketRefinement{
				{Value: "music", Subs: map[string]*facet.Refinement{"brands": {Leaf: []any{"beta"}}}},
				{Value: "film", Subs: map[string]*facet.Refinement{"brands": {Leaf: []any{"acme"}}}},
			}}},
		})
		require.NoError(t, err)
		got := res.Sub("cats")
		assert.Equal(t, []string{"book:3", "music:2", "film:1"}, summary(got))
		assert.Equal(t, []string{"acme:2", "zeta:1"}, summary(got.Find("book").Sub("brands")))
		assert.Equal(t, []string{"beta:1"}, summary(got.Find("music").Sub("brands")))
		assert.Equal(t, []string{"acme:0"}, summary(got.Find("film").Sub("brands")))
	})

	t.Run("bulk", func(t *testing.T) {
		res, err := s.Process(context.Background(), &facet.ShardRequest{
			Facet:  root,
			Refine: map[string]*facet.Refinement{"cats": facet.BulkCollect()},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"book:3", "music:2"}, summary(res.Sub("cats")))
	})
}

type countingRecorder struct {
	n atomic.Int64
}

func (r *countingRecorder) RecordTypeMismatch(string) { r.n.Add(1) }

func TestProcessAugmentTypeMismatch(t *testing.T) {
	var buf bytes.Buffer
	rec := &countingRecorder{}
	s := products(t, WithLogger(slog.New(slog.NewTextHandler(&buf, nil))), WithMismatchRecorder(rec))
	root, _ := catsRequest()

	res, err := s.Process(context.Background(), &facet.ShardRequest{
		Facet:  root,
		Refine: map[string]*facet.Refinement{"cats": {AugmentLeaf: []any{int64(5)}}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"book:3", "music:2", "5:0"}, summary(res.Sub("cats")))
	assert.Equal(t, int64(1), rec.n.Load())
	assert.Contains(t, buf.String(), "augmentation value type mismatch")
}

func TestProcessExcludeTags(t *testing.T) {
	s := products(t)
	root, cats := catsRequest()
	cats.Limit = 10
	cats.Domain = &facet.Domain{ExcludeTags: []string{"c"}}
	root.Facets["brands"] = facet.NewTerms("brand")

	res, err := s.Process(context.Background(), &facet.ShardRequest{
		Facet:   root,
		Filters: []facet.TaggedFilter{{Query: "cat:book", Tags: []string{"c"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Count)
	assert.Equal(t, []string{"book:3", "music:2", "film:1"}, summary(res.Sub("cats")))
	assert.Equal(t, []string{"acme:2", "zeta:1"}, summary(res.Sub("brands")))
}

func TestProcessMincountZero(t *testing.T) {
	s := products(t)
	root, cats := catsRequest()
	cats.Limit = 10
	cats.Mincount = 0
	cats.Domain = &facet.Domain{Filter: []facet.Filter{facet.Q("brand:beta")}}

	res, err := s.Process(context.Background(), &facet.ShardRequest{Facet: root})
	require.NoError(t, err)
	assert.Equal(t, []string{"music:1", "book:0", "film:0"}, summary(res.Sub("cats")))
}

func TestProcessBlockJoin(t *testing.T) {
	b := NewBuilder()
	_, err := b.AddBlock([]Doc{{"type": "sku", "color": "red"}, {"type": "sku", "color": "blue"}}, Doc{"type": "product", "brand": "acme"})
	require.NoError(t, err)
	_, err = b.AddBlock([]Doc{{"type": "sku", "color": "red"}}, Doc{"type": "product", "brand": "zeta"})
	require.NoError(t, err)
	s := New(b.Build())

	root := facet.NewRoot()
	colors := facet.NewTerms("color")
	colors.Domain = &facet.Domain{BlockParent: "type:product"}
	root.Facets = map[string]*facet.Request{"colors": colors}

	res, err := s.Process(context.Background(), &facet.ShardRequest{Query: "brand:acme", Facet: root})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Count)
	assert.Equal(t, []string{"blue:1", "red:1"}, summary(res.Sub("colors")))

	root = facet.NewRoot()
	brands := facet.NewTerms("brand")
	brands.Domain = &facet.Domain{BlockChildren: "type:product"}
	root.Facets = map[string]*facet.Request{"brands": brands}

	res, err = s.Process(context.Background(), &facet.ShardRequest{Query: "color:red", Facet: root})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Count)
	assert.Equal(t, []string{"acme:1", "zeta:1"}, summary(res.Sub("brands")))
}

func TestProcessGraphDomain(t *testing.T) {
	s := graphIndex(t)
	root := facet.NewRoot()
	nodes := facet.NewTerms("node")
	nodes.Sort = facet.Sort{Variable: facet.SortIndex, Direction: facet.Asc}
	nodes.Domain = &facet.Domain{Graph: &facet.GraphField{From: "edge", To: "node", MaxDepth: 2}}
	root.Facets = map[string]*facet.Request{"nodes": nodes}

	res, err := s.Process(context.Background(), &facet.ShardRequest{Query: "node:a", Facet: root})
	require.NoError(t, err)
	assert.Equal(t, []string{"a:1", "b:1", "c:1"}, summary(res.Sub("nodes")))
}

func TestProcessErrors(t *testing.T) {
	s := products(t)
	ctx := context.Background()

	_, err := s.Process(ctx, &facet.ShardRequest{})
	require.ErrorIs(t, err, facet.ErrBadRequest)

	root, cats := catsRequest()
	cats.Sort = facet.Sort{Variable: "bogus"}
	_, err = s.Process(ctx, &facet.ShardRequest{Facet: root})
	require.ErrorIs(t, err, facet.ErrBadRequest)

	root, _ = catsRequest()
	_, err = s.Process(ctx, &facet.ShardRequest{Query: "nocolon", Facet: root})
	require.ErrorIs(t, err, facet.ErrBadRequest)

	_, err = s.Process(ctx, &facet.ShardRequest{Facet: root, Filters: []facet.TaggedFilter{{Query: "f:[1 2]"}}})
	require.ErrorIs(t, err, facet.ErrBadRequest)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = s.Process(canceled, &facet.ShardRequest{Facet: root})
	require.ErrorIs(t, err, context.Canceled)
}
