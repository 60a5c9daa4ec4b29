package facetgo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/facetgo/codec"
	"github.com/hupe1980/facetgo/facet"
	"github.com/hupe1980/facetgo/resource"
	"github.com/hupe1980/facetgo/shard"
	"github.com/hupe1980/facetgo/transport"
)

var _ shard.MismatchRecorder = (*BasicMetricsCollector)(nil)

// Per shard category counts. Every shard only reports its top two, so the
// merged top two are wrong until refined: a=10 b=11 c=16 d=18 e=2.
var skewed = []map[string]int{
	{"a": 9, "b": 8, "c": 7, "d": 1},
	{"c": 9, "d": 8, "a": 1},
	{"d": 9, "b": 3, "e": 2},
}

func buildShard(t *testing.T, name string, counts ...map[string]int) *shard.Shard {
	t.Helper()
	b := shard.NewBuilder()
	for _, c := range counts {
		keys := make([]string, 0, len(c))
		for k := range c {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			for range c[k] {
				_, err := b.Add(shard.Doc{"cat": k, "price": 2.0})
				require.NoError(t, err)
			}
		}
		b.Flush()
	}
	return shard.New(b.Build(), shard.WithName(name))
}

func skewedShards(t *testing.T) []*shard.Shard {
	t.Helper()
	out := make([]*shard.Shard, len(skewed))
	for i, c := range skewed {
		out[i] = buildShard(t, fmt.Sprintf("s%d", i), c)
	}
	return out
}

func catsQuery(t *testing.T) *Query {
	t.Helper()
	req, err := Root().
		Stat("revenue", facet.StatSum, "price").
		Sub("cats", Terms("cat").
			Limit(2).
			Overrequest(0).
			Overrefine(2).
			Refine(facet.RefineSimple).
			Stat("revenue", facet.StatSum, "price")).
		Build()
	require.NoError(t, err)
	return &Query{Facet: req}
}

func buckets(res *facet.FacetResult) []string {
	if res == nil {
		return nil
	}
	out := make([]string, 0, len(res.Buckets))
	for _, b := range res.Buckets {
		out = append(out, fmt.Sprintf("%v:%d", b.Value, b.Count))
	}
	return out
}

// failing is a client whose shard never answers.
type failing struct {
	name string
	err  error
}

func (f failing) Name() string { return f.name }

func (f failing) Process(context.Context, *facet.ShardRequest) (*facet.BucketResult, error) {
	return nil, f.err
}

// blocking waits for its context to end.
type blocking struct{ name string }

func (b blocking) Name() string { return b.name }

func (b blocking) Process(ctx context.Context, _ *facet.ShardRequest) (*facet.BucketResult, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestNew(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrNoShards)

	_, err = NewFromShards(nil)
	assert.ErrorIs(t, err, ErrNoShards)

	c, err := NewFromShards(skewedShards(t))
	require.NoError(t, err)
	require.Len(t, c.Shards(), 3)
	assert.Equal(t, "s1", c.Shards()[1].Name())
	assert.IsType(t, &transport.Local{}, c.Shards()[0])

	c, err = NewFromShards(skewedShards(t), WithCodec(nil))
	require.NoError(t, err)
	assert.IsType(t, &transport.Wire{}, c.Shards()[0])
}

func TestFacetRefinementConverges(t *testing.T) {
	c, err := NewFromShards(skewedShards(t))
	require.NoError(t, err)

	res, err := c.Facet(context.Background(), catsQuery(t))
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, res.Status)
	assert.True(t, res.Converged)
	assert.Equal(t, 2, res.Passes)
	assert.Equal(t, 3, res.SuccessfulShards)
	assert.Empty(t, res.ShardErrors)

	assert.Equal(t, int64(57), res.Facets.Count)
	assert.InDelta(t, 114.0, res.Facets.Stats["revenue"], 1e-9)

	cats := res.Facets.Sub("cats")
	assert.Equal(t, []string{"d:18", "c:16"}, buckets(cats))
	assert.InDelta(t, 36.0, cats.Find("d").Stats["revenue"], 1e-9)
	assert.InDelta(t, 32.0, cats.Find("c").Stats["revenue"], 1e-9)
}

func TestFacetMatchesSingleShard(t *testing.T) {
	ctx := context.Background()

	single, err := NewFromShards([]*shard.Shard{buildShard(t, "all", skewed...)})
	require.NoError(t, err)
	want, err := single.Facet(ctx, catsQuery(t))
	require.NoError(t, err)

	codecs := []codec.Codec{nil, codec.JSON{}, codec.GoJSON{}, codec.Zstd(codec.GoJSON{}), codec.LZ4(codec.JSON{})}
	for _, cd := range codecs {
		name := "local"
		opts := []Option{}
		if cd != nil {
			name = cd.Name()
			opts = append(opts, WithCodec(cd))
		}
		t.Run(name, func(t *testing.T) {
			c, err := NewFromShards(skewedShards(t), opts...)
			require.NoError(t, err)
			got, err := c.Facet(ctx, catsQuery(t))
			require.NoError(t, err)

			assert.Equal(t, want.Facets.Count, got.Facets.Count)
			assert.Equal(t, buckets(want.Facets.Sub("cats")), buckets(got.Facets.Sub("cats")))
		})
	}
}

func TestFacetUnrefined(t *testing.T) {
	c, err := NewFromShards(skewedShards(t))
	require.NoError(t, err)

	q := catsQuery(t)
	q.Facet.Facets["cats"].Refine = facet.RefineNone

	res, err := c.Facet(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Passes)
	assert.True(t, res.Converged)
	// First pass counts only: d=1+8+9, b=8+3.
	assert.Equal(t, []string{"d:17", "b:11"}, buckets(res.Facets.Sub("cats")))
}

func TestFacetMaxPasses(t *testing.T) {
	c, err := NewFromShards(skewedShards(t), WithMaxPasses(1))
	require.NoError(t, err)

	res, err := c.Facet(context.Background(), catsQuery(t))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Passes)
	assert.False(t, res.Converged)
	assert.Equal(t, StatusSuccess, res.Status)
}

func TestFacetPartial(t *testing.T) {
	shards := skewedShards(t)
	clients := []transport.Client{
		transport.NewLocal("s0", shards[0]),
		transport.NewLocal("s1", shards[1]),
		failing{name: "down", err: errors.New("connection refused")},
	}
	metrics := &BasicMetricsCollector{}
	var logs bytes.Buffer
	logger := NewLogger(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	c, err := New(clients, WithMetricsCollector(metrics), WithLogger(logger))
	require.NoError(t, err)

	res, err := c.Facet(context.Background(), catsQuery(t))
	require.NoError(t, err)

	assert.Contains(t, logs.String(), `"msg":"facet pass started","pass":0,"shards":3`)
	assert.Contains(t, logs.String(), `"msg":"shard request failed","shard":"down","pass":0,"error":`)

	assert.Equal(t, StatusPartial, res.Status)
	assert.Equal(t, 3, res.TotalShards)
	assert.Equal(t, 2, res.SuccessfulShards)
	require.Len(t, res.ShardErrors, 1)
	assert.Equal(t, "down", res.ShardErrors[0].Shard)
	assert.Equal(t, 0, res.ShardErrors[0].Pass)
	assert.Contains(t, res.ShardErrors[0].Error, "connection refused")

	assert.Equal(t, int64(43), res.Facets.Count)
	// Refined over the two healthy shards: c=7+9, a=9+1.
	assert.Equal(t, []string{"c:16", "a:10"}, buckets(res.Facets.Sub("cats")))

	stats := metrics.GetStats()
	assert.Equal(t, int64(1), stats.FacetCount)
	assert.Equal(t, int64(0), stats.FacetErrors)
	assert.Equal(t, int64(1), stats.ShardErrors)
}

func TestFacetShardTimeout(t *testing.T) {
	shards := skewedShards(t)
	clients := []transport.Client{
		transport.NewLocal("s0", shards[0]),
		blocking{name: "slow"},
	}
	c, err := New(clients, WithShardTimeout(20*time.Millisecond))
	require.NoError(t, err)

	res, err := c.Facet(context.Background(), catsQuery(t))
	require.NoError(t, err)
	assert.Equal(t, StatusPartial, res.Status)
	require.Len(t, res.ShardErrors, 1)
	assert.Equal(t, "slow", res.ShardErrors[0].Shard)
	assert.Contains(t, res.ShardErrors[0].Error, context.DeadlineExceeded.Error())
	assert.Equal(t, int64(25), res.Facets.Count)
	assert.Equal(t, []string{"a:9", "b:8"}, buckets(res.Facets.Sub("cats")))
}

func TestFacetAllShardsFailed(t *testing.T) {
	boom := errors.New("boom")
	c, err := New([]transport.Client{
		failing{name: "a", err: boom},
		failing{name: "b", err: boom},
	})
	require.NoError(t, err)

	metrics := &BasicMetricsCollector{}
	c.opts.metricsCollector = metrics

	_, err = c.Facet(context.Background(), catsQuery(t))
	require.ErrorIs(t, err, ErrAllShardsFailed)
	assert.ErrorIs(t, err, boom)

	var sf *ErrShardFailed
	require.ErrorAs(t, err, &sf)
	assert.Equal(t, "a", sf.Shard)
	assert.Equal(t, int64(1), metrics.GetStats().FacetErrors)
}

func TestFacetBadRequest(t *testing.T) {
	c, err := NewFromShards(skewedShards(t))
	require.NoError(t, err)
	ctx := context.Background()

	tests := []struct {
		name string
		q    *Query
	}{
		{"nil query", nil},
		{"missing facet", &Query{}},
		{"not a root", &Query{Facet: facet.NewTerms("cat")}},
		{"invalid request", &Query{Facet: &facet.Request{Limit: -5}}},
		{"query rejected by shard", &Query{Query: "cat", Facet: catsQuery(t).Facet}},
		{"filter rejected by shard", &Query{
			Filters: []facet.TaggedFilter{{Query: "price:[1 TO"}},
			Facet:   catsQuery(t).Facet,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Facet(ctx, tt.q)
			assert.ErrorIs(t, err, ErrBadRequest)
		})
	}
}

func TestFacetBadRequestOverWire(t *testing.T) {
	c, err := NewFromShards(skewedShards(t), WithCodec(codec.GoJSON{}))
	require.NoError(t, err)

	_, err = c.Facet(context.Background(), &Query{Query: "cat", Facet: catsQuery(t).Facet})
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestFacetCanceled(t *testing.T) {
	c, err := NewFromShards(skewedShards(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Facet(ctx, catsQuery(t))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFacetWithQueryAndFilters(t *testing.T) {
	c, err := NewFromShards(skewedShards(t))
	require.NoError(t, err)

	q := catsQuery(t)
	q.Query = "cat:[a TO c]"
	q.Filters = []facet.TaggedFilter{{Query: "cat:[b TO *]"}}

	res, err := c.Facet(context.Background(), q)
	require.NoError(t, err)
	// b=11 and c=16 match both.
	assert.Equal(t, int64(27), res.Facets.Count)
	assert.Equal(t, []string{"c:16", "b:11"}, buckets(res.Facets.Sub("cats")))
}

func TestFacetResourceController(t *testing.T) {
	rc := resource.NewController(resource.Config{MaxConcurrentRequests: 1})
	metrics := &BasicMetricsCollector{}
	c, err := NewFromShards(skewedShards(t),
		WithResourceController(rc),
		WithConcurrency(2),
		WithCodec(codec.Zstd(codec.GoJSON{})),
		WithMetricsCollector(metrics),
	)
	require.NoError(t, err)

	res, err := c.Facet(context.Background(), catsQuery(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"d:18", "c:16"}, buckets(res.Facets.Sub("cats")))
	assert.Equal(t, int64(0), rc.InFlight())

	stats := metrics.GetStats()
	assert.Equal(t, int64(2), stats.PassCount)
	assert.Equal(t, int64(1), stats.RefinementPasses)
	assert.Greater(t, stats.ShardRequests, int64(3))
	assert.Equal(t, int64(0), stats.ShardErrors)

	var sent int64
	for _, cl := range c.Shards() {
		sent += cl.(*transport.Wire).Stats().BytesSent
	}
	assert.Positive(t, sent)
}

func TestFacetConcurrentRequests(t *testing.T) {
	c, err := NewFromShards(skewedShards(t))
	require.NoError(t, err)

	q := catsQuery(t)
	const n = 8
	errs := make(chan error, n)
	for range n {
		go func() {
			res, err := c.Facet(context.Background(), q)
			if err == nil && !slices.Equal(buckets(res.Facets.Sub("cats")), []string{"d:18", "c:16"}) {
				err = fmt.Errorf("unexpected buckets %v", buckets(res.Facets.Sub("cats")))
			}
			errs <- err
		}()
	}
	for range n {
		assert.NoError(t, <-errs)
	}
}
