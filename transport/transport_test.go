package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/facetgo/codec"
	"github.com/hupe1980/facetgo/facet"
	"github.com/hupe1980/facetgo/resource"
	"github.com/hupe1980/facetgo/shard"
)

type processorFunc func(ctx context.Context, req *facet.ShardRequest) (*facet.BucketResult, error)

func (f processorFunc) Process(ctx context.Context, req *facet.ShardRequest) (*facet.BucketResult, error) {
	return f(ctx, req)
}

func testShard(t *testing.T) *shard.Shard {
	t.Helper()
	b := shard.NewBuilder()
	for _, d := range []shard.Doc{
		{"cat": "book", "year": 2001},
		{"cat": "book", "year": 2002},
		{"cat": "music", "year": 2002},
	} {
		_, err := b.Add(d)
		require.NoError(t, err)
	}
	return shard.New(b.Build())
}

func testRequest() *facet.ShardRequest {
	root := facet.NewRoot()
	root.Facets = map[string]*facet.Request{
		"cats":  facet.NewTerms("cat"),
		"years": facet.NewTerms("year"),
	}
	return &facet.ShardRequest{Query: "*:*", Facet: root}
}

func TestLocal(t *testing.T) {
	c := NewLocal("s0", testShard(t))
	assert.Equal(t, "s0", c.Name())

	res, err := c.Process(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Count)
	assert.Equal(t, "book", res.Sub("cats").Buckets[0].Value)
}

func TestWireMatchesLocal(t *testing.T) {
	s := testShard(t)
	want, err := NewLocal("s0", s).Process(context.Background(), testRequest())
	require.NoError(t, err)

	for _, c := range []codec.Codec{codec.JSON{}, codec.GoJSON{}, codec.Zstd(codec.GoJSON{}), codec.LZ4(codec.JSON{})} {
		t.Run(c.Name(), func(t *testing.T) {
			w := NewWire("s0", s, WithCodec(c))
			got, err := w.Process(context.Background(), testRequest())
			require.NoError(t, err)

			assert.Equal(t, want.Count, got.Count)
			for _, name := range []string{"cats", "years"} {
				wb, gb := want.Sub(name).Buckets, got.Sub(name).Buckets
				require.Len(t, gb, len(wb))
				for i := range wb {
					assert.Zero(t, facet.CompareValues(wb[i].Value, gb[i].Value), "%s[%d]", name, i)
					assert.Equal(t, wb[i].Count, gb[i].Count)
				}
			}

			st := w.Stats()
			assert.Equal(t, int64(1), st.Requests)
			assert.Positive(t, st.BytesSent)
			assert.Positive(t, st.BytesReceived)
		})
	}
}

func TestWireErrors(t *testing.T) {
	ctx := context.Background()

	bad := NewWire("bad", processorFunc(func(context.Context, *facet.ShardRequest) (*facet.BucketResult, error) {
		return nil, facet.NewRequestError("unknown sort variable", "x")
	}))
	_, err := bad.Process(ctx, testRequest())
	require.ErrorIs(t, err, facet.ErrBadRequest)
	assert.Contains(t, err.Error(), "unknown sort variable")

	broken := NewWire("broken", processorFunc(func(context.Context, *facet.ShardRequest) (*facet.BucketResult, error) {
		return nil, errors.New("disk on fire")
	}))
	_, err = broken.Process(ctx, testRequest())
	require.ErrorIs(t, err, ErrShard)
	assert.Contains(t, err.Error(), "disk on fire")

	empty := NewWire("empty", processorFunc(func(context.Context, *facet.ShardRequest) (*facet.BucketResult, error) {
		return nil, nil
	}))
	_, err = empty.Process(ctx, testRequest())
	require.ErrorIs(t, err, ErrShard)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = NewWire("s0", testShard(t)).Process(canceled, testRequest())
	require.ErrorIs(t, err, context.Canceled)
}

func TestServeRejectsGarbage(t *testing.T) {
	out, err := Serve(context.Background(), codec.GoJSON{}, testShard(t), []byte("{not json"))
	require.NoError(t, err)

	var resp response
	require.NoError(t, codec.GoJSON{}.Unmarshal(out, &resp))
	assert.True(t, resp.BadRequest)
	assert.NotEmpty(t, resp.Error)
}

func TestWireIOLimit(t *testing.T) {
	rc := resource.NewController(resource.Config{IOLimitBytesPerSec: 1 << 20})
	w := NewWire("s0", testShard(t), WithIOLimit(rc))

	res, err := w.Process(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Count)

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = w.Process(canceled, testRequest())
	require.Error(t, err)
}
