package codec

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/facetgo/facet"
)

func allCodecs() []Codec {
	return []Codec{JSON{}, GoJSON{}, Zstd(GoJSON{}), LZ4(GoJSON{}), Zstd(JSON{}), LZ4(JSON{})}
}

func TestByName(t *testing.T) {
	for _, c := range allCodecs() {
		got, ok := ByName(c.Name())
		require.True(t, ok, c.Name())
		assert.Equal(t, c.Name(), got.Name())
	}
	for _, name := range []string{"", "gob", "json+snappy", "msgpack+zstd"} {
		_, ok := ByName(name)
		assert.False(t, ok, name)
	}
}

func TestShardRequestSurvivesEncoding(t *testing.T) {
	root := facet.NewRoot()
	cats := facet.NewTerms("cat")
	cats.Refine = facet.RefineIterative
	tl := facet.NewTerms("brand")
	tl.TopLevel = true
	cats.Facets = map[string]*facet.Request{"tl": tl}
	root.Facets = map[string]*facet.Request{"cats": cats}

	req := &facet.ShardRequest{
		Query: "*:*",
		Facet: root,
		Pass:  2,
		Refine: map[string]*facet.Refinement{
			"cats": {
				Leaf: []any{int64(7), "x"},
				Skip: []facet.BucketRefinement{{
					Value: "book",
					Subs:  map[string]*facet.Refinement{"tl": facet.BulkCollect()},
				}},
			},
		},
	}

	for _, c := range allCodecs() {
		t.Run(c.Name(), func(t *testing.T) {
			data, err := c.Marshal(req)
			require.NoError(t, err)

			var got facet.ShardRequest
			require.NoError(t, c.Unmarshal(data, &got))

			assert.Equal(t, 2, got.Pass)
			assert.Equal(t, facet.RefineIterative, got.Facet.Facets["cats"].Refine)
			assert.True(t, got.Facet.Facets["cats"].Facets["tl"].TopLevel)

			r := got.Refine["cats"]
			require.NotNil(t, r)
			assert.Equal(t, []any{int64(7), "x"}, r.Leaf)
			require.Len(t, r.Skip, 1)
			assert.Equal(t, "book", r.Skip[0].Value)
			assert.True(t, r.Skip[0].Subs["tl"].IsBulkCollect())
		})
	}
}

func TestCompressionShrinksBucketLists(t *testing.T) {
	res := &facet.FacetResult{More: true}
	for i := range 500 {
		res.Buckets = append(res.Buckets, &facet.BucketResult{Value: fmt.Sprintf("value-%04d", i), Count: int64(i % 7)})
	}
	plain := MustMarshal(GoJSON{}, res)

	for _, c := range []Codec{Zstd(GoJSON{}), LZ4(GoJSON{})} {
		data := MustMarshal(c, res)
		assert.Less(t, len(data), len(plain), c.Name())

		var got facet.FacetResult
		require.NoError(t, c.Unmarshal(data, &got))
		require.Len(t, got.Buckets, 500)
		assert.Equal(t, "value-0499", got.Buckets[499].Value)
		assert.True(t, got.More)
	}
}

func TestCompressionStoresSmallPayloadsRaw(t *testing.T) {
	c := Zstd(GoJSON{})
	data := MustMarshal(c, 1)
	assert.Equal(t, []byte{1, 0, 0, 0, 0, 0, 0, 0, '1'}, data)

	var v int
	require.NoError(t, c.Unmarshal(data, &v))
	assert.Equal(t, 1, v)
}

func TestCompressionCorrupt(t *testing.T) {
	var v any
	for _, c := range []Codec{Zstd(GoJSON{}), LZ4(GoJSON{})} {
		assert.ErrorIs(t, c.Unmarshal([]byte{1, 2}, &v), ErrCorrupt)
		assert.ErrorIs(t, c.Unmarshal([]byte{9, 0, 0, 0, 0, 0, 0, 0, 'x'}, &v), ErrCorrupt)
		assert.ErrorIs(t, c.Unmarshal([]byte{9, 0, 0, 0, 4, 0, 0, 0, 1, 2, 3, 4}, &v), ErrCorrupt)
	}
}
