package codec

import (
	"fmt"
	"testing"

	"github.com/hupe1980/facetgo/facet"
)

func benchmarkCodecMarshal(b *testing.B, c Codec, v any) {
	b.Helper()
	b.ReportAllocs()

	warm, err := c.Marshal(v)
	if err != nil {
		b.Fatal(err)
	}
	b.SetBytes(int64(len(warm)))

	var sink []byte
	b.ResetTimer()
	for b.Loop() {
		out, err := c.Marshal(v)
		if err != nil {
			b.Fatal(err)
		}
		sink = out
	}
	_ = sink
}

func benchmarkCodecUnmarshal[T any](b *testing.B, c Codec, data []byte, dst *T) {
	b.Helper()
	b.ReportAllocs()
	b.SetBytes(int64(len(data)))

	var v T
	b.ResetTimer()
	for b.Loop() {
		if err := c.Unmarshal(data, &v); err != nil {
			b.Fatal(err)
		}
	}
	if dst != nil {
		*dst = v
	}
}

func benchResult() *facet.BucketResult {
	cats := &facet.FacetResult{More: true}
	for i := range 200 {
		brands := &facet.FacetResult{}
		for j := range 5 {
			brands.Buckets = append(brands.Buckets, &facet.BucketResult{Value: fmt.Sprintf("brand-%d", j), Count: int64(j + 1)})
		}
		cats.Buckets = append(cats.Buckets, &facet.BucketResult{
			Value: fmt.Sprintf("cat-%03d", i),
			Count: int64(1000 - i),
			Stats: map[string]float64{"max": float64(i) * 1.5},
			Subs:  map[string]*facet.FacetResult{"brands": brands},
		})
	}
	return &facet.BucketResult{Count: 100000, Subs: map[string]*facet.FacetResult{"cats": cats}}
}

func BenchmarkCodec_Marshal_Result(b *testing.B) {
	res := benchResult()
	for _, c := range allCodecs() {
		b.Run(c.Name(), func(b *testing.B) { benchmarkCodecMarshal(b, c, res) })
	}
}

func BenchmarkCodec_Unmarshal_Result(b *testing.B) {
	res := benchResult()
	for _, c := range allCodecs() {
		data := MustMarshal(c, res)
		b.Run(c.Name(), func(b *testing.B) {
			var sink facet.BucketResult
			benchmarkCodecUnmarshal(b, c, data, &sink)
			_ = sink
		})
	}
}
