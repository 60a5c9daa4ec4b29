package facetgo_test

import (
	"context"
	"fmt"
	"log"

	"github.com/hupe1980/facetgo"
	"github.com/hupe1980/facetgo/codec"
	"github.com/hupe1980/facetgo/facet"
	"github.com/hupe1980/facetgo/shard"
)

func newShard(name string, docs ...shard.Doc) *shard.Shard {
	b := shard.NewBuilder()
	for _, d := range docs {
		if _, err := b.Add(d); err != nil {
			log.Fatal(err)
		}
	}
	return shard.New(b.Build(), shard.WithName(name))
}

func exampleShards() []*shard.Shard {
	return []*shard.Shard{
		newShard("s0",
			shard.Doc{"cat": "book", "price": 12.0},
			shard.Doc{"cat": "book", "price": 8.0},
			shard.Doc{"cat": "book", "price": 15.0},
			shard.Doc{"cat": "music", "price": 9.0},
		),
		newShard("s1",
			shard.Doc{"cat": "music", "price": 11.0},
			shard.Doc{"cat": "music", "price": 7.0},
			shard.Doc{"cat": "film", "price": 20.0},
		),
	}
}

// Example_facet demonstrates a refined terms facet across two shards.
func Example_facet() {
	coord, err := facetgo.NewFromShards(exampleShards())
	if err != nil {
		log.Fatal(err)
	}

	req := facetgo.Root().
		Sub("cats", facetgo.Terms("cat").
			Limit(2).
			Refine(facet.RefineSimple).
			Stat("revenue", facet.StatSum, "price")).
		MustBuild()

	res, err := coord.Facet(context.Background(), &facetgo.Query{Facet: req})
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("status:", res.Status)
	for _, b := range res.Facets.Sub("cats").Buckets {
		fmt.Printf("%s: %d (revenue %.0f)\n", b.Value, b.Count, b.Stats["revenue"])
	}
	// Output:
	// status: success
	// book: 3 (revenue 35)
	// music: 3 (revenue 27)
}

// Example_filters demonstrates a filtered request sent over an encoded transport.
func Example_filters() {
	coord, err := facetgo.NewFromShards(exampleShards(),
		facetgo.WithCodec(codec.Zstd(codec.GoJSON{})),
	)
	if err != nil {
		log.Fatal(err)
	}

	res, err := coord.Facet(context.Background(), &facetgo.Query{
		Filters: []facet.TaggedFilter{{Query: "cat:[f TO m]"}},
		Facet:   facetgo.Root().Sub("cats", facetgo.Terms("cat")).MustBuild(),
	})
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("documents:", res.Facets.Count)
	for _, b := range res.Facets.Sub("cats").Buckets {
		fmt.Printf("%s: %d\n", b.Value, b.Count)
	}
	// Output:
	// documents: 1
	// film: 1
}

// Example_metrics demonstrates collecting request metrics.
func Example_metrics() {
	metrics := &facetgo.BasicMetricsCollector{}
	coord, err := facetgo.NewFromShards(exampleShards(),
		facetgo.WithMetricsCollector(metrics),
	)
	if err != nil {
		log.Fatal(err)
	}

	req := facetgo.Root().Sub("cats", facetgo.Terms("cat")).MustBuild()
	for range 3 {
		if _, err := coord.Facet(context.Background(), &facetgo.Query{Facet: req}); err != nil {
			log.Fatal(err)
		}
	}

	stats := metrics.GetStats()
	fmt.Println("facets:", stats.FacetCount)
	fmt.Println("errors:", stats.FacetErrors)
	// Output:
	// facets: 3
	// errors: 0
}
