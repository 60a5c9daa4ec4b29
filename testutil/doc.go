// Package testutil provides testing utilities for facetgo.
//
// This package is intended for use in tests and benchmarks only.
// It provides a seeded, thread-safe RNG and generators for document
// subsets, segment layouts and skewed term distributions.
//
//	rng := testutil.NewRNG(seed)
//	docs := rng.Docs(1000, 0.1)          // ascending ordinals, ~10% density
//	lens := rng.Segments(1000, 4)        // four contiguous segment lengths
//	terms := rng.ZipfTerms(1000, 50, 1.2)
package testutil
