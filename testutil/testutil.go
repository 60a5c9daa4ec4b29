package testutil

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Float64 returns a pseudo-random number in [0.0,1.0).
func (r *RNG) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float64()
}

// Docs returns an ascending random subset of [0, maxDoc) where every ordinal
// is included with probability density.
func (r *RNG) Docs(maxDoc int, density float64) []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]int, 0, int(float64(maxDoc)*density)+1)
	for d := 0; d < maxDoc; d++ {
		if r.rand.Float64() < density {
			out = append(out, d)
		}
	}
	return out
}

// Clustered returns an ascending subset of [0, maxDoc) made of runs of
// adjacent ordinals, which exercises word boundaries in bit vectors.
func (r *RNG) Clustered(maxDoc, runs, runLen int) []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[int]struct{})
	for range runs {
		start := r.rand.Intn(max(1, maxDoc))
		for d := start; d < min(maxDoc, start+runLen); d++ {
			seen[d] = struct{}{}
		}
	}
	out := make([]int, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Ints(out)
	return out
}

// Segments splits maxDoc documents into n contiguous segment lengths.
// Some segments may be empty.
func (r *RNG) Segments(maxDoc, n int) []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cuts := make([]int, 0, n+1)
	cuts = append(cuts, 0, maxDoc)
	for range n - 1 {
		cuts = append(cuts, r.rand.Intn(maxDoc+1))
	}
	sort.Ints(cuts)
	lens := make([]int, n)
	for i := range n {
		lens[i] = cuts[i+1] - cuts[i]
	}
	return lens
}

// Zipf returns a Zipfian-distributed value in [0, n).
// Uses Zipf's law: P(k) ∝ 1/k^s where s is the skew parameter.
func (r *RNG) Zipf(n int, s float64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.zipfLocked(n, s)
}

// zipfLocked is the internal implementation (caller must hold lock).
func (r *RNG) zipfLocked(n int, s float64) int {
	if n <= 1 {
		return 0
	}

	var hns float64
	for i := 1; i <= n; i++ {
		hns += 1.0 / math.Pow(float64(i), s)
	}

	u := r.rand.Float64() * hns
	var cumulative float64
	for k := 1; k <= n; k++ {
		cumulative += 1.0 / math.Pow(float64(k), s)
		if u <= cumulative {
			return k - 1
		}
	}

	return n - 1
}

// ZipfTerms generates n term values drawn from a vocabulary of size vocab
// with a Zipfian distribution. Terms are named "t0", "t1", ...
func (r *RNG) ZipfTerms(n, vocab int, s float64) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, n)
	for i := range n {
		out[i] = fmt.Sprintf("t%d", r.zipfLocked(vocab, s))
	}
	return out
}

// SegmentLocalSkewTerms generates term assignments that are globally uniform
// but where each partition of numDocs/partitions documents is dominated by one
// term. Sharding such data produces per-shard top-K lists that disagree with
// the global top-K, which forces refinement.
func (r *RNG) SegmentLocalSkewTerms(numDocs, vocab, partitions int, localDominance float64) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, numDocs)
	size := max(1, numDocs/partitions)
	for i := range numDocs {
		p := min(i/size, partitions-1)
		dominant := p % vocab
		term := dominant
		if vocab > 1 && r.rand.Float64() >= localDominance {
			term = r.rand.Intn(vocab - 1)
			if term >= dominant {
				term++
			}
		}
		out[i] = fmt.Sprintf("t%d", term)
	}
	return out
}
