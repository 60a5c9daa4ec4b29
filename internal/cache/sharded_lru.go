package cache

import (
	"hash/maphash"
	"sync"

	"github.com/hupe1980/facetgo/resource"
)

const numShards = 16

// Compile time check to ensure ShardedLRU satisfies the Cache interface.
var _ Cache[string, int] = (*ShardedLRU[string, int])(nil)

// ShardedLRU is a sharded LRU cache for concurrent workloads.
type ShardedLRU[K comparable, V any] struct {
	shards [numShards]*LRU[K, V]
	seed   maphash.Seed
}

// NewShardedLRU creates a new sharded LRU cache.
// The capacity is divided evenly across all shards.
func NewShardedLRU[K comparable, V any](capacity int64, rc *resource.Controller) *ShardedLRU[K, V] {
	shardCapacity := max(capacity/numShards, 1)

	s := &ShardedLRU[K, V]{
		seed: maphash.MakeSeed(),
	}
	for i := range numShards {
		s.shards[i] = NewLRU[K, V](shardCapacity, rc)
	}
	return s
}

func (s *ShardedLRU[K, V]) shard(key K) *LRU[K, V] {
	return s.shards[maphash.Comparable(s.seed, key)%numShards]
}

// Get returns a cached value.
func (s *ShardedLRU[K, V]) Get(key K) (V, bool) {
	return s.shard(key).Get(key)
}

// Set caches a value.
func (s *ShardedLRU[K, V]) Set(key K, v V, size int64) {
	s.shard(key).Set(key, v, size)
}

// Invalidate removes entries matching the predicate from every shard.
func (s *ShardedLRU[K, V]) Invalidate(predicate func(key K) bool) {
	var wg sync.WaitGroup
	wg.Add(numShards)

	for i := range numShards {
		go func(shard *LRU[K, V]) {
			defer wg.Done()
			shard.Invalidate(predicate)
		}(s.shards[i])
	}

	wg.Wait()
}

// Stats returns aggregated hit/miss statistics.
func (s *ShardedLRU[K, V]) Stats() (hits, misses int64) {
	for i := range numShards {
		h, m := s.shards[i].Stats()
		hits += h
		misses += m
	}
	return hits, misses
}

// Size returns the total size across all shards.
func (s *ShardedLRU[K, V]) Size() int64 {
	var total int64
	for i := range numShards {
		total += s.shards[i].Size()
	}
	return total
}

// Len returns the number of cached values across all shards.
func (s *ShardedLRU[K, V]) Len() int {
	var total int
	for i := range numShards {
		total += s.shards[i].Len()
	}
	return total
}
