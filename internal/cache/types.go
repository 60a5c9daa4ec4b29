package cache

// Cache is a size-bounded cache of immutable values.
// Returned values must be treated as read-only.
type Cache[K comparable, V any] interface {
	// Get returns a cached value. ok=false if missing.
	Get(key K) (v V, ok bool)
	// Set caches v, charging size bytes against the capacity.
	Set(key K, v V, size int64)
	// Invalidate removes entries matching the predicate.
	Invalidate(predicate func(key K) bool)
	// Stats returns cache statistics.
	Stats() (hits, misses int64)
	// Size returns the bytes charged by cached values.
	Size() int64
}
