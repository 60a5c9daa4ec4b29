// Package cache provides size-bounded LRU caches.
//
// # Filter Cache
//
// ShardedLRU caches immutable values, typically resolved document sets keyed
// by query string. It spreads keys over 16 shards to reduce lock contention.
//
// Key features:
//   - Shard selection with hash/maphash over the comparable key
//   - Per-shard mutex for minimal contention
//   - Integrated with resource.Controller for memory limits
package cache
