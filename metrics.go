package facetgo

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// A MetricsCollector also satisfies shard.MismatchRecorder and can be handed
// to shard.WithMismatchRecorder.
type MetricsCollector interface {
	// RecordFacet is called after each facet request.
	// passes is the number of passes run, err is nil if successful.
	RecordFacet(passes int, duration time.Duration, err error)

	// RecordPass is called when a pass is sent to shards.
	RecordPass(pass, shards int)

	// RecordShardRequest is called after each shard request.
	RecordShardRequest(shard string, duration time.Duration, err error)

	// RecordTypeMismatch is called when a shard sees augmentation values of
	// the wrong kind.
	RecordTypeMismatch(field string)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordFacet(int, time.Duration, error)           {}
func (NoopMetricsCollector) RecordPass(int, int)                             {}
func (NoopMetricsCollector) RecordShardRequest(string, time.Duration, error) {}
func (NoopMetricsCollector) RecordTypeMismatch(string)                       {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	FacetCount        atomic.Int64
	FacetErrors       atomic.Int64
	FacetTotalNanos   atomic.Int64
	PassCount         atomic.Int64
	RefinementPasses  atomic.Int64
	ShardRequests     atomic.Int64
	ShardErrors       atomic.Int64
	ShardTotalNanos   atomic.Int64
	TypeMismatchCount atomic.Int64
}

// RecordFacet implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFacet(passes int, duration time.Duration, err error) {
	b.FacetCount.Add(1)
	b.FacetTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.FacetErrors.Add(1)
	}
}

// RecordPass implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPass(pass, shards int) {
	b.PassCount.Add(1)
	if pass > 0 {
		b.RefinementPasses.Add(1)
	}
}

// RecordShardRequest implements MetricsCollector.
func (b *BasicMetricsCollector) RecordShardRequest(shard string, duration time.Duration, err error) {
	b.ShardRequests.Add(1)
	b.ShardTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.ShardErrors.Add(1)
	}
}

// RecordTypeMismatch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordTypeMismatch(field string) {
	b.TypeMismatchCount.Add(1)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		FacetCount:        b.FacetCount.Load(),
		FacetErrors:       b.FacetErrors.Load(),
		FacetAvgNanos:     avg(b.FacetTotalNanos.Load(), b.FacetCount.Load()),
		PassCount:         b.PassCount.Load(),
		RefinementPasses:  b.RefinementPasses.Load(),
		ShardRequests:     b.ShardRequests.Load(),
		ShardErrors:       b.ShardErrors.Load(),
		ShardAvgNanos:     avg(b.ShardTotalNanos.Load(), b.ShardRequests.Load()),
		TypeMismatchCount: b.TypeMismatchCount.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	FacetCount        int64
	FacetErrors       int64
	FacetAvgNanos     int64
	PassCount         int64
	RefinementPasses  int64
	ShardRequests     int64
	ShardErrors       int64
	ShardAvgNanos     int64
	TypeMismatchCount int64
}
