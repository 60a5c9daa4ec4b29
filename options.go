package facetgo

import (
	"log/slog"
	"time"

	"github.com/hupe1980/facetgo/codec"
	"github.com/hupe1980/facetgo/resource"
)

// DefaultMaxPasses bounds the refinement passes of one request.
const DefaultMaxPasses = 10

type options struct {
	codec            codec.Codec
	metricsCollector MetricsCollector
	logger           *Logger
	maxPasses        int
	shardTimeout     time.Duration
	concurrency      int
	rc               *resource.Controller
}

// Option configures a Coordinator.
type Option func(*options)

// WithCodec makes NewFromShards reach its shards through transport.Wire
// with codec c instead of calling them in process.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithMaxPasses bounds the number of passes, the initial pass included.
// Refinement still pending after the last pass is dropped and the result is
// marked as not converged.
//
// Values < 1 restore DefaultMaxPasses.
func WithMaxPasses(n int) Option {
	return func(o *options) {
		if n < 1 {
			n = DefaultMaxPasses
		}
		o.maxPasses = n
	}
}

// WithShardTimeout bounds every shard request. A shard exceeding it is
// treated as failed for the request. Zero disables the timeout.
func WithShardTimeout(d time.Duration) Option {
	return func(o *options) {
		o.shardTimeout = d
	}
}

// WithConcurrency limits the shard requests one pass runs in parallel.
// n <= 0 means one goroutine per shard.
func WithConcurrency(n int) Option {
	return func(o *options) {
		o.concurrency = n
	}
}

// WithResourceController shares rc between coordinators. It gates the
// number of shard requests in flight and their rate; Wire clients created
// by NewFromShards are also throttled by its IO limit.
//
// Example:
//
//	rc := resource.NewController(resource.Config{
//	    MaxConcurrentRequests: 16,
//	    RequestsPerSec:        500,
//	})
//	coord, _ := facetgo.New(clients, facetgo.WithResourceController(rc))
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.rc = rc
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &facetgo.BasicMetricsCollector{}
//	coord, _ := facetgo.New(clients, facetgo.WithMetricsCollector(metrics))
//	// ... use coord ...
//	stats := metrics.GetStats()
//	fmt.Printf("Facets: %d, Avg latency: %dns\n", stats.FacetCount, stats.FacetAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := facetgo.NewJSONLogger(slog.LevelInfo)
//	coord, _ := facetgo.New(clients, facetgo.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		codec:            nil,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		maxPasses:        DefaultMaxPasses,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
