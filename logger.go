package facetgo

import (
	"context"
	"log/slog"
	"os"
)

// Logger is the structured logger of a Coordinator. Every record carries
// the same keys: shard, pass, passes and error.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a Logger writing to handler. A nil handler logs text at
// info level to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewJSONLogger creates a Logger writing JSON records at or above level to
// stderr.
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewTextLogger creates a Logger writing text records at or above level to
// stderr.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NoopLogger creates a Logger that discards everything.
func NoopLogger() *Logger {
	return NewLogger(slog.DiscardHandler)
}

// WithShard returns a Logger that tags every record with the shard name.
func (l *Logger) WithShard(name string) *Logger {
	return &Logger{Logger: l.With("shard", name)}
}

// WithPass returns a Logger that tags every record with the pass.
func (l *Logger) WithPass(pass int) *Logger {
	return &Logger{Logger: l.With("pass", pass)}
}

// LogPass logs the start of a pass.
func (l *Logger) LogPass(ctx context.Context, pass, shards int) {
	l.WithPass(pass).DebugContext(ctx, "facet pass started", "shards", shards)
}

// LogShardFailure logs a shard that did not answer a pass.
func (l *Logger) LogShardFailure(ctx context.Context, shard string, pass int, err error) {
	l.WithShard(shard).WithPass(pass).WarnContext(ctx, "shard request failed", "error", err)
}

// LogFacet logs a finished facet request.
func (l *Logger) LogFacet(ctx context.Context, passes, failedShards int, err error) {
	switch {
	case err != nil:
		l.ErrorContext(ctx, "facet request failed",
			"passes", passes,
			"error", err,
		)
	case failedShards > 0:
		l.WarnContext(ctx, "facet request completed with shard failures",
			"passes", passes,
			"failed_shards", failedShards,
		)
	default:
		l.DebugContext(ctx, "facet request completed",
			"passes", passes,
		)
	}
}
