// Package resource bounds the resources a coordinator spends on shard
// fan-out: filter cache memory, concurrent shard requests, request rate and
// transport bytes.
package resource

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds resource limits.
type Config struct {
	// MemoryLimitBytes is the hard limit for cached filter results.
	// If 0, no hard limit is enforced (only tracking).
	MemoryLimitBytes int64

	// MaxConcurrentRequests is the maximum number of shard requests in
	// flight. If 0, defaults to 8.
	MaxConcurrentRequests int64

	// RequestsPerSec limits how fast shard requests are started.
	// If 0, unlimited.
	RequestsPerSec float64

	// IOLimitBytesPerSec is the maximum throughput of encoded shard traffic.
	// If 0, unlimited.
	IOLimitBytesPerSec int64
}

// Controller manages resources shared by all requests of a coordinator.
type Controller struct {
	cfg Config

	// Memory
	memSem  *semaphore.Weighted // nil if unlimited
	memUsed atomic.Int64

	// Concurrency
	reqSem   *semaphore.Weighted
	inFlight atomic.Int64

	// Rate
	reqLimiter *rate.Limiter
	ioLimiter  *rate.Limiter
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxConcurrentRequests <= 0 {
		cfg.MaxConcurrentRequests = 8
	}

	c := &Controller{
		cfg:    cfg,
		reqSem: semaphore.NewWeighted(cfg.MaxConcurrentRequests),
	}

	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}

	if cfg.RequestsPerSec > 0 {
		burst := max(int(cfg.RequestsPerSec), 1)
		c.reqLimiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), burst)
	}

	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}

	return c
}

// Config returns the effective limits.
func (c *Controller) Config() Config { return c.cfg }

// AcquireMemory attempts to reserve memory.
// If a hard limit is configured and usage would exceed it,
// this blocks until memory is available or ctx is canceled.
func (c *Controller) AcquireMemory(ctx context.Context, bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}

	if c.memSem != nil {
		if err := c.memSem.Acquire(ctx, bytes); err != nil {
			return err
		}
	}

	c.memUsed.Add(bytes)
	return nil
}

// TryAcquireMemory attempts to reserve memory without blocking.
// Returns true if acquired, false if limit would be exceeded.
func (c *Controller) TryAcquireMemory(bytes int64) bool {
	if c == nil || bytes <= 0 {
		return true
	}

	if c.memSem != nil {
		if !c.memSem.TryAcquire(bytes) {
			return false
		}
	}

	c.memUsed.Add(bytes)
	return true
}

// ReleaseMemory releases reserved memory.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}

	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

// MemoryUsage returns the current memory usage in bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// AcquireRequest reserves a shard request slot and waits for the request
// rate limit. Blocks if all slots are busy.
func (c *Controller) AcquireRequest(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if err := c.reqSem.Acquire(ctx, 1); err != nil {
		return err
	}
	if c.reqLimiter != nil {
		if err := c.reqLimiter.Wait(ctx); err != nil {
			c.reqSem.Release(1)
			return err
		}
	}
	c.inFlight.Add(1)
	return nil
}

// TryAcquireRequest reserves a shard request slot without blocking. The rate
// limit must allow the request immediately.
func (c *Controller) TryAcquireRequest() bool {
	if c == nil {
		return true
	}
	if !c.reqSem.TryAcquire(1) {
		return false
	}
	if c.reqLimiter != nil && !c.reqLimiter.Allow() {
		c.reqSem.Release(1)
		return false
	}
	c.inFlight.Add(1)
	return true
}

// ReleaseRequest releases a shard request slot.
func (c *Controller) ReleaseRequest() {
	if c == nil {
		return
	}
	c.inFlight.Add(-1)
	c.reqSem.Release(1)
}

// InFlight returns the number of shard requests holding a slot.
func (c *Controller) InFlight() int64 {
	if c == nil {
		return 0
	}
	return c.inFlight.Load()
}

// AcquireIO waits until the IO limit allows the specified number of bytes.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c == nil || c.ioLimiter == nil {
		return nil
	}
	// WaitN rejects requests above the burst; wait in burst sized chunks.
	burst := c.ioLimiter.Burst()
	for bytes > 0 {
		n := min(bytes, burst)
		if err := c.ioLimiter.WaitN(ctx, n); err != nil {
			return err
		}
		bytes -= n
	}
	return nil
}
