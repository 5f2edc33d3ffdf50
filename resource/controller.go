package resource

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

var (
	// ErrMemoryLimitExceeded is returned when a reservation would exceed the memory limit.
	ErrMemoryLimitExceeded = errors.New("memory limit exceeded")
	// ErrTooManyContexts is returned when the open context limit is reached.
	ErrTooManyContexts = errors.New("too many open contexts")
)

// Config holds resource limits shared by all contexts using a Controller.
type Config struct {
	// MemoryLimitBytes is the hard limit for arena buffers.
	// If 0, no hard limit is enforced (only tracking).
	MemoryLimitBytes int64

	// MaxContexts is the maximum number of simultaneously open contexts.
	// If 0, unlimited.
	MaxContexts int64
}

// Controller manages memory and context slots across contexts.
// A nil *Controller imposes no limits.
type Controller struct {
	cfg Config

	// Memory
	memSem  *semaphore.Weighted // nil if unlimited
	memUsed atomic.Int64
	memPeak atomic.Int64

	// Contexts
	ctxSem  *semaphore.Weighted // nil if unlimited
	ctxOpen atomic.Int64
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	c := &Controller{cfg: cfg}

	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}
	if cfg.MaxContexts > 0 {
		c.ctxSem = semaphore.NewWeighted(cfg.MaxContexts)
	}

	return c
}

// Config returns the configured limits.
func (c *Controller) Config() Config {
	if c == nil {
		return Config{}
	}
	return c.cfg
}

// TryAcquireMemory reserves bytes without blocking.
// Returns ErrMemoryLimitExceeded if the limit would be exceeded.
func (c *Controller) TryAcquireMemory(bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}

	if c.memSem != nil && !c.memSem.TryAcquire(bytes) {
		return ErrMemoryLimitExceeded
	}

	c.addMemory(bytes)
	return nil
}

// AcquireMemory reserves bytes, blocking until they are available or ctx is canceled.
// Requests larger than the limit fail immediately with ErrMemoryLimitExceeded.
func (c *Controller) AcquireMemory(ctx context.Context, bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}

	if c.memSem != nil {
		if bytes > c.cfg.MemoryLimitBytes {
			return ErrMemoryLimitExceeded
		}
		if err := c.memSem.Acquire(ctx, bytes); err != nil {
			return err
		}
	}

	c.addMemory(bytes)
	return nil
}

func (c *Controller) addMemory(bytes int64) {
	used := c.memUsed.Add(bytes)
	for {
		peak := c.memPeak.Load()
		if used <= peak || c.memPeak.CompareAndSwap(peak, used) {
			return
		}
	}
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

// MemoryUsage returns the current memory reservation in bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// PeakMemoryUsage returns the highest memory reservation seen.
func (c *Controller) PeakMemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memPeak.Load()
}

// TryAcquireContext reserves a context slot without blocking.
func (c *Controller) TryAcquireContext() error {
	if c == nil {
		return nil
	}
	if c.ctxSem != nil && !c.ctxSem.TryAcquire(1) {
		return ErrTooManyContexts
	}
	c.ctxOpen.Add(1)
	return nil
}

// ReleaseContext releases a context slot.
func (c *Controller) ReleaseContext() {
	if c == nil {
		return
	}
	if c.ctxSem != nil {
		c.ctxSem.Release(1)
	}
	c.ctxOpen.Add(-1)
}

// OpenContexts returns the number of context slots in use.
func (c *Controller) OpenContexts() int64 {
	if c == nil {
		return 0
	}
	return c.ctxOpen.Load()
}
