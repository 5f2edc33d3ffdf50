package resource

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestController_Memory(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 100})

	require.NoError(t, c.TryAcquireMemory(50))
	assert.Equal(t, int64(50), c.MemoryUsage())

	require.NoError(t, c.AcquireMemory(context.Background(), 40))
	assert.Equal(t, int64(90), c.MemoryUsage())

	// Would exceed the limit
	assert.ErrorIs(t, c.TryAcquireMemory(20), ErrMemoryLimitExceeded)
	assert.Equal(t, int64(90), c.MemoryUsage())

	// Blocks until the deadline
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.AcquireMemory(ctx, 20), context.DeadlineExceeded)

	// Larger than the whole budget
	assert.ErrorIs(t, c.AcquireMemory(context.Background(), 101), ErrMemoryLimitExceeded)

	c.ReleaseMemory(50)
	assert.Equal(t, int64(40), c.MemoryUsage())

	require.NoError(t, c.TryAcquireMemory(20))
	assert.Equal(t, int64(60), c.MemoryUsage())
	assert.Equal(t, int64(90), c.PeakMemoryUsage())
}

func TestController_UnlimitedMemory(t *testing.T) {
	c := NewController(Config{})

	require.NoError(t, c.TryAcquireMemory(1000))
	require.NoError(t, c.AcquireMemory(context.Background(), 1000))
	assert.Equal(t, int64(2000), c.MemoryUsage())

	c.ReleaseMemory(500)
	assert.Equal(t, int64(1500), c.MemoryUsage())
}

func TestController_Contexts(t *testing.T) {
	c := NewController(Config{MaxContexts: 2})

	require.NoError(t, c.TryAcquireContext())
	require.NoError(t, c.TryAcquireContext())
	assert.ErrorIs(t, c.TryAcquireContext(), ErrTooManyContexts)
	assert.Equal(t, int64(2), c.OpenContexts())

	c.ReleaseContext()
	require.NoError(t, c.TryAcquireContext())
}

func TestController_Nil(t *testing.T) {
	var c *Controller

	require.NoError(t, c.TryAcquireMemory(1<<40))
	require.NoError(t, c.AcquireMemory(context.Background(), 1<<40))
	require.NoError(t, c.TryAcquireContext())
	c.ReleaseMemory(1 << 40)
	c.ReleaseContext()
	assert.Zero(t, c.MemoryUsage())
	assert.Zero(t, c.OpenContexts())
	assert.Equal(t, Config{}, c.Config())
}

func TestController_Concurrent(t *testing.T) {
	const (
		workers = 8
		rounds  = 200
		chunk   = 16
	)
	c := NewController(Config{MemoryLimitBytes: workers * chunk})

	var g errgroup.Group
	for range workers {
		g.Go(func() error {
			for range rounds {
				if err := c.AcquireMemory(context.Background(), chunk); err != nil {
					return err
				}
				c.ReleaseMemory(chunk)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Zero(t, c.MemoryUsage())
	assert.LessOrEqual(t, c.PeakMemoryUsage(), int64(workers*chunk))
}
