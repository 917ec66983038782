package resource

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController(t *testing.T) {
	ctx := context.Background()

	t.Run("NilControllerIsNoop", func(t *testing.T) {
		var c *Controller

		assert.NoError(t, c.AcquireIO(ctx, 1<<20))
		assert.NoError(t, c.AcquireWorker(ctx))
		c.ReleaseWorker()
		assert.NoError(t, c.CheckDiskSpace(t.TempDir()))
	})

	t.Run("UnlimitedIO", func(t *testing.T) {
		c := NewController(Config{})
		assert.NoError(t, c.AcquireIO(ctx, 100<<20))
	})

	t.Run("IOThrottle", func(t *testing.T) {
		// 1 MiB/s with a burst of the same size: the second MiB has to wait.
		c := NewController(Config{IOLimitBytesPerSec: 1 << 20})

		require.NoError(t, c.AcquireIO(ctx, 1<<20))

		shortCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()
		assert.Error(t, c.AcquireIO(shortCtx, 1<<20))
	})

	t.Run("WorkerSlots", func(t *testing.T) {
		c := NewController(Config{MaxWorkers: 2})

		require.NoError(t, c.AcquireWorker(ctx))
		require.NoError(t, c.AcquireWorker(ctx))

		shortCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()
		assert.Error(t, c.AcquireWorker(shortCtx))

		c.ReleaseWorker()
		assert.NoError(t, c.AcquireWorker(ctx))
	})

	t.Run("DiskSpaceCheckDisabled", func(t *testing.T) {
		c := NewController(Config{})
		assert.NoError(t, c.CheckDiskSpace(t.TempDir()))
	})

	t.Run("DiskSpaceSatisfied", func(t *testing.T) {
		c := NewController(Config{MinFreeBytes: 1})
		assert.NoError(t, c.CheckDiskSpace(t.TempDir()))
	})

	t.Run("DiskSpaceInsufficient", func(t *testing.T) {
		c := NewController(Config{MinFreeBytes: math.MaxUint64})
		assert.ErrorIs(t, c.CheckDiskSpace(t.TempDir()), ErrInsufficientDiskSpace)
	})
}
