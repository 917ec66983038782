// Package resource bounds the footprint of a pipeline run: spill-file write
// throughput, concurrent similarity workers, and a free-space guard on the
// work directory.
package resource

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrInsufficientDiskSpace is returned by CheckDiskSpace when the work
// directory's file system has less free space than configured.
var ErrInsufficientDiskSpace = errors.New("resource: insufficient disk space")

// Config holds resource limits. Zero values disable the corresponding limit.
type Config struct {
	// IOLimitBytesPerSec caps the rate at which stash rows are spilled to
	// disk. If 0, unlimited.
	IOLimitBytesPerSec int64

	// MaxWorkers is the maximum number of concurrent similarity rounds.
	// If 0, defaults to 1.
	MaxWorkers int64

	// MinFreeBytes is the free space required on the work directory's file
	// system before a run starts. If 0, no check is performed.
	MinFreeBytes uint64
}

// Controller manages the resources of a single run.
type Controller struct {
	cfg Config

	workerSem *semaphore.Weighted
	ioLimiter *rate.Limiter
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 1
	}

	c := &Controller{
		cfg:       cfg,
		workerSem: semaphore.NewWeighted(cfg.MaxWorkers),
	}

	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}

	return c
}

// AcquireIO waits until the IO limit allows the specified number of bytes.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c == nil || c.ioLimiter == nil {
		return nil
	}
	return c.ioLimiter.WaitN(ctx, bytes)
}

// AcquireWorker reserves a worker slot, blocking while all slots are busy.
func (c *Controller) AcquireWorker(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.workerSem.Acquire(ctx, 1)
}

// ReleaseWorker releases a worker slot.
func (c *Controller) ReleaseWorker() {
	if c == nil {
		return
	}
	c.workerSem.Release(1)
}

// CheckDiskSpace verifies the file system holding dir has at least
// MinFreeBytes available.
func (c *Controller) CheckDiskSpace(dir string) error {
	if c == nil || c.cfg.MinFreeBytes == 0 {
		return nil
	}

	free, err := freeBytes(dir)
	if err != nil {
		return fmt.Errorf("resource: stat %q: %w", dir, err)
	}
	if free < c.cfg.MinFreeBytes {
		return fmt.Errorf("%w: %d bytes free on %q, need %d",
			ErrInsufficientDiskSpace, free, dir, c.cfg.MinFreeBytes)
	}
	return nil
}
