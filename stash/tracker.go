package stash

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/minrec/resource"
)

// ErrTrackerClosed is returned when a stash operation runs after Close.
var ErrTrackerClosed = errors.New("stash: tracker closed")

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithCompression sets the compression used for all backing files.
func WithCompression(c Compression) TrackerOption {
	return func(t *Tracker) { t.compression = c }
}

// WithRunBytes bounds the in-memory run size used by SortDedup. Larger runs
// mean fewer spill files and merge passes; smaller runs bound peak memory.
func WithRunBytes(n int) TrackerOption {
	return func(t *Tracker) {
		if n > 0 {
			t.runBytes = n
		}
	}
}

// WithController routes spill writes through a resource controller for IO
// throttling. Pass nil to disable.
func WithController(rc *resource.Controller) TrackerOption {
	return func(t *Tracker) { t.rc = rc }
}

// Tracker owns the backing storage of every stash created through it.
//
// It replaces ambient process-wide registries: the pipeline run that creates
// the tracker closes it, deterministically reclaiming all temporary files on
// success and on failure alike.
type Tracker struct {
	dir         string
	compression Compression
	runBytes    int
	rc          *resource.Controller

	mu     sync.Mutex
	closed bool
	seq    atomic.Uint64
}

const defaultRunBytes = 64 << 20

// NewTracker creates a fresh temporary directory under workDir. If workDir is
// empty, the OS temp directory is used.
func NewTracker(workDir string, opts ...TrackerOption) (*Tracker, error) {
	if workDir == "" {
		workDir = os.TempDir()
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("stash: create work dir: %w", err)
	}

	dir, err := os.MkdirTemp(workDir, "minrec-run-*")
	if err != nil {
		return nil, fmt.Errorf("stash: create run dir: %w", err)
	}

	t := &Tracker{
		dir:         dir,
		compression: CompressionLZ4,
		runBytes:    defaultRunBytes,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}

	return t, nil
}

// Dir returns the run directory holding all backing files.
func (t *Tracker) Dir() string {
	return t.dir
}

// Close removes the run directory and every backing file in it. Stashes
// created through the tracker are unusable afterwards.
func (t *Tracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	return os.RemoveAll(t.dir)
}

// nextPath reserves a fresh backing file path.
func (t *Tracker) nextPath(kind string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return "", ErrTrackerClosed
	}

	n := t.seq.Add(1)
	return filepath.Join(t.dir, fmt.Sprintf("%s-%06d.stash", kind, n)), nil
}
