package minrec

import (
	"context"
	"fmt"
	"io"

	"github.com/hupe1980/minrec/blobstore"
	"github.com/hupe1980/minrec/codec"
	"github.com/hupe1980/minrec/stash"
)

// Candidate is one recommended item with its similarity score.
type Candidate struct {
	Item  string  `json:"item"`
	Score float32 `json:"score"`
}

// Recommendation holds one item's candidates in descending score order.
type Recommendation struct {
	Item       string      `json:"item"`
	Candidates []Candidate `json:"recommendations"`
}

// Results is the output of a pipeline run. It owns the run's temporary
// files; Close releases them and invalidates all iterators.
//
// Items appear in ascending key order, candidates within an item in
// descending score order. Items with no positively scored candidate are
// absent.
type Results struct {
	t        *stash.Tracker
	rows     *stash.Stash[recRow]
	codec    codec.Codec
	logger   *Logger
	numItems int64
	closed   bool
}

// Iter opens a fresh iterator over the recommendations. Multiple iterators
// may be open at once; each replays from the first item.
func (r *Results) Iter() (*ResultIterator, error) {
	if r.closed {
		return nil, ErrResultsClosed
	}
	it, err := r.rows.Iter()
	if err != nil {
		return nil, err
	}
	return &ResultIterator{it: it}, nil
}

// Export writes every recommendation to w as one JSON document per line.
func (r *Results) Export(ctx context.Context, w io.Writer) error {
	it, err := r.Iter()
	if err != nil {
		return err
	}
	defer it.Close()

	for it.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}

		b, err := r.codec.Marshal(it.Recommendation())
		if err != nil {
			return fmt.Errorf("minrec: marshal recommendation: %w", err)
		}
		if _, err := w.Write(append(b, '\n')); err != nil {
			return fmt.Errorf("minrec: export: %w", err)
		}
	}
	return it.Err()
}

// Persist copies the raw result rows to durable storage under the given
// name. The blob is the stash's own compressed on-disk format; use Export
// for an interchange format.
func (r *Results) Persist(ctx context.Context, store blobstore.Store, name string) error {
	if r.closed {
		return ErrResultsClosed
	}
	err := r.rows.Persist(ctx, store, name)
	r.logger.LogPersist(ctx, name, err)
	return err
}

// Close removes the run's temporary files. Safe to call more than once.
func (r *Results) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.t.Close()
}

// ResultIterator groups the flat result rows back into per-item
// recommendations. It follows the same protocol as stash.Iterator: Next
// advances, Recommendation returns the current group, Err reports the
// first failure after Next returns false.
type ResultIterator struct {
	it      *stash.Iterator[recRow]
	current Recommendation
	pending *recRow
	done    bool
}

// Next advances to the next item. The rows arrive grouped by item, so one
// group ends where the item key changes; the first row of the next group is
// held over for the following call.
func (ri *ResultIterator) Next() bool {
	if ri.done {
		return false
	}

	var rec Recommendation
	if ri.pending != nil {
		rec.Item = ri.pending.Item
		rec.Candidates = append(rec.Candidates, Candidate{Item: ri.pending.Candidate, Score: ri.pending.Score})
		ri.pending = nil
	}

	for ri.it.Next() {
		row := ri.it.Row()
		if rec.Candidates == nil {
			rec.Item = row.Item
		} else if row.Item != rec.Item {
			ri.pending = &row
			ri.current = rec
			return true
		}
		rec.Candidates = append(rec.Candidates, Candidate{Item: row.Candidate, Score: row.Score})
	}

	ri.done = true
	if ri.it.Err() != nil || rec.Candidates == nil {
		return false
	}
	ri.current = rec
	return true
}

// Recommendation returns the group read by the last successful Next.
func (ri *ResultIterator) Recommendation() Recommendation {
	return ri.current
}

// Err returns the first error encountered during iteration, if any.
func (ri *ResultIterator) Err() error {
	return ri.it.Err()
}

// Close releases the underlying row iterator.
func (ri *ResultIterator) Close() error {
	return ri.it.Close()
}
