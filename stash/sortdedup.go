package stash

import (
	"bytes"
	"container/heap"
	"context"
	"fmt"
	"io"
	"sort"
)

// SortDedup returns a new stash holding the rows of s in encoded-byte order
// with exact duplicates removed. With reverse set, rows are emitted in
// descending order; deduplication is unaffected.
//
// The sort is external: rows are gathered into bounded in-memory runs (see
// WithRunBytes), each run is sorted and spilled to its own backing file, and
// the runs are merged through a loser heap. Peak memory is one run plus one
// row per spill file.
func (s *Stash[T]) SortDedup(ctx context.Context, reverse bool) (*Stash[T], error) {
	runs, err := s.spillRuns(ctx, reverse)
	if err != nil {
		return nil, err
	}
	return mergeRuns(ctx, s.t, s.codec, runs, reverse)
}

// spillRuns splits the stash into sorted run files.
func (s *Stash[T]) spillRuns(ctx context.Context, reverse bool) ([]*Stash[T], error) {
	it, err := s.Iter()
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var (
		runs    []*Stash[T]
		rows    [][]byte
		pending int
	)

	flush := func() error {
		if len(rows) == 0 {
			return nil
		}
		sortEncoded(rows, reverse)

		w, err := Create(ctx, s.t, s.codec)
		if err != nil {
			return err
		}
		for _, row := range rows {
			if err := w.writeEncoded(row); err != nil {
				w.Discard()
				return err
			}
		}
		run, err := w.Close()
		if err != nil {
			return err
		}

		runs = append(runs, run)
		rows = rows[:0]
		pending = 0
		return nil
	}

	for {
		b, err := it.nextEncoded()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		rows = append(rows, bytes.Clone(b))
		pending += len(b)

		if pending >= s.t.runBytes {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}

	if err := flush(); err != nil {
		return nil, err
	}

	return runs, nil
}

func sortEncoded(rows [][]byte, reverse bool) {
	sort.Slice(rows, func(i, j int) bool {
		c := bytes.Compare(rows[i], rows[j])
		if reverse {
			return c > 0
		}
		return c < 0
	})
}

// mergeRuns merges sorted runs into a single deduplicated stash.
func mergeRuns[T any](ctx context.Context, t *Tracker, codec Codec[T], runs []*Stash[T], reverse bool) (*Stash[T], error) {
	out, err := Create(ctx, t, codec)
	if err != nil {
		return nil, err
	}

	h := &runHeap[T]{reverse: reverse}
	defer func() {
		for _, e := range h.entries {
			e.it.Close()
		}
	}()

	for _, run := range runs {
		it, err := run.Iter()
		if err != nil {
			out.Discard()
			return nil, err
		}
		row, err := it.nextEncoded()
		if err == io.EOF {
			it.Close()
			continue
		}
		if err != nil {
			it.Close()
			out.Discard()
			return nil, err
		}
		h.entries = append(h.entries, &runEntry[T]{it: it, row: bytes.Clone(row)})
	}
	heap.Init(h)

	var last []byte
	first := true
	for h.Len() > 0 {
		e := h.entries[0]

		if first || !bytes.Equal(e.row, last) {
			if err := out.writeEncoded(e.row); err != nil {
				out.Discard()
				return nil, err
			}
			last = append(last[:0], e.row...)
			first = false
		}

		next, err := e.it.nextEncoded()
		if err == io.EOF {
			e.it.Close()
			heap.Pop(h)
			continue
		}
		if err != nil {
			out.Discard()
			return nil, fmt.Errorf("stash: merge run: %w", err)
		}
		e.row = append(e.row[:0], next...)
		heap.Fix(h, 0)
	}
	h.entries = nil

	return out.Close()
}

// runEntry is one merge source: an open run iterator and its current row.
type runEntry[T any] struct {
	it  *Iterator[T]
	row []byte
}

// runHeap orders run entries by their current row so the merge always emits
// the globally next row.
type runHeap[T any] struct {
	entries []*runEntry[T]
	reverse bool
}

func (h *runHeap[T]) Len() int { return len(h.entries) }

func (h *runHeap[T]) Less(i, j int) bool {
	c := bytes.Compare(h.entries[i].row, h.entries[j].row)
	if h.reverse {
		return c > 0
	}
	return c < 0
}

func (h *runHeap[T]) Swap(i, j int) {
	h.entries[i], h.entries[j] = h.entries[j], h.entries[i]
}

func (h *runHeap[T]) Push(x any) {
	h.entries = append(h.entries, x.(*runEntry[T]))
}

func (h *runHeap[T]) Pop() any {
	old := h.entries
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	h.entries = old[:n-1]
	return e
}
