package stash

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hupe1980/minrec/blobstore"
)

// Stash is a disk-backed sequence of rows. It is immutable once its Writer
// has been closed and can be iterated any number of times; every Iter call
// replays the sequence from the start.
type Stash[T any] struct {
	t     *Tracker
	codec Codec[T]
	path  string
}

// Create opens a Writer for a new stash under the tracker. The stash is not
// usable until the writer is closed.
func Create[T any](ctx context.Context, t *Tracker, codec Codec[T]) (*Writer[T], error) {
	path, err := t.nextPath("rows")
	if err != nil {
		return nil, err
	}
	return newWriter(ctx, t, codec, path)
}

// FromRows creates a stash holding the given rows in order.
func FromRows[T any](ctx context.Context, t *Tracker, codec Codec[T], rows []T) (*Stash[T], error) {
	w, err := Create(ctx, t, codec)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			w.Discard()
			return nil, err
		}
	}
	return w.Close()
}

// Iter opens a fresh iterator positioned at the first row.
func (s *Stash[T]) Iter() (*Iterator[T], error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("stash: open backing file: %w", err)
	}

	r, release, err := newDecompressor(bufio.NewReaderSize(f, 1<<16), s.t.compression)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &Iterator[T]{
		codec:   s.codec,
		r:       bufio.NewReaderSize(r, 1<<16),
		release: release,
		f:       f,
	}, nil
}

// Len counts the rows by scanning the backing file. The sequence need not
// fit in memory, so no in-memory counter is kept.
func (s *Stash[T]) Len() (int64, error) {
	it, err := s.Iter()
	if err != nil {
		return 0, err
	}
	defer it.Close()

	var n int64
	for {
		if _, err := it.nextEncoded(); err == io.EOF {
			return n, nil
		} else if err != nil {
			return 0, err
		}
		n++
	}
}

// Persist copies the stash's backing file to durable storage under the given
// name. The stash itself still belongs to the tracker and is removed with it.
func (s *Stash[T]) Persist(ctx context.Context, store blobstore.Store, name string) error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("stash: open backing file: %w", err)
	}
	defer f.Close()

	w, err := store.Create(ctx, name)
	if err != nil {
		return fmt.Errorf("stash: create blob %q: %w", name, err)
	}

	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return fmt.Errorf("stash: persist %q: %w", name, err)
	}

	return w.Close()
}

// Writer appends rows to a new stash.
type Writer[T any] struct {
	ctx     context.Context
	t       *Tracker
	codec   Codec[T]
	path    string
	f       *os.File
	buf     *bufio.Writer
	cw      io.Writer
	finish  func() error
	lenBuf  [binary.MaxVarintLen64]byte
	err     error
	done    bool
	written int64
}

func newWriter[T any](ctx context.Context, t *Tracker, codec Codec[T], path string) (*Writer[T], error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("stash: create backing file: %w", err)
	}

	buf := bufio.NewWriterSize(f, 1<<16)
	cw, finish, err := newCompressor(buf, t.compression)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &Writer[T]{
		ctx:    ctx,
		t:      t,
		codec:  codec,
		path:   path,
		f:      f,
		buf:    buf,
		cw:     cw,
		finish: finish,
	}, nil
}

// Write appends a row.
func (w *Writer[T]) Write(row T) error {
	return w.writeEncoded(w.codec.Encode(row))
}

func (w *Writer[T]) writeEncoded(b []byte) error {
	if w.err != nil {
		return w.err
	}
	if w.done {
		return errors.New("stash: write after close")
	}

	if rc := w.t.rc; rc != nil {
		if err := rc.AcquireIO(w.ctx, len(b)); err != nil {
			w.err = err
			return err
		}
	}

	n := binary.PutUvarint(w.lenBuf[:], uint64(len(b)))
	if _, err := w.cw.Write(w.lenBuf[:n]); err != nil {
		w.err = fmt.Errorf("stash: write row length: %w", err)
		return w.err
	}
	if _, err := w.cw.Write(b); err != nil {
		w.err = fmt.Errorf("stash: write row: %w", err)
		return w.err
	}

	w.written++
	return nil
}

// Close finishes the backing file and returns the completed stash.
func (w *Writer[T]) Close() (*Stash[T], error) {
	if w.err != nil {
		return nil, w.err
	}
	if w.done {
		return nil, errors.New("stash: already closed")
	}
	w.done = true

	if err := w.finish(); err != nil {
		return nil, fmt.Errorf("stash: finish frame: %w", err)
	}
	if err := w.buf.Flush(); err != nil {
		return nil, fmt.Errorf("stash: flush: %w", err)
	}
	if err := w.f.Close(); err != nil {
		return nil, fmt.Errorf("stash: close backing file: %w", err)
	}

	return &Stash[T]{t: w.t, codec: w.codec, path: w.path}, nil
}

// Discard abandons the writer. The partial backing file stays in the run
// directory and is reclaimed by Tracker.Close.
func (w *Writer[T]) Discard() {
	if w.done {
		return
	}
	w.done = true
	_ = w.f.Close()
}

// Iterator walks a stash from the first row. It follows the bufio.Scanner
// protocol: Next advances, Row returns the current row, Err reports the
// first failure after Next returns false.
type Iterator[T any] struct {
	codec   Codec[T]
	r       *bufio.Reader
	release func()
	f       *os.File
	row     T
	rowBuf  []byte
	err     error
	closed  bool
}

// Next advances to the next row. It returns false at the end of the sequence
// or on error; check Err to tell the two apart.
func (it *Iterator[T]) Next() bool {
	b, err := it.nextEncoded()
	if err == io.EOF {
		return false
	}
	if err != nil {
		it.err = err
		return false
	}

	row, err := it.codec.Decode(b)
	if err != nil {
		it.err = err
		return false
	}

	it.row = row
	return true
}

// nextEncoded reads the next raw row. The returned slice is only valid until
// the next call.
func (it *Iterator[T]) nextEncoded() ([]byte, error) {
	if it.err != nil {
		return nil, it.err
	}
	if it.closed {
		return nil, errors.New("stash: iterator closed")
	}

	size, err := binary.ReadUvarint(it.r)
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("stash: read row length: %w", err)
	}

	if uint64(cap(it.rowBuf)) < size {
		it.rowBuf = make([]byte, size)
	}
	it.rowBuf = it.rowBuf[:size]

	if _, err := io.ReadFull(it.r, it.rowBuf); err != nil {
		return nil, fmt.Errorf("stash: read row: %w", err)
	}

	return it.rowBuf, nil
}

// Row returns the row read by the last successful Next.
func (it *Iterator[T]) Row() T {
	return it.row
}

// Err returns the first error encountered during iteration, if any.
func (it *Iterator[T]) Err() error {
	return it.err
}

// Close releases the iterator's file handle.
func (it *Iterator[T]) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	it.release()
	return it.f.Close()
}
