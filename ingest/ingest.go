// Package ingest supplies interaction edges to the pipeline.
//
// The pipeline core assumes complete (user, item) edges; decoding whatever
// raw format the interaction log was dumped in, and dropping records that
// are missing either key, is this package's job.
package ingest

import (
	"bufio"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/hupe1980/minrec/codec"
)

// Edge is one interaction: a user touched an item.
type Edge struct {
	User string `json:"user"`
	Item string `json:"item"`
}

// Source yields interaction edges. Next returns io.EOF after the last edge.
type Source interface {
	Next() (Edge, error)
}

// JSONLSource decodes newline-delimited JSON interaction records, e.g.
//
//	{"user":"u1","item":"doc-42"}
//
// Records missing either key are dropped and counted, not surfaced as
// errors; a record that fails to decode at all aborts the read.
type JSONLSource struct {
	scanner *bufio.Scanner
	codec   codec.Codec
	dropped atomic.Int64
	line    int64
}

// JSONLOption configures a JSONLSource.
type JSONLOption func(*JSONLSource)

// WithCodec overrides the codec used to decode records. If nil is passed,
// codec.Default is used.
func WithCodec(c codec.Codec) JSONLOption {
	return func(s *JSONLSource) {
		if c == nil {
			c = codec.Default
		}
		s.codec = c
	}
}

// NewJSONLSource creates a source reading from r.
func NewJSONLSource(r io.Reader, opts ...JSONLOption) *JSONLSource {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	s := &JSONLSource{
		scanner: scanner,
		codec:   codec.Default,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Next implements Source.
func (s *JSONLSource) Next() (Edge, error) {
	for s.scanner.Scan() {
		s.line++

		raw := s.scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var edge Edge
		if err := s.codec.Unmarshal(raw, &edge); err != nil {
			return Edge{}, fmt.Errorf("ingest: line %d: %w", s.line, err)
		}

		if edge.User == "" || edge.Item == "" {
			s.dropped.Add(1)
			continue
		}

		return edge, nil
	}

	if err := s.scanner.Err(); err != nil {
		return Edge{}, fmt.Errorf("ingest: read: %w", err)
	}
	return Edge{}, io.EOF
}

// Dropped returns the number of records dropped for missing keys.
func (s *JSONLSource) Dropped() int64 {
	return s.dropped.Load()
}

// SliceSource yields edges from a slice; for tests and examples.
type SliceSource struct {
	edges []Edge
	pos   int
}

// NewSliceSource creates a source over the given edges.
func NewSliceSource(edges []Edge) *SliceSource {
	return &SliceSource{edges: edges}
}

// Next implements Source.
func (s *SliceSource) Next() (Edge, error) {
	if s.pos >= len(s.edges) {
		return Edge{}, io.EOF
	}
	edge := s.edges[s.pos]
	s.pos++
	return edge, nil
}
