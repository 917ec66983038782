package ingest

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/minrec/codec"
)

func drain(t *testing.T, src Source) []Edge {
	t.Helper()

	var edges []Edge
	for {
		edge, err := src.Next()
		if err == io.EOF {
			return edges
		}
		require.NoError(t, err)
		edges = append(edges, edge)
	}
}

func TestJSONLSource(t *testing.T) {
	t.Run("DecodesRecords", func(t *testing.T) {
		input := `{"user":"u1","item":"doc-1"}
{"user":"u2","item":"doc-2"}
`
		src := NewJSONLSource(strings.NewReader(input))

		assert.Equal(t, []Edge{
			{User: "u1", Item: "doc-1"},
			{User: "u2", Item: "doc-2"},
		}, drain(t, src))
		assert.Equal(t, int64(0), src.Dropped())
	})

	t.Run("DropsIncompleteRecords", func(t *testing.T) {
		input := `{"user":"u1","item":"doc-1"}
{"user":"u2"}
{"item":"doc-3"}
{"user":"u4","item":"doc-4"}
`
		src := NewJSONLSource(strings.NewReader(input))

		assert.Equal(t, []Edge{
			{User: "u1", Item: "doc-1"},
			{User: "u4", Item: "doc-4"},
		}, drain(t, src))
		assert.Equal(t, int64(2), src.Dropped())
	})

	t.Run("SkipsBlankLines", func(t *testing.T) {
		input := "{\"user\":\"u1\",\"item\":\"doc-1\"}\n\n{\"user\":\"u2\",\"item\":\"doc-2\"}\n"
		src := NewJSONLSource(strings.NewReader(input))

		assert.Len(t, drain(t, src), 2)
		assert.Equal(t, int64(0), src.Dropped())
	})

	t.Run("MalformedLineAborts", func(t *testing.T) {
		input := "{\"user\":\"u1\",\"item\":\"doc-1\"}\nnot json\n"
		src := NewJSONLSource(strings.NewReader(input))

		_, err := src.Next()
		require.NoError(t, err)

		_, err = src.Next()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "line 2")
	})

	t.Run("Empty", func(t *testing.T) {
		src := NewJSONLSource(strings.NewReader(""))

		_, err := src.Next()
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("WithCodec", func(t *testing.T) {
		src := NewJSONLSource(strings.NewReader(`{"user":"u1","item":"doc-1"}`), WithCodec(codec.JSON{}))

		edge, err := src.Next()
		require.NoError(t, err)
		assert.Equal(t, Edge{User: "u1", Item: "doc-1"}, edge)
	})
}

func TestSliceSource(t *testing.T) {
	edges := []Edge{
		{User: "u1", Item: "a"},
		{User: "u2", Item: "b"},
	}
	src := NewSliceSource(edges)

	assert.Equal(t, edges, drain(t, src))

	_, err := src.Next()
	assert.ErrorIs(t, err, io.EOF)
}
