package compact

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/minrec/stash"
)

func newLabels(t *testing.T, labels []string) *stash.Stash[string] {
	t.Helper()

	tr, err := stash.NewTracker(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })

	s, err := stash.FromRows(context.Background(), tr, stash.StringCodec{}, labels)
	require.NoError(t, err)

	return s
}

func TestNumberer(t *testing.T) {
	t.Run("AssignsSortedRanks", func(t *testing.T) {
		labels := newLabels(t, []string{"apple", "fig", "pear"})

		n, err := NewNumberer(labels, Options{Strict: true})
		require.NoError(t, err)
		defer n.Close()

		wantIDs := map[string]uint32{"apple": 0, "fig": 1, "pear": 2}
		for _, key := range []string{"apple", "apple", "fig", "pear", "pear"} {
			id, err := n.Number(key)
			require.NoError(t, err)
			assert.Equal(t, wantIDs[key], id, "key %q", key)
		}
	})

	t.Run("SkipsUnusedLabels", func(t *testing.T) {
		labels := newLabels(t, []string{"a", "b", "c", "d"})

		n, err := NewNumberer(labels, Options{Strict: true})
		require.NoError(t, err)
		defer n.Close()

		id, err := n.Number("d")
		require.NoError(t, err)
		assert.Equal(t, uint32(3), id)
	})

	t.Run("UnknownKey", func(t *testing.T) {
		labels := newLabels(t, []string{"a", "c"})

		n, err := NewNumberer(labels, Options{Strict: true})
		require.NoError(t, err)
		defer n.Close()

		_, err = n.Number("b")
		assert.ErrorIs(t, err, ErrKeyNotFound)
	})

	t.Run("KeyPastEndOfLabels", func(t *testing.T) {
		labels := newLabels(t, []string{"a", "b"})

		n, err := NewNumberer(labels, Options{Strict: false})
		require.NoError(t, err)
		defer n.Close()

		_, err = n.Number("z")
		assert.ErrorIs(t, err, ErrKeyNotFound)
	})

	t.Run("EmptyLabelList", func(t *testing.T) {
		labels := newLabels(t, nil)

		n, err := NewNumberer(labels, Options{})
		require.NoError(t, err)
		defer n.Close()

		_, err = n.Number("a")
		assert.ErrorIs(t, err, ErrKeyNotFound)
	})

	t.Run("StrictDetectsOutOfOrderInput", func(t *testing.T) {
		labels := newLabels(t, []string{"a", "b", "c"})

		n, err := NewNumberer(labels, Options{Strict: true})
		require.NoError(t, err)
		defer n.Close()

		_, err = n.Number("c")
		require.NoError(t, err)

		_, err = n.Number("a")
		var orderErr *ErrOrderViolation
		require.ErrorAs(t, err, &orderErr)
		assert.Equal(t, "c", orderErr.Prev)
		assert.Equal(t, "a", orderErr.Next)
	})

	t.Run("NonStrictDoesNotCheckOrder", func(t *testing.T) {
		labels := newLabels(t, []string{"a", "b", "c"})

		n, err := NewNumberer(labels, Options{Strict: false})
		require.NoError(t, err)
		defer n.Close()

		_, err = n.Number("c")
		require.NoError(t, err)

		// The lock-step walk cannot rewind; without the order check an
		// earlier key falls through to key-not-found instead.
		_, err = n.Number("a")
		assert.ErrorIs(t, err, ErrKeyNotFound)
	})
}

func TestRestorer(t *testing.T) {
	t.Run("RoundTripsThroughNumberer", func(t *testing.T) {
		labelList := []string{"apple", "fig", "pear"}
		labels := newLabels(t, labelList)

		n, err := NewNumberer(labels, Options{Strict: true})
		require.NoError(t, err)

		var ids []uint32
		for _, key := range labelList {
			id, err := n.Number(key)
			require.NoError(t, err)
			ids = append(ids, id)
		}
		require.NoError(t, n.Close())

		r, err := NewRestorer(labels)
		require.NoError(t, err)
		defer r.Close()

		for i, id := range ids {
			key, err := r.Restore(id)
			require.NoError(t, err)
			assert.Equal(t, labelList[i], key)
		}
	})

	t.Run("RepeatedID", func(t *testing.T) {
		labels := newLabels(t, []string{"a", "b"})

		r, err := NewRestorer(labels)
		require.NoError(t, err)
		defer r.Close()

		for i := 0; i < 3; i++ {
			key, err := r.Restore(1)
			require.NoError(t, err)
			assert.Equal(t, "b", key)
		}
	})

	t.Run("IDOutOfRange", func(t *testing.T) {
		labels := newLabels(t, []string{"a", "b"})

		r, err := NewRestorer(labels)
		require.NoError(t, err)
		defer r.Close()

		_, err = r.Restore(5)
		assert.ErrorIs(t, err, ErrIDOutOfRange)
	})

	t.Run("OutOfOrderIDs", func(t *testing.T) {
		labels := newLabels(t, []string{"a", "b", "c"})

		r, err := NewRestorer(labels)
		require.NoError(t, err)
		defer r.Close()

		_, err = r.Restore(2)
		require.NoError(t, err)

		_, err = r.Restore(0)
		assert.Error(t, err)
	})
}
