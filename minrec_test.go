package minrec

import (
	"bufio"
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/minrec/blobstore"
	"github.com/hupe1980/minrec/ingest"
	"github.com/hupe1980/minrec/similarity"
	"github.com/hupe1980/minrec/testutil"
)

func edges(pairs ...[2]string) []ingest.Edge {
	out := make([]ingest.Edge, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, ingest.Edge{User: p[0], Item: p[1]})
	}
	return out
}

func runPipeline(t *testing.T, src ingest.Source, opts ...Option) map[string][]Candidate {
	t.Helper()

	opts = append([]Option{WithWorkDir(t.TempDir()), WithRandomSeed(1)}, opts...)
	p, err := New(opts...)
	require.NoError(t, err)

	res, err := p.Run(context.Background(), src)
	require.NoError(t, err)
	t.Cleanup(func() { _ = res.Close() })

	it, err := res.Iter()
	require.NoError(t, err)
	defer it.Close()

	recs := make(map[string][]Candidate)
	for it.Next() {
		rec := it.Recommendation()
		recs[rec.Item] = rec.Candidates
	}
	require.NoError(t, it.Err())

	return recs
}

func TestNew(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		_, err := New()
		require.NoError(t, err)
	})

	t.Run("InvalidRounds", func(t *testing.T) {
		_, err := New(WithRounds(0))
		assert.ErrorIs(t, err, ErrInvalidRounds)
	})

	t.Run("InvalidTopK", func(t *testing.T) {
		_, err := New(WithTopK(-1))
		assert.ErrorIs(t, err, ErrInvalidTopK)
	})

	t.Run("InvalidMaxInteractions", func(t *testing.T) {
		_, err := New(WithMaxInteractionsPerUser(0))
		assert.ErrorIs(t, err, ErrInvalidMaxInteractions)
	})

	t.Run("InvalidWorkers", func(t *testing.T) {
		_, err := New(WithWorkers(-1))
		assert.ErrorIs(t, err, ErrInvalidWorkers)
	})
}

func TestRun(t *testing.T) {
	t.Run("NilSource", func(t *testing.T) {
		p, err := New(WithWorkDir(t.TempDir()))
		require.NoError(t, err)

		_, err = p.Run(context.Background(), nil)
		assert.ErrorIs(t, err, ErrNilSource)
	})

	t.Run("TwoItemsShareUsers", func(t *testing.T) {
		// a = {u1, u2, u3}, b = {u1, u2}: Jaccard(a, b) = 2/3.
		src := ingest.NewSliceSource(edges(
			[2]string{"u1", "a"},
			[2]string{"u1", "b"},
			[2]string{"u2", "a"},
			[2]string{"u2", "b"},
			[2]string{"u3", "a"},
		))

		recs := runPipeline(t, src, WithTopK(2))

		require.Len(t, recs, 2)
		require.Len(t, recs["a"], 1)
		assert.Equal(t, "b", recs["a"][0].Item)
		assert.InDelta(t, 2.0/3.0, recs["a"][0].Score, 1e-6)
		require.Len(t, recs["b"], 1)
		assert.Equal(t, "a", recs["b"][0].Item)
		assert.InDelta(t, 2.0/3.0, recs["b"][0].Score, 1e-6)
	})

	t.Run("DuplicateEdgesDoNotChangeScores", func(t *testing.T) {
		base := edges(
			[2]string{"u1", "a"},
			[2]string{"u1", "b"},
			[2]string{"u2", "a"},
			[2]string{"u2", "b"},
			[2]string{"u3", "a"},
		)
		doubled := append(append([]ingest.Edge{}, base...), base...)

		recs := runPipeline(t, ingest.NewSliceSource(doubled), WithTopK(2))

		require.Len(t, recs["a"], 1)
		assert.InDelta(t, 2.0/3.0, recs["a"][0].Score, 1e-6)
	})

	t.Run("BotFilterDropsHeavyUser", func(t *testing.T) {
		// u1 touches three items, over the threshold of two; its edges
		// vanish entirely, leaving a and b identical and c unseen.
		src := ingest.NewSliceSource(edges(
			[2]string{"u1", "a"},
			[2]string{"u1", "b"},
			[2]string{"u1", "c"},
			[2]string{"u2", "a"},
			[2]string{"u2", "b"},
			[2]string{"u3", "a"},
			[2]string{"u3", "b"},
		))

		metrics := &BasicMetricsCollector{}
		recs := runPipeline(t, src,
			WithMaxInteractionsPerUser(2),
			WithMetricsCollector(metrics),
		)

		require.Len(t, recs, 2)
		assert.NotContains(t, recs, "c")
		assert.InDelta(t, 1.0, recs["a"][0].Score, 1e-6)
		assert.InDelta(t, 1.0, recs["b"][0].Score, 1e-6)

		stats := metrics.GetStats()
		assert.Equal(t, int64(1), stats.UsersFiltered)
		assert.Equal(t, int64(4), stats.EdgesKept)
	})

	t.Run("EmptyInput", func(t *testing.T) {
		recs := runPipeline(t, ingest.NewSliceSource(nil))
		assert.Empty(t, recs)
	})

	t.Run("SingleItem", func(t *testing.T) {
		src := ingest.NewSliceSource(edges(
			[2]string{"u1", "only"},
			[2]string{"u2", "only"},
		))

		recs := runPipeline(t, src)
		assert.Empty(t, recs)
	})

	t.Run("IncompleteEdgesDropped", func(t *testing.T) {
		src := ingest.NewSliceSource([]ingest.Edge{
			{User: "u1", Item: "a"},
			{User: "", Item: "b"},
			{User: "u1", Item: ""},
			{User: "u2", Item: "a"},
		})

		metrics := &BasicMetricsCollector{}
		recs := runPipeline(t, src, WithMetricsCollector(metrics))

		assert.Empty(t, recs)
		assert.Equal(t, int64(2), metrics.GetStats().RecordsDropped)
		assert.Equal(t, int64(2), metrics.GetStats().EdgesIngested)
	})

	t.Run("TopKBoundsCandidates", func(t *testing.T) {
		// Five items all sharing user u0, pairwise similar.
		var all []ingest.Edge
		for _, item := range []string{"a", "b", "c", "d", "e"} {
			all = append(all, ingest.Edge{User: "u0", Item: item})
			all = append(all, ingest.Edge{User: "u-" + item, Item: item})
		}

		recs := runPipeline(t, ingest.NewSliceSource(all),
			WithTopK(2),
			WithRounds(32),
			WithScoring(similarity.StrategyExactBuckets),
		)

		for item, cands := range recs {
			assert.LessOrEqual(t, len(cands), 2, "item %q", item)
			for i := 1; i < len(cands); i++ {
				assert.GreaterOrEqual(t, cands[i-1].Score, cands[i].Score)
			}
		}
	})

	t.Run("ClusteredCommunities", func(t *testing.T) {
		rng := testutil.NewRNG(7)
		var all []ingest.Edge
		for _, e := range testutil.ClusteredEdges(rng, 3, 20, 8) {
			all = append(all, ingest.Edge{User: e[0], Item: e[1]})
		}

		recs := runPipeline(t, ingest.NewSliceSource(all),
			WithRounds(16),
			WithTopK(5),
		)

		require.NotEmpty(t, recs)
		for item, cands := range recs {
			cluster := item[:2]
			for _, cand := range cands {
				assert.Equal(t, cluster, cand.Item[:2],
					"item %q recommended cross-cluster item %q", item, cand.Item)
				assert.Positive(t, cand.Score)
			}
		}
	})

	t.Run("ParallelRoundsMatchSequential", func(t *testing.T) {
		rng := testutil.NewRNG(11)
		var all []ingest.Edge
		for _, e := range testutil.ClusteredEdges(rng, 2, 10, 6) {
			all = append(all, ingest.Edge{User: e[0], Item: e[1]})
		}

		sequential := runPipeline(t, ingest.NewSliceSource(all), WithRounds(8), WithTopK(3))
		parallel := runPipeline(t, ingest.NewSliceSource(all), WithRounds(8), WithTopK(3), WithWorkers(4))

		// Seeds are drawn before the rounds fan out, so scores match at any
		// worker count; insert order (and thus tie order) may differ.
		require.Len(t, parallel, len(sequential))
		for item, want := range sequential {
			got := parallel[item]
			require.Len(t, got, len(want), "item %q", item)
			for i := range want {
				assert.InDelta(t, want[i].Score, got[i].Score, 1e-6)
			}
		}
	})

	t.Run("ItemsInKeyOrder", func(t *testing.T) {
		src := ingest.NewSliceSource(edges(
			[2]string{"u1", "zebra"},
			[2]string{"u1", "apple"},
			[2]string{"u2", "zebra"},
			[2]string{"u2", "apple"},
		))

		p, err := New(WithWorkDir(t.TempDir()), WithRandomSeed(1))
		require.NoError(t, err)

		res, err := p.Run(context.Background(), src)
		require.NoError(t, err)
		defer res.Close()

		it, err := res.Iter()
		require.NoError(t, err)
		defer it.Close()

		var items []string
		for it.Next() {
			items = append(items, it.Recommendation().Item)
		}
		require.NoError(t, it.Err())
		assert.Equal(t, []string{"apple", "zebra"}, items)
	})
}

func TestResults(t *testing.T) {
	newResults := func(t *testing.T) *Results {
		t.Helper()

		src := ingest.NewSliceSource(edges(
			[2]string{"u1", "a"},
			[2]string{"u1", "b"},
			[2]string{"u2", "a"},
			[2]string{"u2", "b"},
		))
		p, err := New(WithWorkDir(t.TempDir()), WithRandomSeed(1))
		require.NoError(t, err)

		res, err := p.Run(context.Background(), src)
		require.NoError(t, err)
		t.Cleanup(func() { _ = res.Close() })

		return res
	}

	t.Run("ExportJSONL", func(t *testing.T) {
		res := newResults(t)

		var buf bytes.Buffer
		require.NoError(t, res.Export(context.Background(), &buf))

		var lines []string
		sc := bufio.NewScanner(&buf)
		for sc.Scan() {
			lines = append(lines, sc.Text())
		}
		require.Len(t, lines, 2)
		assert.True(t, strings.HasPrefix(lines[0], `{"item":"a"`))
		assert.Contains(t, lines[0], `"recommendations"`)
		assert.True(t, strings.HasPrefix(lines[1], `{"item":"b"`))
	})

	t.Run("Persist", func(t *testing.T) {
		res := newResults(t)
		store := blobstore.NewMemoryStore()

		require.NoError(t, res.Persist(context.Background(), store, "runs/latest"))

		blob, ok := store.Get("runs/latest")
		require.True(t, ok)
		assert.NotEmpty(t, blob)
	})

	t.Run("UseAfterClose", func(t *testing.T) {
		res := newResults(t)
		require.NoError(t, res.Close())

		_, err := res.Iter()
		assert.ErrorIs(t, err, ErrResultsClosed)

		err = res.Persist(context.Background(), blobstore.NewMemoryStore(), "x")
		assert.ErrorIs(t, err, ErrResultsClosed)

		// Close is idempotent.
		assert.NoError(t, res.Close())
	})

	t.Run("IterIsRestartable", func(t *testing.T) {
		res := newResults(t)

		count := func() int {
			it, err := res.Iter()
			require.NoError(t, err)
			defer it.Close()

			n := 0
			for it.Next() {
				n++
			}
			require.NoError(t, it.Err())
			return n
		}

		assert.Equal(t, count(), count())
	})
}
