package minrec

import (
	"context"
	"io"
	"math/rand"
	"os"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/minrec/compact"
	"github.com/hupe1980/minrec/ingest"
	"github.com/hupe1980/minrec/similarity"
	"github.com/hupe1980/minrec/stash"
	"github.com/hupe1980/minrec/topk"
)

// Pipeline computes item-to-item recommendations from a stream of
// user/item interaction edges.
//
// A run is batch-shaped: all intermediate state lives in disk-backed
// stashes under a run-scoped temporary directory, so the input need not fit
// in memory. Only three structures are held in RAM: the per-item user sets
// as roaring bitmaps, the MinHash sort buckets of the round in flight, and
// the flat top-K accumulator.
type Pipeline struct {
	opts options
}

// New creates a Pipeline. See the With* options for tuning knobs; the zero
// configuration runs 8 rounds keeping 10 candidates per item.
func New(optFns ...Option) (*Pipeline, error) {
	o := applyOptions(optFns)
	if err := o.validate(); err != nil {
		return nil, err
	}
	return &Pipeline{opts: o}, nil
}

// Run executes the full pipeline over src and returns the computed
// recommendations. The caller must Close the returned Results to release
// the run's temporary files.
func (p *Pipeline) Run(ctx context.Context, src ingest.Source) (*Results, error) {
	start := time.Now()

	res, err := p.run(ctx, src)

	var items int64
	if res != nil {
		items = res.numItems
	}
	p.opts.metrics.RecordRun(time.Since(start), err)
	p.opts.logger.LogRun(ctx, items, time.Since(start), err)

	return res, err
}

func (p *Pipeline) run(ctx context.Context, src ingest.Source) (*Results, error) {
	if src == nil {
		return nil, ErrNilSource
	}

	workDir := p.opts.workDir
	if workDir == "" {
		workDir = os.TempDir()
	}
	if err := p.opts.controller.CheckDiskSpace(workDir); err != nil {
		return nil, err
	}

	t, err := stash.NewTracker(workDir,
		stash.WithCompression(p.opts.compression),
		stash.WithRunBytes(p.opts.runBytes),
		stash.WithController(p.opts.controller),
	)
	if err != nil {
		return nil, err
	}

	final, numItems, err := p.runStages(ctx, t, src)
	if err != nil {
		_ = t.Close()
		return nil, err
	}

	return &Results{
		t:        t,
		rows:     final,
		codec:    p.opts.codec,
		logger:   p.opts.logger,
		numItems: numItems,
	}, nil
}

func (p *Pipeline) runStages(ctx context.Context, t *stash.Tracker, src ingest.Source) (*stash.Stash[recRow], int64, error) {
	edges, err := p.ingestEdges(ctx, t, src)
	if err != nil {
		return nil, 0, err
	}

	// One shared sort order, (user, item) ascending, carries through the
	// bot filter and the user-numbering walk.
	edges, err = edges.SortDedup(ctx, false)
	if err != nil {
		return nil, 0, err
	}

	filtered, err := p.filterBots(ctx, t, edges)
	if err != nil {
		return nil, 0, err
	}

	userLabels, itemLabels, err := p.projectLabels(ctx, t, filtered)
	if err != nil {
		return nil, 0, err
	}

	pairs, err := p.numberEdges(ctx, t, filtered, userLabels, itemLabels)
	if err != nil {
		return nil, 0, err
	}

	sets, err := p.collectSets(ctx, pairs)
	if err != nil {
		return nil, 0, err
	}
	numItems := int64(len(sets))

	userCount, err := userLabels.Len()
	if err != nil {
		return nil, 0, err
	}
	p.opts.logger.LogCompact(ctx, userCount, numItems)

	acc, err := topk.NewAccumulator(len(sets), p.opts.topK)
	if err != nil {
		return nil, 0, err
	}

	if err := p.runRounds(ctx, sets, acc); err != nil {
		return nil, 0, err
	}
	sets = nil

	drained, err := p.drainAccumulator(ctx, t, acc)
	if err != nil {
		return nil, 0, err
	}

	final, err := p.restoreKeys(ctx, t, drained, itemLabels)
	if err != nil {
		return nil, 0, err
	}

	return final, numItems, nil
}

// ingestEdges reads the source to exhaustion into a raw edge stash. Edges
// missing either key are dropped here, so sources need not guarantee
// completeness.
func (p *Pipeline) ingestEdges(ctx context.Context, t *stash.Tracker, src ingest.Source) (*stash.Stash[stash.Pair], error) {
	start := time.Now()

	w, err := stash.Create(ctx, t, stash.PairCodec{})
	if err != nil {
		return nil, err
	}

	var edges, dropped int64
	for {
		if err := ctx.Err(); err != nil {
			w.Discard()
			return nil, err
		}

		edge, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			w.Discard()
			return nil, err
		}

		if edge.User == "" || edge.Item == "" {
			dropped++
			continue
		}

		if err := w.Write(stash.Pair{A: edge.User, B: edge.Item}); err != nil {
			w.Discard()
			return nil, err
		}
		edges++
	}

	if counted, ok := src.(interface{ Dropped() int64 }); ok {
		dropped += counted.Dropped()
	}

	p.opts.metrics.RecordIngest(edges, dropped, time.Since(start))
	p.opts.logger.LogIngest(ctx, edges, dropped)

	return w.Close()
}

// filterBots drops every edge of any user whose distinct item count exceeds
// the configured threshold. The input is sorted by (user, item), so each
// user's edges arrive as one contiguous group and at most threshold rows
// are buffered at a time.
func (p *Pipeline) filterBots(ctx context.Context, t *stash.Tracker, edges *stash.Stash[stash.Pair]) (*stash.Stash[stash.Pair], error) {
	it, err := edges.Iter()
	if err != nil {
		return nil, err
	}
	defer it.Close()

	w, err := stash.Create(ctx, t, stash.PairCodec{})
	if err != nil {
		return nil, err
	}

	var (
		curUser      string
		held         []stash.Pair
		dropping     bool
		usersDropped int64
		kept         int64
	)

	flush := func() error {
		for _, row := range held {
			if err := w.Write(row); err != nil {
				return err
			}
		}
		kept += int64(len(held))
		held = held[:0]
		return nil
	}

	for it.Next() {
		row := it.Row()

		if row.A != curUser {
			if err := flush(); err != nil {
				w.Discard()
				return nil, err
			}
			curUser = row.A
			dropping = false
		}
		if dropping {
			continue
		}

		held = append(held, row)
		if len(held) > p.opts.maxInteractions {
			dropping = true
			usersDropped++
			held = held[:0]
		}
	}
	if err := it.Err(); err != nil {
		w.Discard()
		return nil, err
	}
	if err := flush(); err != nil {
		w.Discard()
		return nil, err
	}

	p.opts.metrics.RecordBotFilter(usersDropped, kept)
	p.opts.logger.LogBotFilter(ctx, usersDropped, kept)

	return w.Close()
}

// projectLabels extracts the distinct user and item keys of the filtered
// edges as sorted label stashes. The user column is already grouped and
// sorted, so its labels fall out of a single scan; the item column needs
// its own sort.
func (p *Pipeline) projectLabels(ctx context.Context, t *stash.Tracker, filtered *stash.Stash[stash.Pair]) (*stash.Stash[string], *stash.Stash[string], error) {
	it, err := filtered.Iter()
	if err != nil {
		return nil, nil, err
	}
	defer it.Close()

	users, err := stash.Create(ctx, t, stash.StringCodec{})
	if err != nil {
		return nil, nil, err
	}
	items, err := stash.Create(ctx, t, stash.StringCodec{})
	if err != nil {
		users.Discard()
		return nil, nil, err
	}

	var curUser string
	started := false
	for it.Next() {
		row := it.Row()
		if !started || row.A != curUser {
			if err := users.Write(row.A); err != nil {
				items.Discard()
				users.Discard()
				return nil, nil, err
			}
			curUser = row.A
			started = true
		}
		if err := items.Write(row.B); err != nil {
			items.Discard()
			users.Discard()
			return nil, nil, err
		}
	}
	if err := it.Err(); err != nil {
		items.Discard()
		users.Discard()
		return nil, nil, err
	}

	userLabels, err := users.Close()
	if err != nil {
		items.Discard()
		return nil, nil, err
	}
	rawItems, err := items.Close()
	if err != nil {
		return nil, nil, err
	}
	itemLabels, err := rawItems.SortDedup(ctx, false)
	if err != nil {
		return nil, nil, err
	}

	return userLabels, itemLabels, nil
}

// numberEdges replaces both string columns with dense ids in two lock-step
// passes, one resort in between.
//
// Pass one walks the (user, item) order and numbers the user column,
// leaving (item key, user id) rows; sorting those puts the item column in
// label order so pass two can number it the same way. The result arrives
// sorted by (item id, user id) with no further sort: ids are ranks, so id
// order and key order agree.
func (p *Pipeline) numberEdges(ctx context.Context, t *stash.Tracker, filtered *stash.Stash[stash.Pair], userLabels, itemLabels *stash.Stash[string]) (*stash.Stash[stash.IDPair], error) {
	opts := compact.Options{Strict: p.opts.orderCheck}

	byUser, err := compact.NewNumberer(userLabels, opts)
	if err != nil {
		return nil, err
	}
	defer byUser.Close()

	it, err := filtered.Iter()
	if err != nil {
		return nil, err
	}
	defer it.Close()

	w, err := stash.Create(ctx, t, stash.KeyIDCodec{})
	if err != nil {
		return nil, err
	}
	for it.Next() {
		row := it.Row()
		uid, err := byUser.Number(row.A)
		if err != nil {
			w.Discard()
			return nil, err
		}
		if err := w.Write(stash.KeyID{Key: row.B, ID: uid}); err != nil {
			w.Discard()
			return nil, err
		}
	}
	if err := it.Err(); err != nil {
		w.Discard()
		return nil, err
	}
	keyed, err := w.Close()
	if err != nil {
		return nil, err
	}

	keyed, err = keyed.SortDedup(ctx, false)
	if err != nil {
		return nil, err
	}

	byItem, err := compact.NewNumberer(itemLabels, opts)
	if err != nil {
		return nil, err
	}
	defer byItem.Close()

	kit, err := keyed.Iter()
	if err != nil {
		return nil, err
	}
	defer kit.Close()

	pw, err := stash.Create(ctx, t, stash.IDPairCodec{})
	if err != nil {
		return nil, err
	}
	for kit.Next() {
		row := kit.Row()
		iid, err := byItem.Number(row.Key)
		if err != nil {
			pw.Discard()
			return nil, err
		}
		if err := pw.Write(stash.IDPair{A: iid, B: row.ID}); err != nil {
			pw.Discard()
			return nil, err
		}
	}
	if err := kit.Err(); err != nil {
		pw.Discard()
		return nil, err
	}

	return pw.Close()
}

// collectSets groups the (item id, user id) stream into one roaring bitmap
// per item. The stream is sorted by item id and the ids are dense ranks, so
// sets[i].Item == i.
func (p *Pipeline) collectSets(ctx context.Context, pairs *stash.Stash[stash.IDPair]) ([]similarity.ItemSet, error) {
	it, err := pairs.Iter()
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var sets []similarity.ItemSet
	for it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		row := it.Row()
		if len(sets) == 0 || sets[len(sets)-1].Item != row.A {
			sets = append(sets, similarity.ItemSet{Item: row.A, Users: roaring.New()})
		}
		sets[len(sets)-1].Users.Add(row.B)
	}
	if err := it.Err(); err != nil {
		return nil, err
	}

	return sets, nil
}

// runRounds executes the configured number of MinHash rounds, inserting
// every scored pair into the accumulator in both directions.
//
// Seeds are drawn up front from a single source so that a fixed seed gives
// a reproducible run at any worker count; only the accumulator's insert
// order varies.
func (p *Pipeline) runRounds(ctx context.Context, sets []similarity.ItemSet, acc *topk.Accumulator) error {
	rng := p.opts.rng
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	seeds := make([]uint64, p.opts.rounds)
	for i := range seeds {
		seeds[i] = rng.Uint64()
	}

	engine := similarity.NewEngine(sets, p.opts.strategy)
	sink := func(a, b uint32, score float32) {
		acc.Insert(a, b, score)
		acc.Insert(b, a, score)
	}

	round := func(ctx context.Context, i int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		pairs := engine.Round(seeds[i], sink)
		p.opts.metrics.RecordRound(pairs, time.Since(start))
		p.opts.logger.LogRound(ctx, i, pairs, time.Since(start))
		return nil
	}

	if p.opts.workers <= 1 {
		for i := range seeds {
			if err := round(ctx, i); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.workers)
	for i := range seeds {
		g.Go(func() error {
			if rc := p.opts.controller; rc != nil {
				if err := rc.AcquireWorker(gctx); err != nil {
					return err
				}
				defer rc.ReleaseWorker()
			}
			return round(gctx, i)
		})
	}
	return g.Wait()
}

// drainAccumulator flattens the accumulator into a stash sorted by the
// candidate id column, the order the first restore pass needs.
func (p *Pipeline) drainAccumulator(ctx context.Context, t *stash.Tracker, acc *topk.Accumulator) (*stash.Stash[scoredRef], error) {
	w, err := stash.Create(ctx, t, scoredRefCodec{})
	if err != nil {
		return nil, err
	}

	for item := 0; item < acc.Items(); item++ {
		if err := ctx.Err(); err != nil {
			w.Discard()
			return nil, err
		}
		for _, e := range acc.Drain(uint32(item)) {
			row := scoredRef{Ref: e.Candidate, Item: uint32(item), Score: e.Score}
			if err := w.Write(row); err != nil {
				w.Discard()
				return nil, err
			}
		}
	}

	drained, err := w.Close()
	if err != nil {
		return nil, err
	}
	return drained.SortDedup(ctx, false)
}

// restoreKeys translates both id columns back to item keys in two lock-step
// passes mirroring the numbering. The second pass walks (item id, score
// descending) order, which is exactly the output order, so the final stash
// needs no further sort.
func (p *Pipeline) restoreKeys(ctx context.Context, t *stash.Tracker, drained *stash.Stash[scoredRef], itemLabels *stash.Stash[string]) (*stash.Stash[recRow], error) {
	byRef, err := compact.NewRestorer(itemLabels)
	if err != nil {
		return nil, err
	}
	defer byRef.Close()

	it, err := drained.Iter()
	if err != nil {
		return nil, err
	}
	defer it.Close()

	kw, err := stash.Create(ctx, t, scoredKeyCodec{})
	if err != nil {
		return nil, err
	}
	for it.Next() {
		row := it.Row()
		cand, err := byRef.Restore(row.Ref)
		if err != nil {
			kw.Discard()
			return nil, err
		}
		if err := kw.Write(scoredKey{Item: row.Item, Score: row.Score, Candidate: cand}); err != nil {
			kw.Discard()
			return nil, err
		}
	}
	if err := it.Err(); err != nil {
		kw.Discard()
		return nil, err
	}
	keyed, err := kw.Close()
	if err != nil {
		return nil, err
	}

	keyed, err = keyed.SortDedup(ctx, false)
	if err != nil {
		return nil, err
	}

	byItem, err := compact.NewRestorer(itemLabels)
	if err != nil {
		return nil, err
	}
	defer byItem.Close()

	kit, err := keyed.Iter()
	if err != nil {
		return nil, err
	}
	defer kit.Close()

	rw, err := stash.Create(ctx, t, recRowCodec{})
	if err != nil {
		return nil, err
	}
	for kit.Next() {
		row := kit.Row()
		item, err := byItem.Restore(row.Item)
		if err != nil {
			rw.Discard()
			return nil, err
		}
		if err := rw.Write(recRow{Item: item, Score: row.Score, Candidate: row.Candidate}); err != nil {
			rw.Discard()
			return nil, err
		}
	}
	if err := kit.Err(); err != nil {
		rw.Discard()
		return nil, err
	}

	return rw.Close()
}
