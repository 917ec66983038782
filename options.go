package minrec

import (
	"math/rand"

	"github.com/hupe1980/minrec/codec"
	"github.com/hupe1980/minrec/resource"
	"github.com/hupe1980/minrec/similarity"
	"github.com/hupe1980/minrec/stash"
)

type options struct {
	rounds          int
	topK            int
	maxInteractions int
	workDir         string
	rng             *rand.Rand
	strategy        similarity.Strategy
	workers         int
	compression     stash.Compression
	runBytes        int
	orderCheck      bool
	codec           codec.Codec
	logger          *Logger
	metrics         MetricsCollector
	controller      *resource.Controller
}

// Option configures a Pipeline.
type Option func(*options)

// WithRounds sets the number of independent MinHash passes. More rounds
// raise recall at a linear cost in runtime.
func WithRounds(rounds int) Option {
	return func(o *options) { o.rounds = rounds }
}

// WithTopK sets how many candidates are retained per item.
func WithTopK(k int) Option {
	return func(o *options) { o.topK = k }
}

// WithMaxInteractionsPerUser sets the bot-filter threshold: a user whose
// distinct item count exceeds it contributes no edges at all.
func WithMaxInteractionsPerUser(n int) Option {
	return func(o *options) { o.maxInteractions = n }
}

// WithWorkDir sets where stash backing files live for the duration of a
// run. Defaults to the OS temp directory.
func WithWorkDir(dir string) Option {
	return func(o *options) { o.workDir = dir }
}

// WithRandomSource injects the entropy used for per-round seeds and sort
// tiebreaks, making runs reproducible for testing. Pass nil for a
// time-seeded source.
func WithRandomSource(rng *rand.Rand) Option {
	return func(o *options) { o.rng = rng }
}

// WithRandomSeed is a convenience wrapper for
// WithRandomSource(rand.New(rand.NewSource(seed))).
func WithRandomSeed(seed int64) Option {
	return func(o *options) { o.rng = rand.New(rand.NewSource(seed)) }
}

// WithScoring selects the per-round scoring strategy.
//
// The default, similarity.StrategyAdjacent, scores only pairs adjacent in
// digest order: guaranteed linear cost per round, some recall traded away.
// similarity.StrategyExactBuckets scores every pair sharing a digest:
// higher recall, worst-case quadratic in the size of a digest bucket.
func WithScoring(s similarity.Strategy) Option {
	return func(o *options) { o.strategy = s }
}

// WithWorkers fans similarity rounds out to n goroutines. Rounds are
// independent; the shared accumulator serializes inserts per item. 0 or 1
// runs rounds sequentially.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithCompression sets the compression for stash backing files.
func WithCompression(c stash.Compression) Option {
	return func(o *options) { o.compression = c }
}

// WithRunBytes bounds the in-memory run size of the external sort.
func WithRunBytes(n int) Option {
	return func(o *options) { o.runBytes = n }
}

// WithOrderCheck toggles the sort-order assertion in the key-compaction
// walk. Enabled by default: a stream out of the shared sort order fails
// fast instead of silently mis-assigning ids. Disabling saves one
// comparison per row for trusted inputs.
func WithOrderCheck(enabled bool) Option {
	return func(o *options) { o.orderCheck = enabled }
}

// WithCodec configures the codec used by Results.Export.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithLogger configures structured logging for the run.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithMetricsCollector configures a metrics collector for monitoring the
// run. Pass nil to disable metrics collection.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metrics = mc
	}
}

// WithResourceController bounds the run's IO rate and checks free space on
// the work directory before any stash is created.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) { o.controller = rc }
}

func applyOptions(optFns []Option) options {
	o := options{
		rounds:          8,
		topK:            10,
		maxInteractions: 1000,
		strategy:        similarity.StrategyAdjacent,
		workers:         1,
		compression:     stash.CompressionLZ4,
		orderCheck:      true,
		codec:           codec.Default,
		logger:          NoopLogger(),
		metrics:         NoopMetricsCollector{},
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}

func (o *options) validate() error {
	if o.rounds <= 0 {
		return ErrInvalidRounds
	}
	if o.topK <= 0 {
		return ErrInvalidTopK
	}
	if o.maxInteractions <= 0 {
		return ErrInvalidMaxInteractions
	}
	if o.workers < 0 {
		return ErrInvalidWorkers
	}
	return nil
}
