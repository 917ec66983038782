// Package similarity finds candidate item pairs with high Jaccard
// similarity between their user sets, using one-permutation MinHash.
//
// Per round, every item receives a digest equal to the minimum of a seeded
// 64-bit hash over its users. Two items' digests collide under a shared
// seed with probability equal to their true Jaccard similarity, so sorting
// by digest tends to place true neighbors next to each other; scoring only
// adjacent pairs keeps each round linear in the item count. Repeated rounds
// with fresh seeds give true neighbors independent chances to land
// adjacent, recovering the recall a single round misses.
package similarity

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
)

// Strategy selects how a round turns digests into scored pairs.
type Strategy uint8

const (
	// StrategyAdjacent sorts all items by (digest, tiebreak) and scores
	// adjacent pairs only. Cost is linear in the item count per round, at
	// the price of some recall: a popular digest shared by many items
	// yields only the pairs that happen to sort next to each other.
	StrategyAdjacent Strategy = iota

	// StrategyExactBuckets scores every pair of items sharing an exact
	// digest. Higher recall, but worst-case quadratic in the size of a
	// digest bucket, which popular items can blow up.
	StrategyExactBuckets
)

// String returns the stable name of the strategy.
func (s Strategy) String() string {
	switch s {
	case StrategyAdjacent:
		return "adjacent"
	case StrategyExactBuckets:
		return "exact-buckets"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// ItemSet is an item and the set of users who interacted with it.
// The bitmap is read-only once handed to an Engine.
type ItemSet struct {
	Item  uint32
	Users *roaring.Bitmap
}

// Engine runs MinHash rounds over a fixed collection of item sets. The sets
// are shared read-only across rounds, so Round is safe to call from
// multiple goroutines with distinct seeds.
type Engine struct {
	sets     []ItemSet
	strategy Strategy
}

// NewEngine creates an engine over the given item sets.
func NewEngine(sets []ItemSet, strategy Strategy) *Engine {
	return &Engine{sets: sets, strategy: strategy}
}

// bucket is one item's round-scoped sort key. Rebuilt per round, discarded
// after scoring.
type bucket struct {
	digest   uint64
	tiebreak float64
	set      int
}

// Round performs one MinHash pass with the given seed and emits each scored
// pair once as (a, b, score). Scores are exact Jaccard similarities; the
// caller decides what to do with zero scores.
func (e *Engine) Round(seed uint64, emit func(a, b uint32, score float32)) int {
	if len(e.sets) < 2 {
		return 0
	}

	// The tiebreak prevents bias toward items adjacent in id order when
	// digests collide.
	rng := rand.New(rand.NewSource(int64(seed)))

	buckets := make([]bucket, len(e.sets))
	for i, set := range e.sets {
		buckets[i] = bucket{
			digest:   minDigest(seed, set.Users),
			tiebreak: rng.Float64(),
			set:      i,
		}
	}

	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].digest != buckets[j].digest {
			return buckets[i].digest < buckets[j].digest
		}
		return buckets[i].tiebreak < buckets[j].tiebreak
	})

	switch e.strategy {
	case StrategyExactBuckets:
		return e.scoreBuckets(buckets, emit)
	default:
		return e.scoreAdjacent(buckets, emit)
	}
}

func (e *Engine) scoreAdjacent(buckets []bucket, emit func(a, b uint32, score float32)) int {
	pairs := 0
	for i := 0; i+1 < len(buckets); i++ {
		a := e.sets[buckets[i].set]
		b := e.sets[buckets[i+1].set]
		emit(a.Item, b.Item, Jaccard(a.Users, b.Users))
		pairs++
	}
	return pairs
}

func (e *Engine) scoreBuckets(buckets []bucket, emit func(a, b uint32, score float32)) int {
	pairs := 0
	for lo := 0; lo < len(buckets); {
		hi := lo + 1
		for hi < len(buckets) && buckets[hi].digest == buckets[lo].digest {
			hi++
		}
		for i := lo; i < hi; i++ {
			for j := i + 1; j < hi; j++ {
				a := e.sets[buckets[i].set]
				b := e.sets[buckets[j].set]
				emit(a.Item, b.Item, Jaccard(a.Users, b.Users))
				pairs++
			}
		}
		lo = hi
	}
	return pairs
}

// Jaccard returns |A∩B| / |A∪B| as an exact similarity in [0, 1].
// Two empty sets score zero.
func Jaccard(a, b *roaring.Bitmap) float32 {
	intersection := a.AndCardinality(b)
	union := a.GetCardinality() + b.GetCardinality() - intersection
	if union == 0 {
		return 0
	}
	return float32(float64(intersection) / float64(union))
}

// minDigest is the one-permutation MinHash estimator: the minimum seeded
// hash over the set's elements. An empty set digests to MaxUint64 so it
// sorts last and never collides spuriously with real digests.
func minDigest(seed uint64, users *roaring.Bitmap) uint64 {
	best := uint64(1<<64 - 1)
	it := users.Iterator()
	for it.HasNext() {
		if h := hash64(seed, uint64(it.Next())); h < best {
			best = h
		}
	}
	return best
}

// hash64 is a splitmix64-style mix of the seed and one element. Changing
// the seed yields an effectively independent permutation of the element
// space.
func hash64(seed, x uint64) uint64 {
	z := x ^ seed
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}
