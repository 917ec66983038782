// Package topk accumulates, per item, the K highest-scoring distinct
// candidates seen across all similarity rounds.
//
// State is two flat arrays (scores and candidate ids) of numItems×K slots
// rather than per-item containers, keeping the per-pair overhead at eight
// bytes regardless of how many candidate pairs the rounds emit.
package topk

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("topk: k must be positive")

	// ErrInvalidItemCount is returned when numItems is negative.
	ErrInvalidItemCount = errors.New("topk: item count must be non-negative")
)

// sentinelCandidate marks an empty slot.
const sentinelCandidate = int32(-1)

const numStripes = 64

// Entry is one drained candidate.
type Entry struct {
	Candidate uint32
	Score     float32
}

// Accumulator holds up to K scored candidates per item, sorted descending,
// with no duplicate candidate ids.
//
// Insert is safe for concurrent use across items and on the same item:
// slots are guarded by striped locks so two inserts never interleave on one
// item's slot array.
type Accumulator struct {
	numItems int
	k        int

	scores     []float32
	candidates []int32

	stripes [numStripes]sync.Mutex
}

// NewAccumulator creates an accumulator for numItems items with capacity k
// candidates each. All slots start at the sentinel (zero score, invalid id).
func NewAccumulator(numItems, k int) (*Accumulator, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidK, k)
	}
	if numItems < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidItemCount, numItems)
	}

	a := &Accumulator{
		numItems:   numItems,
		k:          k,
		scores:     make([]float32, numItems*k),
		candidates: make([]int32, numItems*k),
	}
	for i := range a.candidates {
		a.candidates[i] = sentinelCandidate
	}

	return a, nil
}

// K returns the per-item capacity.
func (a *Accumulator) K() int { return a.k }

// Items returns the number of items.
func (a *Accumulator) Items() int { return a.numItems }

// Insert offers (candidate, score) to item's slots.
//
// A candidate already present is left untouched, keeping its first observed
// score for that slot. Otherwise the pair is insertion-sorted into the K
// slots, displacing lower scores downward; the lowest pair falls off the
// end. Cost is O(K) per call.
func (a *Accumulator) Insert(item uint32, candidate uint32, score float32) {
	cand := int32(candidate)

	lock := &a.stripes[item%numStripes]
	lock.Lock()
	defer lock.Unlock()

	lo := int(item) * a.k
	hi := lo + a.k
	for i := lo; i < hi; i++ {
		if a.candidates[i] == cand {
			return
		}
		if score > a.scores[i] {
			a.scores[i], score = score, a.scores[i]
			a.candidates[i], cand = cand, a.candidates[i]
		}
	}
}

// Drain returns item's non-sentinel candidates in descending score order.
// Candidates that never scored above zero are omitted.
func (a *Accumulator) Drain(item uint32) []Entry {
	lo := int(item) * a.k
	hi := lo + a.k

	entries := make([]Entry, 0, a.k)
	for i := lo; i < hi; i++ {
		if a.candidates[i] == sentinelCandidate || a.scores[i] <= 0 {
			continue
		}
		entries = append(entries, Entry{
			Candidate: uint32(a.candidates[i]),
			Score:     a.scores[i],
		})
	}
	return entries
}
