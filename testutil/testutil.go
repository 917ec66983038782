// Package testutil provides deterministic helpers for tests.
package testutil

import (
	"fmt"
	"math/rand"
	"sync"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Uint64 returns a pseudo-random uint64.
func (r *RNG) Uint64() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Uint64()
}

// Float64 returns a pseudo-random number in [0.0,1.0).
func (r *RNG) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float64()
}

// ClusteredEdges generates (user, item) interaction pairs in numClusters
// disjoint communities: users of a cluster interact only with that
// cluster's items. Items within a cluster end up highly similar, items
// across clusters completely dissimilar.
func ClusteredEdges(rng *RNG, numClusters, usersPerCluster, itemsPerCluster int) [][2]string {
	var edges [][2]string
	for c := 0; c < numClusters; c++ {
		for u := 0; u < usersPerCluster; u++ {
			user := fmt.Sprintf("c%d-user%03d", c, u)
			for i := 0; i < itemsPerCluster; i++ {
				// Skip a random fifth of the pairs so sets differ.
				if rng.Intn(5) == 0 {
					continue
				}
				edges = append(edges, [2]string{user, fmt.Sprintf("c%d-item%03d", c, i)})
			}
		}
	}
	return edges
}
