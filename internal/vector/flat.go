// Package vector provides a flat in-memory vector index with exact L2 search.
package vector

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

// ErrDimensionMismatch is returned when a vector's length differs from the
// dimension established by the first vector added to the index. It indicates a
// programming or data-integrity error (e.g. corrupted persisted embeddings).
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Result is a single nearest-neighbor hit. Position is the insertion order of
// the matched vector; Distance is the L2 distance to the query.
type Result struct {
	Position int
	Distance float64
}

// FlatIndex is a brute-force exact L2 nearest-neighbor index. Vectors are
// searched by full scan, which is adequate at single-user corpus scale.
// Position i always refers to the i-th vector added since the last Rebuild.
type FlatIndex struct {
	mu         sync.RWMutex
	dimensions int // 0 until the first vector is added
	vectors    [][]float32
}

// NewFlatIndex returns an empty, dimensionless index. The dimension is pinned
// by the first vector ever added (or the first element of a Rebuild).
func NewFlatIndex() *FlatIndex {
	return &FlatIndex{}
}

// Add appends vectors in order. All vectors must match the established
// dimension; the first vector of an empty index establishes it. On a dimension
// mismatch nothing is appended and ErrDimensionMismatch is returned.
func (f *FlatIndex) Add(vectors [][]float32) error {
	if len(vectors) == 0 {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	dim := f.dimensions
	if dim == 0 {
		dim = len(vectors[0])
		if dim == 0 {
			return fmt.Errorf("%w: empty vector", ErrDimensionMismatch)
		}
	}
	for _, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(v), dim)
		}
	}
	for _, v := range vectors {
		vec := make([]float32, dim)
		copy(vec, v)
		f.vectors = append(f.vectors, vec)
	}
	f.dimensions = dim
	return nil
}

// Search returns the min(k, size) nearest vectors to query by L2 distance,
// ascending. An empty index returns nil rather than an error.
func (f *FlatIndex) Search(query []float32, k int) ([]Result, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if k <= 0 || len(f.vectors) == 0 {
		return nil, nil
	}
	if len(query) != f.dimensions {
		return nil, fmt.Errorf("%w: query has %d, index expects %d", ErrDimensionMismatch, len(query), f.dimensions)
	}
	results := make([]Result, len(f.vectors))
	for i, vec := range f.vectors {
		results[i] = Result{Position: i, Distance: l2Distance(query, vec)}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	if k > len(results) {
		k = len(results)
	}
	return results[:k], nil
}

// Rebuild discards all prior state and reconstructs the index from vectors.
// The dimension is re-established from the first element; an empty input
// leaves the index empty and dimensionless.
func (f *FlatIndex) Rebuild(vectors [][]float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(vectors) == 0 {
		f.dimensions = 0
		f.vectors = nil
		return nil
	}
	dim := len(vectors[0])
	if dim == 0 {
		return fmt.Errorf("%w: empty vector", ErrDimensionMismatch)
	}
	rebuilt := make([][]float32, 0, len(vectors))
	for _, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(v), dim)
		}
		vec := make([]float32, dim)
		copy(vec, v)
		rebuilt = append(rebuilt, vec)
	}
	f.dimensions = dim
	f.vectors = rebuilt
	return nil
}

// Size returns the number of vectors in the index.
func (f *FlatIndex) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.vectors)
}

// Dimensions returns the established dimension, or 0 for a fresh index.
func (f *FlatIndex) Dimensions() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dimensions
}

func l2Distance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
