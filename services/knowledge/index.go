package knowledge

import (
	"slices"

	"github.com/upb/llm-chat-gateway/services"
)

// Hit is a search result expressed as an index position
type Hit struct {
	Position int
	Distance float32
}

// VectorIndex stores vectors by position and answers k-nearest-neighbor
// queries under squared L2 distance. Positions are dense and assigned in
// insertion order. Results are ordered by ascending distance, ties broken by
// ascending position. An approximate index can satisfy this interface as long
// as it keeps those ordering semantics.
type VectorIndex interface {
	Dimension() int
	Size() int
	Add(vec []float32) (int, error)
	Vector(pos int) []float32
	Search(query []float32, k int, live func(pos int) bool) ([]Hit, error)
}

// FlatIndex is an exact, brute-force L2 index
type FlatIndex struct {
	dimension int
	vectors   [][]float32
}

// NewFlatIndex creates an empty index of the given dimension
func NewFlatIndex(dimension int) *FlatIndex {
	return &FlatIndex{dimension: dimension}
}

func (ix *FlatIndex) Dimension() int { return ix.dimension }
func (ix *FlatIndex) Size() int      { return len(ix.vectors) }

// Add appends a copy of vec and returns its position
func (ix *FlatIndex) Add(vec []float32) (int, error) {
	if len(vec) != ix.dimension {
		return 0, services.DimensionMismatch(ix.dimension, len(vec))
	}
	ix.vectors = append(ix.vectors, append([]float32(nil), vec...))
	return len(ix.vectors) - 1, nil
}

// Vector returns the stored vector at pos. The slice must not be modified.
func (ix *FlatIndex) Vector(pos int) []float32 {
	return ix.vectors[pos]
}

// Search scans every position accepted by live and returns the k closest.
// A nil live func accepts all positions.
func (ix *FlatIndex) Search(query []float32, k int, live func(pos int) bool) ([]Hit, error) {
	if len(query) != ix.dimension {
		return nil, services.DimensionMismatch(ix.dimension, len(query))
	}
	if k <= 0 {
		return nil, nil
	}

	hits := make([]Hit, 0, len(ix.vectors))
	for pos, vec := range ix.vectors {
		if live != nil && !live(pos) {
			continue
		}
		hits = append(hits, Hit{Position: pos, Distance: squaredL2(query, vec)})
	}

	slices.SortFunc(hits, compareHits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func compareHits(a, b Hit) int {
	switch {
	case a.Distance < b.Distance:
		return -1
	case a.Distance > b.Distance:
		return 1
	}
	return a.Position - b.Position
}

func squaredL2(a, b []float32) float32 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return float32(sum)
}
