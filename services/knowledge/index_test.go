package knowledge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upb/llm-chat-gateway/services"
)

func TestFlatIndex_Add(t *testing.T) {
	ix := NewFlatIndex(2)

	pos, err := ix.Add([]float32{1, 2})
	require.NoError(t, err)
	assert.Equal(t, 0, pos)

	pos, err = ix.Add([]float32{3, 4})
	require.NoError(t, err)
	assert.Equal(t, 1, pos)
	assert.Equal(t, 2, ix.Size())

	_, err = ix.Add([]float32{1, 2, 3})
	assert.True(t, services.IsDimensionMismatch(err))
	assert.Equal(t, 2, ix.Size())
}

func TestFlatIndex_AddCopiesInput(t *testing.T) {
	ix := NewFlatIndex(2)
	vec := []float32{1, 1}
	_, err := ix.Add(vec)
	require.NoError(t, err)

	vec[0] = 99
	assert.Equal(t, []float32{1, 1}, ix.Vector(0))
}

func TestFlatIndex_Search(t *testing.T) {
	ix := NewFlatIndex(2)
	for _, v := range [][]float32{
		{10, 0}, // 0
		{1, 0},  // 1
		{0, 1},  // 2 ties with 1 for a query at origin
		{5, 5},  // 3
		{-1, 0}, // 4 ties with 1 and 2
	} {
		_, err := ix.Add(v)
		require.NoError(t, err)
	}

	tests := []struct {
		name      string
		query     []float32
		k         int
		live      func(int) bool
		positions []int
	}{
		{
			name:      "ties broken by insertion position",
			query:     []float32{0, 0},
			k:         3,
			positions: []int{1, 2, 4},
		},
		{
			name:      "k larger than index returns all sorted",
			query:     []float32{0, 0},
			k:         50,
			positions: []int{1, 2, 4, 3, 0},
		},
		{
			name:      "nearest first",
			query:     []float32{9, 0},
			k:         2,
			positions: []int{0, 3},
		},
		{
			name:      "dead positions skipped",
			query:     []float32{0, 0},
			k:         2,
			live:      func(pos int) bool { return pos != 1 },
			positions: []int{2, 4},
		},
		{
			name:      "zero k",
			query:     []float32{0, 0},
			k:         0,
			positions: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits, err := ix.Search(tt.query, tt.k, tt.live)
			require.NoError(t, err)

			var got []int
			for i, h := range hits {
				got = append(got, h.Position)
				if i > 0 {
					assert.LessOrEqual(t, hits[i-1].Distance, h.Distance)
				}
			}
			assert.Equal(t, tt.positions, got)
		})
	}
}

func TestFlatIndex_SearchDistances(t *testing.T) {
	ix := NewFlatIndex(3)
	_, _ = ix.Add([]float32{1, 2, 2})

	hits, err := ix.Search([]float32{0, 0, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.InDelta(t, 9.0, hits[0].Distance, 1e-6)
}

func TestFlatIndex_SearchDimensionMismatch(t *testing.T) {
	ix := NewFlatIndex(3)
	_, err := ix.Search([]float32{0, 0}, 1, nil)
	assert.True(t, services.IsDimensionMismatch(err))
}

func TestFlatIndex_SearchEmpty(t *testing.T) {
	ix := NewFlatIndex(2)
	hits, err := ix.Search([]float32{0, 0}, 3, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)
}
