package rag

import (
	"math"
	"sort"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func docs(vectors ...[]float32) []EmbeddedDocument[int] {
	out := make([]EmbeddedDocument[int], len(vectors))
	for i, v := range vectors {
		out[i] = EmbeddedDocument[int]{Embedding: v, Document: i}
	}
	return out
}

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name    string
		a, b    []float32
		want    float32
		wantErr error
	}{
		{name: "identical", a: []float32{1, 0}, b: []float32{2, 0}, want: 0},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 3}, want: 1},
		{name: "opposite", a: []float32{1, 1}, b: []float32{-1, -1}, want: 2},
		{name: "zero norm", a: []float32{0, 0}, b: []float32{1, 0}, wantErr: ErrZeroNorm},
		{name: "zero norm rhs", a: []float32{1, 0}, b: []float32{0, 0}, wantErr: ErrZeroNorm},
		{name: "mismatch", a: []float32{1, 0}, b: []float32{1, 0, 0}, wantErr: ErrDimensionMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := CosineDistance(tt.a, tt.b)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, d, 1e-6)
		})
	}
}

func TestTopK_HandComputed(t *testing.T) {
	query := []float32{1, 0}
	candidates := docs(
		[]float32{0, 1},     // 0: distance 1
		[]float32{1, 0},     // 1: distance 0
		[]float32{1, 1},     // 2: distance 1 - 1/sqrt2
		[]float32{-1, 0},    // 3: distance 2
		[]float32{0.9, 0.1}, // 4: nearly aligned
	)

	results, err := TopK(query, candidates, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, 1, results[0].Document.Document)
	assert.Equal(t, 4, results[1].Document.Document)
	assert.Equal(t, 2, results[2].Document.Document)
	assert.InDelta(t, 1-1/math.Sqrt2, results[2].Distance, 1e-6)
}

func TestTopK_KLargerThanN(t *testing.T) {
	results, err := TopK([]float32{1, 0}, docs([]float32{0, 1}, []float32{1, 0}), 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].Document.Document)
}

func TestTopK_EdgeCases(t *testing.T) {
	t.Run("k zero", func(t *testing.T) {
		results, err := TopK([]float32{1}, docs([]float32{1}), 0)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("no candidates", func(t *testing.T) {
		results, err := TopK[int]([]float32{1}, nil, 3)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("zero norm query", func(t *testing.T) {
		_, err := TopK([]float32{0, 0}, docs([]float32{1, 0}), 1)
		assert.ErrorIs(t, err, ErrZeroNorm)
	})

	t.Run("unusable candidates are skipped", func(t *testing.T) {
		results, err := TopK([]float32{1, 0}, docs(
			[]float32{0, 0},
			[]float32{1, 0, 0},
			[]float32{0, 1},
		), 3)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, 2, results[0].Document.Document)
	})
}

// TopK 结果应与全量排序后截断一致
func TestTopK_MatchesFullSort(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		dim := rapid.IntRange(1, 8).Draw(rt, "dim")
		n := rapid.IntRange(0, 40).Draw(rt, "n")
		k := rapid.IntRange(0, 50).Draw(rt, "k")
		component := rapid.Float32Range(-10, 10)

		query := rapid.SliceOfN(component, dim, dim).Draw(rt, "query")
		if norm(query) == 0 {
			query[0] = 1
		}
		vectors := make([][]float32, n)
		for i := range vectors {
			vectors[i] = rapid.SliceOfN(component, dim, dim).Draw(rt, "vec")
		}

		results, err := TopK(query, docs(vectors...), k)
		if err != nil {
			rt.Fatalf("unexpected error: %v", err)
		}

		var all []float32
		for _, v := range vectors {
			if d, err := CosineDistance(query, v); err == nil {
				all = append(all, d)
			}
		}
		sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })

		want := min(k, len(all))
		if len(results) != want {
			rt.Fatalf("len = %d, want %d", len(results), want)
		}
		for i, r := range results {
			if r.Distance != all[i] {
				rt.Fatalf("result %d distance %v, want %v", i, r.Distance, all[i])
			}
		}
	})
}

func TestProperty_TopKAscending(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("results are sorted ascending by distance", prop.ForAll(
		func(raw []float64, k int) bool {
			candidates := make([]EmbeddedDocument[int], 0, len(raw)/2)
			for i := 0; i+1 < len(raw); i += 2 {
				candidates = append(candidates, EmbeddedDocument[int]{
					Embedding: []float32{float32(raw[i]), float32(raw[i+1])},
					Document:  i / 2,
				})
			}
			results, err := TopK([]float32{1, 0.5}, candidates, k)
			if err != nil {
				return false
			}
			if len(results) > k {
				return false
			}
			for i := 1; i < len(results); i++ {
				if results[i-1].Distance > results[i].Distance {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Float64Range(-100, 100)),
		gen.IntRange(1, 20),
	))

	properties.TestingRun(t)
}
