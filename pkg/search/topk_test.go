package search

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diachrony/wordvec/pkg/embedding"
)

// buildArtifact creates a test artifact from word -> vector pairs in the
// given order.
func buildArtifact(t *testing.T, words []string, vectors [][]float32) *embedding.Artifact {
	t.Helper()
	b := embedding.NewBuilder(embedding.BuilderOptions{})
	for i, w := range words {
		require.NoError(t, b.Add(w, vectors[i]))
	}
	a, err := b.Build()
	require.NoError(t, err)
	return a
}

// randomArtifact creates w words of dimension d with seeded values.
func randomArtifact(t *testing.T, w, d int, seed int64) *embedding.Artifact {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	b := embedding.NewBuilder(embedding.BuilderOptions{})
	for i := 0; i < w; i++ {
		vec := make([]float32, d)
		for j := range vec {
			vec[j] = rng.Float32()*2 - 1
		}
		require.NoError(t, b.Add(fmt.Sprintf("w%05d", i), vec))
	}
	a, err := b.Build()
	require.NoError(t, err)
	return a
}

func TestParseMetric(t *testing.T) {
	for _, name := range []string{"cosine", "dot", "euclidean", "manhattan"} {
		m, err := ParseMetric(name)
		require.NoError(t, err)
		assert.Equal(t, Metric(name), m)
	}

	m, err := ParseMetric("")
	require.NoError(t, err)
	assert.Equal(t, MetricCosine, m)

	_, err = ParseMetric("chebyshev")
	assert.ErrorIs(t, err, ErrUnknownMetric)
}

func TestSimilarity_Cosine(t *testing.T) {
	a := QueryEmbedding([]float32{1, 0})
	b := QueryEmbedding([]float32{0.9, 0.1})

	got := Similarity(a, b, MetricCosine)
	assert.InDelta(t, 0.9939, got, 1e-4)

	zero := QueryEmbedding([]float32{0, 0})
	assert.Zero(t, Similarity(a, zero, MetricCosine))
	assert.Zero(t, Similarity(zero, a, MetricCosine))
}

func TestSimilarity_UsesPrecomputedNorms(t *testing.T) {
	// A deliberately wrong norm must change the cosine score, proving
	// the stored norm is used instead of being recomputed.
	a := embedding.Embedding{Vector: []float32{1, 0}, Norm: 2}
	b := QueryEmbedding([]float32{1, 0})

	assert.InDelta(t, 0.5, Similarity(a, b, MetricCosine), 1e-9)
}

func TestTopK_Basic(t *testing.T) {
	a := buildArtifact(t,
		[]string{"king", "queen", "pawn"},
		[][]float32{{1, 0}, {0.9, 0.1}, {-0.5, 0.3}})

	king, _ := a.Lookup("king")
	results := TopK(a, king, Options{
		K:         2,
		Threshold: NegInf(),
		Exclude:   map[string]struct{}{"king": {}},
		Metric:    MetricCosine,
	})

	require.Len(t, results, 2)
	assert.Equal(t, "queen", results[0].Word)
	assert.InDelta(t, 0.9939, results[0].Score, 1e-4)
	assert.Equal(t, "pawn", results[1].Word)
	assert.InDelta(t, -0.8575, results[1].Score, 1e-4)
}

func TestTopK_Exclusion(t *testing.T) {
	a := randomArtifact(t, 500, 16, 1)

	for _, word := range []string{"w00000", "w00250", "w00499"} {
		q, _ := a.Lookup(word)
		results := TopK(a, q, Options{
			K:         10,
			Threshold: NegInf(),
			Exclude:   map[string]struct{}{word: {}},
		})
		for _, r := range results {
			assert.NotEqual(t, word, r.Word, "query word leaked into neighbors")
		}
	}
}

func TestTopK_KClamp(t *testing.T) {
	a := randomArtifact(t, 20, 8, 2)
	q, _ := a.Lookup("w00000")

	t.Run("k within range", func(t *testing.T) {
		for k := 1; k <= 20; k++ {
			results := TopK(a, q, Options{K: k, Threshold: NegInf()})
			assert.Len(t, results, k)
		}
	})

	t.Run("k beyond vocabulary clamps", func(t *testing.T) {
		results := TopK(a, q, Options{K: 100, Threshold: NegInf()})
		assert.Len(t, results, 20)
	})

	t.Run("k zero", func(t *testing.T) {
		assert.Empty(t, TopK(a, q, Options{K: 0, Threshold: NegInf()}))
	})

	t.Run("k negative", func(t *testing.T) {
		assert.Empty(t, TopK(a, q, Options{K: -3, Threshold: NegInf()}))
	})
}

func TestTopK_Threshold(t *testing.T) {
	a := buildArtifact(t,
		[]string{"near", "mid", "far"},
		[][]float32{{1, 0}, {0.5, 0.5}, {-1, 0}})

	q := QueryEmbedding([]float32{1, 0})
	results := TopK(a, q, Options{K: 3, Threshold: 0.5})

	words := make([]string, len(results))
	for i, r := range results {
		words[i] = r.Word
		assert.GreaterOrEqual(t, r.Score, 0.5)
	}
	assert.Equal(t, []string{"near", "mid"}, words)
}

func TestTopK_SortedDescending(t *testing.T) {
	a := randomArtifact(t, 1000, 32, 3)
	q, _ := a.Lookup("w00042")

	results := TopK(a, q, Options{K: 50, Threshold: NegInf()})
	require.Len(t, results, 50)
	assert.True(t, sort.SliceIsSorted(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	}), "results must be sorted descending by score")
}

func TestTopK_DimensionMismatchReturnsEmpty(t *testing.T) {
	a := randomArtifact(t, 10, 8, 4)
	q := QueryEmbedding([]float32{1, 2, 3})
	assert.Empty(t, TopK(a, q, Options{K: 5, Threshold: NegInf()}))
}

func TestTopK_ParallelMatchesSequential(t *testing.T) {
	a := randomArtifact(t, 20_000, 24, 5)

	metrics := []Metric{MetricCosine, MetricDot, MetricEuclidean, MetricManhattan}
	for _, metric := range metrics {
		t.Run(string(metric), func(t *testing.T) {
			q, _ := a.Lookup("w00777")
			seq := TopK(a, q, Options{K: 25, Threshold: NegInf(), Metric: metric})
			par := TopK(a, q, Options{
				K: 25, Threshold: NegInf(), Metric: metric,
				Parallel: true, ChunkSize: 1024,
			})

			require.Len(t, par, len(seq))
			for i := range seq {
				assert.Equal(t, seq[i].Word, par[i].Word, "rank %d", i)
				assert.InDelta(t, seq[i].Score, par[i].Score, 1e-12)
			}
		})
	}
}

func TestTopK_TieBreakByInsertionOrder(t *testing.T) {
	// Three identical vectors: ties must resolve to earlier rows, and
	// identically on every call.
	a := buildArtifact(t,
		[]string{"first", "second", "third", "other"},
		[][]float32{{1, 0}, {1, 0}, {1, 0}, {0, 1}})

	q := QueryEmbedding([]float32{1, 0})
	for trial := 0; trial < 10; trial++ {
		results := TopK(a, q, Options{K: 2, Threshold: NegInf()})
		require.Len(t, results, 2)
		assert.Equal(t, "first", results[0].Word)
		assert.Equal(t, "second", results[1].Word)
	}
}

func TestTopK_NormalizedArtifactCosine(t *testing.T) {
	b := embedding.NewBuilder(embedding.BuilderOptions{Normalize: true})
	require.NoError(t, b.Add("a", []float32{3, 4}))
	require.NoError(t, b.Add("b", []float32{3, 4}))
	require.NoError(t, b.Add("c", []float32{-4, 3}))
	a, err := b.Build()
	require.NoError(t, err)

	q, _ := a.Lookup("a")
	results := TopK(a, q, Options{K: 3, Threshold: NegInf()})

	// a and b normalize to the same unit vector so both score exactly 1
	// and the tie resolves by insertion order; orthogonal c scores 0.
	assert.Equal(t, "a", results[0].Word)
	assert.Equal(t, "b", results[1].Word)
	assert.InDelta(t, 1.0, results[1].Score, 1e-6)
	assert.InDelta(t, 0.0, results[2].Score, 1e-6)
}

func TestAnalogy(t *testing.T) {
	a := buildArtifact(t,
		[]string{"king", "queen", "man", "woman", "tree"},
		[][]float32{
			{1, 1, 0},
			{1, 1, 1},
			{0.5, 0, 0},
			{0.5, 0, 1},
			{-1, -1, -1},
		})

	t.Run("finds the offset word", func(t *testing.T) {
		res := Analogy(a, "king", "queen", "man", Options{K: 2, Threshold: NegInf()})
		require.True(t, res.AllWordsFound)
		require.NotEmpty(t, res.Candidates)

		assert.Equal(t, "woman", res.Candidates[0].Word)
		for _, c := range res.Candidates {
			assert.NotContains(t, []string{"king", "queen", "man"}, c.Word)
		}
	})

	t.Run("missing word", func(t *testing.T) {
		res := Analogy(a, "king", "queen", "ghost", Options{K: 2, Threshold: NegInf()})
		assert.False(t, res.AllWordsFound)
		assert.Empty(t, res.Candidates)
	})
}

func TestSimilarity_AlwaysFinite(t *testing.T) {
	big := make([]float32, 4)
	for i := range big {
		big[i] = math.MaxFloat32
	}
	a := QueryEmbedding(big)
	b := QueryEmbedding(big)

	for _, m := range []Metric{MetricCosine, MetricDot, MetricEuclidean, MetricManhattan} {
		score := Similarity(a, b, m)
		assert.False(t, math.IsNaN(score), "metric %s produced NaN", m)
		assert.False(t, math.IsInf(score, 0), "metric %s produced Inf", m)
	}
}
