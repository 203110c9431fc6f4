package embedding

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_Basic(t *testing.T) {
	b := NewBuilder(BuilderOptions{Format: "text", SourcePath: "glove.2d.txt"})

	require.NoError(t, b.Add("king", []float32{1, 0}))
	require.NoError(t, b.Add("queen", []float32{0.9, 0.1}))

	a, err := b.Build()
	require.NoError(t, err)

	assert.Equal(t, 2, a.Len())
	assert.Equal(t, 2, a.Dimensions())
	assert.Equal(t, "text", a.Format())
	assert.Equal(t, "glove.2d.txt", a.SourcePath())
	assert.False(t, a.Normalized())

	emb, ok := a.Lookup("king")
	require.True(t, ok)
	assert.Equal(t, []float32{1, 0}, emb.Vector)
	assert.InDelta(t, 1.0, float64(emb.Norm), 1e-6)

	_, ok = a.Lookup("pawn")
	assert.False(t, ok)
}

func TestBuilder_NormRecording(t *testing.T) {
	b := NewBuilder(BuilderOptions{})
	require.NoError(t, b.Add("v", []float32{3, 4}))

	a, err := b.Build()
	require.NoError(t, err)

	emb, _ := a.Lookup("v")
	assert.InDelta(t, 5.0, float64(emb.Norm), 1e-5)
}

func TestBuilder_Normalize(t *testing.T) {
	b := NewBuilder(BuilderOptions{Normalize: true})
	require.NoError(t, b.Add("v", []float32{3, 4}))
	require.NoError(t, b.Add("zero", []float32{0, 0}))

	a, err := b.Build()
	require.NoError(t, err)
	assert.True(t, a.Normalized())

	emb, _ := a.Lookup("v")
	assert.InDelta(t, 0.6, float64(emb.Vector[0]), 1e-6)
	assert.InDelta(t, 0.8, float64(emb.Vector[1]), 1e-6)
	assert.Equal(t, float32(1), emb.Norm)

	// The zero vector is left unchanged and records norm 0.
	zero, _ := a.Lookup("zero")
	assert.Equal(t, []float32{0, 0}, zero.Vector)
	assert.Equal(t, float32(0), zero.Norm)
}

func TestBuilder_DimensionMismatch(t *testing.T) {
	b := NewBuilder(BuilderOptions{})
	require.NoError(t, b.Add("a", []float32{1, 2, 3}))

	err := b.Add("b", []float32{1, 2})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestBuilder_FixedDimension(t *testing.T) {
	b := NewBuilder(BuilderOptions{Dimensions: 3})
	err := b.Add("a", []float32{1, 2})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestBuilder_MaxWords(t *testing.T) {
	b := NewBuilder(BuilderOptions{MaxWords: 2})
	require.NoError(t, b.Add("a", []float32{1}))
	require.NoError(t, b.Add("b", []float32{2}))
	assert.True(t, b.Full())

	// Past the cap, adds are dropped without error.
	require.NoError(t, b.Add("c", []float32{3}))

	a, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, 2, a.Len())
	assert.False(t, a.Contains("c"))
}

func TestBuilder_DuplicateKeepsFirst(t *testing.T) {
	b := NewBuilder(BuilderOptions{})
	require.NoError(t, b.Add("w", []float32{1, 0}))
	require.NoError(t, b.Add("w", []float32{0, 1}))

	a, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, 1, a.Len())

	emb, _ := a.Lookup("w")
	assert.Equal(t, []float32{1, 0}, emb.Vector)
}

func TestBuilder_InvalidWord(t *testing.T) {
	b := NewBuilder(BuilderOptions{})
	assert.ErrorIs(t, b.Add("", []float32{1}), ErrInvalidWord)
	assert.ErrorIs(t, b.Add("bad\x00word", []float32{1}), ErrInvalidWord)
}

func TestBuilder_Empty(t *testing.T) {
	b := NewBuilder(BuilderOptions{})
	_, err := b.Build()
	assert.ErrorIs(t, err, ErrEmptyArtifact)
}

func TestArtifact_ByteCost(t *testing.T) {
	b := NewBuilder(BuilderOptions{})
	require.NoError(t, b.Add("ab", []float32{1, 2, 3}))
	require.NoError(t, b.Add("cdef", []float32{4, 5, 6}))

	a, err := b.Build()
	require.NoError(t, err)

	// 2 words x 3 dims x 4 bytes + 2 x 32 overhead + 6 word bytes
	assert.Equal(t, int64(2*3*4+2*32+6), a.ByteCost())
	assert.Equal(t, a.ByteCost(), EstimateBytes(2, 3, 6))
}

func TestArtifact_InsertionOrder(t *testing.T) {
	b := NewBuilder(BuilderOptions{})
	words := []string{"gamma", "alpha", "beta"}
	for i, w := range words {
		require.NoError(t, b.Add(w, []float32{float32(i)}))
	}

	a, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, words, a.Words())
	for i, w := range words {
		assert.Equal(t, w, a.Word(i))
		assert.Equal(t, float32(i), a.At(i).Vector[0])
	}
}

func TestValidWord(t *testing.T) {
	tests := []struct {
		name  string
		word  string
		valid bool
	}{
		{"simple", "king", true},
		{"unicode", "königin", true},
		{"empty", "", false},
		{"tab", "a\tb", false},
		{"newline", "a\nb", false},
		{"nul", "a\x00b", false},
		{"too many bytes", strings.Repeat("x", 201), false},
		{"200 ascii chars exceeds rune cap", strings.Repeat("x", 200), false},
		{"100 runes ok", strings.Repeat("x", 100), true},
		{"101 runes", strings.Repeat("x", 101), false},
		{"multibyte under byte cap", strings.Repeat("ü", 100), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, ValidWord(tt.word))
		})
	}
}

func TestHandle_Refcounting(t *testing.T) {
	b := NewBuilder(BuilderOptions{})
	require.NoError(t, b.Add("w", []float32{1}))
	a, err := b.Build()
	require.NoError(t, err)

	h := NewHandle(a)
	assert.Equal(t, int64(1), h.Refs())

	h2 := h.Acquire()
	assert.Equal(t, int64(2), h.Refs())
	assert.True(t, h.Same(h2))

	// The artifact stays readable through h2 after the original closes,
	// mirroring eviction-while-held.
	h.Close()
	assert.Equal(t, int64(1), h2.Refs())
	_, ok := h2.Artifact().Lookup("w")
	assert.True(t, ok)

	// Double close is a no-op.
	h.Close()
	assert.Equal(t, int64(1), h2.Refs())

	h2.Close()
}

func TestHandle_Same(t *testing.T) {
	b1 := NewBuilder(BuilderOptions{})
	require.NoError(t, b1.Add("w", []float32{1}))
	a1, _ := b1.Build()

	b2 := NewBuilder(BuilderOptions{})
	require.NoError(t, b2.Add("w", []float32{1}))
	a2, _ := b2.Build()

	h1 := NewHandle(a1)
	h2 := NewHandle(a2)
	defer h1.Close()
	defer h2.Close()

	assert.False(t, h1.Same(h2))
	assert.True(t, h1.Same(h1.Acquire()))
	assert.False(t, h1.Same(nil))
}

func TestEmbedding_NormConsistency(t *testing.T) {
	b := NewBuilder(BuilderOptions{})
	vecs := map[string][]float32{
		"a": {1, 2, 3},
		"b": {-0.5, 0.25, 4},
		"c": {1e-3, 2e-3, 3e-3},
	}
	for w, v := range vecs {
		require.NoError(t, b.Add(w, v))
	}
	a, err := b.Build()
	require.NoError(t, err)

	for w, v := range vecs {
		emb, ok := a.Lookup(w)
		require.True(t, ok)

		var sum float64
		for _, x := range v {
			sum += float64(x) * float64(x)
		}
		want := math.Sqrt(sum)
		assert.InDelta(t, want, float64(emb.Norm), 1e-5*want)
	}
}
