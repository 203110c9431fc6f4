// Package embedding defines the immutable in-memory representation of a
// loaded word-embedding file and the shared handles through which callers
// access it.
//
// An Artifact maps words to dense float32 vectors of a single dimension.
// Artifacts are built once by the loader, published, and never mutated;
// any number of goroutines may read one concurrently without locking.
// Callers never hold an Artifact directly - they hold a Handle, a
// ref-counted read-only reference that keeps the artifact alive even
// after cache eviction.
//
// Example:
//
//	b := embedding.NewBuilder(embedding.BuilderOptions{Dimensions: 300})
//	b.Add("king", vec)
//	artifact, err := b.Build()
//
//	handle := embedding.NewHandle(artifact)
//	defer handle.Close()
//
//	emb, ok := handle.Artifact().Lookup("king")
package embedding

import (
	"errors"
	"fmt"
	"time"

	"github.com/diachrony/wordvec/pkg/math/vector"
)

var (
	// ErrDimensionMismatch is returned when a vector's dimension differs
	// from the artifact's established dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrInvalidWord is returned when a word fails the validity predicate.
	ErrInvalidWord = errors.New("invalid word")

	// ErrEmptyArtifact is returned when building an artifact with no words.
	ErrEmptyArtifact = errors.New("artifact contains no words")
)

// perWordOverhead approximates map bookkeeping plus slice headers per
// stored word, on top of the string bytes and vector bytes.
const perWordOverhead = 32

// Embedding is an immutable dense vector plus its precomputed L2 norm.
//
// The Vector slice aliases the artifact's backing storage and must not be
// modified. Norm is consistent with Vector at load time; for artifacts
// normalized on load it is exactly 1.
type Embedding struct {
	Vector []float32
	Norm   float32
}

// Artifact is an immutable word -> Embedding mapping of uniform dimension.
//
// Storage is a single flat W x D float32 block. Words are kept in
// insertion order, which gives the top-k kernel a stable iteration order
// and deterministic tie-breaking within a run.
type Artifact struct {
	words []string
	data  []float32 // flat, len = W*D
	norms []float32
	index map[string]int32

	dim        int
	normalized bool

	// Metadata recorded at load time.
	format       string
	sourcePath   string
	loadDuration time.Duration
	byteCost     int64
}

// Len returns the number of words W in the artifact.
func (a *Artifact) Len() int { return len(a.words) }

// Dimensions returns the vector dimension D.
func (a *Artifact) Dimensions() int { return a.dim }

// Normalized reports whether vectors were L2-normalized at load time.
func (a *Artifact) Normalized() bool { return a.normalized }

// Format returns the source format tag ("text", "word2vec", "fasttext",
// "container").
func (a *Artifact) Format() string { return a.format }

// SourcePath returns the path the artifact was loaded from.
func (a *Artifact) SourcePath() string { return a.sourcePath }

// LoadDuration returns how long the load took.
func (a *Artifact) LoadDuration() time.Duration { return a.loadDuration }

// ByteCost returns the estimated in-memory size of the artifact:
// vector bytes (4*D*W) plus per-word string and bookkeeping overhead.
func (a *Artifact) ByteCost() int64 { return a.byteCost }

// Word returns the word at insertion index i.
func (a *Artifact) Word(i int) string { return a.words[i] }

// Words returns the words in insertion order. The returned slice is the
// artifact's own storage and must not be modified.
func (a *Artifact) Words() []string { return a.words }

// Contains reports whether the word is present.
func (a *Artifact) Contains(word string) bool {
	_, ok := a.index[word]
	return ok
}

// Lookup returns the embedding for a word.
func (a *Artifact) Lookup(word string) (Embedding, bool) {
	i, ok := a.index[word]
	if !ok {
		return Embedding{}, false
	}
	return a.At(int(i)), true
}

// At returns the embedding at insertion index i. The vector aliases the
// artifact's backing storage.
func (a *Artifact) At(i int) Embedding {
	return Embedding{
		Vector: a.data[i*a.dim : (i+1)*a.dim : (i+1)*a.dim],
		Norm:   a.norms[i],
	}
}

// EstimateBytes estimates the in-memory cost of an artifact with W words
// of dimension D whose words total wordBytes bytes of UTF-8.
func EstimateBytes(w, d int, wordBytes int64) int64 {
	return int64(4*d*w) + int64(w*perWordOverhead) + wordBytes
}

// BuilderOptions configures artifact construction.
type BuilderOptions struct {
	// Dimensions fixes the vector dimension. 0 means the first added
	// vector establishes it.
	Dimensions int

	// MaxWords caps the number of words. 0 = unbounded. Adds beyond the
	// cap are ignored and Full() starts returning true.
	MaxWords int

	// Normalize L2-normalizes each vector as it is added and records a
	// norm of exactly 1. Zero vectors are stored unchanged with norm 0.
	Normalize bool

	// Format tag recorded on the built artifact.
	Format string

	// SourcePath recorded on the built artifact.
	SourcePath string
}

// Builder accumulates words and vectors into an Artifact.
//
// Not safe for concurrent use; loaders are single-goroutine by design.
type Builder struct {
	opts      BuilderOptions
	words     []string
	data      []float32
	norms     []float32
	index     map[string]int32
	wordBytes int64
	started   time.Time
}

// NewBuilder creates a Builder.
func NewBuilder(opts BuilderOptions) *Builder {
	return &Builder{
		opts:    opts,
		index:   make(map[string]int32),
		started: time.Now(),
	}
}

// Dimensions returns the established dimension, or 0 if none yet.
func (b *Builder) Dimensions() int { return b.opts.Dimensions }

// Len returns the number of words added so far.
func (b *Builder) Len() int { return len(b.words) }

// Full reports whether the MaxWords cap has been reached.
func (b *Builder) Full() bool {
	return b.opts.MaxWords > 0 && len(b.words) >= b.opts.MaxWords
}

// Add appends a word and its vector.
//
// The vector is copied into the builder's flat storage. Returns
// ErrDimensionMismatch if the dimension differs from the established one
// and ErrInvalidWord if the word fails ValidWord. Duplicate words keep
// the first occurrence and are silently ignored, matching the behavior
// of every upstream embedding tool. Adds past the MaxWords cap are
// dropped.
func (b *Builder) Add(word string, vec []float32) error {
	if !ValidWord(word) {
		return fmt.Errorf("%w: %q", ErrInvalidWord, truncateForError(word))
	}
	if b.opts.Dimensions == 0 {
		b.opts.Dimensions = len(vec)
	}
	if len(vec) != b.opts.Dimensions {
		return fmt.Errorf("%w: got %d want %d", ErrDimensionMismatch, len(vec), b.opts.Dimensions)
	}
	if b.Full() {
		return nil
	}
	if _, dup := b.index[word]; dup {
		return nil
	}

	idx := int32(len(b.words))
	b.words = append(b.words, word)
	b.wordBytes += int64(len(word))

	start := len(b.data)
	b.data = append(b.data, vec...)

	if b.opts.Normalize {
		stored := b.data[start:]
		vector.NormalizeInPlace(stored)
		if vector.Norm(stored) == 0 {
			b.norms = append(b.norms, 0)
		} else {
			b.norms = append(b.norms, 1)
		}
	} else {
		b.norms = append(b.norms, float32(vector.Norm(vec)))
	}

	b.index[word] = idx
	return nil
}

// Build finalizes the artifact. Returns ErrEmptyArtifact if no words were
// added.
func (b *Builder) Build() (*Artifact, error) {
	if len(b.words) == 0 {
		return nil, ErrEmptyArtifact
	}

	dim := b.opts.Dimensions
	w := len(b.words)
	return &Artifact{
		words:        b.words,
		data:         b.data,
		norms:        b.norms,
		index:        b.index,
		dim:          dim,
		normalized:   b.opts.Normalize,
		format:       b.opts.Format,
		sourcePath:   b.opts.SourcePath,
		loadDuration: time.Since(b.started),
		byteCost:     EstimateBytes(w, dim, b.wordBytes),
	}, nil
}

func truncateForError(s string) string {
	const max = 40
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
