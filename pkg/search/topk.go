package search

import (
	"container/heap"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/diachrony/wordvec/pkg/embedding"
	"github.com/diachrony/wordvec/pkg/math/vector"
)

// DefaultChunkSize is the number of artifact rows per parallel work unit.
// Small enough to balance across workers, large enough that heap
// bookkeeping is noise next to the dot products.
const DefaultChunkSize = 4096

// Options configures a top-k scan.
type Options struct {
	// K is the number of neighbors to return. Clamped to the vocabulary
	// size; 0 or negative returns nothing.
	K int

	// Threshold drops candidates scoring strictly below it. Callers
	// wanting every score pass NegInf(); the zero value filters at 0.
	Threshold float64

	// Exclude removes specific words from consideration (typically the
	// query word itself).
	Exclude map[string]struct{}

	// Metric selects the similarity function. Zero value is cosine.
	Metric Metric

	// Parallel splits the scan into chunks processed concurrently.
	// Sequential mode is preferred for small batches where goroutine
	// overhead dominates.
	Parallel bool

	// ChunkSize overrides DefaultChunkSize when Parallel is set.
	ChunkSize int
}

// Result is one scored neighbor.
type Result struct {
	Word  string  `json:"word"`
	Score float64 `json:"score"`
}

// TopK returns the k highest-scoring words for the query embedding,
// sorted descending by score. Ties break by artifact insertion order,
// deterministic within a call. The query embedding's norm must be
// consistent with its vector (use QueryEmbedding for raw vectors).
func TopK(a *embedding.Artifact, query embedding.Embedding, opts Options) []Result {
	w := a.Len()
	k := opts.K
	if k > w {
		k = w
	}
	if k <= 0 || len(query.Vector) != a.Dimensions() {
		return []Result{}
	}

	if opts.Metric == "" {
		opts.Metric = MetricCosine
	}
	threshold := opts.Threshold

	var h *candidateHeap
	if opts.Parallel && w > DefaultChunkSize {
		h = scanParallel(a, query, k, threshold, opts)
	} else {
		h = scanRange(a, query, k, threshold, opts, 0, w)
	}

	results := make([]Result, h.Len())
	sort.Sort(sort.Reverse(h))
	for i, c := range h.items {
		results[i] = Result{Word: a.Word(c.idx), Score: c.score}
	}
	return results
}

// QueryEmbedding wraps a raw vector with its computed norm for use as a
// top-k query.
func QueryEmbedding(vec []float32) embedding.Embedding {
	return embedding.Embedding{Vector: vec, Norm: float32(vector.Norm(vec))}
}

// NegInf is the default threshold accepting every score.
func NegInf() float64 { return math.Inf(-1) }

// scanRange scores rows [lo, hi) into a fresh k-heap.
func scanRange(a *embedding.Artifact, query embedding.Embedding, k int, threshold float64, opts Options, lo, hi int) *candidateHeap {
	h := newCandidateHeap(k)
	for i := lo; i < hi; i++ {
		if _, excluded := opts.Exclude[a.Word(i)]; excluded {
			continue
		}
		score := Similarity(query, a.At(i), opts.Metric)
		if score < threshold {
			continue
		}
		h.offer(candidate{idx: i, score: score})
	}
	return h
}

// scanParallel fans chunks out over the CPUs and reduces the per-chunk
// heaps into one. Workers never block mid-chunk; the reduction happens
// after all chunks complete.
func scanParallel(a *embedding.Artifact, query embedding.Embedding, k int, threshold float64, opts Options) *candidateHeap {
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	w := a.Len()
	chunks := (w + chunkSize - 1) / chunkSize
	local := make([]*candidateHeap, chunks)

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for c := 0; c < chunks; c++ {
		c := c
		lo := c * chunkSize
		hi := min(lo+chunkSize, w)
		g.Go(func() error {
			local[c] = scanRange(a, query, k, threshold, opts, lo, hi)
			return nil
		})
	}
	// Workers return nil; Wait only synchronizes completion.
	_ = g.Wait()

	merged := newCandidateHeap(k)
	for _, lh := range local {
		for _, c := range lh.items {
			merged.offer(c)
		}
	}
	return merged
}

// candidate pairs an artifact row index with its score. The index doubles
// as the tie-break: equal scores keep the earlier row.
type candidate struct {
	idx   int
	score float64
}

// candidateHeap is a bounded min-heap over candidates: the root is the
// current worst of the best k.
type candidateHeap struct {
	items []candidate
	cap   int
}

func newCandidateHeap(k int) *candidateHeap {
	return &candidateHeap{items: make([]candidate, 0, k), cap: k}
}

// offer inserts a candidate, evicting the current minimum when full.
func (h *candidateHeap) offer(c candidate) {
	if len(h.items) < h.cap {
		heap.Push(h, c)
		return
	}
	if h.less(h.items[0], c) {
		h.items[0] = c
		heap.Fix(h, 0)
	}
}

// less orders candidates ascending by score; on ties the later row index
// is "smaller" so it is evicted first, keeping earlier rows.
func (h *candidateHeap) less(a, b candidate) bool {
	if a.score != b.score {
		return a.score < b.score
	}
	return a.idx > b.idx
}

func (h *candidateHeap) Len() int            { return len(h.items) }
func (h *candidateHeap) Less(i, j int) bool  { return h.less(h.items[i], h.items[j]) }
func (h *candidateHeap) Swap(i, j int)       { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *candidateHeap) Push(x any)          { h.items = append(h.items, x.(candidate)) }
func (h *candidateHeap) Pop() any {
	old := h.items
	n := len(old)
	x := old[n-1]
	h.items = old[:n-1]
	return x
}
