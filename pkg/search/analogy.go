package search

import (
	"github.com/diachrony/wordvec/pkg/embedding"
)

// AnalogyResult holds the candidates for "a is to b as c is to ?".
type AnalogyResult struct {
	Candidates    []Result
	AllWordsFound bool
}

// Analogy solves the vector-offset analogy: the query is
// emb(b) - emb(a) + emb(c), scanned against the artifact with a, b and c
// excluded from the candidates. If any of the three words is missing the
// result is empty with AllWordsFound false.
func Analogy(art *embedding.Artifact, a, b, c string, opts Options) AnalogyResult {
	ea, okA := art.Lookup(a)
	eb, okB := art.Lookup(b)
	ec, okC := art.Lookup(c)
	if !okA || !okB || !okC {
		return AnalogyResult{Candidates: []Result{}, AllWordsFound: false}
	}

	dim := art.Dimensions()
	q := make([]float32, dim)
	for i := 0; i < dim; i++ {
		q[i] = eb.Vector[i] - ea.Vector[i] + ec.Vector[i]
	}

	exclude := make(map[string]struct{}, len(opts.Exclude)+3)
	for w := range opts.Exclude {
		exclude[w] = struct{}{}
	}
	exclude[a] = struct{}{}
	exclude[b] = struct{}{}
	exclude[c] = struct{}{}
	opts.Exclude = exclude

	return AnalogyResult{
		Candidates:    TopK(art, QueryEmbedding(q), opts),
		AllWordsFound: true,
	}
}
