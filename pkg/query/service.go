package query

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/diachrony/wordvec/pkg/cache"
	"github.com/diachrony/wordvec/pkg/metric"
	"github.com/diachrony/wordvec/pkg/search"
)

// Service orchestrates neighbor, similarity, analogy and batch queries
// over the cache hierarchy. All operations are read-only apart from
// cache population and statistics counters.
//
// Example:
//
//	svc := query.NewService(paths, collections, query.ServiceOptions{})
//	resp, err := svc.Neighbors(ctx, key, query.NeighborsRequest{
//		Word: "king",
//		K:    10,
//	})
type Service struct {
	paths       *cache.PathCache
	collections *cache.CollectionCache
	logger      *slog.Logger
	metrics     *metric.Metrics
}

// ServiceOptions configures a Service.
type ServiceOptions struct {
	// Logger receives per-request events. Nil means slog.Default.
	Logger *slog.Logger

	// Metrics receives request instrumentation. Nil disables it.
	Metrics *metric.Metrics
}

// NewService builds the query façade over the given caches.
func NewService(paths *cache.PathCache, collections *cache.CollectionCache, opts ServiceOptions) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		paths:       paths,
		collections: collections,
		logger:      logger,
		metrics:     opts.Metrics,
	}
}

// Neighbors returns the top-k most similar words to req.Word within the
// collection. An absent collection or query word yields an empty,
// well-formed response rather than an error.
func (s *Service) Neighbors(ctx context.Context, key cache.CollectionKey, req NeighborsRequest) (*NeighborsResponse, error) {
	start := time.Now()
	resp, err := s.neighbors(ctx, key, req)
	s.observe("neighbors", start, err)
	return resp, err
}

func (s *Service) neighbors(ctx context.Context, key cache.CollectionKey, req NeighborsRequest) (*NeighborsResponse, error) {
	word := strings.TrimSpace(req.Word)
	if word == "" {
		return nil, invalidInput("word must not be empty")
	}
	k, err := clampNeighborsK(req.K)
	if err != nil {
		return nil, err
	}
	m, err := parseMetric(req.Metric)
	if err != nil {
		return nil, err
	}
	threshold := NoThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	resp := &NeighborsResponse{
		Neighbors: []Neighbor{},
		QueryWord: word,
		K:         k,
		Threshold: threshold,
	}

	h, ok, err := s.collections.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return resp, nil
	}
	defer h.Close()
	resp.HasEmbeddings = true

	art := h.Artifact()
	q, found := art.Lookup(word)
	if !found {
		return resp, nil
	}

	results := search.TopK(art, q, search.Options{
		K:         k,
		Threshold: threshold,
		Exclude:   map[string]struct{}{word: {}},
		Metric:    m,
		Parallel:  req.Parallel,
	})
	resp.Neighbors = toNeighbors(results, req.IncludeScores)
	return resp, nil
}

// Similarity returns the pairwise similarity of two words. If either
// word is missing, or the collection has no embeddings, the score is 0
// and BothFound is false.
func (s *Service) Similarity(ctx context.Context, key cache.CollectionKey, word1, word2, metricName string) (*SimilarityResponse, error) {
	start := time.Now()
	resp, err := s.similarity(ctx, key, word1, word2, metricName)
	s.observe("similarity", start, err)
	return resp, err
}

func (s *Service) similarity(ctx context.Context, key cache.CollectionKey, word1, word2, metricName string) (*SimilarityResponse, error) {
	word1 = strings.TrimSpace(word1)
	word2 = strings.TrimSpace(word2)
	if word1 == "" || word2 == "" {
		return nil, invalidInput("both words must be non-empty")
	}
	m, err := parseMetric(metricName)
	if err != nil {
		return nil, err
	}

	resp := &SimilarityResponse{
		Word1:  word1,
		Word2:  word2,
		Metric: string(m),
	}

	h, ok, err := s.collections.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return resp, nil
	}
	defer h.Close()
	resp.HasEmbeddings = true

	art := h.Artifact()
	a, found1 := art.Lookup(word1)
	b, found2 := art.Lookup(word2)
	if !found1 || !found2 {
		return resp, nil
	}
	resp.BothFound = true
	resp.Similarity = search.Similarity(a, b, m)
	return resp, nil
}

// Analogy answers "a is to b as c is to ?" with up to k candidates.
// If any of the three words is missing, AllWordsFound is false and the
// candidate list is empty.
func (s *Service) Analogy(ctx context.Context, key cache.CollectionKey, a, b, c string, k int) (*AnalogyResponse, error) {
	start := time.Now()
	resp, err := s.analogy(ctx, key, a, b, c, k)
	s.observe("analogy", start, err)
	return resp, err
}

func (s *Service) analogy(ctx context.Context, key cache.CollectionKey, a, b, c string, k int) (*AnalogyResponse, error) {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	c = strings.TrimSpace(c)
	if a == "" || b == "" || c == "" {
		return nil, invalidInput("analogy requires three non-empty words")
	}
	k, err := clampAnalogyK(k)
	if err != nil {
		return nil, err
	}

	resp := &AnalogyResponse{
		Analogy:    fmt.Sprintf("%s is to %s as %s is to ?", a, b, c),
		Candidates: []Neighbor{},
	}

	h, ok, err := s.collections.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return resp, nil
	}
	defer h.Close()
	resp.HasEmbeddings = true

	result := search.Analogy(h.Artifact(), a, b, c, search.Options{
		K:         k,
		Threshold: NoThreshold,
		Metric:    search.MetricCosine,
	})
	resp.AllWordsFound = result.AllWordsFound
	resp.Candidates = toNeighbors(result.Candidates, true)
	return resp, nil
}

// BatchNeighbors runs one neighbor query per input word under shared
// parameters. Batches over MaxBatchWords are rejected before any cache
// access.
func (s *Service) BatchNeighbors(ctx context.Context, key cache.CollectionKey, words []string, params NeighborsRequest) (*BatchNeighborsResponse, error) {
	start := time.Now()
	resp, err := s.batchNeighbors(ctx, key, words, params)
	s.observe("batch_neighbors", start, err)
	return resp, err
}

func (s *Service) batchNeighbors(ctx context.Context, key cache.CollectionKey, words []string, params NeighborsRequest) (*BatchNeighborsResponse, error) {
	if len(words) == 0 {
		return nil, invalidInput("batch must contain at least one word")
	}
	if len(words) > MaxBatchWords {
		return nil, invalidInput("batch size %d exceeds limit %d", len(words), MaxBatchWords)
	}
	// Validate the shared parameters once, up front.
	if _, err := clampNeighborsK(params.K); err != nil {
		return nil, err
	}
	if _, err := parseMetric(params.Metric); err != nil {
		return nil, err
	}
	for _, w := range words {
		if strings.TrimSpace(w) == "" {
			return nil, invalidInput("batch words must be non-empty")
		}
	}

	batchStart := time.Now()
	resp := &BatchNeighborsResponse{Results: make([]BatchWordResult, 0, len(words))}
	for _, w := range words {
		wordStart := time.Now()
		req := params
		req.Word = w
		nr, err := s.neighbors(ctx, key, req)
		if err != nil {
			return nil, err
		}
		if len(nr.Neighbors) > 0 {
			resp.Stats.WordsWithEmbeddings++
		}
		resp.Results = append(resp.Results, BatchWordResult{
			Word:             nr.QueryWord,
			Neighbors:        nr,
			ProcessingTimeMs: float64(time.Since(wordStart)) / float64(time.Millisecond),
		})
	}
	resp.Stats.WordsProcessed = len(words)
	resp.Stats.TotalTimeMs = float64(time.Since(batchStart)) / float64(time.Millisecond)
	resp.Stats.AvgTimePerWordMs = resp.Stats.TotalTimeMs / float64(len(words))
	return resp, nil
}

// Stats returns a point-in-time snapshot of the path cache.
func (s *Service) Stats() cache.Stats {
	return s.paths.Snapshot()
}

func (s *Service) observe(operation string, start time.Time, err error) {
	elapsed := time.Since(start)
	status := "ok"
	if err != nil {
		status = "error"
		s.logger.Error("query failed",
			"operation", operation,
			"duration", elapsed,
			"error", err)
	} else {
		s.logger.Debug("query served",
			"operation", operation,
			"duration", elapsed)
	}
	s.metrics.ObserveQuery(operation, status, elapsed)
}

func parseMetric(name string) (search.Metric, error) {
	m, err := search.ParseMetric(name)
	if err != nil {
		return "", invalidInput("%v", err)
	}
	return m, nil
}

func toNeighbors(results []search.Result, includeScores bool) []Neighbor {
	neighbors := make([]Neighbor, len(results))
	for i, r := range results {
		neighbors[i] = Neighbor{Word: r.Word}
		if includeScores {
			score := r.Score
			neighbors[i].Similarity = &score
		}
	}
	return neighbors
}
