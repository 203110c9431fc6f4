package query

// Neighbor is one entry in a neighbor list. Similarity is omitted when
// the request did not ask for scores.
type Neighbor struct {
	Word       string   `json:"word"`
	Similarity *float64 `json:"similarity,omitempty"`
}

// NeighborsRequest carries the parameters of a neighbor query.
type NeighborsRequest struct {
	// Word is the query word. Required.
	Word string `json:"word"`

	// K is the number of neighbors. Zero means DefaultNeighborsK,
	// values above MaxNeighborsK clamp, negative is rejected.
	K int `json:"k"`

	// Threshold drops results scoring below it. Nil means no floor.
	Threshold *float64 `json:"threshold,omitempty"`

	// IncludeScores controls whether each neighbor carries its score.
	IncludeScores bool `json:"include_scores"`

	// Metric names the similarity metric. Empty means cosine.
	Metric string `json:"metric"`

	// Parallel enables chunked parallel scanning for large artifacts.
	Parallel bool `json:"parallel"`
}

// NeighborsResponse answers a neighbor query.
type NeighborsResponse struct {
	Neighbors     []Neighbor `json:"neighbors"`
	HasEmbeddings bool       `json:"has_embeddings"`
	QueryWord     string     `json:"query_word"`
	K             int        `json:"k"`
	Threshold     float64    `json:"threshold"`
}

// SimilarityResponse answers a pairwise similarity query.
type SimilarityResponse struct {
	Word1         string  `json:"word1"`
	Word2         string  `json:"word2"`
	Similarity    float64 `json:"similarity"`
	Metric        string  `json:"metric"`
	BothFound     bool    `json:"both_found"`
	HasEmbeddings bool    `json:"has_embeddings"`
}

// AnalogyResponse answers an analogy query.
type AnalogyResponse struct {
	Analogy       string     `json:"analogy"`
	Candidates    []Neighbor `json:"candidates"`
	AllWordsFound bool       `json:"all_words_found"`
	HasEmbeddings bool       `json:"has_embeddings"`
}

// BatchWordResult pairs one input word with its neighbor response and
// per-word processing time.
type BatchWordResult struct {
	Word             string             `json:"word"`
	Neighbors        *NeighborsResponse `json:"neighbors"`
	ProcessingTimeMs float64            `json:"processing_time_ms"`
}

// BatchStats aggregates timing over a batch request.
type BatchStats struct {
	TotalTimeMs         float64 `json:"total_time_ms"`
	WordsProcessed      int     `json:"words_processed"`
	WordsWithEmbeddings int     `json:"words_with_embeddings"`
	AvgTimePerWordMs    float64 `json:"avg_time_per_word_ms"`
}

// BatchNeighborsResponse answers a batch neighbor query.
type BatchNeighborsResponse struct {
	Results []BatchWordResult `json:"results"`
	Stats   BatchStats        `json:"stats"`
}
