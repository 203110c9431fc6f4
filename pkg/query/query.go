// Package query is the façade over the embedding caches and the
// similarity kernel. It validates requests, resolves collections
// through the cache hierarchy, and shapes results into JSON-ready
// responses.
//
// Error surface:
//   - Input problems (bad metric, k out of range, empty word, oversized
//     batch) fail with ErrInvalidInput before any cache access.
//   - Absent data (embeddings disabled for the collection, query word
//     not in the vocabulary) is not an error: responses come back
//     well-formed with has_embeddings or found flags cleared.
//   - Infrastructure failures (resolver, loader, over-budget artifact)
//     propagate as errors with no response body.
package query

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidInput marks caller errors rejected before any cache access.
var ErrInvalidInput = errors.New("query: invalid input")

// Request limits.
const (
	DefaultNeighborsK = 10
	MaxNeighborsK     = 100
	DefaultAnalogyK   = 5
	MaxAnalogyK       = 20
	MaxBatchWords     = 50
)

// NoThreshold is the effective score floor when a request carries no
// threshold. Every representable float32 score passes it.
const NoThreshold = -math.MaxFloat64

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// clampNeighborsK applies the default and bounds for neighbor queries.
func clampNeighborsK(k int) (int, error) {
	if k < 0 {
		return 0, invalidInput("k must not be negative, got %d", k)
	}
	if k == 0 {
		return DefaultNeighborsK, nil
	}
	if k > MaxNeighborsK {
		return MaxNeighborsK, nil
	}
	return k, nil
}

// clampAnalogyK applies the default and bounds for analogy queries.
func clampAnalogyK(k int) (int, error) {
	if k < 0 {
		return 0, invalidInput("k must not be negative, got %d", k)
	}
	if k == 0 {
		return DefaultAnalogyK, nil
	}
	if k > MaxAnalogyK {
		return MaxAnalogyK, nil
	}
	return k, nil
}
