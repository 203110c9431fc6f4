// Package vector provides the similarity metrics used by the wordvec engine.
//
// This package consolidates all vector similarity calculations used
// throughout the codebase. Use these functions instead of implementing
// your own to ensure consistency and correctness.
//
// Main Functions:
//   - CosineSimilarity: Standard cosine similarity for float32 vectors
//   - CosineSimilarityNormalized: Fast path when both vectors are unit length
//   - DotProduct: Raw dot product
//   - EuclideanSimilarity: Distance-based similarity, 1/(1+distance)
//   - ManhattanSimilarity: L1-distance-based similarity, 1/(1+distance)
//   - Norm: L2 norm
//   - Normalize: Returns a normalized copy of a vector
//   - NormalizeInPlace: Normalizes a vector in-place (modifies input)
//
// All functions accumulate in float64 for precision and return 0 for
// degenerate inputs (length mismatch, empty or zero vectors), never NaN
// or Inf.
package vector

import "math"

// CosineSimilarity calculates cosine similarity between two float32 vectors.
// Returns value in range [-1, 1] where 1 = identical, 0 = orthogonal, -1 = opposite.
//
// Uses float64 accumulation for high precision, even with float32 inputs.
//
// Example:
//
//	a := []float32{1.0, 2.0, 3.0}
//	b := []float32{4.0, 5.0, 6.0}
//	sim := CosineSimilarity(a, b)  // Returns 0.9746318461970762
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProd, normA, normB float64
	for i := range a {
		dotProd += float64(a[i] * b[i])
		normA += float64(a[i] * a[i])
		normB += float64(b[i] * b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProd / (math.Sqrt(normA) * math.Sqrt(normB))
}

// CosineSimilarityNormalized calculates cosine similarity assuming both
// vectors are already unit length. For normalized vectors the dot product
// equals cosine similarity, so this skips the norm computation.
//
// Use only when vectors were normalized at load time.
func CosineSimilarityNormalized(a, b []float32) float64 {
	return DotProduct(a, b)
}

// DotProduct calculates the dot product of two float32 vectors.
// Returns float64 for precision, 0 on length mismatch.
//
// Example:
//
//	a := []float32{1.0, 2.0, 3.0}
//	b := []float32{4.0, 5.0, 6.0}
//	dot := DotProduct(a, b)  // Returns 32.0
func DotProduct(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var sum float64
	for i := range a {
		sum += float64(a[i] * b[i])
	}
	return sum
}

// EuclideanSimilarity calculates similarity based on Euclidean distance.
// Returns value in range (0, 1] where 1 = identical. Monotone with
// nearness: closer vectors score higher.
//
// Formula: 1 / (1 + distance)
//
// Example:
//
//	a := []float32{1.0, 2.0, 3.0}
//	b := []float32{4.0, 5.0, 6.0}
//	sim := EuclideanSimilarity(a, b)  // Returns ~0.161
func EuclideanSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var sum float64
	for i := range a {
		diff := float64(a[i] - b[i])
		sum += diff * diff
	}

	return 1.0 / (1.0 + math.Sqrt(sum))
}

// ManhattanSimilarity calculates similarity based on Manhattan (L1) distance.
// Returns value in range (0, 1] where 1 = identical.
//
// Formula: 1 / (1 + sum(|a[i] - b[i]|))
func ManhattanSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var sum float64
	for i := range a {
		sum += math.Abs(float64(a[i] - b[i]))
	}

	return 1.0 / (1.0 + sum)
}

// Norm returns the L2 norm of a vector.
func Norm(vec []float32) float64 {
	var sumSquares float64
	for _, v := range vec {
		sumSquares += float64(v) * float64(v)
	}
	return math.Sqrt(sumSquares)
}

// Normalize returns a normalized copy of the vector.
// The input vector is not modified. The zero vector normalizes to a zero
// vector of the same length.
//
// Example:
//
//	original := []float32{3.0, 4.0}
//	normalized := Normalize(original)  // Returns [0.6, 0.8]
//	// original is unchanged
func Normalize(vec []float32) []float32 {
	var sumSquares float64
	for _, v := range vec {
		sumSquares += float64(v * v)
	}

	if sumSquares == 0 {
		result := make([]float32, len(vec))
		return result
	}

	norm := math.Sqrt(sumSquares)
	normalized := make([]float32, len(vec))
	for i, v := range vec {
		normalized[i] = float32(float64(v) / norm)
	}
	return normalized
}

// NormalizeInPlace normalizes a vector in-place (modifies the input).
// After normalization the vector has unit length. The zero vector is left
// unchanged.
//
// WARNING: Modifies the input slice. Use Normalize() to preserve original.
func NormalizeInPlace(v []float32) {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	if sumSquares == 0 {
		return
	}
	norm := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= norm
	}
}
