// Package similarity provides the vector primitives shared by clustering,
// assignment and classification: cosine similarity/distance and averaging.
package similarity

import "math"

// Cosine calculates the cosine similarity between two vectors.
// Mismatched lengths and zero-norm vectors yield a similarity of 0.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// CosineDistance calculates the cosine distance (1 - cosine similarity)
// between two vectors. Degenerate inputs yield the maximum distance of 1.
func CosineDistance(a, b []float64) float64 {
	return 1 - Cosine(a, b)
}

// Mean computes the arithmetic mean of the given vectors. Vectors whose
// length differs from the first valid vector are skipped. Returns nil when
// no valid vector remains.
func Mean(vectors [][]float64) []float64 {
	var mean []float64
	count := 0

	for _, v := range vectors {
		if len(v) == 0 {
			continue
		}
		if mean == nil {
			mean = make([]float64, len(v))
		}
		if len(v) != len(mean) {
			continue
		}
		for i := range v {
			mean[i] += v[i]
		}
		count++
	}

	if count == 0 {
		return nil
	}

	for i := range mean {
		mean[i] /= float64(count)
	}

	return mean
}
