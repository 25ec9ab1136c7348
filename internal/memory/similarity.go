package memory

import "math"

// Cosine returns the cosine similarity between two vectors. Stored vectors
// are normalized before truncation to the fixed width, so their norms can be
// below one; dividing by the actual norms keeps scores comparable. Returns 0
// when either vector is zero or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
