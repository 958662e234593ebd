package vectorindex

import "math"

// CosineSimilarity returns the cosine of the angle between a and b,
// accumulated in float64. A zero-magnitude operand yields 0. Callers
// guarantee equal lengths.
func CosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
