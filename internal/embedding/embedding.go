// Package embedding maps text to fixed-dimension vectors. The primary path
// calls the OpenAI embeddings API; every failure falls back to a
// deterministic lexical hashing scheme so retrieval keeps working offline.
package embedding

import "math"

// DefaultDimension matches text-embedding-3-small.
const DefaultDimension = 1536

// Similarity returns the dot product of two vectors. When both inputs are
// unit-norm this equals their cosine similarity. Mismatched lengths are
// compared over the common prefix.
func Similarity(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot float32
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
	}
	return dot
}

// Normalize scales v to unit L2 norm in place. The zero vector is left
// untouched.
func Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}
