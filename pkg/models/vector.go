package models

import "math"

// Vector is a fixed-length image embedding. A nil Vector means the embedding
// is absent, which is a valid, non-error state for a product.
type Vector []float32

// Dim returns the vector dimensionality.
func (v Vector) Dim() int {
	return len(v)
}

// L2Normalize scales the vector to unit length in place and returns it.
// Required when the storage-side index compares by cosine similarity.
func (v Vector) L2Normalize() Vector {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	for i, x := range v {
		v[i] = float32(float64(x) / norm)
	}
	return v
}
