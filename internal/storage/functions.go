package storage

import (
	"fmt"

	"github.com/hyperjump/tanya/internal/vector"
)

// cosineDistanceFunc is the name of the SQL scalar function registered on every connection.
const cosineDistanceFunc = "vec_cosine_distance"

// cosineDistanceBlob compares two embeddings stored as little-endian float32 BLOBs.
func cosineDistanceBlob(a, b []byte) (float64, error) {
	va, err := vector.Decode(a)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", cosineDistanceFunc, err)
	}
	vb, err := vector.Decode(b)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", cosineDistanceFunc, err)
	}
	d, err := vector.CosineDistance(va, vb)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", cosineDistanceFunc, err)
	}
	return d, nil
}
