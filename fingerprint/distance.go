package fingerprint

import (
	"encoding/hex"
	"fmt"
	"math"
	"math/bits"

	"github.com/DSJTechnology/riftbound-snap-export-sub001/types"
)

// HammingDistance counts the differing bits between two equal-length
// hex-encoded hash strings. A length mismatch is a configuration error,
// not a per-query condition, and is returned as such.
func HammingDistance(a, b string) (int, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("hash length mismatch: %d vs %d hex chars", len(a), len(b))
	}

	rawA, err := hex.DecodeString(a)
	if err != nil {
		return 0, fmt.Errorf("malformed hash %q: %v", a, err)
	}
	rawB, err := hex.DecodeString(b)
	if err != nil {
		return 0, fmt.Errorf("malformed hash %q: %v", b, err)
	}

	var distance int
	for i := range rawA {
		distance += bits.OnesCount8(rawA[i] ^ rawB[i])
	}
	return distance, nil
}

// CosineDistance returns 1 - cosine similarity between two vectors of
// equal length, guarding against zero vectors.
func CosineDistance(a, b []float64) (float64, error) {
	sim, err := CosineSimilarity(a, b)
	if err != nil {
		return 0, err
	}
	return 1 - sim, nil
}

// CosineSimilarity computes the cosine of the angle between two vectors.
func CosineSimilarity(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector dimension mismatch: %d vs %d", len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0, fmt.Errorf("cosine similarity undefined for zero vector")
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// Distance dispatches on the fingerprint variant: Hamming distance for
// hash pairs, 1 - cosine similarity for embedding pairs. Mixed variants
// are a configuration error.
func Distance(a, b types.Fingerprint) (float64, error) {
	if a.Kind != b.Kind {
		return 0, fmt.Errorf("mixed fingerprint kinds: %s vs %s", a.Kind, b.Kind)
	}
	switch a.Kind {
	case types.FingerprintHash:
		d, err := HammingDistance(a.Hash, b.Hash)
		return float64(d), err
	case types.FingerprintEmbedding:
		return CosineDistance(a.Vector, b.Vector)
	}
	return 0, fmt.Errorf("unknown fingerprint kind %d", a.Kind)
}
