// Package embedding validates learned embedding vectors before they
// enter the candidate corpus and talks to the external encoder service.
package embedding

import (
	"fmt"
	"math"
)

// DefaultNormTolerance bounds how far an embedding's L2 norm may drift
// from 1.0 and still count as normalized.
const DefaultNormTolerance = 0.01

// Validation is the outcome of checking one vector.
type Validation struct {
	Valid  bool
	Issues []string
	Norm   float64
}

// Validator checks embedding vectors against the configured corpus
// dimension. Embeddings are expected pre-normalized by the encoder.
type Validator struct {
	Dim     int
	NormTol float64
}

// NewValidator returns a validator for dimension-dim corpora.
func NewValidator(dim int) *Validator {
	return &Validator{Dim: dim, NormTol: DefaultNormTolerance}
}

// Validate checks vector length, component finiteness and L2 norm. All
// checks run even after a failure so the issue list is complete.
func (v *Validator) Validate(vec []float64) Validation {
	var result Validation

	if len(vec) != v.Dim {
		result.Issues = append(result.Issues,
			fmt.Sprintf("expected dimension %d, got %d", v.Dim, len(vec)))
	}

	finite := true
	for i, x := range vec {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			result.Issues = append(result.Issues,
				fmt.Sprintf("non-finite component at position %d", i))
			finite = false
			break
		}
	}

	if finite {
		result.Norm = Norm(vec)
		if math.Abs(result.Norm-1.0) > v.NormTol {
			result.Issues = append(result.Issues,
				fmt.Sprintf("L2 norm %.6f outside tolerance %.3f of 1.0", result.Norm, v.NormTol))
		}
	}

	result.Valid = len(result.Issues) == 0
	return result
}

// Repairable reports whether a failed validation can be fixed by
// renormalizing: the only issue is the norm, the length is right and
// every component is finite with a positive norm.
func (v *Validator) Repairable(vec []float64, val Validation) bool {
	if val.Valid || len(vec) != v.Dim {
		return false
	}
	for _, x := range vec {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return val.Norm > 0
}

// Norm returns the L2 norm of a vector.
func Norm(vec []float64) float64 {
	var sum float64
	for _, x := range vec {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// Renormalize divides every component by the vector's L2 norm. The
// input is not modified. A zero vector comes back unchanged.
func Renormalize(vec []float64) []float64 {
	norm := Norm(vec)
	out := make([]float64, len(vec))
	if norm == 0 {
		copy(out, vec)
		return out
	}
	for i, x := range vec {
		out[i] = x / norm
	}
	return out
}
