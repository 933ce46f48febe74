package model

import (
	"fmt"
	"math"
)

// Classifier is an externally trained, versioned model.
// Implementations must be safe for concurrent use once constructed.
type Classifier interface {
	// Predict returns the most probable class label for one feature row
	Predict(features []float64) (string, error)
	// PredictProba returns one probability per class, in Classes() order
	PredictProba(features []float64) ([]float64, error)
	Classes() []string
	FeatureColumns() []string
	Version() string
}

var (
	ErrModelUnavailable = &ModelError{"model unavailable"}
)

// ModelError represents a model loading or inference error
type ModelError struct {
	msg string
}

func (e *ModelError) Error() string {
	return e.msg
}

// BuildVector orders features by columns. A missing column or a non-finite
// value means the model cannot be served for this input.
func BuildVector(columns []string, features map[string]float64) ([]float64, error) {
	vec := make([]float64, len(columns))
	for i, col := range columns {
		v, ok := features[col]
		if !ok {
			return nil, fmt.Errorf("%w: missing feature column %q", ErrModelUnavailable, col)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: feature %q is not finite", ErrModelUnavailable, col)
		}
		vec[i] = v
	}
	return vec, nil
}

// Argmax returns the index of the largest value, or -1 for an empty slice
func Argmax(values []float64) int {
	best := -1
	for i, v := range values {
		if best < 0 || v > values[best] {
			best = i
		}
	}
	return best
}
