package model

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// Artifact is the on-disk form of a standardized multinomial logistic model.
// Scores are softmax(W * ((x - mean) / scale) + b).
type Artifact struct {
	Name         string      `json:"name"`
	ModelVersion string      `json:"version"`
	ClassLabels  []string    `json:"classes"`
	Columns      []string    `json:"feature_columns"`
	Scaler       Scaler      `json:"scaler"`
	Coefficients [][]float64 `json:"coefficients"`
	Intercepts   []float64   `json:"intercepts"`
}

// Scaler holds per-column standardization parameters
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// LoadArtifact reads and validates a model artifact from a JSON file
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}

	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: failed to decode %s: %w", ErrModelUnavailable, path, err)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

// Validate checks that all dimensions agree
func (a *Artifact) Validate() error {
	nClasses := len(a.ClassLabels)
	nCols := len(a.Columns)

	switch {
	case nClasses < 2:
		return fmt.Errorf("%w: artifact needs at least 2 classes, has %d", ErrModelUnavailable, nClasses)
	case nCols == 0:
		return fmt.Errorf("%w: artifact has no feature columns", ErrModelUnavailable)
	case len(a.Scaler.Mean) != nCols || len(a.Scaler.Scale) != nCols:
		return fmt.Errorf("%w: scaler has %d/%d entries for %d columns",
			ErrModelUnavailable, len(a.Scaler.Mean), len(a.Scaler.Scale), nCols)
	case len(a.Coefficients) != nClasses || len(a.Intercepts) != nClasses:
		return fmt.Errorf("%w: coefficient rows do not match %d classes", ErrModelUnavailable, nClasses)
	}
	for i, row := range a.Coefficients {
		if len(row) != nCols {
			return fmt.Errorf("%w: coefficient row %d has %d entries, want %d", ErrModelUnavailable, i, len(row), nCols)
		}
	}
	return nil
}

func (a *Artifact) Classes() []string        { return a.ClassLabels }
func (a *Artifact) FeatureColumns() []string { return a.Columns }
func (a *Artifact) Version() string          { return a.ModelVersion }

// PredictProba implements Classifier
func (a *Artifact) PredictProba(features []float64) ([]float64, error) {
	if len(features) != len(a.Columns) {
		return nil, fmt.Errorf("%w: got %d features, want %d", ErrModelUnavailable, len(features), len(a.Columns))
	}

	scaled := make([]float64, len(features))
	for i, x := range features {
		scale := a.Scaler.Scale[i]
		if scale == 0 {
			scale = 1
		}
		scaled[i] = (x - a.Scaler.Mean[i]) / scale
	}

	logits := make([]float64, len(a.ClassLabels))
	for c, row := range a.Coefficients {
		z := a.Intercepts[c]
		for i, w := range row {
			z += w * scaled[i]
		}
		logits[c] = z
	}
	return softmax(logits), nil
}

// Predict implements Classifier
func (a *Artifact) Predict(features []float64) (string, error) {
	proba, err := a.PredictProba(features)
	if err != nil {
		return "", err
	}
	return a.ClassLabels[Argmax(proba)], nil
}

func softmax(logits []float64) []float64 {
	maxLogit := math.Inf(-1)
	for _, z := range logits {
		if z > maxLogit {
			maxLogit = z
		}
	}

	out := make([]float64, len(logits))
	var sum float64
	for i, z := range logits {
		out[i] = math.Exp(z - maxLogit)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
