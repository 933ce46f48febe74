package model

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testArtifact = `{
	"name": "threat",
	"version": "2025.03-test",
	"classes": ["No_Threat", "Predator"],
	"feature_columns": ["hive_sound_db", "vibration_hz"],
	"scaler": {"mean": [60, 200], "scale": [10, 50]},
	"coefficients": [[-1, 0], [1, 0]],
	"intercepts": [0, 0]
}`

func writeArtifact(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadArtifact(t *testing.T) {
	a, err := LoadArtifact(writeArtifact(t, testArtifact))
	require.NoError(t, err)

	assert.Equal(t, "2025.03-test", a.Version())
	assert.Equal(t, []string{"No_Threat", "Predator"}, a.Classes())

	proba, err := a.PredictProba([]float64{60, 200})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, proba[0], 1e-9)
	assert.InDelta(t, 0.5, proba[1], 1e-9)

	proba, err = a.PredictProba([]float64{80, 200})
	require.NoError(t, err)
	// logits -2, 2
	assert.InDelta(t, 1/(1+math.Exp(-4)), proba[1], 1e-9)
	assert.InDelta(t, 1.0, proba[0]+proba[1], 1e-9)

	label, err := a.Predict([]float64{80, 200})
	require.NoError(t, err)
	assert.Equal(t, "Predator", label)

	_, err = a.PredictProba([]float64{1})
	assert.True(t, errors.Is(err, ErrModelUnavailable))
}

func TestLoadArtifact_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"classes":`},
		{"single class", `{"classes":["a"],"feature_columns":["x"],"scaler":{"mean":[0],"scale":[1]},"coefficients":[[1]],"intercepts":[0]}`},
		{"scaler mismatch", `{"classes":["a","b"],"feature_columns":["x"],"scaler":{"mean":[0,1],"scale":[1]},"coefficients":[[1],[1]],"intercepts":[0,0]}`},
		{"row mismatch", `{"classes":["a","b"],"feature_columns":["x"],"scaler":{"mean":[0],"scale":[1]},"coefficients":[[1],[1,2]],"intercepts":[0,0]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadArtifact(writeArtifact(t, tt.body))
			assert.True(t, errors.Is(err, ErrModelUnavailable))
		})
	}

	_, err := LoadArtifact(filepath.Join(t.TempDir(), "missing.json"))
	assert.True(t, errors.Is(err, ErrModelUnavailable))
}

func TestHandle_LoadsOnce(t *testing.T) {
	path := writeArtifact(t, testArtifact)
	h := NewHandle("threat", FileLoader(path), zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.Get()
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.True(t, h.Loaded())
	assert.Equal(t, 1, h.Loads())
}

func TestHandle_RetriesAfterFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	h := NewHandle("threat", FileLoader(path), zap.NewNop())

	_, err := h.Get()
	assert.True(t, errors.Is(err, ErrModelUnavailable))
	assert.False(t, h.Loaded())

	require.NoError(t, os.WriteFile(path, []byte(testArtifact), 0o644))
	m, err := h.Get()
	require.NoError(t, err)
	assert.Equal(t, "2025.03-test", m.Version())
	assert.Equal(t, 2, h.Loads())
}

func TestFileLoader_NoPath(t *testing.T) {
	_, err := NewHandle("performance", FileLoader(""), zap.NewNop()).Get()
	assert.True(t, errors.Is(err, ErrModelUnavailable))
}

func TestBuildVector(t *testing.T) {
	vec, err := BuildVector([]string{"b", "a"}, map[string]float64{"a": 1, "b": 2, "c": 3})
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 1}, vec)

	_, err = BuildVector([]string{"a", "z"}, map[string]float64{"a": 1})
	assert.True(t, errors.Is(err, ErrModelUnavailable))

	_, err = BuildVector([]string{"a"}, map[string]float64{"a": math.NaN()})
	assert.True(t, errors.Is(err, ErrModelUnavailable))
}

func TestArgmax(t *testing.T) {
	assert.Equal(t, 2, Argmax([]float64{0.1, 0.2, 0.7}))
	assert.Equal(t, 0, Argmax([]float64{0.5, 0.5}))
	assert.Equal(t, -1, Argmax(nil))
}
