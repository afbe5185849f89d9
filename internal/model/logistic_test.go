package model

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleModel = `
version: fraud-lr-2026.01
intercept: -2.0
weights: [3.0, 1.5, 0.5, -1.0, 0.0, 0.2]
`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleModel), 0o600))

	m, err := Load(path, 6)
	require.NoError(t, err)
	assert.True(t, m.Available())
	assert.Equal(t, "fraud-lr-2026.01", m.Version)

	p, err := m.Predict(context.Background(), make([]float64, 6))
	require.NoError(t, err)
	assert.InDelta(t, 0.1192, p, 1e-4, "sigmoid of the intercept")

	p, err = m.Predict(context.Background(), []float64{2, 1, 0, 0, 0, 0})
	require.NoError(t, err)
	assert.Greater(t, p, 0.99)

	_, err = m.Predict(context.Background(), []float64{1})
	assert.Error(t, err)
}

func TestLoadErrors(t *testing.T) {
	m, err := Load("", 6)
	require.NoError(t, err)
	assert.False(t, m.Available())
	_, err = m.Predict(context.Background(), make([]float64, 6))
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"), 6)
	assert.Error(t, err)

	_, err = Parse([]byte(sampleModel), 4)
	assert.ErrorContains(t, err, "want 4")

	_, err = Parse([]byte("weights: {"), 6)
	assert.Error(t, err)

	var nilModel *Logistic
	assert.False(t, nilModel.Available())
}
