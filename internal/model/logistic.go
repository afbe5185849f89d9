// Package model loads the trained fraud classifier used by the anomaly
// detector.
package model

import (
	"context"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Logistic is a logistic regression over the anomaly feature vector.
// The zero value is an unavailable model.
type Logistic struct {
	Version   string    `yaml:"version"`
	Intercept float64   `yaml:"intercept"`
	Weights   []float64 `yaml:"weights"`
}

// Load reads a model file. An empty path returns an unavailable model.
func Load(path string, featureCount int) (*Logistic, error) {
	if path == "" {
		return &Logistic{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	return Parse(data, featureCount)
}

// Parse decodes a YAML model and checks it matches the feature count.
func Parse(data []byte, featureCount int) (*Logistic, error) {
	var m Logistic
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse model: %w", err)
	}
	if len(m.Weights) != featureCount {
		return nil, fmt.Errorf("model has %d weights, want %d", len(m.Weights), featureCount)
	}
	return &m, nil
}

// Available reports whether weights are loaded.
func (m *Logistic) Available() bool {
	return m != nil && len(m.Weights) > 0
}

// Predict returns the fraud probability for a feature vector.
func (m *Logistic) Predict(_ context.Context, features []float64) (float64, error) {
	if !m.Available() {
		return 0, fmt.Errorf("model not loaded")
	}
	if len(features) != len(m.Weights) {
		return 0, fmt.Errorf("got %d features, want %d", len(features), len(m.Weights))
	}
	z := m.Intercept
	for i, w := range m.Weights {
		z += w * features[i]
	}
	return 1 / (1 + math.Exp(-z)), nil
}
