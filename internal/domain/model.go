package domain

import "context"

// FraudModel is a trained classifier used as a black box.
// Available reports whether a model is loaded; callers skip Predict otherwise.
type FraudModel interface {
	Available() bool
	Predict(ctx context.Context, features []float64) (float64, error)
}
