package scoring

import (
	"errors"
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// ErrInvalidThresholds is returned when risk bands are not strictly increasing.
var ErrInvalidThresholds = errors.New("risk thresholds must satisfy 0 < medium < high < critical <= 1")

// RiskBands maps a fraud score to a risk level using inclusive lower bounds.
type RiskBands struct {
	Medium   float64
	High     float64
	Critical float64
}

// DefaultRiskBands returns the standard 0.20 / 0.40 / 0.70 bands.
func DefaultRiskBands() RiskBands {
	return RiskBands{Medium: 0.20, High: 0.40, Critical: 0.70}
}

// NewRiskBands validates and returns bands.
func NewRiskBands(medium, high, critical float64) (RiskBands, error) {
	if !(medium > 0 && medium < high && high < critical && critical <= 1) {
		return RiskBands{}, fmt.Errorf("%w: got %.2f/%.2f/%.2f", ErrInvalidThresholds, medium, high, critical)
	}
	return RiskBands{Medium: medium, High: high, Critical: critical}, nil
}

// Level returns the risk level for score.
func (b RiskBands) Level(score float64) domain.RiskLevel {
	switch {
	case score >= b.Critical:
		return domain.RiskCritical
	case score >= b.High:
		return domain.RiskHigh
	case score >= b.Medium:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}
