// Package explain renders fraud assessments as human-readable explanations.
package explain

import (
	"sort"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const (
	topFactorCount      = 3
	defaultContribution = 0.10
)

// contributions ranks indicator types for the top factor list.
var contributions = map[domain.IndicatorType]float64{
	domain.IndicatorExactDuplicate:     0.25,
	domain.IndicatorMLHighRisk:         0.25,
	domain.IndicatorFraudRing:          0.22,
	domain.IndicatorEarlyClaim:         0.20,
	domain.IndicatorHighVolumeProvider: 0.18,
	domain.IndicatorNameMismatch:       0.15,
	domain.IndicatorIsolationForest:    0.15,

	// Amount anomaly family
	domain.IndicatorThresholdAnomaly:    0.12,
	domain.IndicatorRoundNumberAnomaly:  0.12,
	domain.IndicatorAmountInconsistency: 0.12,
}

// Explainer builds explanations. It is stateless and deterministic.
type Explainer struct{}

// New creates an Explainer.
func New() *Explainer {
	return &Explainer{}
}

// Contribution returns the ranking weight for an indicator type.
func Contribution(t domain.IndicatorType) float64 {
	if w, ok := contributions[t]; ok {
		return w
	}
	return defaultContribution
}

// Explain summarizes a fused score and its indicators.
func (e *Explainer) Explain(score float64, indicators []domain.Indicator) domain.Explanation {
	factors := make([]domain.Factor, 0, len(indicators))
	breakdown := make([]domain.IndicatorExplanation, 0, len(indicators))
	for _, ind := range indicators {
		factors = append(factors, domain.Factor{
			Feature:      ind.Type,
			Contribution: Contribution(ind.Type),
			Description:  ind.Details,
			Severity:     ind.Severity,
		})
		breakdown = append(breakdown, Breakdown(ind))
	}

	// Stable so equal weights keep detector order.
	sort.SliceStable(factors, func(i, j int) bool {
		return factors[i].Contribution > factors[j].Contribution
	})
	if len(factors) > topFactorCount {
		factors = factors[:topFactorCount]
	}

	return domain.Explanation{
		Summary:        Summary(score),
		TopFactors:     factors,
		Recommendation: Recommendation(score, len(indicators) > 0),
		Breakdown:      breakdown,
	}
}

// Breakdown is the structured rationale for one indicator.
func Breakdown(ind domain.Indicator) domain.IndicatorExplanation {
	return domain.IndicatorExplanation{
		Type:        ind.Type,
		Severity:    ind.Severity,
		Details:     ind.Details,
		Confidence:  ind.Confidence,
		ScoreImpact: ind.ScoreImpact,
	}
}

// Summary returns the banded one-line description of a score.
func Summary(score float64) string {
	switch {
	case score < 0.3:
		return "Low fraud risk. No significant indicators detected."
	case score < 0.5:
		return "Medium fraud risk. Some suspicious patterns identified."
	case score < 0.7:
		return "High fraud risk. Multiple strong indicators present."
	default:
		return "Critical fraud risk. Immediate investigation required."
	}
}

// Recommendation returns the suggested next step for a score.
func Recommendation(score float64, hasIndicators bool) string {
	switch {
	case score > 0.7:
		return "Immediate escalation to fraud investigation team required"
	case score > 0.5:
		return "Manual review by senior underwriter recommended"
	case hasIndicators:
		return "Review specific indicators flagged above"
	default:
		return "Auto-approve - no action needed"
	}
}
