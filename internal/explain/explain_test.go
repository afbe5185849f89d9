package explain

import (
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummaryBands(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{0, "Low fraud risk. No significant indicators detected."},
		{0.29, "Low fraud risk. No significant indicators detected."},
		{0.3, "Medium fraud risk. Some suspicious patterns identified."},
		{0.5, "High fraud risk. Multiple strong indicators present."},
		{0.7, "Critical fraud risk. Immediate investigation required."},
		{1, "Critical fraud risk. Immediate investigation required."},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Summary(tt.score), "score %.2f", tt.score)
	}
}

func TestRecommendation(t *testing.T) {
	assert.Equal(t, "Immediate escalation to fraud investigation team required", Recommendation(0.71, false))
	assert.Equal(t, "Manual review by senior underwriter recommended", Recommendation(0.7, true))
	assert.Equal(t, "Review specific indicators flagged above", Recommendation(0.5, true))
	assert.Equal(t, "Auto-approve - no action needed", Recommendation(0.1, false))
}

func TestExplain(t *testing.T) {
	indicators := []domain.Indicator{
		{Type: domain.IndicatorWeekendClaim, Severity: domain.SeverityLow, Details: "weekend"},
		{Type: domain.IndicatorThresholdAnomaly, Severity: domain.SeverityMedium, Details: "threshold"},
		{Type: domain.IndicatorFraudRing, Severity: domain.SeverityCritical, Details: "ring"},
		{Type: domain.IndicatorMLHighRisk, Severity: domain.SeverityCritical, Details: "ml"},
		{Type: domain.IndicatorExactDuplicate, Severity: domain.SeverityCritical, Details: "dup"},
	}

	exp := New().Explain(0.62, indicators)

	assert.Equal(t, "High fraud risk. Multiple strong indicators present.", exp.Summary)
	assert.Equal(t, "Manual review by senior underwriter recommended", exp.Recommendation)
	require.Len(t, exp.TopFactors, 3)
	assert.Equal(t, domain.IndicatorMLHighRisk, exp.TopFactors[0].Feature, "ties keep input order")
	assert.Equal(t, domain.IndicatorExactDuplicate, exp.TopFactors[1].Feature)
	assert.Equal(t, domain.IndicatorFraudRing, exp.TopFactors[2].Feature)
	assert.InDelta(t, 0.22, exp.TopFactors[2].Contribution, 1e-9)
	require.Len(t, exp.Breakdown, len(indicators))
	assert.Equal(t, "weekend", exp.Breakdown[0].Details)

	assert.Equal(t, exp, New().Explain(0.62, indicators), "deterministic")
}

func TestExplainEmpty(t *testing.T) {
	exp := New().Explain(0, nil)
	assert.Empty(t, exp.TopFactors)
	assert.Empty(t, exp.Breakdown)
	assert.Equal(t, "Auto-approve - no action needed", exp.Recommendation)
	assert.InDelta(t, defaultContribution, Contribution(domain.IndicatorSharedPhone), 1e-9)
}
