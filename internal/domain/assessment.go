package domain

import "time"

// RiskLevel is the banded fraud score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// FraudAssessment is the fused output of one scoring pass.
type FraudAssessment struct {
	ID                    string             `json:"assessment_id"`
	ClaimID               string             `json:"claim_id"`
	TenantID              string             `json:"tenant_id,omitempty"`
	FraudScore            float64            `json:"fraud_score"`
	RiskLevel             RiskLevel          `json:"risk_level"`
	RequiresInvestigation bool               `json:"requires_investigation"`
	Indicators            []Indicator        `json:"indicators"`
	Explanation           Explanation        `json:"explanation"`
	ComponentScores       map[string]float64 `json:"component_scores"`
	Confidence            float64            `json:"confidence"`
	ProcessingMs          int64              `json:"processing_time_ms"`

	// ReviewPersisted is false when the claim was escalated but the
	// review queue write failed.
	ReviewPersisted bool `json:"review_persisted"`

	CreatedAt time.Time `json:"created_at"`
}

// Explanation is the human-readable rendering of an assessment.
type Explanation struct {
	Summary        string                 `json:"summary"`
	TopFactors     []Factor               `json:"top_factors"`
	Recommendation string                 `json:"recommendation"`
	Breakdown      []IndicatorExplanation `json:"breakdown"`
}

// Factor is one ranked contributing indicator.
type Factor struct {
	Feature      IndicatorType `json:"feature"`
	Contribution float64       `json:"contribution"`
	Description  string        `json:"description"`
	Severity     Severity      `json:"severity"`
}

// IndicatorExplanation is the per-indicator rationale.
type IndicatorExplanation struct {
	Type        IndicatorType `json:"type"`
	Severity    Severity      `json:"severity"`
	Details     string        `json:"details"`
	Confidence  float64       `json:"confidence"`
	ScoreImpact float64       `json:"score_impact"`
}
