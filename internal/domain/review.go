package domain

import "time"

// ReviewStatus is the state of a review queue entry.
type ReviewStatus string

const (
	ReviewPending   ReviewStatus = "PENDING_REVIEW"
	ReviewApproved  ReviewStatus = "APPROVED"
	ReviewRejected  ReviewStatus = "REJECTED"
	ReviewEscalated ReviewStatus = "ESCALATED"
)

// Valid reports whether s is one of the known review states.
func (s ReviewStatus) Valid() bool {
	switch s {
	case ReviewPending, ReviewApproved, ReviewRejected, ReviewEscalated:
		return true
	}
	return false
}

// ReviewEntry is a claim waiting in (or resolved from) the human review queue.
// Entries are keyed by tenant and claim id.
type ReviewEntry struct {
	ClaimID        string            `json:"claim_id"`
	TenantID       string            `json:"tenant_id"`
	PolicyNumber   string            `json:"policy_number,omitempty"`
	ClaimAmount    float64           `json:"claim_amount"`
	ClaimantName   string            `json:"claimant_name,omitempty"`
	ProviderName   string            `json:"provider_name,omitempty"`
	FraudScore     float64           `json:"fraud_score"`
	RiskLevel      RiskLevel         `json:"risk_level"`
	Status         ReviewStatus      `json:"status"`
	FlagReason     string            `json:"flag_reason"`
	Indicators     []Indicator       `json:"fraud_indicators"`
	Reasoning      ReviewReasoning   `json:"reasoning"`
	PolicyAnalysis *CoverageAnalysis `json:"policy_analysis,omitempty"`
	Source         string            `json:"source"`
	Reviewer       string            `json:"reviewer,omitempty"`
	Notes          string            `json:"notes,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// ReviewReasoning is the audit bundle stored with a review entry.
type ReviewReasoning struct {
	Summary            ReviewSummary          `json:"summary"`
	IndicatorBreakdown []IndicatorExplanation `json:"indicator_breakdown"`
	ComponentScores    map[string]float64     `json:"component_scores"`
	Explanation        Explanation            `json:"model_explanations"`
	RecommendedActions []string               `json:"recommended_actions"`
}

// ReviewSummary explains why the claim entered the queue.
type ReviewSummary struct {
	WhyInReview      string   `json:"why_in_hitl"`
	FraudScoreReason string   `json:"fraud_score_reason"`
	PolicyContext    string   `json:"policy_context"`
	TriggerRules     []string `json:"trigger_rules"`
	IndicatorCount   int      `json:"indicator_count"`
}

// ReviewUpdate is a reviewer's status change.
type ReviewUpdate struct {
	Status   ReviewStatus `json:"status" validate:"required,oneof=PENDING_REVIEW APPROVED REJECTED ESCALATED"`
	Reviewer string       `json:"reviewer,omitempty" validate:"omitempty,max=200"`
	Notes    string       `json:"notes,omitempty" validate:"omitempty,max=4000"`
}

// ReviewFilter selects review queue entries.
type ReviewFilter struct {
	Status ReviewStatus `validate:"omitempty,oneof=PENDING_REVIEW APPROVED REJECTED ESCALATED"`
	Limit  int          `validate:"min=1,max=200"`
}
