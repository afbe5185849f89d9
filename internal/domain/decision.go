package domain

// FinalStatus is the workflow state assigned by the decision policy.
type FinalStatus string

const (
	StatusApproved             FinalStatus = "APPROVED"
	StatusFlaggedForReview     FinalStatus = "FLAGGED_FOR_REVIEW"
	StatusRejected             FinalStatus = "REJECTED"
	StatusEscalatedFraudReview FinalStatus = "ESCALATED_FRAUD_REVIEW"
)

// Decision is the final workflow transition for a claim.
type Decision struct {
	ClaimID             string      `json:"claim_id"`
	FinalStatus         FinalStatus `json:"final_status"`
	RiskScore           float64     `json:"risk_score"`
	FraudScore          float64     `json:"fraud_score"`
	ThresholdApplied    float64     `json:"threshold_applied"`
	DecisionReason      string      `json:"decision_reason"`
	Confidence          float64     `json:"confidence"`
	RequiresHumanReview bool        `json:"requires_human_review"`
	NextActions         []string    `json:"next_actions"`
	DecisionModel       string      `json:"decision_model"`
}

// ScoreResponse is the API response for a synchronous scoring call.
type ScoreResponse struct {
	Assessment *FraudAssessment  `json:"assessment"`
	Decision   *Decision         `json:"decision"`
	Coverage   *CoverageAnalysis `json:"coverage,omitempty"`
}
