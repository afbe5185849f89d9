// Package decision maps fraud and risk scores to the final claim workflow
// status.
package decision

import (
	"math"

	"github.com/opensource-finance/kestrel/internal/detect"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// ModelVersion identifies the decision ladder in audit records.
const ModelVersion = "decision_v1.0"

// Default thresholds.
const (
	DefaultFraudEscalation = 0.8
	DefaultApprove         = 0.3
	DefaultReview          = 0.6
)

// Policy is the threshold ladder. The fraud override is checked first.
type Policy struct {
	FraudEscalation float64
	Approve         float64
	Review          float64
}

// NewPolicy builds a policy from config, filling zero values with defaults.
func NewPolicy(cfg domain.DecisionConfig) *Policy {
	p := &Policy{
		FraudEscalation: cfg.FraudEscalationThreshold,
		Approve:         cfg.ApproveThreshold,
		Review:          cfg.ReviewThreshold,
	}
	if p.FraudEscalation <= 0 {
		p.FraudEscalation = DefaultFraudEscalation
	}
	if p.Approve <= 0 {
		p.Approve = DefaultApprove
	}
	if p.Review <= 0 {
		p.Review = DefaultReview
	}
	return p
}

// Decide returns the workflow transition for a claim.
func (p *Policy) Decide(claimID string, riskScore, fraudScore float64) *domain.Decision {
	d := &domain.Decision{
		ClaimID:       claimID,
		RiskScore:     riskScore,
		FraudScore:    fraudScore,
		Confidence:    round2(1 - riskScore),
		DecisionModel: ModelVersion,
	}

	if fraudScore >= p.FraudEscalation {
		d.FinalStatus = domain.StatusEscalatedFraudReview
		d.ThresholdApplied = p.FraudEscalation
		d.DecisionReason = "Fraud score exceeded escalation threshold."
		d.RequiresHumanReview = true
		d.NextActions = []string{"assign_to_senior_investigator"}
		return d
	}

	d.ThresholdApplied = p.Approve
	d.DecisionReason = "Risk score evaluated against thresholds."
	switch {
	case riskScore < p.Approve:
		d.FinalStatus = domain.StatusApproved
		d.NextActions = []string{"disburse_payment", "close_claim"}
	case riskScore < p.Review:
		d.FinalStatus = domain.StatusFlaggedForReview
		d.RequiresHumanReview = true
		d.NextActions = []string{"assign_to_adjuster"}
	default:
		d.FinalStatus = domain.StatusRejected
		d.RequiresHumanReview = true
		d.NextActions = []string{"investigate_claim"}
	}
	return d
}

// CombinedRisk blends fraud, coverage and document consistency into the
// overall risk score, rounded to two decimals.
func CombinedRisk(fraudScore, coverageScore, consistencyScore float64) float64 {
	return round2(fraudScore*0.5 + (1-coverageScore)*0.3 + (1-consistencyScore)*0.2)
}

// RiskFor derives the combined risk of an assessed claim. Without a coverage
// analysis the coverage term contributes nothing.
func RiskFor(a *domain.FraudAssessment, coverage *domain.CoverageAnalysis) float64 {
	coverageScore := 1.0
	if coverage != nil {
		coverageScore = coverage.CoverageScore
	}
	consistency := detect.ConsistencyScore(a.ComponentScores[domain.DetectorDocument])
	return CombinedRisk(a.FraudScore, coverageScore, consistency)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
