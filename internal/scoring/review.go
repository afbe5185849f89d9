package scoring

import (
	"fmt"
	"strings"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/explain"
)

const (
	reviewSource     = "kestrel.scoring"
	reviewFlagReason = "Automatic fraud threshold/indicator trigger"
	whyInReview      = "Claim matched fraud-risk escalation rules and needs human verification."
)

var recommendedActions = []string{
	"Verify claimant and provider identities",
	"Review supporting documents for consistency",
	"Confirm incident timeline with external records",
	"Approve only after manual underwriter sign-off",
}

// BuildReview assembles the review queue entry for an escalated claim.
func BuildReview(claim domain.Claim, a *domain.FraudAssessment, threshold float64, now time.Time) *domain.ReviewEntry {
	breakdown := make([]domain.IndicatorExplanation, 0, len(a.Indicators))
	for _, ind := range a.Indicators {
		breakdown = append(breakdown, explain.Breakdown(ind))
	}

	return &domain.ReviewEntry{
		ClaimID:      claim.ID,
		TenantID:     claim.TenantID,
		PolicyNumber: claim.PolicyNumber,
		ClaimAmount:  claim.Amount,
		ClaimantName: claim.Claimant.Name,
		ProviderName: claim.Provider.Name,
		FraudScore:   roundTo(a.FraudScore, 3),
		RiskLevel:    a.RiskLevel,
		Status:       domain.ReviewPending,
		FlagReason:   reviewFlagReason,
		Indicators:   a.Indicators,
		Reasoning: domain.ReviewReasoning{
			Summary: domain.ReviewSummary{
				WhyInReview:      whyInReview,
				FraudScoreReason: fmt.Sprintf("Computed fraud score is %s with risk level %s.", round3(a.FraudScore), a.RiskLevel),
				PolicyContext:    policyContext(claim.Coverage),
				TriggerRules:     TriggerRules(a.FraudScore, threshold, a.Indicators),
				IndicatorCount:   len(breakdown),
			},
			IndicatorBreakdown: breakdown,
			ComponentScores:    a.ComponentScores,
			Explanation:        a.Explanation,
			RecommendedActions: append([]string(nil), recommendedActions...),
		},
		PolicyAnalysis: claim.Coverage,
		Source:         reviewSource,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func policyContext(c *domain.CoverageAnalysis) string {
	if c == nil {
		return "No policy analysis available."
	}
	if c.Error != "" {
		return "Policy analysis failed: " + c.Error
	}
	exclusions := "none"
	if len(c.ExclusionsTriggered) > 0 {
		exclusions = strings.Join(c.ExclusionsTriggered, ", ")
	}
	return fmt.Sprintf("Covered: %t, coverage score %.2f, exclusions triggered: %s.", c.IsCovered, c.CoverageScore, exclusions)
}
