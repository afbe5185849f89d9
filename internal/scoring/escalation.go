package scoring

import (
	"fmt"
	"strconv"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// DefaultManualReviewThreshold is the fraud score that always escalates.
const DefaultManualReviewThreshold = 0.20

// Indicator types that escalate regardless of severity.
var highPriorityTypes = map[domain.IndicatorType]bool{
	domain.IndicatorWatchlistMatch: true,
	domain.IndicatorExactDuplicate: true,
	domain.IndicatorFraudRing:      true,
}

// RequiresInvestigation reports whether a claim must go to human review.
func RequiresInvestigation(score, threshold float64, indicators []domain.Indicator) bool {
	if score >= threshold {
		return true
	}
	for _, ind := range indicators {
		if ind.Severity.Rank() >= domain.SeverityHigh.Rank() || highPriorityTypes[ind.Type] {
			return true
		}
	}
	return false
}

// TriggerRules lists the escalation rules a claim matched, for the audit trail.
func TriggerRules(score, threshold float64, indicators []domain.Indicator) []string {
	var rules []string
	if score >= threshold {
		rules = append(rules, fmt.Sprintf("Fraud score %s crossed manual review threshold %s",
			round3(score), strconv.FormatFloat(threshold, 'f', -1, 64)))
	}
	for _, ind := range indicators {
		if ind.Severity.Rank() >= domain.SeverityHigh.Rank() {
			rules = append(rules, fmt.Sprintf("%s severity indicator: %s", ind.Severity, ind.Type))
		} else if highPriorityTypes[ind.Type] {
			rules = append(rules, fmt.Sprintf("High priority indicator: %s", ind.Type))
		}
	}
	return rules
}

// round3 formats v rounded to three decimals without trailing zeros.
func round3(v float64) string {
	return strconv.FormatFloat(roundTo(v, 3), 'f', -1, 64)
}
