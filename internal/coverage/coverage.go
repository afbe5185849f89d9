// Package coverage determines whether a claim is covered by its policy.
package coverage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/detect"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
)

// PolicyStore looks up policies on file.
type PolicyStore interface {
	GetPolicy(ctx context.Context, tenantID string, policyNumber string) (*domain.Policy, error)
}

// incidentCoverage maps incident type keywords to coverage keys. Order matters:
// the first keyword found in the incident type wins.
var incidentCoverage = []struct {
	keyword  string
	coverage string
}{
	{"accident", "comprehensive"},
	{"collision", "comprehensive"},
	{"crash", "comprehensive"},
	{"theft", "comprehensive"},
	{"stolen", "comprehensive"},
	{"fire", "comprehensive"},
	{"third_party", "thirdParty"},
	{"liability", "thirdParty"},
	{"injury", "personalAccident"},
	{"hurt", "personalAccident"},
}

// Evaluator produces a CoverageAnalysis for a claim.
type Evaluator struct {
	policies PolicyStore
	rules    *rules.Engine
}

// New creates an evaluator. ruleEngine may be nil, in which case only direct
// mentions of an exclusion trigger it.
func New(policies PolicyStore, ruleEngine *rules.Engine) *Evaluator {
	return &Evaluator{policies: policies, rules: ruleEngine}
}

// Evaluate looks up the claim's policy and analyzes coverage. Lookup and
// validation failures are reported in the analysis, never as an error.
func (e *Evaluator) Evaluate(ctx context.Context, claim domain.Claim) *domain.CoverageAnalysis {
	if claim.PolicyNumber == "" {
		return failed(claim.PolicyNumber, "Missing policy number")
	}

	policy, err := e.policies.GetPolicy(ctx, claim.TenantID, claim.PolicyNumber)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return failed(claim.PolicyNumber, fmt.Sprintf("Policy %s not found", claim.PolicyNumber))
		}
		slog.Error("policy lookup failed",
			"tenant_id", claim.TenantID,
			"policy_number", claim.PolicyNumber,
			"error", err,
		)
		return failed(claim.PolicyNumber, "Policy lookup failed")
	}

	var results []domain.ExclusionResult
	if e.rules != nil {
		results = e.rules.EvaluateAll(ctx, rules.InputFromClaim(claim))
	}
	return Analyze(policy, claim, results)
}

// Analyze applies a policy to a claim given the exclusion rule results.
func Analyze(policy *domain.Policy, claim domain.Claim, results []domain.ExclusionResult) *domain.CoverageAnalysis {
	if msg, ok := checkValidity(policy, claim.IncidentDate); !ok {
		return failed(policy.PolicyNumber, msg)
	}

	covered := checkCoverage(claim.IncidentType, policy.Coverages)

	triggered := []string{}
	for _, ex := range policy.Exclusions {
		if rules.Applies(ex, results, claim.IncidentDescription) {
			triggered = append(triggered, ex)
		}
	}

	amount := decimal.NewFromFloat(claim.Amount)
	limit := decimal.NewFromFloat(policy.SumInsured)
	withinLimit := amount.LessThanOrEqual(limit)

	score := 0.2 // policy valid
	if covered {
		score += 0.5
	}
	if len(triggered) == 0 {
		score += 0.2
	}
	if withinLimit {
		score += 0.1
	}

	return &domain.CoverageAnalysis{
		PolicyNumber:        policy.PolicyNumber,
		PolicyType:          policy.PolicyType,
		HolderName:          policy.HolderName,
		IsCovered:           covered && len(triggered) == 0,
		CoverageScore:       min(roundScore(score), 1),
		Deductible:          policy.Deductible,
		PolicyLimit:         policy.SumInsured,
		CoveredAmount:       coveredAmount(amount, limit, decimal.NewFromFloat(policy.Deductible), covered, len(triggered) > 0),
		ExclusionsTriggered: triggered,
		RelevantClauses:     Clauses(claim.IncidentType, policy.PolicyType),
		Confidence:          0.99,
	}
}

func checkValidity(policy *domain.Policy, incidentDate string) (string, bool) {
	incident, ok := detect.ParseDate(incidentDate)
	if !ok {
		return fmt.Sprintf("Date validation error: invalid incident date %q", incidentDate), false
	}
	if !policy.EffectiveDate.IsZero() && incident.Before(policy.EffectiveDate) {
		return fmt.Sprintf("Policy not effective yet (starts %s)", policy.EffectiveDate.Format("2006-01-02")), false
	}
	if !policy.ExpiryDate.IsZero() && incident.After(policy.ExpiryDate) {
		return fmt.Sprintf("Policy expired on %s", policy.ExpiryDate.Format("2006-01-02")), false
	}
	return "Policy active", true
}

// checkCoverage reports whether the policy carries the coverage the incident
// type maps to. Unknown incident types are not covered.
func checkCoverage(incidentType string, coverages map[string]bool) bool {
	it := strings.ToLower(incidentType)
	for _, m := range incidentCoverage {
		if strings.Contains(it, m.keyword) {
			return coverages[m.coverage]
		}
	}
	return false
}

func coveredAmount(amount, limit, deductible decimal.Decimal, covered, excluded bool) float64 {
	if !covered || excluded {
		return 0
	}
	v := decimal.Min(amount, limit).Sub(deductible)
	if v.IsNegative() {
		return 0
	}
	return v.Round(2).InexactFloat64()
}

func failed(policyNumber, msg string) *domain.CoverageAnalysis {
	return &domain.CoverageAnalysis{
		PolicyNumber:        policyNumber,
		Error:               msg,
		ExclusionsTriggered: []string{},
		Confidence:          1.0,
	}
}

func roundScore(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
