package coverage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
)

type policyMap map[string]*domain.Policy

func (m policyMap) GetPolicy(_ context.Context, _ string, number string) (*domain.Policy, error) {
	if number == "BROKEN" {
		return nil, errors.New("connection reset")
	}
	p, ok := m[number]
	if !ok {
		return nil, fmt.Errorf("%w: policy %s", repository.ErrNotFound, number)
	}
	return p, nil
}

func motorPolicy() *domain.Policy {
	return &domain.Policy{
		PolicyNumber:  "POL-MOTOR-1",
		PolicyType:    "motor",
		HolderName:    "Ravi Kumar",
		SumInsured:    500_000,
		Deductible:    5_000,
		EffectiveDate: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		ExpiryDate:    time.Date(2026, 5, 31, 0, 0, 0, 0, time.UTC),
		Coverages:     map[string]bool{"comprehensive": true, "thirdParty": true},
		Exclusions:    []string{"Driving under influence", "Racing", "Commercial use"},
	}
}

func newEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	engine, err := rules.NewEngine(2)
	require.NoError(t, err)
	require.NoError(t, engine.LoadRules(rules.BuiltinRules()))
	return New(policyMap{"POL-MOTOR-1": motorPolicy()}, engine)
}

func TestEvaluateCovered(t *testing.T) {
	e := newEvaluator(t)
	a := e.Evaluate(context.Background(), domain.Claim{
		PolicyNumber:        "POL-MOTOR-1",
		Amount:              45_000,
		IncidentType:        "Collision",
		IncidentDate:        "2026-02-15",
		IncidentDescription: "Rear-ended at a signal",
	})

	assert.Empty(t, a.Error)
	assert.True(t, a.IsCovered)
	assert.InDelta(t, 1.0, a.CoverageScore, 1e-9)
	assert.InDelta(t, 40_000, a.CoveredAmount, 1e-9)
	assert.Empty(t, a.ExclusionsTriggered)
	assert.Equal(t, "Ravi Kumar", a.HolderName)
	assert.Equal(t, []string{"General coverage provisions apply as per policy terms"}, a.RelevantClauses)
}

func TestEvaluateExclusionTriggered(t *testing.T) {
	e := newEvaluator(t)
	a := e.Evaluate(context.Background(), domain.Claim{
		PolicyNumber:        "POL-MOTOR-1",
		Amount:              45_000,
		IncidentType:        "accident",
		IncidentDate:        "2026-02-15",
		IncidentDescription: "Driver was drunk and crashed during a street race",
	})

	assert.False(t, a.IsCovered)
	assert.Equal(t, []string{"Driving under influence", "Racing"}, a.ExclusionsTriggered)
	assert.Zero(t, a.CoveredAmount)
	// valid + covered + within limit
	assert.InDelta(t, 0.8, a.CoverageScore, 1e-9)
	assert.Len(t, a.RelevantClauses, 1)
}

func TestEvaluateNotCovered(t *testing.T) {
	e := newEvaluator(t)
	tests := []struct {
		name         string
		incidentType string
		amount       float64
		score        float64
	}{
		{"UnknownIncident", "flood", 10_000, 0.5},
		{"MissingCoverage", "injury", 10_000, 0.5},
		{"UnknownOverLimit", "flood", 900_000, 0.4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := e.Evaluate(context.Background(), domain.Claim{
				PolicyNumber: "POL-MOTOR-1",
				Amount:       tt.amount,
				IncidentType: tt.incidentType,
				IncidentDate: "2026-01-10",
			})
			assert.Empty(t, a.Error)
			assert.False(t, a.IsCovered)
			assert.InDelta(t, tt.score, a.CoverageScore, 1e-9)
			assert.Zero(t, a.CoveredAmount)
		})
	}
}

func TestCoveredAmountLimits(t *testing.T) {
	p := motorPolicy()
	a := Analyze(p, domain.Claim{Amount: 900_000, IncidentType: "fire", IncidentDate: "2026-01-10"}, nil)
	assert.True(t, a.IsCovered)
	assert.InDelta(t, 495_000, a.CoveredAmount, 1e-9, "capped at the sum insured less deductible")
	assert.InDelta(t, 0.9, a.CoverageScore, 1e-9)

	a = Analyze(p, domain.Claim{Amount: 3_000, IncidentType: "fire", IncidentDate: "2026-01-10"}, nil)
	assert.Zero(t, a.CoveredAmount, "deductible exceeds the claim")
}

func TestEvaluateFailures(t *testing.T) {
	e := newEvaluator(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		claim domain.Claim
		want  string
	}{
		{"MissingNumber", domain.Claim{}, "Missing policy number"},
		{"UnknownPolicy", domain.Claim{PolicyNumber: "POL-X"}, "Policy POL-X not found"},
		{"LookupError", domain.Claim{PolicyNumber: "BROKEN"}, "Policy lookup failed"},
		{"NotEffective", domain.Claim{PolicyNumber: "POL-MOTOR-1", IncidentDate: "2025-05-01"}, "Policy not effective yet (starts 2025-06-01)"},
		{"Expired", domain.Claim{PolicyNumber: "POL-MOTOR-1", IncidentDate: "2026-07-01"}, "Policy expired on 2026-05-31"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := e.Evaluate(ctx, tt.claim)
			assert.Equal(t, tt.want, a.Error)
			assert.False(t, a.IsCovered)
			assert.Zero(t, a.CoverageScore)
			assert.NotNil(t, a.ExclusionsTriggered)
		})
	}

	a := e.Evaluate(ctx, domain.Claim{PolicyNumber: "POL-MOTOR-1", IncidentDate: "yesterday"})
	assert.Contains(t, a.Error, "Date validation error")
}

func TestEvaluateWithoutRuleEngine(t *testing.T) {
	e := New(policyMap{"POL-MOTOR-1": motorPolicy()}, nil)
	a := e.Evaluate(context.Background(), domain.Claim{
		PolicyNumber:        "POL-MOTOR-1",
		IncidentType:        "accident",
		IncidentDate:        "2026-02-15",
		IncidentDescription: "drunk driver; vehicle under commercial use",
	})
	assert.Equal(t, []string{"Commercial use"}, a.ExclusionsTriggered, "only direct mentions")
}

func TestClauses(t *testing.T) {
	assert.Equal(t, []string{"Clause 5.1: Theft protection - Vehicle theft coverage including parts and accessories"}, Clauses("Theft", "Motor"))
	assert.Equal(t, []string{"Standard health insurance coverage terms apply"}, Clauses("dental", "health"))
	assert.Empty(t, Clauses("fire", "marine"))
}
