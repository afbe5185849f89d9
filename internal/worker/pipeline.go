package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/kestrel/internal/decision"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/scoring"
)

// ClaimStore is the persistence the pipeline needs.
type ClaimStore interface {
	SaveClaim(ctx context.Context, tenantID string, claim *domain.Claim) error
	SaveAssessment(ctx context.Context, tenantID string, a *domain.FraudAssessment) error
}

// CoverageEvaluator attaches a policy coverage analysis to a claim.
type CoverageEvaluator interface {
	Evaluate(ctx context.Context, claim domain.Claim) *domain.CoverageAnalysis
}

// Pipeline runs one claim through coverage, scoring and the decision policy,
// then stores and publishes the outcome. It is shared by the HTTP scoring
// endpoint and the async worker.
type Pipeline struct {
	engine   *scoring.Engine
	policy   *decision.Policy
	coverage CoverageEvaluator // optional
	store    ClaimStore        // optional
	bus      domain.EventBus   // optional
}

// NewPipeline wires a pipeline. coverage, store and bus may be nil.
func NewPipeline(engine *scoring.Engine, policy *decision.Policy, coverage CoverageEvaluator, store ClaimStore, bus domain.EventBus) *Pipeline {
	return &Pipeline{
		engine:   engine,
		policy:   policy,
		coverage: coverage,
		store:    store,
		bus:      bus,
	}
}

// Process scores a claim for a tenant. Only a missing claim id or a scoring
// failure is returned as an error; storage and publish failures are logged.
func (p *Pipeline) Process(ctx context.Context, tenantID string, claim domain.Claim) (*domain.ScoreResponse, error) {
	if claim.ID == "" {
		return nil, scoring.ErrMissingClaimID
	}
	claim.TenantID = tenantID
	if claim.CreatedAt.IsZero() {
		claim.CreatedAt = time.Now().UTC()
	}

	if claim.Coverage == nil && p.coverage != nil && claim.PolicyNumber != "" {
		claim.Coverage = p.coverage.Evaluate(ctx, claim)
	}

	if p.store != nil {
		if err := p.store.SaveClaim(ctx, tenantID, &claim); err != nil {
			slog.Error("failed to save claim",
				"claim_id", claim.ID,
				"tenant_id", tenantID,
				"error", err,
			)
		}
	}

	assessment, err := p.engine.Score(ctx, claim)
	if err != nil {
		return nil, fmt.Errorf("scoring claim %s: %w", claim.ID, err)
	}

	risk := decision.RiskFor(assessment, claim.Coverage)
	dec := p.policy.Decide(claim.ID, risk, assessment.FraudScore)

	if p.store != nil {
		if err := p.store.SaveAssessment(ctx, tenantID, assessment); err != nil {
			slog.Error("failed to save assessment",
				"claim_id", claim.ID,
				"tenant_id", tenantID,
				"error", err,
			)
		}
	}

	resp := &domain.ScoreResponse{
		Assessment: assessment,
		Decision:   dec,
		Coverage:   claim.Coverage,
	}
	p.publish(ctx, tenantID, resp)

	return resp, nil
}

func (p *Pipeline) publish(ctx context.Context, tenantID string, resp *domain.ScoreResponse) {
	if p.bus == nil {
		return
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		slog.Error("failed to encode assessment event", "claim_id", resp.Assessment.ClaimID, "error", err)
		return
	}

	topics := []string{domain.TopicClaimAssessed}
	if resp.Assessment.RequiresInvestigation {
		topics = append(topics, domain.TopicClaimEscalated)
	}
	for _, topic := range topics {
		if err := p.bus.Publish(ctx, tenantID, topic, payload); err != nil {
			slog.Error("failed to publish",
				"claim_id", resp.Assessment.ClaimID,
				"topic", topic,
				"error", err,
			)
		}
	}
}
