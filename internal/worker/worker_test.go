package worker

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/decision"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/scoring"
)

type watchlistHit struct{}

func (watchlistHit) Name() string { return domain.DetectorWatchlist }

func (watchlistHit) Detect(_ context.Context, c domain.Claim) (domain.DetectorResult, error) {
	return domain.DetectorResult{
		Detector: domain.DetectorWatchlist,
		Score:    0.5,
		Indicators: []domain.Indicator{{
			Type:        domain.IndicatorWatchlistMatch,
			Severity:    domain.SeverityCritical,
			Details:     "Claimant " + c.Claimant.Name + " is on the watchlist",
			Confidence:  0.95,
			ScoreImpact: 0.5,
		}},
	}, nil
}

type memStore struct {
	mu          sync.Mutex
	claims      map[string]domain.Claim
	assessments map[string]*domain.FraudAssessment
}

func newMemStore() *memStore {
	return &memStore{
		claims:      make(map[string]domain.Claim),
		assessments: make(map[string]*domain.FraudAssessment),
	}
}

func (s *memStore) SaveClaim(_ context.Context, tenantID string, c *domain.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claims[tenantID+"/"+c.ID] = *c
	return nil
}

func (s *memStore) SaveAssessment(_ context.Context, tenantID string, a *domain.FraudAssessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assessments[tenantID+"/"+a.ClaimID] = a
	return nil
}

func (s *memStore) assessment(key string) *domain.FraudAssessment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assessments[key]
}

type fixedCoverage struct {
	calls atomic.Int32
	score float64
}

func (f *fixedCoverage) Evaluate(_ context.Context, c domain.Claim) *domain.CoverageAnalysis {
	f.calls.Add(1)
	return &domain.CoverageAnalysis{PolicyNumber: c.PolicyNumber, CoverageScore: f.score, Confidence: 0.99}
}

func newPipeline(t *testing.T, cov CoverageEvaluator, store ClaimStore, eventBus domain.EventBus) *Pipeline {
	t.Helper()
	engine, err := scoring.NewEngine(domain.ScoringConfig{}, nil, nil, watchlistHit{})
	require.NoError(t, err)
	return NewPipeline(engine, decision.NewPolicy(domain.DecisionConfig{}), cov, store, eventBus)
}

func sampleClaim(id string) domain.Claim {
	return domain.Claim{
		ID:           id,
		PolicyNumber: "POL-1",
		Amount:       42000,
		Claimant:     domain.Party{Name: "John Doe"},
	}
}

func TestPipelineProcess(t *testing.T) {
	eventBus := bus.NewChannelBus(10)
	defer eventBus.Close()
	ctx := context.Background()

	assessed := make(chan *domain.Message, 1)
	escalated := make(chan *domain.Message, 1)
	_, err := eventBus.Subscribe(ctx, "tenant-001", domain.TopicClaimAssessed, func(_ context.Context, m *domain.Message) error {
		assessed <- m
		return nil
	})
	require.NoError(t, err)
	_, err = eventBus.Subscribe(ctx, "tenant-001", domain.TopicClaimEscalated, func(_ context.Context, m *domain.Message) error {
		escalated <- m
		return nil
	})
	require.NoError(t, err)

	cov := &fixedCoverage{score: 0}
	store := newMemStore()
	p := newPipeline(t, cov, store, eventBus)

	resp, err := p.Process(ctx, "tenant-001", sampleClaim("CLM-1"))
	require.NoError(t, err)

	assert.InDelta(t, 0.05, resp.Assessment.FraudScore, 1e-9)
	assert.True(t, resp.Assessment.RequiresInvestigation, "watchlist match escalates")
	assert.False(t, resp.Assessment.ReviewPersisted, "no review store wired")
	require.NotNil(t, resp.Coverage)
	assert.Equal(t, int32(1), cov.calls.Load())

	// 0.05*0.5 + (1-0)*0.3 + 0 rounds to 0.33: between approve and review.
	assert.Equal(t, domain.StatusFlaggedForReview, resp.Decision.FinalStatus)
	assert.True(t, resp.Decision.RequiresHumanReview)

	assert.NotNil(t, store.assessment("tenant-001/CLM-1"))
	assert.Equal(t, "tenant-001", store.claims["tenant-001/CLM-1"].TenantID)
	assert.NotNil(t, store.claims["tenant-001/CLM-1"].Coverage, "stored claim carries its coverage")

	for _, ch := range []chan *domain.Message{assessed, escalated} {
		select {
		case m := <-ch:
			var got domain.ScoreResponse
			require.NoError(t, json.Unmarshal(m.Payload, &got))
			assert.Equal(t, "CLM-1", got.Assessment.ClaimID)
			assert.Equal(t, domain.StatusFlaggedForReview, got.Decision.FinalStatus)
		case <-time.After(time.Second):
			t.Fatal("expected assessed and escalated events")
		}
	}
}

func TestPipelineKeepsAttachedCoverage(t *testing.T) {
	cov := &fixedCoverage{score: 0}
	p := newPipeline(t, cov, nil, nil)

	claim := sampleClaim("CLM-2")
	claim.Coverage = &domain.CoverageAnalysis{IsCovered: true, CoverageScore: 1}

	resp, err := p.Process(context.Background(), "tenant-001", claim)
	require.NoError(t, err)
	assert.Zero(t, cov.calls.Load())
	assert.Equal(t, domain.StatusApproved, resp.Decision.FinalStatus)
	assert.True(t, resp.Coverage.IsCovered)
}

func TestPipelineWithoutPolicyNumber(t *testing.T) {
	cov := &fixedCoverage{}
	p := newPipeline(t, cov, nil, nil)

	claim := sampleClaim("CLM-3")
	claim.PolicyNumber = ""

	resp, err := p.Process(context.Background(), "tenant-001", claim)
	require.NoError(t, err)
	assert.Zero(t, cov.calls.Load())
	assert.Nil(t, resp.Coverage)
	assert.Equal(t, domain.StatusApproved, resp.Decision.FinalStatus)
}

func TestPipelineMissingClaimID(t *testing.T) {
	p := newPipeline(t, nil, nil, nil)
	_, err := p.Process(context.Background(), "tenant-001", domain.Claim{})
	assert.ErrorIs(t, err, scoring.ErrMissingClaimID)
}

func TestPipelineCallerCancelled(t *testing.T) {
	eventBus := bus.NewChannelBus(10)
	defer eventBus.Close()

	assessed := make(chan *domain.Message, 1)
	_, err := eventBus.Subscribe(context.Background(), "tenant-001", domain.TopicClaimAssessed, func(_ context.Context, m *domain.Message) error {
		assessed <- m
		return nil
	})
	require.NoError(t, err)

	store := newMemStore()
	p := newPipeline(t, nil, store, eventBus)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp, err := p.Process(ctx, "tenant-001", sampleClaim("CLM-GONE"))
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, resp)
	assert.Nil(t, store.assessment("tenant-001/CLM-GONE"))

	select {
	case m := <-assessed:
		t.Fatalf("unexpected assessment event %s", m.ID)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWorker(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()
	ctx := context.Background()

	store := newMemStore()
	w := NewWorker(eventBus, newPipeline(t, nil, store, eventBus))

	t.Run("RequiresTenants", func(t *testing.T) {
		assert.Error(t, NewWorker(eventBus, nil).Start(Config{}))
	})

	t.Run("ProcessSubmittedClaim", func(t *testing.T) {
		var escalations atomic.Int32
		_, err := eventBus.Subscribe(ctx, "tenant-001", domain.TopicClaimEscalated, func(context.Context, *domain.Message) error {
			escalations.Add(1)
			return nil
		})
		require.NoError(t, err)

		require.NoError(t, w.Start(Config{TenantIDs: []string{"tenant-001"}}))
		stats := w.GetStats()
		assert.Equal(t, 1, stats.SubscriptionCount)
		assert.Equal(t, []string{domain.TopicClaimSubmitted}, stats.Topics)

		payload, err := json.Marshal(sampleClaim("CLM-async"))
		require.NoError(t, err)
		require.NoError(t, eventBus.Publish(ctx, "tenant-001", domain.TopicClaimSubmitted, payload))

		assert.Eventually(t, func() bool {
			return store.assessment("tenant-001/CLM-async") != nil && escalations.Load() == 1
		}, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("OtherTenantIgnored", func(t *testing.T) {
		payload, _ := json.Marshal(sampleClaim("CLM-foreign"))
		require.NoError(t, eventBus.Publish(ctx, "tenant-999", domain.TopicClaimSubmitted, payload))
		time.Sleep(30 * time.Millisecond)
		assert.Nil(t, store.assessment("tenant-999/CLM-foreign"))
	})

	t.Run("BadPayload", func(t *testing.T) {
		err := w.processClaim(ctx, "tenant-001", &domain.Message{ID: "m1", Payload: []byte("{")})
		assert.Error(t, err)

		err = w.processClaim(ctx, "tenant-001", &domain.Message{ID: "m2", Payload: []byte(`{"claim_amount": 10}`)})
		assert.ErrorIs(t, err, scoring.ErrMissingClaimID)
	})

	t.Run("Stop", func(t *testing.T) {
		require.NoError(t, w.Stop())
		assert.Zero(t, w.GetStats().SubscriptionCount)
	})
}
