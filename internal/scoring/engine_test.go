package scoring

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/kestrel/internal/detect"
	"github.com/opensource-finance/kestrel/internal/domain"
)

type stubDetector struct {
	name   string
	score  float64
	inds   []domain.Indicator
	err    error
	panics bool
	block  chan struct{} // when set, Detect ignores ctx and waits on it
}

func (d *stubDetector) Name() string { return d.name }

func (d *stubDetector) Detect(context.Context, domain.Claim) (domain.DetectorResult, error) {
	if d.block != nil {
		<-d.block
	}
	if d.panics {
		panic("boom")
	}
	if d.err != nil {
		return domain.DetectorResult{}, d.err
	}
	return domain.DetectorResult{Score: d.score, Indicators: d.inds}, nil
}

type memReviews struct {
	mu      sync.Mutex
	entries map[string]*domain.ReviewEntry
	err     error
}

func newMemReviews() *memReviews {
	return &memReviews{entries: make(map[string]*domain.ReviewEntry)}
}

func (m *memReviews) UpsertReview(_ context.Context, tenantID string, e *domain.ReviewEntry) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[tenantID+"/"+e.ClaimID] = e
	return nil
}

func (m *memReviews) GetReview(_ context.Context, tenantID, claimID string) (*domain.ReviewEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[tenantID+"/"+claimID]
	if !ok {
		return nil, errors.New("not found")
	}
	return e, nil
}

func (m *memReviews) ListReviews(context.Context, string, domain.ReviewFilter) ([]*domain.ReviewEntry, error) {
	return nil, nil
}

func (m *memReviews) UpdateReviewStatus(context.Context, string, string, domain.ReviewUpdate) (*domain.ReviewEntry, error) {
	return nil, nil
}

func pipeline() []detect.Detector {
	return []detect.Detector{
		detect.NewAnomalyDetector(nil, nil),
		detect.NewConsistencyChecker(),
		detect.NewDuplicateDetector(nil),
		detect.NewNetworkAnalyzer(nil, domain.NetworkConfig{}),
		detect.NewTimingAnalyzer(),
		detect.NewWatchlistChecker(),
	}
}

func newTestEngine(t *testing.T, reviews domain.ReviewStore, detectors ...detect.Detector) *Engine {
	t.Helper()
	e, err := NewEngine(domain.ScoringConfig{DetectorTimeout: 100 * time.Millisecond}, reviews, nil, detectors...)
	require.NoError(t, err)
	return e
}

func TestScoreThresholdScenario(t *testing.T) {
	e := newTestEngine(t, nil, pipeline()...)

	a, err := e.Score(context.Background(), domain.Claim{
		ID:              "CLM-99K",
		TenantID:        "tenant-001",
		Amount:          99_000,
		PolicyStartDate: "2026-01-01",
		IncidentDate:    "2026-02-15",
		SubmissionDate:  "2026-02-16",
	})
	require.NoError(t, err)

	var types []domain.IndicatorType
	for _, ind := range a.Indicators {
		types = append(types, ind.Type)
	}
	assert.Contains(t, types, domain.IndicatorThresholdAnomaly)
	for _, timing := range []domain.IndicatorType{
		domain.IndicatorEarlyClaim, domain.IndicatorLateReporting, domain.IndicatorVeryLateReporting,
		domain.IndicatorSuspiciousHour, domain.IndicatorWeekendClaim,
	} {
		assert.NotContains(t, types, timing)
	}

	assert.InDelta(t, 0.5, a.ComponentScores[domain.DetectorAnomaly], 1e-9)
	assert.InDelta(t, 0.125, a.FraudScore, 1e-9)
	assert.Equal(t, domain.RiskLow, a.RiskLevel)
	assert.False(t, a.RequiresInvestigation)
	assert.Len(t, a.ComponentScores, 6)
	assert.InDelta(t, 0.98, a.Confidence, 1e-9)
	assert.NotEmpty(t, a.ID)
}

func TestScoreEarlyClaimDeduplicated(t *testing.T) {
	reviews := newMemReviews()
	e := newTestEngine(t, reviews, pipeline()...)

	a, err := e.Score(context.Background(), domain.Claim{
		ID:              "CLM-EARLY",
		TenantID:        "tenant-001",
		PolicyStartDate: "2026-02-10",
		IncidentDate:    "2026-02-13",
		SubmissionDate:  "2026-02-16",
	})
	require.NoError(t, err)

	require.Len(t, a.Indicators, 1, "anomaly and timing report the same finding")
	ind := a.Indicators[0]
	assert.Equal(t, domain.IndicatorEarlyClaim, ind.Type)
	assert.Equal(t, domain.SeverityHigh, ind.Severity)
	assert.InDelta(t, 0.25, ind.ScoreImpact, 1e-9)
	assert.InDelta(t, 0.25*0.25+0.15*0.25, a.FraudScore, 1e-9)

	assert.True(t, a.RequiresInvestigation)
	assert.True(t, a.ReviewPersisted)
	entry, err := reviews.GetReview(context.Background(), "tenant-001", "CLM-EARLY")
	require.NoError(t, err)
	assert.Equal(t, []string{"HIGH severity indicator: EARLY_CLAIM"}, entry.Reasoning.Summary.TriggerRules)
}

func TestScoreWatchlistEscalates(t *testing.T) {
	reviews := newMemReviews()
	e := newTestEngine(t, reviews, pipeline()...)

	a, err := e.Score(context.Background(), domain.Claim{
		ID:       "CLM-WL",
		TenantID: "tenant-001",
		Claimant: domain.Party{Name: "KNOWN FRAUDSTER"},
	})
	require.NoError(t, err)

	require.NotEmpty(t, a.Indicators)
	assert.Equal(t, domain.IndicatorWatchlistMatch, a.Indicators[0].Type)
	assert.Equal(t, domain.SeverityCritical, a.Indicators[0].Severity)
	assert.InDelta(t, 0.05, a.FraudScore, 1e-9)
	assert.Equal(t, domain.RiskLow, a.RiskLevel)
	assert.True(t, a.RequiresInvestigation)

	entry, err := reviews.GetReview(context.Background(), "tenant-001", "CLM-WL")
	require.NoError(t, err)
	assert.Equal(t, domain.ReviewPending, entry.Status)
	assert.Equal(t, "KNOWN FRAUDSTER", entry.ClaimantName)
	assert.Equal(t, "Claim matched fraud-risk escalation rules and needs human verification.", entry.Reasoning.Summary.WhyInReview)
	assert.Equal(t, "Computed fraud score is 0.05 with risk level LOW.", entry.Reasoning.Summary.FraudScoreReason)
	assert.Equal(t, "No policy analysis available.", entry.Reasoning.Summary.PolicyContext)
	assert.Len(t, entry.Reasoning.RecommendedActions, 4)
	assert.Equal(t, 1, entry.Reasoning.Summary.IndicatorCount)
}

func TestScoreDetectorFailuresIsolated(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	e, err := NewEngine(domain.ScoringConfig{DetectorTimeout: 50 * time.Millisecond}, nil, metrics,
		&stubDetector{name: domain.DetectorAnomaly, panics: true},
		&stubDetector{name: domain.DetectorDocument, err: errors.New("bad parse")},
		&stubDetector{name: domain.DetectorNetwork, block: release},
		&stubDetector{name: domain.DetectorDuplicate, score: 0.4, inds: []domain.Indicator{
			{Type: domain.IndicatorInternalDuplicate, Severity: domain.SeverityMedium, Details: "Documents 0 and 1 are identical", ScoreImpact: 0.15},
		}},
	)
	require.NoError(t, err)

	start := time.Now()
	a, err := e.Score(context.Background(), domain.Claim{ID: "CLM-F", TenantID: "tenant-001"})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second, "hung detector is abandoned")

	assert.Zero(t, a.ComponentScores[domain.DetectorAnomaly])
	assert.Zero(t, a.ComponentScores[domain.DetectorDocument])
	assert.Zero(t, a.ComponentScores[domain.DetectorNetwork])
	assert.InDelta(t, 0.4, a.ComponentScores[domain.DetectorDuplicate], 1e-9)
	assert.InDelta(t, 0.08, a.FraudScore, 1e-9)
	require.Len(t, a.Indicators, 1)

	assert.InDelta(t, 1, testutil.ToFloat64(metrics.detectorErrors.WithLabelValues(domain.DetectorAnomaly, "panic")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.detectorErrors.WithLabelValues(domain.DetectorDocument, "error")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.detectorErrors.WithLabelValues(domain.DetectorNetwork, "timeout")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.assessments.WithLabelValues("LOW")), 1e-9)
}

func TestScoreClampsOverflowingDetectors(t *testing.T) {
	var detectors []detect.Detector
	for _, name := range DetectorOrder {
		detectors = append(detectors, &stubDetector{name: name, score: 5})
	}
	e := newTestEngine(t, nil, detectors...)

	a, err := e.Score(context.Background(), domain.Claim{ID: "CLM-MAX"})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, a.FraudScore, 1e-9)
	assert.Equal(t, domain.RiskCritical, a.RiskLevel)
	assert.True(t, a.RequiresInvestigation)
	assert.False(t, a.ReviewPersisted, "no review store configured")
}

func TestScoreReviewStoreFailure(t *testing.T) {
	reviews := newMemReviews()
	reviews.err = errors.New("db locked")
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	e, err := NewEngine(domain.ScoringConfig{}, reviews, metrics, pipeline()...)
	require.NoError(t, err)

	a, err := e.Score(context.Background(), domain.Claim{
		ID:       "CLM-R",
		TenantID: "tenant-001",
		Provider: domain.Party{Name: "Fake Provider Inc"},
	})
	require.NoError(t, err)
	assert.True(t, a.RequiresInvestigation)
	assert.False(t, a.ReviewPersisted)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.reviewFailures), 1e-9)
}

func TestScoreCallerCancelled(t *testing.T) {
	reviews := newMemReviews()
	e := newTestEngine(t, reviews, pipeline()...)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a, err := e.Score(ctx, domain.Claim{
		ID:       "CLM-CANCEL",
		TenantID: "tenant-001",
		Claimant: domain.Party{Name: "Known Fraudster"},
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, a)

	_, err = reviews.GetReview(context.Background(), "tenant-001", "CLM-CANCEL")
	assert.Error(t, err, "nothing escalated for an abandoned claim")
	assert.Zero(t, e.Stats().Snapshot().TotalProcessed)
}

func TestScoreRequiresClaimID(t *testing.T) {
	e := newTestEngine(t, nil, pipeline()...)
	_, err := e.Score(context.Background(), domain.Claim{})
	assert.ErrorIs(t, err, ErrMissingClaimID)
}

func TestNewEngineRejectsBadBands(t *testing.T) {
	_, err := NewEngine(domain.ScoringConfig{MediumThreshold: 0.5, HighThreshold: 0.4, CriticalThreshold: 0.7}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidThresholds)
}

func TestStats(t *testing.T) {
	e := newTestEngine(t, nil, pipeline()...)
	ctx := context.Background()
	_, err := e.Score(ctx, domain.Claim{ID: "CLM-1"})
	require.NoError(t, err)
	_, err = e.Score(ctx, domain.Claim{ID: "CLM-2", Claimant: domain.Party{Name: "Serial Claimant"}})
	require.NoError(t, err)

	snap := e.Stats().Snapshot()
	assert.Equal(t, int64(2), snap.TotalProcessed)
	assert.Equal(t, int64(1), snap.Escalated)
	assert.Equal(t, int64(2), snap.ByRiskLevel[domain.RiskLow])
	assert.GreaterOrEqual(t, snap.MaxMs, snap.MinMs)

	assert.Zero(t, NewStats().Snapshot().AvgMs)
}
