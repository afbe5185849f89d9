package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func newTestRepo(t *testing.T) *SQLRepository {
	t.Helper()

	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "kestrel-test.db"),
	})
	require.NoError(t, err, "failed to create repository")
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteRepository(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, repo.Ping(ctx))
	})

	t.Run("SaveAndGetClaim", func(t *testing.T) {
		claim := &domain.Claim{
			ID:           "CLM-001",
			PolicyNumber: "POL-9",
			Amount:       15000,
			Claimant:     domain.Party{Name: "Asha Rao", Phone: "+91-98450-00000"},
			Documents:    []domain.Document{{Type: "bill", Filename: "bill.pdf"}},
			CreatedAt:    time.Now().UTC(),
		}
		require.NoError(t, repo.SaveClaim(ctx, tenantID, claim))

		got, err := repo.GetClaim(ctx, tenantID, claim.ID)
		require.NoError(t, err)
		assert.Equal(t, claim.Amount, got.Amount)
		assert.Equal(t, tenantID, got.TenantID)
		assert.Equal(t, "Asha Rao", got.Claimant.Name)
		assert.Len(t, got.Documents, 1)

		// Re-saving the same id replaces the payload.
		claim.Amount = 16000
		require.NoError(t, repo.SaveClaim(ctx, tenantID, claim))
		got, err = repo.GetClaim(ctx, tenantID, claim.ID)
		require.NoError(t, err)
		assert.Equal(t, 16000.0, got.Amount)
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		_, err := repo.GetClaim(ctx, "tenant-002", "CLM-001")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		assert.ErrorIs(t, repo.SaveClaim(ctx, "", &domain.Claim{ID: "x"}), ErrInvalidInput)

		_, err := repo.GetClaim(ctx, "", "CLM-001")
		assert.Error(t, err)
		_, err = repo.ListReviews(ctx, "", domain.ReviewFilter{})
		assert.Error(t, err)
	})

	t.Run("SaveAndGetAssessment", func(t *testing.T) {
		a := &domain.FraudAssessment{
			ID:                    "a-1",
			ClaimID:               "CLM-001",
			FraudScore:            0.125,
			RiskLevel:             domain.RiskLow,
			ComponentScores:       map[string]float64{"anomaly": 0.5},
			Indicators:            []domain.Indicator{{Type: domain.IndicatorThresholdAnomaly, Severity: domain.SeverityMedium}},
			RequiresInvestigation: false,
		}
		require.NoError(t, repo.SaveAssessment(ctx, tenantID, a))

		// A rescore replaces the stored assessment.
		a.ID = "a-2"
		a.FraudScore = 0.45
		a.RiskLevel = domain.RiskHigh
		require.NoError(t, repo.SaveAssessment(ctx, tenantID, a))

		got, err := repo.GetAssessment(ctx, tenantID, "CLM-001")
		require.NoError(t, err)
		assert.Equal(t, "a-2", got.ID)
		assert.Equal(t, 0.45, got.FraudScore)
		assert.Equal(t, domain.RiskHigh, got.RiskLevel)
		assert.Equal(t, 0.5, got.ComponentScores["anomaly"])
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := repo.GetClaim(ctx, tenantID, "nonexistent")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = repo.GetAssessment(ctx, tenantID, "nonexistent")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = repo.GetPolicy(ctx, tenantID, "nonexistent")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = repo.GetReview(ctx, tenantID, "nonexistent")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestListClaimsSince(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"old", "mid", "new"} {
		c := &domain.Claim{ID: id, Amount: 100, CreatedAt: base.Add(time.Duration(i) * 24 * time.Hour)}
		require.NoError(t, repo.SaveClaim(ctx, "tenant-001", c))
	}
	require.NoError(t, repo.SaveClaim(ctx, "tenant-002", &domain.Claim{ID: "other", CreatedAt: base.Add(48 * time.Hour)}))

	claims, err := repo.ListClaimsSince(ctx, "tenant-001", base.Add(24*time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, claims, 2)
	assert.Equal(t, "new", claims[0].ID, "newest first")
	assert.Equal(t, "mid", claims[1].ID)

	claims, err = repo.ListClaimsSince(ctx, "tenant-001", base, 1)
	require.NoError(t, err)
	require.Len(t, claims, 1)
	assert.Equal(t, "new", claims[0].ID)
}

func reviewEntry(claimID string, score float64) *domain.ReviewEntry {
	return &domain.ReviewEntry{
		ClaimID:      claimID,
		PolicyNumber: "POL-1",
		ClaimAmount:  99000,
		ClaimantName: "Ravi Kumar",
		FraudScore:   score,
		RiskLevel:    domain.RiskMedium,
		Status:       domain.ReviewPending,
		FlagReason:   "Automatic fraud threshold/indicator trigger",
		Indicators: []domain.Indicator{
			{Type: domain.IndicatorWatchlistMatch, Severity: domain.SeverityCritical, Details: "match", ScoreImpact: 0.5},
		},
		Reasoning: domain.ReviewReasoning{
			Summary:            domain.ReviewSummary{TriggerRules: []string{"CRITICAL severity indicator: WATCHLIST_MATCH"}, IndicatorCount: 1},
			ComponentScores:    map[string]float64{"watchlist": 0.5},
			RecommendedActions: []string{"Verify claimant and provider identities"},
		},
		PolicyAnalysis: &domain.CoverageAnalysis{IsCovered: true, CoverageScore: 1},
		Source:         "kestrel.scoring",
	}
}

func TestReviewQueue(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenantID := "tenant-001"

	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return clock }
	tick := func() { clock = clock.Add(time.Minute) }

	t.Run("UpsertInsertsPending", func(t *testing.T) {
		require.NoError(t, repo.UpsertReview(ctx, tenantID, reviewEntry("CLM-1", 0.3)))

		got, err := repo.GetReview(ctx, tenantID, "CLM-1")
		require.NoError(t, err)
		assert.Equal(t, domain.ReviewPending, got.Status)
		assert.Len(t, got.Indicators, 1)
		assert.Equal(t, 1, got.Reasoning.Summary.IndicatorCount)
		require.NotNil(t, got.PolicyAnalysis)
		assert.True(t, got.PolicyAnalysis.IsCovered)
		assert.True(t, got.CreatedAt.Equal(clock), "created_at %v", got.CreatedAt)
	})

	t.Run("UpdateStatus", func(t *testing.T) {
		tick()
		got, err := repo.UpdateReviewStatus(ctx, tenantID, "CLM-1", domain.ReviewUpdate{
			Status:   domain.ReviewApproved,
			Reviewer: "underwriter-7",
			Notes:    "documents verified",
		})
		require.NoError(t, err)
		assert.Equal(t, domain.ReviewApproved, got.Status)
		assert.Equal(t, "underwriter-7", got.Reviewer)
		assert.True(t, got.UpdatedAt.Equal(clock), "updated_at %v", got.UpdatedAt)

		// Empty reviewer keeps the stored one.
		got, err = repo.UpdateReviewStatus(ctx, tenantID, "CLM-1", domain.ReviewUpdate{Status: domain.ReviewApproved})
		require.NoError(t, err)
		assert.Equal(t, "underwriter-7", got.Reviewer)
		assert.Equal(t, "documents verified", got.Notes)
	})

	t.Run("ReupsertPreservesStatus", func(t *testing.T) {
		tick()
		created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

		require.NoError(t, repo.UpsertReview(ctx, tenantID, reviewEntry("CLM-1", 0.55)))

		got, err := repo.GetReview(ctx, tenantID, "CLM-1")
		require.NoError(t, err)
		assert.Equal(t, domain.ReviewApproved, got.Status)
		assert.Equal(t, 0.55, got.FraudScore)
		assert.True(t, got.CreatedAt.Equal(created), "created_at %v", got.CreatedAt)
		assert.Equal(t, "underwriter-7", got.Reviewer)
	})

	t.Run("ListByStatus", func(t *testing.T) {
		for _, id := range []string{"CLM-2", "CLM-3"} {
			tick()
			require.NoError(t, repo.UpsertReview(ctx, tenantID, reviewEntry(id, 0.4)))
		}

		pending, err := repo.ListReviews(ctx, tenantID, domain.ReviewFilter{Status: domain.ReviewPending, Limit: 10})
		require.NoError(t, err)
		require.Len(t, pending, 2)
		assert.Equal(t, "CLM-3", pending[0].ClaimID, "most recently updated first")

		all, err := repo.ListReviews(ctx, tenantID, domain.ReviewFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 3)

		limited, err := repo.ListReviews(ctx, tenantID, domain.ReviewFilter{Limit: 1})
		require.NoError(t, err)
		assert.Len(t, limited, 1)

		other, err := repo.ListReviews(ctx, "tenant-002", domain.ReviewFilter{})
		require.NoError(t, err)
		assert.Empty(t, other)
	})

	t.Run("InvalidAndMissing", func(t *testing.T) {
		_, err := repo.UpdateReviewStatus(ctx, tenantID, "CLM-1", domain.ReviewUpdate{Status: "CLOSED"})
		assert.ErrorIs(t, err, ErrInvalidInput)

		_, err = repo.UpdateReviewStatus(ctx, tenantID, "missing", domain.ReviewUpdate{Status: domain.ReviewRejected})
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = repo.ListReviews(ctx, tenantID, domain.ReviewFilter{Status: "CLOSED"})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestPoliciesAndRules(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenantID := "tenant-001"

	policy := &domain.Policy{
		PolicyNumber:  "POL-100",
		PolicyType:    "motor",
		HolderName:    "Asha Rao",
		SumInsured:    500000,
		Deductible:    2500,
		EffectiveDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		ExpiryDate:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Coverages:     map[string]bool{"comprehensive": true, "thirdParty": true},
		Exclusions:    []string{"Driving under influence"},
	}
	require.NoError(t, repo.SavePolicy(ctx, tenantID, policy))

	got, err := repo.GetPolicy(ctx, tenantID, "POL-100")
	require.NoError(t, err)
	assert.True(t, got.EffectiveDate.Equal(policy.EffectiveDate), "effective %v", got.EffectiveDate)
	assert.True(t, got.ExpiryDate.Equal(policy.ExpiryDate), "expiry %v", got.ExpiryDate)
	assert.True(t, got.Coverages["comprehensive"])
	assert.Len(t, got.Exclusions, 1)

	policies, err := repo.ListPolicies(ctx, tenantID)
	require.NoError(t, err)
	assert.Len(t, policies, 1)

	rules := []*domain.ExclusionRule{
		{ID: "excl-b", Name: "Racing", Version: "1.0.0", Expression: "false", Enabled: false},
		{ID: "excl-a", Name: "War", Version: "1.0.0", Expression: "true", Enabled: true},
	}
	for _, r := range rules {
		require.NoError(t, repo.SaveExclusionRule(ctx, tenantID, r))
	}

	stored, err := repo.ListExclusionRules(ctx, tenantID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "excl-a", stored[0].ID)
	assert.True(t, stored[0].Enabled)
	assert.False(t, stored[1].Enabled)
}

func TestUnsupportedDriver(t *testing.T) {
	_, err := New(domain.RepositoryConfig{Driver: "mysql"})
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	repo := &SQLRepository{driver: "postgres"}

	tests := []struct {
		input    string
		expected string
	}{
		{"SELECT * FROM t WHERE id = ?", "SELECT * FROM t WHERE id = $1"},
		{"INSERT INTO t (a, b) VALUES (?, ?)", "INSERT INTO t (a, b) VALUES ($1, $2)"},
		{"SELECT * FROM t", "SELECT * FROM t"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, repo.rebind(tt.input), tt.input)
	}
}

func TestPostgresDSN(t *testing.T) {
	dsn := postgresDSN(domain.RepositoryConfig{PostgresUser: "kestrel"})
	assert.Equal(t, "host=localhost port=5432 dbname=kestrel sslmode=disable user=kestrel", dsn)

	url := "postgres://u:p@db:5432/claims?sslmode=require"
	assert.Equal(t, url, postgresDSN(domain.RepositoryConfig{PostgresURL: url}))
}
