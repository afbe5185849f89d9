package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// DefaultReviewLimit is the page size when a filter carries no limit.
const DefaultReviewLimit = 50

var reviewColumns = []string{
	"claim_id", "tenant_id", "policy_number", "claim_amount",
	"claimant_name", "provider_name", "fraud_score", "risk_level",
	"status", "flag_reason", "source", "reviewer", "notes",
	"indicators", "reasoning", "policy_analysis",
	"created_at", "updated_at",
}

// UpsertReview inserts or refreshes a review queue entry. A new row starts
// as PENDING_REVIEW; a re-escalated claim keeps its status, reviewer, notes
// and created_at.
func (r *SQLRepository) UpsertReview(ctx context.Context, tenantID string, entry *domain.ReviewEntry) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if entry == nil || entry.ClaimID == "" {
		return fmt.Errorf("%w: review claim id is required", ErrInvalidInput)
	}

	indicators, err := json.Marshal(entry.Indicators)
	if err != nil {
		return fmt.Errorf("failed to encode indicators: %w", err)
	}
	reasoning, err := json.Marshal(entry.Reasoning)
	if err != nil {
		return fmt.Errorf("failed to encode reasoning: %w", err)
	}
	var analysis sql.NullString
	if entry.PolicyAnalysis != nil {
		data, err := json.Marshal(entry.PolicyAnalysis)
		if err != nil {
			return fmt.Errorf("failed to encode policy analysis: %w", err)
		}
		analysis = sql.NullString{String: string(data), Valid: true}
	}

	now := r.now()
	created := entry.CreatedAt
	if created.IsZero() {
		created = now
	}
	updated := entry.UpdatedAt
	if updated.IsZero() {
		updated = now
	}

	query := `
		INSERT INTO review_queue (
			claim_id, tenant_id, policy_number, claim_amount,
			claimant_name, provider_name, fraud_score, risk_level,
			status, flag_reason, source, reviewer, notes,
			indicators, reasoning, policy_analysis,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, claim_id) DO UPDATE SET
			policy_number = excluded.policy_number,
			claim_amount = excluded.claim_amount,
			claimant_name = excluded.claimant_name,
			provider_name = excluded.provider_name,
			fraud_score = excluded.fraud_score,
			risk_level = excluded.risk_level,
			flag_reason = excluded.flag_reason,
			source = excluded.source,
			indicators = excluded.indicators,
			reasoning = excluded.reasoning,
			policy_analysis = excluded.policy_analysis,
			updated_at = excluded.updated_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		entry.ClaimID, tenantID, entry.PolicyNumber, entry.ClaimAmount,
		entry.ClaimantName, entry.ProviderName, entry.FraudScore, string(entry.RiskLevel),
		string(domain.ReviewPending), entry.FlagReason, entry.Source, "", "",
		string(indicators), string(reasoning), analysis,
		toMillis(created), toMillis(updated),
	)
	return err
}

// GetReview retrieves one review queue entry.
func (r *SQLRepository) GetReview(ctx context.Context, tenantID string, claimID string) (*domain.ReviewEntry, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query, args, err := r.sb.Select(reviewColumns...).
		From("review_queue").
		Where(sq.Eq{"tenant_id": tenantID, "claim_id": claimID}).
		ToSql()
	if err != nil {
		return nil, err
	}

	entry, err := scanReview(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: review entry for claim %s", ErrNotFound, claimID)
	}
	return entry, err
}

// ListReviews returns entries newest-updated first, optionally filtered by
// status.
func (r *SQLRepository) ListReviews(ctx context.Context, tenantID string, filter domain.ReviewFilter) ([]*domain.ReviewEntry, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown review status %q", ErrInvalidInput, filter.Status)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultReviewLimit
	}

	qb := r.sb.Select(reviewColumns...).
		From("review_queue").
		Where(sq.Eq{"tenant_id": tenantID})
	if filter.Status != "" {
		qb = qb.Where(sq.Eq{"status": string(filter.Status)})
	}

	query, args, err := qb.OrderBy("updated_at DESC", "claim_id").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []*domain.ReviewEntry{}
	for rows.Next() {
		entry, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// UpdateReviewStatus applies a reviewer decision and returns the updated
// entry. Empty reviewer or notes leave the stored values untouched.
func (r *SQLRepository) UpdateReviewStatus(ctx context.Context, tenantID string, claimID string, update domain.ReviewUpdate) (*domain.ReviewEntry, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	if !update.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown review status %q", ErrInvalidInput, update.Status)
	}

	ub := r.sb.Update("review_queue").
		Set("status", string(update.Status)).
		Set("updated_at", toMillis(r.now())).
		Where(sq.Eq{"tenant_id": tenantID, "claim_id": claimID})
	if update.Reviewer != "" {
		ub = ub.Set("reviewer", update.Reviewer)
	}
	if update.Notes != "" {
		ub = ub.Set("notes", update.Notes)
	}

	query, args, err := ub.ToSql()
	if err != nil {
		return nil, err
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: review entry for claim %s", ErrNotFound, claimID)
	}

	return r.GetReview(ctx, tenantID, claimID)
}

func scanReview(row rowScanner) (*domain.ReviewEntry, error) {
	var (
		e                                domain.ReviewEntry
		policyNumber, claimant, provider sql.NullString
		flagReason, source               sql.NullString
		reviewer, notes, analysis        sql.NullString
		riskLevel, status                string
		indicators, reasoning            string
		created, updated                 int64
	)

	if err := row.Scan(
		&e.ClaimID, &e.TenantID, &policyNumber, &e.ClaimAmount,
		&claimant, &provider, &e.FraudScore, &riskLevel,
		&status, &flagReason, &source, &reviewer, &notes,
		&indicators, &reasoning, &analysis,
		&created, &updated,
	); err != nil {
		return nil, err
	}

	e.PolicyNumber = policyNumber.String
	e.ClaimantName = claimant.String
	e.ProviderName = provider.String
	e.RiskLevel = domain.RiskLevel(riskLevel)
	e.Status = domain.ReviewStatus(status)
	e.FlagReason = flagReason.String
	e.Source = source.String
	e.Reviewer = reviewer.String
	e.Notes = notes.String
	e.CreatedAt = fromMillis(created)
	e.UpdatedAt = fromMillis(updated)

	if err := json.Unmarshal([]byte(indicators), &e.Indicators); err != nil {
		return nil, fmt.Errorf("failed to decode indicators for %s: %w", e.ClaimID, err)
	}
	if err := json.Unmarshal([]byte(reasoning), &e.Reasoning); err != nil {
		return nil, fmt.Errorf("failed to decode reasoning for %s: %w", e.ClaimID, err)
	}
	if analysis.Valid && analysis.String != "" {
		e.PolicyAnalysis = &domain.CoverageAnalysis{}
		if err := json.Unmarshal([]byte(analysis.String), e.PolicyAnalysis); err != nil {
			return nil, fmt.Errorf("failed to decode policy analysis for %s: %w", e.ClaimID, err)
		}
	}

	return &e, nil
}
