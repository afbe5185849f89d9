package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// SaveClaim stores a claim with tenant isolation. Saving the same claim id
// again replaces the stored payload.
func (r *SQLRepository) SaveClaim(ctx context.Context, tenantID string, claim *domain.Claim) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if claim == nil || claim.ID == "" {
		return fmt.Errorf("%w: claim id is required", ErrInvalidInput)
	}

	c := *claim
	c.TenantID = tenantID
	if c.CreatedAt.IsZero() {
		c.CreatedAt = r.now()
	}

	data, err := json.Marshal(&c)
	if err != nil {
		return fmt.Errorf("failed to encode claim: %w", err)
	}

	query := `
		INSERT INTO claims (id, tenant_id, policy_number, amount, created_at, data)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, id) DO UPDATE SET
			policy_number = excluded.policy_number,
			amount = excluded.amount,
			data = excluded.data
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		c.ID, tenantID, c.PolicyNumber, c.Amount, toMillis(c.CreatedAt), string(data),
	)
	return err
}

// GetClaim retrieves a claim by ID with tenant isolation.
func (r *SQLRepository) GetClaim(ctx context.Context, tenantID string, claimID string) (*domain.Claim, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT data FROM claims WHERE tenant_id = ? AND id = ?`

	var data string
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, claimID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: claim %s", ErrNotFound, claimID)
	}
	if err != nil {
		return nil, err
	}

	var c domain.Claim
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return nil, fmt.Errorf("failed to decode claim %s: %w", claimID, err)
	}
	return &c, nil
}

// ListClaimsSince returns the tenant's claims created at or after since,
// newest first.
func (r *SQLRepository) ListClaimsSince(ctx context.Context, tenantID string, since time.Time, limit int) ([]*domain.Claim, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultClaimWindowLimit
	}

	query := `
		SELECT data FROM claims
		WHERE tenant_id = ? AND created_at >= ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, since.UnixMilli(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claims []*domain.Claim
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var c domain.Claim
		if err := json.Unmarshal([]byte(data), &c); err != nil {
			return nil, fmt.Errorf("failed to decode claim: %w", err)
		}
		claims = append(claims, &c)
	}

	return claims, rows.Err()
}

// SaveAssessment stores the latest assessment for a claim.
func (r *SQLRepository) SaveAssessment(ctx context.Context, tenantID string, a *domain.FraudAssessment) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if a == nil || a.ClaimID == "" {
		return fmt.Errorf("%w: assessment claim id is required", ErrInvalidInput)
	}

	stored := *a
	stored.TenantID = tenantID
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = r.now()
	}

	data, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("failed to encode assessment: %w", err)
	}

	query := `
		INSERT INTO assessments (
			claim_id, tenant_id, id, fraud_score, risk_level, requires_investigation, created_at, data
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, claim_id) DO UPDATE SET
			id = excluded.id,
			fraud_score = excluded.fraud_score,
			risk_level = excluded.risk_level,
			requires_investigation = excluded.requires_investigation,
			created_at = excluded.created_at,
			data = excluded.data
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		stored.ClaimID, tenantID, stored.ID, stored.FraudScore, string(stored.RiskLevel),
		boolToInt(stored.RequiresInvestigation), toMillis(stored.CreatedAt), string(data),
	)
	return err
}

// GetAssessment retrieves the latest assessment for a claim.
func (r *SQLRepository) GetAssessment(ctx context.Context, tenantID string, claimID string) (*domain.FraudAssessment, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT data FROM assessments WHERE tenant_id = ? AND claim_id = ?`

	var data string
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, claimID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: assessment for claim %s", ErrNotFound, claimID)
	}
	if err != nil {
		return nil, err
	}

	var a domain.FraudAssessment
	if err := json.Unmarshal([]byte(data), &a); err != nil {
		return nil, fmt.Errorf("failed to decode assessment for %s: %w", claimID, err)
	}
	return &a, nil
}
