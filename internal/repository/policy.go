package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// SavePolicy stores or replaces a policy with tenant isolation.
func (r *SQLRepository) SavePolicy(ctx context.Context, tenantID string, p *domain.Policy) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if p == nil || p.PolicyNumber == "" {
		return fmt.Errorf("%w: policy number is required", ErrInvalidInput)
	}

	coverages, err := json.Marshal(p.Coverages)
	if err != nil {
		return fmt.Errorf("failed to encode coverages: %w", err)
	}
	exclusions, err := json.Marshal(p.Exclusions)
	if err != nil {
		return fmt.Errorf("failed to encode exclusions: %w", err)
	}

	query := `
		INSERT INTO policies (
			policy_number, tenant_id, policy_type, holder_name, sum_insured, deductible,
			effective_date, expiry_date, coverages, exclusions, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, policy_number) DO UPDATE SET
			policy_type = excluded.policy_type,
			holder_name = excluded.holder_name,
			sum_insured = excluded.sum_insured,
			deductible = excluded.deductible,
			effective_date = excluded.effective_date,
			expiry_date = excluded.expiry_date,
			coverages = excluded.coverages,
			exclusions = excluded.exclusions,
			updated_at = excluded.updated_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		p.PolicyNumber, tenantID, p.PolicyType, p.HolderName, p.SumInsured, p.Deductible,
		toMillis(p.EffectiveDate), toMillis(p.ExpiryDate),
		string(coverages), string(exclusions), toMillis(r.now()),
	)
	return err
}

const policyColumns = `policy_number, tenant_id, policy_type, holder_name, sum_insured, deductible,
	effective_date, expiry_date, coverages, exclusions`

// GetPolicy retrieves a policy by number with tenant isolation.
func (r *SQLRepository) GetPolicy(ctx context.Context, tenantID string, policyNumber string) (*domain.Policy, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT ` + policyColumns + ` FROM policies WHERE tenant_id = ? AND policy_number = ?`

	p, err := scanPolicy(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, policyNumber))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: policy %s", ErrNotFound, policyNumber)
	}
	return p, err
}

// ListPolicies returns every policy on file for a tenant.
func (r *SQLRepository) ListPolicies(ctx context.Context, tenantID string) ([]*domain.Policy, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT ` + policyColumns + ` FROM policies WHERE tenant_id = ? ORDER BY policy_number`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	policies := []*domain.Policy{}
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}

	return policies, rows.Err()
}

func scanPolicy(row rowScanner) (*domain.Policy, error) {
	var (
		p                     domain.Policy
		holder                sql.NullString
		effective, expiry     int64
		coverages, exclusions string
	)

	if err := row.Scan(
		&p.PolicyNumber, &p.TenantID, &p.PolicyType, &holder, &p.SumInsured, &p.Deductible,
		&effective, &expiry, &coverages, &exclusions,
	); err != nil {
		return nil, err
	}

	p.HolderName = holder.String
	p.EffectiveDate = fromMillis(effective)
	p.ExpiryDate = fromMillis(expiry)

	if err := json.Unmarshal([]byte(coverages), &p.Coverages); err != nil {
		return nil, fmt.Errorf("failed to decode coverages for %s: %w", p.PolicyNumber, err)
	}
	if err := json.Unmarshal([]byte(exclusions), &p.Exclusions); err != nil {
		return nil, fmt.Errorf("failed to decode exclusions for %s: %w", p.PolicyNumber, err)
	}
	return &p, nil
}

// SaveExclusionRule stores a CEL exclusion rule with tenant isolation.
func (r *SQLRepository) SaveExclusionRule(ctx context.Context, tenantID string, rule *domain.ExclusionRule) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("%w: rule id is required", ErrInvalidInput)
	}

	now := toMillis(r.now())

	query := `
		INSERT INTO exclusion_rules (
			id, tenant_id, name, description, version, expression, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			version = excluded.version,
			expression = excluded.expression,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description,
		rule.Version, rule.Expression, boolToInt(rule.Enabled),
		now, now,
	)
	return err
}

// ListExclusionRules returns every stored rule for a tenant, enabled or not.
func (r *SQLRepository) ListExclusionRules(ctx context.Context, tenantID string) ([]*domain.ExclusionRule, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, enabled
		FROM exclusion_rules
		WHERE tenant_id = ?
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rules := []*domain.ExclusionRule{}
	for rows.Next() {
		var rule domain.ExclusionRule
		var description sql.NullString
		var enabled int

		if err := rows.Scan(
			&rule.ID, &rule.TenantID, &rule.Name, &description,
			&rule.Version, &rule.Expression, &enabled,
		); err != nil {
			return nil, err
		}

		rule.Description = description.String
		rule.Enabled = enabled == 1
		rules = append(rules, &rule)
	}

	return rules, rows.Err()
}
