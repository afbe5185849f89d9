package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL. Timestamps are unix
// milliseconds so range filters and ordering behave the same on both.

const schemaClaims = `
CREATE TABLE IF NOT EXISTS claims (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    policy_number TEXT,
    amount DOUBLE PRECISION NOT NULL,
    created_at BIGINT NOT NULL,
    data TEXT NOT NULL,
    PRIMARY KEY (tenant_id, id)
);

CREATE INDEX IF NOT EXISTS idx_claims_created ON claims(tenant_id, created_at);
CREATE INDEX IF NOT EXISTS idx_claims_policy ON claims(tenant_id, policy_number);
`

const schemaAssessments = `
CREATE TABLE IF NOT EXISTS assessments (
    claim_id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    id TEXT NOT NULL,
    fraud_score DOUBLE PRECISION NOT NULL,
    risk_level TEXT NOT NULL,
    requires_investigation INTEGER NOT NULL DEFAULT 0,
    created_at BIGINT NOT NULL,
    data TEXT NOT NULL,
    PRIMARY KEY (tenant_id, claim_id)
);

CREATE INDEX IF NOT EXISTS idx_assessments_risk ON assessments(tenant_id, risk_level);
`

// schemaReviewQueue holds claims escalated for human review.
// One row per claim; re-escalation refreshes the row in place.
const schemaReviewQueue = `
CREATE TABLE IF NOT EXISTS review_queue (
    claim_id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    policy_number TEXT,
    claim_amount DOUBLE PRECISION NOT NULL,
    claimant_name TEXT,
    provider_name TEXT,
    fraud_score DOUBLE PRECISION NOT NULL,
    risk_level TEXT NOT NULL,
    status TEXT NOT NULL,
    flag_reason TEXT,
    source TEXT,
    reviewer TEXT,
    notes TEXT,
    indicators TEXT NOT NULL,
    reasoning TEXT NOT NULL,
    policy_analysis TEXT,
    created_at BIGINT NOT NULL,
    updated_at BIGINT NOT NULL,
    PRIMARY KEY (tenant_id, claim_id)
);

CREATE INDEX IF NOT EXISTS idx_review_queue_status ON review_queue(tenant_id, status, updated_at);
CREATE INDEX IF NOT EXISTS idx_review_queue_updated ON review_queue(tenant_id, updated_at);
`

const schemaPolicies = `
CREATE TABLE IF NOT EXISTS policies (
    policy_number TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    policy_type TEXT NOT NULL,
    holder_name TEXT,
    sum_insured DOUBLE PRECISION NOT NULL,
    deductible DOUBLE PRECISION NOT NULL DEFAULT 0,
    effective_date BIGINT NOT NULL,
    expiry_date BIGINT NOT NULL,
    coverages TEXT NOT NULL,
    exclusions TEXT NOT NULL,
    updated_at BIGINT NOT NULL,
    PRIMARY KEY (tenant_id, policy_number)
);
`

const schemaExclusionRules = `
CREATE TABLE IF NOT EXISTS exclusion_rules (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at BIGINT NOT NULL,
    updated_at BIGINT NOT NULL,
    PRIMARY KEY (tenant_id, id)
);

CREATE INDEX IF NOT EXISTS idx_exclusion_rules_enabled ON exclusion_rules(tenant_id, enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaClaims,
		schemaAssessments,
		schemaReviewQueue,
		schemaPolicies,
		schemaExclusionRules,
	}
}
