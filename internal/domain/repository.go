// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"context"
	"time"
)

// ReviewStore is the human review queue.
type ReviewStore interface {
	// UpsertReview inserts or refreshes the entry for a claim. A new entry
	// starts as PENDING_REVIEW; an existing entry keeps its status.
	UpsertReview(ctx context.Context, tenantID string, entry *ReviewEntry) error
	GetReview(ctx context.Context, tenantID string, claimID string) (*ReviewEntry, error)
	ListReviews(ctx context.Context, tenantID string, filter ReviewFilter) ([]*ReviewEntry, error)
	UpdateReviewStatus(ctx context.Context, tenantID string, claimID string, update ReviewUpdate) (*ReviewEntry, error)
}

// ClaimSource supplies the recent-claims window for network analysis.
type ClaimSource interface {
	ListClaimsSince(ctx context.Context, tenantID string, since time.Time, limit int) ([]*Claim, error)
}

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	ReviewStore
	ClaimSource

	// Claims
	SaveClaim(ctx context.Context, tenantID string, claim *Claim) error
	GetClaim(ctx context.Context, tenantID string, claimID string) (*Claim, error)

	// Assessments
	SaveAssessment(ctx context.Context, tenantID string, a *FraudAssessment) error
	GetAssessment(ctx context.Context, tenantID string, claimID string) (*FraudAssessment, error)

	// Policies
	SavePolicy(ctx context.Context, tenantID string, p *Policy) error
	GetPolicy(ctx context.Context, tenantID string, policyNumber string) (*Policy, error)
	ListPolicies(ctx context.Context, tenantID string) ([]*Policy, error)

	// Exclusion rules
	SaveExclusionRule(ctx context.Context, tenantID string, rule *ExclusionRule) error
	ListExclusionRules(ctx context.Context, tenantID string) ([]*ExclusionRule, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `koanf:"driver"`

	// SQLite specific
	SQLitePath string `koanf:"sqlite_path"`

	// PostgreSQL specific. PostgresURL, when set, overrides the discrete fields.
	PostgresURL      string `koanf:"postgres_url"`
	PostgresHost     string `koanf:"postgres_host"`
	PostgresPort     int    `koanf:"postgres_port"`
	PostgresUser     string `koanf:"postgres_user"`
	PostgresPassword string `koanf:"postgres_password"`
	PostgresDB       string `koanf:"postgres_db"`
	PostgresSSLMode  string `koanf:"postgres_sslmode"`

	// Connection pool settings
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}
