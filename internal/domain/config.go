package domain

import "time"

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `koanf:"server"`

	// Tier determines infrastructure defaults
	Tier Tier `koanf:"tier"`

	// Component configurations
	Repository RepositoryConfig `koanf:"repository"`
	Cache      CacheConfig      `koanf:"cache"`
	EventBus   EventBusConfig   `koanf:"eventbus"`

	// Scoring pipeline
	Scoring   ScoringConfig   `koanf:"scoring"`
	Network   NetworkConfig   `koanf:"network"`
	Anomaly   AnomalyConfig   `koanf:"anomaly"`
	Watchlist WatchlistConfig `koanf:"watchlist"`
	Decision  DecisionConfig  `koanf:"decision"`
	Worker    WorkerConfig    `koanf:"worker"`

	// Observability
	Logging LoggingConfig `koanf:"logging"`
	Tracing TracingConfig `koanf:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `koanf:"host"`
	Port         int    `koanf:"port"`
	ReadTimeout  int    `koanf:"read_timeout"`  // seconds
	WriteTimeout int    `koanf:"write_timeout"` // seconds

	// Per-tenant limit for synchronous scoring requests
	RateLimitRPS   float64 `koanf:"rate_limit_rps"`
	RateLimitBurst int     `koanf:"rate_limit_burst"`
}

// ScoringConfig holds fusion and escalation settings.
type ScoringConfig struct {
	DetectorTimeout time.Duration `koanf:"detector_timeout"`

	// Risk level lower bounds; must be strictly increasing.
	MediumThreshold   float64 `koanf:"medium_threshold"`
	HighThreshold     float64 `koanf:"high_threshold"`
	CriticalThreshold float64 `koanf:"critical_threshold"`

	// Fraud score at or above which a claim goes to manual review.
	ManualReviewThreshold float64 `koanf:"manual_review_threshold"`
}

// NetworkConfig holds relationship graph settings.
type NetworkConfig struct {
	RefreshInterval time.Duration `koanf:"refresh_interval"`
	Lookback        time.Duration `koanf:"lookback"`
	MaxClaims       int           `koanf:"max_claims"`
}

// AnomalyConfig holds amount anomaly settings.
type AnomalyConfig struct {
	// ModelPath points to a YAML logistic model; empty disables ML scoring.
	ModelPath        string `koanf:"model_path"`
	OutlierBuffer    int    `koanf:"outlier_buffer"`
	OutlierMinSample int    `koanf:"outlier_min_samples"`
	OutlierRefit     int    `koanf:"outlier_refit_every"`
}

// WatchlistConfig holds blocklist settings.
type WatchlistConfig struct {
	// Path to an optional YAML file extending the built-in list.
	Path string `koanf:"path"`
	// Watch reloads the file when it changes.
	Watch bool `koanf:"watch"`
}

// DecisionConfig holds decision policy thresholds.
type DecisionConfig struct {
	FraudEscalationThreshold float64 `koanf:"fraud_escalation_threshold"`
	ApproveThreshold         float64 `koanf:"approve_threshold"`
	ReviewThreshold          float64 `koanf:"review_threshold"`
}

// WorkerConfig holds async worker settings.
type WorkerConfig struct {
	Enabled   bool     `koanf:"enabled"`
	TenantIDs []string `koanf:"tenant_ids"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite + channels + in-process cache
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			ReadTimeout:    30,
			WriteTimeout:   30,
			RateLimitRPS:   50,
			RateLimitBurst: 100,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 100000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Scoring: ScoringConfig{
			DetectorTimeout:       5 * time.Second,
			MediumThreshold:       0.20,
			HighThreshold:         0.40,
			CriticalThreshold:     0.70,
			ManualReviewThreshold: 0.20,
		},
		Network: NetworkConfig{
			RefreshInterval: time.Hour,
			Lookback:        90 * 24 * time.Hour,
			MaxClaims:       1000,
		},
		Anomaly: AnomalyConfig{
			OutlierBuffer:    1000,
			OutlierMinSample: 50,
			OutlierRefit:     100,
		},
		Decision: DecisionConfig{
			FraudEscalationThreshold: 0.8,
			ApproveThreshold:         0.3,
			ReviewThreshold:          0.6,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "kestrel",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "kestrel",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   10000,
		LocalTTL:       5 * time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
		NATSQueueGroup:    "kestrel-scoring",
	}
	cfg.Worker.Enabled = true
	cfg.Tracing.Enabled = true
	return cfg
}
