package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, domain.TierCommunity, cfg.Tier)
	assert.Equal(t, "sqlite", cfg.Repository.Driver)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Scoring.DetectorTimeout)
	assert.InDelta(t, 0.70, cfg.Scoring.CriticalThreshold, 1e-9)
	assert.Equal(t, 1000, cfg.Network.MaxClaims)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kestrel.yaml")
	yaml := `
server:
  port: 9000
scoring:
  detector_timeout: 2s
network:
  max_claims: 500
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	t.Setenv("KESTREL_SERVER__PORT", "9100")
	t.Setenv("KESTREL_WATCHLIST__PATH", "/etc/kestrel/watchlist.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port, "env overrides file")
	assert.Equal(t, 2*time.Second, cfg.Scoring.DetectorTimeout)
	assert.Equal(t, 500, cfg.Network.MaxClaims)
	assert.Equal(t, "/etc/kestrel/watchlist.yaml", cfg.Watchlist.Path)
}

func TestLoadProTier(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("KESTREL_TIER", "pro")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, domain.TierPro, cfg.Tier)
	assert.Equal(t, "postgres", cfg.Repository.Driver)
	assert.Equal(t, "nats", cfg.EventBus.Type)
	assert.True(t, cfg.Cache.EnableTwoPhase)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Run("NonMonotonicThresholds", func(t *testing.T) {
		cfg := domain.DefaultConfig()
		cfg.Scoring.HighThreshold = 0.1
		assert.Error(t, Validate(cfg))
	})

	t.Run("DecisionThresholds", func(t *testing.T) {
		cfg := domain.DefaultConfig()
		cfg.Decision.ApproveThreshold = 0.7
		assert.Error(t, Validate(cfg))
	})

	t.Run("UnknownDriver", func(t *testing.T) {
		cfg := domain.DefaultConfig()
		cfg.Repository.Driver = "mysql"
		assert.Error(t, Validate(cfg))
	})

	t.Run("Defaults", func(t *testing.T) {
		assert.NoError(t, Validate(domain.DefaultConfig()))
		assert.NoError(t, Validate(domain.ProConfig()))
	})
}
