// Package config loads Kestrel configuration from defaults, an optional YAML
// file and KESTREL_ environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// EnvPrefix is the prefix for environment overrides.
// Nested keys use a double underscore: KESTREL_SERVER__PORT=9090.
const EnvPrefix = "KESTREL_"

// DefaultPath is read when no explicit path is given.
const DefaultPath = "configs/kestrel.yaml"

// Load builds the configuration. The tier preset is chosen by KESTREL_TIER
// before the file and environment layers are applied.
func Load(path string) (*domain.Config, error) {
	k := koanf.New(".")

	defaults := domain.DefaultConfig()
	if strings.EqualFold(os.Getenv(EnvPrefix+"TIER"), string(domain.TierPro)) {
		defaults = domain.ProConfig()
	}

	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg domain.Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps KESTREL_SCORING__DETECTOR_TIMEOUT to scoring.detector_timeout.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Validate rejects settings the scoring pipeline cannot run with.
func Validate(cfg *domain.Config) error {
	s := cfg.Scoring
	if !(s.MediumThreshold < s.HighThreshold && s.HighThreshold < s.CriticalThreshold) {
		return fmt.Errorf("scoring thresholds must be strictly increasing: medium=%.2f high=%.2f critical=%.2f",
			s.MediumThreshold, s.HighThreshold, s.CriticalThreshold)
	}
	d := cfg.Decision
	if d.ApproveThreshold >= d.ReviewThreshold {
		return fmt.Errorf("decision approve threshold %.2f must be below review threshold %.2f",
			d.ApproveThreshold, d.ReviewThreshold)
	}
	switch cfg.Repository.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported repository driver: %s", cfg.Repository.Driver)
	}
	return nil
}
