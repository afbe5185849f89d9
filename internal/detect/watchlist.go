package detect

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/opensource-finance/kestrel/internal/domain"
	"gopkg.in/yaml.v3"
)

// Built-in blocklist entries.
var (
	defaultFraudClaimants = []string{
		"Known Fraudster",
		"Serial Claimant",
		"Fake Identity User",
	}
	defaultFraudProviders = []string{
		"Quick Fix Garage",
		"Questionable Clinic",
		"Fake Provider Inc",
		"Fraud Law Associates",
	}
)

// WatchlistFile is the on-disk format of the extension list.
type WatchlistFile struct {
	Claimants []string `yaml:"claimants"`
	Providers []string `yaml:"providers"`
}

// WatchlistChecker matches claimant and provider names against a blocklist.
// The list may be extended from a YAML file and reloaded while serving.
type WatchlistChecker struct {
	mu        sync.RWMutex
	claimants []string // lower-cased
	providers []string // lower-cased
}

// NewWatchlistChecker creates a checker with the built-in entries.
func NewWatchlistChecker() *WatchlistChecker {
	w := &WatchlistChecker{}
	w.set(WatchlistFile{})
	return w
}

// Name implements Detector.
func (w *WatchlistChecker) Name() string { return domain.DetectorWatchlist }

// Detect implements Detector.
func (w *WatchlistChecker) Detect(_ context.Context, claim domain.Claim) (domain.DetectorResult, error) {
	ind, ok := w.Check(claim.Claimant.Name, claim.Provider.Name)
	if !ok {
		return domain.DetectorResult{Detector: w.Name()}, nil
	}
	return domain.DetectorResult{
		Detector:   w.Name(),
		Score:      ind.ScoreImpact,
		Indicators: []domain.Indicator{ind},
	}, nil
}

// Check returns a WATCHLIST_MATCH indicator for the first hit.
// The claimant is checked before the provider.
func (w *WatchlistChecker) Check(claimantName, providerName string) (domain.Indicator, bool) {
	w.mu.RLock()
	claimants, providers := w.claimants, w.providers
	w.mu.RUnlock()

	if name := strings.ToLower(claimantName); name != "" {
		for _, entry := range claimants {
			if strings.Contains(name, entry) {
				return withMeta(indicator(domain.IndicatorWatchlistMatch, domain.SeverityCritical, 0.5, 0.95,
					fmt.Sprintf("Claimant '%s' matches watchlist entry", claimantName)),
					"entity", "claimant"), true
			}
		}
	}
	if name := strings.ToLower(providerName); name != "" {
		for _, entry := range providers {
			if strings.Contains(name, entry) {
				return withMeta(indicator(domain.IndicatorWatchlistMatch, domain.SeverityCritical, 0.5, 0.95,
					fmt.Sprintf("Provider '%s' matches watchlist entry", providerName)),
					"entity", "provider"), true
			}
		}
	}
	return domain.Indicator{}, false
}

// Size returns the number of claimant and provider entries.
func (w *WatchlistChecker) Size() (claimants, providers int) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.claimants), len(w.providers)
}

// LoadFile replaces the extension entries with the contents of path.
// On error the current list is kept.
func (w *WatchlistChecker) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read watchlist: %w", err)
	}
	var f WatchlistFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse watchlist %s: %w", path, err)
	}
	w.set(f)
	return nil
}

func (w *WatchlistChecker) set(extra WatchlistFile) {
	claimants := normalizeEntries(defaultFraudClaimants, extra.Claimants)
	providers := normalizeEntries(defaultFraudProviders, extra.Providers)

	w.mu.Lock()
	w.claimants, w.providers = claimants, providers
	w.mu.Unlock()
}

func normalizeEntries(lists ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range lists {
		for _, e := range list {
			e = strings.ToLower(strings.TrimSpace(e))
			if e == "" || seen[e] {
				continue
			}
			seen[e] = true
			out = append(out, e)
		}
	}
	return out
}

// Watch reloads path whenever it changes until ctx is cancelled.
// The parent directory is watched so editors that replace the file are seen.
func (w *WatchlistChecker) Watch(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(absPath)); err != nil {
		fsw.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(absPath), err)
	}

	go func() {
		defer fsw.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != absPath {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				if err := w.LoadFile(absPath); err != nil {
					slog.Warn("watchlist reload failed", "path", absPath, "error", err)
					continue
				}
				c, p := w.Size()
				slog.Info("watchlist reloaded", "path", absPath, "claimants", c, "providers", p)
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				slog.Warn("watchlist watcher error", "error", err)
			}
		}
	}()

	return nil
}
