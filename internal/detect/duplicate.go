package detect

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const (
	fingerprintPrefixLen = 500
	fingerprintTTL       = 90 * 24 * time.Hour
	fingerprintKeyPrefix = "docfp:"
)

// DuplicateDetector finds documents seen before on another claim and
// identical documents attached to the same claim. Seen fingerprints live in
// a domain.Cache keyed by fingerprint with the owning claim id as value.
type DuplicateDetector struct {
	cache domain.Cache
}

// NewDuplicateDetector creates a duplicate detector. A nil cache disables the
// cross-claim check.
func NewDuplicateDetector(cache domain.Cache) *DuplicateDetector {
	return &DuplicateDetector{cache: cache}
}

// Name implements Detector.
func (d *DuplicateDetector) Name() string { return domain.DetectorDuplicate }

// Detect implements Detector.
func (d *DuplicateDetector) Detect(ctx context.Context, claim domain.Claim) (domain.DetectorResult, error) {
	if len(claim.Documents) == 0 {
		return domain.DetectorResult{Detector: d.Name()}, nil
	}

	var (
		score      float64
		indicators []domain.Indicator
	)
	prints := make([]string, len(claim.Documents))

	for i, doc := range claim.Documents {
		fp := Fingerprint(doc)
		prints[i] = fp

		if owner, ok := d.register(ctx, claim, fp); ok && owner != claim.ID {
			score += 0.3
			indicators = append(indicators, withMeta(
				indicator(domain.IndicatorExactDuplicate, domain.SeverityCritical, 0.3, 1.0,
					fmt.Sprintf("Document %d is an exact duplicate of a document on claim %s", i, owner)),
				"document_index", i, "original_claim_id", owner))
			continue
		}

		for j := 0; j < i; j++ {
			if prints[j] == fp {
				score += 0.15
				indicators = append(indicators, withMeta(
					indicator(domain.IndicatorInternalDuplicate, domain.SeverityMedium, 0.15, 0.95,
						fmt.Sprintf("Documents %d and %d are identical", j, i)),
					"document_indices", []int{j, i}))
				break
			}
		}
	}

	return result(d.Name(), score, CapDuplicate, indicators), nil
}

// register records fp for the claim and returns the previous owner when the
// fingerprint was already known.
func (d *DuplicateDetector) register(ctx context.Context, claim domain.Claim, fp string) (string, bool) {
	if d.cache == nil {
		return "", false
	}
	prev, found, err := d.cache.GetOrSet(ctx, claim.TenantID, fingerprintKeyPrefix+fp, []byte(claim.ID), fingerprintTTL)
	if err != nil {
		slog.Debug("fingerprint cache unavailable", "claim_id", claim.ID, "error", err)
		return "", false
	}
	if !found {
		return "", false
	}
	return string(prev), true
}

// Fingerprint is the hex SHA-256 of type|filename|first 500 characters of
// content. An empty type hashes as "unknown".
func Fingerprint(doc domain.Document) string {
	typ := doc.Type
	if typ == "" {
		typ = "unknown"
	}
	content := []rune(doc.Content)
	if len(content) > fingerprintPrefixLen {
		content = content[:fingerprintPrefixLen]
	}
	sum := sha256.Sum256([]byte(typ + "|" + doc.Filename + "|" + string(content)))
	return hex.EncodeToString(sum[:])
}
