// Package detect implements the independent fraud detectors that feed the
// scoring engine. Detectors never fail on bad input: a missing or malformed
// field only removes that check's contribution.
package detect

import (
	"context"
	"math"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Detector scores one aspect of a claim.
type Detector interface {
	Name() string
	Detect(ctx context.Context, claim domain.Claim) (domain.DetectorResult, error)
}

// Caps on each detector's score contribution.
const (
	CapAnomaly   = 0.5
	CapDocument  = 0.3
	CapDuplicate = 0.4
	CapNetwork   = 0.3
)

// result assembles a DetectorResult, capping the summed score.
func result(name string, score, limit float64, indicators []domain.Indicator) domain.DetectorResult {
	return domain.DetectorResult{
		Detector:   name,
		Score:      math.Min(score, limit),
		Indicators: indicators,
	}
}

func indicator(t domain.IndicatorType, sev domain.Severity, impact, confidence float64, details string) domain.Indicator {
	return domain.Indicator{
		Type:        t,
		Severity:    sev,
		Details:     details,
		Confidence:  confidence,
		ScoreImpact: impact,
	}
}

func withMeta(ind domain.Indicator, kv ...any) domain.Indicator {
	if ind.Metadata == nil {
		ind.Metadata = make(map[string]any, len(kv)/2)
	}
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			ind.Metadata[k] = kv[i+1]
		}
	}
	return ind
}
