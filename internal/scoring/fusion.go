package scoring

import (
	"math"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Weights is the fixed fusion table, keyed by detector name.
var Weights = map[string]float64{
	domain.DetectorAnomaly:   0.25,
	domain.DetectorDocument:  0.15,
	domain.DetectorDuplicate: 0.20,
	domain.DetectorNetwork:   0.15,
	domain.DetectorTiming:    0.15,
	domain.DetectorWatchlist: 0.10,
}

// DetectorOrder fixes the summation order so fusion is reproducible.
var DetectorOrder = []string{
	domain.DetectorAnomaly,
	domain.DetectorDocument,
	domain.DetectorDuplicate,
	domain.DetectorNetwork,
	domain.DetectorTiming,
	domain.DetectorWatchlist,
}

// Fuse combines detector scores into a fraud score in [0, 1].
// Detectors missing from the weight table contribute nothing.
func Fuse(components map[string]float64) float64 {
	var score float64
	for _, name := range DetectorOrder {
		score += Weights[name] * components[name]
	}
	return clamp01(score)
}

// Dedupe collapses indicators sharing (type, details), keeping the one with
// the higher score impact. First-seen order is preserved.
func Dedupe(indicators []domain.Indicator) []domain.Indicator {
	type key struct {
		t       domain.IndicatorType
		details string
	}
	out := make([]domain.Indicator, 0, len(indicators))
	pos := make(map[key]int, len(indicators))
	for _, ind := range indicators {
		k := key{ind.Type, ind.Details}
		if i, ok := pos[k]; ok {
			if ind.ScoreImpact > out[i].ScoreImpact {
				out[i] = ind
			}
			continue
		}
		pos[k] = len(out)
		out = append(out, ind)
	}
	return out
}

// Confidence grows with the number of corroborating indicators.
func Confidence(indicatorCount int) float64 {
	switch {
	case indicatorCount >= 3:
		return 0.98
	case indicatorCount >= 1:
		return 0.95
	default:
		return 0.90
	}
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
