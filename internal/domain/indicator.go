package domain

import "time"

// Severity grades an indicator.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Rank orders severities from 0 (LOW) to 3 (CRITICAL). Unknown values rank -1.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	default:
		return -1
	}
}

// IndicatorType is the category tag of a finding.
type IndicatorType string

// Timing
const (
	IndicatorEarlyClaim        IndicatorType = "EARLY_CLAIM"
	IndicatorLateReporting     IndicatorType = "LATE_REPORTING"
	IndicatorVeryLateReporting IndicatorType = "VERY_LATE_REPORTING"
	IndicatorSuspiciousHour    IndicatorType = "SUSPICIOUS_HOUR"
	IndicatorWeekendClaim      IndicatorType = "WEEKEND_CLAIM"
)

// Watchlist
const (
	IndicatorWatchlistMatch IndicatorType = "WATCHLIST_MATCH"
)

// Amount anomalies
const (
	IndicatorThresholdAnomaly    IndicatorType = "THRESHOLD_ANOMALY"
	IndicatorRoundNumberAnomaly  IndicatorType = "ROUND_NUMBER_ANOMALY"
	IndicatorAmountInconsistency IndicatorType = "AMOUNT_INCONSISTENCY"
	IndicatorBenfordAnomaly      IndicatorType = "BENFORD_ANOMALY"
	IndicatorMLHighRisk          IndicatorType = "ML_HIGH_RISK"
	IndicatorMLMediumRisk        IndicatorType = "ML_MEDIUM_RISK"
	IndicatorIsolationForest     IndicatorType = "ISOLATION_FOREST_ANOMALY"
)

// Duplicates
const (
	IndicatorExactDuplicate    IndicatorType = "EXACT_DUPLICATE"
	IndicatorInternalDuplicate IndicatorType = "INTERNAL_DUPLICATE"
)

// Document consistency
const (
	IndicatorNameMismatch      IndicatorType = "NAME_MISMATCH"
	IndicatorDateInconsistency IndicatorType = "DATE_INCONSISTENCY"
	IndicatorAmountMismatch    IndicatorType = "AMOUNT_MISMATCH"
	IndicatorAddressMismatch   IndicatorType = "ADDRESS_MISMATCH"
)

// Network
const (
	IndicatorHighVolumeProvider    IndicatorType = "HIGH_VOLUME_PROVIDER"
	IndicatorProviderNetwork       IndicatorType = "PROVIDER_NETWORK"
	IndicatorKnownFraudProvider    IndicatorType = "KNOWN_FRAUD_PROVIDER"
	IndicatorFrequentClaimant      IndicatorType = "FREQUENT_CLAIMANT"
	IndicatorProviderShopping      IndicatorType = "PROVIDER_SHOPPING"
	IndicatorSharedPhone           IndicatorType = "SHARED_PHONE"
	IndicatorFraudRing             IndicatorType = "FRAUD_RING_DETECTED"
	IndicatorRapidSuccessiveClaims IndicatorType = "RAPID_SUCCESSIVE_CLAIMS"
)

// Indicator is one detector finding. Created once and never mutated.
type Indicator struct {
	Type        IndicatorType  `json:"type"`
	Severity    Severity       `json:"severity"`
	Details     string         `json:"details"`
	Confidence  float64        `json:"confidence"`
	ScoreImpact float64        `json:"score_impact"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Detector names, also used as component score keys.
const (
	DetectorAnomaly   = "anomaly"
	DetectorDocument  = "document"
	DetectorDuplicate = "duplicate"
	DetectorNetwork   = "network"
	DetectorTiming    = "timing"
	DetectorWatchlist = "watchlist"
)

// DetectorResult is a detector's capped score and its findings.
type DetectorResult struct {
	Detector   string        `json:"detector"`
	Score      float64       `json:"score"`
	Indicators []Indicator   `json:"indicators,omitempty"`
	Err        string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration"`
}
