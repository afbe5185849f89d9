package detect

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/shopspring/decimal"
)

// thresholdTier is a group of round limits that claims tend to sit just under.
type thresholdTier struct {
	level    string
	severity domain.Severity
	impact   float64
	limits   []int64
}

var thresholdTiers = []thresholdTier{
	{"low", domain.SeverityLow, 0.15, []int64{10_000, 25_000, 50_000}},
	{"medium", domain.SeverityMedium, 0.20, []int64{100_000, 250_000, 500_000}},
	{"high", domain.SeverityHigh, 0.25, []int64{1_000_000, 2_500_000, 5_000_000, 10_000_000}},
}

// benfordExpected is the leading digit distribution of natural amounts.
var benfordExpected = [10]float64{0, 0.301, 0.176, 0.125, 0.097, 0.079, 0.067, 0.058, 0.051, 0.046}

var (
	proximityFactor    = decimal.RequireFromString("0.98")
	roundFloor         = decimal.NewFromInt(10_000)
	roundThousand      = decimal.NewFromInt(1_000)
	inconsistencyLimit = decimal.RequireFromString("0.20")
	outlierWeight      = 0.2

	// A currency marker followed by a number, e.g. "₹45,000" or "USD 1200.50".
	currencyAmount = regexp.MustCompile(`(?i)(?:₹|\$|€|£|\brs\.?|\binr|\busd|\beur|\bgbp)\s*([0-9][0-9,]*(?:\.[0-9]+)?)`)
)

// AnomalyDetector flags suspicious claim amounts. It combines fixed amount
// rules, the date gap rules, an optional trained model and an online
// isolation forest.
type AnomalyDetector struct {
	model    domain.FraudModel
	outliers *OutlierModel
}

// NewAnomalyDetector creates an anomaly detector. model and outliers may be
// nil; the detector then runs on rules alone.
func NewAnomalyDetector(model domain.FraudModel, outliers *OutlierModel) *AnomalyDetector {
	return &AnomalyDetector{model: model, outliers: outliers}
}

// Name implements Detector.
func (d *AnomalyDetector) Name() string { return domain.DetectorAnomaly }

// Detect implements Detector.
func (d *AnomalyDetector) Detect(ctx context.Context, claim domain.Claim) (domain.DetectorResult, error) {
	var (
		score      float64
		indicators []domain.Indicator
	)
	add := func(ind domain.Indicator, ok bool) {
		if ok {
			score += ind.ScoreImpact
			indicators = append(indicators, ind)
		}
	}

	if claim.Amount > 0 {
		amount := decimal.NewFromFloat(claim.Amount)
		add(checkThreshold(amount))
		add(checkRoundNumber(amount))
		add(checkDocumentAmounts(amount, claim.Documents))
		add(checkBenford(amount))
	}

	policy, ok1 := parseDate(claim.PolicyStartDate)
	incident, ok2 := parseDate(claim.IncidentDate)
	submission, ok3 := parseDate(claim.SubmissionDate)
	if ok1 && ok2 && ok3 {
		add(gapIndicator(policy.Time, incident.Time, submission.Time))
	}

	features := Features(claim)
	add(d.checkModel(ctx, features))

	if d.outliers != nil {
		if outlier, _ := d.outliers.IsOutlier(features); outlier {
			ind := indicator(domain.IndicatorIsolationForest, domain.SeverityHigh, 0.15, 0.85,
				"Statistical outlier detected by Isolation Forest")
			score += ind.ScoreImpact * outlierWeight
			indicators = append(indicators, ind)
		}
		d.outliers.Observe(features)
	}

	return result(d.Name(), score, CapAnomaly, indicators), nil
}

func (d *AnomalyDetector) checkModel(ctx context.Context, features []float64) (domain.Indicator, bool) {
	if d.model == nil || !d.model.Available() {
		return domain.Indicator{}, false
	}
	p, err := d.model.Predict(ctx, features)
	if err != nil {
		slog.Warn("fraud model prediction failed", "error", err)
		return domain.Indicator{}, false
	}

	details := fmt.Sprintf("ML model predicts %.1f%% fraud probability", p*100)
	switch {
	case p > 0.8:
		return withMeta(indicator(domain.IndicatorMLHighRisk, domain.SeverityCritical, 0.3, p, details),
			"probability", p), true
	case p > 0.5:
		return withMeta(indicator(domain.IndicatorMLMediumRisk, domain.SeverityHigh, 0.2, p, details),
			"probability", p), true
	}
	return domain.Indicator{}, false
}

// checkThreshold fires when the amount is within 2% below a limit. The first
// matching limit wins.
func checkThreshold(amount decimal.Decimal) (domain.Indicator, bool) {
	for _, tier := range thresholdTiers {
		for _, l := range tier.limits {
			limit := decimal.NewFromInt(l)
			if amount.GreaterThan(limit.Mul(proximityFactor)) && amount.LessThan(limit) {
				return withMeta(indicator(domain.IndicatorThresholdAnomaly, tier.severity, tier.impact, 0.95,
					fmt.Sprintf("Amount %s is suspiciously close to %s %s limit",
						formatAmount(amount), formatAmount(limit), strings.ToUpper(tier.level))),
					"threshold", l, "level", tier.level), true
			}
		}
	}
	return domain.Indicator{}, false
}

func checkRoundNumber(amount decimal.Decimal) (domain.Indicator, bool) {
	if !amount.GreaterThan(roundFloor) {
		return domain.Indicator{}, false
	}
	switch {
	case amount.Mod(roundFloor).IsZero():
		return withMeta(indicator(domain.IndicatorRoundNumberAnomaly, domain.SeverityHigh, 0.2, 0.90,
			fmt.Sprintf("Large round number amount %s strongly indicates padding", formatAmount(amount))),
			"rounding_factor", 10_000), true
	case amount.Mod(roundThousand).IsZero():
		return withMeta(indicator(domain.IndicatorRoundNumberAnomaly, domain.SeverityMedium, 0.15, 0.80,
			fmt.Sprintf("Round number amount %s may indicate padding", formatAmount(amount))),
			"rounding_factor", 1_000), true
	}
	return domain.Indicator{}, false
}

// checkDocumentAmounts compares the claim with the average amount stated in
// its documents.
func checkDocumentAmounts(amount decimal.Decimal, docs []domain.Document) (domain.Indicator, bool) {
	var amounts []decimal.Decimal
	for _, doc := range docs {
		if v, ok := documentAmount(doc); ok {
			amounts = append(amounts, v)
		}
	}
	if len(amounts) == 0 {
		return domain.Indicator{}, false
	}

	avg := decimal.Avg(amounts[0], amounts[1:]...)
	if !avg.IsPositive() {
		return domain.Indicator{}, false
	}
	variance := amount.Sub(avg).Abs().Div(avg)
	if !variance.GreaterThan(inconsistencyLimit) {
		return domain.Indicator{}, false
	}

	v := variance.InexactFloat64()
	return withMeta(indicator(domain.IndicatorAmountInconsistency, domain.SeverityHigh, 0.2, 0.85,
		fmt.Sprintf("Claim amount %s differs from document average %s by %.1f%%",
			formatAmount(amount), formatAmount(avg), v*100)),
		"variance", v), true
}

// documentAmount reads an amount from metadata, falling back to the first
// currency-prefixed number in the content.
func documentAmount(doc domain.Document) (decimal.Decimal, bool) {
	if v, ok := doc.MetaFloat("amount", "total_amount"); ok && v > 0 {
		return decimal.NewFromFloat(v), true
	}
	if s := doc.MetaString("amount", "total_amount"); s != "" {
		if v, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(s), ",", "")); err == nil && v.IsPositive() {
			return v, true
		}
	}
	m := currencyAmount.FindStringSubmatch(doc.Content)
	if m == nil {
		return decimal.Zero, false
	}
	v, err := decimal.NewFromString(strings.ReplaceAll(m[1], ",", ""))
	if err != nil || !v.IsPositive() {
		return decimal.Zero, false
	}
	return v, true
}

func checkBenford(amount decimal.Decimal) (domain.Indicator, bool) {
	digits := amount.Truncate(0).Abs().String()
	if digits == "" || digits == "0" {
		return domain.Indicator{}, false
	}
	first := int(digits[0] - '0')
	if first != 8 && first != 9 {
		return domain.Indicator{}, false
	}
	expected := benfordExpected[first]
	return withMeta(indicator(domain.IndicatorBenfordAnomaly, domain.SeverityMedium, 0.15, 0.75,
		fmt.Sprintf("Amount starts with digit %d which is statistically rare (%.1f%% expected)", first, expected*100)),
		"first_digit", first, "expected_frequency", expected), true
}

// formatAmount renders a whole amount with thousands separators.
func formatAmount(d decimal.Decimal) string {
	s := d.Round(0).StringFixed(0)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return b.String()
}
