package detect

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Timing thresholds in days.
const (
	earlyClaimDays     = 7
	lateReportDays     = 30
	veryLateReportDays = 90
)

// TimingAnalyzer flags suspicious gaps between policy start, incident and
// submission. Only the first matching rule fires.
type TimingAnalyzer struct{}

// NewTimingAnalyzer creates a timing analyzer.
func NewTimingAnalyzer() *TimingAnalyzer {
	return &TimingAnalyzer{}
}

// Name implements Detector.
func (a *TimingAnalyzer) Name() string { return domain.DetectorTiming }

// Detect implements Detector.
func (a *TimingAnalyzer) Detect(_ context.Context, claim domain.Claim) (domain.DetectorResult, error) {
	ind, ok := a.Analyze(claim.PolicyStartDate, claim.IncidentDate, claim.SubmissionDate)
	if !ok {
		return domain.DetectorResult{Detector: a.Name()}, nil
	}
	return domain.DetectorResult{
		Detector:   a.Name(),
		Score:      ind.ScoreImpact,
		Indicators: []domain.Indicator{ind},
	}, nil
}

// Analyze evaluates the timing rules in priority order. All three dates must
// parse; otherwise there is no finding.
func (a *TimingAnalyzer) Analyze(policyStart, incidentDate, submissionDate string) (domain.Indicator, bool) {
	policy, ok1 := parseDate(policyStart)
	incident, ok2 := parseDate(incidentDate)
	submission, ok3 := parseDate(submissionDate)
	if !ok1 || !ok2 || !ok3 {
		return domain.Indicator{}, false
	}

	if ind, ok := gapIndicator(policy.Time, incident.Time, submission.Time); ok {
		return ind, true
	}

	// A date-only submission carries no hour.
	if submission.HasClock && suspiciousHour(submission.Time.Hour()) {
		hour := submission.Time.Hour()
		return withMeta(indicator(domain.IndicatorSuspiciousHour, domain.SeverityMedium, 0.10, 0.70,
			fmt.Sprintf("Claim filed at %02d:00 - unusual hour", hour)),
			"hour", hour), true
	}

	if wd := submission.Time.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return withMeta(indicator(domain.IndicatorWeekendClaim, domain.SeverityLow, 0.05, 0.60,
			fmt.Sprintf("Claim filed on %s", wd)),
			"day", wd.String()), true
	}

	return domain.Indicator{}, false
}

// gapIndicator applies the early-claim and late-reporting rules.
func gapIndicator(policy, incident, submission time.Time) (domain.Indicator, bool) {
	daysSincePolicy := daysBetween(policy, incident)
	daysToReport := daysBetween(incident, submission)

	switch {
	case daysSincePolicy < earlyClaimDays:
		return withMeta(indicator(domain.IndicatorEarlyClaim, domain.SeverityHigh, 0.25, 0.98,
			fmt.Sprintf("Claim filed %d days after policy start", daysSincePolicy)),
			"days", daysSincePolicy), true

	case daysToReport > lateReportDays && daysToReport <= veryLateReportDays:
		return withMeta(indicator(domain.IndicatorLateReporting, domain.SeverityMedium, 0.15, 0.90,
			fmt.Sprintf("Claim reported %d days after incident", daysToReport)),
			"days", daysToReport), true

	case daysToReport > veryLateReportDays:
		return withMeta(indicator(domain.IndicatorVeryLateReporting, domain.SeverityHigh, 0.25, 0.95,
			fmt.Sprintf("Claim reported %d days after incident (extremely late)", daysToReport)),
			"days", daysToReport), true
	}
	return domain.Indicator{}, false
}

// suspiciousHour covers 22:00 through 04:59.
func suspiciousHour(h int) bool {
	return h >= 22 || h < 5
}
