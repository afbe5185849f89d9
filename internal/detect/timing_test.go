package detect

import (
	"context"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimingAnalyzer(t *testing.T) {
	a := NewTimingAnalyzer()

	tests := []struct {
		name       string
		policy     string
		incident   string
		submission string
		want       domain.IndicatorType
		impact     float64
	}{
		{"NormalClaim", "2026-01-01", "2026-02-15", "2026-02-16", "", 0},
		{"EarlyClaim", "2026-02-10", "2026-02-13", "2026-02-14", domain.IndicatorEarlyClaim, 0.25},
		{"EarlyBeatsLate", "2026-02-10", "2026-02-13", "2026-06-01", domain.IndicatorEarlyClaim, 0.25},
		{"LateReporting", "2025-01-01", "2026-01-10", "2026-03-03", domain.IndicatorLateReporting, 0.15},
		{"ExactlyThirtyDays", "2025-01-01", "2026-01-10", "2026-02-09", "", 0},
		{"NinetyDaysIsLate", "2025-01-01", "2025-03-02", "2025-05-31", domain.IndicatorLateReporting, 0.15},
		{"VeryLateReporting", "2024-01-01", "2025-01-01", "2025-06-03", domain.IndicatorVeryLateReporting, 0.25},
		{"SuspiciousHour", "2026-01-01", "2026-02-15", "2026-02-17T23:15:00Z", domain.IndicatorSuspiciousHour, 0.10},
		{"EarlyMorning", "2026-01-01", "2026-02-15", "2026-02-17T04:59:00+00:00", domain.IndicatorSuspiciousHour, 0.10},
		{"FiveAMIsFine", "2026-01-01", "2026-02-15", "2026-02-17T05:00:00Z", "", 0},
		{"WeekendDateOnly", "2026-01-01", "2026-02-15", "2026-02-21", domain.IndicatorWeekendClaim, 0.05},
		{"SlashDates", "01/01/2026", "13/02/2026", "16/02/2026", "", 0},
		{"SlashEarly", "10/02/2026", "13/02/2026", "17/02/2026", domain.IndicatorEarlyClaim, 0.25},
		{"MissingPolicy", "", "2026-02-13", "2026-02-14", "", 0},
		{"Unparseable", "yesterday", "2026-02-13", "2026-02-14", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ind, ok := a.Analyze(tt.policy, tt.incident, tt.submission)
			if tt.want == "" {
				assert.False(t, ok, "unexpected indicator %s", ind.Type)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.want, ind.Type)
			assert.InDelta(t, tt.impact, ind.ScoreImpact, 1e-9)
		})
	}
}

func TestTimingEarlyClaimScenario(t *testing.T) {
	res, err := NewTimingAnalyzer().Detect(context.Background(), domain.Claim{
		ID:              "CLM-EARLY",
		PolicyStartDate: "2026-02-10",
		IncidentDate:    "2026-02-13",
		SubmissionDate:  "2026-02-16T10:00:00Z",
	})
	require.NoError(t, err)
	require.Len(t, res.Indicators, 1)

	ind := res.Indicators[0]
	assert.Equal(t, domain.IndicatorEarlyClaim, ind.Type)
	assert.Equal(t, domain.SeverityHigh, ind.Severity)
	assert.InDelta(t, 0.25, ind.ScoreImpact, 1e-9)
	assert.InDelta(t, 0.25, res.Score, 1e-9)
	assert.Equal(t, "Claim filed 3 days after policy start", ind.Details)
}

func TestParseDate(t *testing.T) {
	for _, s := range []string{
		"2026-02-16T10:30:00Z",
		"2026-02-16T10:30:00.123Z",
		"2026-02-16T10:30:00+05:30",
		"2026-02-16T10:30:00",
		"2026-02-16 10:30:00",
		"2026-02-16",
		"16/02/2026",
		"02/16/2026",
	} {
		_, ok := parseDate(s)
		assert.True(t, ok, s)
	}

	d, ok := parseDate("03/02/2026")
	require.True(t, ok)
	assert.Equal(t, 3, d.Time.Day(), "day-first wins for ambiguous dates")
	assert.False(t, d.HasClock)

	_, ok = parseDate("not a date")
	assert.False(t, ok)

	t.Run("SpaceSeparatedWithZone", func(t *testing.T) {
		d, ok := parseDate("2026-02-13 10:00:00+05:30")
		require.True(t, ok)
		assert.True(t, d.HasClock)
		_, offset := d.Time.Zone()
		assert.Equal(t, 5*3600+30*60, offset)

		d, ok = parseDate("2026-02-13 10:00:00Z")
		require.True(t, ok)
		assert.Equal(t, time.Date(2026, 2, 13, 10, 0, 0, 0, time.UTC), d.Time.UTC())

		_, ok = parseDate("2026-02-13 10:00:00.250-04:00")
		assert.True(t, ok)

		ind, ok := NewTimingAnalyzer().Analyze("2026-02-10", "2026-02-13 10:00:00+05:30", "2026-02-14 09:00:00Z")
		require.True(t, ok, "zoned timestamps keep the timing signal")
		assert.Equal(t, domain.IndicatorEarlyClaim, ind.Type)
	})
}
