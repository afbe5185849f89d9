package detect

import (
	"math"
	"strings"
	"time"
)

// dateLayouts are tried in order after RFC 3339.
// Day-first wins over month-first for ambiguous slash dates.
var dateLayouts = []struct {
	layout   string
	hasClock bool
}{
	{"2006-01-02T15:04:05.999999999", true},
	{"2006-01-02T15:04:05", true},
	{"2006-01-02 15:04:05Z07:00", true},
	{"2006-01-02 15:04:05", true},
	{"2006-01-02", false},
	{"02/01/2006", false},
	{"01/02/2006", false},
}

// parsedDate is a lenient timestamp. HasClock is false for date-only input.
type parsedDate struct {
	Time     time.Time
	HasClock bool
}

// parseDate accepts ISO-8601 (with trailing Z or an offset, T or space
// separated) and a few common
// date formats. It never fails loudly; ok is false for anything else.
func parseDate(s string) (parsedDate, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return parsedDate{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return parsedDate{Time: t, HasClock: true}, true
	}
	for _, l := range dateLayouts {
		if t, err := time.Parse(l.layout, s); err == nil {
			return parsedDate{Time: t, HasClock: l.hasClock}, true
		}
	}
	return parsedDate{}, false
}

// daysBetween returns whole days from a to b, rounded toward negative infinity.
func daysBetween(a, b time.Time) int {
	return int(math.Floor(b.Sub(a).Hours() / 24))
}

// ParseDate is the lenient claim date parser shared with other packages.
func ParseDate(s string) (time.Time, bool) {
	p, ok := parseDate(s)
	return p.Time, ok
}
