package detect

import (
	"math"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// FeatureCount is the length of the vector built by Features.
const FeatureCount = 6

// policyTypeCodes are matched as substrings, in order.
var policyTypeCodes = []struct {
	key  string
	code float64
}{
	{"motor", 0}, {"auto", 0}, {"car", 0}, {"vehicle", 0},
	{"health", 1}, {"medical", 1},
	{"property", 2}, {"home", 2}, {"house", 2},
	{"life", 3},
	{"travel", 4},
	{"pet", 5},
	{"business", 6},
	{"cyber", 7},
}

// Features builds the model input vector for a claim:
// amount/100000, round-10k flag, days to report, days since policy,
// document count and policy type code, all roughly in [0, 1].
func Features(claim domain.Claim) []float64 {
	roundFlag := 0.0
	if claim.Amount > 0 && math.Mod(claim.Amount, 10000) == 0 {
		roundFlag = 1
	}

	return []float64{
		claim.Amount / 100000,
		roundFlag,
		dayFraction(claim.IncidentDate, claim.SubmissionDate),
		dayFraction(claim.PolicyStartDate, claim.IncidentDate),
		math.Min(float64(len(claim.Documents)), 20) / 20,
		policyTypeCode(claim.PolicyType) / 7,
	}
}

// dayFraction is the whole-day gap clamped to [0, 365] over 365, or 0.5 when
// either date is missing.
func dayFraction(from, to string) float64 {
	a, ok1 := parseDate(from)
	b, ok2 := parseDate(to)
	if !ok1 || !ok2 {
		return 0.5
	}
	days := math.Max(0, math.Min(float64(daysBetween(a.Time, b.Time)), 365))
	return days / 365
}

func policyTypeCode(policyType string) float64 {
	p := strings.ToLower(policyType)
	if p == "" {
		return 0
	}
	for _, e := range policyTypeCodes {
		if strings.Contains(p, e.key) {
			return e.code
		}
	}
	return 0
}
