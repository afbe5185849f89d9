package coverage

import (
	"slices"
	"strings"
)

type clause struct {
	keyword string
	text    []string
}

// clauseBook holds the policy wording cited for each incident kind.
var clauseBook = map[string][]clause{
	"motor": {
		{"accident", []string{"Clause 4.2: Accident coverage - Loss or damage caused by accident, fire, external explosion, lightning, burglary, housebreaking or theft"}},
		{"theft", []string{"Clause 5.1: Theft protection - Vehicle theft coverage including parts and accessories"}},
		{"fire", []string{"Clause 4.3: Fire and explosion coverage - Damage by fire, external explosion, self-ignition or lightning"}},
		{"third_party", []string{"Section 2: Third Party Liability - Legal liability to third parties for bodily injury or property damage"}},
	},
	"health": {
		{"accident", []string{"Clause 3.1: Accident hospitalization - Coverage for inpatient treatment due to accident"}},
		{"illness", []string{"Clause 3.2: Illness coverage - Hospitalization for covered illnesses"}},
	},
	"property": {
		{"fire", []string{"Section 1: Fire and allied perils - Coverage for damage by fire, lightning, explosion"}},
		{"theft", []string{"Section 2: Burglary and theft - Coverage for theft with forcible entry"}},
	},
}

var defaultClauses = map[string][]string{
	"motor":    {"General coverage provisions apply as per policy terms"},
	"health":   {"Standard health insurance coverage terms apply"},
	"property": {"Standard property insurance coverage applies"},
}

// Clauses returns the policy clauses relevant to an incident. Unknown policy
// types have none.
func Clauses(incidentType, policyType string) []string {
	pt := strings.ToLower(policyType)
	it := strings.ToLower(incidentType)
	for _, c := range clauseBook[pt] {
		if strings.Contains(it, c.keyword) {
			return slices.Clone(c.text)
		}
	}
	return slices.Clone(defaultClauses[pt])
}
