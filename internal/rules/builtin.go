package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// standardExclusions maps the exclusion names found on policies to the
// keywords that evidence them in an incident description.
var standardExclusions = []struct {
	id       string
	name     string
	keywords []string
}{
	{"excl-dui", "Driving under influence", []string{"alcohol", "drunk", "intoxicated", "dwi", "dui", "tipsy"}},
	{"excl-commercial", "Commercial use", []string{"business", "delivery", "commercial", "uber", "ola", "taxi", "cab"}},
	{"excl-license", "Without valid license", []string{"no license", "unlicensed", "expired license", "never had license"}},
	{"excl-wear", "Wear and tear", []string{"maintenance", "old", "worn", "rusted", "corroded", "age"}},
	{"excl-intentional", "Intentional damage", []string{"intentional", "deliberate", "on purpose", "self-inflicted", "planned"}},
	{"excl-racing", "Racing", []string{"race", "racing", "speed test", "track day", "competition"}},
	{"excl-war", "War", []string{"war", "terrorism", "nuclear", "invasion"}},
	{"excl-tyres", "Tyres only", []string{"tyre", "tire", "tyres only", "only tyres"}},
}

// BuiltinRules returns the keyword rules for the standard policy exclusions.
// Keywords match as whole words against the lowercased description.
func BuiltinRules() []*domain.ExclusionRule {
	rules := make([]*domain.ExclusionRule, 0, len(standardExclusions))
	for _, ex := range standardExclusions {
		rules = append(rules, &domain.ExclusionRule{
			ID:          ex.id,
			Name:        ex.name,
			Description: fmt.Sprintf("Incident description mentions %s", strings.Join(ex.keywords, ", ")),
			Version:     "1.0.0",
			Expression:  KeywordExpression(ex.keywords...),
			Enabled:     true,
		})
	}
	return rules
}

// KeywordExpression builds a CEL expression matching any keyword as a whole
// word in the description.
func KeywordExpression(keywords ...string) string {
	quoted := make([]string, 0, len(keywords))
	for _, k := range keywords {
		quoted = append(quoted, regexp.QuoteMeta(strings.ToLower(k)))
	}
	return fmt.Sprintf(`description.matches(r'\b(?:%s)\b')`, strings.Join(quoted, "|"))
}

// WithBuiltins returns the builtin rules overlaid with custom ones. A custom
// rule replaces the builtin with the same id, so a disabled custom rule
// switches a builtin off.
func WithBuiltins(custom []*domain.ExclusionRule) []*domain.ExclusionRule {
	byID := make(map[string]*domain.ExclusionRule)
	var order []string
	for _, r := range append(BuiltinRules(), custom...) {
		if _, seen := byID[r.ID]; !seen {
			order = append(order, r.ID)
		}
		byID[r.ID] = r
	}

	out := make([]*domain.ExclusionRule, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out
}
