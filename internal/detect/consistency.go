package detect

import (
	"context"
	"fmt"
	"math"
	"regexp"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const nameSimilarityThreshold = 85

var postalCode = regexp.MustCompile(`\b\d{6}\b`)

// ConsistencyChecker cross-checks names, dates, amounts and addresses
// between the documents attached to a claim.
type ConsistencyChecker struct{}

// NewConsistencyChecker creates a document consistency checker.
func NewConsistencyChecker() *ConsistencyChecker {
	return &ConsistencyChecker{}
}

// Name implements Detector.
func (c *ConsistencyChecker) Name() string { return domain.DetectorDocument }

// Detect implements Detector.
func (c *ConsistencyChecker) Detect(_ context.Context, claim domain.Claim) (domain.DetectorResult, error) {
	if len(claim.Documents) < 2 {
		return domain.DetectorResult{Detector: c.Name()}, nil
	}

	var (
		score      float64
		indicators []domain.Indicator
	)
	for _, check := range []func() (domain.Indicator, bool){
		func() (domain.Indicator, bool) { return compareNames(claim.Documents) },
		func() (domain.Indicator, bool) { return compareDates(claim.Documents) },
		func() (domain.Indicator, bool) { return compareAmounts(claim.Documents, claim.Amount) },
		func() (domain.Indicator, bool) { return compareAddresses(claim.Documents) },
	} {
		if ind, ok := check(); ok {
			score += ind.ScoreImpact
			indicators = append(indicators, ind)
		}
	}

	return result(c.Name(), score, CapDocument, indicators), nil
}

type labeledValue struct {
	source string
	value  string
}

// documentNames collects the holder name from each policy, id proof and bill.
func documentNames(docs []domain.Document) []labeledValue {
	var names []labeledValue
	for _, doc := range docs {
		var name string
		switch doc.Kind() {
		case domain.DocumentPolicy:
			name = doc.MetaString("claimant_name", "holder_name")
		case domain.DocumentIDProof:
			name = doc.MetaString("name")
		case domain.DocumentBill:
			name = doc.MetaString("patient_name", "name")
		case domain.DocumentReport, domain.DocumentOther:
		}
		if name != "" {
			names = append(names, labeledValue{doc.Kind().String(), name})
		}
	}
	return names
}

func compareNames(docs []domain.Document) (domain.Indicator, bool) {
	names := documentNames(docs)
	if len(names) < 2 {
		return domain.Indicator{}, false
	}

	minSimilarity := 100
	var mismatches []map[string]any
	for i := range names {
		for j := i + 1; j < len(names); j++ {
			sim := TokenSortRatio(names[i].value, names[j].value)
			minSimilarity = min(minSimilarity, sim)
			if sim < nameSimilarityThreshold {
				mismatches = append(mismatches, map[string]any{
					"doc1":       names[i].source,
					"doc2":       names[j].source,
					"value1":     names[i].value,
					"value2":     names[j].value,
					"similarity": sim,
				})
			}
		}
	}
	if len(mismatches) == 0 {
		return domain.Indicator{}, false
	}

	first := mismatches[0]
	impact := math.Round(0.15*float64(len(mismatches))*100) / 100
	return withMeta(indicator(domain.IndicatorNameMismatch, domain.SeverityHigh, impact, float64(minSimilarity)/100,
		fmt.Sprintf("Name mismatch across documents: %s vs %s", first["value1"], first["value2"])),
		"mismatches", mismatches), true
}

// compareDates flags a bill dated before the reported incident.
func compareDates(docs []domain.Document) (domain.Indicator, bool) {
	var billDate, incidentDate string
	for _, doc := range docs {
		switch doc.Kind() {
		case domain.DocumentBill:
			if s := doc.MetaString("date"); s != "" {
				billDate = s
			}
		case domain.DocumentReport:
			if s := doc.MetaString("incident_date"); s != "" {
				incidentDate = s
			}
		case domain.DocumentPolicy, domain.DocumentIDProof, domain.DocumentOther:
		}
	}

	bill, ok1 := parseDate(billDate)
	incident, ok2 := parseDate(incidentDate)
	if !ok1 || !ok2 || !bill.Time.Before(incident.Time) {
		return domain.Indicator{}, false
	}
	return indicator(domain.IndicatorDateInconsistency, domain.SeverityHigh, 0.2, 0.95,
		fmt.Sprintf("Bill date %s is before incident date %s",
			bill.Time.Format("2006-01-02"), incident.Time.Format("2006-01-02"))), true
}

// compareAmounts flags a bill whose total differs from the claim by more than
// 10% of the bill.
func compareAmounts(docs []domain.Document, claimAmount float64) (domain.Indicator, bool) {
	var bill float64
	for _, doc := range docs {
		if doc.Kind() != domain.DocumentBill {
			continue
		}
		if v, ok := doc.MetaFloat("total_amount", "amount"); ok {
			bill = v
		}
	}
	if bill <= 0 || claimAmount <= 0 {
		return domain.Indicator{}, false
	}

	diff := math.Abs(bill-claimAmount) / bill * 100
	if diff <= 10 {
		return domain.Indicator{}, false
	}
	return withMeta(indicator(domain.IndicatorAmountMismatch, domain.SeverityHigh, 0.15, 0.90,
		fmt.Sprintf("Bill amount %.0f vs Claim %.0f (%.1f%% difference)", bill, claimAmount, diff)),
		"bill_amount", bill, "difference_pct", diff), true
}

// compareAddresses compares the first two postal codes found on policy and
// id proof addresses.
func compareAddresses(docs []domain.Document) (domain.Indicator, bool) {
	var codes []string
	for _, doc := range docs {
		if k := doc.Kind(); k != domain.DocumentPolicy && k != domain.DocumentIDProof {
			continue
		}
		if code := postalCode.FindString(doc.MetaString("address")); code != "" {
			codes = append(codes, code)
		}
	}
	if len(codes) < 2 || codes[0] == codes[1] {
		return domain.Indicator{}, false
	}
	return indicator(domain.IndicatorAddressMismatch, domain.SeverityMedium, 0.1, 0.85,
		fmt.Sprintf("Different pincodes: %s vs %s", codes[0], codes[1])), true
}

// ConsistencyScore maps a document detector score to 1 (fully consistent)
// through 0 (capped inconsistency).
func ConsistencyScore(documentScore float64) float64 {
	return math.Max(0, math.Min(1, 1-documentScore/CapDocument))
}
