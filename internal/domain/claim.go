package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// Claim is the immutable input to one scoring pass.
// Dates are kept as submitted; detectors parse them leniently.
type Claim struct {
	ID           string  `json:"claim_id"`
	TenantID     string  `json:"tenant_id,omitempty"`
	PolicyNumber string  `json:"policy_number,omitempty"`
	Amount       float64 `json:"claim_amount"`
	Currency     string  `json:"currency,omitempty"`

	PolicyStartDate string `json:"policy_start_date,omitempty"`
	IncidentDate    string `json:"incident_date,omitempty"`
	SubmissionDate  string `json:"submission_date,omitempty"`

	Claimant Party `json:"claimant"`
	Provider Party `json:"provider"`
	Attorney Party `json:"attorney,omitempty"`

	Documents []Document `json:"documents,omitempty"`

	IncidentType        string  `json:"incident_type,omitempty"`
	IncidentDescription string  `json:"incident_description,omitempty"`
	IncidentLocation    string  `json:"incident_location,omitempty"`
	PolicyType          string  `json:"policy_type,omitempty"`
	Deductible          float64 `json:"deductible,omitempty"`

	// Coverage is attached by the coverage evaluator before scoring.
	Coverage *CoverageAnalysis `json:"policy_analysis,omitempty"`

	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Party identifies a claimant, provider or attorney.
type Party struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
}

// Document is a descriptor for one attached claim document.
type Document struct {
	Type     string         `json:"type"`
	Filename string         `json:"filename,omitempty"`
	Content  string         `json:"content,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// DocumentType is the closed set of document kinds the checkers understand.
type DocumentType int

const (
	DocumentOther DocumentType = iota
	DocumentPolicy
	DocumentIDProof
	DocumentBill
	DocumentReport
)

// ParseDocumentType maps a free-form type tag to a DocumentType.
func ParseDocumentType(s string) DocumentType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "policy":
		return DocumentPolicy
	case "id_proof", "id", "identity":
		return DocumentIDProof
	case "bill", "invoice":
		return DocumentBill
	case "report", "incident_report", "police_report":
		return DocumentReport
	default:
		return DocumentOther
	}
}

func (t DocumentType) String() string {
	switch t {
	case DocumentPolicy:
		return "policy"
	case DocumentIDProof:
		return "id_proof"
	case DocumentBill:
		return "bill"
	case DocumentReport:
		return "report"
	default:
		return "other"
	}
}

// Kind returns the parsed document type.
func (d Document) Kind() DocumentType {
	return ParseDocumentType(d.Type)
}

// MetaString returns the first non-empty string value for the given keys.
func (d Document) MetaString(keys ...string) string {
	for _, k := range keys {
		if v, ok := d.Metadata[k]; ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return s
			}
		}
	}
	return ""
}

// MetaFloat returns the first numeric value for the given keys.
func (d Document) MetaFloat(keys ...string) (float64, bool) {
	for _, k := range keys {
		switch v := d.Metadata[k].(type) {
		case float64:
			return v, true
		case float32:
			return float64(v), true
		case int:
			return float64(v), true
		case int64:
			return float64(v), true
		}
	}
	return 0, false
}

// ClaimRequest is the API payload for claim scoring and intake.
type ClaimRequest struct {
	Claim
}

// UnmarshalJSON decodes the payload field by field. A field of the wrong
// type, or a negative amount, is left at its zero value so that the detectors
// reading it contribute nothing; only a non-object payload is an error.
func (r *ClaimRequest) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	var c Claim
	lenient(fields["claim_id"], &c.ID)
	lenient(fields["policy_number"], &c.PolicyNumber)
	lenient(fields["claim_amount"], &c.Amount)
	lenient(fields["currency"], &c.Currency)
	lenient(fields["policy_start_date"], &c.PolicyStartDate)
	lenient(fields["incident_date"], &c.IncidentDate)
	lenient(fields["submission_date"], &c.SubmissionDate)
	lenient(fields["claimant"], &c.Claimant)
	lenient(fields["provider"], &c.Provider)
	lenient(fields["attorney"], &c.Attorney)
	lenient(fields["incident_type"], &c.IncidentType)
	lenient(fields["incident_description"], &c.IncidentDescription)
	lenient(fields["incident_location"], &c.IncidentLocation)
	lenient(fields["policy_type"], &c.PolicyType)
	lenient(fields["deductible"], &c.Deductible)
	lenient(fields["policy_analysis"], &c.Coverage)

	var docs []json.RawMessage
	lenient(fields["documents"], &docs)
	for _, raw := range docs {
		var d Document
		lenient(raw, &d)
		c.Documents = append(c.Documents, d)
	}

	c.Amount = max(c.Amount, 0)
	c.Deductible = max(c.Deductible, 0)

	r.Claim = c
	return nil
}

// lenient decodes raw into dst. encoding/json keeps every field it could set
// and zeroes a mistyped scalar, which is the wanted result, so the error is
// dropped.
func lenient(raw json.RawMessage, dst any) {
	if len(raw) == 0 {
		return
	}
	_ = json.Unmarshal(raw, dst)
}

// ToClaim converts a request to a Claim for the given tenant.
func (r *ClaimRequest) ToClaim(tenantID string) Claim {
	c := r.Claim
	c.TenantID = tenantID
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	return c
}
