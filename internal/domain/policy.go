package domain

import "time"

// Policy is an insurance policy on file.
type Policy struct {
	PolicyNumber  string          `json:"policy_number" validate:"required,max=100"`
	TenantID      string          `json:"tenant_id,omitempty"`
	PolicyType    string          `json:"policy_type" validate:"required"`
	HolderName    string          `json:"holder_name"`
	SumInsured    float64         `json:"sum_insured" validate:"gte=0"`
	Deductible    float64         `json:"deductible" validate:"gte=0"`
	EffectiveDate time.Time       `json:"effective_date"`
	ExpiryDate    time.Time       `json:"expiry_date"`
	Coverages     map[string]bool `json:"coverages"`
	Exclusions    []string        `json:"exclusions"`
}

// CoverageAnalysis is the upstream coverage determination consumed by fusion
// and the decision policy.
type CoverageAnalysis struct {
	PolicyNumber        string   `json:"policy_number,omitempty"`
	PolicyType          string   `json:"policy_type,omitempty"`
	HolderName          string   `json:"holder_name,omitempty"`
	IsCovered           bool     `json:"is_covered"`
	CoverageScore       float64  `json:"coverage_score"`
	Deductible          float64  `json:"deductible"`
	PolicyLimit         float64  `json:"policy_limit"`
	CoveredAmount       float64  `json:"covered_amount"`
	ExclusionsTriggered []string `json:"exclusions_triggered"`
	RelevantClauses     []string `json:"relevant_clauses,omitempty"`
	Confidence          float64  `json:"confidence"`
	Error               string   `json:"error,omitempty"`
}
