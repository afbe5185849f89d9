package domain

// ExclusionRule is a CEL expression that decides whether a named policy
// exclusion applies to a claim.
type ExclusionRule struct {
	ID          string `json:"id" validate:"required,max=100"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name" validate:"required"` // exclusion name as written on policies
	Description string `json:"description"`
	Version     string `json:"version"`

	// CEL expression returning bool
	Expression string `json:"expression" validate:"required"`

	// Whether rule is active
	Enabled bool `json:"enabled"`
}

// ExclusionResult is the outcome of one exclusion rule for a claim.
type ExclusionResult struct {
	RuleID    string `json:"ruleId"`
	Name      string `json:"name"`
	Triggered bool   `json:"triggered"`
	Err       string `json:"error,omitempty"`
}
