// Package rules provides the CEL-Go based exclusion rule engine.
package rules

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Engine evaluates exclusion rules against claims.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
	maxWorkers    int
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.ExclusionRule
	Program cel.Program
}

// NewEngine creates a new rule evaluation engine.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	// Create CEL environment with claim variables
	env, err := cel.NewEnv(
		cel.Variable("claim", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("description", cel.StringType),
		cel.Variable("incident_type", cel.StringType),
		cel.Variable("policy_type", cel.StringType),
		cel.Variable("amount", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
		maxWorkers:    maxWorkers,
	}, nil
}

// ValidateRule compiles and validates a rule without mutating loaded engine rules.
func (e *Engine) ValidateRule(cfg *domain.ExclusionRule) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}
	if cfg.ID == "" || cfg.Name == "" {
		return fmt.Errorf("rule id and name are required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(cfg *domain.ExclusionRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}
	e.compiledRules[cfg.ID] = compiled
	return nil
}

// LoadRules compiles and loads multiple rules. Disabled rules are skipped.
func (e *Engine) LoadRules(configs []*domain.ExclusionRule) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadRules replaces the loaded rule set atomically. On a compile error the
// current rules stay in place.
func (e *Engine) ReloadRules(configs []*domain.ExclusionRule) error {
	newRules := make(map[string]*CompiledRule)

	e.mu.RLock()
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		compiled, err := e.compileRule(cfg)
		if err != nil {
			e.mu.RUnlock()
			return err
		}
		newRules[cfg.ID] = compiled
	}
	e.mu.RUnlock()

	e.mu.Lock()
	e.compiledRules = newRules
	e.mu.Unlock()
	return nil
}

// Input is the claim data exposed to rule expressions.
type Input struct {
	Description  string
	IncidentType string
	PolicyType   string
	Amount       float64
	Claim        map[string]any
}

// InputFromClaim builds rule input from a claim.
func InputFromClaim(c domain.Claim) Input {
	return Input{
		Description:  c.IncidentDescription,
		IncidentType: c.IncidentType,
		PolicyType:   c.PolicyType,
		Amount:       c.Amount,
		Claim: map[string]any{
			"claim_id":          c.ID,
			"policy_number":     c.PolicyNumber,
			"incident_location": c.IncidentLocation,
			"claimant_name":     c.Claimant.Name,
			"provider_name":     c.Provider.Name,
			"document_count":    int64(len(c.Documents)),
		},
	}
}

// EvaluateAll evaluates every loaded rule in parallel. Results are ordered by
// rule id.
func (e *Engine) EvaluateAll(ctx context.Context, in Input) []domain.ExclusionResult {
	rules := e.sortedRules()
	if len(rules) == 0 {
		return nil
	}

	activation := map[string]any{
		"claim":         in.Claim,
		"description":   strings.ToLower(in.Description),
		"incident_type": strings.ToLower(in.IncidentType),
		"policy_type":   strings.ToLower(in.PolicyType),
		"amount":        in.Amount,
	}
	if in.Claim == nil {
		activation["claim"] = map[string]any{}
	}

	results := make([]domain.ExclusionResult, len(rules))
	var wg sync.WaitGroup
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range rules {
		wg.Add(1)
		go func(idx int, r *CompiledRule) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			results[idx] = evaluateRule(ctx, r, activation)
		}(i, rule)
	}
	wg.Wait()

	return results
}

// Applies reports whether a policy exclusion is triggered by a claim
// description. A direct mention of the exclusion counts; otherwise every rule
// whose name appears in the exclusion text is consulted.
func Applies(exclusion string, results []domain.ExclusionResult, description string) bool {
	ex := strings.ToLower(strings.TrimSpace(exclusion))
	if ex == "" {
		return false
	}
	if strings.Contains(strings.ToLower(description), ex) {
		return true
	}
	for _, r := range results {
		if r.Triggered && strings.Contains(ex, strings.ToLower(r.Name)) {
			return true
		}
	}
	return false
}

func evaluateRule(ctx context.Context, rule *CompiledRule, activation map[string]any) domain.ExclusionResult {
	result := domain.ExclusionResult{
		RuleID: rule.Config.ID,
		Name:   rule.Config.Name,
	}

	out, _, err := rule.Program.ContextEval(ctx, activation)
	if err != nil {
		result.Err = fmt.Sprintf("evaluation error: %v", err)
		slog.Debug("exclusion rule failed", "rule_id", rule.Config.ID, "error", err)
		return result
	}
	if b, ok := out.(types.Bool); ok {
		result.Triggered = bool(b)
	}
	return result
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// GetLoadedRules returns the currently loaded rule configurations, ordered by id.
func (e *Engine) GetLoadedRules() []*domain.ExclusionRule {
	rules := e.sortedRules()
	out := make([]*domain.ExclusionRule, 0, len(rules))
	for _, r := range rules {
		out = append(out, r.Config)
	}
	return out
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) sortedRules() []*CompiledRule {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, r := range e.compiledRules {
		rules = append(rules, r)
	}
	e.mu.RUnlock()

	sort.Slice(rules, func(i, j int) bool { return rules[i].Config.ID < rules[j].Config.ID })
	return rules
}

func (e *Engine) compileRule(cfg *domain.ExclusionRule) (*CompiledRule, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}
