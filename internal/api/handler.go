package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/scoring"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// GlobalTenantID owns exclusion rules, which apply to all tenants.
const GlobalTenantID = "*"

var errUnavailable = errors.New("repository not available")

// Handler holds dependencies for API handlers.
type Handler struct {
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	pipeline *worker.Pipeline
	scoring  *scoring.Engine
	rules    *rules.Engine
	worker   *worker.Worker
	version  string
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{
		repo:     deps.Repo,
		cache:    deps.Cache,
		bus:      deps.Bus,
		pipeline: deps.Pipeline,
		scoring:  deps.Scoring,
		rules:    deps.Rules,
		worker:   deps.Worker,
		version:  deps.Version,
	}
}

// ScoreClaim handles POST /claims/score.
func (h *Handler) ScoreClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	claim, err := decodeClaim(r, tenantID)
	if err != nil {
		writeError(w, err)
		return
	}

	resp, err := h.pipeline.Process(ctx, tenantID, claim)
	if err != nil {
		slog.Error("claim scoring failed", "claim_id", claim.ID, "tenant_id", tenantID, "error", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// SubmitClaim handles POST /claims. The claim is queued for the worker.
func (h *Handler) SubmitClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.bus == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "event bus not available",
		})
		return
	}

	claim, err := decodeClaim(r, tenantID)
	if err != nil {
		writeError(w, err)
		return
	}

	payload, err := json.Marshal(claim)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.bus.Publish(ctx, tenantID, domain.TopicClaimSubmitted, payload); err != nil {
		slog.Error("failed to queue claim", "claim_id", claim.ID, "tenant_id", tenantID, "error", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"claim_id": claim.ID,
		"status":   "queued",
		"trace_id": GetTraceID(ctx),
	})
}

// GetClaim handles GET /claims/{id}.
func (h *Handler) GetClaim(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, errUnavailable)
		return
	}

	claim, err := h.repo.GetClaim(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, claim)
}

// GetAssessment handles GET /claims/{id}/assessment.
func (h *Handler) GetAssessment(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, errUnavailable)
		return
	}

	a, err := h.repo.GetAssessment(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// ListReviews handles GET /review-queue?status=&limit=.
func (h *Handler) ListReviews(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, errUnavailable)
		return
	}

	filter := domain.ReviewFilter{
		Status: domain.ReviewStatus(strings.ToUpper(r.URL.Query().Get("status"))),
		Limit:  repository.DefaultReviewLimit,
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be an integer",
			})
			return
		}
		filter.Limit = n
	}
	if err := validateStruct(filter); err != nil {
		writeError(w, err)
		return
	}

	entries, err := h.repo.ListReviews(r.Context(), GetTenantID(r.Context()), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"reviews": entries,
		"count":   len(entries),
	})
}

// GetReview handles GET /review-queue/{claimId}.
func (h *Handler) GetReview(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, errUnavailable)
		return
	}

	entry, err := h.repo.GetReview(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "claimId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// UpdateReview handles PATCH /review-queue/{claimId}.
func (h *Handler) UpdateReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	claimID := chi.URLParam(r, "claimId")

	if h.repo == nil {
		writeError(w, errUnavailable)
		return
	}

	var update domain.ReviewUpdate
	if err := decodeJSON(r, &update); err != nil {
		writeError(w, err)
		return
	}

	entry, err := h.repo.UpdateReviewStatus(ctx, tenantID, claimID, update)
	if err != nil {
		writeError(w, err)
		return
	}

	slog.Info("review updated",
		"claim_id", claimID,
		"tenant_id", tenantID,
		"status", entry.Status,
		"reviewer", entry.Reviewer,
	)
	h.publish(ctx, tenantID, domain.TopicReviewUpdated, entry)

	writeJSON(w, http.StatusOK, entry)
}

// ListPolicies handles GET /policies.
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, errUnavailable)
		return
	}

	policies, err := h.repo.ListPolicies(r.Context(), GetTenantID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"policies": policies,
		"count":    len(policies),
	})
}

// CreatePolicy handles POST /policies. An existing policy is replaced.
func (h *Handler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, errUnavailable)
		return
	}

	var p domain.Policy
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, err)
		return
	}
	if !p.EffectiveDate.IsZero() && !p.ExpiryDate.IsZero() && p.ExpiryDate.Before(p.EffectiveDate) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "expiry_date must not precede effective_date",
		})
		return
	}

	if err := h.repo.SavePolicy(r.Context(), GetTenantID(r.Context()), &p); err != nil {
		slog.Error("failed to save policy", "policy_number", p.PolicyNumber, "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// GetPolicy handles GET /policies/{number}.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, errUnavailable)
		return
	}

	p, err := h.repo.GetPolicy(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "number"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ListRules returns the exclusion rules loaded in the engine.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loaded := h.rules.GetLoadedRules()
	writeJSON(w, http.StatusOK, map[string]any{
		"rules": loaded,
		"count": len(loaded),
	})
}

// CreateRule validates and stores an exclusion rule. It takes effect after
// POST /rules/reload.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, errUnavailable)
		return
	}

	var rule domain.ExclusionRule
	if err := decodeJSON(r, &rule); err != nil {
		writeError(w, err)
		return
	}
	rule.TenantID = GlobalTenantID
	if rule.Version == "" {
		rule.Version = "1.0.0"
	}

	if err := h.rules.ValidateRule(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	if err := h.repo.SaveExclusionRule(r.Context(), GlobalTenantID, &rule); err != nil {
		slog.Error("failed to save exclusion rule", "id", rule.ID, "error", err)
		writeError(w, err)
		return
	}

	slog.Info("exclusion rule created", "id", rule.ID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, map[string]any{
		"rule":    rule,
		"message": "Rule created. Call POST /rules/reload to apply changes.",
	})
}

// ReloadRules replaces the engine's rules with the builtins overlaid by the
// stored rules.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, errUnavailable)
		return
	}

	stored, err := h.repo.ListExclusionRules(r.Context(), GlobalTenantID)
	if err != nil {
		slog.Error("failed to list exclusion rules", "error", err)
		writeError(w, err)
		return
	}

	if err := h.rules.ReloadRules(rules.WithBuiltins(stored)); err != nil {
		slog.Error("failed to reload exclusion rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("exclusion rules reloaded", "stored", len(stored), "loaded", h.rules.RulesCount())
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rules reloaded successfully",
		"count":   h.rules.RulesCount(),
	})
}

// Stats handles GET /stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"scoring":      h.scoring.Stats().Snapshot(),
		"rules_loaded": h.rules.RulesCount(),
		"version":      h.version,
	}
	if h.worker != nil {
		resp["worker"] = h.worker.GetStats()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if len(h.check(r.Context())) > 0 {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready answers 503 until every backing service responds.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	failed := h.check(r.Context())
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"ready":  false,
			"failed": failed,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ready": true,
	})
}

// check pings the configured backends and returns the names of those that
// failed.
func (h *Handler) check(ctx context.Context) []string {
	var failed []string
	if h.repo != nil {
		if err := h.repo.Ping(ctx); err != nil {
			slog.Warn("repository ping failed", "error", err)
			failed = append(failed, "repository")
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			slog.Warn("cache ping failed", "error", err)
			failed = append(failed, "cache")
		}
	}
	if h.bus != nil {
		if err := h.bus.Ping(ctx); err != nil {
			slog.Warn("event bus ping failed", "error", err)
			failed = append(failed, "eventbus")
		}
	}
	return failed
}

func (h *Handler) publish(ctx context.Context, tenantID, topic string, v any) {
	if h.bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to encode event", "topic", topic, "error", err)
		return
	}
	if err := h.bus.Publish(ctx, tenantID, topic, payload); err != nil {
		slog.Error("failed to publish", "topic", topic, "tenant_id", tenantID, "error", err)
	}
}

// writeError maps an error to its HTTP status.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := "internal server error"

	switch {
	case errors.Is(err, repository.ErrNotFound):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, errValidation), errors.Is(err, repository.ErrInvalidInput), errors.Is(err, scoring.ErrMissingClaimID):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, errUnavailable):
		status, msg = http.StatusServiceUnavailable, err.Error()
	}

	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
