// Package scoring runs the fraud detectors concurrently and fuses their
// results into a single assessment.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/kestrel/internal/detect"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/explain"
)

// DefaultDetectorTimeout bounds each detector run.
const DefaultDetectorTimeout = 5 * time.Second

// ErrMissingClaimID is returned by Score for a claim without an id.
var ErrMissingClaimID = errors.New("claim_id is required")

var errDetectorPanic = errors.New("detector panicked")

var tracer = otel.Tracer("kestrel-scoring")

// Engine is the fraud scoring orchestrator. It is safe for concurrent use.
type Engine struct {
	detectors       []detect.Detector
	bands           RiskBands
	reviewThreshold float64
	timeout         time.Duration

	reviews   domain.ReviewStore // optional
	explainer *explain.Explainer
	metrics   *Metrics
	stats     *Stats
	now       func() time.Time
}

// NewEngine creates an engine over the given detectors. reviews and metrics
// may be nil. Zero thresholds in cfg fall back to the defaults.
func NewEngine(cfg domain.ScoringConfig, reviews domain.ReviewStore, metrics *Metrics, detectors ...detect.Detector) (*Engine, error) {
	bands := DefaultRiskBands()
	if cfg.MediumThreshold != 0 || cfg.HighThreshold != 0 || cfg.CriticalThreshold != 0 {
		var err error
		bands, err = NewRiskBands(cfg.MediumThreshold, cfg.HighThreshold, cfg.CriticalThreshold)
		if err != nil {
			return nil, err
		}
	}

	threshold := cfg.ManualReviewThreshold
	if threshold <= 0 {
		threshold = DefaultManualReviewThreshold
	}
	timeout := cfg.DetectorTimeout
	if timeout <= 0 {
		timeout = DefaultDetectorTimeout
	}

	return &Engine{
		detectors:       detectors,
		bands:           bands,
		reviewThreshold: threshold,
		timeout:         timeout,
		reviews:         reviews,
		explainer:       explain.New(),
		metrics:         metrics,
		stats:           NewStats(),
		now:             time.Now,
	}, nil
}

// Stats returns the engine's throughput tracker.
func (e *Engine) Stats() *Stats {
	return e.stats
}

// Bands returns the configured risk bands.
func (e *Engine) Bands() RiskBands {
	return e.bands
}

// Score evaluates a claim. Detector failures never fail the call; they
// contribute a zero score and are logged.
func (e *Engine) Score(ctx context.Context, claim domain.Claim) (*domain.FraudAssessment, error) {
	if claim.ID == "" {
		return nil, ErrMissingClaimID
	}

	start := e.now()
	ctx, span := tracer.Start(ctx, "scoring.Score", trace.WithAttributes(
		attribute.String("claim_id", claim.ID),
		attribute.String("tenant_id", claim.TenantID),
	))
	defer span.End()

	results := make([]domain.DetectorResult, len(e.detectors))
	var wg sync.WaitGroup
	for i, d := range e.detectors {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = e.run(ctx, d, claim)
		}()
	}
	wg.Wait()

	// A cancelled caller would otherwise read as six detector timeouts and
	// a clean score.
	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	components := make(map[string]float64, len(results))
	var indicators []domain.Indicator
	for _, r := range results {
		components[r.Detector] = clamp01(r.Score)
		indicators = append(indicators, r.Indicators...)
	}
	indicators = Dedupe(indicators)

	score := Fuse(components)
	a := &domain.FraudAssessment{
		ID:                    uuid.New().String(),
		ClaimID:               claim.ID,
		TenantID:              claim.TenantID,
		FraudScore:            score,
		RiskLevel:             e.bands.Level(score),
		RequiresInvestigation: RequiresInvestigation(score, e.reviewThreshold, indicators),
		Indicators:            indicators,
		Explanation:           e.explainer.Explain(score, indicators),
		ComponentScores:       components,
		Confidence:            Confidence(len(indicators)),
		CreatedAt:             start.UTC(),
	}

	if a.RequiresInvestigation {
		a.ReviewPersisted = e.escalate(ctx, claim, a)
	}

	elapsed := e.now().Sub(start)
	a.ProcessingMs = elapsed.Milliseconds()

	e.stats.Record(a.RiskLevel, a.RequiresInvestigation, elapsed)
	e.metrics.observeAssessment(a, elapsed)
	span.SetAttributes(
		attribute.Float64("fraud_score", a.FraudScore),
		attribute.String("risk_level", string(a.RiskLevel)),
	)

	slog.Debug("claim scored",
		"claim_id", claim.ID,
		"tenant_id", claim.TenantID,
		"fraud_score", a.FraudScore,
		"risk_level", a.RiskLevel,
		"indicators", len(indicators),
		"escalated", a.RequiresInvestigation,
		"duration_ms", a.ProcessingMs,
	)

	return a, nil
}

type outcome struct {
	res domain.DetectorResult
	err error
}

// run executes one detector under its own deadline. A detector that ignores
// cancellation is abandoned; its goroutine finishes into a buffered channel.
func (e *Engine) run(ctx context.Context, d detect.Detector, claim domain.Claim) domain.DetectorResult {
	name := d.Name()
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	ctx, span := tracer.Start(ctx, "detector."+name, trace.WithAttributes(attribute.String("detector", name)))
	defer span.End()

	start := time.Now()
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("%w: %v", errDetectorPanic, r)}
			}
		}()
		res, err := d.Detect(ctx, claim)
		done <- outcome{res: res, err: err}
	}()

	var out outcome
	reason := "error"
	select {
	case out = <-done:
		if errors.Is(out.err, errDetectorPanic) {
			reason = "panic"
		}
	case <-ctx.Done():
		out.err = fmt.Errorf("detector %s: %w", name, ctx.Err())
		reason = "timeout"
	}
	elapsed := time.Since(start)
	e.metrics.observeDetector(name, elapsed)

	if out.err != nil {
		span.RecordError(out.err)
		span.SetStatus(codes.Error, reason)
		e.metrics.detectorFailed(name, reason)
		slog.Warn("detector failed",
			"detector", name,
			"claim_id", claim.ID,
			"tenant_id", claim.TenantID,
			"reason", reason,
			"error", out.err,
		)
		return domain.DetectorResult{Detector: name, Err: out.err.Error(), Duration: elapsed}
	}

	res := out.res
	res.Detector = name
	res.Duration = elapsed
	return res
}

// escalate upserts the review entry and reports whether it was stored.
func (e *Engine) escalate(ctx context.Context, claim domain.Claim, a *domain.FraudAssessment) bool {
	if e.reviews == nil {
		return false
	}
	entry := BuildReview(claim, a, e.reviewThreshold, e.now().UTC())
	if err := e.reviews.UpsertReview(ctx, claim.TenantID, entry); err != nil {
		e.metrics.reviewFailed()
		slog.Error("failed to store review entry",
			"claim_id", claim.ID,
			"tenant_id", claim.TenantID,
			"error", err,
		)
		return false
	}
	return true
}
