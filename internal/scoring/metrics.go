package scoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Metrics holds the scoring pipeline collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	assessments     *prometheus.CounterVec
	escalations     prometheus.Counter
	reviewFailures  prometheus.Counter
	detectorErrors  *prometheus.CounterVec
	detectorLatency *prometheus.HistogramVec
	scoringLatency  prometheus.Histogram
}

// NewMetrics registers the scoring collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		assessments: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "kestrel",
				Subsystem: "scoring",
				Name:      "assessments_total",
				Help:      "Claims scored, by risk level",
			},
			[]string{"risk_level"},
		),
		escalations: f.NewCounter(prometheus.CounterOpts{
			Namespace: "kestrel",
			Subsystem: "scoring",
			Name:      "escalations_total",
			Help:      "Claims routed to the human review queue",
		}),
		reviewFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "kestrel",
			Subsystem: "scoring",
			Name:      "review_persist_failures_total",
			Help:      "Escalated claims whose review entry could not be stored",
		}),
		detectorErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "kestrel",
				Subsystem: "scoring",
				Name:      "detector_failures_total",
				Help:      "Detector runs that failed, timed out or panicked",
			},
			[]string{"detector", "reason"},
		),
		detectorLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "kestrel",
				Subsystem: "scoring",
				Name:      "detector_duration_seconds",
				Help:      "Detector run time",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
			[]string{"detector"},
		),
		scoringLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "kestrel",
			Subsystem: "scoring",
			Name:      "duration_seconds",
			Help:      "End-to-end scoring time per claim",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
	}
}

func (m *Metrics) observeDetector(name string, d time.Duration) {
	if m == nil {
		return
	}
	m.detectorLatency.WithLabelValues(name).Observe(d.Seconds())
}

func (m *Metrics) detectorFailed(name, reason string) {
	if m == nil {
		return
	}
	m.detectorErrors.WithLabelValues(name, reason).Inc()
}

func (m *Metrics) observeAssessment(a *domain.FraudAssessment, d time.Duration) {
	if m == nil {
		return
	}
	m.assessments.WithLabelValues(string(a.RiskLevel)).Inc()
	m.scoringLatency.Observe(d.Seconds())
	if a.RequiresInvestigation {
		m.escalations.Inc()
	}
}

func (m *Metrics) reviewFailed() {
	if m == nil {
		return
	}
	m.reviewFailures.Inc()
}
