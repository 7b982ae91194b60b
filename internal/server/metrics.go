package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nftcreator/internal/creator"
)

// Metrics holds the service's Prometheus collectors. It is created before the
// creator so stage timings can be observed.
type Metrics struct {
	registry         *prometheus.Registry
	requestsTotal    *prometheus.CounterVec
	stagesTotal      *prometheus.CounterVec
	stageDuration    *prometheus.HistogramVec
	submissionsTotal *prometheus.CounterVec
	retriesTotal     prometheus.Counter
	journalDepth     prometheus.Gauge
}

func NewMetrics() *Metrics {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nftcreator_submission_requests_total",
		Help: "Submission requests by result",
	}, []string{"status"})

	stages := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nftcreator_stage_total",
		Help: "Pipeline stage executions by result",
	}, []string{"stage", "result"})

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nftcreator_stage_duration_seconds",
		Help:    "Pipeline stage latency",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
	}, []string{"stage"})

	submissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nftcreator_submissions_total",
		Help: "Finished submissions by outcome and failure kind",
	}, []string{"outcome", "kind"})

	retries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nftcreator_generate_retries_total",
		Help: "Image generation attempts retried after a transient failure",
	})

	depth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "nftcreator_failed_submissions",
		Help: "Number of entries in the failed submission journal",
	})

	r := prometheus.NewRegistry()
	r.MustRegister(requests, stages, duration, submissions, retries, depth)

	return &Metrics{
		registry:         r,
		requestsTotal:    requests,
		stagesTotal:      stages,
		stageDuration:    duration,
		submissionsTotal: submissions,
		retriesTotal:     retries,
		journalDepth:     depth,
	}
}

func (m *Metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// watchBusy exposes whether a submission is in flight.
func (m *Metrics) watchBusy(busy func() bool) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "nftcreator_busy",
		Help: "1 while a submission is in flight",
	}, func() float64 {
		if busy() {
			return 1
		}
		return 0
	}))
}

func (m *Metrics) incRequest(status string) {
	m.requestsTotal.WithLabelValues(status).Inc()
}

// IncRetry matches inference.Retrying's OnRetry hook.
func (m *Metrics) IncRetry(int, error) {
	m.retriesTotal.Inc()
}

func (m *Metrics) setJournalDepth(depth int) {
	m.journalDepth.Set(float64(depth))
}

func (m *Metrics) StageDone(stage creator.Phase, took time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.stagesTotal.WithLabelValues(stage.String(), result).Inc()
	m.stageDuration.WithLabelValues(stage.String()).Observe(took.Seconds())
}

func (m *Metrics) SubmissionDone(s creator.State) {
	kind := "none"
	if s.Err != nil {
		kind = s.Err.Kind.String()
	}
	m.submissionsTotal.WithLabelValues(s.Outcome.String(), kind).Inc()
}
