package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RecordsNormalized = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "tradebridge_records_normalized_total", Help: "Raw payloads normalized, by detected source"},
		[]string{"source"},
	)
	TranslateFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "tradebridge_translate_failures_total", Help: "Adapter translations that fell back to the generic adapter"},
		[]string{"source"},
	)
	AnalysisRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "tradebridge_analysis_requests_total", Help: "Analysis requests by type and outcome"},
		[]string{"type", "outcome"},
	)
	PendingRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "tradebridge_pending_requests", Help: "Analysis requests awaiting a worker response"},
	)
	WorkerRestarts = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "tradebridge_worker_restarts_total", Help: "Worker processes respawned after a crash"},
	)
	WorkerReady = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "tradebridge_worker_ready", Help: "1 while the analysis worker is ready"},
	)
	Subscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "tradebridge_subscribers", Help: "Open subscriber connections"},
	)
)

func init() {
	prometheus.MustRegister(
		RecordsNormalized,
		TranslateFailures,
		AnalysisRequests,
		PendingRequests,
		WorkerRestarts,
		WorkerReady,
		Subscribers,
	)
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
