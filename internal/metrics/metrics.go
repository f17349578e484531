// Package metrics exposes Prometheus counters for regression tasks and extraction calls.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joseph-ayodele/invoice-rules/internal/extract"
	"github.com/joseph-ayodele/invoice-rules/internal/pattern"
)

type Handler struct {
	TasksFinished      *prometheus.CounterVec
	TaskDocuments      *prometheus.HistogramVec
	DocumentsProcessed *prometheus.CounterVec
	DocumentsFailed    *prometheus.CounterVec
	Extractions        *prometheus.CounterVec
	ExtractionLatency  *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New registers the collectors on reg. Tests pass a fresh prometheus.NewRegistry().
func New(reg *prometheus.Registry) *Handler {
	f := promauto.With(reg)
	return &Handler{
		TasksFinished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "regression_tasks_finished_total",
			Help: "Regression tasks that reached a terminal status",
		}, []string{"status"}),
		TaskDocuments: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "regression_task_documents",
			Help:    "Documents tested per finished regression task",
			Buckets: prometheus.ExponentialBuckets(1, 4, 7),
		}, []string{"status"}),
		DocumentsProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "regression_documents_processed_total",
			Help: "Documents classified during regression runs, by change type",
		}, []string{"change_type"}),
		DocumentsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "regression_documents_failed_total",
			Help: "Documents that failed during regression runs, by stage",
		}, []string{"stage"}),
		Extractions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "extraction_executions_total",
			Help: "Pattern executions, by kind and whether a value was found",
		}, []string{"kind", "found"}),
		ExtractionLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "extraction_latency_seconds",
			Help:    "Latency of pattern executions",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		gatherer: reg,
	}
}

// TaskFinished records a terminal task status.
func (h *Handler) TaskFinished(status string, documents int) {
	h.TasksFinished.WithLabelValues(status).Inc()
	h.TaskDocuments.WithLabelValues(status).Observe(float64(documents))
}

func (h *Handler) DocumentProcessed(changeType string) {
	h.DocumentsProcessed.WithLabelValues(changeType).Inc()
}

func (h *Handler) DocumentFailed(stage string) {
	h.DocumentsFailed.WithLabelValues(stage).Inc()
}

// ObserveExtraction matches extract.Observer.
func (h *Handler) ObserveExtraction(kind pattern.Kind, out extract.Outcome, elapsed time.Duration) {
	found := "false"
	if out.Value != nil {
		found = "true"
	}
	h.Extractions.WithLabelValues(string(kind), found).Inc()
	h.ExtractionLatency.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}

// HTTPHandler serves the registry in the Prometheus exposition format.
func (h *Handler) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})
}
