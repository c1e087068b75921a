// Package telemetry exports Prometheus metrics for the ingestion pipeline.
package telemetry

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline collectors. It satisfies upload.Observer and
// services.RunRecorder.
type Metrics struct {
	UploadsTotal     *prometheus.CounterVec
	BatchesTotal     prometheus.Counter
	BatchDuration    prometheus.Histogram
	BatchSize        prometheus.Histogram
	RunsTotal        *prometheus.CounterVec
	RollbacksTotal   *prometheus.CounterVec
	ActiveIngestions prometheus.Gauge

	gatherer prometheus.Gatherer
}

// NewMetrics registers the collectors on reg. Passing nil uses the default
// registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	f := promauto.With(reg)

	return &Metrics{
		UploadsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_asset_uploads_total",
			Help: "Asset transfers by outcome",
		}, []string{"outcome"}),
		BatchesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "ingest_upload_batches_total",
			Help: "Upload batches settled",
		}),
		BatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ingest_upload_batch_duration_seconds",
			Help:    "Time for all transfers of a batch to settle",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		BatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ingest_upload_batch_size",
			Help:    "Items per upload batch",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21},
		}),
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_pipeline_runs_total",
			Help: "Pipeline runs by result",
		}, []string{"result"}),
		RollbacksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_collection_rollbacks_total",
			Help: "Collection rollbacks by completeness",
		}, []string{"result"}),
		ActiveIngestions: f.NewGauge(prometheus.GaugeOpts{
			Name: "ingest_streams_active",
			Help: "Progress streams currently open",
		}),
		gatherer: gatherer,
	}
}

func (m *Metrics) UploadFinished(succeeded bool) {
	outcome := "failed"
	if succeeded {
		outcome = "succeeded"
	}
	m.UploadsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) BatchFinished(size int, elapsed time.Duration) {
	m.BatchesTotal.Inc()
	m.BatchSize.Observe(float64(size))
	m.BatchDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) RunFinished(result string) {
	m.RunsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RollbackFinished(failures int) {
	result := "complete"
	if failures > 0 {
		result = "partial"
	}
	m.RollbacksTotal.WithLabelValues(result).Inc()
}

// TrackStreams counts requests in flight on the progress stream route.
func (m *Metrics) TrackStreams() gin.HandlerFunc {
	return func(c *gin.Context) {
		m.ActiveIngestions.Inc()
		defer m.ActiveIngestions.Dec()
		c.Next()
	}
}

// Handler serves the registry the metrics were registered on.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
