package worker

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the process-status Prometheus gauges/counters the original
// worker.py kept in an in-process dict; here they're real instruments an
// admin endpoint or scrape target can expose, grounded on worker.py's
// _processing_status fields (active, layer, queue_remaining, processed).
type Metrics struct {
	Active         prometheus.Gauge
	CurrentLayer   prometheus.Gauge
	QueueRemaining prometheus.Gauge
	Processed      *prometheus.CounterVec
	Resolved       *prometheus.CounterVec
	BatchDuration  *prometheus.HistogramVec
}

// NewMetrics registers the worker's instruments against reg. Pass
// prometheus.NewRegistry() in tests to avoid the global default registry's
// double-registration panic across test runs.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "libraryd", Name: "worker_active",
			Help: "1 while the processing loop is actively working a batch, 0 while idle.",
		}),
		CurrentLayer: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "libraryd", Name: "worker_current_layer",
			Help: "Verification layer number currently being processed (0 = idle).",
		}),
		QueueRemaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "libraryd", Name: "worker_queue_remaining",
			Help: "Number of queue entries left to process.",
		}),
		Processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "libraryd", Name: "worker_items_processed_total",
			Help: "Total items processed, labeled by layer.",
		}, []string{"layer"}),
		Resolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "libraryd", Name: "worker_items_resolved_total",
			Help: "Total items resolved (identified with enough confidence to stop), labeled by layer.",
		}, []string{"layer"}),
		BatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "libraryd", Name: "worker_batch_duration_seconds",
			Help:    "Wall-clock duration of one layer batch cycle.",
			Buckets: prometheus.DefBuckets,
		}, []string{"layer"}),
	}
	reg.MustRegister(m.Active, m.CurrentLayer, m.QueueRemaining, m.Processed, m.Resolved, m.BatchDuration)
	return m
}
