// Package metrics exposes Prometheus counters and gauges for the dispatch
// core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mahmoodhamdi/Bulk-Email-Sender-sub002/internal/queue"
)

// Metrics holds all Prometheus collectors for the sender.
type Metrics struct {
	EmailsSentTotal    prometheus.Counter
	EmailsFailedTotal  prometheus.Counter
	EmailsRetriedTotal prometheus.Counter
	JobsDiscardedTotal prometheus.Counter

	QueueWaiting   prometheus.Gauge
	QueueActive    prometheus.Gauge
	QueueDelayed   prometheus.Gauge
	QueueCompleted prometheus.Gauge
	QueueFailed    prometheus.Gauge

	WorkerConcurrency prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a Metrics instance with all collectors registered on a
// private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		EmailsSentTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailer_emails_sent_total",
			Help: "Total number of successfully sent emails",
		}),
		EmailsFailedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailer_emails_failed_total",
			Help: "Total number of permanently failed emails",
		}),
		EmailsRetriedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailer_emails_retried_total",
			Help: "Total number of transient failures re-enqueued with backoff",
		}),
		JobsDiscardedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailer_jobs_discarded_total",
			Help: "Jobs discarded because the recipient was no longer queued",
		}),
		QueueWaiting: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mailer_queue_waiting",
			Help: "Jobs ready to run",
		}),
		QueueActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mailer_queue_active",
			Help: "Jobs currently executing",
		}),
		QueueDelayed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mailer_queue_delayed",
			Help: "Jobs waiting for their notBefore time",
		}),
		QueueCompleted: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mailer_queue_completed",
			Help: "Completed jobs retained in the queue",
		}),
		QueueFailed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mailer_queue_failed",
			Help: "Failed jobs retained in the queue",
		}),
		WorkerConcurrency: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mailer_worker_concurrency",
			Help: "Configured worker pool size",
		}),
		registry: reg,
	}

	reg.MustRegister(
		m.EmailsSentTotal, m.EmailsFailedTotal, m.EmailsRetriedTotal,
		m.JobsDiscardedTotal,
		m.QueueWaiting, m.QueueActive, m.QueueDelayed, m.QueueCompleted,
		m.QueueFailed, m.WorkerConcurrency,
	)
	return m
}

// SetQueueStats pushes a queue snapshot into the gauges.
func (m *Metrics) SetQueueStats(stats queue.Stats) {
	m.QueueWaiting.Set(float64(stats.Waiting))
	m.QueueActive.Set(float64(stats.Active))
	m.QueueDelayed.Set(float64(stats.Delayed))
	m.QueueCompleted.Set(float64(stats.Completed))
	m.QueueFailed.Set(float64(stats.Failed))
}

// Handler serves the registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
