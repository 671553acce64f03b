// Package health aggregates queue depth, broker connectivity and worker
// status into operator-facing snapshots. It only reads.
package health

import (
	"context"
	"log/slog"
	"time"

	"github.com/mahmoodhamdi/Bulk-Email-Sender-sub002/internal/domain"
	"github.com/mahmoodhamdi/Bulk-Email-Sender-sub002/internal/metrics"
	"github.com/mahmoodhamdi/Bulk-Email-Sender-sub002/internal/queue"
	"github.com/mahmoodhamdi/Bulk-Email-Sender-sub002/internal/worker"
)

// CampaignCounter counts campaigns per status in the durable store.
type CampaignCounter interface {
	CountCampaignsByStatus(ctx context.Context, status domain.CampaignStatus) (int, error)
}

// WorkerState reports the consuming side's flags.
type WorkerState interface {
	Status() worker.Status
}

// QueueHealth is the ephemeral read model of the dispatch core. It is
// recomputed on every read, never persisted.
type QueueHealth struct {
	Healthy         bool        `json:"healthy"`
	Stats           queue.Stats `json:"stats"`
	ActiveCampaigns int         `json:"active_campaigns"`
}

// BrokerHealth reports Redis connectivity.
type BrokerHealth struct {
	Connected bool   `json:"connected"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// Monitor reads queue, broker and worker state for operators.
type Monitor struct {
	queue     *queue.Queue
	campaigns CampaignCounter
	workers   WorkerState
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewMonitor(q *queue.Queue, campaigns CampaignCounter, workers WorkerState, m *metrics.Metrics, logger *slog.Logger) *Monitor {
	return &Monitor{
		queue:     q,
		campaigns: campaigns,
		workers:   workers,
		metrics:   m,
		logger:    logger,
	}
}

// QueueHealth returns the current queue snapshot. A broker failure yields
// an unhealthy snapshot rather than an error, so the endpoint stays up
// while the queue is down.
func (m *Monitor) QueueHealth(ctx context.Context) QueueHealth {
	stats, err := m.queue.Stats(ctx)
	if err != nil {
		m.logger.Error("failed to read queue stats", "error", err)
		return QueueHealth{Healthy: false}
	}

	active, err := m.campaigns.CountCampaignsByStatus(ctx, domain.CampaignSending)
	if err != nil {
		m.logger.Error("failed to count active campaigns", "error", err)
		return QueueHealth{Healthy: false, Stats: stats}
	}

	return QueueHealth{
		Healthy:         true,
		Stats:           stats,
		ActiveCampaigns: active,
	}
}

// BrokerHealth pings the broker and reports round-trip latency.
func (m *Monitor) BrokerHealth(ctx context.Context) BrokerHealth {
	latency, err := m.queue.Ping(ctx)
	if err != nil {
		return BrokerHealth{Connected: false, Error: err.Error()}
	}
	return BrokerHealth{Connected: true, LatencyMs: latency.Milliseconds()}
}

// WorkerStatus reports the worker pool's flags.
func (m *Monitor) WorkerStatus() worker.Status {
	return m.workers.Status()
}

// CleanQueue removes up to limit terminal-state jobs older than grace and
// returns their ids. Recipient records are untouched.
func (m *Monitor) CleanQueue(ctx context.Context, grace time.Duration, limit int64, state queue.State) ([]string, error) {
	return m.queue.Clean(ctx, grace, limit, state)
}

// Run updates the queue gauges until ctx is done.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	if m.metrics == nil {
		return
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := m.queue.Stats(ctx)
			if err != nil {
				m.logger.Error("failed to collect queue metrics", "error", err)
				continue
			}
			m.metrics.SetQueueStats(stats)
		}
	}
}
