package worker

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/mahmoodhamdi/Bulk-Email-Sender-sub002/internal/queue"
)

// Status is the operator-facing view of the consuming side.
type Status struct {
	Running     bool `json:"running"`
	Paused      bool `json:"paused"`
	Concurrency int  `json:"concurrency"`
}

// Poller continuously claims ready jobs from the durable queue and feeds
// the worker pool. A global pause flag stops all dequeuing; per-campaign
// pausing is handled inside the queue itself.
type Poller struct {
	queue        *queue.Queue
	pool         *Pool
	logger       *slog.Logger
	pollInterval time.Duration
	batchSize    int64

	running atomic.Bool
	paused  atomic.Bool
	done    chan struct{}
}

func NewPoller(q *queue.Queue, pool *Pool, logger *slog.Logger) *Poller {
	return &Poller{
		queue:        q,
		pool:         pool,
		logger:       logger,
		pollInterval: 100 * time.Millisecond,
		batchSize:    10,
		done:         make(chan struct{}),
	}
}

// Start runs the polling loop until the context is cancelled. It blocks, so
// callers run it in its own goroutine and use Wait to observe its exit
// before tearing down the pool.
func (p *Poller) Start(ctx context.Context) {
	p.running.Store(true)
	defer close(p.done)
	defer p.running.Store(false)
	p.logger.Info("poller started")

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopping")
			return
		case <-ticker.C:
			if p.paused.Load() {
				continue
			}
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	jobs, err := p.queue.PopReady(ctx, p.batchSize)
	if err != nil {
		p.logger.Error("failed to poll queue", "error", err)
		return
	}
	for _, job := range jobs {
		p.pool.Submit(job)
	}
}

// Wait blocks until the polling loop has exited. Once it returns no
// further jobs will be submitted to the pool.
func (p *Poller) Wait() {
	<-p.done
}

// Pause stops handing out new jobs globally. In-flight jobs complete.
func (p *Poller) Pause() {
	p.paused.Store(true)
	p.logger.Info("queue processing paused")
}

// Resume restarts dequeuing.
func (p *Poller) Resume() {
	p.paused.Store(false)
	p.logger.Info("queue processing resumed")
}

// Status reports running/paused flags and the pool's concurrency.
func (p *Poller) Status() Status {
	return Status{
		Running:     p.running.Load(),
		Paused:      p.paused.Load(),
		Concurrency: p.pool.Concurrency(),
	}
}
