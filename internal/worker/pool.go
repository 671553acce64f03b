package worker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/mahmoodhamdi/Bulk-Email-Sender-sub002/internal/queue"
)

// Processor handles one dequeued job.
type Processor interface {
	Process(ctx context.Context, job queue.Job)
}

// Pool manages a fixed number of worker goroutines processing send jobs.
// Global concurrency is capped by the pool size; per-resource pacing is
// the rate limiter's job inside the processor.
type Pool struct {
	numWorkers int
	jobs       chan queue.Job
	processor  Processor
	logger     *slog.Logger
	wg         sync.WaitGroup
}

// NewPool creates a worker pool with the given number of workers.
func NewPool(numWorkers int, processor Processor, logger *slog.Logger) *Pool {
	return &Pool{
		numWorkers: numWorkers,
		jobs:       make(chan queue.Job, numWorkers*2),
		processor:  processor,
		logger:     logger,
	}
}

// Start launches all worker goroutines. They read from the jobs channel
// until it is closed or the context is cancelled.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	p.logger.Info("worker pool started", "num_workers", p.numWorkers)
}

// Submit hands a claimed job to the pool.
func (p *Pool) Submit(job queue.Job) {
	p.jobs <- job
}

// Concurrency returns the configured worker count.
func (p *Pool) Concurrency() int {
	return p.numWorkers
}

// Stop closes the jobs channel and waits for all workers to finish their
// current job. In-flight sends are never interrupted.
func (p *Pool) Stop() {
	close(p.jobs)
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for job := range p.jobs {
		select {
		case <-ctx.Done():
			return
		default:
			p.processor.Process(ctx, job)
		}
	}
}
