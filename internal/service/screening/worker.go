package screening

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// WorkerPool drains the job queue with a fixed number of workers. Each
// failed job goes back through the queue's retry path, which eventually
// dead-letters it; the pool itself never drops work.
type WorkerPool struct {
	service *Service
	queue   JobQueue
	workers int
	logger  *zap.Logger

	wg sync.WaitGroup
}

func NewWorkerPool(service *Service, queue JobQueue, workers int, logger *zap.Logger) *WorkerPool {
	if workers <= 0 {
		workers = 4
	}
	return &WorkerPool{
		service: service,
		queue:   queue,
		workers: workers,
		logger:  logger.Named("workers"),
	}
}

// Start launches the workers. They run until ctx is cancelled; Wait
// blocks until all in-flight jobs finish.
func (p *WorkerPool) Start(ctx context.Context) {
	p.logger.Info("starting screening workers", zap.Int("count", p.workers))
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
}

// Wait blocks until all workers have exited
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}

func (p *WorkerPool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	logger := p.logger.With(zap.Int("worker", id))

	for {
		if ctx.Err() != nil {
			logger.Debug("worker stopping")
			return
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("dequeue failed", zap.Error(err))
			continue
		}
		if job == nil {
			continue
		}

		if err := p.service.ProcessJob(ctx, job); err != nil {
			logger.Warn("job failed, scheduling retry",
				zap.String("job_id", job.JobID.String()),
				zap.Int("attempt", job.Attempt),
				zap.Error(err))
			// Retry bookkeeping runs on a fresh context so shutdown
			// cannot lose the job between failure and re-enqueue.
			if retryErr := p.queue.Retry(context.WithoutCancel(ctx), job, err); retryErr != nil {
				logger.Error("retry scheduling failed, job lost until redelivery",
					zap.String("job_id", job.JobID.String()),
					zap.Error(retryErr))
			}
		}
	}
}
