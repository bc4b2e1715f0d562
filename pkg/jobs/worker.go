package jobs

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/parleyhq/parley/pkg/logging"
)

// Handler processes a dequeued message.
type Handler func(ctx context.Context, qm *QueuedMessage) error

// WorkerConfig configures a worker pool.
type WorkerConfig struct {
	// Count is the number of concurrent workers.
	Count int `yaml:"count"`

	// DequeueTimeout bounds each blocking dequeue before re-polling.
	DequeueTimeout time.Duration `yaml:"dequeue_timeout"`

	// ShutdownTimeout bounds the drain on Stop.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DefaultWorkerConfig returns the summarization worker defaults.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Count:           2,
		DequeueTimeout:  5 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Pool runs a set of workers consuming a queue.
type Pool struct {
	config  WorkerConfig
	queue   Queue
	handler Handler
	logger  logging.Logger

	// Metrics
	processedCount atomic.Int64
	failedCount    atomic.Int64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool creates a worker pool.
func NewPool(config WorkerConfig, queue Queue, handler Handler, logger logging.Logger) *Pool {
	if config.Count <= 0 {
		config.Count = DefaultWorkerConfig().Count
	}
	if config.DequeueTimeout <= 0 {
		config.DequeueTimeout = DefaultWorkerConfig().DequeueTimeout
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = DefaultWorkerConfig().ShutdownTimeout
	}
	return &Pool{
		config:  config,
		queue:   queue,
		handler: handler,
		logger:  logger.With(logging.F("component", "worker_pool"), logging.F("queue", queue.Name())),
	}
}

// Start launches the workers. It returns immediately.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	for i := 0; i < p.config.Count; i++ {
		workerID := uuid.New().String()[:8]
		p.wg.Add(1)
		go p.run(ctx, workerID)
	}

	p.logger.Info("Worker pool started", logging.F("workers", p.config.Count))
}

// Stop signals the workers and waits for them to drain, bounded by
// ShutdownTimeout.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("Worker pool stopped",
			logging.F("processed", p.processedCount.Load()),
			logging.F("failed", p.failedCount.Load()))
	case <-time.After(p.config.ShutdownTimeout):
		p.logger.Warn("Worker pool shutdown timed out")
	}
}

// Processed returns the number of successfully handled messages.
func (p *Pool) Processed() int64 { return p.processedCount.Load() }

// Failed returns the number of failed messages.
func (p *Pool) Failed() int64 { return p.failedCount.Load() }

func (p *Pool) run(ctx context.Context, workerID string) {
	defer p.wg.Done()

	log := p.logger.With(logging.F("worker_id", workerID))
	log.Debug("Worker started")

	for {
		select {
		case <-ctx.Done():
			log.Debug("Worker stopping")
			return
		default:
		}

		qm, err := p.queue.Dequeue(ctx, p.config.DequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("Dequeue failed", logging.Err(err))
			continue
		}
		if qm == nil {
			continue
		}

		if err := p.handler(ctx, qm); err != nil {
			p.failedCount.Add(1)
			log.Error("Job failed",
				logging.Err(err),
				logging.F("message_id", qm.ID),
				logging.F("job", qm.Job),
				logging.F("retry_count", qm.RetryCount))
			if nackErr := p.queue.Nack(ctx, qm.ID); nackErr != nil {
				log.Error("Nack failed", logging.Err(nackErr), logging.F("message_id", qm.ID))
			}
			continue
		}

		p.processedCount.Add(1)
		if ackErr := p.queue.Ack(ctx, qm.ID); ackErr != nil {
			log.Error("Ack failed", logging.Err(ackErr), logging.F("message_id", qm.ID))
		}
	}
}
