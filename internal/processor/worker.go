package processor

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/document"
	"github.com/fyrsmithlabs/corpusd/internal/embeddings"
	"github.com/fyrsmithlabs/corpusd/internal/metrics"
	"github.com/fyrsmithlabs/corpusd/internal/queue"
	"github.com/fyrsmithlabs/corpusd/internal/source"
	"github.com/fyrsmithlabs/corpusd/internal/vectorstore"
)

// Run consumes the queue with the configured number of workers until ctx is
// done or the queue is closed and drained.
func (p *Processor) Run(ctx context.Context, q *queue.Queue) {
	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker(ctx, q)
		}()
	}
	wg.Wait()
}

func (p *Processor) worker(ctx context.Context, q *queue.Queue) {
	for {
		task, err := q.Dequeue(ctx)
		if err != nil {
			return
		}
		p.processWithRetry(ctx, task)
	}
}

// processWithRetry attempts a task up to MaxRetries times. Rate limit errors
// wait the longer backoff; other retryable failures use exponential backoff.
// Permanent failures drop the task; the watermark never advanced, so the next
// scan retries the document.
func (p *Processor) processWithRetry(ctx context.Context, task document.Task) {
	backoff := p.cfg.RetryBackoff
	for attempt := 1; ; attempt++ {
		err := p.Process(ctx, task)
		if err == nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
		if attempt >= p.cfg.MaxRetries || !retryable(err) {
			metrics.RecordProcessed(string(task.DocType), "failed")
			p.logger.Error(ctx, "task failed",
				zap.String("doc", task.Key().String()),
				zap.String("op", string(task.Op)),
				zap.Int("attempts", attempt),
				zap.Error(err),
			)
			return
		}

		delay := backoff
		if errors.Is(err, embeddings.ErrRateLimited) {
			delay = p.cfg.RateLimitBackoff
		}
		p.logger.Warn(ctx, "task attempt failed, retrying",
			zap.String("doc", task.Key().String()),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
		backoff *= 2
	}
}

func retryable(err error) bool {
	return errors.Is(err, source.ErrTransient) ||
		errors.Is(err, embeddings.ErrRateLimited) ||
		errors.Is(err, embeddings.ErrEmbeddingFailed) ||
		errors.Is(err, vectorstore.ErrStoreUnavailable) ||
		errors.Is(err, vectorstore.ErrConnectionFailed)
}
