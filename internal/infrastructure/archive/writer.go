package archive

import (
	"context"
	"errors"
	"sync"
	"time"

	analysis "tradebridge/internal/domain/entity/analysis"
	"tradebridge/internal/domain/interfaces"

	"github.com/sirupsen/logrus"
)

// BatchConfig controls when buffered results are flushed.
type BatchConfig struct {
	Size    int
	Timeout time.Duration
}

// Writer buffers completed results and flushes them to the archive in batches.
type Writer struct {
	results *batchBuffer[analysis.Result]
}

func NewWriter(cfg BatchConfig, repo interfaces.ResultArchiveRepository, logger *logrus.Logger) *Writer {
	return &Writer{
		results: newBatchBuffer(cfg, func(ctx context.Context, batch []analysis.Result) error {
			return repo.AddResults(ctx, batch)
		}, logger.WithField("component", "archive_writer")),
	}
}

// Run sets the base context for asynchronous flush operations.
func (w *Writer) Run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	w.results.setContext(ctx)
}

// Stop flushes whatever is still buffered using the provided context.
func (w *Writer) Stop(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	w.results.setContext(ctx)
	return w.results.drain(ctx)
}

// Add buffers a result. It flushes synchronously when the batch is full.
func (w *Writer) Add(res analysis.Result) error {
	return w.results.enqueue(res)
}

type batchBuffer[T any] struct {
	cfg     BatchConfig
	mu      sync.Mutex
	items   []T
	timer   *time.Timer
	flushFn func(context.Context, []T) error
	logger  *logrus.Entry
	ctx     context.Context
}

func newBatchBuffer[T any](cfg BatchConfig, flushFn func(context.Context, []T) error, logger *logrus.Entry) *batchBuffer[T] {
	return &batchBuffer[T]{
		cfg:     cfg,
		flushFn: flushFn,
		logger:  logger,
	}
}

func (bb *batchBuffer[T]) setContext(ctx context.Context) {
	bb.mu.Lock()
	defer bb.mu.Unlock()
	bb.ctx = ctx
}

func (bb *batchBuffer[T]) enqueue(item T) error {
	bb.mu.Lock()
	ctx := bb.ctx
	if ctx == nil {
		bb.mu.Unlock()
		return errors.New("archive writer is not running")
	}
	if err := ctx.Err(); err != nil {
		bb.mu.Unlock()
		return err
	}
	bb.items = append(bb.items, item)
	limit := bb.cfg.Size
	if limit <= 0 {
		limit = 1
	}
	var batch []T
	if len(bb.items) >= limit {
		batch = bb.takeBatchLocked()
	} else if bb.timer == nil && bb.cfg.Timeout > 0 {
		bb.timer = time.AfterFunc(bb.cfg.Timeout, bb.flushOnTimer)
	}
	bb.mu.Unlock()

	return bb.flush(ctx, batch)
}

func (bb *batchBuffer[T]) flushOnTimer() {
	bb.mu.Lock()
	ctx := bb.ctx
	batch := bb.takeBatchLocked()
	bb.mu.Unlock()

	if err := bb.flush(ctx, batch); err != nil {
		bb.logger.WithError(err).WithField("size", len(batch)).Warn("archive flush failed")
	}
}

func (bb *batchBuffer[T]) takeBatchLocked() []T {
	if bb.timer != nil {
		bb.timer.Stop()
		bb.timer = nil
	}
	if len(bb.items) == 0 {
		return nil
	}
	batch := make([]T, len(bb.items))
	copy(batch, bb.items)
	bb.items = bb.items[:0]
	return batch
}

func (bb *batchBuffer[T]) flush(ctx context.Context, batch []T) error {
	if len(batch) == 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	if err := bb.flushFn(ctx, batch); err != nil {
		return err
	}
	bb.logger.WithFields(logrus.Fields{
		"size":    len(batch),
		"took_ms": time.Since(start).Milliseconds(),
	}).Debug("flushed batch")
	return nil
}

func (bb *batchBuffer[T]) drain(ctx context.Context) error {
	bb.mu.Lock()
	batch := bb.takeBatchLocked()
	bb.mu.Unlock()
	return bb.flush(ctx, batch)
}
