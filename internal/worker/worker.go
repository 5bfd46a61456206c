// Package worker runs report generation for dispatched items.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/auditsnap/internal/audit"
	"github.com/JakeFAU/auditsnap/internal/metrics"
)

const defaultTimeout = 2 * time.Minute

// Lifecycle is the subset of the lifecycle controller a worker calls back.
type Lifecycle interface {
	Advance(ctx context.Context, reportID string, to audit.Status, data *audit.ReportData) error
	Fail(ctx context.Context, reportID, reason string) error
}

// Config controls Worker behavior.
type Config struct {
	// Timeout bounds a single Generate call.
	Timeout time.Duration
	// Retry governs callback retries. Nil uses a 3 attempt exponential policy.
	Retry audit.RetryPolicy
}

// Worker consumes dispatch items and drives each report to a terminal status.
type Worker struct {
	queue     audit.Queue
	lifecycle Lifecycle
	generator audit.Generator
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker.
func New(queue audit.Queue, lifecycle Lifecycle, generator audit.Generator, cfg Config, logger *zap.Logger) *Worker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Retry == nil {
		cfg.Retry = audit.NewExponentialRetryPolicy(3)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:     queue,
		lifecycle: lifecycle,
		generator: generator,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run blocks, consuming queue items until the context finishes or the
// queue is closed.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, audit.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued report", zap.String("report_id", item.ReportID))
		w.Process(ctx, item)
	}
}

// Process generates one report. Lifecycle rejections end processing quietly
// since another writer already moved the report on. Cancelling ctx stops
// generation but not the lifecycle callbacks, so a dequeued report always
// reaches a terminal status.
func (w *Worker) Process(ctx context.Context, item audit.DispatchItem) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	log := w.logger.With(zap.String("report_id", item.ReportID), zap.String("url", item.URL))
	start := time.Now()
	bookkeeping := context.WithoutCancel(ctx)

	err := w.callback(bookkeeping, func(ctx context.Context) error {
		return w.lifecycle.Advance(ctx, item.ReportID, audit.StatusProcessing, nil)
	})
	if err != nil {
		if errors.Is(err, audit.ErrInvalidTransition) || errors.Is(err, audit.ErrUnknownReport) {
			log.Warn("report not processable", zap.Error(err))
			return
		}
		log.Error("mark processing failed", zap.Error(err))
		return
	}

	data, err := w.generate(ctx, item.URL)
	if err != nil {
		reason := failureReason(err, w.cfg.Timeout)
		log.Warn("report generation failed", zap.Error(err), zap.Duration("dur", time.Since(start)))
		w.fail(ctx, log, item.ReportID, reason)
		return
	}

	err = w.callback(bookkeeping, func(ctx context.Context) error {
		return w.lifecycle.Advance(ctx, item.ReportID, audit.StatusCompleted, &data)
	})
	switch {
	case err == nil:
		log.Info("report completed", zap.Int("overall_score", data.OverallScore), zap.Duration("dur", time.Since(start)))
	case errors.Is(err, audit.ErrInvalidPayload):
		log.Warn("generator produced an invalid report", zap.Error(err))
		w.fail(ctx, log, item.ReportID, "invalid report payload")
	default:
		log.Error("mark completed failed", zap.Error(err))
	}
}

// Abort fails a report that was dispatched but will never be generated.
func (w *Worker) Abort(ctx context.Context, item audit.DispatchItem, reason string) {
	log := w.logger.With(zap.String("report_id", item.ReportID), zap.String("url", item.URL))
	log.Warn("aborting queued report", zap.String("reason", reason))
	w.fail(ctx, log, item.ReportID, reason)
}

func (w *Worker) generate(ctx context.Context, url string) (audit.ReportData, error) {
	genCtx, cancel := context.WithTimeout(ctx, w.cfg.Timeout)
	defer cancel()
	data, err := w.generator.Generate(genCtx, url)
	if err != nil {
		return audit.ReportData{}, fmt.Errorf("generate report: %w", err)
	}
	return data, nil
}

func (w *Worker) fail(ctx context.Context, log *zap.Logger, reportID, reason string) {
	// Terminal bookkeeping must land even if the worker is shutting down.
	ctx = context.WithoutCancel(ctx)
	err := w.callback(ctx, func(ctx context.Context) error {
		return w.lifecycle.Fail(ctx, reportID, reason)
	})
	if err != nil {
		log.Error("mark failed failed", zap.String("reason", reason), zap.Error(err))
	}
}

// callback runs fn until it succeeds or the retry policy gives up. Advance
// is idempotent so a retried call that already landed is harmless.
func (w *Worker) callback(ctx context.Context, fn func(context.Context) error) error {
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !w.cfg.Retry.ShouldRetry(err, attempt) {
			return err
		}
		delay := w.cfg.Retry.Backoff(attempt)
		w.logger.Debug("retrying lifecycle callback", zap.Int("attempt", attempt+1), zap.Duration("backoff", delay), zap.Error(err))
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry canceled: %w", ctx.Err())
		case <-timer.C:
		}
	}
}

func failureReason(err error, timeout time.Duration) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("generation timed out after %s", timeout)
	}
	return err.Error()
}
