package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/notifications"
	"scribe/internal/queue"
	"scribe/internal/services"
)

// staleRunAfter is how long a run may go without a heartbeat before a
// watching drainer reclaims it from a process presumed dead.
const staleRunAfter = 2 * time.Minute

// startableStatuses are the statuses a drainer picks runs up at, covering
// fresh submissions and runs resumed mid-pipeline after recovery.
var startableStatuses = []queue.Status{
	queue.StatusPending,
	queue.StatusResolved,
	queue.StatusFetched,
	queue.StatusTranscoded,
	queue.StatusTranscribed,
}

// inFlightStatuses are the statuses held while a stage is executing.
var inFlightStatuses = []queue.Status{
	queue.StatusResolving,
	queue.StatusFetching,
	queue.StatusTranscoding,
	queue.StatusTranscribing,
	queue.StatusEmitting,
}

// Summary reports the outcome of one drain pass.
type Summary struct {
	Processed int
	Failed    int
	Duration  time.Duration
}

// Processor drains queued runs through the pipeline one at a time.
type Processor struct {
	cfg          *config.Config
	store        *queue.Store
	logger       *slog.Logger
	notifier     notifications.Service
	pipeline     *Pipeline
	pollInterval time.Duration
}

// NewProcessor constructs a processor with the standard notifier.
func NewProcessor(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Processor {
	return NewProcessorWithNotifier(cfg, store, logger, notifications.NewService(cfg))
}

// NewProcessorWithNotifier constructs a processor with a caller-supplied
// notifier, shared with the pipeline it drives.
func NewProcessorWithNotifier(cfg *config.Config, store *queue.Store, logger *slog.Logger, notifier notifications.Service) *Processor {
	poll := time.Duration(cfg.Workflow.QueuePollInterval) * time.Second
	if poll <= 0 {
		poll = 5 * time.Second
	}
	return &Processor{
		cfg:          cfg,
		store:        store,
		logger:       logging.NewComponentLogger(logger, "processor"),
		notifier:     notifier,
		pipeline:     NewWithNotifier(cfg, store, logger, notifier),
		pollInterval: poll,
	}
}

// Pipeline exposes the pipeline the processor drives, for health reporting.
func (p *Processor) Pipeline() *Pipeline {
	if p == nil {
		return nil
	}
	return p.pipeline
}

// Drain recovers orphaned runs, verifies preflight checks, then processes
// everything startable until the queue is empty. A failed run does not stop
// the pass; a failed preflight check refuses the whole pass so queued runs
// stay pending.
func (p *Processor) Drain(ctx context.Context) (Summary, error) {
	if err := p.recoverOrphans(ctx); err != nil {
		return Summary{}, err
	}
	if err := p.runPreflightChecks(ctx); err != nil {
		return Summary{}, err
	}
	return p.drainOnce(ctx)
}

// Watch drains the queue, then keeps polling for new submissions until the
// context is cancelled. Preflight runs once at startup; runs orphaned by
// other killed processes are reclaimed between passes once their heartbeat
// goes stale.
func (p *Processor) Watch(ctx context.Context) error {
	if err := p.recoverOrphans(ctx); err != nil {
		return err
	}
	if err := p.runPreflightChecks(ctx); err != nil {
		return err
	}
	for {
		if _, err := p.drainOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			p.logger.Error("queue drain failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "queue_drain_failed"),
				logging.String(logging.FieldErrorHint, "check queue database access"),
			)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.pollInterval):
		}
		p.reclaimStale(ctx)
	}
}

func (p *Processor) recoverOrphans(ctx context.Context) error {
	reset, err := p.store.ResetStuckProcessing(ctx)
	if err != nil {
		return fmt.Errorf("recover orphaned runs: %w", err)
	}
	if reset > 0 {
		p.logger.Info("rolled back orphaned runs",
			logging.Int64("count", reset),
			logging.String(logging.FieldEventType, "queue_recovered"),
		)
	}
	return nil
}

func (p *Processor) reclaimStale(ctx context.Context) {
	cutoff := time.Now().Add(-staleRunAfter)
	reclaimed, err := p.store.ReclaimStaleProcessing(ctx, cutoff, inFlightStatuses...)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		p.logger.Warn("stale run reclaim failed; stuck runs may remain",
			logging.Error(err),
			logging.String(logging.FieldEventType, "queue_reclaim_failed"),
			logging.String(logging.FieldErrorHint, "check queue database access"),
		)
		return
	}
	if reclaimed > 0 {
		p.logger.Info("reclaimed stale runs", logging.Int64("count", reclaimed))
	}
}

func (p *Processor) drainOnce(ctx context.Context) (Summary, error) {
	var summary Summary
	began := time.Now()
	announced := false

	for {
		if err := ctx.Err(); err != nil {
			summary.Duration = time.Since(began)
			return summary, err
		}
		run, err := p.store.NextForStatuses(ctx, startableStatuses...)
		if err != nil {
			summary.Duration = time.Since(began)
			return summary, fmt.Errorf("fetch next run: %w", err)
		}
		if run == nil {
			break
		}
		if !announced {
			announced = true
			p.announceStart(ctx)
		}
		if _, err := p.pipeline.Execute(ctx, run); err != nil {
			if errors.Is(err, context.Canceled) {
				summary.Failed++
				summary.Duration = time.Since(began)
				return summary, err
			}
			summary.Failed++
			p.ensureFailureRecorded(ctx, run, err)
			continue
		}
		summary.Processed++
	}

	summary.Duration = time.Since(began)
	if announced {
		p.announceDrained(ctx, summary)
	}
	return summary, nil
}

// ensureFailureRecorded guards loop progress: an error raised before any
// stage transition leaves the run startable, and fetching it again next
// iteration would spin forever.
func (p *Processor) ensureFailureRecorded(ctx context.Context, run *queue.Run, execErr error) {
	if run.Status == queue.StatusFailed {
		return
	}
	message := strings.TrimSpace(services.Details(execErr).Message)
	if message == "" {
		message = strings.TrimSpace(execErr.Error())
	}
	run.SetFailed(message)
	if err := p.store.Update(ctx, run); err != nil {
		p.logger.Error("failed to persist run failure",
			logging.Error(err),
			logging.Int64(logging.FieldRunID, run.ID),
			logging.String(logging.FieldEventType, "queue_update_failed"),
			logging.String(logging.FieldErrorHint, "check queue database access"),
		)
	}
}

func (p *Processor) announceStart(ctx context.Context) {
	if p.notifier == nil {
		return
	}
	stats, err := p.store.Stats(ctx)
	if err != nil {
		p.logger.Debug("queue stats unavailable for start notification", logging.Error(err))
		return
	}
	count := 0
	for _, status := range startableStatuses {
		count += stats[status]
	}
	if err := p.notifier.NotifyQueueStarted(ctx, count); err != nil {
		p.logger.Debug("queue start notification failed", logging.Error(err))
	}
}

func (p *Processor) announceDrained(ctx context.Context, summary Summary) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.NotifyQueueDrained(ctx, summary.Processed, summary.Failed, summary.Duration); err != nil {
		p.logger.Debug("queue drained notification failed", logging.Error(err))
	}
}
