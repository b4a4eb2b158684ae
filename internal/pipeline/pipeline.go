package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"scribe/internal/config"
	"scribe/internal/emitting"
	"scribe/internal/fetching"
	"scribe/internal/logging"
	"scribe/internal/notifications"
	"scribe/internal/queue"
	"scribe/internal/resolving"
	"scribe/internal/services"
	"scribe/internal/stage"
	"scribe/internal/stageexec"
	"scribe/internal/transcoding"
	"scribe/internal/transcribing"
	"scribe/internal/workspace"
)

// heartbeatInterval is how often an in-flight run refreshes its heartbeat so
// queue listings and the stale-run reclaimer can tell live work from runs
// orphaned by a dead process.
const heartbeatInterval = 15 * time.Second

// Error reports which stage a run failed in.
type Error struct {
	Stage string
	Err   error
}

func (e *Error) Error() string {
	if e == nil {
		return "pipeline error"
	}
	if e.Err == nil {
		return fmt.Sprintf("%s stage failed", e.Stage)
	}
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Result carries the published transcript of a completed run.
type Result struct {
	TranscriptPath string
	Text           string
}

// binding ties a stage handler to its queue transitions and execution policy.
type binding struct {
	name       string
	handler    stage.Handler
	start      queue.Status
	processing queue.Status
	done       queue.Status
	timeout    time.Duration
	output     func(*queue.Run) string
}

// Pipeline drives a run through resolve, fetch, transcode, transcribe, and
// emit in order, resuming from whatever stage the run last completed.
type Pipeline struct {
	cfg      *config.Config
	store    *queue.Store
	logger   *slog.Logger
	notifier notifications.Service
	stages   []binding
}

// New constructs the pipeline with the standard stage handlers.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Pipeline {
	return NewWithNotifier(cfg, store, logger, notifications.NewService(cfg))
}

// NewWithNotifier constructs the pipeline with a caller-supplied notifier.
func NewWithNotifier(cfg *config.Config, store *queue.Store, logger *slog.Logger, notifier notifications.Service) *Pipeline {
	p := &Pipeline{
		cfg:      cfg,
		store:    store,
		logger:   logging.NewComponentLogger(logger, "pipeline"),
		notifier: notifier,
	}
	p.stages = []binding{
		{
			name:       "resolving",
			handler:    resolving.NewResolver(cfg, store, logger),
			start:      queue.StatusPending,
			processing: queue.StatusResolving,
			done:       queue.StatusResolved,
		},
		{
			name:       "fetching",
			handler:    fetching.NewFetcher(cfg, store, logger),
			start:      queue.StatusResolved,
			processing: queue.StatusFetching,
			done:       queue.StatusFetched,
			output:     func(r *queue.Run) string { return r.MediaFile },
		},
		{
			name:       "transcoding",
			handler:    transcoding.NewTranscoder(cfg, store, logger),
			start:      queue.StatusFetched,
			processing: queue.StatusTranscoding,
			done:       queue.StatusTranscoded,
			timeout:    time.Duration(cfg.Transcoder.TimeoutSeconds) * time.Second,
			output:     func(r *queue.Run) string { return r.AudioFile },
		},
		{
			name:       "transcribing",
			handler:    transcribing.NewTranscriber(cfg, store, logger),
			start:      queue.StatusTranscoded,
			processing: queue.StatusTranscribing,
			done:       queue.StatusTranscribed,
			timeout:    time.Duration(cfg.Transcriber.TimeoutSeconds) * time.Second,
			output:     func(r *queue.Run) string { return r.TranscriptFile },
		},
		{
			name:       "emitting",
			handler:    emitting.NewEmitter(cfg, store, logger),
			start:      queue.StatusTranscribed,
			processing: queue.StatusEmitting,
			done:       queue.StatusCompleted,
			output:     func(r *queue.Run) string { return r.FinalFile },
		},
	}
	return p
}

// Health reports the readiness of every stage in execution order.
func (p *Pipeline) Health(ctx context.Context) []stage.Health {
	if p == nil {
		return nil
	}
	checks := make([]stage.Health, 0, len(p.stages))
	for _, st := range p.stages {
		checks = append(checks, st.handler.HealthCheck(ctx))
	}
	return checks
}

// Execute drives the run from its current status to completion and returns
// the published transcript. Terminal and in-flight statuses are rejected;
// runs orphaned mid-stage by a crash are rolled back by queue recovery
// before a drainer hands them back in.
func (p *Pipeline) Execute(ctx context.Context, run *queue.Run) (Result, error) {
	if p == nil || p.cfg == nil || p.store == nil {
		return Result{}, services.Wrap(services.ErrConfiguration, "pipeline", "execute", "Pipeline is not configured", nil)
	}
	if run == nil {
		return Result{}, services.Wrap(services.ErrValidation, "pipeline", "execute", "No run provided", nil)
	}

	switch {
	case run.Status == queue.StatusCompleted:
		return p.publishedResult(run)
	case run.Status == queue.StatusFailed:
		return Result{}, services.Wrap(services.ErrValidation, "pipeline", "execute",
			fmt.Sprintf("Run %d already failed; retry it to reprocess", run.ID), nil)
	case queue.IsProcessingStatus(run.Status):
		return Result{}, services.Wrap(services.ErrValidation, "pipeline", "execute",
			fmt.Sprintf("Run %d is mid-stage (%s); recover the queue before reprocessing", run.ID, run.Status), nil)
	}

	start := -1
	for i, st := range p.stages {
		if st.start == run.Status {
			start = i
			break
		}
	}
	if start == -1 {
		return Result{}, services.Wrap(services.ErrValidation, "pipeline", "execute",
			fmt.Sprintf("No stage accepts runs with status %q", run.Status), nil)
	}

	runCtx := services.WithRunID(ctx, run.ID)
	logger := logging.WithContext(runCtx, p.logger)

	if err := p.ensureWorkspace(runCtx, run); err != nil {
		return Result{}, err
	}

	began := time.Now()
	logger.Info("run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.String("source_url", strings.TrimSpace(run.SourceURL)),
		logging.String("status", string(run.Status)),
	)

	failedStage, err := p.runStages(runCtx, run, p.stages[start:])
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			p.markInterrupted(runCtx, run, logger)
			return Result{}, err
		}
		p.cleanupWorkspace(run, logger, p.cfg.Workflow.RetainFailedWorkspaces)
		return Result{}, &Error{Stage: failedStage, Err: err}
	}

	result, err := p.publishedResult(run)
	if err != nil {
		return Result{}, err
	}

	p.cleanupWorkspace(run, logger, p.cfg.Workflow.KeepWorkspaces)

	logger.Info("run completed",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.String("transcript", result.TranscriptPath),
		logging.Duration("run_duration", time.Since(began)),
	)

	if p.notifier != nil {
		if nerr := p.notifier.NotifyRunCompleted(runCtx, run.DisplayTitle(), run.FinalFile); nerr != nil {
			logger.Debug("run completion notification failed", logging.Error(nerr))
		}
	}

	return result, nil
}

// runStages executes the remaining stages in order while a background loop
// keeps the run's heartbeat fresh. Returns the name of the failing stage
// alongside its error.
func (p *Pipeline) runStages(ctx context.Context, run *queue.Run, stages []binding) (string, error) {
	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go p.heartbeatLoop(hbCtx, &hbWG, run.ID)
	defer func() {
		hbCancel()
		hbWG.Wait()
	}()

	for _, st := range stages {
		var output func() string
		if st.output != nil {
			bound := st.output
			output = func() string { return bound(run) }
		}
		err := stageexec.Run(ctx, stageexec.Options{
			Logger:     p.logger,
			Store:      p.store,
			Notifier:   p.notifier,
			Handler:    st.handler,
			StageName:  st.name,
			Processing: st.processing,
			Done:       st.done,
			Run:        run,
			Timeout:    st.timeout,
			Output:     output,
		})
		if err != nil {
			return st.name, err
		}
	}
	return "", nil
}

func (p *Pipeline) heartbeatLoop(ctx context.Context, wg *sync.WaitGroup, runID int64) {
	defer wg.Done()
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.store.UpdateHeartbeat(ctx, runID); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				p.logger.Warn("heartbeat update failed", logging.Error(err))
			}
		}
	}
}

// ensureWorkspace creates the run directory on first execution. A pending
// run whose previously recorded workspace disappeared gets a fresh one; for
// later stages the prior artifacts are gone too, so the stage surfaces the
// missing workspace as a storage failure instead.
func (p *Pipeline) ensureWorkspace(ctx context.Context, run *queue.Run) error {
	if path := strings.TrimSpace(run.WorkspacePath); path != "" {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
		if run.Status != queue.StatusPending {
			return nil
		}
	}
	ws, err := workspace.NewManager(p.cfg).CreateRun(ctx)
	if err != nil {
		return err
	}
	run.WorkspacePath = ws.Root
	if err := p.store.Update(ctx, run); err != nil {
		return fmt.Errorf("persist workspace path: %w", err)
	}
	return nil
}

func (p *Pipeline) publishedResult(run *queue.Run) (Result, error) {
	path := strings.TrimSpace(run.FinalFile)
	if path == "" {
		return Result{}, services.Wrap(services.ErrMissingOutput, "pipeline", "collect result", "Run has no published transcript recorded", nil)
	}
	text, err := os.ReadFile(path)
	if err != nil {
		return Result{}, services.Wrap(services.ErrStorage, "pipeline", "collect result", "Published transcript is unreadable", err)
	}
	return Result{TranscriptPath: path, Text: string(text)}, nil
}

// markInterrupted records a shutdown that cut a run off mid-stage. The
// persistence uses a detached context because the run context is already
// cancelled by the time this executes.
func (p *Pipeline) markInterrupted(ctx context.Context, run *queue.Run, logger *slog.Logger) {
	run.SetFailed(queue.InterruptedReason)
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := p.store.Update(persistCtx, run); err != nil {
		logger.Warn("failed to record interrupted run",
			logging.Error(err),
			logging.String(logging.FieldEventType, "run_interrupt_unrecorded"),
			logging.String(logging.FieldErrorHint, "the run will be rolled back on the next queue recovery"),
		)
		return
	}
	logger.Info("run interrupted by shutdown", logging.String(logging.FieldEventType, "run_interrupted"))
}

func (p *Pipeline) cleanupWorkspace(run *queue.Run, logger *slog.Logger, keep bool) {
	ws, err := workspace.Attach(run.WorkspacePath)
	if err != nil {
		logger.Debug("workspace unavailable for cleanup", logging.Error(err))
		return
	}
	ws.Cleanup(keep, logger)
}
