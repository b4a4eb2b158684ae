package stageexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
	"unicode"

	"scribe/internal/logging"
	"scribe/internal/notifications"
	"scribe/internal/queue"
	"scribe/internal/services"
	"scribe/internal/stage"
)

// Handler is the stage contract used by the execution helper.
type Handler interface {
	Prepare(context.Context, *queue.Run) error
	Execute(context.Context, *queue.Run) error
}

// Options controls stage execution and queue persistence behavior.
type Options struct {
	Logger     *slog.Logger
	Store      *queue.Store
	Notifier   notifications.Service
	Handler    Handler
	StageName  string
	Processing queue.Status
	Done       queue.Status
	Run        *queue.Run

	// Timeout bounds Prepare and Execute together. Zero disables the bound.
	Timeout time.Duration

	// Output, when set, names the artifact the stage must leave behind.
	// Execute succeeding without that file present and non-empty fails the run.
	Output func() string
}

// Run executes a stage and applies the queue transition semantics shared by
// one-shot and queue-drain workflows.
func Run(ctx context.Context, opts Options) error {
	if opts.Handler == nil {
		return fmt.Errorf("stage handler unavailable: %s", opts.StageName)
	}
	if opts.Store == nil {
		return fmt.Errorf("queue store is required")
	}
	if opts.Run == nil {
		return fmt.Errorf("queue run is required")
	}

	stageCtx := services.WithStage(services.WithRunID(ctx, opts.Run.ID), opts.StageName)
	stageLogger := logging.WithContext(stageCtx, opts.Logger)
	if aware, ok := opts.Handler.(stage.LoggerAware); ok {
		aware.SetLogger(stageLogger)
	}

	stageLogger.Info(
		"stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("processing_status", string(opts.Processing)),
		logging.String("source_url", strings.TrimSpace(opts.Run.SourceURL)),
		logging.String("title", strings.TrimSpace(opts.Run.Title)),
	)

	setRunProcessingState(opts.Run, opts.Processing)
	if err := opts.Store.Update(stageCtx, opts.Run); err != nil {
		return fmt.Errorf("persist processing transition: %w", err)
	}

	// Persistence keeps using stageCtx so a stage timeout cannot block the
	// failure record from being written.
	execCtx := stageCtx
	cancel := func() {}
	if opts.Timeout > 0 {
		execCtx, cancel = context.WithTimeout(stageCtx, opts.Timeout)
	}
	defer cancel()

	if err := opts.Handler.Prepare(execCtx, opts.Run); err != nil {
		return handleFailure(stageCtx, stageLogger, opts.Store, opts.Notifier, opts.Run, mapTimeout(opts.StageName, opts.Timeout, execCtx, err))
	}
	if err := opts.Store.Update(stageCtx, opts.Run); err != nil {
		return fmt.Errorf("persist stage preparation: %w", err)
	}

	if err := opts.Handler.Execute(execCtx, opts.Run); err != nil {
		err = mapTimeout(opts.StageName, opts.Timeout, execCtx, err)
		// Shutdown cancellation is not a stage failure: the caller decides
		// whether to mark the run interrupted or leave it for recovery.
		if errors.Is(err, context.Canceled) && stageCtx.Err() != nil {
			stageLogger.Debug("stage interrupted by shutdown")
			return err
		}
		return handleFailure(stageCtx, stageLogger, opts.Store, opts.Notifier, opts.Run, err)
	}

	if opts.Output != nil {
		if err := verifyDeclaredOutput(opts.StageName, opts.Output()); err != nil {
			return handleFailure(stageCtx, stageLogger, opts.Store, opts.Notifier, opts.Run, err)
		}
	}

	if opts.Run.Status == opts.Processing || opts.Run.Status == "" {
		opts.Run.Status = opts.Done
	}
	opts.Run.LastHeartbeat = nil
	if err := opts.Store.Update(stageCtx, opts.Run); err != nil {
		return fmt.Errorf("persist stage result: %w", err)
	}

	stageLogger.Info(
		"stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("next_status", string(opts.Run.Status)),
		logging.String("progress_stage", strings.TrimSpace(opts.Run.ProgressStage)),
		logging.String("progress_message", strings.TrimSpace(opts.Run.ProgressMessage)),
	)

	return nil
}

func handleFailure(ctx context.Context, logger *slog.Logger, store *queue.Store, notifier notifications.Service, run *queue.Run, stageErr error) error {
	message := "stage failed"
	if stageErr != nil {
		details := services.Details(stageErr)
		message = strings.TrimSpace(details.Message)
		if message == "" {
			message = strings.TrimSpace(stageErr.Error())
		}
	}
	run.SetFailed(message)

	logger.Error(
		"stage failed",
		logging.String(logging.FieldEventType, "stage_failure"),
		logging.String("resolved_status", string(queue.StatusFailed)),
		logging.String("error_message", message),
		logging.Error(stageErr),
	)
	if err := store.Update(ctx, run); err != nil {
		logger.Error("failed to persist stage failure", logging.Error(err))
	}

	if notifier != nil && stageErr != nil {
		if err := notifier.NotifyRunFailed(ctx, run.DisplayTitle(), stageErr); err != nil {
			logger.Debug("stage error notification failed", logging.Error(err))
		}
	}

	return stageErr
}

// mapTimeout converts a deadline overrun from the executor-managed timeout
// into the timeout classification stages use everywhere else. The exec
// context is consulted because a context-killed subprocess surfaces as a
// plain exit error rather than one wrapping the deadline.
func mapTimeout(stageName string, timeout time.Duration, execCtx context.Context, err error) error {
	if err == nil || errors.Is(err, services.ErrTimeout) {
		return err
	}
	if !errors.Is(err, context.DeadlineExceeded) && !errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		return err
	}
	message := "stage timed out"
	if timeout > 0 {
		message = fmt.Sprintf("stage timed out after %s", timeout)
	}
	return services.Wrap(services.ErrTimeout, stageName, "execute", message, err)
}

func verifyDeclaredOutput(stageName, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return services.Wrap(services.ErrMissingOutput, stageName, "verify output", "stage did not record an output artifact", nil)
	}
	info, err := os.Stat(path)
	if err != nil {
		return services.Wrap(services.ErrMissingOutput, stageName, "verify output", fmt.Sprintf("expected output %s is missing", path), err)
	}
	if info.Size() == 0 {
		return services.Wrap(services.ErrMissingOutput, stageName, "verify output", fmt.Sprintf("expected output %s is empty", path), nil)
	}
	return nil
}

func setRunProcessingState(run *queue.Run, processing queue.Status) {
	now := time.Now().UTC()
	run.Status = processing
	label := deriveStageLabel(processing)
	if run.ProgressStage == "" {
		run.ProgressStage = label
	}
	if run.ProgressMessage == "" {
		run.ProgressMessage = fmt.Sprintf("%s started", label)
	}
	run.ProgressPercent = 0
	run.ErrorMessage = ""
	run.LastHeartbeat = &now
}

func deriveStageLabel(status queue.Status) string {
	if status == "" {
		return ""
	}
	parts := strings.Fields(strings.ReplaceAll(string(status), "_", " "))
	for i, part := range parts {
		if part == "" {
			continue
		}
		runes := []rune(strings.ToLower(part))
		runes[0] = unicode.ToUpper(runes[0])
		parts[i] = string(runes)
	}
	return strings.Join(parts, " ")
}
