package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/pipeline"
	"scribe/internal/queue"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "run <url>",
		Short: "Transcribe a video URL and print the transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			logger, err := newFileLogger(cfg)
			if err != nil {
				return err
			}

			lock := flock.New(processLockPath(cfg))
			locked, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire process lock: %w", err)
			}
			if !locked {
				return errors.New("another scribe process is already running; queue the URL with `scribe add` instead")
			}
			defer func() {
				_ = lock.Unlock()
			}()

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return ctx.withStore(func(store *queue.Store) error {
				run, err := submitSource(runCtx, cfg, store, args[0], force)
				if err != nil {
					return err
				}

				result, err := pipeline.New(cfg, store, logger).Execute(runCtx, run)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprint(out, result.Text)
				if !strings.HasSuffix(result.Text, "\n") {
					fmt.Fprintln(out)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Transcribe even if the URL was already processed")
	return cmd
}

// newFileLogger builds a logger that writes only to scribe.log. The run
// command owns stdout for the transcript and stderr for its final
// diagnostic line, so log records stay out of both streams.
func newFileLogger(cfg *config.Config) (*slog.Logger, error) {
	logPath := logging.FilePath(cfg)
	if logPath == "" {
		return logging.NewNop(), nil
	}
	return logging.New(logging.Options{
		Level:            cfg.Logging.Level,
		Format:           "json",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
}

func processLockPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.LogDir, "scribe.lock")
}
