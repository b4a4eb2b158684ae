package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"scribe/internal/logging"
	"scribe/internal/pipeline"
	"scribe/internal/queue"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Process queued runs through the pipeline",
		Long: `Process drains pending runs sequentially through the pipeline.

With --watch, scribe keeps polling the queue at the configured interval
until interrupted. A file lock ensures only one drainer runs at a time;
runs orphaned by a killed process are reset on startup.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return err
			}

			lock := flock.New(processLockPath(cfg))
			locked, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire process lock: %w", err)
			}
			if !locked {
				return errors.New("another scribe process is already running")
			}
			defer func() {
				_ = lock.Unlock()
			}()

			procCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return ctx.withStore(func(store *queue.Store) error {
				proc := pipeline.NewProcessor(cfg, store, logger)
				out := cmd.OutOrStdout()

				if watch {
					err := proc.Watch(procCtx)
					if errors.Is(err, context.Canceled) {
						fmt.Fprintln(out, "Watch stopped")
						return nil
					}
					return err
				}

				summary, err := proc.Drain(procCtx)
				if err != nil {
					return err
				}
				if summary.Processed == 0 && summary.Failed == 0 {
					fmt.Fprintln(out, "No pending runs")
					return nil
				}
				fmt.Fprintf(out, "Processed %d runs (%d failed) in %s\n",
					summary.Processed+summary.Failed, summary.Failed, summary.Duration.Round(time.Second))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "Keep polling for new runs until interrupted")
	return cmd
}
