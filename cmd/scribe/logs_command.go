package main

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"scribe/internal/logging"
	"scribe/internal/logs"
)

const logFollowInterval = 500 * time.Millisecond

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lineCount int
	var follow bool

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent log output",
		Long: `Logs prints the tail of scribe.log, where every command records its
pipeline activity. With --follow, it keeps polling for new lines until
interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := logging.FilePath(cfg)
			if path == "" {
				return errors.New("log directory is not configured (set paths.log_dir)")
			}

			out := cmd.OutOrStdout()
			lines, offset, err := logs.ReadLast(path, lineCount)
			if err != nil {
				return err
			}
			for _, line := range lines {
				fmt.Fprintln(out, line)
			}

			if !follow {
				if len(lines) == 0 {
					fmt.Fprintln(out, "No log output yet")
				}
				return nil
			}

			followCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			ticker := time.NewTicker(logFollowInterval)
			defer ticker.Stop()
			for {
				select {
				case <-followCtx.Done():
					return nil
				case <-ticker.C:
					fresh, next, err := logs.ReadFrom(path, offset)
					if err != nil {
						return err
					}
					for _, line := range fresh {
						fmt.Fprintln(out, line)
					}
					offset = next
				}
			}
		},
	}

	cmd.Flags().IntVarP(&lineCount, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines until interrupted")
	return cmd
}
