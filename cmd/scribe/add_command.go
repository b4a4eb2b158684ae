package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"scribe/internal/queue"
)

func newAddCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "add <url>...",
		Short: "Queue video URLs for later processing",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *queue.Store) error {
				out := cmd.OutOrStdout()
				for _, raw := range args {
					run, err := submitSource(cmd.Context(), cfg, store, raw, force)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Queued %s as run #%d\n", run.SourceURL, run.ID)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Queue even if the URL was already processed")
	return cmd
}
