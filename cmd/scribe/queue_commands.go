package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"scribe/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the run queue",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueRemoveCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	queueCmd.AddCommand(newQueueHealthCommand(ctx))

	return queueCmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show run counts per status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}

				stringStats := make(map[string]int, len(stats))
				for status, count := range stats {
					stringStats[string(status)] = count
				}
				rows := buildQueueStatusRows(stringStats)
				if len(rows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				table := renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := parseStatusFilters(listStatuses)
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *queue.Store) error {
				runs, err := store.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if len(runs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}

				table := renderTable(
					[]string{"ID", "Title", "Status", "Created", "Progress"},
					buildQueueListRows(runs),
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by run status (repeatable)")
	return cmd
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show the details of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *queue.Store) error {
				run, err := store.GetByID(cmd.Context(), ids[0])
				if err != nil {
					return err
				}
				if run == nil {
					return fmt.Errorf("run %d not found", ids[0])
				}
				printRunDetails(cmd.OutOrStdout(), run)
				return nil
			})
		},
	}
}

func printRunDetails(out io.Writer, run *queue.Run) {
	fmt.Fprintf(out, "Run #%d\n", run.ID)
	printDetail(out, "Title", run.DisplayTitle())
	printDetail(out, "Source URL", run.SourceURL)
	printDetail(out, "Status", formatStatusLabel(string(run.Status)))
	printDetail(out, "Created", fmt.Sprintf("%s (%s)", formatDisplayTime(run.CreatedAt), humanize.Time(run.CreatedAt)))
	printDetail(out, "Updated", fmt.Sprintf("%s (%s)", formatDisplayTime(run.UpdatedAt), humanize.Time(run.UpdatedAt)))
	if progress := formatRunProgress(run); progress != "-" {
		if msg := strings.TrimSpace(run.ProgressMessage); msg != "" {
			progress += " - " + msg
		}
		printDetail(out, "Progress", progress)
	}
	printDetail(out, "Media URL", run.MediaURL)
	printDetail(out, "Workspace", run.WorkspacePath)
	printDetail(out, "Media file", run.MediaFile)
	printDetail(out, "Audio file", run.AudioFile)
	transcript := run.FinalFile
	if transcript == "" {
		transcript = run.TranscriptFile
	}
	printDetail(out, "Transcript", transcript)
	printDetail(out, "Thumbnail", run.ThumbnailFile)
	printDetail(out, "Error", run.ErrorMessage)
}

func printDetail(out io.Writer, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	fmt.Fprintf(out, "  %-12s %s\n", label+":", value)
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [id...]",
		Short: "Retry failed runs",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *queue.Store) error {
				out := cmd.OutOrStdout()
				if len(ids) == 0 {
					updated, err := store.RetryFailed(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Retried %d failed runs\n", updated)
					return nil
				}

				for _, id := range ids {
					run, err := store.GetByID(cmd.Context(), id)
					if err != nil {
						return err
					}
					switch {
					case run == nil:
						fmt.Fprintf(out, "Run %d not found\n", id)
					case run.Status != queue.StatusFailed:
						fmt.Fprintf(out, "Run %d is not in failed state\n", id)
					default:
						if _, err := store.RetryFailed(cmd.Context(), id); err != nil {
							return err
						}
						fmt.Fprintf(out, "Run %d reset for retry\n", id)
					}
				}
				return nil
			})
		},
	}
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>...",
		Short: "Remove runs from the queue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *queue.Store) error {
				out := cmd.OutOrStdout()
				for _, id := range ids {
					removed, err := store.Remove(cmd.Context(), id)
					if err != nil {
						return err
					}
					if removed {
						fmt.Fprintf(out, "Run %d removed\n", id)
					} else {
						fmt.Fprintf(out, "Run %d not found\n", id)
					}
				}
				return nil
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var clearCompleted bool
	var clearFailed bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove runs in bulk",
		RunE: func(cmd *cobra.Command, args []string) error {
			if clearCompleted && clearFailed {
				return errors.New("specify only one of --completed or --failed")
			}
			return ctx.withStore(func(store *queue.Store) error {
				out := cmd.OutOrStdout()
				var removed int64
				var err error
				switch {
				case clearCompleted:
					removed, err = store.ClearCompleted(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Cleared %d completed runs\n", removed)
				case clearFailed:
					removed, err = store.ClearFailed(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Cleared %d failed runs\n", removed)
				default:
					removed, err = store.Clear(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Cleared %d queue runs\n", removed)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&clearCompleted, "completed", false, "Remove only completed runs")
	cmd.Flags().BoolVar(&clearFailed, "failed", false, "Remove only failed runs")
	return cmd
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check queue database health (schema, integrity, columns)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				health, err := store.CheckHealth(cmd.Context())
				if err != nil && health.Error == "" {
					health.Error = err.Error()
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Database path: %s\n", health.DBPath)
				fmt.Fprintf(out, "Database exists: %s\n", yesNo(health.DatabaseExists))
				fmt.Fprintf(out, "Readable: %s\n", yesNo(health.DatabaseReadable))
				fmt.Fprintf(out, "Schema version: %s\n", health.SchemaVersion)
				fmt.Fprintf(out, "runs table present: %s\n", yesNo(health.TableExists))
				if len(health.ColumnsPresent) > 0 {
					cols := append([]string(nil), health.ColumnsPresent...)
					sort.Strings(cols)
					fmt.Fprintf(out, "Columns: %s\n", strings.Join(cols, ", "))
				}
				if len(health.MissingColumns) > 0 {
					missing := append([]string(nil), health.MissingColumns...)
					sort.Strings(missing)
					fmt.Fprintf(out, "Missing columns: %s\n", strings.Join(missing, ", "))
				} else {
					fmt.Fprintln(out, "Missing columns: none")
				}
				fmt.Fprintf(out, "Integrity check: %s\n", yesNo(health.IntegrityCheck))
				fmt.Fprintf(out, "Total runs: %d\n", health.TotalRuns)
				if health.Error != "" {
					fmt.Fprintf(out, "Error: %s\n", health.Error)
				}
				return nil
			})
		},
	}
}

func parseStatusFilters(values []string) ([]queue.Status, error) {
	statuses := make([]queue.Status, 0, len(values))
	for _, value := range values {
		status, ok := queue.ParseStatus(value)
		if !ok {
			names := make([]string, 0, len(queue.AllStatuses()))
			for _, s := range queue.AllStatuses() {
				names = append(names, string(s))
			}
			return nil, fmt.Errorf("unknown status %q (valid: %s)", value, strings.Join(names, ", "))
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}
