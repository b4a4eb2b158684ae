package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"scribe/internal/queue"
	"scribe/internal/workspace"
)

func newCleanCommand(ctx *commandContext) *cobra.Command {
	var maxAge time.Duration
	var orphaned bool
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove leftover run workspaces",
		Long: `Clean removes run workspace directories left behind by interrupted or
retained runs.

By default, directories older than --max-age are removed. With --orphaned,
directories no queue run references are removed instead, regardless of age.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := newFileLogger(cfg)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			workspaceDir := cfg.Paths.WorkspaceDir

			if orphaned {
				return ctx.withStore(func(store *queue.Store) error {
					active, err := activeWorkspaceNames(cmd.Context(), store)
					if err != nil {
						return err
					}
					if dryRun {
						return printCleanPreview(out, workspaceDir, "orphaned workspace", func(dir workspace.DirInfo) bool {
							_, live := active[dir.Name]
							return !live
						})
					}
					printCleanResult(out, workspace.CleanOrphaned(cmd.Context(), workspaceDir, active, logger), "orphaned workspace")
					return nil
				})
			}

			if dryRun {
				cutoff := time.Now().Add(-maxAge)
				return printCleanPreview(out, workspaceDir, "stale workspace", func(dir workspace.DirInfo) bool {
					return dir.ModTime.Before(cutoff)
				})
			}
			printCleanResult(out, workspace.CleanStale(cmd.Context(), workspaceDir, maxAge, logger), "stale workspace")
			return nil
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", 72*time.Hour, "Remove workspaces older than this age")
	cmd.Flags().BoolVar(&orphaned, "orphaned", false, "Remove workspaces no queue run references instead")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List what would be removed without removing anything")
	return cmd
}

// activeWorkspaceNames collects the workspace directory names still attached
// to queue runs, whatever their status. Completed and failed runs keep their
// record, so their retained workspaces are not orphans.
func activeWorkspaceNames(ctx context.Context, store *queue.Store) (map[string]struct{}, error) {
	runs, err := store.List(ctx)
	if err != nil {
		return nil, err
	}
	active := make(map[string]struct{}, len(runs))
	for _, run := range runs {
		if name := workspaceBaseName(run.WorkspacePath); name != "" {
			active[name] = struct{}{}
		}
	}
	return active, nil
}

func printCleanPreview(out io.Writer, workspaceDir, label string, matches func(workspace.DirInfo) bool) error {
	dirs, err := workspace.ListDirectories(workspaceDir)
	if err != nil {
		return fmt.Errorf("list workspace directories: %w", err)
	}

	var totalSize int64
	rows := make([][]string, 0, len(dirs))
	for _, dir := range dirs {
		if !matches(dir) {
			continue
		}
		age := time.Since(dir.ModTime).Truncate(time.Minute)
		totalSize += dir.Size
		rows = append(rows, []string{dir.Name, formatDuration(age), humanize.Bytes(uint64(dir.Size))})
	}

	if len(rows) == 0 {
		fmt.Fprintf(out, "No %s directories to clean\n", label)
		return nil
	}

	table := renderTable(
		[]string{"Workspace", "Age", "Size"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight},
	)
	fmt.Fprintln(out, table)
	fmt.Fprintf(out, "\nWould remove %d %s directories (%s)\n", len(rows), label, humanize.Bytes(uint64(totalSize)))
	return nil
}

func printCleanResult(out io.Writer, result workspace.CleanStaleResult, label string) {
	if len(result.Removed) == 0 && len(result.Errors) == 0 {
		fmt.Fprintf(out, "No %s directories to clean\n", label)
		return
	}
	if len(result.Errors) > 0 {
		fmt.Fprintf(out, "Removed %d %s directories, %d errors\n", len(result.Removed), label, len(result.Errors))
		for _, e := range result.Errors {
			fmt.Fprintf(out, "  Error: %s: %v\n", e.Path, e.Error)
		}
		return
	}
	fmt.Fprintf(out, "Removed %d %s directories\n", len(result.Removed), label)
}
