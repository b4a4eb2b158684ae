package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"scribe/internal/deps"
	"scribe/internal/logging"
	"scribe/internal/pipeline"
	"scribe/internal/preflight"
	"scribe/internal/queue"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify directories, dependencies, and resolver reachability",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)
			failures := 0

			for _, line := range renderSectionHeader("System Checks", colorize) {
				fmt.Fprintln(stdout, line)
			}
			for _, result := range preflight.RunAll(cmd.Context(), cfg) {
				kind := statusOK
				if !result.Passed {
					kind = statusError
					failures++
				}
				fmt.Fprintln(stdout, renderStatusLine(result.Name, kind, result.Detail, colorize))
			}
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Dependencies", colorize) {
				fmt.Fprintln(stdout, line)
			}
			statuses := preflight.CheckSystemDeps(cfg)
			failures += countRequiredMissing(statuses)
			for _, line := range dependencyLines(statuses, colorize) {
				fmt.Fprintln(stdout, line)
			}
			fmt.Fprintln(stdout)

			return ctx.withStore(func(store *queue.Store) error {
				for _, line := range renderSectionHeader("Pipeline Stages", colorize) {
					fmt.Fprintln(stdout, line)
				}
				pipe := pipeline.New(cfg, store, logging.NewNop())
				for _, health := range pipe.Health(cmd.Context()) {
					kind := statusOK
					detail := "Ready"
					if !health.Ready {
						kind = statusError
						detail = health.Detail
						failures++
					}
					fmt.Fprintln(stdout, renderStatusLine(health.Name, kind, detail, colorize))
				}
				fmt.Fprintln(stdout)

				for _, line := range renderSectionHeader("Queue Status", colorize) {
					fmt.Fprintln(stdout, line)
				}
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
					fmt.Fprintln(stdout, "Queue is empty")
				} else {
					fmt.Fprintln(stdout, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
				}

				if failures > 0 {
					return fmt.Errorf("%d checks failed", failures)
				}
				return nil
			})
		},
	}
}

func dependencyLines(statuses []deps.Status, colorize bool) []string {
	lines := make([]string, 0, len(statuses)+1)
	missing := make([]string, 0)
	for _, dep := range statuses {
		if dep.Available {
			message := "Ready"
			if dep.Command != "" {
				message = fmt.Sprintf("Ready (command: %s)", dep.Command)
			} else if dep.Detail != "" {
				message = dep.Detail
			}
			lines = append(lines, renderStatusLine(dep.Name, statusOK, message, colorize))
			continue
		}

		detail := strings.TrimSpace(dep.Detail)
		if detail == "" {
			detail = "not available"
		}
		kind := statusError
		if dep.Optional {
			kind = statusWarn
		}
		lines = append(lines, renderStatusLine(dep.Name, kind, detail, colorize))
		missing = append(missing, dep.Name)
	}
	if len(missing) > 0 {
		lines = append(lines, renderStatusLine("Missing dependencies", statusWarn, strings.Join(missing, ", "), colorize))
	}
	return lines
}

func countRequiredMissing(statuses []deps.Status) int {
	count := 0
	for _, dep := range statuses {
		if !dep.Available && !dep.Optional {
			count++
		}
	}
	return count
}
