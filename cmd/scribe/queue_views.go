package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"scribe/internal/queue"
)

func buildQueueStatusRows(stats map[string]int) [][]string {
	if len(stats) == 0 {
		return nil
	}
	keys := make([]string, 0, len(stats))
	for key := range stats {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	rows := make([][]string, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, []string{formatStatusLabel(key), fmt.Sprintf("%d", stats[key])})
	}
	return rows
}

func buildQueueListRows(runs []*queue.Run) [][]string {
	if len(runs) == 0 {
		return nil
	}
	sorted := make([]*queue.Run, len(runs))
	copy(sorted, runs)

	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].ID > sorted[j].ID
		}
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	rows := make([][]string, 0, len(sorted))
	for _, run := range sorted {
		rows = append(rows, []string{
			fmt.Sprintf("%d", run.ID),
			run.DisplayTitle(),
			formatStatusLabel(string(run.Status)),
			formatDisplayTime(run.CreatedAt),
			formatRunProgress(run),
		})
	}
	return rows
}

func formatStatusLabel(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return ""
	}
	parts := strings.Split(status, "_")
	for i, part := range parts {
		lower := strings.ToLower(part)
		if lower == "" {
			continue
		}
		parts[i] = strings.ToUpper(lower[:1]) + lower[1:]
	}
	return strings.Join(parts, " ")
}

func formatDisplayTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format("2006-01-02 15:04")
}

func formatRunProgress(run *queue.Run) string {
	if run == nil {
		return "-"
	}
	stage := strings.TrimSpace(run.ProgressStage)
	if stage == "" {
		return "-"
	}
	if run.ProgressPercent > 0 {
		return fmt.Sprintf("%s %.0f%%", stage, run.ProgressPercent)
	}
	return stage
}
