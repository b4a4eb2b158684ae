package queue

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// rollbackCase builds the CASE expression that maps each in-flight status
// back to the completed status preceding it, per stageRollbackTransitions.
func rollbackCase(transitions []statusTransition) (string, []any) {
	var sb strings.Builder
	args := make([]any, 0, len(transitions)*2)
	sb.WriteString("CASE status")
	for _, tr := range transitions {
		sb.WriteString(" WHEN ? THEN ?")
		args = append(args, tr.from, tr.to)
	}
	sb.WriteString(" ELSE status END")
	return sb.String(), args
}

// ResetStuckProcessing resets runs in processing states back to the start of
// their current stage. Used on startup to recover runs orphaned by a crash.
func (s *Store) ResetStuckProcessing(ctx context.Context) (int64, error) {
	transitions := processingRollbackTransitions()
	caseExpr, args := rollbackCase(transitions)

	placeholders := makePlaceholders(len(transitions))
	args = append(args, time.Now().UTC().Format(time.RFC3339Nano))
	for _, tr := range transitions {
		args = append(args, tr.from)
	}

	query := `UPDATE runs
         SET status = ` + caseExpr + `,
             progress_stage = 'Reset from stuck processing',
             progress_percent = 0, progress_message = NULL, last_heartbeat = NULL, updated_at = ?
         WHERE status IN (` + placeholders + `)`
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("reset stuck runs: %w", err)
	}
	return res.RowsAffected()
}

// UpdateHeartbeat updates the last heartbeat timestamp for an in-flight run.
func (s *Store) UpdateHeartbeat(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE runs SET last_heartbeat = ?, updated_at = ? WHERE id = ?`,
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
		id,
	); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// UpdateProgress persists only the progress fields of a run, leaving the
// heartbeat untouched so frequent progress writes do not mask stalls.
func (s *Store) UpdateProgress(ctx context.Context, run *Run) error {
	if run == nil {
		return fmt.Errorf("run is nil")
	}
	run.UpdatedAt = time.Now().UTC()
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE runs
         SET progress_stage = ?, progress_percent = ?, progress_message = ?, updated_at = ?
         WHERE id = ?`,
		nullableString(run.ProgressStage),
		run.ProgressPercent,
		nullableString(run.ProgressMessage),
		run.UpdatedAt.Format(time.RFC3339Nano),
		run.ID,
	); err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

// ReclaimStaleProcessing returns runs stuck in processing back to the start
// of their current stage when heartbeats expire. When statuses are provided,
// only those in-flight statuses are considered.
func (s *Store) ReclaimStaleProcessing(ctx context.Context, cutoff time.Time, statuses ...Status) (int64, error) {
	transitions := processingRollbackTransitions()
	if len(statuses) > 0 {
		wanted := make(map[Status]struct{}, len(statuses))
		for _, status := range statuses {
			wanted[status] = struct{}{}
		}
		filtered := transitions[:0:0]
		for _, tr := range transitions {
			if _, ok := wanted[tr.from]; ok {
				filtered = append(filtered, tr)
			}
		}
		transitions = filtered
	}
	if len(transitions) == 0 {
		return 0, nil
	}

	caseExpr, args := rollbackCase(transitions)
	placeholders := makePlaceholders(len(transitions))
	args = append(args, time.Now().UTC().Format(time.RFC3339Nano))
	for _, tr := range transitions {
		args = append(args, tr.from)
	}
	args = append(args, cutoff.UTC().Format(time.RFC3339Nano))

	query := `UPDATE runs
        SET status = ` + caseExpr + `,
            progress_stage = 'Reclaimed from stale processing',
            progress_percent = 0, progress_message = NULL, last_heartbeat = NULL, updated_at = ?
        WHERE status IN (` + placeholders + `) AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale runs: %w", err)
	}
	return res.RowsAffected()
}

// RetryFailed moves failed runs back to pending for reprocessing.
func (s *Store) RetryFailed(ctx context.Context, ids ...int64) (int64, error) {
	if len(ids) == 0 {
		res, err := s.execWithRetry(
			ctx,
			`UPDATE runs
            SET status = ?, progress_stage = 'Retry requested', progress_percent = 0,
                progress_message = NULL, error_message = NULL, updated_at = ?
            WHERE status = ?`,
			StatusPending,
			time.Now().UTC().Format(time.RFC3339Nano),
			StatusFailed,
		)
		if err != nil {
			return 0, fmt.Errorf("retry failed runs: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+3)
	args = append(args, StatusPending, time.Now().UTC().Format(time.RFC3339Nano))
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, StatusFailed)
	query := `UPDATE runs
        SET status = ?, progress_stage = 'Retry requested', progress_percent = 0,
            progress_message = NULL, error_message = NULL, updated_at = ?
        WHERE id IN (` + placeholders + `) AND status = ?`
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry selected runs: %w", err)
	}
	return res.RowsAffected()
}
