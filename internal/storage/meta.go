package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/flexpertsdev/flexios-v1/internal/models"
)

// Run statuses recorded in sync_runs.
const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// StartRun records the start of a sync operation and returns its id.
func (s *Store) StartRun(ctx context.Context, operation, target string) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_runs (id, operation, target, status) VALUES (?, ?, ?, 'running')`,
		id, operation, target,
	)
	if err != nil {
		return "", fmt.Errorf("insert sync run: %w", err)
	}
	return id, nil
}

// FinishRun marks a run as finished. runErr is stored as the run's error
// message when the status is failed.
func (s *Store) FinishRun(ctx context.Context, id, status, commitSHA string, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE sync_runs
		 SET status = ?, commit_sha = ?, error = ?, finished_at = strftime('%Y-%m-%d %H:%M:%f', 'now')
		 WHERE id = ?`,
		status, commitSHA, msg, id,
	)
	if err != nil {
		return fmt.Errorf("update sync run: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("sync run %q not found", id)
	}
	return nil
}

// GetRun looks up a run by id.
func (s *Store) GetRun(ctx context.Context, id string) (*models.SyncRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, operation, target, status, commit_sha, error, started_at, coalesce(finished_at, '')
		 FROM sync_runs WHERE id = ?`,
		id,
	)
	var r models.SyncRun
	err := row.Scan(&r.ID, &r.Operation, &r.Target, &r.Status, &r.CommitSHA, &r.Error, &r.StartedAt, &r.FinishedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("sync run %q not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("scan sync run: %w", err)
	}
	return &r, nil
}

// ListRuns returns the most recent runs first. limit <= 0 means no limit.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]models.SyncRun, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, operation, target, status, commit_sha, error, started_at, coalesce(finished_at, '')
		 FROM sync_runs ORDER BY started_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list sync runs: %w", err)
	}
	defer rows.Close()

	runs := []models.SyncRun{}
	for rows.Next() {
		var r models.SyncRun
		if err := rows.Scan(&r.ID, &r.Operation, &r.Target, &r.Status, &r.CommitSHA, &r.Error, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan sync run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// LastCommit returns the commit sha of the most recent successful push or
// prune to target, or "" if there is none.
func (s *Store) LastCommit(ctx context.Context, target string) (string, error) {
	var sha string
	err := s.db.QueryRowContext(ctx,
		`SELECT commit_sha FROM sync_runs
		 WHERE target = ? AND status = 'succeeded' AND commit_sha != ''
		 ORDER BY started_at DESC, rowid DESC LIMIT 1`,
		target,
	).Scan(&sha)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("last commit: %w", err)
	}
	return sha, nil
}
