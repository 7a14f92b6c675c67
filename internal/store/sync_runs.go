package store

import (
	"context"
	"database/sql"
	"errors"
)

// RecordSyncRun appends a sync run to the log
func (db *DB) RecordSyncRun(ctx context.Context, r *SyncRun) error {
	var errText any
	if r.Error != "" {
		errText = r.Error
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO sync_runs (
			id, user_id, mode, started_at, finished_at, outcome,
			activities_processed, inserted_count, updated_count, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID, r.UserID, r.Mode, formatTime(r.StartedAt), formatTime(r.FinishedAt), r.Outcome,
		r.ActivitiesProcessed, r.Inserted, r.Updated, errText,
	)
	return err
}

// LastSyncRun returns the most recent sync run for a user, or nil if there is none
func (db *DB) LastSyncRun(ctx context.Context, userID string) (*SyncRun, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, user_id, mode, started_at, finished_at, outcome,
			activities_processed, inserted_count, updated_count, error
		FROM sync_runs
		WHERE user_id = ?
		ORDER BY started_at DESC, rowid DESC
		LIMIT 1
	`, userID)

	var r SyncRun
	var startedAt, finishedAt string
	var errText sql.NullString
	err := row.Scan(
		&r.ID, &r.UserID, &r.Mode, &startedAt, &finishedAt, &r.Outcome,
		&r.ActivitiesProcessed, &r.Inserted, &r.Updated, &errText,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if r.StartedAt, err = parseTime("started_at", startedAt); err != nil {
		return nil, err
	}
	if r.FinishedAt, err = parseTime("finished_at", finishedAt); err != nil {
		return nil, err
	}
	r.Error = errText.String
	return &r, nil
}
