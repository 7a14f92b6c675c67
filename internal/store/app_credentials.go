package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// GetAppCredentials returns the centrally stored Strava app credentials
func (db *DB) GetAppCredentials(ctx context.Context) (*AppCredentials, error) {
	var a AppCredentials
	var updatedAt string
	err := db.QueryRowContext(ctx, `
		SELECT strava_client_id, strava_client_secret, updated_at
		FROM strava_app_credentials
		WHERE id = 1
	`).Scan(&a.ClientID, &a.ClientSecret, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoAppCredentials
	}
	if err != nil {
		return nil, err
	}

	if a.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// SaveAppCredentials stores or replaces the central app credentials
func (db *DB) SaveAppCredentials(ctx context.Context, clientID, clientSecret string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO strava_app_credentials (id, strava_client_id, strava_client_secret, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			strava_client_id = excluded.strava_client_id,
			strava_client_secret = excluded.strava_client_secret,
			updated_at = excluded.updated_at
	`, clientID, clientSecret, formatTime(time.Now()))
	return err
}
