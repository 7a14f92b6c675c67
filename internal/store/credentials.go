package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// GetCredentials retrieves the stored Strava connection for a user
func (db *DB) GetCredentials(ctx context.Context, userID string) (*Credentials, error) {
	row := db.QueryRowContext(ctx, `
		SELECT user_id, strava_access_token, strava_refresh_token, strava_token_expires_at,
			strava_athlete_id, last_sync_at
		FROM user_settings
		WHERE user_id = ?
	`, userID)

	var c Credentials
	var access, refresh, expiresAt, athleteID, lastSync sql.NullString
	err := row.Scan(&c.UserID, &access, &refresh, &expiresAt, &athleteID, &lastSync)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoCredentials
	}
	if err != nil {
		return nil, err
	}

	c.AccessToken = access.String
	c.RefreshToken = refresh.String
	c.AthleteID = athleteID.String
	if c.TokenExpiresAt, err = parseNullTime("strava_token_expires_at", expiresAt); err != nil {
		return nil, err
	}
	if c.LastSyncAt, err = parseNullTime("last_sync_at", lastSync); err != nil {
		return nil, err
	}
	return &c, nil
}

// SaveCredentials stores a freshly exchanged token set. The sync cursor of an
// existing row is left untouched.
func (db *DB) SaveCredentials(ctx context.Context, c *Credentials) error {
	var expiresAt any
	if c.TokenExpiresAt != nil {
		expiresAt = formatTime(*c.TokenExpiresAt)
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO user_settings (
			user_id, strava_access_token, strava_refresh_token, strava_token_expires_at,
			strava_athlete_id, updated_at
		) VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id) DO UPDATE SET
			strava_access_token = excluded.strava_access_token,
			strava_refresh_token = excluded.strava_refresh_token,
			strava_token_expires_at = excluded.strava_token_expires_at,
			strava_athlete_id = excluded.strava_athlete_id,
			updated_at = CURRENT_TIMESTAMP
	`, c.UserID, c.AccessToken, c.RefreshToken, expiresAt, c.AthleteID)
	return err
}

// UpdateTokens replaces the access token, refresh token and expiry in one statement
func (db *DB) UpdateTokens(ctx context.Context, userID, accessToken, refreshToken string, expiresAt time.Time) error {
	result, err := db.ExecContext(ctx, `
		UPDATE user_settings
		SET strava_access_token = ?, strava_refresh_token = ?, strava_token_expires_at = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ?
	`, accessToken, refreshToken, formatTime(expiresAt), userID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNoCredentials
	}
	return nil
}

// SetLastSync advances the user's sync cursor
func (db *DB) SetLastSync(ctx context.Context, userID string, at time.Time) error {
	result, err := db.ExecContext(ctx, `
		UPDATE user_settings
		SET last_sync_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ?
	`, formatTime(at), userID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNoCredentials
	}
	return nil
}

// ClearTokens disconnects a user from Strava, keeping the row and its cursor
func (db *DB) ClearTokens(ctx context.Context, userID string) error {
	_, err := db.ExecContext(ctx, `
		UPDATE user_settings
		SET strava_access_token = NULL, strava_refresh_token = NULL,
			strava_token_expires_at = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ?
	`, userID)
	return err
}

// ListConnectedUsers returns the ids of all users holding a non-empty access token
func (db *DB) ListConnectedUsers(ctx context.Context) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT user_id FROM user_settings
		WHERE strava_access_token IS NOT NULL AND strava_access_token != ''
		ORDER BY user_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		users = append(users, id)
	}
	return users, rows.Err()
}
