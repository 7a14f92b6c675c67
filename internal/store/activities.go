package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const activityColumns = `id, user_id, strava_id, sport_type, name, start_date, duration,
	distance, elevation_gain, training_load, hr_avg, calories, location_label`

// UpsertActivity inserts or updates an activity keyed by (user_id, strava_id).
// It reports whether a new row was created.
func (db *DB) UpsertActivity(ctx context.Context, a *Activity) (inserted bool, err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var exists int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM activities WHERE user_id = ? AND strava_id = ?
	`, a.UserID, a.StravaID).Scan(&exists)
	if err != nil {
		return false, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO activities (
			user_id, strava_id, sport_type, name, start_date, duration,
			distance, elevation_gain, training_load, hr_avg, calories, location_label, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id, strava_id) DO UPDATE SET
			sport_type = excluded.sport_type,
			name = excluded.name,
			start_date = excluded.start_date,
			duration = excluded.duration,
			distance = excluded.distance,
			elevation_gain = excluded.elevation_gain,
			training_load = excluded.training_load,
			hr_avg = excluded.hr_avg,
			calories = excluded.calories,
			location_label = excluded.location_label,
			updated_at = CURRENT_TIMESTAMP
	`,
		a.UserID, a.StravaID, string(a.SportType), a.Name, formatTime(a.StartDate), a.Duration,
		a.Distance, a.ElevationGain, a.TrainingLoad, a.HRAvg, a.Calories, a.LocationLabel,
	)
	if err != nil {
		return false, err
	}

	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("committing upsert: %w", err)
	}
	return exists == 0, nil
}

// GetActivity retrieves one activity by its Strava id for a user
func (db *DB) GetActivity(ctx context.Context, userID string, stravaID int64) (*Activity, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+activityColumns+`
		FROM activities
		WHERE user_id = ? AND strava_id = ?
	`, userID, stravaID)

	a, err := scanActivity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrActivityNotFound
	}
	return a, err
}

// ListActivities returns a user's activities ordered by start date descending.
// A non-positive limit returns all of them.
func (db *DB) ListActivities(ctx context.Context, userID string, limit, offset int) ([]Activity, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.QueryContext(ctx, `
		SELECT `+activityColumns+`
		FROM activities
		WHERE user_id = ?
		ORDER BY start_date DESC, strava_id DESC
		LIMIT ? OFFSET ?
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var activities []Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		activities = append(activities, *a)
	}
	return activities, rows.Err()
}

// CountActivities returns the number of activities stored for a user
func (db *DB) CountActivities(ctx context.Context, userID string) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM activities WHERE user_id = ?", userID).Scan(&count)
	return count, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanActivity(row rowScanner) (*Activity, error) {
	var a Activity
	var sport, startDate string
	var trainingLoad, calories sql.NullFloat64
	var hrAvg sql.NullInt64

	err := row.Scan(
		&a.ID, &a.UserID, &a.StravaID, &sport, &a.Name, &startDate, &a.Duration,
		&a.Distance, &a.ElevationGain, &trainingLoad, &hrAvg, &calories, &a.LocationLabel,
	)
	if err != nil {
		return nil, err
	}

	a.SportType = SportType(sport)
	if a.StartDate, err = parseTime("start_date", startDate); err != nil {
		return nil, err
	}
	if trainingLoad.Valid {
		v := trainingLoad.Float64
		a.TrainingLoad = &v
	}
	if hrAvg.Valid {
		v := int(hrAvg.Int64)
		a.HRAvg = &v
	}
	if calories.Valid {
		v := calories.Float64
		a.Calories = &v
	}
	return &a, nil
}
