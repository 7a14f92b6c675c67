package store

import "time"

// Credentials is a user's Strava connection as stored in user_settings.
// Token fields are empty when the user never connected or was disconnected.
type Credentials struct {
	UserID         string     `db:"user_id" json:"userId"`
	AccessToken    string     `db:"strava_access_token" json:"-"`
	RefreshToken   string     `db:"strava_refresh_token" json:"-"`
	TokenExpiresAt *time.Time `db:"strava_token_expires_at" json:"tokenExpiresAt,omitempty"`
	AthleteID      string     `db:"strava_athlete_id" json:"athleteId,omitempty"`
	LastSyncAt     *time.Time `db:"last_sync_at" json:"lastSyncAt,omitempty"`
}

// Connected reports whether the user has an access token on file
func (c *Credentials) Connected() bool {
	return c != nil && c.AccessToken != ""
}

// AppCredentials is the centrally stored Strava client id/secret pair
type AppCredentials struct {
	ClientID     string    `db:"strava_client_id"`
	ClientSecret string    `db:"strava_client_secret"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// SportType is the normalized activity category
type SportType string

const (
	SportRun            SportType = "Run"
	SportRide           SportType = "Ride"
	SportSwim           SportType = "Swim"
	SportWeightTraining SportType = "WeightTraining"
	SportHike           SportType = "Hike"
)

// Activity is a normalized activity row keyed by (user_id, strava_id)
type Activity struct {
	ID            int64     `db:"id" json:"id"`
	UserID        string    `db:"user_id" json:"userId"`
	StravaID      int64     `db:"strava_id" json:"stravaId"`
	SportType     SportType `db:"sport_type" json:"sportType"`
	Name          string    `db:"name" json:"name"`
	StartDate     time.Time `db:"start_date" json:"startDate"`
	Duration      int       `db:"duration" json:"duration"`            // seconds
	Distance      float64   `db:"distance" json:"distance"`            // meters
	ElevationGain float64   `db:"elevation_gain" json:"elevationGain"` // meters
	TrainingLoad  *float64  `db:"training_load" json:"trainingLoad"`   // nullable
	HRAvg         *int      `db:"hr_avg" json:"hrAvg"`                 // nullable
	Calories      *float64  `db:"calories" json:"calories"`            // nullable
	LocationLabel string    `db:"location_label" json:"locationLabel"`
}

// SyncRun records the outcome of one sync invocation for a user
type SyncRun struct {
	ID                  string    `db:"id" json:"id"`
	UserID              string    `db:"user_id" json:"userId"`
	Mode                string    `db:"mode" json:"mode"`
	StartedAt           time.Time `db:"started_at" json:"startedAt"`
	FinishedAt          time.Time `db:"finished_at" json:"finishedAt"`
	Outcome             string    `db:"outcome" json:"outcome"`
	ActivitiesProcessed int       `db:"activities_processed" json:"activitiesProcessed"`
	Inserted            int       `db:"inserted_count" json:"inserted"`
	Updated             int       `db:"updated_count" json:"updated"`
	Error               string    `db:"error" json:"error,omitempty"`
}
