package strava

import "time"

// Activity is a summary activity as returned by /athlete/activities.
// Optional fields are pointers so absence is distinguishable from zero.
type Activity struct {
	ID                 int64     `json:"id"`
	Name               string    `json:"name"`
	Type               string    `json:"type"`
	SportType          string    `json:"sport_type"`
	StartDate          time.Time `json:"start_date"`
	Timezone           string    `json:"timezone"`             // e.g. "(GMT-05:00) America/New_York"
	Distance           float64   `json:"distance"`             // meters
	MovingTime         int       `json:"moving_time"`          // seconds
	ElapsedTime        int       `json:"elapsed_time"`         // seconds
	TotalElevationGain float64   `json:"total_elevation_gain"` // meters
	SufferScore        *float64  `json:"suffer_score"`
	AverageHeartrate   *float64  `json:"average_heartrate"` // bpm
	Calories           *float64  `json:"calories"`
	LocationCity       *string   `json:"location_city"`
	LocationState      *string   `json:"location_state"`
}
