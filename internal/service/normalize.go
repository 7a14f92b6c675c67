package service

import (
	"math"
	"strings"

	"fitsync/internal/store"
	"fitsync/internal/strava"
)

// DefaultSportType is used for sport types without a mapping
const DefaultSportType = store.SportRun

// UnknownLocation labels activities with no usable location data
const UnknownLocation = "Unknown"

// sportTypes maps Strava sport_type values onto our categories
var sportTypes = map[string]store.SportType{
	"Run":              store.SportRun,
	"TrailRun":         store.SportRun,
	"VirtualRun":       store.SportRun,
	"Ride":             store.SportRide,
	"VirtualRide":      store.SportRide,
	"MountainBikeRide": store.SportRide,
	"GravelRide":       store.SportRide,
	"EBikeRide":        store.SportRide,
	"Swim":             store.SportSwim,
	"WeightTraining":   store.SportWeightTraining,
	"Workout":          store.SportWeightTraining,
	"Hike":             store.SportHike,
	"Walk":             store.SportHike,
}

// MapSportType returns the category for a Strava sport type
func MapSportType(sportType string) store.SportType {
	if st, ok := sportTypes[sportType]; ok {
		return st
	}
	return DefaultSportType
}

// Normalize converts a Strava activity into the stored activity shape.
// It is pure: the same input always yields the same record.
func Normalize(raw strava.Activity, userID string) store.Activity {
	sportType := raw.SportType
	if sportType == "" {
		sportType = raw.Type // older payloads only carry the legacy field
	}

	duration := raw.MovingTime
	if duration <= 0 {
		duration = raw.ElapsedTime
	}

	name := raw.Name
	if strings.TrimSpace(name) == "" {
		name = "Untitled"
	}

	a := store.Activity{
		UserID:        userID,
		StravaID:      raw.ID,
		SportType:     MapSportType(sportType),
		Name:          name,
		StartDate:     raw.StartDate.UTC(),
		Duration:      duration,
		Distance:      raw.Distance,
		ElevationGain: raw.TotalElevationGain,
		TrainingLoad:  copyFloat(raw.SufferScore),
		Calories:      copyFloat(raw.Calories),
		LocationLabel: locationLabel(raw),
	}
	if raw.AverageHeartrate != nil {
		hr := int(math.Round(*raw.AverageHeartrate))
		a.HRAvg = &hr
	}
	return a
}

// locationLabel picks city, then state, then the timezone region
func locationLabel(raw strava.Activity) string {
	for _, candidate := range []*string{raw.LocationCity, raw.LocationState} {
		if candidate != nil && strings.TrimSpace(*candidate) != "" {
			return strings.TrimSpace(*candidate)
		}
	}
	if region := timezoneRegion(raw.Timezone); region != "" {
		return region
	}
	return UnknownLocation
}

// timezoneRegion returns the second "/" segment, e.g. "Los_Angeles" from
// "(GMT-08:00) America/Los_Angeles"
func timezoneRegion(tz string) string {
	parts := strings.Split(tz, "/")
	if len(parts) < 2 {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
