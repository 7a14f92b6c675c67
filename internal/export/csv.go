// Package export writes stored activities in portable formats.
package export

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/gocarina/gocsv"

	"fitsync/internal/store"
)

// activityRow is one CSV line. Absent optional values are empty cells.
type activityRow struct {
	StravaID      int64  `csv:"strava_id"`
	StartDate     string `csv:"start_date"`
	SportType     string `csv:"sport_type"`
	Name          string `csv:"name"`
	Duration      int    `csv:"duration_s"`
	Distance      string `csv:"distance_m"`
	ElevationGain string `csv:"elevation_m"`
	TrainingLoad  string `csv:"training_load"`
	HRAvg         string `csv:"hr_avg"`
	Calories      string `csv:"calories"`
	Location      string `csv:"location"`
}

// WriteCSV writes activities with a header row
func WriteCSV(w io.Writer, activities []store.Activity) error {
	rows := make([]*activityRow, 0, len(activities))
	for _, a := range activities {
		rows = append(rows, &activityRow{
			StravaID:      a.StravaID,
			StartDate:     a.StartDate.UTC().Format(time.RFC3339),
			SportType:     string(a.SportType),
			Name:          a.Name,
			Duration:      a.Duration,
			Distance:      formatFloat(a.Distance),
			ElevationGain: formatFloat(a.ElevationGain),
			TrainingLoad:  optionalFloat(a.TrainingLoad),
			HRAvg:         optionalInt(a.HRAvg),
			Calories:      optionalFloat(a.Calories),
			Location:      a.LocationLabel,
		})
	}

	if err := gocsv.Marshal(rows, w); err != nil {
		return fmt.Errorf("writing csv: %w", err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func optionalFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

func optionalInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
