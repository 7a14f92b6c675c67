package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	syncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fitsync_sync_runs_total",
			Help: "Total number of per-user sync runs by mode and outcome",
		},
		[]string{"mode", "outcome"},
	)

	syncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fitsync_sync_duration_seconds",
			Help:    "Duration of per-user sync runs in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"mode"},
	)

	activitiesUpserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fitsync_activities_upserted_total",
			Help: "Activities written to the store, by result",
		},
		[]string{"result"}, // inserted, updated, failed
	)

	batchUsers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fitsync_scheduled_batch_users",
			Help: "Per-user outcomes of the most recent scheduled batch",
		},
		[]string{"outcome"},
	)

	stravaRateLimitRemaining = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fitsync_strava_ratelimit_remaining",
			Help: "Requests left in Strava's application rate limit windows",
		},
		[]string{"window"}, // short, daily
	)
)
