package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"fitsync/internal/apperr"
	"fitsync/internal/auth"
	"fitsync/internal/logx"
	"fitsync/internal/store"
	"fitsync/internal/strava"
)

// Mode says who triggered a sync
type Mode string

const (
	ModeManual    Mode = "manual"
	ModeScheduled Mode = "scheduled"
)

// Sync run outcomes
const (
	OutcomeSuccess = "success"
	OutcomeSkipped = "skipped"
	OutcomeError   = "error"
)

// DefaultLookback bounds the first scheduled sync of a user with no cursor
const DefaultLookback = 7 * 24 * time.Hour

// DefaultLockTTL caps how long a crashed sync can keep a user locked
const DefaultLockTTL = 10 * time.Minute

// SyncStore is the persistence the orchestrator needs
type SyncStore interface {
	GetCredentials(ctx context.Context, userID string) (*store.Credentials, error)
	UpsertActivity(ctx context.Context, a *store.Activity) (bool, error)
	SetLastSync(ctx context.Context, userID string, at time.Time) error
	RecordSyncRun(ctx context.Context, r *store.SyncRun) error
}

// TokenProvider resolves a usable access token for stored credentials
type TokenProvider interface {
	GetValidAccessToken(ctx context.Context, creds *store.Credentials, app auth.AppCredentials) (string, error)
}

// ActivityFetcher lists a user's activities from Strava
type ActivityFetcher interface {
	FetchActivities(ctx context.Context, accessToken string, after *time.Time) ([]strava.Activity, error)
}

// SyncOptions tunes the orchestrator. Zero values pick the defaults.
type SyncOptions struct {
	Lookback time.Duration
	LockTTL  time.Duration
}

// SyncService pulls one user's new activities from Strava into the store
type SyncService struct {
	store   SyncStore
	tokens  TokenProvider
	fetcher ActivityFetcher
	locker  Locker
	logger  *slog.Logger

	lookback time.Duration
	lockTTL  time.Duration
	now      func() time.Time
}

// NewSyncService creates a new sync service
func NewSyncService(st SyncStore, tokens TokenProvider, fetcher ActivityFetcher, locker Locker, opts SyncOptions, logger *slog.Logger) *SyncService {
	if opts.Lookback <= 0 {
		opts.Lookback = DefaultLookback
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = DefaultLockTTL
	}
	if locker == nil {
		locker = NewMemoryLocker()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncService{
		store:    st,
		tokens:   tokens,
		fetcher:  fetcher,
		locker:   locker,
		logger:   logger,
		lookback: opts.Lookback,
		lockTTL:  opts.LockTTL,
		now:      time.Now,
	}
}

// SyncResult contains the results of a sync operation
type SyncResult struct {
	ActivitiesProcessed int     `json:"activitiesProcessed"`
	InsertedCount       int     `json:"insertedCount"`
	UpdatedCount        int     `json:"updatedCount"`
	Errors              []error `json:"-"`
}

// SyncUser runs the sync pipeline for one user: refresh the token if
// needed, fetch activities since the cursor, upsert them, advance the cursor.
// Concurrent syncs of the same user are rejected with apperr.ErrSyncInProgress.
func (s *SyncService) SyncUser(ctx context.Context, userID string, app auth.AppCredentials, mode Mode) (*SyncResult, error) {
	startedAt := s.now()
	logger := logx.FromContext(ctx, s.logger).With("user_id", userID, "mode", string(mode))

	release, ok, err := s.locker.TryLock(ctx, "sync:"+userID, s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquiring sync lock: %w", err)
	}
	if !ok {
		logger.Info("sync already in progress")
		syncRunsTotal.WithLabelValues(string(mode), OutcomeSkipped).Inc()
		return nil, apperr.ErrSyncInProgress
	}
	defer release()

	result, err := s.syncUser(ctx, logger, userID, app, mode, startedAt)
	s.recordRun(ctx, logger, userID, mode, startedAt, result, err)
	return result, err
}

func (s *SyncService) syncUser(ctx context.Context, logger *slog.Logger, userID string, app auth.AppCredentials, mode Mode, startedAt time.Time) (*SyncResult, error) {
	creds, err := s.store.GetCredentials(ctx, userID)
	if errors.Is(err, store.ErrNoCredentials) || (err == nil && !creds.Connected()) {
		return nil, &apperr.NotConnectedError{UserID: userID}
	}
	if err != nil {
		return nil, fmt.Errorf("loading credentials: %w", err)
	}

	accessToken, err := s.tokens.GetValidAccessToken(ctx, creds, app)
	if err != nil {
		return nil, err
	}

	after := s.lowerBound(creds, mode, startedAt)
	activities, err := s.fetcher.FetchActivities(ctx, accessToken, after)
	if err != nil {
		return nil, err
	}
	s.observeRateLimit()
	logger.Debug("fetched activities", "count", len(activities), "after", after)

	result := &SyncResult{}
	for _, raw := range activities {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		a := Normalize(raw, userID)
		inserted, err := s.store.UpsertActivity(ctx, &a)
		if err != nil {
			persistErr := &apperr.PersistError{StravaID: raw.ID, Err: err}
			logger.Warn("skipping activity", "strava_id", raw.ID, "error", persistErr)
			result.Errors = append(result.Errors, persistErr)
			activitiesUpserted.WithLabelValues("failed").Inc()
			continue
		}

		result.ActivitiesProcessed++
		if inserted {
			result.InsertedCount++
			activitiesUpserted.WithLabelValues("inserted").Inc()
		} else {
			result.UpdatedCount++
			activitiesUpserted.WithLabelValues("updated").Inc()
		}
	}

	// Cursor is the invocation start, not the newest activity's start date
	if err := s.store.SetLastSync(ctx, userID, startedAt); err != nil {
		return result, fmt.Errorf("updating sync cursor: %w", err)
	}
	return result, nil
}

// lowerBound picks the fetch window start: the cursor when present,
// otherwise unbounded for manual syncs and the lookback for scheduled ones
func (s *SyncService) lowerBound(creds *store.Credentials, mode Mode, startedAt time.Time) *time.Time {
	if creds.LastSyncAt != nil {
		after := *creds.LastSyncAt
		return &after
	}
	if mode == ModeScheduled {
		after := startedAt.Add(-s.lookback)
		return &after
	}
	return nil
}

func (s *SyncService) observeRateLimit() {
	limited, ok := s.fetcher.(interface {
		RateLimitStatus() (shortRemaining, dailyRemaining int)
	})
	if !ok {
		return
	}
	short, daily := limited.RateLimitStatus()
	stravaRateLimitRemaining.WithLabelValues("short").Set(float64(short))
	stravaRateLimitRemaining.WithLabelValues("daily").Set(float64(daily))
}

func (s *SyncService) recordRun(ctx context.Context, logger *slog.Logger, userID string, mode Mode, startedAt time.Time, result *SyncResult, syncErr error) {
	finishedAt := s.now()
	run := &store.SyncRun{
		ID:         uuid.NewString(),
		UserID:     userID,
		Mode:       string(mode),
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		Outcome:    outcomeOf(syncErr),
	}
	if result != nil {
		run.ActivitiesProcessed = result.ActivitiesProcessed
		run.Inserted = result.InsertedCount
		run.Updated = result.UpdatedCount
	}
	if syncErr != nil {
		run.Error = syncErr.Error()
	}

	syncRunsTotal.WithLabelValues(string(mode), run.Outcome).Inc()
	syncDuration.WithLabelValues(string(mode)).Observe(finishedAt.Sub(startedAt).Seconds())

	switch run.Outcome {
	case OutcomeSuccess:
		logger.Info("sync completed",
			"processed", run.ActivitiesProcessed,
			"inserted", run.Inserted,
			"updated", run.Updated,
			"failed", len(result.Errors),
		)
	case OutcomeSkipped:
		logger.Info("sync skipped", "reason", run.Error)
	default:
		logger.Error("sync failed", "error", syncErr)
	}

	// Recorded even when ctx is already cancelled
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.store.RecordSyncRun(recordCtx, run); err != nil {
		logger.Warn("recording sync run", "error", err)
	}
}

func outcomeOf(err error) string {
	var notConnected *apperr.NotConnectedError
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.As(err, &notConnected), errors.Is(err, apperr.ErrSyncInProgress):
		return OutcomeSkipped
	default:
		return OutcomeError
	}
}
