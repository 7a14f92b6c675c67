package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"fitsync/internal/apperr"
	"fitsync/internal/auth"
)

// DefaultConcurrency is how many users a batch syncs at once
const DefaultConcurrency = 4

// DefaultScheduleInterval is the time between scheduled batches
const DefaultScheduleInterval = 24 * time.Hour

// UserLister lists users eligible for a scheduled sync
type UserLister interface {
	ListConnectedUsers(ctx context.Context) ([]string, error)
}

// AppResolver resolves the app credentials used for a batch
type AppResolver interface {
	Resolve(ctx context.Context, override auth.AppCredentials) (auth.AppCredentials, error)
}

// UserOutcome is one user's entry in a batch result
type UserOutcome struct {
	UserID              string `json:"userId"`
	Status              string `json:"status"` // success, skipped, error
	ActivitiesProcessed int    `json:"activitiesProcessed"`
	InsertedCount       int    `json:"insertedCount"`
	UpdatedCount        int    `json:"updatedCount"`
	Error               string `json:"error,omitempty"`
}

// BatchResult reports a scheduled batch, one entry per listed user in list order
type BatchResult struct {
	RunID      string        `json:"runId"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
	Results    []UserOutcome `json:"results"`
}

// Count returns how many users ended with the given status
func (b *BatchResult) Count(status string) int {
	n := 0
	for _, r := range b.Results {
		if r.Status == status {
			n++
		}
	}
	return n
}

// SchedulerOptions tunes the scheduler. Zero values pick the defaults.
type SchedulerOptions struct {
	Concurrency int
	Interval    time.Duration
}

// Scheduler runs the sync pipeline for every connected user, on demand
// or on a fixed interval
type Scheduler struct {
	users    UserLister
	resolver AppResolver
	syncer   *SyncService
	logger   *slog.Logger

	concurrency int
	interval    time.Duration
	running     atomic.Bool
	started     atomic.Bool

	// Internal channels for lifecycle management
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewScheduler creates a Scheduler
func NewScheduler(users UserLister, resolver AppResolver, syncer *SyncService, opts SchedulerOptions, logger *slog.Logger) *Scheduler {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultScheduleInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		users:       users,
		resolver:    resolver,
		syncer:      syncer,
		logger:      logger,
		concurrency: opts.Concurrency,
		interval:    opts.Interval,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// RunOnce syncs every connected user. A failing user never stops the others.
// It returns apperr.ErrSyncInProgress if a batch is already running and a
// ConfigError if app credentials cannot be resolved.
func (s *Scheduler) RunOnce(ctx context.Context) (*BatchResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, apperr.ErrSyncInProgress
	}
	defer s.running.Store(false)

	batch := &BatchResult{RunID: uuid.NewString(), StartedAt: time.Now().UTC()}
	logger := s.logger.With("run_id", batch.RunID)

	users, err := s.users.ListConnectedUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing connected users: %w", err)
	}

	app, err := s.resolver.Resolve(ctx, auth.AppCredentials{})
	if err != nil {
		logger.Error("scheduled sync aborted", "error", err)
		return nil, err
	}

	logger.Info("scheduled sync started", "users", len(users), "concurrency", s.concurrency)

	batch.Results = make([]UserOutcome, len(users))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, userID := range users {
		g.Go(func() error {
			batch.Results[i] = s.syncOne(ctx, userID, app)
			return nil
		})
	}
	g.Wait()

	batch.FinishedAt = time.Now().UTC()
	for _, status := range []string{OutcomeSuccess, OutcomeSkipped, OutcomeError} {
		batchUsers.WithLabelValues(status).Set(float64(batch.Count(status)))
	}
	logger.Info("scheduled sync finished",
		"succeeded", batch.Count(OutcomeSuccess),
		"skipped", batch.Count(OutcomeSkipped),
		"failed", batch.Count(OutcomeError),
		"duration_ms", batch.FinishedAt.Sub(batch.StartedAt).Milliseconds(),
	)
	return batch, nil
}

func (s *Scheduler) syncOne(ctx context.Context, userID string, app auth.AppCredentials) UserOutcome {
	outcome := UserOutcome{UserID: userID}

	result, err := s.syncer.SyncUser(ctx, userID, app, ModeScheduled)
	if result != nil {
		outcome.ActivitiesProcessed = result.ActivitiesProcessed
		outcome.InsertedCount = result.InsertedCount
		outcome.UpdatedCount = result.UpdatedCount
	}

	var notConnected *apperr.NotConnectedError
	switch {
	case err == nil:
		outcome.Status = OutcomeSuccess
	case errors.As(err, &notConnected), errors.Is(err, apperr.ErrSyncInProgress):
		outcome.Status = OutcomeSkipped
		outcome.Error = err.Error()
	default:
		outcome.Status = OutcomeError
		outcome.Error = err.Error()
	}
	return outcome
}

// Start begins the background loop that runs a batch every interval.
// Call Stop to shut it down.
func (s *Scheduler) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	go s.run()
	s.logger.Info("sync scheduler started", "interval", s.interval)
}

// Stop shuts down the background loop, waiting for an in-flight batch to
// notice cancellation and return
func (s *Scheduler) Stop() {
	if !s.started.Load() {
		return
	}
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.doneCh
	s.logger.Info("sync scheduler stopped")
}

func (s *Scheduler) run() {
	defer close(s.doneCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); errors.Is(err, apperr.ErrSyncInProgress) {
				s.logger.Warn("previous scheduled sync still running, skipping tick")
			}
		case <-s.stopCh:
			return
		}
	}
}
