package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fitsync/internal/apperr"
	"fitsync/internal/auth"
	"fitsync/internal/logx"
	"fitsync/internal/store"
	"fitsync/internal/strava"
)

func TestSyncUserInsertsThenUpdates(t *testing.T) {
	db := store.NewTestDB(t)
	f := newFakeStrava(t)
	connectUser(t, db, "u1", false)
	f.setActivities("tok-u1", runActivities(1, 2, 3))

	svc := newTestSyncService(db, f)
	fixed := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }
	ctx := context.Background()

	res, err := svc.SyncUser(ctx, "u1", testApp, ModeManual)
	require.NoError(t, err)
	assert.Equal(t, 3, res.ActivitiesProcessed)
	assert.Equal(t, 3, res.InsertedCount)
	assert.Zero(t, res.UpdatedCount)
	assert.Zero(t, f.refreshCount(), "valid token needs no refresh")
	assert.Empty(t, f.afterFor("tok-u1"), "first manual sync is unbounded")

	creds, err := db.GetCredentials(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, creds.LastSyncAt)
	assert.True(t, creds.LastSyncAt.Equal(fixed))

	// Overlapping window: same activities come back
	res, err = svc.SyncUser(ctx, "u1", testApp, ModeManual)
	require.NoError(t, err)
	assert.Equal(t, 3, res.ActivitiesProcessed)
	assert.Zero(t, res.InsertedCount)
	assert.Equal(t, 3, res.UpdatedCount)
	assert.Equal(t, "1738411200", f.afterFor("tok-u1"))

	count, err := db.CountActivities(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	run, err := db.LastSyncRun(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, OutcomeSuccess, run.Outcome)
	assert.Equal(t, "manual", run.Mode)
	assert.Equal(t, 3, run.Updated)
}

func TestSyncUserRefreshesExpiredToken(t *testing.T) {
	db := store.NewTestDB(t)
	f := newFakeStrava(t)
	connectUser(t, db, "u1", true)
	f.setActivities("fresh-r-u1", runActivities(10))

	res, err := newTestSyncService(db, f).SyncUser(context.Background(), "u1", testApp, ModeManual)
	require.NoError(t, err)
	assert.Equal(t, 1, res.InsertedCount)
	assert.Equal(t, 1, f.refreshCount())

	creds, err := db.GetCredentials(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "fresh-r-u1", creds.AccessToken)
	assert.True(t, creds.TokenExpiresAt.After(time.Now()))
}

func TestSyncUserNotConnected(t *testing.T) {
	db := store.NewTestDB(t)
	f := newFakeStrava(t)
	svc := newTestSyncService(db, f)
	ctx := context.Background()

	_, err := svc.SyncUser(ctx, "ghost", testApp, ModeManual)
	var notConnected *apperr.NotConnectedError
	require.ErrorAs(t, err, &notConnected)
	assert.Equal(t, "ghost", notConnected.UserID)

	// A row without an access token is not connected either
	require.NoError(t, db.SaveCredentials(ctx, &store.Credentials{UserID: "u2"}))
	_, err = svc.SyncUser(ctx, "u2", testApp, ModeManual)
	require.ErrorAs(t, err, &notConnected)

	run, err := db.LastSyncRun(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, run.Outcome)
	assert.Zero(t, f.listingCount())
}

func TestSyncUserRefreshRejected(t *testing.T) {
	db := store.NewTestDB(t)
	f := newFakeStrava(t)
	connectUser(t, db, "u1", true)
	f.rejectRefresh("r-u1")

	_, err := newTestSyncService(db, f).SyncUser(context.Background(), "u1", testApp, ModeManual)
	var authErr *apperr.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Zero(t, f.listingCount(), "no fetch after a failed refresh")

	creds, err := db.GetCredentials(context.Background(), "u1")
	require.NoError(t, err)
	assert.Nil(t, creds.LastSyncAt)
	assert.Equal(t, "tok-u1", creds.AccessToken)
}

func TestSyncUserFetchFailureKeepsCursor(t *testing.T) {
	db := store.NewTestDB(t)
	f := newFakeStrava(t)
	connectUser(t, db, "u1", false) // no activities registered: listing answers 401

	_, err := newTestSyncService(db, f).SyncUser(context.Background(), "u1", testApp, ModeManual)
	var fetchErr *apperr.FetchError
	require.ErrorAs(t, err, &fetchErr)

	creds, err := db.GetCredentials(context.Background(), "u1")
	require.NoError(t, err)
	assert.Nil(t, creds.LastSyncAt)

	run, err := db.LastSyncRun(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeError, run.Outcome)
	assert.NotEmpty(t, run.Error)
}

// stubTokens returns the stored access token untouched
type stubTokens struct{}

func (stubTokens) GetValidAccessToken(_ context.Context, c *store.Credentials, _ auth.AppCredentials) (string, error) {
	return c.AccessToken, nil
}

// recordingFetcher remembers the lower bound it was called with
type recordingFetcher struct {
	after      *time.Time
	called     bool
	activities []strava.Activity
	err        error
}

func (r *recordingFetcher) FetchActivities(_ context.Context, _ string, after *time.Time) ([]strava.Activity, error) {
	r.called = true
	r.after = after
	return r.activities, r.err
}

func TestSyncUserLowerBound(t *testing.T) {
	now := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	cursor := time.Date(2025, 3, 9, 6, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		cursor    *time.Time
		mode      Mode
		wantAfter *time.Time
	}{
		{"manual without cursor", nil, ModeManual, nil},
		{"scheduled without cursor", nil, ModeScheduled, ptrTime(now.Add(-DefaultLookback))},
		{"manual with cursor", &cursor, ModeManual, &cursor},
		{"scheduled with cursor", &cursor, ModeScheduled, &cursor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := store.NewTestDB(t)
			ctx := context.Background()
			require.NoError(t, db.SaveCredentials(ctx, &store.Credentials{UserID: "u1", AccessToken: "a", RefreshToken: "r"}))
			if tt.cursor != nil {
				require.NoError(t, db.SetLastSync(ctx, "u1", *tt.cursor))
			}

			fetcher := &recordingFetcher{}
			svc := NewSyncService(db, stubTokens{}, fetcher, nil, SyncOptions{}, logx.Discard())
			svc.now = func() time.Time { return now }

			_, err := svc.SyncUser(ctx, "u1", testApp, tt.mode)
			require.NoError(t, err)
			require.True(t, fetcher.called)

			if tt.wantAfter == nil {
				assert.Nil(t, fetcher.after)
				return
			}
			require.NotNil(t, fetcher.after)
			assert.True(t, fetcher.after.Equal(*tt.wantAfter), "after = %v, want %v", fetcher.after, tt.wantAfter)
		})
	}
}

// flakyStore fails upserts for chosen Strava ids
type flakyStore struct {
	*store.DB
	failIDs map[int64]bool
}

func (s *flakyStore) UpsertActivity(ctx context.Context, a *store.Activity) (bool, error) {
	if s.failIDs[a.StravaID] {
		return false, errors.New("constraint failed")
	}
	return s.DB.UpsertActivity(ctx, a)
}

func TestSyncUserSkipsFailedUpserts(t *testing.T) {
	db := store.NewTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.SaveCredentials(ctx, &store.Credentials{UserID: "u1", AccessToken: "a", RefreshToken: "r"}))

	fetcher := &recordingFetcher{activities: runActivities(1, 2, 3)}
	st := &flakyStore{DB: db, failIDs: map[int64]bool{2: true}}
	svc := NewSyncService(st, stubTokens{}, fetcher, nil, SyncOptions{}, logx.Discard())

	res, err := svc.SyncUser(ctx, "u1", testApp, ModeManual)
	require.NoError(t, err)
	assert.Equal(t, 2, res.ActivitiesProcessed)
	assert.Equal(t, 2, res.InsertedCount)
	require.Len(t, res.Errors, 1)

	var persistErr *apperr.PersistError
	require.ErrorAs(t, res.Errors[0], &persistErr)
	assert.Equal(t, int64(2), persistErr.StravaID)

	creds, err := db.GetCredentials(ctx, "u1")
	require.NoError(t, err)
	assert.NotNil(t, creds.LastSyncAt, "cursor advances despite item failures")
}

func TestSyncUserRejectsConcurrentRun(t *testing.T) {
	db := store.NewTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.SaveCredentials(ctx, &store.Credentials{UserID: "u1", AccessToken: "a", RefreshToken: "r"}))

	locker := NewMemoryLocker()
	fetcher := &recordingFetcher{}
	svc := NewSyncService(db, stubTokens{}, fetcher, locker, SyncOptions{}, logx.Discard())

	release, ok, err := locker.TryLock(ctx, "sync:u1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = svc.SyncUser(ctx, "u1", testApp, ModeManual)
	require.ErrorIs(t, err, apperr.ErrSyncInProgress)
	assert.False(t, fetcher.called)

	// Other users are unaffected
	require.NoError(t, db.SaveCredentials(ctx, &store.Credentials{UserID: "u2", AccessToken: "b", RefreshToken: "r"}))
	_, err = svc.SyncUser(ctx, "u2", testApp, ModeManual)
	require.NoError(t, err)

	release()
	_, err = svc.SyncUser(ctx, "u1", testApp, ModeManual)
	require.NoError(t, err)
}

func ptrTime(t time.Time) *time.Time { return &t }
