package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetCredentialsMissing(t *testing.T) {
	db := NewTestDB(t)

	_, err := db.GetCredentials(context.Background(), "nobody")
	if !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("expected ErrNoCredentials, got %v", err)
	}
}

func TestSaveCredentialsPreservesCursor(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	expires := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, db.SaveCredentials(ctx, &Credentials{
		UserID:         "u1",
		AccessToken:    "a1",
		RefreshToken:   "r1",
		TokenExpiresAt: &expires,
		AthleteID:      "42",
	}))

	cursor := time.Date(2025, 2, 28, 8, 30, 0, 0, time.UTC)
	require.NoError(t, db.SetLastSync(ctx, "u1", cursor))

	// Reconnecting replaces tokens but keeps the cursor
	later := expires.Add(6 * time.Hour)
	require.NoError(t, db.SaveCredentials(ctx, &Credentials{
		UserID:         "u1",
		AccessToken:    "a2",
		RefreshToken:   "r2",
		TokenExpiresAt: &later,
		AthleteID:      "42",
	}))

	got, err := db.GetCredentials(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "a2", got.AccessToken)
	assert.Equal(t, "r2", got.RefreshToken)
	assert.Equal(t, "42", got.AthleteID)
	require.NotNil(t, got.TokenExpiresAt)
	assert.True(t, got.TokenExpiresAt.Equal(later))
	require.NotNil(t, got.LastSyncAt)
	assert.True(t, got.LastSyncAt.Equal(cursor))
	assert.True(t, got.Connected())
}

func TestUpdateTokens(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()

	err := db.UpdateTokens(ctx, "ghost", "a", "r", time.Now())
	require.ErrorIs(t, err, ErrNoCredentials)

	require.NoError(t, db.SaveCredentials(ctx, &Credentials{UserID: "u1", AccessToken: "old", RefreshToken: "old-r"}))

	expires := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.UpdateTokens(ctx, "u1", "new", "new-r", expires))

	got, err := db.GetCredentials(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "new", got.AccessToken)
	assert.Equal(t, "new-r", got.RefreshToken)
	assert.True(t, got.TokenExpiresAt.Equal(expires))
	assert.Nil(t, got.LastSyncAt)
}

func TestListConnectedUsers(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()

	for _, c := range []*Credentials{
		{UserID: "u3", AccessToken: "t3"},
		{UserID: "u1", AccessToken: "t1"},
		{UserID: "u2", AccessToken: ""},
		{UserID: "u4", AccessToken: "t4"},
	} {
		require.NoError(t, db.SaveCredentials(ctx, c))
	}
	require.NoError(t, db.ClearTokens(ctx, "u4"))

	users, err := db.ListConnectedUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u3"}, users)

	disconnected, err := db.GetCredentials(ctx, "u4")
	require.NoError(t, err)
	assert.False(t, disconnected.Connected())
}

func TestAppCredentials(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()

	_, err := db.GetAppCredentials(ctx)
	require.ErrorIs(t, err, ErrNoAppCredentials)

	require.NoError(t, db.SaveAppCredentials(ctx, "id-1", "secret-1"))
	require.NoError(t, db.SaveAppCredentials(ctx, "id-2", "secret-2"))

	got, err := db.GetAppCredentials(ctx)
	require.NoError(t, err)
	assert.Equal(t, "id-2", got.ClientID)
	assert.Equal(t, "secret-2", got.ClientSecret)
	assert.False(t, got.UpdatedAt.IsZero())
}
