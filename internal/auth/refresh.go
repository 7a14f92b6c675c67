package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"fitsync/internal/apperr"
	"fitsync/internal/store"
)

// TokenStore persists refreshed token sets
type TokenStore interface {
	UpdateTokens(ctx context.Context, userID, accessToken, refreshToken string, expiresAt time.Time) error
}

// Refresher hands out valid access tokens, refreshing expired ones against
// Strava's token endpoint and persisting the result
type Refresher struct {
	endpoints  Endpoints
	store      TokenStore
	httpClient *http.Client
	skew       time.Duration
	now        func() time.Time
}

// NewRefresher creates a Refresher. skew refreshes tokens that early before expiry.
func NewRefresher(endpoints Endpoints, store TokenStore, httpClient *http.Client, skew time.Duration) *Refresher {
	return &Refresher{
		endpoints:  endpoints,
		store:      store,
		httpClient: httpClient,
		skew:       skew,
		now:        time.Now,
	}
}

// GetValidAccessToken returns the stored access token while it is still
// valid, otherwise refreshes it. A token without a known expiry is refreshed.
func (r *Refresher) GetValidAccessToken(ctx context.Context, creds *store.Credentials, app AppCredentials) (string, error) {
	if creds.TokenExpiresAt != nil && r.now().Before(creds.TokenExpiresAt.Add(-r.skew)) {
		return creds.AccessToken, nil
	}

	if creds.RefreshToken == "" {
		return "", &apperr.AuthError{Op: "refresh", Err: errors.New("no refresh token stored")}
	}

	cfg := NewOAuthConfig(r.endpoints, app, "")
	token, err := cfg.TokenSource(withHTTPClient(ctx, r.httpClient), &oauth2.Token{
		RefreshToken: creds.RefreshToken,
	}).Token()
	if err != nil {
		return "", &apperr.AuthError{Op: "refresh", Err: err}
	}

	expiresAt := ExtractExpiry(token)
	if err := r.store.UpdateTokens(ctx, creds.UserID, token.AccessToken, token.RefreshToken, expiresAt); err != nil {
		return "", fmt.Errorf("persisting refreshed tokens: %w", err)
	}

	creds.AccessToken = token.AccessToken
	creds.RefreshToken = token.RefreshToken
	creds.TokenExpiresAt = &expiresAt
	return token.AccessToken, nil
}
