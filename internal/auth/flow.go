package auth

import (
	"context"
	"errors"
	"net/http"

	"fitsync/internal/apperr"
	"fitsync/internal/store"
)

// CredentialStore persists the token set obtained from a code exchange
type CredentialStore interface {
	SaveCredentials(ctx context.Context, c *store.Credentials) error
}

// Flow runs the two-step OAuth authorization: build the consent URL,
// then exchange the returned code for tokens
type Flow struct {
	endpoints  Endpoints
	resolver   *Resolver
	store      CredentialStore
	httpClient *http.Client
}

// NewFlow creates a Flow
func NewFlow(endpoints Endpoints, resolver *Resolver, store CredentialStore, httpClient *http.Client) *Flow {
	return &Flow{
		endpoints:  endpoints,
		resolver:   resolver,
		store:      store,
		httpClient: httpClient,
	}
}

// Authorize returns the Strava consent URL for userID. The user id travels
// as the OAuth state.
func (f *Flow) Authorize(ctx context.Context, userID, overrideClientID, redirectURI string) (string, error) {
	if redirectURI == "" {
		return "", apperr.InvalidInput("redirectUri is required")
	}
	clientID, err := f.resolver.ResolveClientID(ctx, overrideClientID)
	if err != nil {
		return "", err
	}

	cfg := NewOAuthConfig(f.endpoints, AppCredentials{ClientID: clientID}, redirectURI)
	return cfg.AuthCodeURL(userID), nil
}

// Exchange trades an authorization code for tokens and stores them for userID
func (f *Flow) Exchange(ctx context.Context, userID, code string, override AppCredentials) error {
	if code == "" {
		return &apperr.ExchangeError{Reason: "missing authorization code from Strava"}
	}

	app, err := f.resolver.Resolve(ctx, override)
	if err != nil {
		var cfgErr *apperr.ConfigError
		if errors.As(err, &cfgErr) {
			return &apperr.ExchangeError{Reason: "missing Strava app credentials", Err: err}
		}
		return err
	}

	cfg := NewOAuthConfig(f.endpoints, app, "")
	token, err := cfg.Exchange(withHTTPClient(ctx, f.httpClient), code)
	if err != nil {
		return &apperr.ExchangeError{Reason: "failed to exchange code for token", Err: err}
	}
	if token.RefreshToken == "" {
		return &apperr.ExchangeError{Reason: "token response has no refresh token"}
	}

	expiresAt := ExtractExpiry(token)
	return f.store.SaveCredentials(ctx, &store.Credentials{
		UserID:         userID,
		AccessToken:    token.AccessToken,
		RefreshToken:   token.RefreshToken,
		TokenExpiresAt: &expiresAt,
		AthleteID:      ExtractAthleteID(token),
	})
}
