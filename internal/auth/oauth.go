package auth

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/oauth2"
)

const (
	// Strava OAuth endpoints
	AuthURL  = "https://www.strava.com/oauth/authorize"
	TokenURL = "https://www.strava.com/oauth/token"
)

// Scopes required for our app (Strava uses comma-separated scopes)
var Scopes = []string{
	"read,activity:read_all",
}

// Endpoints locates Strava's OAuth endpoints. Tests point them at a fake.
type Endpoints struct {
	AuthURL  string
	TokenURL string
}

// DefaultEndpoints returns Strava's production endpoints
func DefaultEndpoints() Endpoints {
	return Endpoints{AuthURL: AuthURL, TokenURL: TokenURL}
}

// NewOAuthConfig creates an oauth2.Config for the given app credentials.
// Strava expects client_id/client_secret in the request body.
func NewOAuthConfig(ep Endpoints, app AppCredentials, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     app.ClientID,
		ClientSecret: app.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:   ep.AuthURL,
			TokenURL:  ep.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		RedirectURL: redirectURL,
		Scopes:      Scopes,
	}
}

// withHTTPClient makes oauth2 use client for token endpoint calls
func withHTTPClient(ctx context.Context, client *http.Client) context.Context {
	if client == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, client)
}

// ExtractAthleteID extracts the athlete ID from the token extras.
// Strava includes athlete info in the token response.
func ExtractAthleteID(token *oauth2.Token) string {
	athlete, ok := token.Extra("athlete").(map[string]interface{})
	if !ok {
		return ""
	}
	switch id := athlete["id"].(type) {
	case float64:
		return strconv.FormatInt(int64(id), 10)
	case string:
		return id
	}
	return ""
}

// ExtractExpiry prefers Strava's absolute expires_at over the
// expires_in-derived expiry computed by oauth2
func ExtractExpiry(token *oauth2.Token) time.Time {
	switch v := token.Extra("expires_at").(type) {
	case float64:
		if v > 0 {
			return time.Unix(int64(v), 0).UTC()
		}
	case int64:
		if v > 0 {
			return time.Unix(v, 0).UTC()
		}
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			return time.Unix(n, 0).UTC()
		}
	}
	return token.Expiry.UTC()
}
