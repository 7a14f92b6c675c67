package auth

import (
	"context"
	"errors"
	"sync"

	"fitsync/internal/apperr"
	"fitsync/internal/store"
)

// AppCredentials is a Strava application client id/secret pair
type AppCredentials struct {
	ClientID     string
	ClientSecret string
}

// AppCredentialStore reads the centrally stored app credentials
type AppCredentialStore interface {
	GetAppCredentials(ctx context.Context) (*store.AppCredentials, error)
}

// Resolver picks app credentials per field from, in order: a caller
// override, process configuration, and the central store.
type Resolver struct {
	env     AppCredentials
	central AppCredentialStore
}

// NewResolver creates a Resolver. central may be nil.
func NewResolver(env AppCredentials, central AppCredentialStore) *Resolver {
	return &Resolver{env: env, central: central}
}

// Resolve returns the effective app credentials or a ConfigError naming what is missing
func (r *Resolver) Resolve(ctx context.Context, override AppCredentials) (AppCredentials, error) {
	central := r.lazyCentral(ctx)

	id, err := firstNonEmpty(override.ClientID, r.env.ClientID, func() (string, error) {
		c, err := central()
		return c.ClientID, err
	})
	if err != nil {
		return AppCredentials{}, err
	}
	secret, err := firstNonEmpty(override.ClientSecret, r.env.ClientSecret, func() (string, error) {
		c, err := central()
		return c.ClientSecret, err
	})
	if err != nil {
		return AppCredentials{}, err
	}

	switch {
	case id == "" && secret == "":
		return AppCredentials{}, &apperr.ConfigError{Missing: "client id and client secret"}
	case id == "":
		return AppCredentials{}, &apperr.ConfigError{Missing: "client id"}
	case secret == "":
		return AppCredentials{}, &apperr.ConfigError{Missing: "client secret"}
	}
	return AppCredentials{ClientID: id, ClientSecret: secret}, nil
}

// ResolveClientID resolves only the client id, which is all the authorize step needs
func (r *Resolver) ResolveClientID(ctx context.Context, override string) (string, error) {
	central := r.lazyCentral(ctx)
	id, err := firstNonEmpty(override, r.env.ClientID, func() (string, error) {
		c, err := central()
		return c.ClientID, err
	})
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", &apperr.ConfigError{Missing: "client id"}
	}
	return id, nil
}

// lazyCentral reads the central row at most once per resolution, and only if needed
func (r *Resolver) lazyCentral(ctx context.Context) func() (AppCredentials, error) {
	return sync.OnceValues(func() (AppCredentials, error) {
		if r.central == nil {
			return AppCredentials{}, nil
		}
		c, err := r.central.GetAppCredentials(ctx)
		if errors.Is(err, store.ErrNoAppCredentials) {
			return AppCredentials{}, nil
		}
		if err != nil {
			return AppCredentials{}, err
		}
		return AppCredentials{ClientID: c.ClientID, ClientSecret: c.ClientSecret}, nil
	})
}

func firstNonEmpty(override, env string, central func() (string, error)) (string, error) {
	if override != "" {
		return override, nil
	}
	if env != "" {
		return env, nil
	}
	return central()
}

// Mask hides all but the first and last two characters of a credential
func Mask(v string) string {
	switch {
	case v == "":
		return ""
	case len(v) < 4:
		return "***"
	default:
		return v[:2] + "***" + v[len(v)-2:]
	}
}
