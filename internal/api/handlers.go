package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"fitsync/internal/apperr"
	"fitsync/internal/auth"
	"fitsync/internal/service"
	"fitsync/internal/store"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Store is the persistence the HTTP layer reads and writes directly
type Store interface {
	GetCredentials(ctx context.Context, userID string) (*store.Credentials, error)
	LastSyncRun(ctx context.Context, userID string) (*store.SyncRun, error)
	ListActivities(ctx context.Context, userID string, limit, offset int) ([]store.Activity, error)
	SaveAppCredentials(ctx context.Context, clientID, clientSecret string) error
	ClearTokens(ctx context.Context, userID string) error
	PingContext(ctx context.Context) error
}

// Syncer runs the per-user pipeline
type Syncer interface {
	SyncUser(ctx context.Context, userID string, app auth.AppCredentials, mode service.Mode) (*service.SyncResult, error)
}

// BatchRunner runs one scheduled batch
type BatchRunner interface {
	RunOnce(ctx context.Context) (*service.BatchResult, error)
}

// OAuthFlow builds consent URLs and exchanges codes
type OAuthFlow interface {
	Authorize(ctx context.Context, userID, overrideClientID, redirectURI string) (string, error)
	Exchange(ctx context.Context, userID, code string, override auth.AppCredentials) error
}

// AppResolver resolves the effective app credentials
type AppResolver interface {
	Resolve(ctx context.Context, override auth.AppCredentials) (auth.AppCredentials, error)
}

// Handler serves the fitsync HTTP API
type Handler struct {
	store    Store
	syncer   Syncer
	batch    BatchRunner
	oauth    OAuthFlow
	resolver AppResolver
	logger   *slog.Logger
}

// --- Request DTOs ---

type syncRequest struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
}

type authorizeRequest struct {
	ClientID    string `json:"clientId"`
	RedirectURI string `json:"redirectUri" validate:"required,url"`
}

type exchangeRequest struct {
	Code         string `json:"code"`
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
}

type configRequest struct {
	ClientID     string `json:"clientId" validate:"required,max=64"`
	ClientSecret string `json:"clientSecret" validate:"required,max=128"`
}

// --- Responses ---

type syncResponse struct {
	Success             bool `json:"success"`
	ActivitiesProcessed int  `json:"activitiesProcessed"`
	InsertedCount       int  `json:"insertedCount"`
	UpdatedCount        int  `json:"updatedCount"`
}

type configResponse struct {
	Success        bool   `json:"success,omitempty"`
	Configured     bool   `json:"configured"`
	ClientIDMasked string `json:"clientIdMasked"`
}

type settingsResponse struct {
	Connected  bool           `json:"connected"`
	AthleteID  string         `json:"athleteId,omitempty"`
	LastSyncAt *time.Time     `json:"lastSyncAt"`
	LastRun    *store.SyncRun `json:"lastRun"`
}

type batchResponse struct {
	Success     bool                  `json:"success"`
	RunID       string                `json:"runId"`
	SyncedUsers int                   `json:"syncedUsers"`
	Results     []service.UserOutcome `json:"results"`
}

// Sync handles POST /api/v1/strava/sync
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := decodeJSON(r, &req, true); err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	ctx := r.Context()
	app, err := h.resolver.Resolve(ctx, auth.AppCredentials{ClientID: req.ClientID, ClientSecret: req.ClientSecret})
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	result, err := h.syncer.SyncUser(ctx, UserIDFromContext(ctx), app, service.ModeManual)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, syncResponse{
		Success:             true,
		ActivitiesProcessed: result.ActivitiesProcessed,
		InsertedCount:       result.InsertedCount,
		UpdatedCount:        result.UpdatedCount,
	})
}

// Authorize handles POST /api/v1/strava/oauth/authorize
func (h *Handler) Authorize(w http.ResponseWriter, r *http.Request) {
	var req authorizeRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	if err := Validate(req); err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	ctx := r.Context()
	authURL, err := h.oauth.Authorize(ctx, UserIDFromContext(ctx), req.ClientID, req.RedirectURI)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"authUrl": authURL})
}

// Exchange handles POST /api/v1/strava/oauth/exchange
func (h *Handler) Exchange(w http.ResponseWriter, r *http.Request) {
	var req exchangeRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	ctx := r.Context()
	override := auth.AppCredentials{ClientID: req.ClientID, ClientSecret: req.ClientSecret}
	if err := h.oauth.Exchange(ctx, UserIDFromContext(ctx), req.Code, override); err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Disconnect handles DELETE /api/v1/strava/connection. Stored activities and
// the sync cursor are kept.
func (h *Handler) Disconnect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.store.ClearTokens(ctx, UserIDFromContext(ctx)); err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// GetConfig handles GET /api/v1/strava/config
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	app, err := h.resolver.Resolve(r.Context(), auth.AppCredentials{})
	var configErr *apperr.ConfigError
	switch {
	case errors.As(err, &configErr):
		writeJSON(w, http.StatusOK, configResponse{Configured: false})
	case err != nil:
		writeError(w, r, err, h.logger)
	default:
		writeJSON(w, http.StatusOK, configResponse{Configured: true, ClientIDMasked: auth.Mask(app.ClientID)})
	}
}

// SaveConfig handles POST /api/v1/strava/config
func (h *Handler) SaveConfig(w http.ResponseWriter, r *http.Request) {
	var req configRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	if err := Validate(req); err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	if err := h.store.SaveAppCredentials(r.Context(), req.ClientID, req.ClientSecret); err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, configResponse{
		Success:        true,
		Configured:     true,
		ClientIDMasked: auth.Mask(req.ClientID),
	})
}

// Settings handles GET /api/v1/settings
func (h *Handler) Settings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := UserIDFromContext(ctx)

	var resp settingsResponse
	creds, err := h.store.GetCredentials(ctx, userID)
	switch {
	case errors.Is(err, store.ErrNoCredentials):
	case err != nil:
		writeError(w, r, err, h.logger)
		return
	default:
		resp.Connected = creds.Connected()
		resp.AthleteID = creds.AthleteID
		resp.LastSyncAt = creds.LastSyncAt
	}

	if resp.LastRun, err = h.store.LastSyncRun(ctx, userID); err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListActivities handles GET /api/v1/activities
func (h *Handler) ListActivities(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultListLimit)
	if err == nil && (limit < 1 || limit > maxListLimit) {
		err = apperr.InvalidInput("limit must be between 1 and %d", maxListLimit)
	}
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err == nil && offset < 0 {
		err = apperr.InvalidInput("offset must not be negative")
	}
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	ctx := r.Context()
	activities, err := h.store.ListActivities(ctx, UserIDFromContext(ctx), limit, offset)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	if activities == nil {
		activities = []store.Activity{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"activities": activities})
}

// ScheduledSync handles POST /internal/scheduled-sync
func (h *Handler) ScheduledSync(w http.ResponseWriter, r *http.Request) {
	batch, err := h.batch.RunOnce(r.Context())
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, batchResponse{
		Success:     true,
		RunID:       batch.RunID,
		SyncedUsers: batch.Count(service.OutcomeSuccess),
		Results:     batch.Results,
	})
}

// Live handles GET /livez
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready handles GET /readyz
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.store.PingContext(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.InvalidInput("%s must be an integer", key)
	}
	return v, nil
}
