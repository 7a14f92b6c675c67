package service

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fitsync/internal/auth"
	"fitsync/internal/logx"
	"fitsync/internal/store"
	"fitsync/internal/strava"
)

// fakeStrava serves the token and activity listing endpoints for several users
type fakeStrava struct {
	mu          sync.Mutex
	activities  map[string][]strava.Activity // by access token
	failRefresh map[string]bool              // by refresh token
	refreshes   int
	listings    int
	lastAfter   map[string]string // by access token
	srv         *httptest.Server
}

func newFakeStrava(t *testing.T) *fakeStrava {
	t.Helper()
	f := &fakeStrava{
		activities:  map[string][]strava.Activity{},
		failRefresh: map[string]bool{},
		lastAfter:   map[string]string{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", f.handleToken)
	mux.HandleFunc("/api/v3/athlete/activities", f.handleActivities)
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeStrava) handleToken(w http.ResponseWriter, r *http.Request) {
	r.ParseForm()
	rt := r.PostForm.Get("refresh_token")

	f.mu.Lock()
	f.refreshes++
	fail := f.failRefresh[rt]
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if fail {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"Bad Request","errors":[{"resource":"RefreshToken","code":"invalid"}]}`))
		return
	}
	json.NewEncoder(w).Encode(map[string]any{
		"token_type":    "Bearer",
		"access_token":  "fresh-" + rt,
		"refresh_token": rt,
		"expires_at":    time.Now().Add(6 * time.Hour).Unix(),
		"expires_in":    21600,
	})
}

func (f *fakeStrava) handleActivities(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))

	f.mu.Lock()
	f.listings++
	f.lastAfter[token] = r.URL.Query().Get("after")
	all, ok := f.activities[token]
	f.mu.Unlock()

	if !ok {
		http.Error(w, `{"message":"Authorization Error"}`, http.StatusUnauthorized)
		return
	}

	start := (page - 1) * perPage
	out := []strava.Activity{}
	if start < len(all) {
		end := min(start+perPage, len(all))
		out = all[start:end]
	}
	json.NewEncoder(w).Encode(out)
}

func (f *fakeStrava) rejectRefresh(refreshToken string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failRefresh[refreshToken] = true
}

func (f *fakeStrava) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

func (f *fakeStrava) listingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listings
}

func (f *fakeStrava) afterFor(accessToken string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastAfter[accessToken]
}

func (f *fakeStrava) endpoints() auth.Endpoints {
	return auth.Endpoints{AuthURL: f.srv.URL + "/oauth/authorize", TokenURL: f.srv.URL + "/oauth/token"}
}

func (f *fakeStrava) client() *strava.Client {
	return strava.NewClient(f.srv.URL+"/api/v3", f.srv.Client(), strava.NewRateLimiter(0))
}

func (f *fakeStrava) setActivities(accessToken string, acts []strava.Activity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activities[accessToken] = acts
}

func runActivities(ids ...int64) []strava.Activity {
	out := make([]strava.Activity, len(ids))
	for i, id := range ids {
		out[i] = strava.Activity{
			ID:          id,
			Name:        "Run " + strconv.FormatInt(id, 10),
			SportType:   "Run",
			StartDate:   time.Date(2025, 1, 1, 7, 0, 0, 0, time.UTC).Add(time.Duration(id) * time.Hour),
			MovingTime:  1800,
			ElapsedTime: 1900,
			Distance:    5000,
			Timezone:    "(GMT-05:00) America/New_York",
		}
	}
	return out
}

var testApp = auth.AppCredentials{ClientID: "client", ClientSecret: "secret"}

// connectUser stores credentials whose token is valid for an hour, or expired if expired is set
func connectUser(t *testing.T, db *store.DB, userID string, expired bool) {
	t.Helper()
	expiry := time.Now().Add(time.Hour)
	if expired {
		expiry = time.Now().Add(-time.Hour)
	}
	require.NoError(t, db.SaveCredentials(t.Context(), &store.Credentials{
		UserID:         userID,
		AccessToken:    "tok-" + userID,
		RefreshToken:   "r-" + userID,
		TokenExpiresAt: &expiry,
		AthleteID:      "1" + userID,
	}))
}

func newTestSyncService(db *store.DB, f *fakeStrava) *SyncService {
	refresher := auth.NewRefresher(f.endpoints(), db, f.srv.Client(), 0)
	return NewSyncService(db, refresher, f.client(), NewMemoryLocker(), SyncOptions{}, logx.Discard())
}
