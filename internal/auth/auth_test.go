package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"fitsync/internal/store"
)

// fakeTokenServer answers every token request with status and body and counts calls
func fakeTokenServer(t *testing.T, status int, body string) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("parsing token request: %v", err)
		}
		if r.PostForm.Get("client_id") == "" || r.PostForm.Get("client_secret") == "" {
			t.Errorf("client credentials not sent in body: %v", r.PostForm)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

const tokenResponse = `{
	"token_type": "Bearer",
	"access_token": "new-access",
	"refresh_token": "new-refresh",
	"expires_at": 1767225600,
	"expires_in": 21600,
	"athlete": {"id": 12345, "username": "runner"}
}`

func testEndpoints(srv *httptest.Server) Endpoints {
	return Endpoints{AuthURL: "https://www.strava.com/oauth/authorize", TokenURL: srv.URL + "/oauth/token"}
}

type updateCall struct {
	UserID, Access, Refresh string
	ExpiresAt               time.Time
}

// recordingStore captures token writes
type recordingStore struct {
	mu      sync.Mutex
	updates []updateCall
	saved   []*store.Credentials
	err     error
}

func (s *recordingStore) UpdateTokens(_ context.Context, userID, access, refresh string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, updateCall{userID, access, refresh, expiresAt})
	return s.err
}

func (s *recordingStore) SaveCredentials(_ context.Context, c *store.Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, c)
	return s.err
}

var testApp = AppCredentials{ClientID: "client-1", ClientSecret: "secret-1"}
