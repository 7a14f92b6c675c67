package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// AuthTimeout is how long to wait for the user to complete auth
const AuthTimeout = 5 * time.Minute

// CallbackServer receives the OAuth redirect on a local port so the CLI
// can connect a user without the HTTP API
type CallbackServer struct {
	listener net.Listener
	server   *http.Server
	state    string
	codeCh   chan string
	errCh    chan error
}

// NewCallbackServer listens on addr (e.g. "127.0.0.1:8089") and accepts a
// single callback carrying the expected state
func NewCallbackServer(addr, state string) (*CallbackServer, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("starting callback server: %w", err)
	}

	cs := &CallbackServer{
		listener: listener,
		state:    state,
		codeCh:   make(chan string, 1),
		errCh:    make(chan error, 1),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", cs.handleCallback)
	cs.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := cs.server.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
			cs.fail(fmt.Errorf("server error: %w", err))
		}
	}()
	return cs, nil
}

// RedirectURL is the URL Strava should send the user back to
func (cs *CallbackServer) RedirectURL() string {
	return "http://" + cs.listener.Addr().String() + "/callback"
}

// Wait blocks until the callback arrives, the timeout passes or ctx is done,
// then shuts the server down
func (cs *CallbackServer) Wait(ctx context.Context, timeout time.Duration) (string, error) {
	defer cs.shutdown()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case code := <-cs.codeCh:
		return code, nil
	case err := <-cs.errCh:
		return "", err
	case <-timer.C:
		return "", fmt.Errorf("authentication timeout after %v", timeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (cs *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("state") != cs.state {
		cs.fail(errors.New("state mismatch"))
		http.Error(w, "State mismatch", http.StatusBadRequest)
		return
	}
	if errMsg := q.Get("error"); errMsg != "" {
		cs.fail(fmt.Errorf("auth error: %s", errMsg))
		http.Error(w, "Authentication failed", http.StatusBadRequest)
		return
	}
	code := q.Get("code")
	if code == "" {
		cs.fail(errors.New("no code in callback"))
		http.Error(w, "No authorization code", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/html")
	fmt.Fprint(w, `<!DOCTYPE html>
<html>
<head><title>Strava connected</title></head>
<body style="font-family: system-ui; text-align: center; margin-top: 20vh;">
<h1>Connected</h1>
<p>You can close this window and return to the terminal.</p>
</body>
</html>`)

	select {
	case cs.codeCh <- code:
	default:
	}
}

func (cs *CallbackServer) fail(err error) {
	select {
	case cs.errCh <- err:
	default:
	}
}

// Close stops the server without waiting for a callback
func (cs *CallbackServer) Close() {
	cs.shutdown()
}

func (cs *CallbackServer) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	cs.server.Shutdown(ctx)
}
