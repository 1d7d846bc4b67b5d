package server

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"sync"

	"github.com/desertthunder/sift/internal/shared"
)

// LoginFunc exchanges an authorization code for a stored credential.
type LoginFunc func(ctx context.Context, code string) error

// CallbackResult is the outcome of a callback request.
type CallbackResult struct {
	Err error
}

// CallbackHandler handles the OAuth redirect for a single pending login.
type CallbackHandler struct {
	path   string
	state  string
	login  LoginFunc
	result chan CallbackResult
	once   sync.Once

	mu  sync.Mutex
	hit bool
}

// NewCallbackHandler creates a handler for path that accepts only state.
func NewCallbackHandler(path, state string, login LoginFunc) *CallbackHandler {
	if path == "" {
		path = "/callback"
	}
	return &CallbackHandler{
		path:   path,
		state:  state,
		login:  login,
		result: make(chan CallbackResult, 1),
	}
}

func (h *CallbackHandler) Routes() []string {
	return []string{h.path}
}

func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.hit {
		h.mu.Unlock()
		http.Error(w, "Callback already processed", http.StatusBadRequest)
		return
	}
	h.hit = true
	h.mu.Unlock()

	q := r.URL.Query()
	if q.Get("state") != h.state {
		h.send(fmt.Errorf("%w: state mismatch", shared.ErrAuthFailed))
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		return
	}

	code := q.Get("code")
	if code == "" {
		h.send(fmt.Errorf("%w: %s %s", shared.ErrAuthFailed, q.Get("error"), q.Get("error_description")))
		http.Error(w, "Authorization failed", http.StatusBadRequest)
		return
	}

	if err := h.login(r.Context(), code); err != nil {
		h.send(err)
		http.Error(w, "Token exchange failed", http.StatusInternalServerError)
		return
	}

	h.send(nil)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	successPage.Execute(w, nil)
}

// Cancel completes the handler with err if no callback has arrived yet.
func (h *CallbackHandler) Cancel(err error) {
	if err == nil {
		err = errors.New("login cancelled")
	}
	h.send(err)
}

func (h *CallbackHandler) send(err error) {
	h.once.Do(func() {
		h.result <- CallbackResult{Err: err}
		close(h.result)
	})
}

// Result receives exactly one value and is then closed.
func (h *CallbackHandler) Result() <-chan CallbackResult {
	return h.result
}

var successPage = template.Must(template.New("success").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>sift: signed in</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .container { text-align: center; background: white; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { color: #1DB954; margin: 0 0 1rem 0; }
        p { color: #666; margin: 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1>Signed in to Spotify</h1>
        <p>You can close this window and return to the terminal.</p>
    </div>
</body>
</html>
`))
