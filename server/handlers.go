package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/clip-tender/backend/clipper"
	"github.com/onnwee/clip-tender/backend/youtubeapi"
)

// Handlers carries the dependencies of the HTTP endpoints.
type Handlers struct {
	DB      *sql.DB
	Status  func() map[string]clipper.Status // per-streamer snapshots
	YouTube *youtubeapi.Service              // nil disables the oauth routes

	// oauthState is the expected state value of an in-flight oauth flow.
	// Guarded by mu: start and callback run on separate request goroutines.
	mu         sync.Mutex
	oauthState string
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// HandleHealthz reports process liveness.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleReadyz reports readiness: the database must answer a ping.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	if h.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.DB.PingContext(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "db unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// HandleStatus returns the live snapshot of every watched streamer.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	statuses := map[string]clipper.Status{}
	if h.Status != nil {
		statuses = h.Status()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"streamers": statuses,
		"time":      time.Now().UTC(),
	})
}

// HandleYouTubeOAuthStart redirects to the Google consent page.
func (h *Handlers) HandleYouTubeOAuthStart(w http.ResponseWriter, r *http.Request) {
	state := uuid.New().String()
	h.mu.Lock()
	h.oauthState = state
	h.mu.Unlock()
	http.Redirect(w, r, h.YouTube.AuthCodeURL(state), http.StatusFound)
}

// HandleYouTubeOAuthCallback completes the flow and persists the token.
// The state is single-use: it is cleared on the first matching callback.
func (h *Handlers) HandleYouTubeOAuthCallback(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	h.mu.Lock()
	valid := h.oauthState != "" && state == h.oauthState
	if valid {
		h.oauthState = ""
	}
	h.mu.Unlock()
	if !valid {
		http.Error(w, "state mismatch", http.StatusBadRequest)
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing code", http.StatusBadRequest)
		return
	}
	if _, err := h.YouTube.Exchange(r.Context(), code); err != nil {
		slog.Error("youtube oauth exchange failed", slog.Any("err", err))
		http.Error(w, "exchange failed", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "youtube token stored"})
}
