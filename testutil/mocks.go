// Package testutil holds shared test fixtures: a mock Kick channel API and
// the Postgres test gate.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// MockKickServer mocks the Kick channel API used by the viewer signal.
type MockKickServer struct {
	*httptest.Server

	mu       sync.Mutex
	channels map[string]map[string]any
}

// NewMockKickServer creates a mock channel API. Unknown streamers return 404.
func NewMockKickServer(t *testing.T) *MockKickServer {
	t.Helper()
	m := &MockKickServer{channels: make(map[string]map[string]any)}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		payload, ok := m.channels[r.URL.Path]
		m.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(payload) //nolint:errcheck // test mock response
	}))
	t.Cleanup(m.Close)
	return m
}

// SetOffline registers a streamer with no livestream.
func (m *MockKickServer) SetOffline(streamer string, channelID, chatroomID int64) {
	m.set(streamer, map[string]any{
		"id":         channelID,
		"chatroom":   map[string]any{"id": chatroomID},
		"livestream": nil,
	})
}

// SetLive registers a streamer as live with the given viewer count.
func (m *MockKickServer) SetLive(streamer string, channelID, chatroomID int64, viewers int, title string) {
	m.set(streamer, map[string]any{
		"id":       channelID,
		"chatroom": map[string]any{"id": chatroomID},
		"livestream": map[string]any{
			"is_live":       true,
			"viewer_count":  viewers,
			"session_title": title,
			"created_at":    "2025-06-01 18:00:00",
		},
	})
}

func (m *MockKickServer) set(streamer string, payload map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels["/"+streamer] = payload
}
