package kickapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGetChannelLive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/teststreamer" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": 123,
			"chatroom": {"id": 456},
			"livestream": {
				"is_live": true,
				"viewer_count": 1500,
				"session_title": "speedrun attempts",
				"created_at": "2025-06-01 18:00:00"
			}
		}`))
	}))
	defer srv.Close()

	c := &Client{APIBase: srv.URL}
	st, err := c.GetChannel(context.Background(), "teststreamer")
	if err != nil {
		t.Fatalf("GetChannel: %v", err)
	}
	if st.ChannelID != 123 || st.ChatroomID != 456 {
		t.Errorf("ids = %d/%d, want 123/456", st.ChannelID, st.ChatroomID)
	}
	if !st.IsLive || st.ViewerCount != 1500 || st.Title != "speedrun attempts" {
		t.Errorf("live state = %+v", st)
	}
	want := time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)
	if !st.StartedAt.Equal(want) {
		t.Errorf("StartedAt = %v, want %v", st.StartedAt, want)
	}
}

func TestGetChannelOffline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": 123, "chatroom": {"id": 456}, "livestream": null}`))
	}))
	defer srv.Close()

	c := &Client{APIBase: srv.URL}
	st, err := c.GetChannel(context.Background(), "teststreamer")
	if err != nil {
		t.Fatalf("GetChannel: %v", err)
	}
	if st.IsLive || st.ViewerCount != 0 {
		t.Errorf("offline state = %+v", st)
	}
	if st.ChatroomID != 456 {
		t.Errorf("ChatroomID = %d, want resolved even while offline", st.ChatroomID)
	}
}

func TestGetChannelNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := &Client{APIBase: srv.URL}
	if _, err := c.GetChannel(context.Background(), "nobody"); err == nil {
		t.Error("GetChannel must fail on 404")
	}
}

func TestGetChannelServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := &Client{APIBase: srv.URL}
	if _, err := c.GetChannel(context.Background(), "teststreamer"); err == nil {
		t.Error("GetChannel must fail on 502")
	}
}

func TestGetChannelEmptyStreamer(t *testing.T) {
	c := &Client{}
	if _, err := c.GetChannel(context.Background(), ""); err == nil {
		t.Error("GetChannel must reject an empty streamer")
	}
}
