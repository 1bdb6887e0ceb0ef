// Package kickapi contains a minimal client for the public Kick channels API,
// used to resolve chatroom ids and poll liveness plus viewer counts.
package kickapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// DefaultAPIBase is the public channels endpoint.
const DefaultAPIBase = "https://kick.com/api/v2/channels"

// ChannelStatus is the subset of the channel payload the clipper needs.
type ChannelStatus struct {
	ChannelID   int64
	ChatroomID  int64
	IsLive      bool
	ViewerCount int
	Title       string
	StartedAt   time.Time
}

// StatusProvider reports the live status of a streamer's channel. The real
// implementation is Client; tests substitute fakes.
type StatusProvider interface {
	GetChannel(ctx context.Context, streamer string) (ChannelStatus, error)
}

// Client talks to the Kick channels API.
type Client struct {
	APIBase    string
	HTTPClient *http.Client
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) base() string {
	if c.APIBase != "" {
		return c.APIBase
	}
	return DefaultAPIBase
}

// GetChannel fetches the channel payload for a streamer login.
func (c *Client) GetChannel(ctx context.Context, streamer string) (ChannelStatus, error) {
	if streamer == "" {
		return ChannelStatus{}, fmt.Errorf("streamer empty")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base()+"/"+streamer, nil)
	if err != nil {
		return ChannelStatus{}, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http().Do(req)
	if err != nil {
		return ChannelStatus{}, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode == http.StatusNotFound {
		return ChannelStatus{}, fmt.Errorf("channel not found: %s", streamer)
	}
	if resp.StatusCode != http.StatusOK {
		return ChannelStatus{}, fmt.Errorf("kick channel request failed: %s", resp.Status)
	}

	var body struct {
		ID       int64 `json:"id"`
		Chatroom struct {
			ID int64 `json:"id"`
		} `json:"chatroom"`
		Livestream *struct {
			IsLive       bool   `json:"is_live"`
			ViewerCount  int    `json:"viewer_count"`
			SessionTitle string `json:"session_title"`
			CreatedAt    string `json:"created_at"`
		} `json:"livestream"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return ChannelStatus{}, err
	}

	st := ChannelStatus{ChannelID: body.ID, ChatroomID: body.Chatroom.ID}
	if ls := body.Livestream; ls != nil && ls.IsLive {
		st.IsLive = true
		st.ViewerCount = ls.ViewerCount
		st.Title = ls.SessionTitle
		if ls.CreatedAt != "" {
			// Kick reports "2006-01-02 15:04:05" in UTC.
			if t, err := time.Parse("2006-01-02 15:04:05", ls.CreatedAt); err == nil {
				st.StartedAt = t.UTC()
			}
		}
	}
	return st, nil
}
