// Package youtubeapi wraps Google OAuth2 client config and the YouTube Data
// API for the single purpose of uploading clip videos. Tokens are persisted
// via the provided TokenStore interface so they can be refreshed and reused
// by the upload job.
package youtubeapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	yt "google.golang.org/api/youtube/v3"

	"github.com/onnwee/clip-tender/backend/config"
)

const provider = "youtube"

// TokenStore persists OAuth tokens keyed by provider.
type TokenStore interface {
	UpsertOAuthToken(ctx context.Context, provider string, accessToken string, refreshToken string, expiry time.Time, raw string) error
	GetOAuthToken(ctx context.Context, provider string) (accessToken string, refreshToken string, expiry time.Time, raw string, err error)
}

// Service holds the OAuth client config and the token store.
type Service struct {
	cfg   *config.Config
	store TokenStore
	oauth *oauth2.Config
}

// New builds a Service from the configured YouTube client credentials.
func New(cfg *config.Config, ts TokenStore) *Service {
	scopes := []string{"https://www.googleapis.com/auth/youtube.upload"}
	if cfg.YTScopes != "" {
		// comma or space separated
		if fields := strings.Fields(strings.ReplaceAll(cfg.YTScopes, ",", " ")); len(fields) > 0 {
			scopes = fields
		}
	}
	return &Service{
		cfg:   cfg,
		store: ts,
		oauth: &oauth2.Config{
			ClientID:     cfg.YTClientID,
			ClientSecret: cfg.YTClientSecret,
			Endpoint:     google.Endpoint,
			RedirectURL:  cfg.YTRedirectURI,
			Scopes:       scopes,
		},
	}
}

// AuthCodeURL returns the consent URL for the offline flow.
func (s *Service) AuthCodeURL(state string) string {
	return s.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an auth code for a token and persists it.
func (s *Service) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	rawBytes, _ := json.Marshal(tok)
	_ = s.store.UpsertOAuthToken(ctx, provider, tok.AccessToken, tok.RefreshToken, tok.Expiry, string(rawBytes))
	return tok, nil
}

func (s *Service) refreshIfNeeded(ctx context.Context) (*oauth2.Token, error) {
	access, refresh, expiry, raw, err := s.store.GetOAuthToken(ctx, provider)
	if err != nil {
		return nil, err
	}
	if access == "" {
		return nil, errors.New("no youtube token stored")
	}
	var tok oauth2.Token
	if raw != "" {
		_ = json.Unmarshal([]byte(raw), &tok)
	}
	if tok.AccessToken == "" {
		tok.AccessToken = access
	}
	tok.RefreshToken = refresh
	tok.Expiry = expiry
	if time.Until(tok.Expiry) > 2*time.Minute {
		return &tok, nil
	}
	newTok, err := s.oauth.TokenSource(ctx, &tok).Token()
	if err != nil {
		return &tok, err
	}
	rawBytes, _ := json.Marshal(newTok)
	_ = s.store.UpsertOAuthToken(ctx, provider, newTok.AccessToken, newTok.RefreshToken, newTok.Expiry, string(rawBytes))
	return newTok, nil
}

// Client returns an authenticated YouTube service, refreshing the stored
// token when it is near expiry.
func (s *Service) Client(ctx context.Context) (*yt.Service, error) {
	tok, err := s.refreshIfNeeded(ctx)
	if err != nil {
		return nil, err
	}
	return yt.New(s.oauth.Client(ctx, tok))
}

// RefreshToken performs one provider refresh with the given refresh token.
// Shaped for oauth.RefreshFunc.
func (s *Service) RefreshToken(ctx context.Context, refreshToken string) (string, string, time.Time, string, error) {
	tok := &oauth2.Token{RefreshToken: refreshToken}
	newTok, err := s.oauth.TokenSource(ctx, tok).Token()
	if err != nil {
		return "", "", time.Time{}, "", err
	}
	return newTok.AccessToken, newTok.RefreshToken, newTok.Expiry, strings.Join(s.oauth.Scopes, " "), nil
}

// UploadVideo uploads the clip at path with the given title, description and
// privacy, returning the watch URL.
func UploadVideo(ctx context.Context, svc *yt.Service, path, title, description, privacy string) (string, error) {
	if svc == nil {
		return "", fmt.Errorf("nil youtube service")
	}
	if privacy == "" {
		privacy = "private"
	}
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file: %w", err)
	}
	defer f.Close()
	video := &yt.Video{
		Snippet: &yt.VideoSnippet{Title: title, Description: description},
		Status:  &yt.VideoStatus{PrivacyStatus: privacy},
	}
	res, err := svc.Videos.Insert([]string{"snippet", "status"}, video).Media(f).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("youtube upload: %w", err)
	}
	if res.Id == "" {
		return "", fmt.Errorf("youtube upload: empty id")
	}
	return "https://www.youtube.com/watch?v=" + res.Id, nil
}
