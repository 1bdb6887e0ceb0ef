// Package oauth provides token refresh scheduling for providers whose tokens
// live in the oauth_tokens table. It wakes with jitter and refreshes when
// expiry falls within a configured window.
package oauth

import (
	"context"
	"database/sql"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/onnwee/clip-tender/backend/db"
)

// RefreshFunc performs provider-specific refresh and returns
// (access, refresh, expiry, scope).
type RefreshFunc func(ctx context.Context, refreshToken string) (string, string, time.Time, string, error)

// StartRefresher launches a goroutine that periodically checks the token row
// for provider and refreshes it when the remaining lifetime is at most
// window. Tokens are read and written through the db helpers so encrypted
// rows round-trip correctly.
func StartRefresher(ctx context.Context, dbx *sql.DB, provider string, interval, window time.Duration, fn RefreshFunc) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	logger := slog.Default().With(slog.String("component", "oauth_refresh"), slog.String("provider", provider))

	// Randomized initial delay spreads load across instances.
	//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
	initialJitter := time.Duration(rand.Int63n(int64(interval / 2)))
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(initialJitter):
		}
		for {
			//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
			jitterRange := int64(interval / 5)
			jitter := time.Duration(rand.Int63n(jitterRange*2) - jitterRange)
			nextSleep := interval + jitter
			if nextSleep < interval/2 {
				nextSleep = interval / 2
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(nextSleep):
			}

			_, rt, exp, scope, err := db.GetOAuthToken(ctx, dbx, provider)
			if err != nil || rt == "" {
				continue
			}
			if time.Until(exp) > window {
				continue
			}

			refreshCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			newAT, newRT, newExp, newScope, err := fn(refreshCtx, rt)
			cancel()
			if err != nil {
				logger.Warn("token refresh failed", slog.Any("err", err))
				continue
			}
			if newRT == "" {
				newRT = rt
			}
			if newScope == "" {
				newScope = scope
			}
			if err := db.UpsertOAuthToken(ctx, dbx, provider, newAT, newRT, newExp, strings.TrimSpace(newScope)); err != nil {
				logger.Warn("token persist failed", slog.Any("err", err))
				continue
			}
			logger.Info("token refreshed")
		}
	}()
}
