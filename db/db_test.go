package db

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/onnwee/clip-tender/backend/trigger"
)

// setupDB mirrors testutil.SetupTestDB; the testutil package imports db, so
// the db tests open their own connection.
func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	dbx, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	if err := Migrate(context.Background(), dbx); err != nil {
		dbx.Close()
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { dbx.Close() })
	return dbx
}

func TestSessionLifecycle(t *testing.T) {
	dbx := setupDB(t)
	ctx := context.Background()

	id, err := StartSession(ctx, dbx, "teststreamer")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if id == 0 {
		t.Fatal("session id is zero")
	}

	if err := LogMoment(ctx, dbx, id, "viewer_spike", 0.9, 350, 100, 3.5, "map[ratio:3.5]"); err != nil {
		t.Fatalf("LogMoment: %v", err)
	}

	if err := EndSession(ctx, dbx, id); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	var endedAt sql.NullTime
	if err := dbx.QueryRow(`SELECT ended_at FROM sessions WHERE id=$1`, id).Scan(&endedAt); err != nil {
		t.Fatalf("query session: %v", err)
	}
	if !endedAt.Valid {
		t.Error("ended_at not set")
	}
}

func TestClipQueue(t *testing.T) {
	dbx := setupDB(t)
	ctx := context.Background()
	if _, err := dbx.Exec(`DELETE FROM clips`); err != nil {
		t.Fatalf("reset clips: %v", err)
	}

	path := "/data/clips/teststreamer/teststreamer_keyword_20250601_180000_001.mp4"
	if err := RegisterClip(ctx, dbx, 0, "teststreamer", path, "keyword", 0.7); err != nil {
		t.Fatalf("RegisterClip: %v", err)
	}
	// Registering the same path again is a no-op.
	if err := RegisterClip(ctx, dbx, 0, "teststreamer", path, "keyword", 0.7); err != nil {
		t.Fatalf("RegisterClip duplicate: %v", err)
	}
	var n int
	if err := dbx.QueryRow(`SELECT COUNT(*) FROM clips WHERE path=$1`, path).Scan(&n); err != nil {
		t.Fatalf("count clips: %v", err)
	}
	if n != 1 {
		t.Fatalf("clip rows = %d, want 1", n)
	}

	// A fresh clip is eligible immediately.
	clip, ok, err := NextClipForUpload(ctx, dbx, 10*time.Minute, 5)
	if err != nil || !ok {
		t.Fatalf("NextClipForUpload: ok=%v err=%v", ok, err)
	}
	if clip.Path != path || clip.SessionID.Valid {
		t.Errorf("clip = %+v, want path match and NULL session", clip)
	}

	// A recorded failure takes it out of the queue until retryAfter passes.
	if err := MarkClipUploadError(ctx, dbx, clip.ID, context.DeadlineExceeded); err != nil {
		t.Fatalf("MarkClipUploadError: %v", err)
	}
	if _, ok, err = NextClipForUpload(ctx, dbx, 10*time.Minute, 5); err != nil || ok {
		t.Fatalf("failed clip still queued: ok=%v err=%v", ok, err)
	}
	if _, ok, err = NextClipForUpload(ctx, dbx, 0, 5); err != nil || !ok {
		t.Fatalf("clip not requeued after the retry interval: ok=%v err=%v", ok, err)
	}

	if err := MarkClipUploaded(ctx, dbx, clip.ID, "https://youtu.be/abc"); err != nil {
		t.Fatalf("MarkClipUploaded: %v", err)
	}
	if _, ok, err = NextClipForUpload(ctx, dbx, 0, 5); err != nil || ok {
		t.Fatalf("uploaded clip still queued: ok=%v err=%v", ok, err)
	}
}

func TestBaselineStoreRoundTrip(t *testing.T) {
	dbx := setupDB(t)
	ctx := context.Background()
	store := &BaselineStore{DB: dbx}

	saved := trigger.BaselineSnapshot{
		Mean:    12.5,
		Stddev:  3.25,
		Count:   120,
		SavedAt: time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC),
	}
	if err := store.SaveBaseline(ctx, "chan-test-42", saved); err != nil {
		t.Fatalf("SaveBaseline: %v", err)
	}
	// Upsert replaces the row.
	saved.Mean = 14.0
	if err := store.SaveBaseline(ctx, "chan-test-42", saved); err != nil {
		t.Fatalf("SaveBaseline upsert: %v", err)
	}

	got, ok, err := store.LoadBaseline(ctx, "chan-test-42")
	if err != nil || !ok {
		t.Fatalf("LoadBaseline: ok=%v err=%v", ok, err)
	}
	if got.Mean != 14.0 || got.Stddev != 3.25 || got.Count != 120 {
		t.Errorf("snapshot = %+v", got)
	}
	if !got.SavedAt.Equal(saved.SavedAt) {
		t.Errorf("SavedAt = %v, want %v", got.SavedAt, saved.SavedAt)
	}

	if _, ok, err := store.LoadBaseline(ctx, "chan-test-missing"); err != nil || ok {
		t.Errorf("missing channel: ok=%v err=%v, want not found", ok, err)
	}
}

func TestOAuthTokenRoundTrip(t *testing.T) {
	dbx := setupDB(t)
	ctx := context.Background()
	if _, err := dbx.Exec(`DELETE FROM oauth_tokens WHERE provider='db-test-provider'`); err != nil {
		t.Fatalf("reset oauth_tokens: %v", err)
	}

	expiry := time.Now().Add(time.Hour).Truncate(time.Second)
	if err := UpsertOAuthToken(ctx, dbx, "db-test-provider", "access-1", "refresh-1", expiry, "scope-a"); err != nil {
		t.Fatalf("UpsertOAuthToken: %v", err)
	}
	access, refresh, exp, scope, err := GetOAuthToken(ctx, dbx, "db-test-provider")
	if err != nil {
		t.Fatalf("GetOAuthToken: %v", err)
	}
	if access != "access-1" || refresh != "refresh-1" || scope != "scope-a" {
		t.Errorf("token = %q/%q/%q", access, refresh, scope)
	}
	if !exp.Equal(expiry) {
		t.Errorf("expiry = %v, want %v", exp, expiry)
	}

	// Unknown provider returns zero values without error.
	access, _, _, _, err = GetOAuthToken(ctx, dbx, "db-test-nope")
	if err != nil || access != "" {
		t.Errorf("missing provider = %q err %v", access, err)
	}
}
