package repositories

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/sift/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	return db
}

type record struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestKVRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Put and Get", func(t *testing.T) {
		repo := NewKVRepository(setupTestDB(t))

		if err := repo.Put(ctx, StorePlaylists, "all", record{Name: "mix", Count: 2}); err != nil {
			t.Fatalf("put failed: %v", err)
		}

		var got record
		found, err := repo.Get(ctx, StorePlaylists, "all", &got)
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if !found || got.Name != "mix" || got.Count != 2 {
			t.Errorf("unexpected record %+v (found=%v)", got, found)
		}
	})

	t.Run("Put replaces previous value", func(t *testing.T) {
		repo := NewKVRepository(setupTestDB(t))

		_ = repo.Put(ctx, StoreAuth, "credential", record{Name: "old"})
		if err := repo.Put(ctx, StoreAuth, "credential", record{Name: "new"}); err != nil {
			t.Fatalf("put failed: %v", err)
		}

		var got record
		if _, err := repo.Get(ctx, StoreAuth, "credential", &got); err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if got.Name != "new" {
			t.Errorf("expected replaced value, got %q", got.Name)
		}
	})

	t.Run("Get missing key", func(t *testing.T) {
		repo := NewKVRepository(setupTestDB(t))

		var got record
		found, err := repo.Get(ctx, StoreLibrary, "tracks", &got)
		if err != nil || found {
			t.Errorf("expected miss without error, got found=%v err=%v", found, err)
		}
	})

	t.Run("stores are isolated", func(t *testing.T) {
		repo := NewKVRepository(setupTestDB(t))

		_ = repo.Put(ctx, StoreLibrary, "k", record{Name: "library"})
		_ = repo.Put(ctx, StoreProfile, "k", record{Name: "profile"})

		var got record
		_, _ = repo.Get(ctx, StoreLibrary, "k", &got)
		if got.Name != "library" {
			t.Errorf("expected library record, got %q", got.Name)
		}
	})

	t.Run("Delete ListKeys and Clear", func(t *testing.T) {
		repo := NewKVRepository(setupTestDB(t))

		for _, k := range []string{"c", "a", "b"} {
			if err := repo.Put(ctx, StorePlaylistTracks, k, record{Name: k}); err != nil {
				t.Fatalf("put %s failed: %v", k, err)
			}
		}

		keys, err := repo.ListKeys(ctx, StorePlaylistTracks)
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if !reflect.DeepEqual(keys, []string{"a", "b", "c"}) {
			t.Errorf("expected sorted keys, got %v", keys)
		}

		if err := repo.Delete(ctx, StorePlaylistTracks, "b"); err != nil {
			t.Fatalf("delete failed: %v", err)
		}
		if err := repo.Delete(ctx, StorePlaylistTracks, "missing"); err != nil {
			t.Errorf("deleting a missing key should succeed: %v", err)
		}

		n, err := repo.Clear(ctx, StorePlaylistTracks)
		if err != nil {
			t.Fatalf("clear failed: %v", err)
		}
		if n != 2 {
			t.Errorf("expected 2 cleared, got %d", n)
		}
	})

	t.Run("SweepExpired", func(t *testing.T) {
		repo := NewKVRepository(setupTestDB(t))
		now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

		_ = repo.PutWithExpiry(ctx, StoreArtistFollowers, "old", record{}, now.Add(-time.Hour))
		_ = repo.PutWithExpiry(ctx, StoreArtistFollowers, "edge", record{}, now)
		_ = repo.PutWithExpiry(ctx, StoreArtistFollowers, "fresh", record{}, now.Add(time.Hour))
		_ = repo.Put(ctx, StoreArtistFollowers, "forever", record{})

		n, err := repo.SweepExpired(ctx, StoreArtistFollowers, now)
		if err != nil {
			t.Fatalf("sweep failed: %v", err)
		}
		if n != 2 {
			t.Errorf("expected 2 swept, got %d", n)
		}

		keys, _ := repo.ListKeys(ctx, StoreArtistFollowers)
		if !reflect.DeepEqual(keys, []string{"forever", "fresh"}) {
			t.Errorf("unexpected remaining keys %v", keys)
		}
	})

	t.Run("Stats covers every store", func(t *testing.T) {
		repo := NewKVRepository(setupTestDB(t))
		_ = repo.Put(ctx, StoreLibrary, "tracks", record{Name: "x"})

		stats, err := repo.Stats(ctx)
		if err != nil {
			t.Fatalf("stats failed: %v", err)
		}
		if len(stats) != len(Stores) {
			t.Fatalf("expected %d stores, got %d", len(Stores), len(stats))
		}
		for _, s := range stats {
			if s.Store == StoreLibrary && (s.Records != 1 || s.Bytes == 0) {
				t.Errorf("unexpected library stats %+v", s)
			}
		}
	})
}

func TestKVRepositoryErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("missing tables read as empty", func(t *testing.T) {
		db, err := shared.NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		defer db.Close()

		repo := NewKVRepository(db)

		var got record
		if found, err := repo.Get(ctx, StoreLibrary, "tracks", &got); err != nil || found {
			t.Errorf("expected empty read, got found=%v err=%v", found, err)
		}
		if keys, err := repo.ListKeys(ctx, StoreLibrary); err != nil || len(keys) != 0 {
			t.Errorf("expected no keys, got %v err=%v", keys, err)
		}
		if n, err := repo.SweepExpired(ctx, StoreArtistFollowers, time.Now()); err != nil || n != 0 {
			t.Errorf("expected empty sweep, got %d err=%v", n, err)
		}
	})

	t.Run("undecodable record", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewKVRepository(db)

		if _, err := db.Exec(
			"INSERT INTO kv_records (store, key, value, updated_at) VALUES (?, ?, ?, 0)",
			StoreLibrary, "tracks", []byte("{not json"),
		); err != nil {
			t.Fatalf("seed failed: %v", err)
		}

		var got record
		if _, err := repo.Get(ctx, StoreLibrary, "tracks", &got); !errors.Is(err, shared.ErrStorage) {
			t.Errorf("expected ErrStorage, got %v", err)
		}
	})

	t.Run("quota exceeded", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewKVRepository(db)
		_ = repo.Put(ctx, StoreProfile, "warmup", record{})

		if err := shared.LimitDatabaseSize(db, 1); err != nil {
			t.Fatalf("failed to limit size: %v", err)
		}

		big := record{Name: strings.Repeat("x", 256*1024)}
		err := repo.Put(ctx, StoreLibrary, "tracks", big)
		if !errors.Is(err, shared.ErrStorageQuotaExceeded) {
			t.Fatalf("expected ErrStorageQuotaExceeded, got %v", err)
		}

		var got record
		if found, _ := repo.Get(ctx, StoreLibrary, "tracks", &got); found {
			t.Error("failed write should not be visible")
		}
	})
}

func TestMigrateLegacy(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T, db *sql.DB, rows map[string]string) {
		t.Helper()
		for k, v := range rows {
			if _, err := db.Exec("INSERT INTO cache_entries (key, value) VALUES (?, ?)", k, v); err != nil {
				t.Fatalf("seed %s failed: %v", k, err)
			}
		}
	}

	t.Run("moves recognized keys on first use", func(t *testing.T) {
		db := setupTestDB(t)
		seed(t, db, map[string]string{
			"spotify_profile":        `{"name":"me"}`,
			"spotify_token":          `{"name":"token"}`,
			"playlist_tracks_p1":     `{"name":"p1"}`,
			"artist_followers_a1":    `{"followerCount":10,"expiresAt":1000}`,
			"spotify_library_tracks": `{"name":"lib"}`,
			"unrelated_key":          `{}`,
		})

		repo := NewKVRepository(db)

		var got record
		if found, err := repo.Get(ctx, StorePlaylistTracks, "p1", &got); err != nil || !found || got.Name != "p1" {
			t.Fatalf("expected migrated playlist tracks, got %+v found=%v err=%v", got, found, err)
		}
		if found, _ := repo.Get(ctx, StoreAuth, "credential", &got); !found || got.Name != "token" {
			t.Errorf("expected migrated credential, got %+v", got)
		}

		var remaining []string
		rows, err := db.Query("SELECT key FROM cache_entries")
		if err != nil {
			t.Fatalf("query failed: %v", err)
		}
		for rows.Next() {
			var k string
			_ = rows.Scan(&k)
			remaining = append(remaining, k)
		}
		rows.Close()
		if !reflect.DeepEqual(remaining, []string{"unrelated_key"}) {
			t.Errorf("expected only unrelated key left, got %v", remaining)
		}

		n, err := repo.SweepExpired(ctx, StoreArtistFollowers, time.UnixMilli(1000))
		if err != nil || n != 1 {
			t.Errorf("expected migrated follower expiry to be indexed, swept %d err=%v", n, err)
		}
	})

	t.Run("never overwrites newer data", func(t *testing.T) {
		db := setupTestDB(t)
		first := NewKVRepository(db)
		if err := first.Put(ctx, StoreProfile, "me", record{Name: "newer"}); err != nil {
			t.Fatalf("put failed: %v", err)
		}

		seed(t, db, map[string]string{"spotify_profile": `{"name":"older"}`})

		second := NewKVRepository(db)
		var got record
		if _, err := second.Get(ctx, StoreProfile, "me", &got); err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if got.Name != "newer" {
			t.Errorf("expected newer data to win, got %q", got.Name)
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		db := setupTestDB(t)
		seed(t, db, map[string]string{"spotify_playlists": `{"name":"all"}`})
		repo := NewKVRepository(db)

		n, err := repo.MigrateLegacy(ctx)
		if err != nil || n != 1 {
			t.Fatalf("expected 1 moved, got %d err=%v", n, err)
		}
		n, err = repo.MigrateLegacy(ctx)
		if err != nil || n != 0 {
			t.Errorf("expected second pass to move nothing, got %d err=%v", n, err)
		}
	})

	t.Run("mapLegacyKey", func(t *testing.T) {
		tc := []struct {
			in, store, key string
			ok             bool
		}{
			{"spotify_playlists", StorePlaylists, "all", true},
			{"playlist_tracks_37i9", StorePlaylistTracks, "37i9", true},
			{"artist_followers_", "", "", false},
			{"something_else", "", "", false},
		}
		for _, tt := range tc {
			store, key, ok := mapLegacyKey(tt.in)
			if store != tt.store || key != tt.key || ok != tt.ok {
				t.Errorf("mapLegacyKey(%q) = %q %q %v", tt.in, store, key, ok)
			}
		}
	})
}
