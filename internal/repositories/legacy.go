package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/desertthunder/sift/internal/shared"
)

// legacyKeys maps fixed keys from the flat cache_entries table to their partition and key.
var legacyKeys = map[string][2]string{
	"spotify_profile":        {StoreProfile, "me"},
	"spotify_library_tracks": {StoreLibrary, "tracks"},
	"spotify_playlists":      {StorePlaylists, "all"},
	"spotify_token":          {StoreAuth, "credential"},
}

// legacyPrefixes maps key prefixes to partitions. The remainder of the key is the new key.
var legacyPrefixes = [][2]string{
	{"playlist_tracks_", StorePlaylistTracks},
	{"artist_followers_", StoreArtistFollowers},
}

// mapLegacyKey returns the partition and key for a legacy key, or ok=false for keys sift does not own.
func mapLegacyKey(key string) (store, newKey string, ok bool) {
	if dest, found := legacyKeys[key]; found {
		return dest[0], dest[1], true
	}
	for _, p := range legacyPrefixes {
		if rest, found := strings.CutPrefix(key, p[0]); found && rest != "" {
			return p[1], rest, true
		}
	}
	return "", "", false
}

// legacyExpiry reads the expiry field that follower entries embedded in their JSON value.
func legacyExpiry(store, value string) sql.NullInt64 {
	if store != StoreArtistFollowers {
		return sql.NullInt64{}
	}
	var v struct {
		ExpiresAt int64 `json:"expiresAt"`
	}
	if err := json.Unmarshal([]byte(value), &v); err != nil || v.ExpiresAt == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: v.ExpiresAt, Valid: true}
}

// MigrateLegacy moves recognized rows from cache_entries into kv_records in one transaction and returns how many moved.
//
// Existing partitioned records win over legacy rows. Unrecognized keys stay in cache_entries.
// Running it again after a successful pass is a no-op.
func (r *KVRepository) MigrateLegacy(ctx context.Context) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin legacy migration: %v", shared.ErrStorage, err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, "SELECT key, value FROM cache_entries")
	if isMissingTable(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: read legacy entries: %v", shared.ErrStorage, err)
	}

	type entry struct{ key, value string }
	var entries []entry
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.key, &e.value); err != nil {
			rows.Close()
			return 0, fmt.Errorf("%w: scan legacy entry: %v", shared.ErrStorage, err)
		}
		entries = append(entries, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	moved := 0
	now := r.now().UnixMilli()
	for _, e := range entries {
		store, key, ok := mapLegacyKey(e.key)
		if !ok {
			continue
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO kv_records (store, key, value, expires_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
		`, store, key, []byte(e.value), legacyExpiry(store, e.value), now); err != nil {
			return 0, wrapWriteError("migrate", store, key, err)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM cache_entries WHERE key = ?", e.key); err != nil {
			return 0, wrapWriteError("migrate", "cache_entries", e.key, err)
		}
		moved++
	}

	if err := tx.Commit(); err != nil {
		return 0, wrapWriteError("migrate", "cache_entries", "*", err)
	}
	return moved, nil
}
