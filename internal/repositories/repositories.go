package repositories

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/mattn/go-sqlite3"

	"github.com/desertthunder/sift/internal/shared"
)

// Partition names.
const (
	StoreProfile         = "profile"
	StoreLibrary         = "library"
	StorePlaylists       = "playlists"
	StorePlaylistTracks  = "playlist_tracks"
	StoreArtistFollowers = "artist_followers"
	StoreAuth            = "auth"
)

// Stores lists every partition in display order.
var Stores = []string{
	StoreProfile,
	StoreLibrary,
	StorePlaylists,
	StorePlaylistTracks,
	StoreArtistFollowers,
	StoreAuth,
}

// ValidStore reports whether name is a known partition.
func ValidStore(name string) bool {
	for _, s := range Stores {
		if s == name {
			return true
		}
	}
	return false
}

// wrapWriteError maps SQLite failures onto the shared storage errors.
func wrapWriteError(op, store, key string, err error) error {
	if isQuotaError(err) {
		return fmt.Errorf("%w: %s %s/%s", shared.ErrStorageQuotaExceeded, op, store, key)
	}
	return fmt.Errorf("%w: %s %s/%s: %v", shared.ErrStorage, op, store, key, err)
}

func isQuotaError(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrFull
	}
	return strings.Contains(err.Error(), "database or disk is full")
}

// isMissingTable reports an error caused by a table that has not been created yet.
func isMissingTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}

func defaultLogger() *log.Logger {
	return shared.WithLogger(log.Default(), "component", "kv")
}
