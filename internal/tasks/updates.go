package tasks

import "fmt"

// Phase names the collection being loaded.
type Phase int

const (
	FetchProfile Phase = iota
	FetchLibrary
	FetchPlaylists
	FetchPlaylistTracks
	FetchFollowers
)

func (p Phase) String() string {
	switch p {
	case FetchProfile:
		return "fetch_profile"
	case FetchLibrary:
		return "fetch_library"
	case FetchPlaylists:
		return "fetch_playlists"
	case FetchPlaylistTracks:
		return "fetch_playlist_tracks"
	case FetchFollowers:
		return "fetch_followers"
	default:
		return ""
	}
}

func (p Phase) label() string {
	switch p {
	case FetchProfile:
		return "profile"
	case FetchLibrary:
		return "library tracks"
	case FetchPlaylists:
		return "playlists"
	case FetchPlaylistTracks:
		return "playlist tracks"
	case FetchFollowers:
		return "artists"
	default:
		return "records"
	}
}

// Progress is reported after each page and once for a cache hit.
//
// Batch holds only the records added by this step, so a consumer can render incrementally.
type Progress[T any] struct {
	Phase     Phase
	Loaded    int
	Total     int
	Batch     []*T
	FromCache bool
}

// Message renders the update for display.
func (p Progress[T]) Message() string {
	if p.FromCache {
		return fmt.Sprintf("Loaded %d %s from cache", p.Loaded, p.Phase.label())
	}
	return fmt.Sprintf("[%d/%d] Fetching %s...", p.Loaded, p.Total, p.Phase.label())
}

// ProgressFunc receives progress updates. A nil ProgressFunc is ignored.
type ProgressFunc[T any] func(Progress[T])

func (f ProgressFunc[T]) send(p Progress[T]) {
	if f != nil {
		f(p)
	}
}
