package tasks

import (
	"time"

	"github.com/desertthunder/sift/internal/models"
)

// Filter selects tracks.
type Filter func(*models.Track) bool

// Range is an inclusive bound. A zero Max is unbounded.
type Range struct {
	Min int
	Max int
}

func (r Range) Contains(v int) bool {
	return v >= r.Min && (r.Max == 0 || v <= r.Max)
}

// DurationBetween keeps tracks whose length is within [lo, hi]. Tracks of unknown length are dropped.
func DurationBetween(lo, hi time.Duration) Filter {
	r := Range{Min: int(lo.Milliseconds()), Max: int(hi.Milliseconds())}
	return func(t *models.Track) bool {
		return t.DurationMS > 0 && r.Contains(t.DurationMS)
	}
}

// ReleasedBetween keeps tracks whose album year is within r. Tracks without a parseable year are dropped.
func ReleasedBetween(r Range) Filter {
	return func(t *models.Track) bool {
		y := t.ReleaseYear()
		return y > 0 && r.Contains(y)
	}
}

// FollowersBetween keeps tracks where any artist's follower count is within r. Artists missing from counts never match.
func FollowersBetween(counts map[string]int, r Range) Filter {
	return func(t *models.Track) bool {
		for _, a := range t.Artists {
			if n, ok := counts[a.ID]; ok && r.Contains(n) {
				return true
			}
		}
		return false
	}
}

// Apply returns the tracks that pass every filter, in order. Nil entries are dropped.
func Apply(tracks []*models.Track, filters ...Filter) []*models.Track {
	var out []*models.Track
	for _, t := range tracks {
		if t == nil {
			continue
		}
		keep := true
		for _, f := range filters {
			if !f(t) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, t)
		}
	}
	return out
}

// ArtistIDs returns the distinct artist ids across tracks in first-seen order.
func ArtistIDs(tracks []*models.Track) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, t := range tracks {
		if t == nil {
			continue
		}
		for _, a := range t.Artists {
			if a.ID != "" && !seen[a.ID] {
				seen[a.ID] = true
				ids = append(ids, a.ID)
			}
		}
	}
	return ids
}
