package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"

	"github.com/desertthunder/sift/internal/models"
	"github.com/desertthunder/sift/internal/shared"
)

var _ list.Item = trackItem{}

// trackItem wraps [models.Track] to implement [list.Item].
type trackItem struct {
	track *models.Track
}

func (i trackItem) FilterValue() string {
	return i.track.Name + " " + strings.Join(i.track.ArtistNames(), " ")
}

func (i trackItem) Title() string { return i.track.Name }

func (i trackItem) Description() string {
	desc := strings.Join(i.track.ArtistNames(), ", ")
	if i.track.Album.Name != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.track.Album.Name)
	}
	return fmt.Sprintf("%s • %s", desc, shared.FormatDuration(i.track.DurationMS))
}

func trackItems(tracks []*models.Track) []list.Item {
	items := make([]list.Item, 0, len(tracks))
	for _, t := range tracks {
		if t != nil {
			items = append(items, trackItem{track: t})
		}
	}
	return items
}
