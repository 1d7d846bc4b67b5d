// Spotify Web API endpoints
//
// Response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/desertthunder/sift/internal/models"
	"github.com/desertthunder/sift/internal/shared"
)

// MaxPageSize is the largest limit the paginated endpoints accept.
const MaxPageSize = 50

type spotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

type spotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type spotifyAlbum struct {
	Name        string         `json:"name"`
	ReleaseDate string         `json:"release_date"`
	Images      []spotifyImage `json:"images"`
}

type spotifyTrack struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Type       string          `json:"type"`
	Artists    []spotifyArtist `json:"artists"`
	Album      spotifyAlbum    `json:"album"`
	DurationMS int             `json:"duration_ms"`
	URI        string          `json:"uri"`
}

type spotifyUser struct {
	ID          string         `json:"id"`
	DisplayName string         `json:"display_name"`
	Email       string         `json:"email"`
	Country     string         `json:"country"`
	Product     string         `json:"product"`
	Images      []spotifyImage `json:"images"`
}

type spotifyPlaylist struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Owner       struct {
		ID          string `json:"id"`
		DisplayName string `json:"display_name"`
	} `json:"owner"`
	Public     bool           `json:"public"`
	SnapshotID string         `json:"snapshot_id"`
	Images     []spotifyImage `json:"images"`
	Tracks     struct {
		Total int `json:"total"`
	} `json:"tracks"`
}

// trackItem wraps a track in saved-track and playlist-track pages. Either level may be null.
type trackItem struct {
	Track *spotifyTrack `json:"track"`
}

type paging[T any] struct {
	Items  []*T `json:"items"`
	Total  int  `json:"total"`
	Limit  int  `json:"limit"`
	Offset int  `json:"offset"`
}

type spotifyDevice struct {
	ID            *string `json:"id"`
	Name          string  `json:"name"`
	Type          string  `json:"type"`
	IsActive      bool    `json:"is_active"`
	IsRestricted  bool    `json:"is_restricted"`
	VolumePercent *int    `json:"volume_percent"`
}

type spotifyPlayback struct {
	Device     spotifyDevice `json:"device"`
	IsPlaying  bool          `json:"is_playing"`
	ProgressMS int           `json:"progress_ms"`
	Item       *spotifyTrack `json:"item"`
}

// Page is one page of a paginated collection. Items holds nil for entries that are null or not tracks.
type Page[T any] struct {
	Items []*T
	Total int
}

// SpotifyClient exposes the endpoints sift uses.
type SpotifyClient struct {
	gw *Gateway
}

// NewSpotifyClient creates a client over gw.
func NewSpotifyClient(gw *Gateway) *SpotifyClient {
	return &SpotifyClient{gw: gw}
}

func (c *SpotifyClient) Me(ctx context.Context) (*models.Profile, error) {
	u, err := Get[spotifyUser](ctx, c.gw, "/me")
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("%w: empty profile response", shared.ErrAPIRequest)
	}
	p := &models.Profile{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		Country:     u.Country,
		Product:     u.Product,
	}
	if len(u.Images) > 0 {
		p.ImageURL = u.Images[0].URL
	}
	return p, nil
}

// SavedTracks returns a page of the user's liked songs.
func (c *SpotifyClient) SavedTracks(ctx context.Context, limit, offset int) (*Page[models.Track], error) {
	return c.trackPage(ctx, fmt.Sprintf("/me/tracks?limit=%d&offset=%d", limit, offset))
}

// PlaylistTracks returns a page of a playlist's entries. Episodes come back as nil.
func (c *SpotifyClient) PlaylistTracks(ctx context.Context, playlistID string, limit, offset int) (*Page[models.Track], error) {
	return c.trackPage(ctx, fmt.Sprintf("/playlists/%s/tracks?limit=%d&offset=%d", url.PathEscape(playlistID), limit, offset))
}

func (c *SpotifyClient) trackPage(ctx context.Context, endpoint string) (*Page[models.Track], error) {
	p, err := Get[paging[trackItem]](ctx, c.gw, endpoint)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return &Page[models.Track]{}, nil
	}

	page := &Page[models.Track]{Items: make([]*models.Track, len(p.Items)), Total: p.Total}
	for i, item := range p.Items {
		if item == nil || item.Track == nil {
			continue
		}
		if item.Track.Type != "" && item.Track.Type != "track" {
			continue
		}
		page.Items[i] = toTrack(item.Track)
	}
	return page, nil
}

// UserPlaylists returns a page of playlists owned or followed by the user.
func (c *SpotifyClient) UserPlaylists(ctx context.Context, limit, offset int) (*Page[models.Playlist], error) {
	p, err := Get[paging[spotifyPlaylist]](ctx, c.gw, fmt.Sprintf("/me/playlists?limit=%d&offset=%d", limit, offset))
	if err != nil {
		return nil, err
	}
	if p == nil {
		return &Page[models.Playlist]{}, nil
	}

	page := &Page[models.Playlist]{Items: make([]*models.Playlist, len(p.Items)), Total: p.Total}
	for i, sp := range p.Items {
		if sp == nil {
			continue
		}
		pl := &models.Playlist{
			ID:          sp.ID,
			Name:        sp.Name,
			Description: sp.Description,
			OwnerID:     sp.Owner.ID,
			OwnerName:   sp.Owner.DisplayName,
			Public:      sp.Public,
			TrackCount:  sp.Tracks.Total,
			SnapshotID:  sp.SnapshotID,
		}
		if len(sp.Images) > 0 {
			pl.ImageURL = sp.Images[0].URL
		}
		page.Items[i] = pl
	}
	return page, nil
}

// Artist looks up an artist's follower count.
func (c *SpotifyClient) Artist(ctx context.Context, artistID string) (*models.ArtistProfile, error) {
	a, err := Get[struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		Followers struct {
			Total int `json:"total"`
		} `json:"followers"`
	}](ctx, c.gw, "/artists/"+url.PathEscape(artistID))
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("%w: empty artist response", shared.ErrAPIRequest)
	}
	return &models.ArtistProfile{ID: a.ID, Name: a.Name, FollowerCount: a.Followers.Total}, nil
}

// Devices lists the user's available playback devices.
func (c *SpotifyClient) Devices(ctx context.Context) ([]models.Device, error) {
	resp, err := Get[struct {
		Devices []spotifyDevice `json:"devices"`
	}](ctx, c.gw, "/me/player/devices")
	if err != nil || resp == nil {
		return nil, err
	}

	devices := make([]models.Device, 0, len(resp.Devices))
	for _, d := range resp.Devices {
		devices = append(devices, toDevice(d))
	}
	return devices, nil
}

// PlaybackState returns the current playback, or nil when nothing is playing on any device.
func (c *SpotifyClient) PlaybackState(ctx context.Context) (*models.PlaybackState, error) {
	p, err := Get[spotifyPlayback](ctx, c.gw, "/me/player")
	if err != nil || p == nil {
		return nil, err
	}

	state := &models.PlaybackState{
		Paused:     !p.IsPlaying,
		PositionMS: p.ProgressMS,
		DeviceName: p.Device.Name,
	}
	if p.Device.ID != nil {
		state.DeviceID = *p.Device.ID
	}
	if p.Item != nil {
		state.Track = toTrack(p.Item)
		state.DurationMS = p.Item.DurationMS
	}
	return state, nil
}

// Play starts the given track URIs. An empty deviceID targets the active device.
func (c *SpotifyClient) Play(ctx context.Context, deviceID string, uris []string) error {
	body := struct {
		URIs []string `json:"uris"`
	}{URIs: uris}
	_, err := c.gw.Do(ctx, http.MethodPut, withDevice("/me/player/play", deviceID), body, nil)
	return err
}

// Resume continues the current context.
func (c *SpotifyClient) Resume(ctx context.Context, deviceID string) error {
	_, err := c.gw.Do(ctx, http.MethodPut, withDevice("/me/player/play", deviceID), nil, nil)
	return err
}

func (c *SpotifyClient) Pause(ctx context.Context, deviceID string) error {
	_, err := c.gw.Do(ctx, http.MethodPut, withDevice("/me/player/pause", deviceID), nil, nil)
	return err
}

func (c *SpotifyClient) Seek(ctx context.Context, deviceID string, positionMS int) error {
	endpoint := withDevice(fmt.Sprintf("/me/player/seek?position_ms=%d", positionMS), deviceID)
	_, err := c.gw.Do(ctx, http.MethodPut, endpoint, nil, nil)
	return err
}

// Transfer moves playback to deviceID, starting it when play is set.
func (c *SpotifyClient) Transfer(ctx context.Context, deviceID string, play bool) error {
	body := struct {
		DeviceIDs []string `json:"device_ids"`
		Play      bool     `json:"play"`
	}{DeviceIDs: []string{deviceID}, Play: play}
	_, err := c.gw.Do(ctx, http.MethodPut, "/me/player", body, nil)
	return err
}

func withDevice(endpoint, deviceID string) string {
	if deviceID == "" {
		return endpoint
	}
	sep := "?"
	if u, err := url.Parse(endpoint); err == nil && u.RawQuery != "" {
		sep = "&"
	}
	return endpoint + sep + "device_id=" + url.QueryEscape(deviceID)
}

func toTrack(st *spotifyTrack) *models.Track {
	t := &models.Track{
		ID:         st.ID,
		Name:       st.Name,
		URI:        st.URI,
		DurationMS: st.DurationMS,
		Album: models.Album{
			Name:        st.Album.Name,
			ReleaseDate: st.Album.ReleaseDate,
		},
	}
	for _, a := range st.Artists {
		t.Artists = append(t.Artists, models.Artist{ID: a.ID, Name: a.Name})
	}
	for _, img := range st.Album.Images {
		t.Album.Images = append(t.Album.Images, models.Image{URL: img.URL, Width: img.Width, Height: img.Height})
	}
	return t
}

func toDevice(d spotifyDevice) models.Device {
	dev := models.Device{
		Name:         d.Name,
		Type:         d.Type,
		IsActive:     d.IsActive,
		IsRestricted: d.IsRestricted,
	}
	if d.ID != nil {
		dev.ID = *d.ID
	}
	if d.VolumePercent != nil {
		dev.VolumePercent = *d.VolumePercent
	}
	return dev
}
