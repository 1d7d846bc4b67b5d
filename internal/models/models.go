package models

import "time"

// CredentialLeeway is how long before expiry a credential is treated as expired.
const CredentialLeeway = 5 * time.Minute

// Image is an artwork URL with optional dimensions.
type Image struct {
	URL    string `json:"url"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// Artist is a track credit. ID may be empty when the service omits it.
type Artist struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// Album holds the album fields sift renders and filters on.
type Album struct {
	Name        string  `json:"name"`
	ReleaseDate string  `json:"release_date"`
	Images      []Image `json:"images"`
}

// Playlist is playlist metadata as listed for the current user.
type Playlist struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	OwnerID     string `json:"owner_id,omitempty"`
	OwnerName   string `json:"owner_name,omitempty"`
	Public      bool   `json:"public"`
	TrackCount  int    `json:"track_count"`
	ImageURL    string `json:"image_url,omitempty"`
	SnapshotID  string `json:"snapshot_id,omitempty"`
}

// Profile is the signed-in account.
type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
	Country     string `json:"country,omitempty"`
	Product     string `json:"product,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

// ArtistProfile is the subset of an artist lookup used for popularity filters.
type ArtistProfile struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	FollowerCount int    `json:"follower_count"`
}

// ArtistFollowers is the cached follower count for one artist.
type ArtistFollowers struct {
	FollowerCount int   `json:"followerCount"`
	ExpiresAt     int64 `json:"expiresAt"`
}

// Credential is the OAuth token pair owned by the token authority.
//
// ExpiresAt is epoch milliseconds and is authoritative over any expires_in value.
type Credential struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresAt    int64  `json:"expiresAt"`
}

// ExpiringSoon reports whether the credential must be refreshed before use at now.
func (c Credential) ExpiringSoon(now time.Time) bool {
	return now.UnixMilli() >= c.ExpiresAt-CredentialLeeway.Milliseconds()
}

// Expiry returns ExpiresAt as a [time.Time].
func (c Credential) Expiry() time.Time {
	return time.UnixMilli(c.ExpiresAt)
}

// CollectionCache wraps a persisted collection with its schema version and timestamps in epoch milliseconds.
type CollectionCache[T any] struct {
	Version      int   `json:"version"`
	Payload      T     `json:"payload"`
	CreatedAt    int64 `json:"createdAt"`
	LastSyncedAt int64 `json:"lastSyncedAt"`
}

// Fresh reports whether the cache was synced within ttl of now. A zero ttl never expires.
func (c CollectionCache[T]) Fresh(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return true
	}
	return now.UnixMilli()-c.LastSyncedAt < ttl.Milliseconds()
}
