// Package models defines the data shapes shared by the sift cache, sync and playback layers.
//
// The package contains three categories of types:
//
// 1. Transient service records: full shapes decoded from API responses
//   - [Track] : Song metadata with ordered artists and album images
//   - [Playlist] : Playlist metadata, stored as-is
//   - [Profile] : The signed-in user's account profile
//
// 2. Persisted records: compact shapes written to the local key/value store
//   - [MinimizedTrack] : The only track shape on disk, see [Minimize] and [Expand]
//   - [CollectionCache] : A versioned wrapper around one collection payload
//   - [ArtistFollowers] : A follower count with its own expiry
//   - [Credential] : The OAuth access and refresh token pair
//
// 3. Live playback shapes that are never stored
//   - [Device] : An output device as reported by the service
//   - [PlaybackState] : Normalized local or remote playback state
package models
