// Package repositories implements the SQLite-backed key/value store behind the sift cache.
//
// Records live in named partitions ("stores") as JSON documents keyed by string:
//   - [StoreProfile] : the account profile
//   - [StoreLibrary] : saved library tracks
//   - [StorePlaylists] : playlist metadata
//   - [StorePlaylistTracks] : tracks per playlist id
//   - [StoreArtistFollowers] : follower counts with an expiry index
//   - [StoreAuth] : the OAuth credential
//
// A repository moves rows written by older releases into these partitions the first
// time it is used. See [KVRepository.MigrateLegacy].
package repositories
