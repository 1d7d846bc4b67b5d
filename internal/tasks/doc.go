// Package tasks keeps the local collection caches in step with the service.
//
// # Collections
//
// The [Synchronizer] serves the profile, saved library, playlist metadata and
// per-playlist tracks. Each is stored as one versioned [models.CollectionCache]:
//
//   - library tracks never expire on their own and are reused until a resync
//   - playlist metadata and playlist tracks expire after a configurable TTL
//   - a cache written with a different [CacheVersion] is discarded
//
// Cold loads page through the collection strictly in offset order and report a
// [Progress] after every page so the UI can render rows as they arrive. A failure
// to persist the result is returned as a warning next to the fresh records.
//
// # Resync
//
// Resync methods force a full fetch and report which ids were added and removed
// compared to the previous cache.
//
// # Artist followers
//
// [Synchronizer.ArtistFollowers] resolves follower counts through a 7-day cache,
// looking up misses in concurrent batches of ten. Expired entries are removed by
// [Synchronizer.SweepArtistFollowers], which [Synchronizer.RunSweeper] calls on an interval.
package tasks
