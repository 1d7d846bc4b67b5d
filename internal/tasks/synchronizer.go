package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/sift/internal/models"
	"github.com/desertthunder/sift/internal/repositories"
	"github.com/desertthunder/sift/internal/services"
	"github.com/desertthunder/sift/internal/shared"
)

// CacheVersion is the schema version of every collection cache written by this build.
const CacheVersion = 3

const (
	DefaultPageSize          = services.MaxPageSize
	DefaultPlaylistTTL       = 24 * time.Hour
	DefaultPlaylistTracksTTL = 24 * time.Hour
	DefaultProfileTTL        = 24 * time.Hour
)

// Source is the remote side of the synchronizer, usually a [services.SpotifyClient].
type Source interface {
	Me(ctx context.Context) (*models.Profile, error)
	SavedTracks(ctx context.Context, limit, offset int) (*services.Page[models.Track], error)
	UserPlaylists(ctx context.Context, limit, offset int) (*services.Page[models.Playlist], error)
	PlaylistTracks(ctx context.Context, playlistID string, limit, offset int) (*services.Page[models.Track], error)
	Artist(ctx context.Context, artistID string) (*models.ArtistProfile, error)
}

// Store is the local side of the synchronizer, usually a [repositories.KVRepository].
type Store interface {
	Get(ctx context.Context, store, key string, dst any) (bool, error)
	Put(ctx context.Context, store, key string, value any) error
	PutWithExpiry(ctx context.Context, store, key string, value any, expiresAt time.Time) error
	Delete(ctx context.Context, store, key string) error
	SweepExpired(ctx context.Context, store string, now time.Time) (int, error)
}

// FetchResult is a loaded collection.
//
// Warning is set when the records could not be persisted; the records are still valid.
type FetchResult[T any] struct {
	Records   []*T
	FromCache bool
	SyncedAt  time.Time
	Warning   error
}

// ResyncResult lists what changed between the previous cache and a forced fetch.
//
// Added keeps fetch order and Removed keeps the previous cache order.
type ResyncResult[T any] struct {
	Added   []*T
	Removed []string
	Records []*T
	Warning error
}

// Synchronizer serves collections from the local cache and refreshes them from the service.
type Synchronizer struct {
	source Source
	store  Store
	logger *log.Logger
	now    func() time.Time

	pageSize          int
	playlistTTL       time.Duration
	playlistTracksTTL time.Duration
	profileTTL        time.Duration
}

// Option configures a [Synchronizer].
type Option func(*Synchronizer)

// WithPageSize sets the page size between 1 and the service maximum. Other values keep the default.
func WithPageSize(n int) Option {
	return func(s *Synchronizer) {
		if n > 0 && n <= services.MaxPageSize {
			s.pageSize = n
		}
	}
}

// WithTTLs sets the freshness windows for playlist metadata and playlist tracks. Zero keeps the default.
func WithTTLs(playlists, playlistTracks time.Duration) Option {
	return func(s *Synchronizer) {
		if playlists > 0 {
			s.playlistTTL = playlists
		}
		if playlistTracks > 0 {
			s.playlistTracksTTL = playlistTracks
		}
	}
}

// WithClock replaces the clock used for freshness checks and cache timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Synchronizer) { s.now = now }
}

// WithLogger replaces the component logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Synchronizer) { s.logger = l }
}

// NewSynchronizer creates a Synchronizer over source and store.
func NewSynchronizer(source Source, store Store, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		source:            source,
		store:             store,
		logger:            shared.WithLogger(log.Default(), "component", "sync"),
		now:               time.Now,
		pageSize:          DefaultPageSize,
		playlistTTL:       DefaultPlaylistTTL,
		playlistTracksTTL: DefaultPlaylistTracksTTL,
		profileTTL:        DefaultProfileTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// collection describes one cached, paginated collection. T is the full record and M its persisted form.
type collection[T any, M any] struct {
	phase    Phase
	store    string
	key      string
	ttl      time.Duration
	page     func(ctx context.Context, limit, offset int) (*services.Page[T], error)
	id       func(*T) string
	minimize func(*T) M
	expand   func(M) *T
}

// cacheHeader decodes the version before the payload so an older payload shape never reaches the decoder.
type cacheHeader struct {
	Version      int             `json:"version"`
	Payload      json.RawMessage `json:"payload"`
	CreatedAt    int64           `json:"createdAt"`
	LastSyncedAt int64           `json:"lastSyncedAt"`
}

func (s *Synchronizer) readHeader(ctx context.Context, store, key string) (*cacheHeader, error) {
	var h cacheHeader
	found, err := s.store.Get(ctx, store, key, &h)
	if err != nil || !found {
		return nil, err
	}
	return &h, nil
}

// loadCache returns the current-version cache at store/key, discarding records that are outdated or unreadable.
func loadCache[M any](ctx context.Context, s *Synchronizer, store, key string) (*models.CollectionCache[M], bool) {
	h, err := s.readHeader(ctx, store, key)
	if err != nil {
		s.logger.Warn("discarding unreadable cache", "store", store, "key", key, "error", err)
		s.discard(ctx, store, key)
		return nil, false
	}
	if h == nil {
		return nil, false
	}
	if h.Version != CacheVersion {
		s.logger.Info("discarding cache from another version", "store", store, "key", key, "version", h.Version)
		s.discard(ctx, store, key)
		return nil, false
	}

	cache := &models.CollectionCache[M]{Version: h.Version, CreatedAt: h.CreatedAt, LastSyncedAt: h.LastSyncedAt}
	if err := json.Unmarshal(h.Payload, &cache.Payload); err != nil {
		s.logger.Warn("discarding undecodable cache payload", "store", store, "key", key, "error", err)
		s.discard(ctx, store, key)
		return nil, false
	}
	return cache, true
}

func (s *Synchronizer) discard(ctx context.Context, store, key string) {
	if err := s.store.Delete(ctx, store, key); err != nil {
		s.logger.Warn("failed to delete cache", "store", store, "key", key, "error", err)
	}
}

// persist replaces the cache at store/key, keeping the original creation time when a current-version cache exists.
func persist[M any](ctx context.Context, s *Synchronizer, store, key string, payload M, syncedAt time.Time) error {
	createdAt := syncedAt.UnixMilli()
	if h, err := s.readHeader(ctx, store, key); err == nil && h != nil && h.Version == CacheVersion && h.CreatedAt > 0 {
		createdAt = h.CreatedAt
	}

	cache := models.CollectionCache[M]{
		Version:      CacheVersion,
		Payload:      payload,
		CreatedAt:    createdAt,
		LastSyncedAt: syncedAt.UnixMilli(),
	}
	if err := s.store.Put(ctx, store, key, cache); err != nil {
		s.logger.Warn("failed to persist cache", "store", store, "key", key, "error", err)
		return err
	}
	return nil
}

func fetchCollection[T any, M any](ctx context.Context, s *Synchronizer, c collection[T, M], force bool, progress ProgressFunc[T]) (*FetchResult[T], error) {
	now := s.now()
	if !force {
		if cache, ok := loadCache[[]M](ctx, s, c.store, c.key); ok && cache.Fresh(now, c.ttl) {
			records := make([]*T, len(cache.Payload))
			for i, m := range cache.Payload {
				records[i] = c.expand(m)
			}
			progress.send(Progress[T]{Phase: c.phase, Loaded: len(records), Total: len(records), Batch: records, FromCache: true})
			return &FetchResult[T]{Records: records, FromCache: true, SyncedAt: time.UnixMilli(cache.LastSyncedAt)}, nil
		}
	}

	records, err := fetchPages(ctx, s, c, progress)
	if err != nil {
		return nil, err
	}

	syncedAt := s.now()
	minimized := make([]M, len(records))
	for i, r := range records {
		minimized[i] = c.minimize(r)
	}

	result := &FetchResult[T]{Records: records, SyncedAt: syncedAt}
	if err := persist(ctx, s, c.store, c.key, minimized, syncedAt); err != nil {
		result.Warning = err
	}
	return result, nil
}

// fetchPages requests pages one at a time in offset order until the offset reaches the reported total.
func fetchPages[T any, M any](ctx context.Context, s *Synchronizer, c collection[T, M], progress ProgressFunc[T]) ([]*T, error) {
	var records []*T
	for offset := 0; ; offset += s.pageSize {
		page, err := c.page(ctx, s.pageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("fetch %s at offset %d: %w", c.phase.label(), offset, err)
		}

		batch := make([]*T, 0, len(page.Items))
		for _, item := range page.Items {
			if item != nil {
				batch = append(batch, item)
			}
		}
		records = append(records, batch...)
		progress.send(Progress[T]{Phase: c.phase, Loaded: len(records), Total: page.Total, Batch: batch})

		if len(page.Items) == 0 || offset+s.pageSize >= page.Total {
			return records, nil
		}
	}
}

func resyncCollection[T any, M any](ctx context.Context, s *Synchronizer, c collection[T, M], progress ProgressFunc[T]) (*ResyncResult[T], error) {
	previous := previousIDs(ctx, s, c)

	fresh, err := fetchCollection(ctx, s, c, true, progress)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(fresh.Records))
	result := &ResyncResult[T]{Records: fresh.Records, Warning: fresh.Warning}
	for _, r := range fresh.Records {
		id := c.id(r)
		if id == "" {
			continue
		}
		if !previous.has(id) && !seen[id] {
			result.Added = append(result.Added, r)
		}
		seen[id] = true
	}
	for _, id := range previous.order {
		if !seen[id] {
			result.Removed = append(result.Removed, id)
		}
	}
	return result, nil
}

type idSet struct {
	order []string
	set   map[string]bool
}

func (s idSet) has(id string) bool { return s.set[id] }

// previousIDs reads ids from the existing cache regardless of its version or age.
func previousIDs[T any, M any](ctx context.Context, s *Synchronizer, c collection[T, M]) idSet {
	ids := idSet{set: make(map[string]bool)}

	h, err := s.readHeader(ctx, c.store, c.key)
	if err != nil || h == nil {
		return ids
	}
	var payload []M
	if err := json.Unmarshal(h.Payload, &payload); err != nil {
		return ids
	}
	for _, m := range payload {
		id := c.id(c.expand(m))
		if id != "" && !ids.set[id] {
			ids.set[id] = true
			ids.order = append(ids.order, id)
		}
	}
	return ids
}

func (s *Synchronizer) libraryCollection() collection[models.Track, models.MinimizedTrack] {
	return collection[models.Track, models.MinimizedTrack]{
		phase:    FetchLibrary,
		store:    repositories.StoreLibrary,
		key:      "tracks",
		page:     s.source.SavedTracks,
		id:       trackKey,
		minimize: models.Minimize,
		expand:   models.Expand,
	}
}

func (s *Synchronizer) playlistsCollection() collection[models.Playlist, models.Playlist] {
	return collection[models.Playlist, models.Playlist]{
		phase:    FetchPlaylists,
		store:    repositories.StorePlaylists,
		key:      "all",
		ttl:      s.playlistTTL,
		page:     s.source.UserPlaylists,
		id:       func(p *models.Playlist) string { return p.ID },
		minimize: func(p *models.Playlist) models.Playlist { return *p },
		expand:   func(p models.Playlist) *models.Playlist { return &p },
	}
}

func (s *Synchronizer) playlistTracksCollection(playlistID string) collection[models.Track, models.MinimizedTrack] {
	return collection[models.Track, models.MinimizedTrack]{
		phase: FetchPlaylistTracks,
		store: repositories.StorePlaylistTracks,
		key:   playlistID,
		ttl:   s.playlistTracksTTL,
		page: func(ctx context.Context, limit, offset int) (*services.Page[models.Track], error) {
			return s.source.PlaylistTracks(ctx, playlistID, limit, offset)
		},
		id:       trackKey,
		minimize: models.Minimize,
		expand:   models.Expand,
	}
}

// trackKey identifies a track for resync diffs. Local files have no id, so their URI stands in.
func trackKey(t *models.Track) string {
	if t.ID != "" {
		return t.ID
	}
	return t.URI
}

// FetchLibraryTracks returns the saved library, from cache unless force is set or no cache exists.
func (s *Synchronizer) FetchLibraryTracks(ctx context.Context, force bool, progress ProgressFunc[models.Track]) (*FetchResult[models.Track], error) {
	return fetchCollection(ctx, s, s.libraryCollection(), force, progress)
}

// FetchPlaylists returns playlist metadata, refetching once the cache is older than the playlist TTL.
func (s *Synchronizer) FetchPlaylists(ctx context.Context, force bool, progress ProgressFunc[models.Playlist]) (*FetchResult[models.Playlist], error) {
	return fetchCollection(ctx, s, s.playlistsCollection(), force, progress)
}

// FetchPlaylistTracks returns the tracks of one playlist.
func (s *Synchronizer) FetchPlaylistTracks(ctx context.Context, playlistID string, force bool, progress ProgressFunc[models.Track]) (*FetchResult[models.Track], error) {
	if playlistID == "" {
		return nil, fmt.Errorf("%w: playlist id", shared.ErrMissingArgument)
	}
	return fetchCollection(ctx, s, s.playlistTracksCollection(playlistID), force, progress)
}

func (s *Synchronizer) ResyncLibraryTracks(ctx context.Context, progress ProgressFunc[models.Track]) (*ResyncResult[models.Track], error) {
	return resyncCollection(ctx, s, s.libraryCollection(), progress)
}

func (s *Synchronizer) ResyncPlaylists(ctx context.Context, progress ProgressFunc[models.Playlist]) (*ResyncResult[models.Playlist], error) {
	return resyncCollection(ctx, s, s.playlistsCollection(), progress)
}

func (s *Synchronizer) ResyncPlaylistTracks(ctx context.Context, playlistID string, progress ProgressFunc[models.Track]) (*ResyncResult[models.Track], error) {
	if playlistID == "" {
		return nil, fmt.Errorf("%w: playlist id", shared.ErrMissingArgument)
	}
	return resyncCollection(ctx, s, s.playlistTracksCollection(playlistID), progress)
}

// FetchProfile returns the account profile, cached for a day.
func (s *Synchronizer) FetchProfile(ctx context.Context, force bool) (*FetchResult[models.Profile], error) {
	const key = "me"
	if !force {
		if cache, ok := loadCache[models.Profile](ctx, s, repositories.StoreProfile, key); ok && cache.Fresh(s.now(), s.profileTTL) {
			p := cache.Payload
			return &FetchResult[models.Profile]{Records: []*models.Profile{&p}, FromCache: true, SyncedAt: time.UnixMilli(cache.LastSyncedAt)}, nil
		}
	}

	p, err := s.source.Me(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}

	syncedAt := s.now()
	result := &FetchResult[models.Profile]{Records: []*models.Profile{p}, SyncedAt: syncedAt}
	if err := persist(ctx, s, repositories.StoreProfile, key, *p, syncedAt); err != nil {
		result.Warning = err
	}
	return result, nil
}
