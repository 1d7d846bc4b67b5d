package tasks

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/desertthunder/sift/internal/models"
	"github.com/desertthunder/sift/internal/repositories"
	"github.com/desertthunder/sift/internal/shared"
)

const (
	// FollowerTTL is how long a looked-up follower count stays valid.
	FollowerTTL = 7 * 24 * time.Hour
	// FollowerBatchSize is how many artist lookups run at once.
	FollowerBatchSize = 10
)

// ArtistFollowers resolves follower counts for ids, using cached counts that have not expired.
//
// Misses are looked up in batches of [FollowerBatchSize]; each batch completes before the next starts.
// A failed lookup is logged and leaves that id out of the result. Only authentication errors abort.
func (s *Synchronizer) ArtistFollowers(ctx context.Context, ids []string, progress ProgressFunc[models.ArtistProfile]) (map[string]int, error) {
	counts := make(map[string]int, len(ids))
	now := s.now()

	var misses []string
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		var cached models.ArtistFollowers
		found, err := s.store.Get(ctx, repositories.StoreArtistFollowers, id, &cached)
		if err != nil {
			s.logger.Debug("unreadable follower cache entry", "artist", id, "error", err)
		}
		if found && cached.ExpiresAt > now.UnixMilli() {
			counts[id] = cached.FollowerCount
			continue
		}
		misses = append(misses, id)
	}

	var mu sync.Mutex
	loaded := 0
	for start := 0; start < len(misses); start += FollowerBatchSize {
		end := min(start+FollowerBatchSize, len(misses))

		var batch []*models.ArtistProfile
		var g errgroup.Group
		for _, id := range misses[start:end] {
			g.Go(func() error {
				artist, err := s.source.Artist(ctx, id)
				if err != nil {
					if isAuthError(err) {
						return err
					}
					s.logger.Warn("artist lookup failed", "artist", id, "error", err)
					return nil
				}

				expiresAt := s.now().Add(FollowerTTL)
				entry := models.ArtistFollowers{FollowerCount: artist.FollowerCount, ExpiresAt: expiresAt.UnixMilli()}
				if err := s.store.PutWithExpiry(ctx, repositories.StoreArtistFollowers, id, entry, expiresAt); err != nil {
					s.logger.Warn("failed to cache follower count", "artist", id, "error", err)
				}

				mu.Lock()
				counts[id] = artist.FollowerCount
				batch = append(batch, artist)
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return counts, err
		}

		loaded += len(batch)
		progress.send(Progress[models.ArtistProfile]{Phase: FetchFollowers, Loaded: loaded, Total: len(misses), Batch: batch})
	}

	return counts, nil
}

func isAuthError(err error) bool {
	return errors.Is(err, shared.ErrUnauthenticated) || errors.Is(err, shared.ErrReauthenticationRequired)
}

// SweepArtistFollowers removes expired follower counts.
func (s *Synchronizer) SweepArtistFollowers(ctx context.Context) (int, error) {
	n, err := s.store.SweepExpired(ctx, repositories.StoreArtistFollowers, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Debug("swept expired follower counts", "count", n)
	}
	return n, nil
}

// RunSweeper sweeps expired follower counts immediately and then every interval until ctx is done.
func (s *Synchronizer) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}

	sweep := func() {
		if _, err := s.SweepArtistFollowers(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn("follower sweep failed", "error", err)
		}
	}

	sweep()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}
