package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/sift/internal/formatter"
	"github.com/desertthunder/sift/internal/models"
	"github.com/desertthunder/sift/internal/services"
	"github.com/desertthunder/sift/internal/shared"
	"github.com/desertthunder/sift/internal/tasks"
)

func progressLogger[T any](r *Runner) tasks.ProgressFunc[T] {
	return func(p tasks.Progress[T]) {
		r.logger.Info(p.Message())
	}
}

// writeTracks renders tracks to --output, or to stdout when it is unset.
func (r *Runner) writeTracks(cmd *cli.Command, title string, tracks []*models.Track) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	if path := cmd.String("output"); path != "" {
		written, err := formatter.WriteTracksFile(path, format, title, tracks)
		if err != nil {
			return err
		}
		return r.writePlain("✓ Wrote %d tracks to %s\n", len(tracks), written)
	}
	return formatter.WriteTracks(r.output, format, title, tracks)
}

// LibraryList lists saved tracks, from the cache when one exists.
func (r *Runner) LibraryList(ctx context.Context, cmd *cli.Command) error {
	if err := r.services(); err != nil {
		return err
	}

	res, err := r.sync.FetchLibraryTracks(ctx, cmd.Bool("refresh"), progressLogger[models.Track](r))
	if err != nil {
		return err
	}
	if res.FromCache {
		r.logger.Info("library loaded from cache", "tracks", len(res.Records), "synced", res.SyncedAt.Format(time.DateTime))
	}
	defer r.warn(res.Warning)
	return r.writeTracks(cmd, "Liked Songs", res.Records)
}

// LibraryResync refetches saved tracks and prints what was added and removed.
func (r *Runner) LibraryResync(ctx context.Context, cmd *cli.Command) error {
	if err := r.services(); err != nil {
		return err
	}

	res, err := r.sync.ResyncLibraryTracks(ctx, progressLogger[models.Track](r))
	if err != nil {
		return err
	}
	r.printResync(len(res.Records), res.Added, res.Removed)
	r.warn(res.Warning)
	return nil
}

func (r *Runner) printResync(total int, added []*models.Track, removed []string) {
	r.writePlain("✓ %d tracks, %d added, %d removed\n", total, len(added), len(removed))
	for _, t := range added {
		r.writePlain("  + %s - %s\n", joinArtists(t), t.Name)
	}
	for _, id := range removed {
		r.writePlain("  - %s\n", id)
	}
}

func joinArtists(t *models.Track) string {
	names := t.ArtistNames()
	if len(names) == 0 {
		return "Unknown"
	}
	return strings.Join(names, ", ")
}

// LibraryFilter lists saved tracks within the requested ranges. Follower ranges look up artist follower counts first.
func (r *Runner) LibraryFilter(ctx context.Context, cmd *cli.Command) error {
	if err := r.services(); err != nil {
		return err
	}

	minDur, maxDur := cmd.Duration("min-duration"), cmd.Duration("max-duration")
	if maxDur > 0 && minDur > maxDur {
		return fmt.Errorf("%w: --min-duration is greater than --max-duration", shared.ErrInvalidArgument)
	}
	years := tasks.Range{Min: int(cmd.Int("from-year")), Max: int(cmd.Int("to-year"))}
	followers := tasks.Range{Min: int(cmd.Int("min-followers")), Max: int(cmd.Int("max-followers"))}
	if (years.Max > 0 && years.Min > years.Max) || (followers.Max > 0 && followers.Min > followers.Max) {
		return fmt.Errorf("%w: range minimum is greater than maximum", shared.ErrInvalidArgument)
	}

	res, err := r.sync.FetchLibraryTracks(ctx, false, progressLogger[models.Track](r))
	if err != nil {
		return err
	}
	defer r.warn(res.Warning)

	var filters []tasks.Filter
	if minDur > 0 || maxDur > 0 {
		filters = append(filters, tasks.DurationBetween(minDur, maxDur))
	}
	if years.Min > 0 || years.Max > 0 {
		filters = append(filters, tasks.ReleasedBetween(years))
	}
	if followers.Min > 0 || followers.Max > 0 {
		counts, err := r.sync.ArtistFollowers(ctx, tasks.ArtistIDs(res.Records), progressLogger[models.ArtistProfile](r))
		if err != nil {
			return err
		}
		filters = append(filters, tasks.FollowersBetween(counts, followers))
	}

	matched := tasks.Apply(res.Records, filters...)
	r.logger.Info("filtered library", "matched", len(matched), "total", len(res.Records))
	return r.writeTracks(cmd, fmt.Sprintf("Liked Songs (%d of %d)", len(matched), len(res.Records)), matched)
}

// PlaylistsList lists the user's playlists.
func (r *Runner) PlaylistsList(ctx context.Context, cmd *cli.Command) error {
	if err := r.services(); err != nil {
		return err
	}

	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	res, err := r.sync.FetchPlaylists(ctx, cmd.Bool("refresh"), progressLogger[models.Playlist](r))
	if err != nil {
		return err
	}
	defer r.warn(res.Warning)
	return formatter.WritePlaylists(r.output, format, res.Records)
}

// PlaylistTracks lists the tracks of one playlist.
func (r *Runner) PlaylistTracks(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: playlist id", shared.ErrMissingArgument)
	}
	if err := r.services(); err != nil {
		return err
	}

	res, err := r.sync.FetchPlaylistTracks(ctx, id, cmd.Bool("refresh"), progressLogger[models.Track](r))
	if services.IsStatus(err, http.StatusNotFound) {
		return fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, id)
	}
	if err != nil {
		return err
	}
	defer r.warn(res.Warning)
	return r.writeTracks(cmd, r.playlistName(ctx, id), res.Records)
}

// playlistName looks id up in the cached playlist list and falls back to the id.
func (r *Runner) playlistName(ctx context.Context, id string) string {
	res, err := r.sync.FetchPlaylists(ctx, false, nil)
	if err != nil {
		return id
	}
	for _, p := range res.Records {
		if p != nil && p.ID == id {
			return p.Name
		}
	}
	return id
}

// PlaylistsResync refetches the playlist list, or a single playlist's tracks when an id is given.
func (r *Runner) PlaylistsResync(ctx context.Context, cmd *cli.Command) error {
	if err := r.services(); err != nil {
		return err
	}

	if id := cmd.StringArg("id"); id != "" {
		res, err := r.sync.ResyncPlaylistTracks(ctx, id, progressLogger[models.Track](r))
		if err != nil {
			return err
		}
		r.printResync(len(res.Records), res.Added, res.Removed)
		r.warn(res.Warning)
		return nil
	}

	res, err := r.sync.ResyncPlaylists(ctx, progressLogger[models.Playlist](r))
	if err != nil {
		return err
	}
	r.writePlain("✓ %d playlists, %d added, %d removed\n", len(res.Records), len(res.Added), len(res.Removed))
	for _, p := range res.Added {
		r.writePlain("  + %s (%s)\n", p.Name, p.ID)
	}
	for _, id := range res.Removed {
		r.writePlain("  - %s\n", id)
	}
	r.warn(res.Warning)
	return nil
}
