package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/sift/internal/models"
	"github.com/desertthunder/sift/internal/player"
	"github.com/desertthunder/sift/internal/shared"
)

// trackURI accepts a bare track id, a spotify:track URI or an open.spotify.com track link.
func trackURI(arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	switch {
	case arg == "":
		return "", fmt.Errorf("%w: track", shared.ErrMissingArgument)
	case strings.HasPrefix(arg, "spotify:track:"):
		return arg, nil
	case strings.Contains(arg, "open.spotify.com/track/"):
		id := arg[strings.Index(arg, "/track/")+len("/track/"):]
		if i := strings.IndexAny(id, "?#/"); i >= 0 {
			id = id[:i]
		}
		if id == "" {
			return "", fmt.Errorf("%w: %q", shared.ErrInvalidArgument, arg)
		}
		return "spotify:track:" + id, nil
	case strings.ContainsAny(arg, ":/ "):
		return "", fmt.Errorf("%w: %q is not a track id or URI", shared.ErrInvalidArgument, arg)
	default:
		return "spotify:track:" + arg, nil
	}
}

// PlayerDevices lists the devices Spotify currently sees.
func (r *Runner) PlayerDevices(ctx context.Context, cmd *cli.Command) error {
	rec, err := r.reconciler(false)
	if err != nil {
		return err
	}
	defer rec.Close()

	devices, err := rec.Devices(ctx)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(devices, true)
	}
	if len(devices) == 0 {
		return r.writePlain("No devices. Open Spotify on a device or start the %q receiver.\n", r.config.Player.DeviceName)
	}
	for _, d := range devices {
		marker := " "
		if d.IsActive {
			marker = "*"
		}
		r.writePlain("%s %-40s %-12s %3d%%  %s\n", marker, d.ID, d.Type, d.VolumePercent, d.Name)
	}
	return nil
}

// PlayerPlay starts a track on the best available device.
func (r *Runner) PlayerPlay(ctx context.Context, cmd *cli.Command) error {
	uri, err := trackURI(cmd.StringArg("track"))
	if err != nil {
		return err
	}

	rec, err := r.reconciler(cmd.Bool("local"))
	if err != nil {
		return err
	}
	defer rec.Close()

	mode := rec.Init(ctx)
	r.logger.Debug("player ready", "mode", mode)
	if err := rec.PlayTrack(ctx, uri); err != nil {
		return err
	}
	return r.writePlain("▶ %s\n", uri)
}

// PlayerToggle pauses or resumes playback.
func (r *Runner) PlayerToggle(ctx context.Context, cmd *cli.Command) error {
	rec, err := r.reconciler(false)
	if err != nil {
		return err
	}
	defer rec.Close()

	rec.Init(ctx)
	if err := rec.TogglePlay(ctx); err != nil {
		return err
	}
	return r.writePlain("✓ Toggled playback\n")
}

// PlayerTransfer moves playback to the device given by id or name.
func (r *Runner) PlayerTransfer(ctx context.Context, cmd *cli.Command) error {
	target := cmd.StringArg("device")
	if target == "" {
		return fmt.Errorf("%w: device", shared.ErrMissingArgument)
	}

	rec, err := r.reconciler(false)
	if err != nil {
		return err
	}
	defer rec.Close()

	devices, err := rec.Devices(ctx)
	if err != nil {
		return err
	}
	id := target
	if d, ok := models.FindDeviceByName(devices, target); ok {
		id = d.ID
	}

	if err := rec.TransferPlayback(ctx, id, cmd.Bool("play")); err != nil {
		return err
	}
	return r.writePlain("✓ Playback moved to %s\n", target)
}

// PlayerWatch prints each playback state change until the context ends.
func (r *Runner) PlayerWatch(ctx context.Context, cmd *cli.Command) error {
	var last string
	states := make(chan models.PlaybackState, 8)
	rec, err := r.reconciler(cmd.Bool("local"), player.WithStateFunc(func(s models.PlaybackState) {
		select {
		case states <- s:
		default:
		}
	}))
	if err != nil {
		return err
	}
	defer rec.Close()

	mode := rec.Init(ctx)
	r.writePlain("Watching playback (%s mode). Press Ctrl+C to stop.\n", mode)

	for {
		select {
		case <-ctx.Done():
			return nil
		case s := <-states:
			line := describeState(s)
			if line != last {
				r.writePlain("%s\n", line)
				last = line
			}
		}
	}
}

func describeState(s models.PlaybackState) string {
	if s.Track == nil {
		return "⏹ nothing playing"
	}
	icon := "▶"
	if s.Paused {
		icon = "⏸"
	}
	line := fmt.Sprintf("%s %s - %s [%s]", icon, joinArtists(s.Track), s.Track.Name, shared.FormatDuration(s.DurationMS))
	if s.DeviceName != "" {
		line += " on " + s.DeviceName
	}
	return line
}
