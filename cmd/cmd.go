// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: text, csv, markdown or json",
		Value:   "text",
	}
}

func outputFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "Write to a file instead of stdout",
	}
}

func refreshFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "refresh",
		Usage: "Ignore the local cache and fetch from Spotify",
	}
}

// setupCommand handles setup operations for configuration and the database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage:  "Create the config file if needed, initialize the database and run migrations",
				Action: r.SetupDatabase,
			},
			{
				Name:   "rollback",
				Usage:  "Roll back the most recent database migration",
				Action: r.SetupRollback,
			},
		},
	}
}

// authCommand handles Spotify sign-in
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage the Spotify session",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Sign in with Spotify in the browser (OAuth2 PKCE)",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "no-browser",
						Usage: "Print the authorization URL without opening a browser",
					},
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "How long to wait for the browser callback",
						Value: defaultLoginTimeout,
					},
				},
				Action: r.AuthLogin,
			},
			{
				Name:   "logout",
				Usage:  "Remove the stored credential",
				Action: r.AuthLogout,
			},
			{
				Name:   "status",
				Usage:  "Show the signed-in account and token expiry",
				Action: r.AuthStatus,
			},
		},
	}
}

// libraryCommand handles the saved tracks collection
func libraryCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "library",
		Aliases: []string{"lib"},
		Usage:   "Saved tracks",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List saved tracks",
				Flags:  []cli.Flag{formatFlag(), outputFlag(), refreshFlag()},
				Action: r.LibraryList,
			},
			{
				Name:   "resync",
				Usage:  "Fetch saved tracks again and report what changed",
				Action: r.LibraryResync,
			},
			{
				Name:  "filter",
				Usage: "List saved tracks matching duration, release year and artist follower ranges",
				Flags: []cli.Flag{
					formatFlag(),
					outputFlag(),
					&cli.DurationFlag{Name: "min-duration", Usage: "Shortest track, e.g. 2m"},
					&cli.DurationFlag{Name: "max-duration", Usage: "Longest track, e.g. 6m30s"},
					&cli.IntFlag{Name: "from-year", Usage: "Earliest release year"},
					&cli.IntFlag{Name: "to-year", Usage: "Latest release year"},
					&cli.IntFlag{Name: "min-followers", Usage: "Fewest followers of any credited artist"},
					&cli.IntFlag{Name: "max-followers", Usage: "Most followers of any credited artist"},
				},
				Action: r.LibraryFilter,
			},
		},
	}
}

// playlistsCommand handles the user's playlists
func playlistsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "playlists",
		Aliases: []string{"pl"},
		Usage:   "Playlists",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List playlists",
				Flags:  []cli.Flag{formatFlag(), refreshFlag()},
				Action: r.PlaylistsList,
			},
			{
				Name:  "tracks",
				Usage: "List the tracks of a playlist",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags:  []cli.Flag{formatFlag(), outputFlag(), refreshFlag()},
				Action: r.PlaylistTracks,
			},
			{
				Name:  "resync",
				Usage: "Fetch playlists again, or one playlist's tracks when an id is given",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Action: r.PlaylistsResync,
			},
		},
	}
}

// playerCommand handles playback control
func playerCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "player",
		Usage: "Playback control",
		Commands: []*cli.Command{
			{
				Name:   "devices",
				Usage:  "List available devices",
				Flags:  []cli.Flag{&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"}},
				Action: r.PlayerDevices,
			},
			{
				Name:  "play",
				Usage: "Play a track by id or spotify:track URI",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "track"},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "local", Usage: "Wait for the local receiver before playing"},
				},
				Action: r.PlayerPlay,
			},
			{
				Name:   "toggle",
				Usage:  "Pause or resume playback",
				Action: r.PlayerToggle,
			},
			{
				Name:  "transfer",
				Usage: "Move playback to a device",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "device"},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "play", Usage: "Start playing after the transfer", Value: true},
				},
				Action: r.PlayerTransfer,
			},
			{
				Name:  "watch",
				Usage: "Print playback state changes until interrupted",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "local", Usage: "Start the local receiver runtime"},
				},
				Action: r.PlayerWatch,
			},
		},
	}
}

// cacheCommand inspects and maintains the local cache
func cacheCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect and maintain the local cache",
		Commands: []*cli.Command{
			{
				Name:   "status",
				Usage:  "Show record counts, sizes and migrations",
				Action: r.CacheStatus,
			},
			{
				Name:  "keys",
				Usage: "List keys in a store",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "store"},
				},
				Action: r.CacheKeys,
			},
			{
				Name:  "clear",
				Usage: "Delete every record in a store, or all stores except auth",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "store"},
				},
				Action: r.CacheClear,
			},
			{
				Name:   "sweep",
				Usage:  "Delete expired records",
				Action: r.CacheSweep,
			},
		},
	}
}

func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "tui",
		Usage: "Browse the library and control playback interactively",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "local", Usage: "Start the local receiver runtime"},
			&cli.StringFlag{Name: "log-file", Usage: "Log file while the TUI owns the terminal", Value: "./tmp/sift-tui.log"},
		},
		Action: r.TUI,
	}
}
