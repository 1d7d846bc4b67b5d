package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/sift/internal/shared"
)

func main() {
	logger := shared.NewLogger(nil)
	runner := NewRunner(RunnerOpts{Logger: logger})
	defer runner.Close()

	app := &cli.Command{
		Name:    "sift",
		Usage:   "Browse, filter and play your Spotify library from the terminal",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
				Sources: cli.EnvVars("SIFT_CONFIG"),
			},
		},
		Before:   runner.loadConfig,
		Commands: runner.register(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := runner.handleError(ctx, app.Run(ctx, os.Args))
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
	case errors.Is(err, errHandled):
		runner.Close()
		os.Exit(1)
	default:
		runner.Close()
		logger.Fatalf("application error: %v", err)
	}
}
