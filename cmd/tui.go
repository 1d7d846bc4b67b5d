package main

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/sift/internal/models"
	"github.com/desertthunder/sift/internal/player"
	"github.com/desertthunder/sift/internal/shared"
	"github.com/desertthunder/sift/internal/ui"
)

// TUI launches the interactive library browser.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger(cmd.String("log-file"))
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	shared.SetLogLevel(fileLogger, shared.ParseLogLevel(r.config.Log.Level))
	r.SetLogger(fileLogger)

	if err := r.services(); err != nil {
		return err
	}

	var program *tea.Program
	rec, err := r.reconciler(cmd.Bool("local"), player.WithStateFunc(func(s models.PlaybackState) {
		if program != nil {
			program.Send(ui.NowPlaying(s))
		}
	}))
	if err != nil {
		return err
	}
	defer rec.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go r.sync.RunSweeper(ctx, r.config.Sync.SweepInterval)

	model := ui.NewModel(ctx, r.sync, rec)
	program = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	go rec.Init(ctx)

	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return r.handleError(ctx, model.Err())
}
