package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/sift/internal/shared"
)

// SetupDatabase writes a config file from the template when none exists, then initializes the database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	configPath := r.configName()

	if _, err := os.Stat(configPath); err != nil {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			r.logger.Warn("failed to create config file, using defaults", "error", err)
		} else {
			r.logger.Info("config file created", "path", configPath)
			if config, err := shared.LoadConfig(configPath); err != nil {
				r.logger.Warn("failed to load created config, using defaults", "error", err)
			} else {
				r.config = config
			}
		}
	}

	r.logger.Info("initializing database", "path", r.config.Database.Path)
	kv, err := r.store()
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	moved, err := kv.MigrateLegacy(ctx)
	if err != nil {
		r.logger.Warn("legacy cache migration failed", "error", err)
	} else if moved > 0 {
		r.logger.Info("migrated legacy cache entries", "count", moved)
	}

	r.logger.Infof("setup complete for database: %v", r.config.Database.Path)
	r.writePlain("✓ Database ready at %s\n", r.config.Database.Path)
	if err := r.config.Validate(); err != nil {
		r.writePlain("Next: set credentials.spotify.client_id in %s, then run `sift auth login`.\n", configPath)
	} else {
		r.writePlain("Next: run `sift auth login`.\n")
	}
	return nil
}

// SetupRollback reverts the most recently applied migration.
func (r *Runner) SetupRollback(ctx context.Context, cmd *cli.Command) error {
	if _, err := r.store(); err != nil {
		return err
	}
	if err := shared.RollbackMigration(r.db); err != nil {
		return fmt.Errorf("failed to roll back migration: %w", err)
	}
	return r.writePlain("✓ Rolled back the latest migration\n")
}
