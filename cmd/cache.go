package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/sift/internal/repositories"
	"github.com/desertthunder/sift/internal/shared"
)

func storeArg(cmd *cli.Command, required bool) (string, error) {
	store := cmd.StringArg("store")
	if store == "" {
		if required {
			return "", fmt.Errorf("%w: store (one of %v)", shared.ErrMissingArgument, repositories.Stores)
		}
		return "", nil
	}
	if !repositories.ValidStore(store) {
		return "", fmt.Errorf("%w: unknown store %q (one of %v)", shared.ErrInvalidArgument, store, repositories.Stores)
	}
	return store, nil
}

// CacheStatus prints per-store record counts and sizes, followed by the migration status.
func (r *Runner) CacheStatus(ctx context.Context, cmd *cli.Command) error {
	kv, err := r.store()
	if err != nil {
		return err
	}

	stats, err := kv.Stats(ctx)
	if err != nil {
		return err
	}

	r.writePlainHeader("Cache")
	var total int64
	for _, s := range stats {
		r.writePlain("%-18s %6d records  %10s\n", s.Store, s.Records, humanBytes(s.Bytes))
		total += s.Bytes
	}
	r.writePlain("%-18s %6s          %10s\n", "total", "", humanBytes(total))

	migrations, err := shared.Migrations(r.db)
	if err != nil {
		return err
	}
	r.writePlainln("Migrations")
	for _, m := range migrations {
		state := "pending"
		if m.Applied {
			state = "applied"
		}
		r.writePlain("  %04d %-28s %s\n", m.Version, m.Name, state)
	}
	return nil
}

// CacheKeys lists the keys held in one store.
func (r *Runner) CacheKeys(ctx context.Context, cmd *cli.Command) error {
	store, err := storeArg(cmd, true)
	if err != nil {
		return err
	}
	kv, err := r.store()
	if err != nil {
		return err
	}

	keys, err := kv.ListKeys(ctx, store)
	if err != nil {
		return err
	}
	for _, k := range keys {
		r.writePlain("%s\n", k)
	}
	return nil
}

// CacheClear deletes a store's records. Without a store it clears everything except the credential.
func (r *Runner) CacheClear(ctx context.Context, cmd *cli.Command) error {
	store, err := storeArg(cmd, false)
	if err != nil {
		return err
	}
	kv, err := r.store()
	if err != nil {
		return err
	}

	targets := []string{store}
	if store == "" {
		targets = nil
		for _, s := range repositories.Stores {
			if s != repositories.StoreAuth {
				targets = append(targets, s)
			}
		}
	}

	removed := 0
	for _, s := range targets {
		n, err := kv.Clear(ctx, s)
		if err != nil {
			return err
		}
		removed += n
	}
	return r.writePlain("✓ Removed %d records\n", removed)
}

// CacheSweep removes expired records from every store.
func (r *Runner) CacheSweep(ctx context.Context, cmd *cli.Command) error {
	kv, err := r.store()
	if err != nil {
		return err
	}

	now := time.Now()
	removed := 0
	for _, s := range repositories.Stores {
		n, err := kv.SweepExpired(ctx, s, now)
		if err != nil {
			return err
		}
		removed += n
	}
	return r.writePlain("✓ Swept %d expired records\n", removed)
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
