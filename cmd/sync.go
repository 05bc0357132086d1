package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

// SyncRun reconciles every authenticated user.
func (r *Runner) SyncRun(ctx context.Context, cmd *cli.Command) error {
	d, cleanup, err := r.bootstrap()
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := d.driver.Run(ctx)
	if err != nil {
		return err
	}

	r.writePlain("Synced %d user(s), %d failed\n", result.Processed, result.Failed)
	for _, ur := range result.Results {
		if ur.Err != nil {
			r.writePlain("  ✗ %s: %v\n", ur.UserID, ur.Err)
		}
	}

	if result.Failed > 0 {
		return fmt.Errorf("%d user(s) failed to sync", result.Failed)
	}
	return nil
}

// SyncLikes reconciles liked tracks for a single user.
func (r *Runner) SyncLikes(ctx context.Context, cmd *cli.Command) error {
	d, cleanup, err := r.bootstrap()
	if err != nil {
		return err
	}
	defer cleanup()

	user, err := r.resolveUser(d, cmd.String("user"))
	if err != nil {
		return err
	}

	if cmd.Bool("full") {
		// Clearing the stored timestamp forces the scan decision to full.
		user.LastLikeScanFull = nil
	}

	if err := d.engine.ReconcileLikes(ctx, user); err != nil {
		return err
	}

	count, err := d.repos.Likes.Count(user.ID)
	if err != nil {
		return err
	}
	return r.writePlain("✓ %s has %d liked track(s)\n", user.ID, count)
}

// SyncPlays ingests the recently-played feed for a single user.
func (r *Runner) SyncPlays(ctx context.Context, cmd *cli.Command) error {
	d, cleanup, err := r.bootstrap()
	if err != nil {
		return err
	}
	defer cleanup()

	user, err := r.resolveUser(d, cmd.String("user"))
	if err != nil {
		return err
	}

	if err := d.engine.IngestPlays(ctx, user); err != nil {
		return err
	}

	count, err := d.repos.Plays.Count(user.ID)
	if err != nil {
		return err
	}
	return r.writePlain("✓ %s has %d recorded play(s)\n", user.ID, count)
}
