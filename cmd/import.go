package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/lykd/internal/shared"
	"github.com/urfave/cli/v3"
)

// ImportHistory loads an extended streaming history archive into the play
// log and backfills missing catalog rows.
func (r *Runner) ImportHistory(ctx context.Context, cmd *cli.Command) error {
	archive := cmd.StringArg("archive")
	if archive == "" {
		return fmt.Errorf("%w: path to the history archive", shared.ErrMissingArgument)
	}

	d, cleanup, err := r.bootstrap()
	if err != nil {
		return err
	}
	defer cleanup()

	user, err := r.resolveUser(d, cmd.String("user"))
	if err != nil {
		return err
	}

	r.logger.Info("importing history archive", "user", user.ID, "archive", archive)

	result, err := d.engine.ImportHistoryZip(ctx, user, archive)
	if err != nil {
		return err
	}

	r.writePlain("✓ Imported %d play(s) from %d file(s)\n", result.Inserted, result.Files)
	if result.Skipped > 0 {
		r.writePlain("  skipped %d malformed or non-track record(s)\n", result.Skipped)
	}
	if result.Backfilled > 0 {
		r.writePlain("  backfilled %d catalog track(s)\n", result.Backfilled)
	}
	return nil
}
