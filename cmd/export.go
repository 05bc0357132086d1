package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/lykd/internal/formatter"
	"github.com/desertthunder/lykd/internal/shared"
	"github.com/urfave/cli/v3"
)

// ExportLikes writes the user's liked tracks to a file or stdout.
func (r *Runner) ExportLikes(ctx context.Context, cmd *cli.Command) error {
	d, cleanup, err := r.bootstrap()
	if err != nil {
		return err
	}
	defer cleanup()

	user, err := r.resolveUser(d, cmd.String("user"))
	if err != nil {
		return err
	}

	tracks, err := d.repos.Likes.ListDetailed(user.ID)
	if err != nil {
		return err
	}

	var data []byte
	switch format := cmd.String("format"); format {
	case "csv":
		data, err = formatter.ExportToCSV(tracks)
	case "markdown", "md":
		data, err = formatter.ExportToMarkdown(user.Name, tracks)
	case "text", "txt":
		data, err = formatter.ExportToText(user.Name, tracks)
	default:
		return fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, format)
	}
	if err != nil {
		return err
	}

	outputPath := cmd.String("output")
	if outputPath == "" {
		return r.writePlain("%s", string(data))
	}

	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}

	r.logger.Info("export written", "path", outputPath, "tracks", len(tracks))
	return r.writePlain("✓ Exported %d track(s) to %s\n", len(tracks), outputPath)
}

// UsersList prints every stored account.
func (r *Runner) UsersList(ctx context.Context, cmd *cli.Command) error {
	d, cleanup, err := r.bootstrap()
	if err != nil {
		return err
	}
	defer cleanup()

	active, err := d.repos.Users.ListActive()
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(active, true)
	}

	if len(active) == 0 {
		return r.writePlain("No linked accounts.\n")
	}

	for _, user := range active {
		likes, err := d.repos.Likes.Count(user.ID)
		if err != nil {
			return err
		}
		plays, err := d.repos.Plays.Count(user.ID)
		if err != nil {
			return err
		}
		r.writePlain("%s (%s): %d like(s), %d play(s)\n", user.Name, user.ID, likes, plays)
	}

	return nil
}
