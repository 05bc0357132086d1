package main

import (
	"context"

	"github.com/urfave/cli/v3"
)

// PlaylistDedupe removes duplicate tracks from the user's mirrored playlist.
func (r *Runner) PlaylistDedupe(ctx context.Context, cmd *cli.Command) error {
	d, cleanup, err := r.bootstrap()
	if err != nil {
		return err
	}
	defer cleanup()

	user, err := r.resolveUser(d, cmd.String("user"))
	if err != nil {
		return err
	}

	playlist, snapshot, err := d.engine.Mirror().Resolve(ctx, user)
	if err != nil {
		return err
	}

	removed, err := d.engine.Mirror().DeduplicateTracks(ctx, user, playlist.ID, snapshot)
	if err != nil {
		return err
	}

	if removed == 0 {
		return r.writePlain("✓ No duplicates in %q\n", playlist.Name)
	}
	return r.writePlain("✓ Removed %d duplicate track(s) from %q\n", removed, playlist.Name)
}

// PlaylistShow prints the stored mirrored playlist.
func (r *Runner) PlaylistShow(ctx context.Context, cmd *cli.Command) error {
	d, cleanup, err := r.bootstrap()
	if err != nil {
		return err
	}
	defer cleanup()

	user, err := r.resolveUser(d, cmd.String("user"))
	if err != nil {
		return err
	}

	playlist, err := d.repos.Playlists.GetByUser(user.ID)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(playlist, true)
	}

	trackIDs, err := d.repos.Playlists.TrackIDs(playlist.ID)
	if err != nil {
		return err
	}

	r.writePlain("%s (%s)\n", playlist.Name, playlist.ID)
	if playlist.Description != "" {
		r.writePlain("  %s\n", playlist.Description)
	}
	r.writePlain("  tracks: %d\n", len(trackIDs))
	r.writePlain("  snapshot: %s\n", playlist.SnapshotID)
	return nil
}
