// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func configFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

func userFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "user",
		Aliases: []string{"u"},
		Usage:   "Spotify user id (defaults to the only authenticated user)",
	}
}

// setupCommand initializes the database and configuration.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Initialize database and run migrations",
		Flags:  []cli.Flag{configFlag()},
		Action: r.SetupDatabase,
	}
}

// authCommand handles account linking.
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Link and inspect Spotify accounts",
		Commands: []*cli.Command{
			{
				Name:   "login",
				Usage:  "Authenticate with Spotify using OAuth2",
				Flags:  []cli.Flag{configFlag()},
				Action: r.AuthLogin,
			},
			{
				Name:   "status",
				Usage:  "Show linked accounts and token state",
				Action: r.AuthStatus,
			},
		},
	}
}

// syncCommand runs the reconciliation engine.
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Reconcile likes and listening history",
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Sync every authenticated user",
				Action: r.SyncRun,
			},
			{
				Name:  "likes",
				Usage: "Reconcile liked tracks for one user",
				Flags: []cli.Flag{
					userFlag(),
					&cli.BoolFlag{
						Name:  "full",
						Usage: "Force a full library scan",
					},
				},
				Action: r.SyncLikes,
			},
			{
				Name:   "plays",
				Usage:  "Ingest the recently-played feed for one user",
				Flags:  []cli.Flag{userFlag()},
				Action: r.SyncPlays,
			},
		},
	}
}

// playlistCommand maintains the mirrored playlist.
func playlistCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "playlist",
		Usage: "Mirrored playlist maintenance",
		Commands: []*cli.Command{
			{
				Name:   "dedupe",
				Usage:  "Remove duplicate tracks from the mirrored playlist",
				Flags:  []cli.Flag{userFlag()},
				Action: r.PlaylistDedupe,
			},
			{
				Name:  "show",
				Usage: "Show the mirrored playlist",
				Flags: []cli.Flag{
					userFlag(),
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.PlaylistShow,
			},
		},
	}
}

// importCommand loads extended streaming history archives.
func importCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Import an extended streaming history archive",
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name: "archive",
			},
		},
		Flags:  []cli.Flag{userFlag()},
		Action: r.ImportHistory,
	}
}

// exportCommand writes liked tracks to a file.
func exportCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export liked tracks to CSV, Markdown or plain text",
		Flags: []cli.Flag{
			userFlag(),
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: csv, markdown or text",
				Value:   "csv",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output file path (defaults to stdout)",
			},
		},
		Action: r.ExportLikes,
	}
}

// usersCommand lists stored accounts.
func usersCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "users",
		Usage: "List stored accounts",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.UsersList,
	}
}
