package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/lykd/internal/models"
	"github.com/desertthunder/lykd/internal/repositories"
	"github.com/desertthunder/lykd/internal/shared"
	"github.com/desertthunder/lykd/internal/spotify"
	"github.com/desertthunder/lykd/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config *shared.Config
	logger *log.Logger
	output io.Writer

	// db is injected by tests; commands otherwise open the configured
	// database on demand.
	db *sql.DB
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config *shared.Config
	Logger *log.Logger
	Output io.Writer
	DB     *sql.DB
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config: opts.Config,
		logger: opts.Logger,
		output: opts.Output,
		db:     opts.DB,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, syncCommand, playlistCommand, importCommand, exportCommand, usersCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// deps bundles the per-command wiring of database, repositories, client and
// engine.
type deps struct {
	db     *sql.DB
	repos  tasks.Repos
	client *spotify.Client
	engine *tasks.SyncEngine
	driver *tasks.BatchDriver
}

// bootstrap opens the database and builds the engine stack. The returned
// cleanup closes the database unless it was injected.
func (r *Runner) bootstrap() (*deps, func(), error) {
	db := r.db
	cleanup := func() {}
	if db == nil {
		opened, err := shared.NewDatabase(r.config.Database.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		shared.ConfigureDatabase(opened, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)
		db = opened
		cleanup = func() { opened.Close() }
	}

	repos := tasks.Repos{
		Users:     repositories.NewUserRepository(db),
		Catalog:   repositories.NewCatalogRepository(db),
		Likes:     repositories.NewLikeRepository(db),
		Plays:     repositories.NewPlayRepository(db),
		Playlists: repositories.NewPlaylistRepository(db),
	}

	client := spotify.NewClient(spotify.ClientOpts{
		Config:    r.config.Credentials.Spotify,
		Store:     repos.Users,
		Cache:     spotify.NewMemoryCache(),
		Logger:    r.logger,
		Timeout:   r.config.Sync.HTTPTimeout(),
		Attempts:  r.config.Sync.RetryAttempts,
		PageLimit: r.config.Sync.PageLimit,
	})

	engine := tasks.NewSyncEngine(client, repos, r.config.Sync, r.logger)
	driver := tasks.NewBatchDriver(engine, repos.Users, r.config.Sync, r.logger)

	return &deps{db: db, repos: repos, client: client, engine: engine, driver: driver}, cleanup, nil
}

// resolveUser picks the target account for a command: the --user value when
// given, otherwise the only active account.
func (r *Runner) resolveUser(d *deps, userID string) (*models.User, error) {
	if userID != "" {
		return d.repos.Users.Get(userID)
	}

	active, err := d.repos.Users.ListActive()
	if err != nil {
		return nil, err
	}
	switch len(active) {
	case 0:
		return nil, fmt.Errorf("%w: no authenticated users, run 'lykd auth login' first", shared.ErrUserNotFound)
	case 1:
		return active[0], nil
	default:
		return nil, fmt.Errorf("%w: multiple users found, pass --user", shared.ErrInvalidArgument)
	}
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
