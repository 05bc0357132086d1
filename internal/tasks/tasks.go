// package tasks implements the reconciliation engine that mirrors each
// user's Spotify likes and listening history into the local database and
// maintains the canonical mirrored playlist.
//
// The core abstraction is SyncEngine, which decides between cheap
// incremental like scans and expensive full scans, computes minimal
// add/remove diffs and applies them to the remote playlist and the local
// store in the same pass. BatchDriver runs the engine for every active user
// under a bounded worker pool.
package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/lykd/internal/models"
	"github.com/desertthunder/lykd/internal/repositories"
	"github.com/desertthunder/lykd/internal/shared"
	"github.com/desertthunder/lykd/internal/spotify"
)

// Remote defines the Spotify operations the engine consumes. The concrete
// implementation is [*spotify.Client]; tests substitute a double.
type Remote interface {
	LikedPage(ctx context.Context, user *models.User, cursor string) ([]spotify.SavedTrack, string, error)
	RecentlyPlayedPage(ctx context.Context, user *models.User, cursor string) ([]spotify.PlayedTrack, string, error)
	PlaylistsPage(ctx context.Context, user *models.User, cursor string) ([]spotify.Playlist, string, error)
	PlaylistTracksPage(ctx context.Context, user *models.User, playlistID, cursor string) ([]spotify.PlaylistEntry, string, error)
	CreatePlaylist(ctx context.Context, user *models.User, name, description string, public bool) (*spotify.Playlist, error)
	ChangePlaylistDetails(ctx context.Context, user *models.User, playlistID string, details spotify.PlaylistDetails) error
	UnfollowPlaylist(ctx context.Context, user *models.User, playlistID string) error
	AddPlaylistTracks(ctx context.Context, user *models.User, playlistID string, trackIDs []string, position int) (string, error)
	RemovePlaylistTracks(ctx context.Context, user *models.User, playlistID string, trackIDs []string) (string, error)
	RemovePlaylistTracksAtPositions(ctx context.Context, user *models.User, playlistID string, removals []spotify.PositionedRemoval, snapshotID string) (string, error)
	TracksBatch(ctx context.Context, user *models.User, ids []string) ([]spotify.Track, error)
	CloseIdleConnections()
}

// Repos bundles the persistence dependencies of the engine.
type Repos struct {
	Users     *repositories.UserRepository
	Catalog   *repositories.CatalogRepository
	Likes     *repositories.LikeRepository
	Plays     *repositories.PlayRepository
	Playlists *repositories.PlaylistRepository
}

// SyncEngine reconciles one user at a time. Within a user, operations are
// strictly sequential: remote reads, then remote writes, then local writes.
type SyncEngine struct {
	remote Remote
	repos  Repos
	mirror *PlaylistMirror
	cfg    shared.SyncConfig
	logger *log.Logger
	now    func() time.Time
}

// NewSyncEngine creates a SyncEngine over the given remote client and
// repositories.
func NewSyncEngine(remote Remote, repos Repos, cfg shared.SyncConfig, logger *log.Logger) *SyncEngine {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = 100
	}

	return &SyncEngine{
		remote: remote,
		repos:  repos,
		mirror: NewPlaylistMirror(remote, repos.Playlists, cfg.BlockSize, logger),
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Mirror exposes the engine's playlist mirror for maintenance commands.
func (e *SyncEngine) Mirror() *PlaylistMirror {
	return e.mirror
}

// ProcessUser runs one user's full unit of work: reconcile likes, then
// ingest plays.
func (e *SyncEngine) ProcessUser(ctx context.Context, user *models.User) error {
	if !user.Active() {
		return fmt.Errorf("%w: %s", shared.ErrUserInactive, user.ID)
	}

	if err := e.ReconcileLikes(ctx, user); err != nil {
		return fmt.Errorf("likes reconciliation failed: %w", err)
	}

	if err := e.IngestPlays(ctx, user); err != nil {
		return fmt.Errorf("play ingestion failed: %w", err)
	}

	return nil
}

// parseTimestamp parses a provider timestamp (RFC 3339).
func parseTimestamp(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", value, err)
	}
	return t.UTC(), nil
}
