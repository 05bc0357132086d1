package tasks

import (
	"context"
	"fmt"
	"sort"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/lykd/internal/models"
	"github.com/desertthunder/lykd/internal/repositories"
	"github.com/desertthunder/lykd/internal/shared"
	"github.com/desertthunder/lykd/internal/spotify"
)

// canonicalNames are the playlist titles recognised as the mirrored likes
// playlist, in priority order. New playlists are created under the first
// name; the rest are legacy titles still honoured when found.
var canonicalNames = []string{"Lykd Songs", "LYKD Songs", "Spotlike"}

const canonicalDescription = "Your liked songs, mirrored by lykd."

// PlaylistMirror resolves each user's canonical playlist and applies track
// diffs to it. Additions are inserted at the top in blocks taken from the
// tail of the list so the final top-to-bottom order matches the input
// slice.
type PlaylistMirror struct {
	remote    Remote
	playlists *repositories.PlaylistRepository
	blockSize int
	logger    *log.Logger
}

// NewPlaylistMirror creates a mirror with the given block size for add and
// remove requests.
func NewPlaylistMirror(remote Remote, playlists *repositories.PlaylistRepository, blockSize int, logger *log.Logger) *PlaylistMirror {
	if blockSize <= 0 {
		blockSize = 100
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &PlaylistMirror{remote: remote, playlists: playlists, blockSize: blockSize, logger: logger}
}

func isCanonicalName(name string) bool {
	for _, n := range canonicalNames {
		if name == n {
			return true
		}
	}
	return false
}

// Resolve finds or creates the user's canonical playlist. It returns the
// local playlist row, whose SnapshotID is the snapshot recorded on the
// previous run (empty when never seen), and the playlist's current remote
// snapshot. Duplicate canonical playlists are repaired by keeping the last
// one in listing order and unfollowing the rest.
func (m *PlaylistMirror) Resolve(ctx context.Context, user *models.User) (*models.Playlist, string, error) {
	all, err := spotify.CollectAll(ctx, func(ctx context.Context, cursor string) ([]spotify.Playlist, string, error) {
		return m.remote.PlaylistsPage(ctx, user, cursor)
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to list playlists: %w", err)
	}

	var candidates []spotify.Playlist
	for _, p := range all {
		if p.Owner.ID == user.ID && isCanonicalName(p.Name) {
			candidates = append(candidates, p)
		}
	}

	if len(candidates) == 0 {
		return m.create(ctx, user)
	}

	// The provider lists newest playlists first, so the last candidate is
	// the oldest one.
	keep := candidates[len(candidates)-1]
	for _, extra := range candidates[:len(candidates)-1] {
		m.logger.Warn("unfollowing duplicate canonical playlist", "user", user.ID, "playlist", extra.ID, "name", extra.Name)
		if err := m.remote.UnfollowPlaylist(ctx, user, extra.ID); err != nil {
			return nil, "", fmt.Errorf("failed to unfollow duplicate playlist %s: %w", extra.ID, err)
		}
		if err := m.playlists.Delete(extra.ID); err != nil {
			return nil, "", err
		}
	}

	if err := m.repairDetails(ctx, user, keep); err != nil {
		return nil, "", err
	}

	row := keep.Model(user.ID)
	row.SnapshotID = ""
	if prior, err := m.playlists.Get(keep.ID); err == nil {
		row.SnapshotID = prior.SnapshotID
	}
	if err := m.playlists.Upsert(&row); err != nil {
		return nil, "", err
	}

	return &row, keep.SnapshotID, nil
}

func (m *PlaylistMirror) create(ctx context.Context, user *models.User) (*models.Playlist, string, error) {
	created, err := m.remote.CreatePlaylist(ctx, user, canonicalNames[0], canonicalDescription, false)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create playlist: %w", err)
	}

	m.logger.Info("created canonical playlist", "user", user.ID, "playlist", created.ID)

	row := created.Model(user.ID)
	row.SnapshotID = ""
	if err := m.playlists.Upsert(&row); err != nil {
		return nil, "", err
	}

	return &row, created.SnapshotID, nil
}

// repairDetails restores the kept playlist's name, description and
// visibility when they have drifted.
func (m *PlaylistMirror) repairDetails(ctx context.Context, user *models.User, p spotify.Playlist) error {
	details := spotify.PlaylistDetails{}
	if p.Name != canonicalNames[0] {
		details.Name = &canonicalNames[0]
	}
	if p.Description != canonicalDescription {
		description := canonicalDescription
		details.Description = &description
	}
	if p.Public {
		public := false
		details.Public = &public
	}
	if details.Name == nil && details.Description == nil && details.Public == nil {
		return nil
	}

	m.logger.Info("repairing playlist details", "user", user.ID, "playlist", p.ID)
	if err := m.remote.ChangePlaylistDetails(ctx, user, p.ID, details); err != nil {
		return fmt.Errorf("failed to repair playlist details: %w", err)
	}
	return nil
}

// ApplyDiff removes toRemove from the playlist and inserts toAdd at the
// top. Both lists are sent in blocks; additions walk the blocks from the
// tail of the slice so the playlist ends up reading in slice order. It
// returns the snapshot reported by the last write, or empty when no write
// was issued.
func (m *PlaylistMirror) ApplyDiff(ctx context.Context, user *models.User, playlistID string, toAdd, toRemove []string) (string, error) {
	var snapshot string

	for _, block := range shared.Blocks(toRemove, m.blockSize) {
		s, err := m.remote.RemovePlaylistTracks(ctx, user, playlistID, block)
		if err != nil {
			return snapshot, fmt.Errorf("failed to remove playlist tracks: %w", err)
		}
		snapshot = s
	}

	for _, block := range shared.ReverseBlocks(toAdd, m.blockSize) {
		s, err := m.remote.AddPlaylistTracks(ctx, user, playlistID, block, 0)
		if err != nil {
			return snapshot, fmt.Errorf("failed to add playlist tracks: %w", err)
		}
		snapshot = s
	}

	return snapshot, nil
}

// DeduplicateTracks removes repeated tracks from the playlist, keeping the
// last occurrence of each. Removals reference positions in the snapshot
// passed in, sent highest position first so earlier deletions cannot shift
// the positions of later ones. It returns the number of entries removed.
func (m *PlaylistMirror) DeduplicateTracks(ctx context.Context, user *models.User, playlistID, snapshotID string) (int, error) {
	entries, err := spotify.CollectAll(ctx, func(ctx context.Context, cursor string) ([]spotify.PlaylistEntry, string, error) {
		return m.remote.PlaylistTracksPage(ctx, user, playlistID, cursor)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read playlist tracks: %w", err)
	}

	lastIndex := make(map[string]int, len(entries))
	for i, entry := range entries {
		lastIndex[entry.Track.ID] = i
	}

	type removal struct {
		id  string
		pos int
	}
	var doomed []removal
	for i, entry := range entries {
		if lastIndex[entry.Track.ID] != i {
			doomed = append(doomed, removal{id: entry.Track.ID, pos: i})
		}
	}
	if len(doomed) == 0 {
		return 0, nil
	}

	sort.Slice(doomed, func(i, j int) bool { return doomed[i].pos > doomed[j].pos })

	var removed int
	for _, block := range shared.Blocks(doomed, m.blockSize) {
		byID := make(map[string][]int)
		order := make([]string, 0, len(block))
		for _, r := range block {
			if _, ok := byID[r.id]; !ok {
				order = append(order, r.id)
			}
			byID[r.id] = append(byID[r.id], r.pos)
		}

		removals := make([]spotify.PositionedRemoval, 0, len(order))
		for _, id := range order {
			removals = append(removals, spotify.PositionedRemoval{URI: spotify.TrackURI(id), Positions: byID[id]})
		}

		s, err := m.remote.RemovePlaylistTracksAtPositions(ctx, user, playlistID, removals, snapshotID)
		if err != nil {
			return removed, fmt.Errorf("failed to remove duplicate tracks: %w", err)
		}
		if s != "" {
			if err := m.playlists.SetSnapshot(playlistID, s); err != nil {
				return removed, err
			}
		}
		removed += len(block)
	}

	m.logger.Info("removed duplicate playlist tracks", "user", user.ID, "playlist", playlistID, "count", removed)
	return removed, nil
}
