package repositories

import (
	"database/sql"
	"fmt"

	"github.com/desertthunder/lykd/internal/models"
	"github.com/desertthunder/lykd/internal/shared"
)

// PlaylistRepository mirrors remote playlists and their track associations.
type PlaylistRepository struct {
	db *sql.DB
}

// NewPlaylistRepository creates a new PlaylistRepository with the given database connection
func NewPlaylistRepository(db *sql.DB) *PlaylistRepository {
	return &PlaylistRepository{db: db}
}

// Upsert inserts or replaces a playlist row keyed by the remote playlist id.
func (r *PlaylistRepository) Upsert(playlist *models.Playlist) error {
	if playlist.ID == "" || playlist.UserID == "" {
		return fmt.Errorf("%w: playlist id and user id are required", shared.ErrInvalidInput)
	}

	query := `
		INSERT OR REPLACE INTO playlists
			(id, user_id, name, description, owner_id, is_public, is_collaborative, snapshot_id, uri)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		playlist.ID, playlist.UserID, playlist.Name, playlist.Description, playlist.OwnerID,
		playlist.Public, playlist.Collaborative, playlist.SnapshotID, playlist.URI,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert playlist: %w", err)
	}

	return nil
}

// Get retrieves a playlist by id.
func (r *PlaylistRepository) Get(id string) (*models.Playlist, error) {
	query := `
		SELECT id, user_id, name, description, owner_id, is_public, is_collaborative, snapshot_id, uri
		FROM playlists
		WHERE id = ?
	`

	var p models.Playlist
	err := r.db.QueryRow(query, id).Scan(
		&p.ID, &p.UserID, &p.Name, &p.Description, &p.OwnerID,
		&p.Public, &p.Collaborative, &p.SnapshotID, &p.URI,
	)
	if err == sql.ErrNoRows {
		return nil, shared.ErrPlaylistNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan playlist: %w", err)
	}

	return &p, nil
}

// GetByUser retrieves the user's mirrored playlist, if one is stored.
func (r *PlaylistRepository) GetByUser(userID string) (*models.Playlist, error) {
	query := `
		SELECT id, user_id, name, description, owner_id, is_public, is_collaborative, snapshot_id, uri
		FROM playlists
		WHERE user_id = ?
		LIMIT 1
	`

	var p models.Playlist
	err := r.db.QueryRow(query, userID).Scan(
		&p.ID, &p.UserID, &p.Name, &p.Description, &p.OwnerID,
		&p.Public, &p.Collaborative, &p.SnapshotID, &p.URI,
	)
	if err == sql.ErrNoRows {
		return nil, shared.ErrPlaylistNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan playlist: %w", err)
	}

	return &p, nil
}

// Delete removes a playlist and its track associations.
func (r *PlaylistRepository) Delete(id string) error {
	return inTx(r.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM playlist_tracks WHERE playlist_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete playlist tracks: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM playlists WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete playlist: %w", err)
		}
		return nil
	})
}

// SetSnapshot records the playlist version token returned by the last remote
// mutation.
func (r *PlaylistRepository) SetSnapshot(id, snapshotID string) error {
	result, err := r.db.Exec(`UPDATE playlists SET snapshot_id = ? WHERE id = ?`, snapshotID, id)
	if err != nil {
		return fmt.Errorf("failed to set snapshot: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, id)
	}
	return nil
}

// TrackIDs returns the playlist's track ids ordered most recently added
// first, matching the mirrored playlist's on-remote order.
func (r *PlaylistRepository) TrackIDs(playlistID string) ([]string, error) {
	query := `SELECT track_id FROM playlist_tracks WHERE playlist_id = ? ORDER BY added_at DESC`

	rows, err := r.db.Query(query, playlistID)
	if err != nil {
		return nil, fmt.Errorf("failed to query playlist tracks: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan playlist track: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return ids, nil
}

// ApplyDiff deletes toRemove and then merges toAdd in one transaction,
// keeping (playlist, track) pairs unique. Removals run first so a rebuild
// can hand in the full current membership as toRemove and the replacement
// set as toAdd.
func (r *PlaylistRepository) ApplyDiff(playlistID string, toAdd []models.PlaylistTrack, toRemove []string) error {
	if len(toAdd) == 0 && len(toRemove) == 0 {
		return nil
	}

	return inTx(r.db, func(tx *sql.Tx) error {
		if len(toRemove) > 0 {
			args := make([]any, 0, len(toRemove)+1)
			args = append(args, playlistID)
			for _, id := range toRemove {
				args = append(args, id)
			}
			query := fmt.Sprintf(`DELETE FROM playlist_tracks WHERE playlist_id = ? AND track_id IN (%s)`, placeholders(len(toRemove)))
			if _, err := tx.Exec(query, args...); err != nil {
				return fmt.Errorf("failed to delete playlist tracks: %w", err)
			}
		}

		for _, pt := range toAdd {
			query := `
				INSERT INTO playlist_tracks (playlist_id, track_id, added_at)
				VALUES (?, ?, ?)
				ON CONFLICT(playlist_id, track_id) DO UPDATE SET added_at = excluded.added_at
			`
			if _, err := tx.Exec(query, playlistID, pt.TrackID, pt.AddedAt); err != nil {
				return fmt.Errorf("failed to insert playlist track %s: %w", pt.TrackID, err)
			}
		}

		return nil
	})
}
