package repositories

import (
	"database/sql"
	"fmt"

	"github.com/desertthunder/lykd/internal/models"
)

// CatalogRepository upserts remote-sourced catalog metadata (tracks, artists,
// albums and their join rows). Catalog rows are never deleted.
type CatalogRepository struct {
	db *sql.DB
}

// NewCatalogRepository creates a new CatalogRepository with the given database connection
func NewCatalogRepository(db *sql.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// UpsertTrack merges a track and its related album and artists in one
// transaction. Safe to call for every encountered track; replays are no-ops.
func (r *CatalogRepository) UpsertTrack(track models.Track) error {
	if track.ID == "" {
		return fmt.Errorf("track id is required")
	}

	return inTx(r.db, func(tx *sql.Tx) error {
		return upsertTrackTx(tx, track)
	})
}

// UpsertTracks merges a batch of tracks in a single transaction.
func (r *CatalogRepository) UpsertTracks(tracks []models.Track) error {
	if len(tracks) == 0 {
		return nil
	}

	return inTx(r.db, func(tx *sql.Tx) error {
		for _, track := range tracks {
			if track.ID == "" {
				continue
			}
			if err := upsertTrackTx(tx, track); err != nil {
				return err
			}
		}
		return nil
	})
}

func upsertTrackTx(tx *sql.Tx, track models.Track) error {
	var albumID sql.NullString
	if track.Album != nil && track.Album.ID != "" {
		if err := upsertAlbumTx(tx, *track.Album); err != nil {
			return err
		}
		albumID = sql.NullString{String: track.Album.ID, Valid: true}
	}

	for _, artist := range track.Artists {
		if err := upsertArtistTx(tx, artist); err != nil {
			return err
		}
	}

	query := `
		INSERT OR REPLACE INTO tracks (id, title, duration_ms, album_id, uri)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, err := tx.Exec(query, track.ID, track.Title, track.DurationMS, albumID, track.URI); err != nil {
		return fmt.Errorf("failed to upsert track %s: %w", track.ID, err)
	}

	for _, artist := range track.Artists {
		join := `INSERT OR IGNORE INTO track_artists (track_id, artist_id) VALUES (?, ?)`
		if _, err := tx.Exec(join, track.ID, artist.ID); err != nil {
			return fmt.Errorf("failed to link track artist: %w", err)
		}
	}

	return nil
}

func upsertArtistTx(tx *sql.Tx, artist models.Artist) error {
	if artist.ID == "" {
		return nil
	}
	query := `INSERT OR REPLACE INTO artists (id, name, picture, uri) VALUES (?, ?, ?, ?)`
	if _, err := tx.Exec(query, artist.ID, artist.Name, artist.Picture, artist.URI); err != nil {
		return fmt.Errorf("failed to upsert artist %s: %w", artist.ID, err)
	}
	return nil
}

func upsertAlbumTx(tx *sql.Tx, album models.Album) error {
	query := `
		INSERT OR REPLACE INTO albums (id, name, picture, release_date, release_date_precision, uri)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	if _, err := tx.Exec(query, album.ID, album.Name, album.Picture, album.ReleaseDate, album.ReleaseDatePrecision, album.URI); err != nil {
		return fmt.Errorf("failed to upsert album %s: %w", album.ID, err)
	}

	for _, artist := range album.Artists {
		if err := upsertArtistTx(tx, artist); err != nil {
			return err
		}
		join := `INSERT OR IGNORE INTO album_artists (album_id, artist_id) VALUES (?, ?)`
		if _, err := tx.Exec(join, album.ID, artist.ID); err != nil {
			return fmt.Errorf("failed to link album artist: %w", err)
		}
	}

	return nil
}

// MissingTrackIDs returns track ids referenced by plays but absent from the
// catalog. Used by the history import to backfill metadata.
func (r *CatalogRepository) MissingTrackIDs() ([]string, error) {
	query := `
		SELECT DISTINCT p.track_id
		FROM plays p
		LEFT JOIN tracks t ON t.id = p.track_id
		WHERE t.id IS NULL
	`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query missing tracks: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan track id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return ids, nil
}
