package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/lykd/internal/models"
)

// PlayRepository stores listening events. Plays are append-only: rows are
// never updated or deleted by the engine, and the natural key
// (user, track, timestamp) deduplicates replays of the remote feed.
type PlayRepository struct {
	db *sql.DB
}

// NewPlayRepository creates a new PlayRepository with the given database connection
func NewPlayRepository(db *sql.DB) *PlayRepository {
	return &PlayRepository{db: db}
}

// Exists reports whether a play with the exact natural key is already stored.
func (r *PlayRepository) Exists(userID, trackID string, playedAt time.Time) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM plays WHERE user_id = ? AND track_id = ? AND played_at = ?)`
	if err := r.db.QueryRow(query, userID, trackID, playedAt).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check play: %w", err)
	}
	return exists, nil
}

// ApplyBatch inserts plays in one transaction, ignoring rows whose natural
// key already exists. Returns the number of rows actually added.
func (r *PlayRepository) ApplyBatch(plays []models.Play) (int, error) {
	if len(plays) == 0 {
		return 0, nil
	}

	inserted := 0
	err := inTx(r.db, func(tx *sql.Tx) error {
		for _, play := range plays {
			query := `INSERT OR IGNORE INTO plays (user_id, track_id, played_at) VALUES (?, ?, ?)`
			result, err := tx.Exec(query, play.UserID, play.TrackID, play.PlayedAt)
			if err != nil {
				return fmt.Errorf("failed to insert play %s: %w", play.TrackID, err)
			}
			rows, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to get affected rows: %w", err)
			}
			inserted += int(rows)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return inserted, nil
}

// Count returns the number of plays stored for the user.
func (r *PlayRepository) Count(userID string) (int, error) {
	var count int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM plays WHERE user_id = ?`, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count plays: %w", err)
	}
	return count, nil
}

// Latest returns the most recent play timestamp for the user, or zero time
// when no plays are stored.
func (r *PlayRepository) Latest(userID string) (time.Time, error) {
	var latest sql.NullTime
	query := `SELECT MAX(played_at) FROM plays WHERE user_id = ?`
	if err := r.db.QueryRow(query, userID).Scan(&latest); err != nil {
		return time.Time{}, fmt.Errorf("failed to query latest play: %w", err)
	}
	if !latest.Valid {
		return time.Time{}, nil
	}
	return latest.Time, nil
}
