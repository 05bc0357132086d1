package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/lykd/internal/models"
)

// LikeRepository maintains the local mirror of a user's liked tracks.
//
// After a full reconciliation the set of rows for a user exactly equals the
// remote liked-set at that instant; only ApplyDiff writes the table.
type LikeRepository struct {
	db *sql.DB
}

// NewLikeRepository creates a new LikeRepository with the given database connection
func NewLikeRepository(db *sql.DB) *LikeRepository {
	return &LikeRepository{db: db}
}

// TrackIDs returns the ids of every track the user currently likes locally,
// most recently liked first.
func (r *LikeRepository) TrackIDs(userID string) ([]string, error) {
	query := `SELECT track_id FROM likes WHERE user_id = ? ORDER BY liked_at DESC`

	rows, err := r.db.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query likes: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan like: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return ids, nil
}

// ApplyDiff merges toAdd and deletes toRemove in one transaction. Both sides
// are idempotent, so a replay after partial failure converges on the same
// state.
func (r *LikeRepository) ApplyDiff(userID string, toAdd []models.Like, toRemove []string) error {
	if len(toAdd) == 0 && len(toRemove) == 0 {
		return nil
	}

	return inTx(r.db, func(tx *sql.Tx) error {
		for _, like := range toAdd {
			query := `
				INSERT INTO likes (user_id, track_id, liked_at)
				VALUES (?, ?, ?)
				ON CONFLICT(user_id, track_id) DO UPDATE SET liked_at = excluded.liked_at
			`
			if _, err := tx.Exec(query, userID, like.TrackID, like.LikedAt); err != nil {
				return fmt.Errorf("failed to insert like %s: %w", like.TrackID, err)
			}
		}

		if len(toRemove) > 0 {
			args := make([]any, 0, len(toRemove)+1)
			args = append(args, userID)
			for _, id := range toRemove {
				args = append(args, id)
			}
			query := fmt.Sprintf(`DELETE FROM likes WHERE user_id = ? AND track_id IN (%s)`, placeholders(len(toRemove)))
			if _, err := tx.Exec(query, args...); err != nil {
				return fmt.Errorf("failed to delete likes: %w", err)
			}
		}

		return nil
	})
}

// Count returns the number of likes stored for the user.
func (r *LikeRepository) Count(userID string) (int, error) {
	var count int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM likes WHERE user_id = ?`, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count likes: %w", err)
	}
	return count, nil
}

// List returns the user's likes, most recent first.
func (r *LikeRepository) List(userID string) ([]models.Like, error) {
	query := `
		SELECT user_id, track_id, liked_at
		FROM likes
		WHERE user_id = ?
		ORDER BY liked_at DESC
	`

	rows, err := r.db.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query likes: %w", err)
	}
	defer rows.Close()

	var likes []models.Like
	for rows.Next() {
		var like models.Like
		if err := rows.Scan(&like.UserID, &like.TrackID, &like.LikedAt); err != nil {
			return nil, fmt.Errorf("failed to scan like: %w", err)
		}
		likes = append(likes, like)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return likes, nil
}

// LikedTrack is a like joined with its catalog metadata for display and
// export.
type LikedTrack struct {
	TrackID    string
	Title      string
	Artist     string
	Album      string
	DurationMS int
	LikedAt    time.Time
}

// ListDetailed returns the user's likes joined with track, artist and album
// metadata, most recent first. Tracks without a catalog row are omitted.
func (r *LikeRepository) ListDetailed(userID string) ([]LikedTrack, error) {
	query := `
		SELECT l.track_id, t.title, COALESCE(GROUP_CONCAT(DISTINCT a.name), ''),
		       COALESCE(al.name, ''), t.duration_ms, l.liked_at
		FROM likes l
		JOIN tracks t ON t.id = l.track_id
		LEFT JOIN track_artists ta ON ta.track_id = t.id
		LEFT JOIN artists a ON a.id = ta.artist_id
		LEFT JOIN albums al ON al.id = t.album_id
		WHERE l.user_id = ?
		GROUP BY l.track_id
		ORDER BY l.liked_at DESC
	`

	rows, err := r.db.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query liked tracks: %w", err)
	}
	defer rows.Close()

	var tracks []LikedTrack
	for rows.Next() {
		var track LikedTrack
		if err := rows.Scan(&track.TrackID, &track.Title, &track.Artist, &track.Album, &track.DurationMS, &track.LikedAt); err != nil {
			return nil, fmt.Errorf("failed to scan liked track: %w", err)
		}
		tracks = append(tracks, track)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return tracks, nil
}
