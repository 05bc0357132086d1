package tasks

import (
	"context"
	"fmt"

	"github.com/desertthunder/lykd/internal/models"
	"github.com/desertthunder/lykd/internal/spotify"
)

// IngestPlays appends new rows from the recently-played feed. The feed is
// newest-first, so the walk stops at the first play the local store already
// holds; everything gathered before that point is committed in one batch.
func (e *SyncEngine) IngestPlays(ctx context.Context, user *models.User) error {
	pager := spotify.NewPager(func(ctx context.Context, cursor string) ([]spotify.PlayedTrack, string, error) {
		return e.remote.RecentlyPlayedPage(ctx, user, cursor)
	})

	var tracks []models.Track
	var plays []models.Play
	for {
		item, ok, err := pager.Next(ctx)
		if err != nil {
			return fmt.Errorf("failed to read play history: %w", err)
		}
		if !ok {
			break
		}

		playedAt, err := parseTimestamp(item.PlayedAt)
		if err != nil {
			e.logger.Warn("skipping play with bad timestamp", "user", user.ID, "track", item.Track.ID, "error", err)
			continue
		}

		known, err := e.repos.Plays.Exists(user.ID, item.Track.ID, playedAt)
		if err != nil {
			return err
		}
		if known {
			break
		}

		tracks = append(tracks, item.Track.Model())
		plays = append(plays, models.Play{UserID: user.ID, TrackID: item.Track.ID, PlayedAt: playedAt})
	}

	if len(plays) > 0 {
		if err := e.repos.Catalog.UpsertTracks(tracks); err != nil {
			return err
		}

		inserted, err := e.repos.Plays.ApplyBatch(plays)
		if err != nil {
			return err
		}
		e.logger.Info("ingested plays", "user", user.ID, "count", inserted)
	}

	return e.repos.Users.SetLastHistorySync(user.ID, e.now())
}
