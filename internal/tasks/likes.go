package tasks

import (
	"context"
	"fmt"

	"github.com/desertthunder/lykd/internal/models"
	"github.com/desertthunder/lykd/internal/spotify"
)

// ScanMode selects how much of the user's library a reconciliation pass
// reads.
type ScanMode int

const (
	// ScanFull reads the entire library and diffs it against local state.
	ScanFull ScanMode = iota
	// ScanQuick reads newest-first and stops at the first already-known like.
	ScanQuick
	// ScanSkip does nothing; a quick scan ran too recently.
	ScanSkip
)

func (m ScanMode) String() string {
	switch m {
	case ScanFull:
		return "full"
	case ScanQuick:
		return "quick"
	case ScanSkip:
		return "skip"
	default:
		return "unknown"
	}
}

// scanMode picks the scan for this pass. A stale or missing full scan
// forces a full one; a quick scan inside the cooldown window skips; anything
// else runs quick.
func (e *SyncEngine) scanMode(user *models.User) ScanMode {
	now := e.now()
	if user.LastLikeScanFull == nil || now.Sub(*user.LastLikeScanFull) > e.cfg.FullScanStaleness() {
		return ScanFull
	}
	if user.LastLikeScan != nil && now.Sub(*user.LastLikeScan) < e.cfg.QuickScanCooldown() {
		return ScanSkip
	}
	return ScanQuick
}

// ReconcileLikes brings the local like table and the canonical playlist in
// line with the user's remote library.
func (e *SyncEngine) ReconcileLikes(ctx context.Context, user *models.User) error {
	mode := e.scanMode(user)
	e.logger.Debug("reconciling likes", "user", user.ID, "mode", mode)

	switch mode {
	case ScanSkip:
		return nil
	case ScanFull:
		return e.fullScan(ctx, user)
	default:
		return e.quickScan(ctx, user)
	}
}

// fullScan reads the complete library, diffs it against local likes and the
// canonical playlist, applies remote writes first and local writes second,
// then stamps both scan timestamps.
func (e *SyncEngine) fullScan(ctx context.Context, user *models.User) error {
	liked, err := spotify.CollectAll(ctx, func(ctx context.Context, cursor string) ([]spotify.SavedTrack, string, error) {
		return e.remote.LikedPage(ctx, user, cursor)
	})
	if err != nil {
		return fmt.Errorf("failed to read library: %w", err)
	}

	localIDs, err := e.repos.Likes.TrackIDs(user.ID)
	if err != nil {
		return err
	}
	localSet := make(map[string]struct{}, len(localIDs))
	for _, id := range localIDs {
		localSet[id] = struct{}{}
	}

	remoteSet := make(map[string]struct{}, len(liked))
	var fresh []spotify.SavedTrack
	for _, item := range liked {
		remoteSet[item.Track.ID] = struct{}{}
		if _, ok := localSet[item.Track.ID]; !ok {
			fresh = append(fresh, item)
		}
	}

	var unliked []string
	for _, id := range localIDs {
		if _, ok := remoteSet[id]; !ok {
			unliked = append(unliked, id)
		}
	}

	playlist, remoteSnapshot, err := e.mirror.Resolve(ctx, user)
	if err != nil {
		return err
	}

	// The reference set for playlist diffing is the local mirror unless the
	// playlist moved underneath us since the last recorded snapshot.
	playlistRef := localIDs
	rebuild := false
	if remoteSnapshot != "" && remoteSnapshot != playlist.SnapshotID {
		entries, err := spotify.CollectAll(ctx, func(ctx context.Context, cursor string) ([]spotify.PlaylistEntry, string, error) {
			return e.remote.PlaylistTracksPage(ctx, user, playlist.ID, cursor)
		})
		if err != nil {
			return fmt.Errorf("failed to read playlist tracks: %w", err)
		}

		ids := make([]string, 0, len(entries))
		unique := make(map[string]struct{}, len(entries))
		for _, entry := range entries {
			ids = append(ids, entry.Track.ID)
			unique[entry.Track.ID] = struct{}{}
		}

		if len(ids) != len(unique) {
			e.logger.Warn("playlist contains duplicates, rebuilding", "user", user.ID, "playlist", playlist.ID, "entries", len(ids), "unique", len(unique))
			rebuild = true
			playlistRef = ids
		} else {
			playlistRef = ids
		}
	}

	var addToPlaylist, removeFromPlaylist []string
	if rebuild {
		// Drop every current entry and re-insert the deduplicated like set
		// oldest-first.
		seen := make(map[string]struct{}, len(playlistRef))
		for _, id := range playlistRef {
			if _, ok := seen[id]; !ok {
				removeFromPlaylist = append(removeFromPlaylist, id)
				seen[id] = struct{}{}
			}
		}
		addToPlaylist = dedupeOldestFirst(liked)
	} else {
		refSet := make(map[string]struct{}, len(playlistRef))
		for _, id := range playlistRef {
			refSet[id] = struct{}{}
		}
		for _, item := range liked {
			if _, ok := refSet[item.Track.ID]; !ok {
				addToPlaylist = append(addToPlaylist, item.Track.ID)
			}
		}
		for _, id := range playlistRef {
			if _, ok := remoteSet[id]; !ok {
				removeFromPlaylist = append(removeFromPlaylist, id)
			}
		}
	}

	snapshot := remoteSnapshot
	if len(addToPlaylist) > 0 || len(removeFromPlaylist) > 0 {
		s, err := e.mirror.ApplyDiff(ctx, user, playlist.ID, addToPlaylist, removeFromPlaylist)
		if err != nil {
			return err
		}
		if s != "" {
			snapshot = s
		}
	}

	if err := e.persistLikes(user, fresh, unliked); err != nil {
		return err
	}

	if rebuild {
		// Local playlist rows follow the rebuilt membership exactly.
		current, err := e.repos.Playlists.TrackIDs(playlist.ID)
		if err != nil {
			return err
		}
		if err := e.persistPlaylistEntries(playlist.ID, likedByID(liked, addToPlaylist), current); err != nil {
			return err
		}
	} else {
		if err := e.persistPlaylistEntries(playlist.ID, fresh, unliked); err != nil {
			return err
		}
	}

	if snapshot != "" {
		if err := e.repos.Playlists.SetSnapshot(playlist.ID, snapshot); err != nil {
			return err
		}
	}

	if err := e.repos.Users.SetLastLikeScan(user.ID, e.now(), true); err != nil {
		return err
	}

	e.logger.Info("full scan complete", "user", user.ID, "liked", len(liked), "added", len(fresh), "removed", len(unliked))
	return nil
}

// quickScan walks the library newest-first and stops at the first track the
// local store already knows about.
func (e *SyncEngine) quickScan(ctx context.Context, user *models.User) error {
	localIDs, err := e.repos.Likes.TrackIDs(user.ID)
	if err != nil {
		return err
	}
	localSet := make(map[string]struct{}, len(localIDs))
	for _, id := range localIDs {
		localSet[id] = struct{}{}
	}

	pager := spotify.NewPager(func(ctx context.Context, cursor string) ([]spotify.SavedTrack, string, error) {
		return e.remote.LikedPage(ctx, user, cursor)
	})

	var fresh []spotify.SavedTrack
	for {
		item, ok, err := pager.Next(ctx)
		if err != nil {
			return fmt.Errorf("failed to read library: %w", err)
		}
		if !ok {
			break
		}
		if _, known := localSet[item.Track.ID]; known {
			break
		}
		fresh = append(fresh, item)
	}

	if len(fresh) > 0 {
		playlist, remoteSnapshot, err := e.resolvePlaylist(ctx, user)
		if err != nil {
			return err
		}

		addIDs := make([]string, 0, len(fresh))
		for _, item := range fresh {
			addIDs = append(addIDs, item.Track.ID)
		}

		snapshot := remoteSnapshot
		s, err := e.mirror.ApplyDiff(ctx, user, playlist.ID, addIDs, nil)
		if err != nil {
			return err
		}
		if s != "" {
			snapshot = s
		}

		if err := e.persistLikes(user, fresh, nil); err != nil {
			return err
		}
		if err := e.persistPlaylistEntries(playlist.ID, fresh, nil); err != nil {
			return err
		}
		if snapshot != "" {
			if err := e.repos.Playlists.SetSnapshot(playlist.ID, snapshot); err != nil {
				return err
			}
		}

		e.logger.Info("quick scan found new likes", "user", user.ID, "added", len(fresh))
	}

	return e.repos.Users.SetLastLikeScan(user.ID, e.now(), false)
}

// resolvePlaylist prefers the stored playlist row so a quick scan does not
// have to page through every playlist; it falls back to a full resolve when
// no row exists yet.
func (e *SyncEngine) resolvePlaylist(ctx context.Context, user *models.User) (*models.Playlist, string, error) {
	if playlist, err := e.repos.Playlists.GetByUser(user.ID); err == nil {
		return playlist, playlist.SnapshotID, nil
	}
	return e.mirror.Resolve(ctx, user)
}

// persistLikes writes the catalog rows for new likes, then applies the like
// diff in a single transaction.
func (e *SyncEngine) persistLikes(user *models.User, fresh []spotify.SavedTrack, unliked []string) error {
	if len(fresh) == 0 && len(unliked) == 0 {
		return nil
	}

	tracks := make([]models.Track, 0, len(fresh))
	likes := make([]models.Like, 0, len(fresh))
	for _, item := range fresh {
		likedAt, err := parseTimestamp(item.AddedAt)
		if err != nil {
			e.logger.Warn("skipping like with bad timestamp", "user", user.ID, "track", item.Track.ID, "error", err)
			continue
		}
		tracks = append(tracks, item.Track.Model())
		likes = append(likes, models.Like{UserID: user.ID, TrackID: item.Track.ID, LikedAt: likedAt})
	}

	if err := e.repos.Catalog.UpsertTracks(tracks); err != nil {
		return err
	}
	return e.repos.Likes.ApplyDiff(user.ID, likes, unliked)
}

// persistPlaylistEntries mirrors a playlist membership change locally.
func (e *SyncEngine) persistPlaylistEntries(playlistID string, added []spotify.SavedTrack, removed []string) error {
	if len(added) == 0 && len(removed) == 0 {
		return nil
	}

	now := e.now()
	entries := make([]models.PlaylistTrack, 0, len(added))
	for _, item := range added {
		addedAt, err := parseTimestamp(item.AddedAt)
		if err != nil {
			addedAt = now
		}
		entries = append(entries, models.PlaylistTrack{PlaylistID: playlistID, TrackID: item.Track.ID, AddedAt: addedAt})
	}

	return e.repos.Playlists.ApplyDiff(playlistID, entries, removed)
}

// dedupeOldestFirst collapses the newest-first like list into one entry per
// track ordered oldest-first, keeping the oldest occurrence of any repeat.
func dedupeOldestFirst(liked []spotify.SavedTrack) []string {
	seen := make(map[string]struct{}, len(liked))
	var out []string
	for i := len(liked) - 1; i >= 0; i-- {
		id := liked[i].Track.ID
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// likedByID projects the like list onto an id list, preserving the id
// list's order.
func likedByID(liked []spotify.SavedTrack, ids []string) []spotify.SavedTrack {
	byID := make(map[string]spotify.SavedTrack, len(liked))
	for _, item := range liked {
		if _, ok := byID[item.Track.ID]; !ok {
			byID[item.Track.ID] = item
		}
	}

	out := make([]spotify.SavedTrack, 0, len(ids))
	for _, id := range ids {
		if item, ok := byID[id]; ok {
			out = append(out, item)
		}
	}
	return out
}
