package tasks

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/desertthunder/lykd/internal/models"
	"github.com/desertthunder/lykd/internal/shared"
	"github.com/desertthunder/lykd/internal/spotify"
)

// historyEntry is one record of the extended streaming history export.
type historyEntry struct {
	Timestamp string `json:"ts"`
	TrackURI  string `json:"spotify_track_uri"`
	MSPlayed  int    `json:"ms_played"`
}

// ImportResult summarises a history archive import.
type ImportResult struct {
	Files      int
	Parsed     int
	Inserted   int
	Skipped    int
	Backfilled int
}

// ImportHistoryZip loads an extended streaming history archive into the
// play log. JSON files are processed newest name first; malformed records
// are skipped with a warning rather than failing the import. Plays for
// tracks not yet in the catalog are accepted and the catalog is backfilled
// from the provider afterwards.
func (e *SyncEngine) ImportHistoryZip(ctx context.Context, user *models.User, archivePath string) (*ImportResult, error) {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer reader.Close()

	var files []*zip.File
	for _, f := range reader.File {
		name := f.Name
		// Reject entries that would escape an extraction root.
		if strings.HasPrefix(name, "/") || strings.Contains(name, "..") {
			e.logger.Warn("skipping suspicious archive entry", "entry", name)
			continue
		}
		if strings.HasSuffix(name, ".json") {
			files = append(files, f)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: archive contains no history files", shared.ErrInvalidInput)
	}

	sort.Slice(files, func(i, j int) bool { return path.Base(files[i].Name) > path.Base(files[j].Name) })

	result := &ImportResult{Files: len(files)}
	var plays []models.Play
	seen := make(map[string]struct{})
	for _, f := range files {
		entries, err := readHistoryFile(f)
		if err != nil {
			e.logger.Warn("skipping unreadable history file", "file", f.Name, "error", err)
			continue
		}

		for _, entry := range entries {
			result.Parsed++

			trackID, ok := strings.CutPrefix(entry.TrackURI, "spotify:track:")
			if !ok || trackID == "" {
				result.Skipped++
				continue
			}
			playedAt, err := parseTimestamp(entry.Timestamp)
			if err != nil {
				e.logger.Warn("skipping history record with bad timestamp", "file", f.Name, "error", err)
				result.Skipped++
				continue
			}

			key := trackID + "|" + entry.Timestamp
			if _, dup := seen[key]; dup {
				result.Skipped++
				continue
			}
			seen[key] = struct{}{}

			plays = append(plays, models.Play{UserID: user.ID, TrackID: trackID, PlayedAt: playedAt})
		}
	}

	if len(plays) > 0 {
		inserted, err := e.repos.Plays.ApplyBatch(plays)
		if err != nil {
			return nil, err
		}
		result.Inserted = inserted
	}

	backfilled, err := e.BackfillCatalog(ctx, user)
	if err != nil {
		return nil, err
	}
	result.Backfilled = backfilled

	if err := e.repos.Users.SetLastHistorySync(user.ID, e.now()); err != nil {
		return nil, err
	}

	e.logger.Info("history import complete", "user", user.ID, "files", result.Files, "inserted", result.Inserted, "skipped", result.Skipped, "backfilled", result.Backfilled)
	return result, nil
}

func readHistoryFile(f *zip.File) ([]historyEntry, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var entries []historyEntry
	if err := json.NewDecoder(rc).Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", f.Name, err)
	}
	return entries, nil
}

// BackfillCatalog fetches metadata for tracks referenced by plays but
// absent from the catalog. Lookups run in provider-sized batches; ids the
// provider no longer resolves are left missing.
func (e *SyncEngine) BackfillCatalog(ctx context.Context, user *models.User) (int, error) {
	missing, err := e.repos.Catalog.MissingTrackIDs()
	if err != nil {
		return 0, err
	}
	if len(missing) == 0 {
		return 0, nil
	}

	var filled int
	for _, block := range shared.Blocks(missing, spotify.TracksBatchMax) {
		fetched, err := e.remote.TracksBatch(ctx, user, block)
		if err != nil {
			return filled, fmt.Errorf("failed to fetch track metadata: %w", err)
		}

		tracks := make([]models.Track, 0, len(fetched))
		for _, t := range fetched {
			if t.ID == "" {
				continue
			}
			tracks = append(tracks, t.Model())
		}
		if err := e.repos.Catalog.UpsertTracks(tracks); err != nil {
			return filled, err
		}
		filled += len(tracks)
	}

	return filled, nil
}
