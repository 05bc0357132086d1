package tasks

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/desertthunder/lykd/internal/spotify"
	tu "github.com/desertthunder/lykd/internal/testing"
)

func writeArchive(t *testing.T, files map[string]string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "history.zip")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create archive: %v", err)
	}
	defer f.Close()

	w := zip.NewWriter(f)
	for name, content := range files {
		entry, err := w.Create(name)
		if err != nil {
			t.Fatalf("Failed to create entry %s: %v", name, err)
		}
		if _, err := entry.Write([]byte(content)); err != nil {
			t.Fatalf("Failed to write entry %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close archive: %v", err)
	}

	return path
}

func TestImportHistoryZip(t *testing.T) {
	ctx := context.Background()

	t.Run("imports plays and backfills catalog", func(t *testing.T) {
		remote := newFakeRemote()
		remote.catalog["t1"] = spotify.Track{ID: "t1", Name: "Track t1", URI: spotify.TrackURI("t1")}
		remote.catalog["t2"] = spotify.Track{ID: "t2", Name: "Track t2", URI: spotify.TrackURI("t2")}
		engine, repos := newTestEngine(t, remote)

		user := tu.SeedUser("u1")
		mustUpsertUser(t, repos, user)

		archive := writeArchive(t, map[string]string{
			"Spotify Extended Streaming History/Streaming_History_Audio_2023.json": `[
				{"ts": "2023-06-01T10:00:00Z", "spotify_track_uri": "spotify:track:t1", "ms_played": 180000},
				{"ts": "2023-06-02T10:00:00Z", "spotify_track_uri": "spotify:track:t2", "ms_played": 200000},
				{"ts": "2023-06-03T10:00:00Z", "spotify_track_uri": "spotify:episode:e1", "ms_played": 90000},
				{"ts": "bad", "spotify_track_uri": "spotify:track:t1", "ms_played": 1000}
			]`,
		})

		result, err := engine.ImportHistoryZip(ctx, user, archive)
		if err != nil {
			t.Fatalf("ImportHistoryZip() error = %v", err)
		}

		if result.Inserted != 2 {
			t.Errorf("Inserted = %d, want 2", result.Inserted)
		}
		if result.Skipped != 2 {
			t.Errorf("Skipped = %d, want 2", result.Skipped)
		}
		if result.Backfilled != 2 {
			t.Errorf("Backfilled = %d, want 2", result.Backfilled)
		}

		count, err := repos.Plays.Count("u1")
		if err != nil {
			t.Fatalf("Count() error = %v", err)
		}
		if count != 2 {
			t.Errorf("play count = %d, want 2", count)
		}

		missing, err := repos.Catalog.MissingTrackIDs()
		if err != nil {
			t.Fatalf("MissingTrackIDs() error = %v", err)
		}
		if len(missing) != 0 {
			t.Errorf("missing tracks after backfill: %v", missing)
		}
	})

	t.Run("imports video history files", func(t *testing.T) {
		remote := newFakeRemote()
		remote.catalog["t1"] = spotify.Track{ID: "t1", Name: "Track t1", URI: spotify.TrackURI("t1")}
		engine, repos := newTestEngine(t, remote)

		user := tu.SeedUser("u1")
		mustUpsertUser(t, repos, user)

		archive := writeArchive(t, map[string]string{
			"Spotify Extended Streaming History/Streaming_History_Video_2023.json": `[
				{"ts": "2023-07-01T10:00:00Z", "spotify_track_uri": "spotify:track:t1", "ms_played": 60000}
			]`,
		})

		result, err := engine.ImportHistoryZip(ctx, user, archive)
		if err != nil {
			t.Fatalf("ImportHistoryZip() error = %v", err)
		}
		if result.Inserted != 1 {
			t.Errorf("Inserted = %d, want 1", result.Inserted)
		}

		count, err := repos.Plays.Count("u1")
		if err != nil {
			t.Fatalf("Count() error = %v", err)
		}
		if count != 1 {
			t.Errorf("play count = %d, want 1", count)
		}
	})

	t.Run("repeated records collapse to one play", func(t *testing.T) {
		remote := newFakeRemote()
		remote.catalog["t1"] = spotify.Track{ID: "t1", Name: "Track t1", URI: spotify.TrackURI("t1")}
		engine, repos := newTestEngine(t, remote)

		user := tu.SeedUser("u1")
		mustUpsertUser(t, repos, user)

		record := `{"ts": "2023-06-01T10:00:00Z", "spotify_track_uri": "spotify:track:t1", "ms_played": 180000}`
		archive := writeArchive(t, map[string]string{
			"Streaming_History_Audio_2022.json": "[" + record + "]",
			"Streaming_History_Audio_2023.json": "[" + record + "]",
		})

		result, err := engine.ImportHistoryZip(ctx, user, archive)
		if err != nil {
			t.Fatalf("ImportHistoryZip() error = %v", err)
		}
		if result.Inserted != 1 {
			t.Errorf("Inserted = %d, want 1", result.Inserted)
		}

		count, err := repos.Plays.Count("u1")
		if err != nil {
			t.Fatalf("Count() error = %v", err)
		}
		if count != 1 {
			t.Errorf("play count = %d, want 1", count)
		}
	})

	t.Run("rejects archives without history files", func(t *testing.T) {
		engine, repos := newTestEngine(t, newFakeRemote())

		user := tu.SeedUser("u1")
		mustUpsertUser(t, repos, user)

		archive := writeArchive(t, map[string]string{"ReadMeFirst.pdf": "not json"})

		if _, err := engine.ImportHistoryZip(ctx, user, archive); err == nil {
			t.Error("expected an error for an archive without history files")
		}
	})

	t.Run("ignores entries that escape the archive root", func(t *testing.T) {
		remote := newFakeRemote()
		engine, repos := newTestEngine(t, remote)

		user := tu.SeedUser("u1")
		mustUpsertUser(t, repos, user)

		archive := writeArchive(t, map[string]string{
			"../Streaming_History_Audio_evil.json": `[{"ts": "2023-06-01T10:00:00Z", "spotify_track_uri": "spotify:track:t9", "ms_played": 1}]`,
			"Streaming_History_Audio_2023.json":    `[]`,
		})

		result, err := engine.ImportHistoryZip(ctx, user, archive)
		if err != nil {
			t.Fatalf("ImportHistoryZip() error = %v", err)
		}
		if result.Inserted != 0 {
			t.Errorf("Inserted = %d, want 0", result.Inserted)
		}
	})
}
