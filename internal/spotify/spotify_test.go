package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/lykd/internal/models"
	"github.com/desertthunder/lykd/internal/shared"
)

// recordingStore captures token mutations performed by the client mid-call.
type recordingStore struct {
	saved   map[string]*models.TokenPair
	cleared []string
}

func newRecordingStore() *recordingStore {
	return &recordingStore{saved: make(map[string]*models.TokenPair)}
}

func (s *recordingStore) SaveTokens(userID string, tokens *models.TokenPair) error {
	s.saved[userID] = tokens
	return nil
}

func (s *recordingStore) ClearTokens(userID string) error {
	s.cleared = append(s.cleared, userID)
	return nil
}

func authedUser(access string) *models.User {
	return &models.User{
		ID:    "user1",
		Email: "user1@example.com",
		Tokens: &models.TokenPair{
			Access:  access,
			Refresh: "refresh1",
			Expiry:  time.Now().Add(time.Hour),
		},
	}
}

// newTestClient builds a client against httptest servers with no wait
// between retry attempts.
func newTestClient(t *testing.T, api, accounts http.Handler, store TokenStore) *Client {
	t.Helper()

	apiSrv := httptest.NewServer(api)
	t.Cleanup(apiSrv.Close)

	accountsURL := ""
	if accounts != nil {
		accountsSrv := httptest.NewServer(accounts)
		t.Cleanup(accountsSrv.Close)
		accountsURL = accountsSrv.URL
	}

	client := NewClient(ClientOpts{
		Config:    shared.SpotifyConfig{ClientID: "client-id", ClientSecret: "client-secret"},
		Store:     store,
		Cache:     NewMemoryCache(),
		Logger:    shared.NewLogger(io.Discard),
		PageLimit: 2,
	})
	client.SetBaseURLs(apiSrv.URL, accountsURL)
	client.policy = Policy{Attempts: 2}
	return client
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func savedPage(items []SavedTrack, next string) page[SavedTrack] {
	p := page[SavedTrack]{Items: items, Total: len(items)}
	if next != "" {
		p.Next = &next
	}
	return p
}

func wireTrack(id string) Track {
	return Track{ID: id, Name: "Track " + id, URI: TrackURI(id), DurationMS: 180000}
}

func TestLikedPage(t *testing.T) {
	ctx := context.Background()

	t.Run("follows cursors and skips trackless items", func(t *testing.T) {
		var queries []string
		mux := http.NewServeMux()
		mux.HandleFunc("/me/tracks", func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("Authorization"); got != "Bearer access" {
				t.Errorf("unexpected auth header %q", got)
			}
			queries = append(queries, r.URL.RawQuery)

			if r.URL.Query().Get("offset") == "2" {
				items := []SavedTrack{
					{AddedAt: "2026-08-01T10:00:00Z", Track: wireTrack("t3")},
					{AddedAt: "2026-08-01T09:00:00Z"}, // removed track, no id
				}
				writeJSON(w, savedPage(items, ""))
				return
			}

			next := "http://" + r.Host + "/me/tracks?offset=2"
			items := []SavedTrack{
				{AddedAt: "2026-08-02T10:00:00Z", Track: wireTrack("t1")},
				{AddedAt: "2026-08-02T09:00:00Z", Track: wireTrack("t2")},
			}
			writeJSON(w, savedPage(items, next))
		})

		client := newTestClient(t, mux, nil, newRecordingStore())
		user := authedUser("access")

		items, err := CollectAll(ctx, func(ctx context.Context, cursor string) ([]SavedTrack, string, error) {
			return client.LikedPage(ctx, user, cursor)
		})
		if err != nil {
			t.Fatalf("CollectAll failed: %v", err)
		}

		if len(items) != 3 {
			t.Fatalf("expected 3 items, got %d", len(items))
		}
		for i, want := range []string{"t1", "t2", "t3"} {
			if items[i].Track.ID != want {
				t.Errorf("item %d: expected %s, got %s", i, want, items[i].Track.ID)
			}
		}

		if len(queries) != 2 {
			t.Fatalf("expected 2 requests, got %d", len(queries))
		}
		if !strings.Contains(queries[0], "limit=2") {
			t.Errorf("first page should carry the limit, got %q", queries[0])
		}
		if strings.Contains(queries[1], "limit=") {
			t.Errorf("cursor pages carry their own parameters, got %q", queries[1])
		}
	})

	t.Run("rejects users without stored tokens", func(t *testing.T) {
		client := newTestClient(t, http.NewServeMux(), nil, newRecordingStore())
		user := &models.User{ID: "user1"}

		_, _, err := client.LikedPage(ctx, user, "")
		if !errors.Is(err, shared.ErrUserInactive) {
			t.Errorf("expected ErrUserInactive, got %v", err)
		}
	})
}

func TestTokenRefresh(t *testing.T) {
	ctx := context.Background()

	t.Run("expired access token is refreshed and persisted", func(t *testing.T) {
		apiCalls := 0
		mux := http.NewServeMux()
		mux.HandleFunc("/me/tracks", func(w http.ResponseWriter, r *http.Request) {
			apiCalls++
			if r.Header.Get("Authorization") == "Bearer stale" {
				w.WriteHeader(http.StatusUnauthorized)
				fmt.Fprint(w, "The access token expired")
				return
			}
			writeJSON(w, savedPage([]SavedTrack{{AddedAt: "2026-08-02T10:00:00Z", Track: wireTrack("t1")}}, ""))
		})

		accounts := http.NewServeMux()
		accounts.HandleFunc("/api/token", func(w http.ResponseWriter, r *http.Request) {
			if err := r.ParseForm(); err != nil {
				t.Fatalf("bad token form: %v", err)
			}
			if got := r.PostForm.Get("grant_type"); got != "refresh_token" {
				t.Errorf("unexpected grant type %q", got)
			}
			if got := r.PostForm.Get("refresh_token"); got != "refresh1" {
				t.Errorf("unexpected refresh token %q", got)
			}
			writeJSON(w, map[string]any{"access_token": "fresh", "expires_in": 3600})
		})

		store := newRecordingStore()
		client := newTestClient(t, mux, accounts, store)
		user := authedUser("stale")

		items, _, err := client.LikedPage(ctx, user, "")
		if err != nil {
			t.Fatalf("LikedPage failed: %v", err)
		}
		if len(items) != 1 {
			t.Fatalf("expected 1 item, got %d", len(items))
		}
		if apiCalls != 2 {
			t.Errorf("expected the call to be retried once, got %d calls", apiCalls)
		}

		if user.Tokens.Access != "fresh" {
			t.Errorf("expected refreshed access token, got %q", user.Tokens.Access)
		}
		if user.Tokens.Refresh != "refresh1" {
			t.Errorf("omitted refresh token should be kept, got %q", user.Tokens.Refresh)
		}
		saved, ok := store.saved["user1"]
		if !ok {
			t.Fatal("refreshed tokens were not persisted")
		}
		if saved.Access != "fresh" {
			t.Errorf("persisted access token %q", saved.Access)
		}
	})

	t.Run("revoked refresh credential clears stored tokens", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/me/tracks", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, "The access token expired")
		})

		accounts := http.NewServeMux()
		accounts.HandleFunc("/api/token", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, "Refresh token revoked")
		})

		store := newRecordingStore()
		client := newTestClient(t, mux, accounts, store)
		user := authedUser("stale")

		_, _, err := client.LikedPage(ctx, user, "")
		if !errors.Is(err, shared.ErrTokenRevoked) {
			t.Fatalf("expected ErrTokenRevoked, got %v", err)
		}
		if user.Tokens != nil {
			t.Error("expected in-memory tokens to be cleared")
		}
		if len(store.cleared) != 1 || store.cleared[0] != "user1" {
			t.Errorf("expected stored tokens cleared for user1, got %v", store.cleared)
		}
	})

	t.Run("refresh without a stored credential fails fast", func(t *testing.T) {
		client := newTestClient(t, http.NewServeMux(), nil, newRecordingStore())
		user := &models.User{ID: "user1", Tokens: &models.TokenPair{Access: "stale"}}

		_, err := client.RefreshToken(ctx, user)
		if !errors.Is(err, shared.ErrNoRefreshToken) {
			t.Errorf("expected ErrNoRefreshToken, got %v", err)
		}
	})
}

func TestRetryBehavior(t *testing.T) {
	ctx := context.Background()

	t.Run("rate limited calls are retried", func(t *testing.T) {
		calls := 0
		mux := http.NewServeMux()
		mux.HandleFunc("/me/tracks", func(w http.ResponseWriter, r *http.Request) {
			calls++
			if calls == 1 {
				w.Header().Set("Retry-After", "0")
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			writeJSON(w, savedPage([]SavedTrack{{AddedAt: "2026-08-02T10:00:00Z", Track: wireTrack("t1")}}, ""))
		})

		client := newTestClient(t, mux, nil, newRecordingStore())
		items, _, err := client.LikedPage(ctx, authedUser("access"), "")
		if err != nil {
			t.Fatalf("LikedPage failed: %v", err)
		}
		if len(items) != 1 {
			t.Errorf("expected 1 item, got %d", len(items))
		}
		if calls != 2 {
			t.Errorf("expected 2 calls, got %d", calls)
		}
	})

	t.Run("client errors are not retried", func(t *testing.T) {
		calls := 0
		mux := http.NewServeMux()
		mux.HandleFunc("/me/tracks", func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, "Insufficient scope")
		})

		client := newTestClient(t, mux, nil, newRecordingStore())
		_, _, err := client.LikedPage(ctx, authedUser("access"), "")
		if !errors.Is(err, shared.ErrAPIRequest) {
			t.Fatalf("expected API error, got %v", err)
		}
		if calls != 1 {
			t.Errorf("expected 1 call, got %d", calls)
		}
	})
}

func TestTracksBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("caches identical reads", func(t *testing.T) {
		calls := 0
		mux := http.NewServeMux()
		mux.HandleFunc("/tracks", func(w http.ResponseWriter, r *http.Request) {
			calls++
			if got := r.URL.Query().Get("ids"); got != "t1,t2" {
				t.Errorf("unexpected ids %q", got)
			}
			writeJSON(w, map[string]any{
				"tracks": []any{wireTrack("t1"), wireTrack("t2"), nil},
			})
		})

		client := newTestClient(t, mux, nil, newRecordingStore())
		user := authedUser("access")

		for range 2 {
			tracks, err := client.TracksBatch(ctx, user, []string{"t1", "t2"})
			if err != nil {
				t.Fatalf("TracksBatch failed: %v", err)
			}
			if len(tracks) != 2 {
				t.Fatalf("expected 2 tracks, got %d", len(tracks))
			}
		}
		if calls != 1 {
			t.Errorf("expected 1 upstream call, got %d", calls)
		}
	})

	t.Run("rejects oversized batches without a request", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/tracks", func(w http.ResponseWriter, r *http.Request) {
			t.Error("no request expected")
		})

		client := newTestClient(t, mux, nil, newRecordingStore())
		ids := make([]string, TracksBatchMax+1)
		for i := range ids {
			ids[i] = fmt.Sprintf("t%d", i)
		}

		_, err := client.TracksBatch(ctx, authedUser("access"), ids)
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("empty batch is a no-op", func(t *testing.T) {
		client := newTestClient(t, http.NewServeMux(), nil, newRecordingStore())
		tracks, err := client.TracksBatch(ctx, authedUser("access"), nil)
		if err != nil {
			t.Fatalf("TracksBatch failed: %v", err)
		}
		if tracks != nil {
			t.Errorf("expected nil, got %v", tracks)
		}
	})
}

func TestPlaylistCalls(t *testing.T) {
	ctx := context.Background()

	t.Run("create posts to the owner's collection", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/users/user1/playlists", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("unexpected method %s", r.Method)
			}
			var payload map[string]any
			json.NewDecoder(r.Body).Decode(&payload)
			if payload["name"] != "Lykd Songs" {
				t.Errorf("unexpected name %v", payload["name"])
			}
			if payload["public"] != false {
				t.Errorf("expected a private playlist, got %v", payload["public"])
			}
			writeJSON(w, Playlist{ID: "pl1", Name: "Lykd Songs", SnapshotID: "snap-1"})
		})

		client := newTestClient(t, mux, nil, newRecordingStore())
		created, err := client.CreatePlaylist(ctx, authedUser("access"), "Lykd Songs", "mirror", false)
		if err != nil {
			t.Fatalf("CreatePlaylist failed: %v", err)
		}
		if created.ID != "pl1" || created.SnapshotID != "snap-1" {
			t.Errorf("unexpected playlist %+v", created)
		}
	})

	t.Run("add sends track URIs at an explicit position", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/playlists/pl1/tracks", func(w http.ResponseWriter, r *http.Request) {
			var payload struct {
				URIs     []string `json:"uris"`
				Position int      `json:"position"`
			}
			json.NewDecoder(r.Body).Decode(&payload)
			if len(payload.URIs) != 2 || payload.URIs[0] != "spotify:track:t1" {
				t.Errorf("unexpected uris %v", payload.URIs)
			}
			if payload.Position != 0 {
				t.Errorf("unexpected position %d", payload.Position)
			}
			writeJSON(w, snapshotResponse{SnapshotID: "snap-2"})
		})

		client := newTestClient(t, mux, nil, newRecordingStore())
		snapshot, err := client.AddPlaylistTracks(ctx, authedUser("access"), "pl1", []string{"t1", "t2"}, 0)
		if err != nil {
			t.Fatalf("AddPlaylistTracks failed: %v", err)
		}
		if snapshot != "snap-2" {
			t.Errorf("expected snap-2, got %q", snapshot)
		}
	})

	t.Run("positioned removal is pinned to a snapshot", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/playlists/pl1/tracks", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodDelete {
				t.Errorf("unexpected method %s", r.Method)
			}
			var payload struct {
				Tracks     []PositionedRemoval `json:"tracks"`
				SnapshotID string              `json:"snapshot_id"`
			}
			json.NewDecoder(r.Body).Decode(&payload)
			if payload.SnapshotID != "snap-2" {
				t.Errorf("unexpected snapshot %q", payload.SnapshotID)
			}
			if len(payload.Tracks) != 1 || payload.Tracks[0].URI != "spotify:track:t1" {
				t.Errorf("unexpected tracks %v", payload.Tracks)
			}
			if len(payload.Tracks[0].Positions) != 2 || payload.Tracks[0].Positions[0] != 4 {
				t.Errorf("unexpected positions %v", payload.Tracks[0].Positions)
			}
			writeJSON(w, snapshotResponse{SnapshotID: "snap-3"})
		})

		client := newTestClient(t, mux, nil, newRecordingStore())
		removals := []PositionedRemoval{{URI: "spotify:track:t1", Positions: []int{4, 1}}}
		snapshot, err := client.RemovePlaylistTracksAtPositions(ctx, authedUser("access"), "pl1", removals, "snap-2")
		if err != nil {
			t.Fatalf("RemovePlaylistTracksAtPositions failed: %v", err)
		}
		if snapshot != "snap-3" {
			t.Errorf("expected snap-3, got %q", snapshot)
		}
	})

	t.Run("empty details update is a no-op", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/playlists/pl1", func(w http.ResponseWriter, r *http.Request) {
			t.Error("no request expected")
		})

		client := newTestClient(t, mux, nil, newRecordingStore())
		if err := client.ChangePlaylistDetails(ctx, authedUser("access"), "pl1", PlaylistDetails{}); err != nil {
			t.Fatalf("ChangePlaylistDetails failed: %v", err)
		}
	})

	t.Run("unfollow deletes the follower relation", func(t *testing.T) {
		var gotMethod, gotPath string
		mux := http.NewServeMux()
		mux.HandleFunc("/playlists/pl1/followers", func(w http.ResponseWriter, r *http.Request) {
			gotMethod, gotPath = r.Method, r.URL.Path
			w.WriteHeader(http.StatusOK)
		})

		client := newTestClient(t, mux, nil, newRecordingStore())
		if err := client.UnfollowPlaylist(ctx, authedUser("access"), "pl1"); err != nil {
			t.Fatalf("UnfollowPlaylist failed: %v", err)
		}
		if gotMethod != http.MethodDelete || gotPath != "/playlists/pl1/followers" {
			t.Errorf("unexpected request %s %s", gotMethod, gotPath)
		}
	})
}

func TestCurrentUser(t *testing.T) {
	ctx := context.Background()

	t.Run("fetches the profile for a bare token", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("Authorization"); got != "Bearer exchange-token" {
				t.Errorf("unexpected auth header %q", got)
			}
			writeJSON(w, UserProfile{ID: "user1", DisplayName: "Alice", Email: "alice@example.com"})
		})

		client := newTestClient(t, mux, nil, newRecordingStore())
		profile, err := client.CurrentUser(ctx, "exchange-token")
		if err != nil {
			t.Fatalf("CurrentUser failed: %v", err)
		}
		if profile.ID != "user1" || profile.Email != "alice@example.com" {
			t.Errorf("unexpected profile %+v", profile)
		}
	})

	t.Run("surfaces API failures", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, "Invalid access token")
		})

		client := newTestClient(t, mux, nil, newRecordingStore())
		_, err := client.CurrentUser(ctx, "bogus")
		if !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("expected API error, got %v", err)
		}
	})
}
