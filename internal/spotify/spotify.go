// package spotify wraps the Spotify Web API for the lykd sync engine.
//
// Every operation takes the acting user for auth, runs under an explicit
// retry [Policy] and fails with a typed [*APIError]. Expired access tokens
// are refreshed transparently; revoked refresh credentials clear the user's
// stored tokens and surface as a terminal failure.
package spotify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/lykd/internal/models"
	"github.com/desertthunder/lykd/internal/shared"
)

const (
	apiBaseURL      = "https://api.spotify.com/v1"
	accountsBaseURL = "https://accounts.spotify.com"

	defaultPageLimit = 50
	pageCacheTTL     = 5 * time.Minute

	// TracksBatchMax is the provider's cap on ids per track-batch call.
	TracksBatchMax = 50
)

// TokenStore persists token mutations performed by the client mid-call, so
// concurrent operations on the same user observe a consistent token pair.
type TokenStore interface {
	SaveTokens(userID string, tokens *models.TokenPair) error
	ClearTokens(userID string) error
}

// Client wraps the Spotify Web API with typed operations, pagination, retry
// and token refresh.
type Client struct {
	clientID     string
	clientSecret string
	httpClient   *http.Client
	cache        Cache
	store        TokenStore
	policy       Policy
	logger       *log.Logger
	pageLimit    int

	// overridable in tests
	apiURL      string
	accountsURL string
}

// ClientOpts contains configuration options for creating a Client.
type ClientOpts struct {
	Config    shared.SpotifyConfig
	Store     TokenStore
	Cache     Cache
	Logger    *log.Logger
	Timeout   time.Duration
	Attempts  int
	PageLimit int
}

// NewClient creates a Client from the given options.
func NewClient(opts ClientOpts) *Client {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Cache == nil {
		opts.Cache = NoopCache{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 2
	}
	if opts.PageLimit <= 0 {
		opts.PageLimit = defaultPageLimit
	}

	return &Client{
		clientID:     opts.Config.ClientID,
		clientSecret: opts.Config.ClientSecret,
		httpClient:   &http.Client{Timeout: opts.Timeout},
		cache:        opts.Cache,
		store:        opts.Store,
		policy: Policy{
			Attempts: opts.Attempts,
			Wait:     WaitRetryAfterOrJitter(500 * time.Millisecond),
		},
		logger:      opts.Logger,
		pageLimit:   opts.PageLimit,
		apiURL:      apiBaseURL,
		accountsURL: accountsBaseURL,
	}
}

// SetBaseURLs points the client at alternate API endpoints. Intended for
// tests against httptest servers.
func (c *Client) SetBaseURLs(api, accounts string) {
	c.apiURL = api
	c.accountsURL = accounts
}

// CloseIdleConnections releases the client's pooled connections.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

// request performs a single authenticated HTTP exchange. Non-2xx responses
// become a *APIError carrying the status, body and Retry-After hint.
func (c *Client) request(ctx context.Context, user *models.User, method, rawURL string, query url.Values, body any, out any) error {
	if len(query) > 0 {
		sep := "?"
		if strings.Contains(rawURL, "?") {
			sep = "&"
		}
		rawURL += sep + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if user != nil {
		if user.Tokens == nil {
			return fmt.Errorf("%w: %s", shared.ErrUserInactive, user.ID)
		}
		req.Header.Set("Authorization", "Bearer "+user.Tokens.Access)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiErrorFromResponse(resp.StatusCode, respBody, resp.Header.Get("Retry-After"))
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// do applies the retry policy with the client's auth-recovery hook bound to
// user.
func (c *Client) do(ctx context.Context, user *models.User, call func(context.Context) error) error {
	return c.policy.Do(ctx, call, func(ctx context.Context, err error) error {
		return c.recoverAuth(ctx, user, err)
	})
}

// recoverAuth classifies a failed attempt. Expired access tokens are
// refreshed and persisted before the retry; revoked refresh credentials mark
// the user inactive and stop the loop; 4xx other than 429 are terminal.
func (c *Client) recoverAuth(ctx context.Context, user *models.User, err error) error {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		// network-level failure, worth another attempt
		return nil
	}

	switch {
	case errors.Is(err, shared.ErrTokenExpired) && user != nil:
		tokens, refreshErr := c.RefreshToken(ctx, user)
		if refreshErr != nil {
			if errors.Is(refreshErr, shared.ErrTokenRevoked) {
				return c.markInactive(user, refreshErr)
			}
			return fmt.Errorf("%w: %v", shared.ErrRefreshFailed, refreshErr)
		}
		user.Tokens = tokens
		if c.store != nil {
			if saveErr := c.store.SaveTokens(user.ID, tokens); saveErr != nil {
				return fmt.Errorf("failed to persist refreshed tokens: %w", saveErr)
			}
		}
		c.logger.Debug("refreshed access token", "user", user.ID)
		return nil
	case errors.Is(err, shared.ErrTokenRevoked) && user != nil:
		return c.markInactive(user, err)
	case apiErr.Retryable():
		return nil
	default:
		return err
	}
}

// markInactive clears the user's stored tokens after the provider reported
// the refresh credential as permanently revoked.
func (c *Client) markInactive(user *models.User, cause error) error {
	user.Tokens = nil
	if c.store != nil {
		if err := c.store.ClearTokens(user.ID); err != nil {
			c.logger.Error("failed to clear revoked tokens", "user", user.ID, "error", err)
		}
	}
	c.logger.Warn("refresh token revoked, marking user inactive", "user", user.ID)
	return cause
}

// getPage fetches a JSON document via GET under the retry policy, optionally
// consulting the response cache. Cached reads are advisory: callers doing a
// full reconciliation pass set useCache to false.
func (c *Client) getPage(ctx context.Context, user *models.User, rawURL string, query url.Values, useCache bool, out any) error {
	cacheKey := ""
	if useCache {
		cacheKey = rawURL + "?" + query.Encode()
		if user != nil {
			cacheKey = user.ID + ":" + cacheKey
		}
		if cached, ok := c.cache.Get(cacheKey); ok {
			return json.Unmarshal(cached, out)
		}
	}

	err := c.do(ctx, user, func(ctx context.Context) error {
		return c.request(ctx, user, http.MethodGet, rawURL, query, nil, out)
	})
	if err != nil {
		return err
	}

	if useCache {
		if encoded, marshalErr := json.Marshal(out); marshalErr == nil {
			c.cache.Set(cacheKey, encoded, pageCacheTTL)
		}
	}
	return nil
}

// firstPageQuery returns the query for a first page request; follow-up pages
// carry their parameters inside the cursor URL.
func (c *Client) firstPageQuery(cursor string) url.Values {
	if cursor != "" {
		return nil
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(c.pageLimit))
	return q
}

// LikedPage returns one page of the user's liked tracks, most recent first.
// Items without a track id (podcast episodes, removed tracks) are skipped.
func (c *Client) LikedPage(ctx context.Context, user *models.User, cursor string) ([]SavedTrack, string, error) {
	endpoint := cursor
	if endpoint == "" {
		endpoint = c.apiURL + "/me/tracks"
	}

	var resp page[SavedTrack]
	if err := c.getPage(ctx, user, endpoint, c.firstPageQuery(cursor), false, &resp); err != nil {
		return nil, "", err
	}

	items := make([]SavedTrack, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Track.ID == "" {
			c.logger.Warn("skipping liked item without track id", "user", user.ID)
			continue
		}
		items = append(items, item)
	}

	return items, deref(resp.Next), nil
}

// RecentlyPlayedPage returns one page of the user's listening history,
// most recent first.
func (c *Client) RecentlyPlayedPage(ctx context.Context, user *models.User, cursor string) ([]PlayedTrack, string, error) {
	endpoint := cursor
	if endpoint == "" {
		endpoint = c.apiURL + "/me/player/recently-played"
	}

	var resp page[PlayedTrack]
	if err := c.getPage(ctx, user, endpoint, c.firstPageQuery(cursor), false, &resp); err != nil {
		return nil, "", err
	}

	items := make([]PlayedTrack, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Track.ID == "" {
			c.logger.Warn("skipping play without track id", "user", user.ID)
			continue
		}
		items = append(items, item)
	}

	return items, deref(resp.Next), nil
}

// PlaylistsPage returns one page of the user's playlists.
func (c *Client) PlaylistsPage(ctx context.Context, user *models.User, cursor string) ([]Playlist, string, error) {
	endpoint := cursor
	if endpoint == "" {
		endpoint = c.apiURL + "/me/playlists"
	}

	var resp page[Playlist]
	if err := c.getPage(ctx, user, endpoint, c.firstPageQuery(cursor), false, &resp); err != nil {
		return nil, "", err
	}

	return resp.Items, deref(resp.Next), nil
}

// PlaylistTracksPage returns one page of a playlist's ordered track list.
func (c *Client) PlaylistTracksPage(ctx context.Context, user *models.User, playlistID, cursor string) ([]PlaylistEntry, string, error) {
	endpoint := cursor
	if endpoint == "" {
		endpoint = fmt.Sprintf("%s/playlists/%s/tracks", c.apiURL, playlistID)
	}

	var resp page[PlaylistEntry]
	if err := c.getPage(ctx, user, endpoint, c.firstPageQuery(cursor), false, &resp); err != nil {
		return nil, "", err
	}

	items := make([]PlaylistEntry, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Track.ID == "" {
			continue
		}
		items = append(items, item)
	}

	return items, deref(resp.Next), nil
}

// TracksBatch fetches catalog metadata for up to [TracksBatchMax] track ids.
// Reads are cached; the catalog is immutable enough for a short TTL.
func (c *Client) TracksBatch(ctx context.Context, user *models.User, ids []string) ([]Track, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > TracksBatchMax {
		return nil, fmt.Errorf("%w: at most %d track ids per batch", shared.ErrInvalidArgument, TracksBatchMax)
	}

	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))

	var resp struct {
		Tracks []Track `json:"tracks"`
	}
	if err := c.getPage(ctx, user, c.apiURL+"/tracks", q, true, &resp); err != nil {
		return nil, err
	}

	tracks := make([]Track, 0, len(resp.Tracks))
	for _, track := range resp.Tracks {
		if track.ID == "" {
			continue
		}
		tracks = append(tracks, track)
	}

	return tracks, nil
}

// CreatePlaylist creates a playlist owned by the user.
func (c *Client) CreatePlaylist(ctx context.Context, user *models.User, name, description string, public bool) (*Playlist, error) {
	payload := map[string]any{
		"name":        name,
		"description": description,
		"public":      public,
	}

	var created Playlist
	err := c.do(ctx, user, func(ctx context.Context) error {
		endpoint := fmt.Sprintf("%s/users/%s/playlists", c.apiURL, user.ID)
		return c.request(ctx, user, http.MethodPost, endpoint, nil, payload, &created)
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("created playlist", "user", user.ID, "playlist", created.ID, "name", name)
	return &created, nil
}

// ChangePlaylistDetails updates playlist metadata. Nil fields are left
// untouched; a details value with no changes is a no-op.
func (c *Client) ChangePlaylistDetails(ctx context.Context, user *models.User, playlistID string, details PlaylistDetails) error {
	if details.Name == nil && details.Description == nil && details.Public == nil && details.Collaborative == nil {
		return nil
	}

	return c.do(ctx, user, func(ctx context.Context) error {
		endpoint := fmt.Sprintf("%s/playlists/%s", c.apiURL, playlistID)
		return c.request(ctx, user, http.MethodPut, endpoint, nil, details, nil)
	})
}

// UnfollowPlaylist removes the playlist from the user's library. Spotify has
// no hard delete; unfollowing an owned playlist is its deletion.
func (c *Client) UnfollowPlaylist(ctx context.Context, user *models.User, playlistID string) error {
	return c.do(ctx, user, func(ctx context.Context) error {
		endpoint := fmt.Sprintf("%s/playlists/%s/followers", c.apiURL, playlistID)
		return c.request(ctx, user, http.MethodDelete, endpoint, nil, nil, nil)
	})
}

// AddPlaylistTracks inserts the given tracks at position, returning the new
// snapshot id.
func (c *Client) AddPlaylistTracks(ctx context.Context, user *models.User, playlistID string, trackIDs []string, position int) (string, error) {
	uris := make([]string, len(trackIDs))
	for i, id := range trackIDs {
		uris[i] = TrackURI(id)
	}
	payload := map[string]any{"uris": uris, "position": position}

	var resp snapshotResponse
	err := c.do(ctx, user, func(ctx context.Context) error {
		endpoint := fmt.Sprintf("%s/playlists/%s/tracks", c.apiURL, playlistID)
		return c.request(ctx, user, http.MethodPost, endpoint, nil, payload, &resp)
	})
	if err != nil {
		return "", err
	}

	return resp.SnapshotID, nil
}

// RemovePlaylistTracks removes every occurrence of the given tracks by URI,
// returning the new snapshot id.
func (c *Client) RemovePlaylistTracks(ctx context.Context, user *models.User, playlistID string, trackIDs []string) (string, error) {
	tracks := make([]map[string]string, len(trackIDs))
	for i, id := range trackIDs {
		tracks[i] = map[string]string{"uri": TrackURI(id)}
	}
	payload := map[string]any{"tracks": tracks}

	var resp snapshotResponse
	err := c.do(ctx, user, func(ctx context.Context) error {
		endpoint := fmt.Sprintf("%s/playlists/%s/tracks", c.apiURL, playlistID)
		return c.request(ctx, user, http.MethodDelete, endpoint, nil, payload, &resp)
	})
	if err != nil {
		return "", err
	}

	return resp.SnapshotID, nil
}

// RemovePlaylistTracksAtPositions removes specific occurrences by explicit
// position, pinned to snapshotID so positions cannot shift underneath the
// request.
func (c *Client) RemovePlaylistTracksAtPositions(ctx context.Context, user *models.User, playlistID string, removals []PositionedRemoval, snapshotID string) (string, error) {
	payload := map[string]any{"tracks": removals}
	if snapshotID != "" {
		payload["snapshot_id"] = snapshotID
	}

	var resp snapshotResponse
	err := c.do(ctx, user, func(ctx context.Context) error {
		endpoint := fmt.Sprintf("%s/playlists/%s/tracks", c.apiURL, playlistID)
		return c.request(ctx, user, http.MethodDelete, endpoint, nil, payload, &resp)
	})
	if err != nil {
		return "", err
	}

	return resp.SnapshotID, nil
}

// CurrentUser retrieves the profile for a bare access token. Used right after
// code exchange, before a user row exists.
func (c *Client) CurrentUser(ctx context.Context, accessToken string) (*UserProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/me", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apiErrorFromResponse(resp.StatusCode, body, resp.Header.Get("Retry-After"))
	}

	var profile UserProfile
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}

	return &profile, nil
}

// RefreshToken exchanges the stored refresh credential for a new token pair
// via the provider's token endpoint. A 400 "Refresh token revoked" response
// surfaces as shared.ErrTokenRevoked and is never retried.
func (c *Client) RefreshToken(ctx context.Context, user *models.User) (*models.TokenPair, error) {
	if user.Tokens == nil || user.Tokens.Refresh == "" {
		return nil, shared.ErrNoRefreshToken
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", user.Tokens.Refresh)
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.accountsURL+"/api/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apiErrorFromResponse(resp.StatusCode, body, resp.Header.Get("Retry-After"))
	}

	var token tokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}

	pair := &models.TokenPair{
		Access:  token.AccessToken,
		Refresh: token.RefreshToken,
		Expiry:  time.Now().Add(time.Duration(token.ExpiresIn) * time.Second),
	}
	// the provider may omit the refresh token when it is unchanged
	if pair.Refresh == "" {
		pair.Refresh = user.Tokens.Refresh
	}

	return pair, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
