package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/desertthunder/lykd/internal/models"
	"github.com/desertthunder/lykd/internal/server"
	"github.com/desertthunder/lykd/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

// scopes covers library reads, playlist writes and the recently-played feed.
var scopes = []string{
	"user-library-read",
	"user-read-recently-played",
	"user-read-email",
	"user-read-private",
	"playlist-read-private",
	"playlist-modify-private",
	"playlist-modify-public",
}

const authTimeout = 5 * time.Minute

// AuthLogin runs the OAuth2 authorization code flow against Spotify.
//
// Starts a temporary callback server, opens the authorization page in the
// browser and stores the linked account with its tokens.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	creds := r.config.Credentials.Spotify
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return fmt.Errorf("%w: set credentials.spotify in config.toml or SPOTIFY_CLIENT_ID/SPOTIFY_CLIENT_SECRET", shared.ErrMissingCredentials)
	}

	redirectURI := creds.RedirectURI
	if redirectURI == "" {
		redirectURI = fmt.Sprintf("http://%s:%d/callback", r.config.Server.Host, r.config.Server.Port)
	}

	oauthConfig := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://accounts.spotify.com/authorize",
			TokenURL: "https://accounts.spotify.com/api/token",
		},
	}

	state := shared.GenerateID()
	handler := server.NewOAuthHandler(oauthConfig, state)

	router := server.NewBasicRouter()
	router.Use(server.RequestLogger(r.logger))
	router.Handler(handler)

	addr := fmt.Sprintf("%s:%d", r.config.Server.Host, r.config.Server.Port)
	srv := &http.Server{Addr: addr, Handler: router}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			handler.Send(server.OAuthResult{})
			r.logger.Error("callback server failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	authURL := oauthConfig.AuthCodeURL(state)
	r.logger.Info("opening browser for authorization", "url", authURL)
	if err := shared.OpenBrowser(authURL); err != nil {
		r.writePlain("Open this URL in your browser:\n%s\n", authURL)
	}

	var result server.OAuthResult
	select {
	case result = <-handler.Result():
	case <-time.After(authTimeout):
		return fmt.Errorf("%w: timed out waiting for authorization", shared.ErrAuthFailed)
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := result.Error(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
	}
	if result.Token == nil {
		return fmt.Errorf("%w: no token received", shared.ErrAuthFailed)
	}

	d, cleanup, err := r.bootstrap()
	if err != nil {
		return err
	}
	defer cleanup()

	profile, err := d.client.CurrentUser(ctx, result.Token.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to fetch profile: %w", err)
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:       profile.ID,
		Email:    profile.Email,
		Name:     profile.DisplayName,
		Username: profile.ID,
		Tokens: &models.TokenPair{
			Access:  result.Token.AccessToken,
			Refresh: result.Token.RefreshToken,
			Expiry:  result.Token.Expiry,
		},
		JoinDate:  now,
		UpdatedAt: &now,
	}
	if len(profile.Images) > 0 {
		user.Picture = profile.Images[0].URL
	}

	if err := d.repos.Users.Upsert(user); err != nil {
		return fmt.Errorf("failed to store user: %w", err)
	}

	r.logger.Info("account linked", "user", user.ID, "email", user.Email)
	return r.writePlain("✓ Linked %s (%s)\n", user.Name, user.ID)
}

// AuthStatus lists stored accounts with their token and scan state.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	d, cleanup, err := r.bootstrap()
	if err != nil {
		return err
	}
	defer cleanup()

	active, err := d.repos.Users.ListActive()
	if err != nil {
		return err
	}

	if len(active) == 0 {
		return r.writePlain("No linked accounts. Run 'lykd auth login' first.\n")
	}

	for _, user := range active {
		r.writePlain("%s (%s)\n", user.Name, user.ID)
		r.writePlain("  token expires: %s\n", user.Tokens.Expiry.Format(time.RFC3339))
		if user.LastLikeScanFull != nil {
			r.writePlain("  last full scan: %s\n", user.LastLikeScanFull.Format(time.RFC3339))
		}
		if user.LastHistorySync != nil {
			r.writePlain("  last history sync: %s\n", user.LastHistorySync.Format(time.RFC3339))
		}
	}

	return nil
}
