// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package spotify

import (
	"github.com/desertthunder/lykd/internal/models"
)

// Image represents an image resource.
type Image struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// Owner identifies the owning user of a playlist.
type Owner struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type followers struct {
	Total int `json:"total"`
}

// UserProfile represents the authenticated Spotify user.
type UserProfile struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email"`
	Country     string    `json:"country"`
	Product     string    `json:"product"` // premium, free, etc.
	Followers   followers `json:"followers"`
	Images      []Image   `json:"images"`
}

// Artist represents a Spotify artist.
type Artist struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Images []Image `json:"images"`
	URI    string  `json:"uri"`
}

// Album represents a Spotify album.
type Album struct {
	ID                   string   `json:"id"`
	Name                 string   `json:"name"`
	Artists              []Artist `json:"artists"`
	ReleaseDate          string   `json:"release_date"`
	ReleaseDatePrecision string   `json:"release_date_precision"`
	Images               []Image  `json:"images"`
	URI                  string   `json:"uri"`
}

// Track represents a Spotify track.
type Track struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Artists    []Artist `json:"artists"`
	Album      Album    `json:"album"`
	DurationMS int      `json:"duration_ms"`
	URI        string   `json:"uri"`
}

// SavedTrack represents a track in the user's library with its like timestamp.
type SavedTrack struct {
	AddedAt string `json:"added_at"`
	Track   Track  `json:"track"`
}

// PlayedTrack represents an entry of the recently-played feed.
type PlayedTrack struct {
	PlayedAt string `json:"played_at"`
	Track    Track  `json:"track"`
}

// PlaylistEntry represents a track within a playlist context.
type PlaylistEntry struct {
	AddedAt string `json:"added_at"`
	Track   Track  `json:"track"`
}

type playlistTracksRef struct {
	Total int `json:"total"`
}

// Playlist represents a playlist object as returned by list and create calls.
type Playlist struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Description   string            `json:"description"`
	Owner         Owner             `json:"owner"`
	Public        bool              `json:"public"`
	Collaborative bool              `json:"collaborative"`
	SnapshotID    string            `json:"snapshot_id"`
	Tracks        playlistTracksRef `json:"tracks"`
	Images        []Image           `json:"images"`
	URI           string            `json:"uri"`
}

// PlaylistDetails carries the mutable metadata of a playlist; nil fields are
// left untouched by ChangePlaylistDetails.
type PlaylistDetails struct {
	Name          *string `json:"name,omitempty"`
	Description   *string `json:"description,omitempty"`
	Public        *bool   `json:"public,omitempty"`
	Collaborative *bool   `json:"collaborative,omitempty"`
}

// PositionedRemoval identifies playlist occurrences of a track by explicit
// positions, disambiguating duplicates of the same URI.
type PositionedRemoval struct {
	URI       string `json:"uri"`
	Positions []int  `json:"positions"`
}

// page is the generic paging envelope shared by library, playlist and
// history endpoints. Next is the absolute URL of the following page.
type page[T any] struct {
	Items []T     `json:"items"`
	Total int     `json:"total"`
	Next  *string `json:"next"`
}

type snapshotResponse struct {
	SnapshotID string `json:"snapshot_id"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
	ExpiresIn    int    `json:"expires_in"`
}

// TrackURI builds the provider URI for a track id.
func TrackURI(id string) string {
	return "spotify:track:" + id
}

// Model converts a wire track into its catalog model, including album and
// artist relations.
func (t Track) Model() models.Track {
	track := models.Track{
		ID:         t.ID,
		Title:      t.Name,
		DurationMS: t.DurationMS,
		URI:        t.URI,
	}

	for _, a := range t.Artists {
		track.Artists = append(track.Artists, a.Model())
	}

	if t.Album.ID != "" {
		album := t.Album.Model()
		track.Album = &album
	}

	return track
}

// Model converts a wire artist into its catalog model.
func (a Artist) Model() models.Artist {
	artist := models.Artist{ID: a.ID, Name: a.Name, URI: a.URI}
	if len(a.Images) > 0 {
		artist.Picture = a.Images[0].URL
	}
	return artist
}

// Model converts a wire album into its catalog model.
func (a Album) Model() models.Album {
	album := models.Album{
		ID:                   a.ID,
		Name:                 a.Name,
		ReleaseDate:          a.ReleaseDate,
		ReleaseDatePrecision: a.ReleaseDatePrecision,
		URI:                  a.URI,
	}
	if len(a.Images) > 0 {
		album.Picture = a.Images[0].URL
	}
	for _, artist := range a.Artists {
		album.Artists = append(album.Artists, artist.Model())
	}
	return album
}

// Model converts a wire playlist into its local mirror row for the given user.
func (p Playlist) Model(userID string) models.Playlist {
	return models.Playlist{
		ID:            p.ID,
		UserID:        userID,
		Name:          p.Name,
		Description:   p.Description,
		OwnerID:       p.Owner.ID,
		Public:        p.Public,
		Collaborative: p.Collaborative,
		SnapshotID:    p.SnapshotID,
		URI:           p.URI,
	}
}
