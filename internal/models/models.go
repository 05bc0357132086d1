// package models defines the data model for the lykd sync engine.
//
// Catalog entities (Track, Artist, Album) are keyed by Spotify's stable
// identifiers and upserted whenever encountered. Likes, Plays and
// PlaylistTracks are association rows owned entirely by the reconciliation
// engine.
package models

import "time"

// TokenPair holds a user's OAuth access/refresh credentials.
type TokenPair struct {
	Access  string
	Refresh string
	Expiry  time.Time
}

// User represents an account whose likes and plays are mirrored locally.
//
// Tokens is nil once the refresh credential has been revoked; such users are
// skipped by the batch driver until they authorize again.
type User struct {
	ID       string
	Email    string
	Name     string
	Username string
	Picture  string
	Tokens   *TokenPair

	LastLikeScanFull *time.Time
	LastLikeScan     *time.Time
	LastHistorySync  *time.Time

	JoinDate  time.Time
	UpdatedAt *time.Time
}

// Active reports whether the user has a refresh credential on file.
func (u *User) Active() bool {
	return u.Tokens != nil && u.Tokens.Refresh != ""
}

// Artist represents a Spotify artist.
type Artist struct {
	ID      string
	Name    string
	Picture string
	URI     string
}

// Album represents a Spotify album.
//
// ReleaseDate keeps the provider's string form together with its precision
// field (day, month or year); callers must not assume a fixed date layout.
type Album struct {
	ID                   string
	Name                 string
	Picture              string
	ReleaseDate          string
	ReleaseDatePrecision string
	URI                  string
	Artists              []Artist
}

// Track represents a Spotify track with its related catalog entities.
type Track struct {
	ID         string
	Title      string
	DurationMS int
	URI        string
	Album      *Album
	Artists    []Artist
}

// Like associates a user with a liked track.
type Like struct {
	UserID  string
	TrackID string
	LikedAt time.Time
}

// Play is an append-only listening event keyed by (user, track, timestamp).
type Play struct {
	UserID   string
	TrackID  string
	PlayedAt time.Time
}

// Playlist mirrors a remote playlist. SnapshotID is the opaque version token
// returned by Spotify after each mutation; an unchanged snapshot means the
// remote track list has not moved since it was last read.
type Playlist struct {
	ID            string
	UserID        string
	Name          string
	Description   string
	OwnerID       string
	Public        bool
	Collaborative bool
	SnapshotID    string
	URI           string
}

// PlaylistTrack associates a track with a playlist, ordered by AddedAt.
type PlaylistTrack struct {
	PlaylistID string
	TrackID    string
	AddedAt    time.Time
}
