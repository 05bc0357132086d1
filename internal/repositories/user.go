package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/lykd/internal/models"
	"github.com/desertthunder/lykd/internal/shared"
)

// UserRepository persists user accounts, their OAuth token pairs and the
// per-user scan timestamps the reconciliation engine depends on.
//
// It implements spotify.TokenStore so the client can persist token refreshes
// and revocations mid-call.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new UserRepository with the given database connection
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `
	id, email, name, username, picture,
	access_token, refresh_token, token_expiry,
	last_like_scan_full, last_like_scan, last_history_sync,
	join_date, updated_at
`

// Upsert inserts or replaces a user row keyed by the Spotify user id.
func (r *UserRepository) Upsert(user *models.User) error {
	if user.ID == "" || user.Email == "" {
		return fmt.Errorf("%w: user id and email are required", shared.ErrInvalidInput)
	}
	if user.JoinDate.IsZero() {
		user.JoinDate = time.Now().UTC()
	}

	var access, refresh sql.NullString
	var expiry sql.NullTime
	if user.Tokens != nil {
		access = sql.NullString{String: user.Tokens.Access, Valid: true}
		refresh = sql.NullString{String: user.Tokens.Refresh, Valid: true}
		expiry = sql.NullTime{Time: user.Tokens.Expiry, Valid: !user.Tokens.Expiry.IsZero()}
	}

	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = excluded.email,
			name = excluded.name,
			username = excluded.username,
			picture = excluded.picture,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			token_expiry = excluded.token_expiry,
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC()
	_, err := r.db.Exec(query,
		user.ID, user.Email, user.Name, user.Username, user.Picture,
		access, refresh, expiry,
		nullableTime(user.LastLikeScanFull), nullableTime(user.LastLikeScan), nullableTime(user.LastHistorySync),
		user.JoinDate, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}

	return nil
}

// Get retrieves a user by id.
func (r *UserRepository) Get(id string) (*models.User, error) {
	row := r.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// GetByEmail retrieves a user by email.
func (r *UserRepository) GetByEmail(email string) (*models.User, error) {
	row := r.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	return scanUser(row)
}

// ListActive returns every user with a stored refresh credential, oldest
// join first.
func (r *UserRepository) ListActive() ([]*models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE refresh_token IS NOT NULL AND refresh_token != ''
		ORDER BY join_date ASC
	`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUserRow(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return users, nil
}

// SaveTokens persists a refreshed token pair.
func (r *UserRepository) SaveTokens(userID string, tokens *models.TokenPair) error {
	query := `
		UPDATE users
		SET access_token = ?, refresh_token = ?, token_expiry = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.Exec(query, tokens.Access, tokens.Refresh, tokens.Expiry, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to save tokens: %w", err)
	}
	return requireRow(result, userID)
}

// ClearTokens removes the user's stored credentials, marking them inactive.
func (r *UserRepository) ClearTokens(userID string) error {
	query := `
		UPDATE users
		SET access_token = NULL, refresh_token = NULL, token_expiry = NULL, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.Exec(query, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to clear tokens: %w", err)
	}
	return requireRow(result, userID)
}

// SetLastLikeScan records when a like scan finished. A full scan also counts
// as a quick scan for cool-down purposes.
func (r *UserRepository) SetLastLikeScan(userID string, at time.Time, full bool) error {
	query := `UPDATE users SET last_like_scan = ?, updated_at = ? WHERE id = ?`
	args := []any{at, time.Now().UTC(), userID}
	if full {
		query = `UPDATE users SET last_like_scan_full = ?, last_like_scan = ?, updated_at = ? WHERE id = ?`
		args = []any{at, at, time.Now().UTC(), userID}
	}

	result, err := r.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to set scan time: %w", err)
	}
	return requireRow(result, userID)
}

// SetLastHistorySync records when play ingestion last completed.
func (r *UserRepository) SetLastHistorySync(userID string, at time.Time) error {
	result, err := r.db.Exec(`UPDATE users SET last_history_sync = ?, updated_at = ? WHERE id = ?`, at, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to set history sync time: %w", err)
	}
	return requireRow(result, userID)
}

func requireRow(result sql.Result, userID string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrUserNotFound, userID)
	}
	return nil
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUserFields(s rowScanner) (*models.User, error) {
	var (
		user            models.User
		name, username  sql.NullString
		picture         sql.NullString
		access, refresh sql.NullString
		expiry          sql.NullTime
		scanFull        sql.NullTime
		scanQuick       sql.NullTime
		historySync     sql.NullTime
		updatedAt       sql.NullTime
	)

	err := s.Scan(
		&user.ID, &user.Email, &name, &username, &picture,
		&access, &refresh, &expiry,
		&scanFull, &scanQuick, &historySync,
		&user.JoinDate, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	user.Name = name.String
	user.Username = username.String
	user.Picture = picture.String

	if refresh.Valid && refresh.String != "" {
		user.Tokens = &models.TokenPair{
			Access:  access.String,
			Refresh: refresh.String,
			Expiry:  expiry.Time,
		}
	}
	if scanFull.Valid {
		user.LastLikeScanFull = &scanFull.Time
	}
	if scanQuick.Valid {
		user.LastLikeScan = &scanQuick.Time
	}
	if historySync.Valid {
		user.LastHistorySync = &historySync.Time
	}
	if updatedAt.Valid {
		user.UpdatedAt = &updatedAt.Time
	}

	return &user, nil
}

func scanUser(row *sql.Row) (*models.User, error) {
	user, err := scanUserFields(row)
	if err == sql.ErrNoRows {
		return nil, shared.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return user, nil
}

func scanUserRow(rows *sql.Rows) (*models.User, error) {
	user, err := scanUserFields(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return user, nil
}
