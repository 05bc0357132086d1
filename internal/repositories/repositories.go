// package repositories provides the persistence layer for the lykd mirror.
//
// All remote-sourced entities are keyed by Spotify's stable identifiers and
// written with merge (create-or-replace) semantics, so every writer is
// idempotent and safe to replay after a partial failure. Association rows
// (likes, plays, playlist tracks) are maintained exclusively through
// set-difference writers.
package repositories

import (
	"database/sql"
	"fmt"
)

// inTx runs fn inside a transaction, committing on success.
func inTx(db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// placeholders returns a comma-joined list of n SQL placeholders.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	out := "?"
	for i := 1; i < n; i++ {
		out += ", ?"
	}
	return out
}
