package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SaveCredentials stores the relay tokens, replacing any previous login.
func (db *DB) SaveCredentials(c Credentials) error {
	_, err := db.Exec(`
		INSERT INTO credentials (id, user_id, username, access_token, refresh_token, updated_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			username = excluded.username,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			updated_at = excluded.updated_at`,
		c.UserID, c.Username, c.AccessToken, c.RefreshToken, time.Now().UnixMilli())
	return err
}

// LoadCredentials returns the stored credentials, or nil when logged out.
func (db *DB) LoadCredentials() (*Credentials, error) {
	var c Credentials
	err := db.QueryRow(`SELECT user_id, username, access_token, refresh_token FROM credentials WHERE id = 1`).
		Scan(&c.UserID, &c.Username, &c.AccessToken, &c.RefreshToken)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ClearCredentials forgets the login and every per-user cache.
func (db *DB) ClearCredentials() error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, q := range []string{
		`DELETE FROM credentials`,
		`DELETE FROM hidden_notes_cache`,
		`DELETE FROM checkpoints`,
	} {
		if _, err := tx.Exec(q); err != nil {
			return fmt.Errorf("clear: %w", err)
		}
	}
	return tx.Commit()
}
