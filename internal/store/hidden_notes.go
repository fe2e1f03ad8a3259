package store

import (
	"fmt"
	"time"
)

// ReplaceHiddenNotes overwrites the cached hidden-note set with ids.
func (db *DB) ReplaceHiddenNotes(ids []string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM hidden_notes_cache`); err != nil {
		return fmt.Errorf("clear hidden notes: %w", err)
	}
	now := time.Now().UnixMilli()
	for _, id := range ids {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO hidden_notes_cache (note_id, cached_at) VALUES (?, ?)`, id, now); err != nil {
			return fmt.Errorf("insert hidden note %q: %w", id, err)
		}
	}
	return tx.Commit()
}

// CachedHiddenNotes returns the last hidden-note set fetched from the relay.
func (db *DB) CachedHiddenNotes() ([]string, error) {
	rows, err := db.Query(`SELECT note_id FROM hidden_notes_cache ORDER BY note_id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
