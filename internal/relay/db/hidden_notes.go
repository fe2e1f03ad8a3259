package db

import (
	"context"
	"slices"
	"strings"

	"github.com/jmoiron/sqlx"
)

// HiddenNotes returns userID's hidden note ids, sorted.
func (db *DB) HiddenNotes(ctx context.Context, userID string) ([]string, error) {
	ids := []string{}
	err := db.SelectContext(ctx, &ids, `SELECT note_id FROM hidden_notes WHERE user_id = ? ORDER BY note_id`, userID)
	return ids, err
}

// SetHiddenNotes replaces userID's hidden note set and returns it sorted.
func (db *DB) SetHiddenNotes(ctx context.Context, userID string, noteIDs []string) ([]string, error) {
	set := make([]string, 0, len(noteIDs))
	for _, id := range noteIDs {
		if id = strings.TrimSpace(id); id != "" {
			set = append(set, id)
		}
	}
	slices.Sort(set)
	set = slices.Compact(set)

	err := db.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM hidden_notes WHERE user_id = ?`, userID); err != nil {
			return err
		}
		for _, id := range set {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO hidden_notes (user_id, note_id) VALUES (?, ?)`, userID, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return set, nil
}
