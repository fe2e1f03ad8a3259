// Package prefs manages the hidden-notes preference. The relay holds the
// authoritative set; the local copy is a cache that is only read on request.
package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"

	"github.com/notehub/nhchat/internal/store"
	"go.uber.org/zap"
)

// Remote reads and writes the server-side hidden-note set.
type Remote interface {
	HiddenNotes(ctx context.Context) ([]string, error)
	SetHiddenNotes(ctx context.Context, ids []string) ([]string, error)
}

// MigratedSuffix is appended to a legacy file once its contents reached the relay.
const MigratedSuffix = ".migrated"

// HiddenNotes coordinates the relay set and the local cache.
type HiddenNotes struct {
	remote Remote
	db     *store.DB
	logger *zap.Logger
}

// New creates a hidden-notes manager.
func New(remote Remote, db *store.DB, logger *zap.Logger) *HiddenNotes {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HiddenNotes{remote: remote, db: db, logger: logger}
}

// Get fetches the set from the relay and refreshes the cache. A relay error
// is returned as is; the cache is never substituted.
func (h *HiddenNotes) Get(ctx context.Context) ([]string, error) {
	ids, err := h.remote.HiddenNotes(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch hidden notes: %w", err)
	}
	ids = normalize(ids)
	h.cache(ids)
	return ids, nil
}

// Cached returns the last set seen from the relay.
func (h *HiddenNotes) Cached() ([]string, error) {
	return h.db.CachedHiddenNotes()
}

// Hide adds noteID to the relay set.
func (h *HiddenNotes) Hide(ctx context.Context, noteID string) ([]string, error) {
	return h.update(ctx, noteID, true)
}

// Unhide removes noteID from the relay set.
func (h *HiddenNotes) Unhide(ctx context.Context, noteID string) ([]string, error) {
	return h.update(ctx, noteID, false)
}

func (h *HiddenNotes) update(ctx context.Context, noteID string, hide bool) ([]string, error) {
	noteID = strings.TrimSpace(noteID)
	if noteID == "" {
		return nil, errors.New("note id is required")
	}
	current, err := h.Get(ctx)
	if err != nil {
		return nil, err
	}
	next := slices.DeleteFunc(slices.Clone(current), func(id string) bool { return id == noteID })
	if hide {
		next = append(next, noteID)
	}
	return h.write(ctx, next)
}

func (h *HiddenNotes) write(ctx context.Context, ids []string) ([]string, error) {
	saved, err := h.remote.SetHiddenNotes(ctx, normalize(ids))
	if err != nil {
		return nil, fmt.Errorf("save hidden notes: %w", err)
	}
	saved = normalize(saved)
	h.cache(saved)
	return saved, nil
}

func (h *HiddenNotes) cache(ids []string) {
	if err := h.db.ReplaceHiddenNotes(ids); err != nil {
		h.logger.Warn("failed to cache hidden notes", zap.Error(err))
	}
}

// MigrateResult reports what Migrate did.
type MigrateResult struct {
	Imported int      // ids from the legacy file not already on the relay
	Notes    []string // the relay set after migration
	Skipped  bool     // already migrated or no legacy file
}

// Migrate merges a legacy device-local JSON array of note ids into the relay
// set, then renames the file so it is never read again.
func (h *HiddenNotes) Migrate(ctx context.Context, legacyPath string) (MigrateResult, error) {
	if _, done, err := h.db.GetCheckpoint(store.CheckpointNotesMigrated); err != nil {
		return MigrateResult{}, err
	} else if done {
		return MigrateResult{Skipped: true}, nil
	}

	raw, err := os.ReadFile(legacyPath)
	if errors.Is(err, fs.ErrNotExist) {
		return MigrateResult{Skipped: true}, nil
	}
	if err != nil {
		return MigrateResult{}, fmt.Errorf("read legacy hidden notes: %w", err)
	}
	var legacy []string
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return MigrateResult{}, fmt.Errorf("parse legacy hidden notes %s: %w", legacyPath, err)
	}

	current, err := h.Get(ctx)
	if err != nil {
		return MigrateResult{}, err
	}
	merged := normalize(append(slices.Clone(current), legacy...))
	saved, err := h.write(ctx, merged)
	if err != nil {
		return MigrateResult{}, err
	}

	if err := os.Rename(legacyPath, legacyPath+MigratedSuffix); err != nil {
		return MigrateResult{}, fmt.Errorf("retire legacy hidden notes: %w", err)
	}
	if err := h.db.SetCheckpoint(store.CheckpointNotesMigrated, legacyPath); err != nil {
		h.logger.Warn("failed to record hidden notes migration", zap.Error(err))
	}
	res := MigrateResult{Imported: len(merged) - len(current), Notes: saved}
	h.logger.Info("migrated legacy hidden notes", zap.Int("imported", res.Imported), zap.Int("total", len(saved)))
	return res, nil
}

// normalize trims, drops blanks and duplicates, and sorts.
func normalize(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
