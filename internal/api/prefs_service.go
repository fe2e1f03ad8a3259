package api

import (
	"context"

	"github.com/notehub/nhchat/internal/prefs"
)

// HiddenNotes is the hidden-notes preference manager.
type HiddenNotes interface {
	Get(ctx context.Context) ([]string, error)
	Cached() ([]string, error)
	Hide(ctx context.Context, noteID string) ([]string, error)
	Unhide(ctx context.Context, noteID string) ([]string, error)
	Migrate(ctx context.Context, legacyPath string) (prefs.MigrateResult, error)
}

// PrefsService implements the Prefs gRPC service.
type PrefsService struct {
	notes      HiddenNotes
	sessions   Sessions
	legacyPath string
}

// NewPrefsService creates a new prefs service. legacyPath is the default
// location of the device-local hidden-notes file.
func NewPrefsService(notes HiddenNotes, sessions Sessions, legacyPath string) *PrefsService {
	return &PrefsService{notes: notes, sessions: sessions, legacyPath: legacyPath}
}

func (s *PrefsService) requireLogin() error {
	if s.sessions != nil && !s.sessions.LoggedIn() {
		return toStatus("prefs", ErrLoggedOut)
	}
	return nil
}

// HiddenNotes returns the relay set, or the local cache when req.Cached is set.
func (s *PrefsService) HiddenNotes(ctx context.Context, req *HiddenNotesRequest) (*HiddenNotesResponse, error) {
	if req.Cached {
		ids, err := s.notes.Cached()
		if err != nil {
			return nil, toStatus("cached hidden notes", err)
		}
		return &HiddenNotesResponse{NoteIDs: nonNil(ids), Cached: true}, nil
	}
	if err := s.requireLogin(); err != nil {
		return nil, err
	}
	ids, err := s.notes.Get(ctx)
	if err != nil {
		return nil, toStatus("hidden notes", err)
	}
	return &HiddenNotesResponse{NoteIDs: nonNil(ids)}, nil
}

func (s *PrefsService) HideNote(ctx context.Context, req *NoteRequest) (*HiddenNotesResponse, error) {
	return s.update(ctx, "hide note", req.NoteID, s.notes.Hide)
}

func (s *PrefsService) UnhideNote(ctx context.Context, req *NoteRequest) (*HiddenNotesResponse, error) {
	return s.update(ctx, "unhide note", req.NoteID, s.notes.Unhide)
}

func (s *PrefsService) update(ctx context.Context, op, noteID string, fn func(context.Context, string) ([]string, error)) (*HiddenNotesResponse, error) {
	if err := s.requireLogin(); err != nil {
		return nil, err
	}
	ids, err := fn(ctx, noteID)
	if err != nil {
		return nil, toStatus(op, err)
	}
	return &HiddenNotesResponse{NoteIDs: nonNil(ids)}, nil
}

func (s *PrefsService) MigrateHiddenNotes(ctx context.Context, req *MigrateRequest) (*MigrateResponse, error) {
	if err := s.requireLogin(); err != nil {
		return nil, err
	}
	path := req.LegacyPath
	if path == "" {
		path = s.legacyPath
	}
	res, err := s.notes.Migrate(ctx, path)
	if err != nil {
		return nil, toStatus("migrate hidden notes", err)
	}
	return &MigrateResponse{Imported: res.Imported, NoteIDs: nonNil(res.Notes), Skipped: res.Skipped}, nil
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
