package api

import (
	"time"

	"github.com/notehub/nhchat/internal/chat"
)

// Empty is used for requests and responses without fields.
type Empty struct{}

// Session service.

type StatusResponse struct {
	Profile       string       `json:"profile"`
	State         string       `json:"state"`
	Since         time.Time    `json:"since"`
	UptimeMs      int64        `json:"uptime_ms"`
	RelayURL      string       `json:"relay_url"`
	User          chat.UserRef `json:"user"`
	LoggedIn      bool         `json:"logged_in"`
	PendingWrites int          `json:"pending_writes"`
}

type LoginRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	Register    bool   `json:"register,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// Chat service.

type LoadRoomsRequest struct {
	Page    int  `json:"page"`
	PerPage int  `json:"per_page"`
	Refresh bool `json:"refresh"`
}

type RoomsResponse struct {
	Rooms      []chat.Room `json:"rooms"`
	Self       string      `json:"self"`
	Page       int         `json:"page"`
	PerPage    int         `json:"per_page"`
	Total      int         `json:"total"`
	TotalPages int         `json:"total_pages"`
}

type RoomRequest struct {
	RoomID string `json:"room_id"`
}

type ViewResponse struct {
	View chat.View `json:"view"`
}

type SendMessageRequest struct {
	RoomID   string `json:"room_id,omitempty"`
	Text     string `json:"text"`
	PhotoURL string `json:"photo_url,omitempty"`
}

type SendMessageResponse struct {
	Message chat.Message `json:"message"`
}

type TypingRequest struct {
	Typing bool `json:"typing"`
}

type PresenceRequest struct {
	Presence chat.Presence `json:"presence"`
}

type MessageRequest struct {
	RoomID    string `json:"room_id,omitempty"`
	MessageID string `json:"message_id"`
}

type ReactionRequest struct {
	RoomID    string `json:"room_id,omitempty"`
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
}

type SearchRequest struct {
	Query string `json:"query"`
}

type CreateRoomRequest struct {
	Name           string   `json:"name,omitempty"`
	ParticipantIDs []string `json:"participant_ids"`
}

type RoomResponse struct {
	Room chat.Room `json:"room"`
}

// ViewEvent is one item of the WatchView stream.
type ViewEvent struct {
	Seq    uint64    `json:"seq"`
	Reason string    `json:"reason"`
	State  string    `json:"state"`
	View   chat.View `json:"view"`
}

// Prefs service.

type HiddenNotesRequest struct {
	Cached bool `json:"cached"`
}

type HiddenNotesResponse struct {
	NoteIDs []string `json:"note_ids"`
	Cached  bool     `json:"cached"`
}

type NoteRequest struct {
	NoteID string `json:"note_id"`
}

type MigrateRequest struct {
	LegacyPath string `json:"legacy_path,omitempty"`
}

type MigrateResponse struct {
	Imported int      `json:"imported"`
	NoteIDs  []string `json:"note_ids"`
	Skipped  bool     `json:"skipped"`
}
