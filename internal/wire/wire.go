// Package wire defines the JSON shapes exchanged between nhd and the relay,
// over REST and over the /ws live channel.
package wire

import (
	"encoding/json"
	"time"
)

// User is an account as returned by the relay.
type User struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

// UserRef is the compact user form embedded in messages and rooms.
type UserRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Message struct {
	ID        string              `json:"id"`
	ClientID  string              `json:"client_id,omitempty"`
	RoomID    string              `json:"room_id"`
	Sender    UserRef             `json:"sender"`
	Text      string              `json:"text"`
	PhotoURL  string              `json:"photo_url,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
	Pinned    bool                `json:"is_pinned"`
	Reactions map[string][]string `json:"reactions,omitempty"`
}

type Room struct {
	ID           string    `json:"id"`
	Name         string    `json:"name,omitempty"`
	IsGroup      bool      `json:"is_group"`
	Participants []UserRef `json:"participants"`
	LastMessage  *Message  `json:"last_message,omitempty"`
	UnreadCount  int       `json:"unread_count"`
	Theme        string    `json:"theme,omitempty"`
}

// REST bodies.

type Credentials struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name,omitempty"`
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	User         *User  `json:"user,omitempty"`
}

type RoomsResponse struct {
	Rooms []Room `json:"rooms"`
}

type MessagesResponse struct {
	Messages []Message `json:"messages"`
}

type CreateRoomRequest struct {
	Name           string   `json:"name,omitempty"`
	ParticipantIDs []string `json:"participant_ids"`
}

type ReactionRequest struct {
	Emoji string `json:"emoji"`
}

type HiddenNotes struct {
	NoteIDs []string `json:"note_ids"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// Live channel.

// Frame and event types.
const (
	TypeSend     = "send"
	TypeTyping   = "typing"
	TypePresence = "presence"

	TypeMessageCreated  = "message_created"
	TypeMessageDeleted  = "message_deleted"
	TypeReactionAdded   = "reaction_added"
	TypeReactionRemoved = "reaction_removed"
	TypeMessagePinned   = "message_pinned"
	TypeMessageUnpinned = "message_unpinned"
	TypeRoomCreated     = "room_created"
	TypeRoomUpdated     = "room_updated"
	TypeRoomDeleted     = "room_deleted"
	TypeAck             = "ack"
	TypeNack            = "nack"
)

// Envelope wraps every live-channel frame. Seq is set on server frames only.
type Envelope struct {
	Seq    uint64          `json:"seq,omitempty"`
	Type   string          `json:"type"`
	RoomID string          `json:"room_id,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals data into an envelope.
func NewEnvelope(typ, roomID string, data any) (Envelope, error) {
	env := Envelope{Type: typ, RoomID: roomID}
	if data == nil {
		return env, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	env.Data = raw
	return env, nil
}

type SendData struct {
	ClientID string `json:"client_id"`
	Text     string `json:"text"`
	PhotoURL string `json:"photo_url,omitempty"`
}

type TypingData struct {
	User   UserRef `json:"user"`
	Typing bool    `json:"typing"`
}

type PresenceData struct {
	User     UserRef `json:"user"`
	Presence string  `json:"presence"`
}

type MessageRefData struct {
	MessageID string `json:"message_id"`
}

type ReactionData struct {
	MessageID string  `json:"message_id"`
	Emoji     string  `json:"emoji"`
	User      UserRef `json:"user"`
}

type AckData struct {
	ClientID string   `json:"client_id"`
	Message  *Message `json:"message,omitempty"`
}

type NackData struct {
	ClientID string `json:"client_id"`
	Error    string `json:"error"`
}
