// Package chat holds the client-side view of rooms and messages and keeps
// it consistent with the relay's REST responses and live events.
package chat

import (
	"maps"
	"slices"
	"time"
)

// UserRef identifies a user together with the name to display for them.
type UserRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Presence is a user's availability as broadcast on the live channel.
type Presence string

const (
	PresenceOnline  Presence = "online"
	PresenceAway    Presence = "away"
	PresenceBusy    Presence = "busy"
	PresenceOffline Presence = "offline"
)

// Valid reports whether p is one of the known presence values.
func (p Presence) Valid() bool {
	switch p {
	case PresenceOnline, PresenceAway, PresenceBusy, PresenceOffline:
		return true
	}
	return false
}

// MessageStatus tracks delivery of a message authored on this client.
type MessageStatus string

const (
	StatusSent    MessageStatus = "sent"
	StatusSending MessageStatus = "sending"
	StatusFailed  MessageStatus = "failed"
)

const pendingPrefix = "pending:"

// PendingID is the placeholder id of an optimistic message until the relay assigns one.
func PendingID(clientID string) string { return pendingPrefix + clientID }

// Message is a single chat message.
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
	Status    MessageStatus       `json:"status,omitempty"`
}

// IsPending reports whether m still carries a placeholder id.
func (m Message) IsPending() bool {
	return len(m.ID) > len(pendingPrefix) && m.ID[:len(pendingPrefix)] == pendingPrefix
}

// Clone returns a deep copy of m.
func (m Message) Clone() Message {
	if m.Reactions != nil {
		r := make(map[string][]string, len(m.Reactions))
		for emoji, users := range m.Reactions {
			r[emoji] = slices.Clone(users)
		}
		m.Reactions = r
	}
	return m
}

// ReactedBy reports whether userID has reacted with emoji.
func (m Message) ReactedBy(emoji, userID string) bool {
	return slices.Contains(m.Reactions[emoji], userID)
}

func (m *Message) setReaction(emoji, userID string, on bool) {
	users := m.Reactions[emoji]
	has := slices.Contains(users, userID)
	switch {
	case on && !has:
		if m.Reactions == nil {
			m.Reactions = make(map[string][]string)
		}
		m.Reactions[emoji] = append(slices.Clone(users), userID)
	case !on && has:
		users = slices.DeleteFunc(slices.Clone(users), func(u string) bool { return u == userID })
		if len(users) == 0 {
			delete(m.Reactions, emoji)
		} else {
			m.Reactions[emoji] = users
		}
	}
}

// Room is a direct or group conversation.
type Room struct {
	ID           string    `json:"id"`
	Name         string    `json:"name,omitempty"`
	IsGroup      bool      `json:"is_group"`
	Participants []UserRef `json:"participants"`
	LastMessage  *Message  `json:"last_message,omitempty"`
	UnreadCount  int       `json:"unread_count"`
	Theme        string    `json:"theme,omitempty"`
}

// DisplayName returns the room name, or for unnamed rooms the names of the
// participants other than selfID.
func (r Room) DisplayName(selfID string) string {
	if r.Name != "" {
		return r.Name
	}
	var names []string
	for _, p := range r.Participants {
		if p.ID != selfID {
			names = append(names, p.Name)
		}
	}
	switch len(names) {
	case 0:
		return r.ID
	case 1:
		return names[0]
	}
	out := names[0]
	for _, n := range names[1:] {
		out += ", " + n
	}
	return out
}

// Clone returns a deep copy of r.
func (r Room) Clone() Room {
	r.Participants = slices.Clone(r.Participants)
	if r.LastMessage != nil {
		lm := r.LastMessage.Clone()
		r.LastMessage = &lm
	}
	return r
}

func (r Room) activity() time.Time {
	if r.LastMessage == nil {
		return time.Time{}
	}
	return r.LastMessage.CreatedAt
}

// BannerKind separates failed loads from failed user actions.
type BannerKind string

const (
	BannerLoad   BannerKind = "load"
	BannerAction BannerKind = "action"
)

// Banner is a dismissible error notice.
type Banner struct {
	Kind    BannerKind `json:"kind"`
	Op      string     `json:"op"`
	Message string     `json:"message"`
	At      time.Time  `json:"at"`
}

// SearchResults overlays the message pane until cleared.
type SearchResults struct {
	Query    string    `json:"query"`
	Messages []Message `json:"messages"`
}

// View is an immutable snapshot of everything a renderer needs.
type View struct {
	Self          UserRef             `json:"self"`
	Rooms         []Room              `json:"rooms"`
	SelectedRoom  string              `json:"selected_room,omitempty"`
	LoadingRoom   string              `json:"loading_room,omitempty"`
	Messages      []Message           `json:"messages"`
	Pinned        []Message           `json:"pinned"`
	Typing        []string            `json:"typing"`
	Presence      map[string]Presence `json:"presence"`
	Search        *SearchResults      `json:"search,omitempty"`
	Banner        *Banner             `json:"banner,omitempty"`
	PendingWrites int                 `json:"pending_writes"`
}

// Room returns the room with the given id from the snapshot.
func (v View) Room(id string) (Room, bool) {
	for _, r := range v.Rooms {
		if r.ID == id {
			return r, true
		}
	}
	return Room{}, false
}

func clonePresence(p map[string]Presence) map[string]Presence {
	if p == nil {
		return map[string]Presence{}
	}
	return maps.Clone(p)
}
