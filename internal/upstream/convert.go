package upstream

import (
	"encoding/json"
	"fmt"

	"github.com/notehub/nhchat/internal/chat"
	"github.com/notehub/nhchat/internal/wire"
)

func userFromWire(u wire.User) chat.UserRef {
	name := u.DisplayName
	if name == "" {
		name = u.Username
	}
	return chat.UserRef{ID: u.ID, Name: name}
}

func refFromWire(u wire.UserRef) chat.UserRef {
	return chat.UserRef{ID: u.ID, Name: u.Name}
}

func messageFromWire(m wire.Message) chat.Message {
	return chat.Message{
		ID:        m.ID,
		ClientID:  m.ClientID,
		RoomID:    m.RoomID,
		Sender:    refFromWire(m.Sender),
		Text:      m.Text,
		PhotoURL:  m.PhotoURL,
		CreatedAt: m.CreatedAt,
		Pinned:    m.Pinned,
		Reactions: m.Reactions,
		Status:    chat.StatusSent,
	}
}

func messagesFromWire(in []wire.Message) []chat.Message {
	out := make([]chat.Message, len(in))
	for i, m := range in {
		out[i] = messageFromWire(m)
	}
	return out
}

func roomFromWire(r wire.Room) chat.Room {
	room := chat.Room{
		ID:          r.ID,
		Name:        r.Name,
		IsGroup:     r.IsGroup,
		UnreadCount: r.UnreadCount,
		Theme:       r.Theme,
	}
	for _, p := range r.Participants {
		room.Participants = append(room.Participants, refFromWire(p))
	}
	if r.LastMessage != nil {
		m := messageFromWire(*r.LastMessage)
		room.LastMessage = &m
	}
	return room
}

// decodeEvent turns a server envelope into a chat.LiveEvent.
func decodeEvent(env wire.Envelope) (chat.LiveEvent, error) {
	evt := chat.LiveEvent{Seq: env.Seq, Type: chat.EventType(env.Type), RoomID: env.RoomID}
	unmarshal := func(v any) error {
		if len(env.Data) == 0 {
			return fmt.Errorf("%s: missing data", env.Type)
		}
		if err := json.Unmarshal(env.Data, v); err != nil {
			return fmt.Errorf("%s: %w", env.Type, err)
		}
		return nil
	}

	switch env.Type {
	case wire.TypeMessageCreated:
		var m wire.Message
		if err := unmarshal(&m); err != nil {
			return evt, err
		}
		cm := messageFromWire(m)
		if cm.RoomID == "" {
			cm.RoomID = env.RoomID
		}
		evt.Message = &cm
	case wire.TypeMessageDeleted, wire.TypeMessagePinned, wire.TypeMessageUnpinned:
		var d wire.MessageRefData
		if err := unmarshal(&d); err != nil {
			return evt, err
		}
		evt.MessageID = d.MessageID
	case wire.TypeReactionAdded, wire.TypeReactionRemoved:
		var d wire.ReactionData
		if err := unmarshal(&d); err != nil {
			return evt, err
		}
		evt.MessageID, evt.Emoji, evt.User = d.MessageID, d.Emoji, refFromWire(d.User)
	case wire.TypeTyping:
		var d wire.TypingData
		if err := unmarshal(&d); err != nil {
			return evt, err
		}
		evt.User, evt.Typing = refFromWire(d.User), d.Typing
	case wire.TypePresence:
		var d wire.PresenceData
		if err := unmarshal(&d); err != nil {
			return evt, err
		}
		evt.User, evt.Presence = refFromWire(d.User), chat.Presence(d.Presence)
	case wire.TypeRoomCreated, wire.TypeRoomUpdated:
		var r wire.Room
		if err := unmarshal(&r); err != nil {
			return evt, err
		}
		cr := roomFromWire(r)
		evt.Room = &cr
		if evt.RoomID == "" {
			evt.RoomID = cr.ID
		}
	case wire.TypeRoomDeleted:
	case wire.TypeAck:
		var d wire.AckData
		if err := unmarshal(&d); err != nil {
			return evt, err
		}
		evt.ClientID = d.ClientID
		if d.Message != nil {
			cm := messageFromWire(*d.Message)
			cm.ClientID = d.ClientID
			evt.Message = &cm
		}
	case wire.TypeNack:
		var d wire.NackData
		if err := unmarshal(&d); err != nil {
			return evt, err
		}
		evt.ClientID, evt.Error = d.ClientID, d.Error
	default:
		return evt, fmt.Errorf("unknown event type %q", env.Type)
	}
	return evt, nil
}
