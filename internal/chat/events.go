package chat

// EventType names a live-channel event sent by the relay.
type EventType string

const (
	EventMessageCreated  EventType = "message_created"
	EventMessageDeleted  EventType = "message_deleted"
	EventReactionAdded   EventType = "reaction_added"
	EventReactionRemoved EventType = "reaction_removed"
	EventMessagePinned   EventType = "message_pinned"
	EventMessageUnpinned EventType = "message_unpinned"
	EventTyping          EventType = "typing"
	EventPresence        EventType = "presence"
	EventRoomCreated     EventType = "room_created"
	EventRoomUpdated     EventType = "room_updated"
	EventRoomDeleted     EventType = "room_deleted"
	EventAck             EventType = "ack"
	EventNack            EventType = "nack"
)

// LiveEvent is a decoded live-channel event. Only the fields relevant to
// Type are set. Seq is stamped per connection by the relay, starting at 1;
// zero means unsequenced.
type LiveEvent struct {
	Seq       uint64
	Type      EventType
	RoomID    string
	Message   *Message
	MessageID string
	Emoji     string
	User      UserRef
	Typing    bool
	Presence  Presence
	Room      *Room
	ClientID  string
	Error     string
}

// SendFailure is published when the outbox gives up on a queued send.
type SendFailure struct {
	ClientID string
	RoomID   string
	Reason   string
}

// ViewChange is the payload of view.changed bus events.
type ViewChange struct {
	Reason string
}
