package chat

import (
	"slices"
	"time"
)

const maxTombstones = 1024

// State is the reducer behind Engine. It is not safe for concurrent use.
type State struct {
	self       UserRef
	rooms      []Room
	selected   string
	loading    string
	messages   []Message
	buffered   []Message
	presence   map[string]Presence
	search     *SearchResults
	banner     *Banner
	tombstones map[string]struct{}
	tombOrder  []string
}

// NewState returns an empty state.
func NewState() *State {
	return &State{
		presence:   make(map[string]Presence),
		tombstones: make(map[string]struct{}),
	}
}

func (s *State) SetSelf(u UserRef) { s.self = u }
func (s *State) Self() UserRef     { return s.self }
func (s *State) Selected() string  { return s.selected }
func (s *State) Loading() string   { return s.loading }

func (s *State) roomIndex(id string) int {
	return slices.IndexFunc(s.rooms, func(r Room) bool { return r.ID == id })
}

// HasRoom reports whether id is in the room list.
func (s *State) HasRoom(id string) bool { return s.roomIndex(id) >= 0 }

// Room returns a copy of the room with the given id.
func (s *State) Room(id string) (Room, bool) {
	if i := s.roomIndex(id); i >= 0 {
		return s.rooms[i].Clone(), true
	}
	return Room{}, false
}

// Message returns a copy of a loaded message of the selected room.
func (s *State) Message(id string) (Message, bool) {
	if i := indexByID(s.messages, id); i >= 0 {
		return s.messages[i].Clone(), true
	}
	return Message{}, false
}

// ReplaceRooms installs a freshly fetched room list.
func (s *State) ReplaceRooms(rooms []Room) {
	out := make([]Room, 0, len(rooms))
	for _, r := range rooms {
		r = r.Clone()
		if r.LastMessage != nil && s.tombstoned(r.LastMessage.ID) {
			r.LastMessage = nil
		}
		if r.ID == s.selected {
			r.UnreadCount = 0
			if m := newestSettled(s.messages); m != nil && !m.CreatedAt.Before(r.activity()) {
				r.LastMessage = m
			}
		}
		out = append(out, r)
	}
	s.rooms = out
	s.sortRooms()

	if s.selected != "" && !s.HasRoom(s.selected) {
		s.selected = ""
		s.messages = nil
	}
	if s.loading != "" && !s.HasRoom(s.loading) {
		s.loading = ""
		s.buffered = nil
	}
}

// UpsertRoom adds a room or refreshes its metadata.
func (s *State) UpsertRoom(r Room) {
	r = r.Clone()
	if i := s.roomIndex(r.ID); i >= 0 {
		cur := &s.rooms[i]
		cur.Name = r.Name
		cur.IsGroup = r.IsGroup
		cur.Theme = r.Theme
		if len(r.Participants) > 0 {
			cur.Participants = r.Participants
		}
		if r.LastMessage != nil && !r.LastMessage.CreatedAt.Before(cur.activity()) {
			cur.LastMessage = r.LastMessage
		}
		s.sortRooms()
		return
	}
	if r.ID == s.selected {
		r.UnreadCount = 0
	}
	s.rooms = append(s.rooms, r)
	s.sortRooms()
}

// BeginSelect marks id as loading. Live messages for it are buffered until
// CommitSelect so none are lost while history is in flight.
func (s *State) BeginSelect(id string) {
	s.loading = id
	s.buffered = nil
	s.search = nil
}

// CommitSelect makes id the selected room with the given history. It returns
// false if id is no longer the room being loaded.
func (s *State) CommitSelect(id string, history []Message) bool {
	if s.loading != id {
		return false
	}
	msgs := make([]Message, 0, len(history)+len(s.buffered))
	for _, m := range history {
		if (m.RoomID != "" && m.RoomID != id) || s.tombstoned(m.ID) {
			continue
		}
		m = m.Clone()
		m.RoomID = id
		if m.Status == "" {
			m.Status = StatusSent
		}
		msgs = mergeMessage(msgs, m)
	}
	for _, m := range s.buffered {
		if !s.tombstoned(m.ID) {
			msgs = mergeMessage(msgs, m)
		}
	}
	if s.selected == id {
		// keep optimistic and failed sends the relay does not know about yet
		for _, m := range s.messages {
			if m.Status != StatusSent && indexOf(msgs, m) < 0 {
				msgs = mergeMessage(msgs, m)
			}
		}
	}
	sortMessages(msgs)

	s.selected = id
	s.loading = ""
	s.buffered = nil
	s.messages = msgs

	if i := s.roomIndex(id); i >= 0 {
		room := &s.rooms[i]
		room.UnreadCount = 0
		if m := newestSettled(msgs); m != nil && !m.CreatedAt.Before(room.activity()) {
			room.LastMessage = m
			s.sortRooms()
		}
	}
	return true
}

// CancelSelect abandons a pending selection of id.
func (s *State) CancelSelect(id string) {
	if s.loading == id {
		s.loading = ""
		s.buffered = nil
	}
}

// ApplyMessage records a new or updated message. It returns false when the
// message was dropped (tombstoned id or unknown room).
func (s *State) ApplyMessage(m Message) bool {
	if s.tombstoned(m.ID) {
		return false
	}
	idx := s.roomIndex(m.RoomID)
	if idx < 0 {
		return false
	}
	m = m.Clone()
	if m.Status == "" {
		m.Status = StatusSent
	}

	dup := false
	if m.RoomID == s.selected {
		if i := indexOf(s.messages, m); i >= 0 {
			dup = true
		}
		s.messages = mergeMessage(s.messages, m)
		sortMessages(s.messages)
	}
	if m.RoomID == s.loading {
		s.buffered = mergeMessage(s.buffered, m)
	}

	room := &s.rooms[idx]
	last := m.Clone()
	switch {
	case room.LastMessage != nil && sameMessage(*room.LastMessage, m):
		dup = true
		if m.Status == StatusFailed {
			room.LastMessage = newestSettled(s.roomMessages(m.RoomID))
		} else {
			room.LastMessage = &last
		}
	case m.Status != StatusFailed && !m.CreatedAt.Before(room.activity()):
		room.LastMessage = &last
	}
	if !dup && m.Sender.ID != s.self.ID && m.RoomID != s.selected {
		room.UnreadCount++
	}
	s.sortRooms()
	return true
}

// removedMessage captures what RemoveMessage took out so it can be put back.
type removedMessage struct {
	msg      Message
	found    bool
	index    int
	prevLast *Message
}

// RemoveMessage deletes a message and leaves a tombstone so a late create
// for the same id is ignored.
func (s *State) RemoveMessage(roomID, id string) removedMessage {
	s.tombstone(id)
	rm := removedMessage{index: -1}
	if roomID == s.selected {
		if i := indexByID(s.messages, id); i >= 0 {
			rm.msg, rm.found, rm.index = s.messages[i], true, i
			s.messages = slices.Delete(s.messages, i, i+1)
		}
	}
	s.buffered = slices.DeleteFunc(s.buffered, func(m Message) bool { return m.ID == id })
	if s.search != nil {
		s.search.Messages = slices.DeleteFunc(s.search.Messages, func(m Message) bool { return m.ID == id })
	}
	if i := s.roomIndex(roomID); i >= 0 {
		room := &s.rooms[i]
		if room.LastMessage != nil && room.LastMessage.ID == id {
			prev := room.LastMessage.Clone()
			rm.prevLast = &prev
			if !rm.found {
				rm.msg, rm.found = prev, true
			}
			room.LastMessage = newestSettled(s.roomMessages(roomID))
		}
	}
	return rm
}

// RestoreMessage undoes RemoveMessage.
func (s *State) RestoreMessage(roomID string, rm removedMessage) {
	if !rm.found {
		return
	}
	s.untombstone(rm.msg.ID)
	if roomID == s.selected && rm.index >= 0 && indexByID(s.messages, rm.msg.ID) < 0 {
		s.messages = slices.Insert(s.messages, min(rm.index, len(s.messages)), rm.msg)
	}
	if rm.prevLast != nil {
		if i := s.roomIndex(roomID); i >= 0 {
			room := &s.rooms[i]
			if room.LastMessage == nil || !room.LastMessage.CreatedAt.After(rm.prevLast.CreatedAt) {
				prev := rm.prevLast.Clone()
				room.LastMessage = &prev
			}
		}
	}
}

// removedRoom captures what RemoveRoom took out so it can be put back.
type removedRoom struct {
	room     Room
	found    bool
	index    int
	selected bool
	messages []Message
}

// RemoveRoom deletes a room, deselecting it if needed.
func (s *State) RemoveRoom(id string) removedRoom {
	i := s.roomIndex(id)
	if i < 0 {
		return removedRoom{}
	}
	rr := removedRoom{room: s.rooms[i], found: true, index: i}
	s.rooms = slices.Delete(s.rooms, i, i+1)
	if s.selected == id {
		rr.selected = true
		rr.messages = s.messages
		s.selected = ""
		s.messages = nil
	}
	if s.loading == id {
		s.loading = ""
		s.buffered = nil
	}
	return rr
}

// RestoreRoom undoes RemoveRoom at the room's original position.
func (s *State) RestoreRoom(rr removedRoom) {
	if !rr.found || s.HasRoom(rr.room.ID) {
		return
	}
	s.rooms = slices.Insert(s.rooms, min(rr.index, len(s.rooms)), rr.room)
	if rr.selected && s.selected == "" && s.loading == "" {
		s.selected = rr.room.ID
		s.messages = rr.messages
	}
}

// SetReaction adds or removes userID's emoji reaction. It returns whether
// the user had reacted before and whether the message was found locally.
func (s *State) SetReaction(roomID, msgID, emoji, userID string, on bool) (prev, found bool) {
	first := true
	found = s.eachCopy(roomID, msgID, func(m *Message) {
		if first {
			prev = m.ReactedBy(emoji, userID)
			first = false
		}
		m.setReaction(emoji, userID, on)
	})
	return prev, found
}

// SetPinned pins or unpins a message, returning its previous pin state.
func (s *State) SetPinned(roomID, msgID string, pinned bool) (prev, found bool) {
	first := true
	found = s.eachCopy(roomID, msgID, func(m *Message) {
		if first {
			prev = m.Pinned
			first = false
		}
		m.Pinned = pinned
	})
	return prev, found
}

// eachCopy applies fn to every local copy of a message.
func (s *State) eachCopy(roomID, msgID string, fn func(*Message)) bool {
	found := false
	if roomID == s.selected {
		if i := indexByID(s.messages, msgID); i >= 0 {
			fn(&s.messages[i])
			found = true
		}
	}
	if i := indexByID(s.buffered, msgID); i >= 0 {
		fn(&s.buffered[i])
		found = true
	}
	if i := s.roomIndex(roomID); i >= 0 && s.rooms[i].LastMessage != nil && s.rooms[i].LastMessage.ID == msgID {
		fn(s.rooms[i].LastMessage)
		found = true
	}
	if s.search != nil {
		if i := indexByID(s.search.Messages, msgID); i >= 0 {
			fn(&s.search.Messages[i])
			found = true
		}
	}
	return found
}

// FailSend marks an optimistic message failed and takes it out of the room's
// lastMessage, falling back to prevLast.
func (s *State) FailSend(roomID, clientID string, prevLast *Message) {
	for i := range s.messages {
		if s.messages[i].ClientID == clientID {
			s.messages[i].Status = StatusFailed
		}
	}
	for i := range s.buffered {
		if s.buffered[i].ClientID == clientID {
			s.buffered[i].Status = StatusFailed
		}
	}
	i := s.roomIndex(roomID)
	if i < 0 {
		return
	}
	room := &s.rooms[i]
	if room.LastMessage == nil || room.LastMessage.ClientID != clientID {
		return
	}
	room.LastMessage = newestSettled(s.roomMessages(roomID))
	if room.LastMessage == nil && prevLast != nil {
		prev := prevLast.Clone()
		room.LastMessage = &prev
	}
	s.sortRooms()
}

// ConfirmSend replaces the optimistic message with the relay's copy.
func (s *State) ConfirmSend(roomID, clientID string, server *Message) {
	if server == nil {
		for i := range s.messages {
			if s.messages[i].ClientID == clientID {
				s.messages[i].Status = StatusSent
			}
		}
		if i := s.roomIndex(roomID); i >= 0 && s.rooms[i].LastMessage != nil && s.rooms[i].LastMessage.ClientID == clientID {
			s.rooms[i].LastMessage.Status = StatusSent
		}
		return
	}
	m := server.Clone()
	m.ClientID = clientID
	m.Status = StatusSent
	if m.RoomID == "" {
		m.RoomID = roomID
	}
	s.ApplyMessage(m)
}

// SetPresence records a user's availability.
func (s *State) SetPresence(userID string, p Presence) {
	if p == PresenceOffline {
		delete(s.presence, userID)
		return
	}
	s.presence[userID] = p
}

func (s *State) SetSearch(query string, msgs []Message) {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if !s.tombstoned(m.ID) {
			out = append(out, m.Clone())
		}
	}
	s.search = &SearchResults{Query: query, Messages: out}
}

func (s *State) ClearSearch() { s.search = nil }

// SetBanner records a failure for display.
func (s *State) SetBanner(kind BannerKind, op string, err error) {
	s.banner = &Banner{Kind: kind, Op: op, Message: err.Error(), At: time.Now()}
}

// ClearBannerFor dismisses the banner only if it was raised by op.
func (s *State) ClearBannerFor(op string) {
	if s.banner != nil && s.banner.Op == op {
		s.banner = nil
	}
}

func (s *State) DismissBanner() { s.banner = nil }

func (s *State) Banner() *Banner { return s.banner }

// View builds an immutable snapshot.
func (s *State) View(typing []string, pendingWrites int) View {
	v := View{
		Self:          s.self,
		SelectedRoom:  s.selected,
		LoadingRoom:   s.loading,
		Rooms:         make([]Room, len(s.rooms)),
		Messages:      make([]Message, len(s.messages)),
		Pinned:        []Message{},
		Typing:        slices.Clone(typing),
		Presence:      clonePresence(s.presence),
		PendingWrites: pendingWrites,
	}
	for i, r := range s.rooms {
		v.Rooms[i] = r.Clone()
	}
	for i, m := range s.messages {
		v.Messages[i] = m.Clone()
		if m.Pinned {
			v.Pinned = append(v.Pinned, v.Messages[i])
		}
	}
	if v.Typing == nil {
		v.Typing = []string{}
	}
	if s.search != nil {
		sr := SearchResults{Query: s.search.Query, Messages: make([]Message, len(s.search.Messages))}
		for i, m := range s.search.Messages {
			sr.Messages[i] = m.Clone()
		}
		v.Search = &sr
	}
	if s.banner != nil {
		b := *s.banner
		v.Banner = &b
	}
	return v
}

func (s *State) roomMessages(roomID string) []Message {
	if roomID == s.selected {
		return s.messages
	}
	return nil
}

func (s *State) sortRooms() {
	slices.SortStableFunc(s.rooms, func(a, b Room) int {
		return b.activity().Compare(a.activity())
	})
}

func (s *State) tombstoned(id string) bool {
	_, ok := s.tombstones[id]
	return ok
}

func (s *State) tombstone(id string) {
	if s.tombstoned(id) {
		return
	}
	s.tombstones[id] = struct{}{}
	s.tombOrder = append(s.tombOrder, id)
	if len(s.tombOrder) > maxTombstones {
		delete(s.tombstones, s.tombOrder[0])
		s.tombOrder = s.tombOrder[1:]
	}
}

func (s *State) untombstone(id string) {
	delete(s.tombstones, id)
	s.tombOrder = slices.DeleteFunc(s.tombOrder, func(t string) bool { return t == id })
}

func sameMessage(a, b Message) bool {
	return a.ID == b.ID || (a.ClientID != "" && a.ClientID == b.ClientID)
}

func indexOf(msgs []Message, m Message) int {
	return slices.IndexFunc(msgs, func(x Message) bool { return sameMessage(x, m) })
}

func indexByID(msgs []Message, id string) int {
	return slices.IndexFunc(msgs, func(x Message) bool { return x.ID == id })
}

// mergeMessage replaces the matching message or appends m.
func mergeMessage(msgs []Message, m Message) []Message {
	if i := indexOf(msgs, m); i >= 0 {
		msgs[i] = m
		return msgs
	}
	return append(msgs, m)
}

func sortMessages(msgs []Message) {
	slices.SortStableFunc(msgs, func(a, b Message) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
}

// newestSettled returns a copy of the newest message that is not failed.
func newestSettled(msgs []Message) *Message {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Status != StatusFailed {
			m := msgs[i].Clone()
			return &m
		}
	}
	return nil
}
