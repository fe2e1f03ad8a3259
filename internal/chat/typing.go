package chat

import (
	"slices"
	"sync"
	"time"
)

// DefaultTypingTTL is how long a typing indicator survives without a refresh.
const DefaultTypingTTL = 2 * time.Second

type typist struct {
	name  string
	timer *time.Timer
}

// Typing tracks who is composing in each room. Each indicator expires TTL
// after the last typing event for that user.
type Typing struct {
	mu       sync.Mutex
	ttl      time.Duration
	rooms    map[string]map[string]*typist
	onExpire func(roomID string)
}

// NewTyping returns a tracker; onExpire runs (without locks held) whenever an
// indicator times out.
func NewTyping(ttl time.Duration, onExpire func(roomID string)) *Typing {
	if ttl <= 0 {
		ttl = DefaultTypingTTL
	}
	return &Typing{ttl: ttl, rooms: make(map[string]map[string]*typist), onExpire: onExpire}
}

// Set starts, refreshes or stops a user's indicator in a room.
func (t *Typing) Set(roomID string, user UserRef, typing bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	users := t.rooms[roomID]
	if cur, ok := users[user.ID]; ok {
		cur.timer.Stop()
		delete(users, user.ID)
	}
	if !typing {
		if len(users) == 0 {
			delete(t.rooms, roomID)
		}
		return
	}
	if users == nil {
		users = make(map[string]*typist)
		t.rooms[roomID] = users
	}
	tp := &typist{name: user.Name}
	tp.timer = time.AfterFunc(t.ttl, func() { t.expire(roomID, user.ID, tp) })
	users[user.ID] = tp
}

func (t *Typing) expire(roomID, userID string, tp *typist) {
	t.mu.Lock()
	users := t.rooms[roomID]
	if users[userID] != tp {
		// refreshed or stopped since this timer was armed
		t.mu.Unlock()
		return
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(t.rooms, roomID)
	}
	t.mu.Unlock()

	if t.onExpire != nil {
		t.onExpire(roomID)
	}
}

// Names returns the sorted display names typing in a room.
func (t *Typing) Names(roomID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, 0, len(t.rooms[roomID]))
	for _, tp := range t.rooms[roomID] {
		names = append(names, tp.name)
	}
	slices.Sort(names)
	return names
}

// Clear drops every indicator, e.g. after the live channel disconnects.
func (t *Typing) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, users := range t.rooms {
		for _, tp := range users {
			tp.timer.Stop()
		}
	}
	clear(t.rooms)
}

// Stop cancels all timers.
func (t *Typing) Stop() { t.Clear() }
