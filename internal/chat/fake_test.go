package chat

import (
	"context"
	"errors"
	"sync"
	"time"
)

type httpErr int

func (e httpErr) Error() string   { return "http error" }
func (e httpErr) StatusCode() int { return int(e) }

var errBoom = errors.New("boom")

type fakeUpstream struct {
	mu       sync.Mutex
	self     UserRef
	rooms    []Room
	history  map[string][]Message
	fail     map[string]error
	gate     map[string]chan struct{}
	calls    map[string]int
	typing   []bool
	searched []string
	hooks    map[string]func()
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{
		self:    UserRef{ID: "me", Name: "Me"},
		history: make(map[string][]Message),
		fail:    make(map[string]error),
		gate:    make(map[string]chan struct{}),
		calls:   make(map[string]int),
		hooks:   make(map[string]func()),
	}
}

func (f *fakeUpstream) record(op string) error {
	f.mu.Lock()
	f.calls[op]++
	err := f.fail[op]
	hook := f.hooks[op]
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return err
}

func (f *fakeUpstream) onCall(op string, fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hooks[op] = fn
}

func (f *fakeUpstream) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeUpstream) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeUpstream) setFail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[op] = err
}

func (f *fakeUpstream) Me(context.Context) (UserRef, error) {
	return f.self, f.record("me")
}

func (f *fakeUpstream) ListRooms(context.Context) ([]Room, error) {
	if err := f.record("list_rooms"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Room, len(f.rooms))
	for i, r := range f.rooms {
		out[i] = r.Clone()
	}
	return out, nil
}

func (f *fakeUpstream) CreateRoom(_ context.Context, name string, ids []string) (Room, error) {
	if err := f.record("create_room"); err != nil {
		return Room{}, err
	}
	return Room{ID: "new-" + name, Name: name, IsGroup: len(ids) > 1}, nil
}

func (f *fakeUpstream) DeleteRoom(context.Context, string) error { return f.record("delete_room") }

func (f *fakeUpstream) ListMessages(ctx context.Context, roomID string, _ int) ([]Message, error) {
	err := f.record("list_messages")
	f.mu.Lock()
	gate := f.gate[roomID]
	msgs := append([]Message(nil), f.history[roomID]...)
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

func (f *fakeUpstream) DeleteMessage(context.Context, string, string) error {
	return f.record("delete_message")
}

func (f *fakeUpstream) AddReaction(context.Context, string, string, string) error {
	return f.record("add_reaction")
}

func (f *fakeUpstream) RemoveReaction(context.Context, string, string, string) error {
	return f.record("remove_reaction")
}

func (f *fakeUpstream) Pin(context.Context, string, string) error   { return f.record("pin") }
func (f *fakeUpstream) Unpin(context.Context, string, string) error { return f.record("unpin") }
func (f *fakeUpstream) MarkRead(context.Context, string) error      { return f.record("mark_read") }

func (f *fakeUpstream) Search(_ context.Context, q string) ([]Message, error) {
	if err := f.record("search"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searched = append(f.searched, q)
	return []Message{{ID: "s1", RoomID: "A", Text: q}}, nil
}

func (f *fakeUpstream) SendTyping(_ string, typing bool) error {
	err := f.record("typing")
	f.mu.Lock()
	f.typing = append(f.typing, typing)
	f.mu.Unlock()
	return err
}

func (f *fakeUpstream) SendPresence(Presence) error { return f.record("presence") }

type fakeOutbox struct {
	mu       sync.Mutex
	queued   []string
	sent     map[string]string
	failed   map[string]string
	failNext error
}

func newFakeOutbox() *fakeOutbox {
	return &fakeOutbox{sent: make(map[string]string), failed: make(map[string]string)}
}

func (o *fakeOutbox) Enqueue(clientID, _, _, _ string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failNext != nil {
		return o.failNext
	}
	o.queued = append(o.queued, clientID)
	return nil
}

func (o *fakeOutbox) MarkSent(clientID, serverID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent[clientID] = serverID
	return nil
}

func (o *fakeOutbox) MarkFailed(clientID, reason string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed[clientID] = reason
	return nil
}

func (o *fakeOutbox) queuedCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queued)
}

type memCheckpoints struct {
	mu sync.Mutex
	kv map[string]string
}

func (m *memCheckpoints) GetCheckpoint(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.kv[key]
	return v, ok, nil
}

func (m *memCheckpoints) SetCheckpoint(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.kv == nil {
		m.kv = make(map[string]string)
	}
	m.kv[key] = value
	return nil
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func at(sec int) time.Time { return t0.Add(time.Duration(sec) * time.Second) }

func msg(id, room, sender string, sec int) Message {
	return Message{ID: id, RoomID: room, Sender: UserRef{ID: sender, Name: sender}, Text: "text " + id, CreatedAt: at(sec)}
}

func room(id string, unread int, last *Message) Room {
	return Room{
		ID:           id,
		Participants: []UserRef{{ID: "me", Name: "Me"}, {ID: "peer-" + id, Name: "Peer " + id}},
		UnreadCount:  unread,
		LastMessage:  last,
	}
}

func ptr(m Message) *Message { return &m }
