package chat

import (
	"testing"
)

func newTestState() *State {
	s := NewState()
	s.SetSelf(UserRef{ID: "me", Name: "Me"})
	return s
}

func TestReplaceRoomsSortsByActivity(t *testing.T) {
	s := newTestState()
	s.ReplaceRooms([]Room{
		room("old", 0, ptr(msg("m1", "old", "x", 1))),
		room("empty", 0, nil),
		room("new", 0, ptr(msg("m2", "new", "x", 5))),
	})
	v := s.View(nil, 0)
	got := []string{v.Rooms[0].ID, v.Rooms[1].ID, v.Rooms[2].ID}
	want := []string{"new", "old", "empty"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("room order = %v, want %v", got, want)
		}
	}
}

func TestUnreadScenarioAcrossRooms(t *testing.T) {
	s := newTestState()
	s.ReplaceRooms([]Room{
		room("A", 3, ptr(msg("a0", "A", "peer-A", 2))),
		room("B", 0, ptr(msg("b0", "B", "peer-B", 1))),
	})

	s.BeginSelect("A")
	if !s.CommitSelect("A", []Message{msg("a0", "A", "peer-A", 2)}) {
		t.Fatal("CommitSelect returned false")
	}
	a, _ := s.Room("A")
	b, _ := s.Room("B")
	if a.UnreadCount != 0 {
		t.Errorf("A unread = %d, want 0", a.UnreadCount)
	}
	if b.UnreadCount != 0 {
		t.Errorf("B unread = %d, want unchanged 0", b.UnreadCount)
	}

	incoming := msg("b1", "B", "peer-B", 10)
	s.ApplyMessage(incoming)

	a, _ = s.Room("A")
	b, _ = s.Room("B")
	if b.UnreadCount != 1 {
		t.Errorf("B unread = %d, want 1", b.UnreadCount)
	}
	if b.LastMessage == nil || b.LastMessage.ID != "b1" {
		t.Errorf("B lastMessage = %+v, want b1", b.LastMessage)
	}
	if a.UnreadCount != 0 || a.LastMessage.ID != "a0" {
		t.Errorf("A changed: %+v", a)
	}
	v := s.View(nil, 0)
	if v.Rooms[0].ID != "B" {
		t.Errorf("B should move to top, got %s", v.Rooms[0].ID)
	}
	if len(v.Messages) != 1 {
		t.Errorf("selected messages = %d, B's message leaked into A", len(v.Messages))
	}
}

func TestApplyMessageSelectedRoomNoUnread(t *testing.T) {
	s := newTestState()
	s.ReplaceRooms([]Room{room("A", 0, nil)})
	s.BeginSelect("A")
	s.CommitSelect("A", nil)

	s.ApplyMessage(msg("m1", "A", "peer-A", 1))
	a, _ := s.Room("A")
	if a.UnreadCount != 0 {
		t.Errorf("unread = %d, want 0 for selected room", a.UnreadCount)
	}
	if a.LastMessage == nil || a.LastMessage.ID != "m1" {
		t.Errorf("lastMessage = %+v", a.LastMessage)
	}
}

func TestApplyMessageSelfSentNoUnread(t *testing.T) {
	s := newTestState()
	s.ReplaceRooms([]Room{room("A", 0, nil), room("B", 0, nil)})
	s.BeginSelect("A")
	s.CommitSelect("A", nil)

	s.ApplyMessage(msg("m1", "B", "me", 1))
	b, _ := s.Room("B")
	if b.UnreadCount != 0 {
		t.Errorf("unread = %d, want 0 for own message", b.UnreadCount)
	}
}

func TestApplyMessageDuplicate(t *testing.T) {
	s := newTestState()
	s.ReplaceRooms([]Room{room("A", 0, nil), room("B", 0, nil)})
	s.BeginSelect("A")
	s.CommitSelect("A", nil)

	m := msg("b1", "B", "peer-B", 1)
	s.ApplyMessage(m)
	s.ApplyMessage(m)
	b, _ := s.Room("B")
	if b.UnreadCount != 1 {
		t.Errorf("unread = %d, want 1 after duplicate", b.UnreadCount)
	}

	a := msg("a1", "A", "peer-A", 2)
	s.ApplyMessage(a)
	s.ApplyMessage(a)
	if v := s.View(nil, 0); len(v.Messages) != 1 {
		t.Errorf("messages = %d, want 1 after duplicate", len(v.Messages))
	}
}

func TestApplyMessageUnknownRoomDropped(t *testing.T) {
	s := newTestState()
	if s.ApplyMessage(msg("m1", "ghost", "x", 1)) {
		t.Error("message for unknown room should be dropped")
	}
}

func TestTombstoneDropsLateCreate(t *testing.T) {
	s := newTestState()
	s.ReplaceRooms([]Room{room("A", 0, nil)})
	s.BeginSelect("A")
	s.CommitSelect("A", nil)

	s.RemoveMessage("A", "m1")
	if s.ApplyMessage(msg("m1", "A", "peer-A", 1)) {
		t.Error("create after delete should be dropped")
	}
	if v := s.View(nil, 0); len(v.Messages) != 0 {
		t.Errorf("messages = %+v", v.Messages)
	}
	a, _ := s.Room("A")
	if a.UnreadCount != 0 || a.LastMessage != nil {
		t.Errorf("room touched by dropped message: %+v", a)
	}
}

func TestBufferedLiveMessagesMergeOnCommit(t *testing.T) {
	s := newTestState()
	s.ReplaceRooms([]Room{room("A", 2, nil)})
	s.BeginSelect("A")

	s.ApplyMessage(msg("live", "A", "peer-A", 9))

	s.CommitSelect("A", []Message{msg("h1", "A", "peer-A", 1), msg("h2", "A", "peer-A", 2)})
	v := s.View(nil, 0)
	if len(v.Messages) != 3 || v.Messages[2].ID != "live" {
		t.Fatalf("messages = %+v", v.Messages)
	}
	if v.Rooms[0].UnreadCount != 0 {
		t.Errorf("unread = %d", v.Rooms[0].UnreadCount)
	}
}

func TestCommitSelectStale(t *testing.T) {
	s := newTestState()
	s.ReplaceRooms([]Room{room("A", 0, nil), room("B", 0, nil)})
	s.BeginSelect("A")
	s.BeginSelect("B")
	if s.CommitSelect("A", nil) {
		t.Error("stale CommitSelect should return false")
	}
	if s.Selected() != "" {
		t.Errorf("selected = %q", s.Selected())
	}
}

func TestRemoveAndRestoreRoomKeepsPosition(t *testing.T) {
	s := newTestState()
	s.ReplaceRooms([]Room{
		room("A", 0, ptr(msg("a", "A", "x", 3))),
		room("B", 0, ptr(msg("b", "B", "x", 2))),
		room("C", 0, ptr(msg("c", "C", "x", 1))),
	})
	s.BeginSelect("B")
	s.CommitSelect("B", []Message{msg("b", "B", "x", 2)})

	rr := s.RemoveRoom("B")
	if s.HasRoom("B") || s.Selected() != "" {
		t.Fatal("room not removed or still selected")
	}
	s.RestoreRoom(rr)
	v := s.View(nil, 0)
	if v.Rooms[1].ID != "B" {
		t.Errorf("restored at %v", v.Rooms)
	}
	if v.SelectedRoom != "B" || len(v.Messages) != 1 {
		t.Errorf("selection not restored: %q %d", v.SelectedRoom, len(v.Messages))
	}
}

func TestSetReactionUpdatesAllCopies(t *testing.T) {
	s := newTestState()
	m := msg("m1", "A", "peer-A", 1)
	s.ReplaceRooms([]Room{room("A", 0, ptr(m))})
	s.BeginSelect("A")
	s.CommitSelect("A", []Message{m})

	prev, found := s.SetReaction("A", "m1", "👍", "me", true)
	if prev || !found {
		t.Fatalf("prev=%v found=%v", prev, found)
	}
	v := s.View(nil, 0)
	if !v.Messages[0].ReactedBy("👍", "me") || !v.Rooms[0].LastMessage.ReactedBy("👍", "me") {
		t.Error("reaction not applied to every copy")
	}
	prev, _ = s.SetReaction("A", "m1", "👍", "me", false)
	if !prev {
		t.Error("prev should be true on removal")
	}
	if v := s.View(nil, 0); len(v.Messages[0].Reactions) != 0 {
		t.Errorf("reactions = %v", v.Messages[0].Reactions)
	}
}

func TestViewIsImmutableSnapshot(t *testing.T) {
	s := newTestState()
	m := msg("m1", "A", "peer-A", 1)
	m.Reactions = map[string][]string{"🔥": {"x"}}
	s.ReplaceRooms([]Room{room("A", 0, ptr(m))})
	s.BeginSelect("A")
	s.CommitSelect("A", []Message{m})

	v := s.View(nil, 0)
	v.Messages[0].Reactions["🔥"][0] = "mutated"
	v.Rooms[0].UnreadCount = 99

	again := s.View(nil, 0)
	if again.Messages[0].Reactions["🔥"][0] != "x" || again.Rooms[0].UnreadCount != 0 {
		t.Error("snapshot shares memory with state")
	}
}

func TestPinnedSubset(t *testing.T) {
	s := newTestState()
	s.ReplaceRooms([]Room{room("A", 0, nil)})
	s.BeginSelect("A")
	p := msg("p", "A", "x", 1)
	p.Pinned = true
	s.CommitSelect("A", []Message{p, msg("q", "A", "x", 2)})
	v := s.View(nil, 0)
	if len(v.Pinned) != 1 || v.Pinned[0].ID != "p" {
		t.Errorf("pinned = %+v", v.Pinned)
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		name string
		room Room
		want string
	}{
		{"named", Room{ID: "r", Name: "Team"}, "Team"},
		{"direct", Room{ID: "r", Participants: []UserRef{{ID: "me"}, {ID: "u", Name: "Ana"}}}, "Ana"},
		{"group", Room{ID: "r", Participants: []UserRef{{ID: "me"}, {ID: "u", Name: "Ana"}, {ID: "v", Name: "Bo"}}}, "Ana, Bo"},
		{"alone", Room{ID: "r", Participants: []UserRef{{ID: "me"}}}, "r"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.room.DisplayName("me"); got != tt.want {
				t.Errorf("DisplayName = %q, want %q", got, tt.want)
			}
		})
	}
}
