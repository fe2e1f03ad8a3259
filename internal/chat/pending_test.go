package chat

import "testing"

func selectedState(t *testing.T, msgs ...Message) (*State, *Ledger) {
	t.Helper()
	s := newTestState()
	var last *Message
	if len(msgs) > 0 {
		last = ptr(msgs[len(msgs)-1])
	}
	s.ReplaceRooms([]Room{room("A", 0, last), room("B", 0, nil)})
	s.BeginSelect("A")
	s.CommitSelect("A", msgs)
	return s, NewLedger(s)
}

func TestSendCommitReplacesPlaceholder(t *testing.T) {
	s, l := selectedState(t, msg("m1", "A", "peer-A", 1))

	opt := Message{ID: PendingID("c1"), ClientID: "c1", RoomID: "A", Sender: s.Self(), Text: "hi", CreatedAt: at(5), Status: StatusSending}
	tx := l.BeginSend(opt)
	if tx.ID != "c1" || tx.Kind != TxSend {
		t.Fatalf("tx = %+v", tx)
	}
	v := s.View(nil, l.Pending())
	if len(v.Messages) != 2 || !v.Messages[1].IsPending() || v.PendingWrites != 1 {
		t.Fatalf("optimistic message missing: %+v", v.Messages)
	}

	server := msg("srv-9", "A", "me", 6)
	if !l.Commit("c1", &server) {
		t.Fatal("Commit returned false")
	}
	v = s.View(nil, l.Pending())
	if len(v.Messages) != 2 || v.Messages[1].ID != "srv-9" || v.Messages[1].Status != StatusSent {
		t.Errorf("messages after commit = %+v", v.Messages)
	}
	if v.Rooms[0].LastMessage.ID != "srv-9" {
		t.Errorf("lastMessage = %+v", v.Rooms[0].LastMessage)
	}
	if l.Commit("c1", &server) || l.Abort("c1") {
		t.Error("finished tx should not resolve twice")
	}
}

func TestSendAbortMarksFailedAndRestoresLastMessage(t *testing.T) {
	s, l := selectedState(t, msg("m1", "A", "peer-A", 1))

	l.BeginSend(Message{ID: PendingID("c1"), ClientID: "c1", RoomID: "A", Sender: s.Self(), Text: "hi", CreatedAt: at(5), Status: StatusSending})
	if r, _ := s.Room("A"); r.LastMessage.ClientID != "c1" {
		t.Fatalf("optimistic send should become lastMessage: %+v", r.LastMessage)
	}

	if !l.Abort("c1") {
		t.Fatal("Abort returned false")
	}
	v := s.View(nil, 0)
	if v.Messages[1].Status != StatusFailed {
		t.Errorf("status = %s, want failed", v.Messages[1].Status)
	}
	if r, _ := s.Room("A"); r.LastMessage == nil || r.LastMessage.ID != "m1" {
		t.Errorf("lastMessage = %+v, want m1", r.LastMessage)
	}
}

func TestDeleteMessageAbortRestoresAtIndex(t *testing.T) {
	s, l := selectedState(t, msg("m1", "A", "x", 1), msg("m2", "A", "x", 2), msg("m3", "A", "x", 3))

	tx, ok := l.BeginDeleteMessage("A", "m2")
	if !ok {
		t.Fatal("begin failed")
	}
	if _, found := s.Message("m2"); found {
		t.Fatal("message not removed optimistically")
	}
	l.Abort(tx.ID)
	v := s.View(nil, 0)
	if len(v.Messages) != 3 || v.Messages[1].ID != "m2" {
		t.Errorf("messages = %+v", v.Messages)
	}
	if !s.ApplyMessage(msg("m2", "A", "x", 2)) {
		t.Error("tombstone not cleared by abort")
	}
}

func TestDeleteLastMessageAbortRestoresLastMessage(t *testing.T) {
	s, l := selectedState(t, msg("m1", "A", "x", 1), msg("m2", "A", "x", 2))

	tx, _ := l.BeginDeleteMessage("A", "m2")
	if r, _ := s.Room("A"); r.LastMessage == nil || r.LastMessage.ID != "m1" {
		t.Fatalf("lastMessage after delete = %+v", r.LastMessage)
	}
	l.Abort(tx.ID)
	if r, _ := s.Room("A"); r.LastMessage == nil || r.LastMessage.ID != "m2" {
		t.Errorf("lastMessage after abort = %+v", r.LastMessage)
	}
}

func TestDeleteMessageCommitKeepsTombstone(t *testing.T) {
	s, l := selectedState(t, msg("m1", "A", "x", 1))
	tx, _ := l.BeginDeleteMessage("A", "m1")
	l.Commit(tx.ID, nil)
	if s.ApplyMessage(msg("m1", "A", "x", 1)) {
		t.Error("deleted message came back")
	}
}

func TestBeginOnUnknownRoom(t *testing.T) {
	_, l := selectedState(t)
	if _, ok := l.BeginDeleteMessage("ghost", "m"); ok {
		t.Error("BeginDeleteMessage on unknown room should fail")
	}
	if _, ok := l.BeginDeleteRoom("ghost"); ok {
		t.Error("BeginDeleteRoom on unknown room should fail")
	}
	if _, ok := l.BeginReaction("ghost", "m", "x", true); ok {
		t.Error("BeginReaction on unknown room should fail")
	}
	if _, ok := l.BeginPin("ghost", "m", true); ok {
		t.Error("BeginPin on unknown room should fail")
	}
}

func TestReactionAndPinAbortRestorePreviousValue(t *testing.T) {
	m := msg("m1", "A", "x", 1)
	m.Reactions = map[string][]string{"👍": {"me"}}
	m.Pinned = true
	s, l := selectedState(t, m)

	tx, _ := l.BeginReaction("A", "m1", "👍", false)
	if got, _ := s.Message("m1"); got.ReactedBy("👍", "me") {
		t.Fatal("reaction not removed optimistically")
	}
	l.Abort(tx.ID)
	if got, _ := s.Message("m1"); !got.ReactedBy("👍", "me") {
		t.Error("reaction not restored")
	}

	tx, _ = l.BeginPin("A", "m1", false)
	if got, _ := s.Message("m1"); got.Pinned {
		t.Fatal("not unpinned optimistically")
	}
	l.Abort(tx.ID)
	if got, _ := s.Message("m1"); !got.Pinned {
		t.Error("pin not restored")
	}
	if l.Pending() != 0 {
		t.Errorf("pending = %d", l.Pending())
	}
}

func TestDeleteRoomAbort(t *testing.T) {
	s, l := selectedState(t)
	tx, ok := l.BeginDeleteRoom("B")
	if !ok || s.HasRoom("B") {
		t.Fatal("room not removed")
	}
	l.Abort(tx.ID)
	if !s.HasRoom("B") {
		t.Error("room not restored")
	}
}
