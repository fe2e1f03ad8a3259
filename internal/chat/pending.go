package chat

import (
	"time"

	"github.com/google/uuid"
)

// TxKind names the optimistic mutation a Tx stands for.
type TxKind string

const (
	TxSend          TxKind = "send"
	TxDeleteMessage TxKind = "delete_message"
	TxDeleteRoom    TxKind = "delete_room"
	TxReact         TxKind = "react"
	TxUnreact       TxKind = "unreact"
	TxPin           TxKind = "pin"
	TxUnpin         TxKind = "unpin"
)

// TxState is the lifecycle position of a Tx.
type TxState int

const (
	TxPending TxState = iota
	TxCommitted
	TxAborted
)

func (s TxState) String() string {
	switch s {
	case TxPending:
		return "pending"
	case TxCommitted:
		return "committed"
	case TxAborted:
		return "aborted"
	}
	return "unknown"
}

// Tx is an optimistic mutation already applied to State and awaiting the
// relay's verdict.
type Tx struct {
	ID        string
	Kind      TxKind
	RoomID    string
	MessageID string
	ClientID  string
	Emoji     string
	State     TxState
	Started   time.Time

	commit func(s *State, server *Message)
	undo   func(s *State)
}

// Ledger tracks pending transactions against a State.
type Ledger struct {
	state *State
	txs   map[string]*Tx
}

// NewLedger returns a ledger that mutates s.
func NewLedger(s *State) *Ledger {
	return &Ledger{state: s, txs: make(map[string]*Tx)}
}

// Pending returns the number of unresolved transactions.
func (l *Ledger) Pending() int { return len(l.txs) }

// Get returns a copy of the pending transaction with the given id.
func (l *Ledger) Get(id string) (Tx, bool) {
	tx, ok := l.txs[id]
	if !ok {
		return Tx{}, false
	}
	return *tx, true
}

func (l *Ledger) begin(tx *Tx) *Tx {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	tx.State = TxPending
	tx.Started = time.Now()
	l.txs[tx.ID] = tx
	return tx
}

// BeginSend appends the optimistic message m. The tx id is m.ClientID.
func (l *Ledger) BeginSend(m Message) *Tx {
	room, _ := l.state.Room(m.RoomID)
	prevLast := room.LastMessage
	l.state.ApplyMessage(m)
	return l.begin(&Tx{
		ID:        m.ClientID,
		Kind:      TxSend,
		RoomID:    m.RoomID,
		MessageID: m.ID,
		ClientID:  m.ClientID,
		commit: func(s *State, server *Message) {
			s.ConfirmSend(m.RoomID, m.ClientID, server)
		},
		undo: func(s *State) {
			s.FailSend(m.RoomID, m.ClientID, prevLast)
		},
	})
}

// BeginDeleteMessage removes a message. It returns false for an unknown room.
func (l *Ledger) BeginDeleteMessage(roomID, msgID string) (*Tx, bool) {
	if !l.state.HasRoom(roomID) {
		return nil, false
	}
	rm := l.state.RemoveMessage(roomID, msgID)
	return l.begin(&Tx{
		Kind:      TxDeleteMessage,
		RoomID:    roomID,
		MessageID: msgID,
		undo: func(s *State) {
			if rm.found {
				s.RestoreMessage(roomID, rm)
			} else {
				s.untombstone(msgID)
			}
		},
	}), true
}

// BeginDeleteRoom removes a room. It returns false for an unknown room.
func (l *Ledger) BeginDeleteRoom(roomID string) (*Tx, bool) {
	rr := l.state.RemoveRoom(roomID)
	if !rr.found {
		return nil, false
	}
	return l.begin(&Tx{
		Kind:   TxDeleteRoom,
		RoomID: roomID,
		undo: func(s *State) {
			s.RestoreRoom(rr)
		},
	}), true
}

// BeginReaction adds (on) or removes the user's reaction.
func (l *Ledger) BeginReaction(roomID, msgID, emoji string, on bool) (*Tx, bool) {
	if !l.state.HasRoom(roomID) {
		return nil, false
	}
	userID := l.state.Self().ID
	prev, found := l.state.SetReaction(roomID, msgID, emoji, userID, on)
	kind := TxReact
	if !on {
		kind = TxUnreact
	}
	return l.begin(&Tx{
		Kind:      kind,
		RoomID:    roomID,
		MessageID: msgID,
		Emoji:     emoji,
		undo: func(s *State) {
			if found {
				s.SetReaction(roomID, msgID, emoji, userID, prev)
			}
		},
	}), true
}

// BeginPin pins or unpins a message.
func (l *Ledger) BeginPin(roomID, msgID string, pinned bool) (*Tx, bool) {
	if !l.state.HasRoom(roomID) {
		return nil, false
	}
	prev, found := l.state.SetPinned(roomID, msgID, pinned)
	kind := TxPin
	if !pinned {
		kind = TxUnpin
	}
	return l.begin(&Tx{
		Kind:      kind,
		RoomID:    roomID,
		MessageID: msgID,
		undo: func(s *State) {
			if found {
				s.SetPinned(roomID, msgID, prev)
			}
		},
	}), true
}

// Commit finalizes a pending tx. server carries the relay's copy for sends.
// Unknown or already finished transactions return false.
func (l *Ledger) Commit(id string, server *Message) bool {
	tx, ok := l.txs[id]
	if !ok {
		return false
	}
	delete(l.txs, id)
	tx.State = TxCommitted
	if tx.commit != nil {
		tx.commit(l.state, server)
	}
	return true
}

// Abort compensates a pending tx. Unknown or finished transactions return false.
func (l *Ledger) Abort(id string) bool {
	tx, ok := l.txs[id]
	if !ok {
		return false
	}
	delete(l.txs, id)
	tx.State = TxAborted
	if tx.undo != nil {
		tx.undo(l.state)
	}
	return true
}
