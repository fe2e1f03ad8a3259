package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/notehub/nhchat/internal/bus"
	"github.com/notehub/nhchat/internal/status"
	"github.com/notehub/nhchat/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// DefaultHistoryLimit is the number of messages fetched when a room is selected.
const DefaultHistoryLimit = 50

// Upstream is the relay as seen by the engine.
type Upstream interface {
	Me(ctx context.Context) (UserRef, error)
	ListRooms(ctx context.Context) ([]Room, error)
	CreateRoom(ctx context.Context, name string, participantIDs []string) (Room, error)
	DeleteRoom(ctx context.Context, roomID string) error
	ListMessages(ctx context.Context, roomID string, limit int) ([]Message, error)
	DeleteMessage(ctx context.Context, roomID, msgID string) error
	AddReaction(ctx context.Context, roomID, msgID, emoji string) error
	RemoveReaction(ctx context.Context, roomID, msgID, emoji string) error
	Pin(ctx context.Context, roomID, msgID string) error
	Unpin(ctx context.Context, roomID, msgID string) error
	MarkRead(ctx context.Context, roomID string) error
	Search(ctx context.Context, query string) ([]Message, error)
	SendTyping(roomID string, typing bool) error
	SendPresence(p Presence) error
}

// Outbox queues sends for delivery over the live channel.
type Outbox interface {
	Enqueue(clientID, roomID, text, photoURL string) error
	MarkSent(clientID, serverMsgID string) error
	MarkFailed(clientID, reason string) error
}

// Checkpoints persists small pieces of engine state across restarts.
type Checkpoints interface {
	GetCheckpoint(key string) (string, bool, error)
	SetCheckpoint(key, value string) error
}

// Options tunes the engine.
type Options struct {
	MarkReadRemote bool
	TypingTTL      time.Duration
	GapTimeout     time.Duration
	HistoryLimit   int
	// Status, when set, is moved to Ready or Degraded after each resync.
	Status *status.Machine
}

// Engine serializes every change to the chat view and publishes
// view.changed after each one.
type Engine struct {
	mu      sync.Mutex
	state   *State
	ledger  *Ledger
	typing  *Typing
	reorder *Reorderer
	flush   *time.Timer

	selGen    uint64
	selCancel context.CancelFunc

	up     Upstream
	outbox Outbox
	cp     Checkpoints
	bus    *bus.Bus
	logger *zap.Logger
	opts   Options
	rooms  singleflight.Group
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine creates an engine. cp may be nil.
func NewEngine(up Upstream, ob Outbox, cp Checkpoints, b *bus.Bus, logger *zap.Logger, opts Options) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	s := NewState()
	e := &Engine{
		state:   s,
		ledger:  NewLedger(s),
		reorder: NewReorderer(opts.GapTimeout),
		up:      up,
		outbox:  ob,
		cp:      cp,
		bus:     b,
		logger:  logger,
		opts:    opts,
	}
	e.typing = NewTyping(opts.TypingTTL, func(roomID string) {
		e.publish("typing expired")
	})
	return e
}

// Start subscribes to live and outbox events on the bus.
func (e *Engine) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.ctx, e.cancel = ctx, cancel
	e.mu.Unlock()
	live, unsubLive := e.bus.Subscribe("live.", 512)
	ob, unsubOutbox := e.bus.Subscribe("outbox.", 64)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer unsubLive()
		defer unsubOutbox()
		for {
			select {
			case evt := <-live:
				e.handleBusEvent(ctx, evt)
			case evt := <-ob:
				e.handleBusEvent(ctx, evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// loopContext returns the context background work runs under. It is
// canceled by Stop.
func (e *Engine) loopContext() context.Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctx == nil {
		return context.Background()
	}
	return e.ctx
}

// Stop stops the event loop and all timers.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	e.wg.Wait()
	e.typing.Stop()
	e.mu.Lock()
	if e.flush != nil {
		e.flush.Stop()
		e.flush = nil
	}
	if e.selCancel != nil {
		e.selCancel()
		e.selCancel = nil
	}
	e.mu.Unlock()
}

func (e *Engine) handleBusEvent(ctx context.Context, evt bus.Event) {
	switch evt.Kind {
	case bus.KindLiveEvent:
		if le, ok := evt.Payload.(LiveEvent); ok {
			e.HandleLive(le)
		}
	case bus.KindLiveConnected:
		e.resync(ctx)
	case bus.KindLiveDisconnected:
		e.typing.Clear()
		e.publish("live disconnected")
	case bus.KindOutboxFailed:
		if f, ok := evt.Payload.(SendFailure); ok {
			e.failSend(f.ClientID, f.Reason)
		}
	}
}

// resync realigns with the relay after the live channel (re)connects.
// Events from the new connection restart at sequence 1.
func (e *Engine) resync(ctx context.Context) {
	e.mu.Lock()
	e.reorder.Reset()
	selected := e.state.Selected()
	bootstrapped := e.state.Self().ID != ""
	e.mu.Unlock()

	var err error
	if !bootstrapped {
		err = e.Bootstrap(ctx)
	} else if err = e.LoadRooms(ctx); err == nil && selected != "" {
		if err = e.SelectRoom(ctx, selected); errors.Is(err, ErrSelectSuperseded) {
			err = nil
		}
	}
	if err != nil {
		e.logger.Warn("resync failed", zap.Error(err))
	}
	e.reportSync(err)
}

func (e *Engine) reportSync(err error) {
	m := e.opts.Status
	if m == nil {
		return
	}
	if err != nil {
		_ = m.Transition(status.Degraded)
		return
	}
	switch m.Current() {
	case status.Loading, status.Degraded:
		_ = m.Transition(status.Ready)
	}
}

// Snapshot returns the current view.
func (e *Engine) Snapshot() View {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.View(e.typing.Names(e.state.Selected()), e.ledger.Pending())
}

func (e *Engine) publish(reason string) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(bus.Event{Kind: bus.KindViewChanged, Payload: ViewChange{Reason: reason}})
}

// fail records err as a banner and returns it classified.
func (e *Engine) fail(kind BannerKind, op string, err error) error {
	ce := classify(op, err)
	e.mu.Lock()
	e.state.SetBanner(kind, op, ce)
	e.mu.Unlock()
	e.logger.Warn("chat operation failed", zap.String("op", op), zap.Stringer("kind", ce.Kind), zap.Error(err))
	e.publish(op + " failed")
	return ce
}

// Bootstrap fetches the user profile and room list in parallel, then
// reselects the room that was open before the last shutdown.
func (e *Engine) Bootstrap(ctx context.Context) error {
	var (
		self  UserRef
		rooms []Room
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		self, err = e.up.Me(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		rooms, err = e.fetchRooms(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return e.fail(BannerLoad, "bootstrap", err)
	}

	e.mu.Lock()
	e.state.SetSelf(self)
	e.state.ReplaceRooms(rooms)
	e.state.ClearBannerFor("bootstrap")
	hasSelection := e.state.Selected() != ""
	e.mu.Unlock()
	e.publish("bootstrap")

	if hasSelection || e.cp == nil {
		return nil
	}
	last, ok, err := e.cp.GetCheckpoint(store.CheckpointSelectedRoom)
	if err != nil {
		e.logger.Warn("read selected room checkpoint", zap.Error(err))
		return nil
	}
	e.mu.Lock()
	known := ok && e.state.HasRoom(last)
	e.mu.Unlock()
	if known {
		if err := e.SelectRoom(ctx, last); err != nil && !errors.Is(err, ErrSelectSuperseded) {
			return err
		}
	}
	return nil
}

func (e *Engine) fetchRooms(ctx context.Context) ([]Room, error) {
	v, err, _ := e.rooms.Do("rooms", func() (any, error) {
		return e.up.ListRooms(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.([]Room), nil
}

// LoadRooms refreshes the room list. Concurrent calls share one request.
// On failure the previous list is kept and a load banner is raised.
func (e *Engine) LoadRooms(ctx context.Context) error {
	rooms, err := e.fetchRooms(ctx)
	if err != nil {
		return e.fail(BannerLoad, "load rooms", err)
	}
	e.mu.Lock()
	e.state.ReplaceRooms(rooms)
	e.state.ClearBannerFor("load rooms")
	e.mu.Unlock()
	e.publish("rooms loaded")
	if m := e.opts.Status; m != nil && m.Current() == status.Degraded {
		_ = m.Transition(status.Ready)
	}
	return nil
}

// SelectRoom opens a room and loads its history. A newer selection cancels
// this one; a superseded call returns ErrSelectSuperseded and changes nothing.
func (e *Engine) SelectRoom(ctx context.Context, roomID string) error {
	e.mu.Lock()
	if !e.state.HasRoom(roomID) {
		e.mu.Unlock()
		return classify("select room", ErrUnknownRoom)
	}
	if e.selCancel != nil {
		e.selCancel()
	}
	e.selGen++
	gen := e.selGen
	sctx, cancel := context.WithCancel(ctx)
	e.selCancel = cancel
	e.state.BeginSelect(roomID)
	e.mu.Unlock()
	e.publish("select room")

	msgs, err := e.up.ListMessages(sctx, roomID, e.opts.HistoryLimit)

	e.mu.Lock()
	if gen != e.selGen {
		e.mu.Unlock()
		cancel()
		return ErrSelectSuperseded
	}
	e.selCancel = nil
	cancel()
	if err != nil {
		e.state.CancelSelect(roomID)
		e.mu.Unlock()
		return e.fail(BannerLoad, "select room", err)
	}
	if !e.state.CommitSelect(roomID, msgs) {
		e.mu.Unlock()
		return e.fail(BannerLoad, "select room", ErrUnknownRoom)
	}
	e.state.ClearBannerFor("select room")
	e.mu.Unlock()
	e.publish("room selected")

	if e.cp != nil {
		if err := e.cp.SetCheckpoint(store.CheckpointSelectedRoom, roomID); err != nil {
			e.logger.Warn("save selected room checkpoint", zap.Error(err))
		}
	}
	if e.opts.MarkReadRemote {
		if err := e.up.MarkRead(ctx, roomID); err != nil {
			e.logger.Debug("mark read failed", zap.String("room_id", roomID), zap.Error(err))
		}
	}
	return nil
}

// SendMessage posts text and/or a photo to the selected room. Blank input
// returns ErrEmptyMessage without touching state or the network.
func (e *Engine) SendMessage(ctx context.Context, text, photoURL string) (Message, error) {
	text = strings.TrimSpace(text)
	photoURL = strings.TrimSpace(photoURL)
	if text == "" && photoURL == "" {
		return Message{}, classify("send message", ErrEmptyMessage)
	}

	e.mu.Lock()
	roomID := e.state.Selected()
	if roomID == "" {
		e.mu.Unlock()
		return Message{}, classify("send message", ErrNoRoomSelected)
	}
	clientID := uuid.NewString()
	msg := Message{
		ID:        PendingID(clientID),
		ClientID:  clientID,
		RoomID:    roomID,
		Sender:    e.state.Self(),
		Text:      text,
		PhotoURL:  photoURL,
		CreatedAt: time.Now(),
		Status:    StatusSending,
	}
	e.ledger.BeginSend(msg)
	e.mu.Unlock()
	e.publish("message queued")

	if err := e.outbox.Enqueue(clientID, roomID, text, photoURL); err != nil {
		e.mu.Lock()
		e.ledger.Abort(clientID)
		e.mu.Unlock()
		return msg, e.fail(BannerAction, "send message", err)
	}
	return msg, nil
}

func (e *Engine) failSend(clientID, reason string) {
	e.mu.Lock()
	tx, ok := e.ledger.Get(clientID)
	aborted := ok && tx.Kind == TxSend && e.ledger.Abort(clientID)
	if aborted {
		e.state.SetBanner(BannerAction, "send message", errors.New(reason))
	}
	e.mu.Unlock()
	if aborted {
		e.logger.Warn("send failed", zap.String("client_id", clientID), zap.String("reason", reason))
		e.publish("send failed")
	}
}

// SetTyping sends the typing signal for the selected room. Without a
// selection it does nothing.
func (e *Engine) SetTyping(_ context.Context, typing bool) error {
	e.mu.Lock()
	roomID := e.state.Selected()
	e.mu.Unlock()
	if roomID == "" {
		return nil
	}
	if err := e.up.SendTyping(roomID, typing); err != nil {
		return classify("set typing", err)
	}
	return nil
}

// SetPresence broadcasts the user's own availability.
func (e *Engine) SetPresence(_ context.Context, p Presence) error {
	if !p.Valid() {
		return classify("set presence", errors.New("invalid presence "+string(p)))
	}
	if err := e.up.SendPresence(p); err != nil {
		return classify("set presence", err)
	}
	return nil
}

// mutate runs an optimistic change: begin applies it locally, call asks the
// relay, and the tx is committed or aborted by the outcome.
func (e *Engine) mutate(ctx context.Context, op string, begin func() (*Tx, bool), call func(context.Context) error) error {
	e.mu.Lock()
	tx, ok := begin()
	e.mu.Unlock()
	if !ok {
		return classify(op, ErrUnknownRoom)
	}
	e.publish(op)

	if err := call(ctx); err != nil {
		e.mu.Lock()
		e.ledger.Abort(tx.ID)
		e.mu.Unlock()
		return e.fail(BannerAction, op, err)
	}
	e.mu.Lock()
	e.ledger.Commit(tx.ID, nil)
	e.mu.Unlock()
	e.publish(op + " committed")
	return nil
}

func (e *Engine) roomOrSelected(roomID string) string {
	if roomID != "" {
		return roomID
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Selected()
}

// DeleteMessage removes a message immediately and restores it if the relay refuses.
func (e *Engine) DeleteMessage(ctx context.Context, roomID, msgID string) error {
	roomID = e.roomOrSelected(roomID)
	return e.mutate(ctx, "delete message",
		func() (*Tx, bool) { return e.ledger.BeginDeleteMessage(roomID, msgID) },
		func(ctx context.Context) error { return e.up.DeleteMessage(ctx, roomID, msgID) })
}

// DeleteRoom removes a room immediately and restores it if the relay refuses.
func (e *Engine) DeleteRoom(ctx context.Context, roomID string) error {
	return e.mutate(ctx, "delete room",
		func() (*Tx, bool) { return e.ledger.BeginDeleteRoom(roomID) },
		func(ctx context.Context) error { return e.up.DeleteRoom(ctx, roomID) })
}

func (e *Engine) AddReaction(ctx context.Context, roomID, msgID, emoji string) error {
	roomID = e.roomOrSelected(roomID)
	return e.mutate(ctx, "add reaction",
		func() (*Tx, bool) { return e.ledger.BeginReaction(roomID, msgID, emoji, true) },
		func(ctx context.Context) error { return e.up.AddReaction(ctx, roomID, msgID, emoji) })
}

func (e *Engine) RemoveReaction(ctx context.Context, roomID, msgID, emoji string) error {
	roomID = e.roomOrSelected(roomID)
	return e.mutate(ctx, "remove reaction",
		func() (*Tx, bool) { return e.ledger.BeginReaction(roomID, msgID, emoji, false) },
		func(ctx context.Context) error { return e.up.RemoveReaction(ctx, roomID, msgID, emoji) })
}

func (e *Engine) PinMessage(ctx context.Context, roomID, msgID string) error {
	roomID = e.roomOrSelected(roomID)
	return e.mutate(ctx, "pin message",
		func() (*Tx, bool) { return e.ledger.BeginPin(roomID, msgID, true) },
		func(ctx context.Context) error { return e.up.Pin(ctx, roomID, msgID) })
}

func (e *Engine) UnpinMessage(ctx context.Context, roomID, msgID string) error {
	roomID = e.roomOrSelected(roomID)
	return e.mutate(ctx, "unpin message",
		func() (*Tx, bool) { return e.ledger.BeginPin(roomID, msgID, false) },
		func(ctx context.Context) error { return e.up.Unpin(ctx, roomID, msgID) })
}

// CreateRoom creates a room on the relay and adds it to the list.
func (e *Engine) CreateRoom(ctx context.Context, name string, participantIDs []string) (Room, error) {
	room, err := e.up.CreateRoom(ctx, strings.TrimSpace(name), participantIDs)
	if err != nil {
		return Room{}, e.fail(BannerAction, "create room", err)
	}
	e.mu.Lock()
	e.state.UpsertRoom(room)
	e.mu.Unlock()
	e.publish("room created")
	return room, nil
}

// Search overlays matching messages on the view. A blank query clears it.
func (e *Engine) Search(ctx context.Context, query string) error {
	query = strings.TrimSpace(query)
	if query == "" {
		e.ClearSearch()
		return nil
	}
	msgs, err := e.up.Search(ctx, query)
	if err != nil {
		return e.fail(BannerLoad, "search", err)
	}
	e.mu.Lock()
	e.state.SetSearch(query, msgs)
	e.mu.Unlock()
	e.publish("search")
	return nil
}

func (e *Engine) ClearSearch() {
	e.mu.Lock()
	e.state.ClearSearch()
	e.mu.Unlock()
	e.publish("search cleared")
}

func (e *Engine) DismissBanner() {
	e.mu.Lock()
	e.state.DismissBanner()
	e.mu.Unlock()
	e.publish("banner dismissed")
}

// Reset drops all state, e.g. after logout.
func (e *Engine) Reset() {
	e.mu.Lock()
	if e.selCancel != nil {
		e.selCancel()
		e.selCancel = nil
	}
	e.selGen++
	e.state = NewState()
	e.ledger = NewLedger(e.state)
	e.reorder.Reset()
	e.mu.Unlock()
	e.typing.Clear()
	e.publish("reset")
}

// HandleLive feeds one live event through the reorder buffer and applies
// whatever is ready.
func (e *Engine) HandleLive(evt LiveEvent) {
	e.mu.Lock()
	ready := e.reorder.Push(evt)
	reload := e.applyAll(ready)
	e.armFlush()
	e.mu.Unlock()

	if len(ready) > 0 {
		e.publish(string(ready[len(ready)-1].Type))
	}
	if reload {
		ctx := e.loopContext()
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			if err := e.LoadRooms(ctx); err != nil {
				e.logger.Debug("reload rooms after unknown room event", zap.Error(err))
			}
		}()
	}
}

func (e *Engine) armFlush() {
	if e.reorder.Pending() == 0 || e.flush != nil {
		return
	}
	e.flush = time.AfterFunc(e.reorder.gap, e.flushReorder)
}

func (e *Engine) flushReorder() {
	e.mu.Lock()
	e.flush = nil
	ready := e.reorder.Flush()
	e.applyAll(ready)
	e.armFlush()
	e.mu.Unlock()
	if len(ready) > 0 {
		e.publish("gap skipped")
	}
}

// applyAll applies ready events and reports whether any referenced a room
// missing from the list.
func (e *Engine) applyAll(events []LiveEvent) bool {
	reload := false
	for _, evt := range events {
		if e.apply(evt) {
			reload = true
		}
	}
	return reload
}

func (e *Engine) apply(evt LiveEvent) (unknownRoom bool) {
	s := e.state
	switch evt.Type {
	case EventMessageCreated:
		if evt.Message == nil {
			return false
		}
		m := *evt.Message
		if m.RoomID == "" {
			m.RoomID = evt.RoomID
		}
		if !s.HasRoom(m.RoomID) {
			return true
		}
		e.typing.Set(m.RoomID, m.Sender, false)
		s.ApplyMessage(m)
	case EventMessageDeleted:
		s.RemoveMessage(evt.RoomID, evt.MessageID)
	case EventReactionAdded, EventReactionRemoved:
		s.SetReaction(evt.RoomID, evt.MessageID, evt.Emoji, evt.User.ID, evt.Type == EventReactionAdded)
	case EventMessagePinned, EventMessageUnpinned:
		s.SetPinned(evt.RoomID, evt.MessageID, evt.Type == EventMessagePinned)
	case EventTyping:
		if evt.User.ID != s.Self().ID {
			e.typing.Set(evt.RoomID, evt.User, evt.Typing)
		}
	case EventPresence:
		s.SetPresence(evt.User.ID, evt.Presence)
	case EventRoomCreated, EventRoomUpdated:
		if evt.Room != nil {
			s.UpsertRoom(*evt.Room)
		}
	case EventRoomDeleted:
		s.RemoveRoom(evt.RoomID)
	case EventAck:
		if !e.ledger.Commit(evt.ClientID, evt.Message) && evt.Message != nil {
			// Late ack for a send that already timed out.
			s.ConfirmSend(evt.RoomID, evt.ClientID, evt.Message)
		}
		if e.outbox != nil {
			serverID := ""
			if evt.Message != nil {
				serverID = evt.Message.ID
			}
			if err := e.outbox.MarkSent(evt.ClientID, serverID); err != nil {
				e.logger.Warn("mark outbox sent", zap.String("client_id", evt.ClientID), zap.Error(err))
			}
		}
	case EventNack:
		if e.ledger.Abort(evt.ClientID) {
			s.SetBanner(BannerAction, "send message", errors.New(evt.Error))
		}
		if e.outbox != nil {
			if err := e.outbox.MarkFailed(evt.ClientID, evt.Error); err != nil {
				e.logger.Warn("mark outbox failed", zap.String("client_id", evt.ClientID), zap.Error(err))
			}
		}
	default:
		e.logger.Debug("ignoring live event", zap.String("type", string(evt.Type)))
	}
	return false
}
