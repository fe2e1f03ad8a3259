// Package hub is the relay side of the /ws live channel: it tracks each
// user's connections, stamps outbound frames with a per-connection sequence
// and handles send, typing and presence frames from clients.
package hub

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/notehub/nhchat/internal/relay/db"
	"github.com/notehub/nhchat/internal/relay/metrics"
	"github.com/notehub/nhchat/internal/wire"
)

const storeTimeout = 10 * time.Second

// Store is the persistence the hub needs for inbound frames.
type Store interface {
	MemberIDs(ctx context.Context, roomID string) ([]string, error)
	ContactIDs(ctx context.Context, userID string) ([]string, error)
	CreateMessage(ctx context.Context, nm db.NewMessage) (wire.Message, bool, error)
}

// Hub owns all live connections.
type Hub struct {
	store    Store
	metrics  *metrics.Metrics
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu     sync.RWMutex
	conns  map[string]map[*Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

// New creates a hub. m may be nil.
func New(store Store, m *metrics.Metrics, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		store:   store,
		metrics: m,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// clients authenticate with a token, not cookies
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: make(map[string]map[*Conn]struct{}),
	}
}

// Serve upgrades the request and runs the connection for user until either
// side closes it.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, user wire.UserRef) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("user_id", user.ID), zap.Error(err))
		return
	}
	c := newConn(h, ws, user)
	first, ok := h.register(c)
	if !ok {
		_ = ws.Close()
		return
	}
	h.metrics.WSConnected()
	h.logger.Info("live connection opened", zap.String("user_id", user.ID))
	if first {
		h.announce(user, "online")
	}

	go func() {
		defer h.wg.Done()
		c.writePump()
	}()
	c.readPump()

	last := h.unregister(c)
	h.metrics.WSDisconnected()
	h.logger.Info("live connection closed", zap.String("user_id", user.ID))
	if last {
		h.announce(user, "offline")
	}
}

func (h *Hub) register(c *Conn) (first, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false, false
	}
	set := h.conns[c.user.ID]
	if set == nil {
		set = make(map[*Conn]struct{})
		h.conns[c.user.ID] = set
	}
	set[c] = struct{}{}
	h.wg.Add(1)
	return len(set) == 1, true
}

func (h *Hub) unregister(c *Conn) (last bool) {
	c.close()
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[c.user.ID]
	if !ok {
		return false
	}
	if _, ok := set[c]; !ok {
		return false
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.conns, c.user.ID)
		return !h.closed
	}
	return false
}

// Online reports whether userID has at least one open connection.
func (h *Hub) Online(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID]) > 0
}

// connsOf snapshots the connections of the given users.
func (h *Hub) connsOf(userIDs []string) []*Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []*Conn
	for _, id := range userIDs {
		for c := range h.conns[id] {
			out = append(out, c)
		}
	}
	return out
}

// Publish delivers env to every connection of userIDs except skip.
func (h *Hub) Publish(userIDs []string, env wire.Envelope, skip *Conn) {
	for _, c := range h.connsOf(userIDs) {
		if c != skip {
			c.enqueue(env)
		}
	}
}

// PublishEvent wraps data in an envelope and publishes it to userIDs.
func (h *Hub) PublishEvent(userIDs []string, typ, roomID string, data any) {
	env, err := wire.NewEnvelope(typ, roomID, data)
	if err != nil {
		h.logger.Error("encode live event", zap.String("type", typ), zap.Error(err))
		return
	}
	h.Publish(userIDs, env, nil)
}

// PublishRoom publishes an event to all members of roomID.
func (h *Hub) PublishRoom(ctx context.Context, roomID, typ string, data any) error {
	members, err := h.store.MemberIDs(ctx, roomID)
	if err != nil {
		return err
	}
	h.PublishEvent(members, typ, roomID, data)
	return nil
}

func (h *Hub) announce(user wire.UserRef, presence string) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	contacts, err := h.store.ContactIDs(ctx, user.ID)
	if err != nil {
		h.logger.Warn("presence contacts", zap.String("user_id", user.ID), zap.Error(err))
		return
	}
	h.PublishEvent(contacts, wire.TypePresence, "", wire.PresenceData{User: user, Presence: presence})
}

// Close disconnects every client and waits for the write pumps to exit.
// Later connections are refused.
func (h *Hub) Close(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	var all []*Conn
	for _, set := range h.conns {
		for c := range set {
			all = append(all, c)
		}
	}
	h.mu.Unlock()

	for _, c := range all {
		c.close()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
