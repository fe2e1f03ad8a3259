package hub

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/notehub/nhchat/internal/relay/db"
	"github.com/notehub/nhchat/internal/wire"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxFrame   = 1 << 20
	sendBuffer = 256
)

var presenceStates = []string{"online", "away", "busy", "offline"}

// Conn is one client connection. Outbound frames get consecutive sequence
// numbers starting at 1.
type Conn struct {
	hub  *Hub
	ws   *websocket.Conn
	user wire.UserRef

	mu   sync.Mutex
	seq  uint64
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newConn(h *Hub, ws *websocket.Conn, user wire.UserRef) *Conn {
	return &Conn{
		hub:  h,
		ws:   ws,
		user: user,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

// enqueue stamps env and queues it. A client that cannot keep up is
// disconnected; it resynchronizes on reconnect.
func (c *Conn) enqueue(env wire.Envelope) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.done:
		return false
	default:
	}
	c.seq++
	env.Seq = c.seq
	raw, err := json.Marshal(env)
	if err != nil {
		c.hub.logger.Error("encode live frame", zap.String("type", env.Type), zap.Error(err))
		return false
	}
	select {
	case c.send <- raw:
		c.hub.metrics.WSEvent("out", env.Type)
		return true
	default:
		c.hub.logger.Warn("live client too slow, disconnecting", zap.String("user_id", c.user.ID))
		c.close()
		return false
	}
}

func (c *Conn) reply(typ, roomID string, data any) {
	env, err := wire.NewEnvelope(typ, roomID, data)
	if err != nil {
		c.hub.logger.Error("encode live reply", zap.String("type", typ), zap.Error(err))
		return
	}
	c.enqueue(env)
}

func (c *Conn) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(time.Second))
		_ = c.ws.Close()
	})
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()
	for {
		select {
		case raw := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Conn) readPump() {
	c.ws.SetReadLimit(maxFrame)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("live read ended", zap.String("user_id", c.user.ID), zap.Error(err))
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))

		var env wire.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.hub.logger.Warn("malformed client frame", zap.String("user_id", c.user.ID), zap.Error(err))
			continue
		}
		c.hub.metrics.WSEvent("in", env.Type)
		c.handle(env)
	}
}

func (c *Conn) handle(env wire.Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	switch env.Type {
	case wire.TypeSend:
		c.handleSend(ctx, env)
	case wire.TypeTyping:
		c.handleTyping(ctx, env)
	case wire.TypePresence:
		var d wire.PresenceData
		if err := json.Unmarshal(env.Data, &d); err != nil || !slices.Contains(presenceStates, d.Presence) {
			c.hub.logger.Debug("bad presence frame", zap.String("user_id", c.user.ID))
			return
		}
		c.hub.announce(c.user, d.Presence)
	default:
		c.hub.logger.Debug("unknown client frame", zap.String("type", env.Type))
	}
}

func (c *Conn) handleSend(ctx context.Context, env wire.Envelope) {
	var d wire.SendData
	if err := json.Unmarshal(env.Data, &d); err != nil {
		c.reply(wire.TypeNack, env.RoomID, wire.NackData{Error: "malformed send frame"})
		return
	}
	msg, created, err := c.hub.store.CreateMessage(ctx, db.NewMessage{
		RoomID:   env.RoomID,
		SenderID: c.user.ID,
		ClientID: d.ClientID,
		Text:     d.Text,
		PhotoURL: d.PhotoURL,
	})
	if err != nil {
		c.reply(wire.TypeNack, env.RoomID, wire.NackData{ClientID: d.ClientID, Error: c.sendError(err)})
		return
	}
	c.reply(wire.TypeAck, env.RoomID, wire.AckData{ClientID: d.ClientID, Message: &msg})
	if !created {
		return
	}
	c.hub.metrics.MessageCreated()

	members, err := c.hub.store.MemberIDs(ctx, env.RoomID)
	if err != nil {
		c.hub.logger.Warn("fan out message", zap.String("room_id", env.RoomID), zap.Error(err))
		return
	}
	out, err := wire.NewEnvelope(wire.TypeMessageCreated, env.RoomID, msg)
	if err != nil {
		return
	}
	c.hub.Publish(members, out, c)
}

func (c *Conn) sendError(err error) string {
	switch {
	case errors.Is(err, db.ErrNotFound):
		return "room not found"
	case errors.Is(err, db.ErrInvalid):
		return "message is empty"
	}
	c.hub.logger.Error("store message", zap.String("user_id", c.user.ID), zap.Error(err))
	return "internal error"
}

func (c *Conn) handleTyping(ctx context.Context, env wire.Envelope) {
	var d wire.TypingData
	if err := json.Unmarshal(env.Data, &d); err != nil {
		return
	}
	members, err := c.hub.store.MemberIDs(ctx, env.RoomID)
	if err != nil || !slices.Contains(members, c.user.ID) {
		return
	}
	others := slices.DeleteFunc(members, func(id string) bool { return id == c.user.ID })
	c.hub.PublishEvent(others, wire.TypeTyping, env.RoomID, wire.TypingData{User: c.user, Typing: d.Typing})
}
