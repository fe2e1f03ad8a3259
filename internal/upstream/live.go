package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/notehub/nhchat/internal/bus"
	"github.com/notehub/nhchat/internal/chat"
	"github.com/notehub/nhchat/internal/status"
	"github.com/notehub/nhchat/internal/wire"
	"go.uber.org/zap"
)

const (
	// DefaultReconnectDelay is the fixed pause between live-channel dial attempts.
	DefaultReconnectDelay = 2 * time.Second

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxFrame   = 1 << 20
)

// Live maintains the WebSocket live channel. Decoded events are published on
// the bus as live.event; connection changes as live.connected and
// live.disconnected.
type Live struct {
	client  *Client
	bus     *bus.Bus
	machine *status.Machine
	logger  *zap.Logger
	delay   time.Duration
	dialer  *websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn
	wmu  sync.Mutex
}

// NewLive creates a live channel using c's relay address and tokens.
func NewLive(c *Client, b *bus.Bus, machine *status.Machine, logger *zap.Logger) *Live {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Live{
		client:  c,
		bus:     b,
		machine: machine,
		logger:  logger,
		delay:   DefaultReconnectDelay,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// SetReconnectDelay overrides DefaultReconnectDelay.
func (l *Live) SetReconnectDelay(d time.Duration) { l.delay = d }

// Connected reports whether a connection is up.
func (l *Live) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn != nil
}

func (l *Live) wsURL(token string) string {
	u := *l.client.BaseURL()
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	u.RawQuery = url.Values{"token": {token}}.Encode()
	return u.String()
}

func (l *Live) transition(to status.State) {
	if l.machine == nil || l.machine.Current() == to {
		return
	}
	if err := l.machine.Transition(to); err != nil {
		l.logger.Debug("status transition skipped", zap.Error(err))
	}
}

// Run dials and serves the live channel until ctx is canceled or the relay
// rejects the credentials. Dropped connections are redialed after a fixed delay.
func (l *Live) Run(ctx context.Context) error {
	for {
		l.transition(status.Connecting)
		err := l.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrNoToken) || IsUnauthorized(err) {
			l.logger.Warn("live channel rejected credentials", zap.Error(err))
			l.transition(status.AuthRequired)
			l.bus.Publish(bus.Event{Kind: bus.KindLoggedOut, Payload: err.Error()})
			return err
		}
		l.logger.Warn("live channel down, reconnecting", zap.Error(err), zap.Duration("delay", l.delay))
		l.transition(status.Reconnecting)

		select {
		case <-time.After(l.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// session runs one connection from dial to drop.
func (l *Live) session(ctx context.Context) error {
	conn, err := l.dial(ctx)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		l.conn = nil
		l.mu.Unlock()
		_ = conn.Close()
		l.bus.Publish(bus.Event{Kind: bus.KindLiveDisconnected})
	}()

	l.logger.Info("live channel connected")
	l.transition(status.Loading)
	l.bus.Publish(bus.Event{Kind: bus.KindLiveConnected})

	done := make(chan struct{})
	defer close(done)
	go l.pinger(conn, done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	return l.readLoop(conn)
}

func (l *Live) dial(ctx context.Context) (*websocket.Conn, error) {
	token, err := l.client.Tokens().Token(ctx)
	if err != nil {
		return nil, err
	}
	conn, resp, err := l.dialer.DialContext(ctx, l.wsURL(token), nil)
	if resp != nil && resp.StatusCode == http.StatusUnauthorized {
		// the access token may have been revoked early; one forced refresh
		if token, rerr := l.client.Tokens().Refresh(ctx); rerr == nil {
			conn, resp, err = l.dialer.DialContext(ctx, l.wsURL(token), nil)
		}
	}
	if err != nil {
		if resp != nil {
			return nil, &HTTPError{Status: resp.StatusCode, Message: "live channel handshake"}
		}
		return nil, fmt.Errorf("dial live channel: %w", err)
	}
	return conn, nil
}

func (l *Live) readLoop(conn *websocket.Conn) error {
	conn.SetReadLimit(maxFrame)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read live frame: %w", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var env wire.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			l.logger.Warn("malformed live frame", zap.Error(err))
			continue
		}
		evt, err := decodeEvent(env)
		if err != nil {
			l.logger.Warn("undecodable live event", zap.Uint64("seq", env.Seq), zap.Error(err))
			continue
		}
		l.bus.Publish(bus.Event{Kind: bus.KindLiveEvent, Payload: evt})
	}
}

func (l *Live) pinger(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.wmu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			l.wmu.Unlock()
			if err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (l *Live) write(typ, roomID string, data any) error {
	env, err := wire.NewEnvelope(typ, roomID, data)
	if err != nil {
		return err
	}
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	l.wmu.Lock()
	defer l.wmu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(env)
}

// Send transmits a message; the relay answers with ack or nack for clientID.
func (l *Live) Send(clientID, roomID, text, photoURL string) error {
	return l.write(wire.TypeSend, roomID, wire.SendData{ClientID: clientID, Text: text, PhotoURL: photoURL})
}

// SendTyping transmits a transient typing signal.
func (l *Live) SendTyping(roomID string, typing bool) error {
	return l.write(wire.TypeTyping, roomID, wire.TypingData{Typing: typing})
}

// SendPresence broadcasts the user's presence.
func (l *Live) SendPresence(p chat.Presence) error {
	return l.write(wire.TypePresence, "", wire.PresenceData{Presence: string(p)})
}
