// Package outbox delivers queued sends over the live channel and tracks them
// until the relay acknowledges or the ack timeout expires.
package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/notehub/nhchat/internal/bus"
	"github.com/notehub/nhchat/internal/chat"
	"github.com/notehub/nhchat/internal/store"
	"go.uber.org/zap"
)

const (
	// DefaultAckTimeout is how long an entry may stay 'sending' without an ack.
	DefaultAckTimeout = 10 * time.Second

	pollInterval = 500 * time.Millisecond

	reasonAckTimeout = "no acknowledgement from relay"
	reasonRestart    = "interrupted by daemon restart"
)

// Transport transmits one message frame. A nil error means the frame was
// written, not that the relay accepted it.
type Transport interface {
	Send(clientID, roomID, text, photoURL string) error
}

// Sender drains the outbox over the live channel.
type Sender struct {
	db         *store.DB
	transport  Transport
	bus        *bus.Bus
	logger     *zap.Logger
	ackTimeout time.Duration
	now        func() time.Time

	kick   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSender creates a new outbox sender.
func NewSender(db *store.DB, t Transport, b *bus.Bus, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{
		db:         db,
		transport:  t,
		bus:        b,
		logger:     logger,
		ackTimeout: DefaultAckTimeout,
		now:        time.Now,
		kick:       make(chan struct{}, 1),
	}
}

// SetAckTimeout overrides DefaultAckTimeout.
func (s *Sender) SetAckTimeout(d time.Duration) { s.ackTimeout = d }

// Enqueue records a send and wakes the sender.
func (s *Sender) Enqueue(clientID, roomID, text, photoURL string) error {
	if err := s.db.QueueOutbox(clientID, roomID, text, photoURL); err != nil {
		return err
	}
	s.Kick()
	return nil
}

// Kick wakes the sender without waiting for the next tick.
func (s *Sender) Kick() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// MarkSent records the relay's ack for clientID.
func (s *Sender) MarkSent(clientID, serverMsgID string) error {
	if err := s.db.MarkOutboxSent(clientID, serverMsgID); err != nil {
		return err
	}
	s.bus.Publish(bus.Event{Kind: bus.KindOutboxSent, Payload: clientID})
	return nil
}

// MarkFailed records a rejection for clientID. It does not publish
// outbox.failed; the caller already knows.
func (s *Sender) MarkFailed(clientID, reason string) error {
	return s.db.MarkOutboxFailed(clientID, reason)
}

// Start fails entries stranded by a previous run and begins draining.
func (s *Sender) Start(ctx context.Context) {
	if n, err := s.db.FailStaleSending(reasonRestart); err != nil {
		s.logger.Error("failed to reset stale outbox entries", zap.Error(err))
	} else if n > 0 {
		s.logger.Warn("failed stale outbox entries", zap.Int64("count", n))
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop stops the sender loop and waits for it to exit.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Sender) loop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	s.process()
	for {
		select {
		case <-ticker.C:
			s.process()
		case <-s.kick:
			s.process()
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sender) process() {
	s.expireUnacked()
	s.processPending()
}

func (s *Sender) processPending() {
	pending, err := s.db.PendingOutbox()
	if err != nil {
		s.logger.Error("failed to read outbox", zap.Error(err))
		return
	}

	for _, entry := range pending {
		if err := s.db.MarkOutboxSending(entry.ClientID); err != nil {
			s.logger.Error("failed to mark sending", zap.Error(err), zap.String("client_id", entry.ClientID))
			continue
		}
		if err := s.transport.Send(entry.ClientID, entry.RoomID, entry.Body, entry.PhotoURL); err != nil {
			s.logger.Warn("failed to send message", zap.Error(err), zap.String("client_id", entry.ClientID))
			s.fail(entry, err.Error())
			continue
		}
		s.logger.Debug("message sent, awaiting ack", zap.String("client_id", entry.ClientID), zap.String("room_id", entry.RoomID))
	}
}

// expireUnacked fails entries that have been 'sending' longer than the ack timeout.
func (s *Sender) expireUnacked() {
	sending, err := s.db.SendingOutbox()
	if err != nil {
		s.logger.Error("failed to read in-flight outbox", zap.Error(err))
		return
	}
	cutoff := s.now().Add(-s.ackTimeout).UnixMilli()
	for _, entry := range sending {
		if entry.UpdatedAt > cutoff {
			continue
		}
		s.logger.Warn("send not acknowledged", zap.String("client_id", entry.ClientID), zap.Duration("timeout", s.ackTimeout))
		s.fail(entry, reasonAckTimeout)
	}
}

func (s *Sender) fail(entry store.OutboxEntry, reason string) {
	if err := s.db.MarkOutboxFailed(entry.ClientID, reason); err != nil {
		s.logger.Error("failed to mark failed", zap.Error(err), zap.String("client_id", entry.ClientID))
	}
	s.bus.Publish(bus.Event{
		Kind:    bus.KindOutboxFailed,
		Payload: chat.SendFailure{ClientID: entry.ClientID, RoomID: entry.RoomID, Reason: reason},
	})
}
