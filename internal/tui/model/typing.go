package model

import (
	"context"
	"sync"
	"time"
)

// Typing signal timings. Peers drop an indicator two seconds after the last
// typing event, so a continuous burst is re-announced faster than that.
const (
	DefaultTypingIdle   = 2 * time.Second
	DefaultTypingResend = time.Second
)

// Typist turns composer keystrokes into debounced typing signals: one
// "typing" on the first keystroke (repeated every resend interval while
// keys keep coming) and one "stopped" after the composer goes idle.
type Typist struct {
	mu       sync.Mutex
	idle     time.Duration
	resend   time.Duration
	typing   bool
	lastSent time.Time
	timer    *time.Timer
	signals  chan bool
	now      func() time.Time
}

// NewTypist creates a typist. Signals are delivered by Run.
func NewTypist(idle, resend time.Duration) *Typist {
	if idle <= 0 {
		idle = DefaultTypingIdle
	}
	if resend <= 0 {
		resend = DefaultTypingResend
	}
	return &Typist{
		idle:    idle,
		resend:  resend,
		signals: make(chan bool, 16),
		now:     time.Now,
	}
}

// Keystroke records composer activity.
func (t *Typist) Keystroke() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if !t.typing || now.Sub(t.lastSent) >= t.resend {
		t.typing = true
		t.lastSent = now
		t.emit(true)
	}
	if t.timer == nil {
		t.timer = time.AfterFunc(t.idle, t.expire)
	} else {
		t.timer.Reset(t.idle)
	}
}

// Stop ends a typing burst immediately, e.g. when the message is sent.
func (t *Typist) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.stopLocked()
}

func (t *Typist) expire() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

func (t *Typist) stopLocked() {
	if !t.typing {
		return
	}
	t.typing = false
	t.emit(false)
}

// emit never blocks the UI goroutine; a full queue drops the signal.
func (t *Typist) emit(typing bool) {
	select {
	case t.signals <- typing:
	default:
	}
}

// Run delivers signals in order until ctx is done.
func (t *Typist) Run(ctx context.Context, send func(ctx context.Context, typing bool) error) {
	for {
		select {
		case typing := <-t.signals:
			_ = send(ctx, typing)
		case <-ctx.Done():
			return
		}
	}
}
