package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Seq       uint64
	Timestamp time.Time
	Payload   any
}

// Event kinds. Subscribers filter by namespace prefix ("live.", "view.", ...).
const (
	KindStatusChanged = "session.status_changed"
	KindLoggedOut     = "session.logged_out"

	KindLiveConnected    = "live.connected"
	KindLiveDisconnected = "live.disconnected"
	KindLiveEvent        = "live.event"

	KindViewChanged = "view.changed"

	KindOutboxFailed = "outbox.failed"
	KindOutboxSent   = "outbox.sent"
)
