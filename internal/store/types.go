package store

// Outbox entry states.
const (
	OutboxQueued  = "queued"
	OutboxSending = "sending"
	OutboxSent    = "sent"
	OutboxFailed  = "failed"
)

// OutboxEntry represents an outgoing message awaiting relay acknowledgement.
type OutboxEntry struct {
	ID           int64
	ClientID     string
	RoomID       string
	Body         string
	PhotoURL     string
	Status       string // queued, sending, sent, failed
	ErrorMessage string
	ServerMsgID  string
	CreatedAt    int64
	UpdatedAt    int64
}

// Credentials are the relay tokens for the signed-in user.
type Credentials struct {
	UserID       string
	Username     string
	AccessToken  string
	RefreshToken string
}
