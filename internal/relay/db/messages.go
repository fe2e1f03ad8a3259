package db

import (
	"context"
	"database/sql"
	"errors"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/notehub/nhchat/internal/wire"
)

// NewMessage is a message as submitted over the live channel.
type NewMessage struct {
	RoomID   string
	SenderID string
	ClientID string
	Text     string
	PhotoURL string
}

type messageRow struct {
	ID         string `db:"id"`
	RoomID     string `db:"room_id"`
	SenderID   string `db:"sender_id"`
	SenderName string `db:"sender_name"`
	ClientID   string `db:"client_id"`
	Text       string `db:"text"`
	PhotoURL   string `db:"photo_url"`
	Pinned     bool   `db:"is_pinned"`
	CreatedAt  int64  `db:"created_at"`
}

func (r messageRow) wire() wire.Message {
	return wire.Message{
		ID:        r.ID,
		ClientID:  r.ClientID,
		RoomID:    r.RoomID,
		Sender:    wire.UserRef{ID: r.SenderID, Name: r.SenderName},
		Text:      r.Text,
		PhotoURL:  r.PhotoURL,
		CreatedAt: fromStamp(r.CreatedAt),
		Pinned:    r.Pinned,
	}
}

type reactionRow struct {
	MessageID string `db:"message_id"`
	UserID    string `db:"user_id"`
	Emoji     string `db:"emoji"`
}

const messageSelect = `SELECT m.id, m.room_id, m.sender_id,
	COALESCE(NULLIF(u.display_name, ''), u.username) AS sender_name,
	m.client_id, m.text, m.photo_url, m.is_pinned, m.created_at
	FROM messages m JOIN users u ON u.id = m.sender_id`

// MaxMessages caps one page of history.
const MaxMessages = 200

func (db *DB) selectMessages(ctx context.Context, q sqlx.QueryerContext, query string, args ...any) ([]wire.Message, error) {
	var rows []messageRow
	if err := sqlx.SelectContext(ctx, q, &rows, query, args...); err != nil {
		return nil, err
	}
	msgs := make([]wire.Message, len(rows))
	for i, r := range rows {
		msgs[i] = r.wire()
	}
	if err := db.attachReactions(ctx, q, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (db *DB) attachReactions(ctx context.Context, q sqlx.QueryerContext, msgs []wire.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	query, args, err := sqlx.In(`SELECT message_id, user_id, emoji FROM reactions
		WHERE message_id IN (?) ORDER BY created_at, rowid`, ids)
	if err != nil {
		return err
	}
	var rows []reactionRow
	if err := sqlx.SelectContext(ctx, q, &rows, db.Rebind(query), args...); err != nil {
		return err
	}
	byMsg := make(map[string]map[string][]string)
	for _, r := range rows {
		if byMsg[r.MessageID] == nil {
			byMsg[r.MessageID] = make(map[string][]string)
		}
		byMsg[r.MessageID][r.Emoji] = append(byMsg[r.MessageID][r.Emoji], r.UserID)
	}
	for i := range msgs {
		msgs[i].Reactions = byMsg[msgs[i].ID]
	}
	return nil
}

// Message returns one message by id.
func (db *DB) Message(ctx context.Context, id string) (wire.Message, error) {
	msgs, err := db.selectMessages(ctx, db, messageSelect+` WHERE m.id = ?`, id)
	if err != nil {
		return wire.Message{}, err
	}
	if len(msgs) == 0 {
		return wire.Message{}, ErrNotFound
	}
	return msgs[0], nil
}

// Messages returns up to limit messages of a room older than before (or the
// newest when before is empty), oldest first.
func (db *DB) Messages(ctx context.Context, roomID, userID, before string, limit int) ([]wire.Message, error) {
	if err := db.requireMember(ctx, roomID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > MaxMessages {
		limit = MaxMessages
	}
	query := messageSelect + ` WHERE m.room_id = ?`
	args := []any{roomID}
	if before != "" {
		query += ` AND m.seq < (SELECT seq FROM messages WHERE id = ? AND room_id = ?)`
		args = append(args, before, roomID)
	}
	query += ` ORDER BY m.seq DESC LIMIT ?`
	args = append(args, limit)

	msgs, err := db.selectMessages(ctx, db, query, args...)
	if err != nil {
		return nil, err
	}
	slices.Reverse(msgs)
	return msgs, nil
}

// CreateMessage stores a message. A repeated client id from the same sender
// returns the stored message with created false.
func (db *DB) CreateMessage(ctx context.Context, nm NewMessage) (wire.Message, bool, error) {
	if strings.TrimSpace(nm.Text) == "" && nm.PhotoURL == "" {
		return wire.Message{}, false, ErrInvalid
	}
	if err := db.requireMember(ctx, nm.RoomID, nm.SenderID); err != nil {
		return wire.Message{}, false, err
	}
	if nm.ClientID != "" {
		var id string
		err := db.GetContext(ctx, &id, `SELECT id FROM messages WHERE sender_id = ? AND client_id = ?`, nm.SenderID, nm.ClientID)
		if err == nil {
			m, err := db.Message(ctx, id)
			return m, false, err
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return wire.Message{}, false, err
		}
	}

	id := uuid.NewString()
	_, err := db.ExecContext(ctx,
		`INSERT INTO messages (id, room_id, sender_id, client_id, text, photo_url, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, nm.RoomID, nm.SenderID, nm.ClientID, nm.Text, nm.PhotoURL, db.stamp())
	if err != nil {
		return wire.Message{}, false, err
	}
	m, err := db.Message(ctx, id)
	return m, err == nil, err
}

// messageIn loads a message and checks it belongs to roomID and that userID
// is a member there.
func (db *DB) messageIn(ctx context.Context, roomID, msgID, userID string) (wire.Message, error) {
	if err := db.requireMember(ctx, roomID, userID); err != nil {
		return wire.Message{}, err
	}
	m, err := db.Message(ctx, msgID)
	if err != nil {
		return wire.Message{}, err
	}
	if m.RoomID != roomID {
		return wire.Message{}, ErrNotFound
	}
	return m, nil
}

// DeleteMessage removes a message. Only its sender may delete it.
func (db *DB) DeleteMessage(ctx context.Context, roomID, msgID, userID string) error {
	m, err := db.messageIn(ctx, roomID, msgID, userID)
	if err != nil {
		return err
	}
	if m.Sender.ID != userID {
		return ErrForbidden
	}
	_, err = db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, msgID)
	return err
}

// AddReaction records userID's emoji on a message and reports whether it was new.
func (db *DB) AddReaction(ctx context.Context, roomID, msgID, userID, emoji string) (bool, error) {
	if emoji == "" {
		return false, ErrInvalid
	}
	if _, err := db.messageIn(ctx, roomID, msgID, userID); err != nil {
		return false, err
	}
	res, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO reactions (message_id, user_id, emoji, created_at) VALUES (?, ?, ?, ?)`,
		msgID, userID, emoji, db.stamp())
	return changed(res, err)
}

// RemoveReaction deletes userID's emoji and reports whether it existed.
func (db *DB) RemoveReaction(ctx context.Context, roomID, msgID, userID, emoji string) (bool, error) {
	if _, err := db.messageIn(ctx, roomID, msgID, userID); err != nil {
		return false, err
	}
	res, err := db.ExecContext(ctx,
		`DELETE FROM reactions WHERE message_id = ? AND user_id = ? AND emoji = ?`, msgID, userID, emoji)
	return changed(res, err)
}

// SetPinned pins or unpins a message and reports whether the flag changed.
func (db *DB) SetPinned(ctx context.Context, roomID, msgID, userID string, pinned bool) (bool, error) {
	if _, err := db.messageIn(ctx, roomID, msgID, userID); err != nil {
		return false, err
	}
	res, err := db.ExecContext(ctx,
		`UPDATE messages SET is_pinned = ? WHERE id = ? AND is_pinned <> ?`, pinned, msgID, pinned)
	return changed(res, err)
}

// Search finds messages containing q in the rooms userID belongs to, newest first.
func (db *DB) Search(ctx context.Context, userID, q string, limit int) ([]wire.Message, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, ErrInvalid
	}
	if limit <= 0 || limit > MaxMessages {
		limit = MaxMessages
	}
	return db.selectMessages(ctx, db, messageSelect+`
		JOIN room_members rm ON rm.room_id = m.room_id AND rm.user_id = ?
		WHERE m.text LIKE ? ESCAPE '\'
		ORDER BY m.seq DESC LIMIT ?`, userID, "%"+escapeLike(q)+"%", limit)
}

func changed(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
