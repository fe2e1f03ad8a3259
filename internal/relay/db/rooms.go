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

type roomRow struct {
	ID        string `db:"id"`
	Name      string `db:"name"`
	IsGroup   bool   `db:"is_group"`
	Theme     string `db:"theme"`
	CreatedAt int64  `db:"created_at"`
	Unread    int    `db:"unread"`
}

type participantRow struct {
	RoomID string `db:"room_id"`
	ID     string `db:"id"`
	Name   string `db:"name"`
}

const roomSelect = `SELECT r.id, r.name, r.is_group, r.theme, r.created_at,
	(SELECT COUNT(*) FROM messages m
	  WHERE m.room_id = r.id AND m.sender_id <> rm.user_id AND m.created_at > rm.last_read_at) AS unread
	FROM rooms r JOIN room_members rm ON rm.room_id = r.id`

// IsMember reports whether userID belongs to roomID.
func (db *DB) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	var n int
	err := db.GetContext(ctx, &n, `SELECT COUNT(*) FROM room_members WHERE room_id = ? AND user_id = ?`, roomID, userID)
	return n > 0, err
}

// requireMember maps a non-member to ErrNotFound so room ids do not leak.
func (db *DB) requireMember(ctx context.Context, roomID, userID string) error {
	ok, err := db.IsMember(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// MemberIDs lists the user ids of a room.
func (db *DB) MemberIDs(ctx context.Context, roomID string) ([]string, error) {
	var ids []string
	err := db.SelectContext(ctx, &ids, `SELECT user_id FROM room_members WHERE room_id = ? ORDER BY joined_at, user_id`, roomID)
	return ids, err
}

// ContactIDs lists the users sharing at least one room with userID.
func (db *DB) ContactIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := db.SelectContext(ctx, &ids, `SELECT DISTINCT b.user_id FROM room_members a
		JOIN room_members b ON b.room_id = a.room_id
		WHERE a.user_id = ? AND b.user_id <> ? ORDER BY b.user_id`, userID, userID)
	return ids, err
}

// RoomsForUser returns userID's rooms, most recent activity first.
func (db *DB) RoomsForUser(ctx context.Context, userID string) ([]wire.Room, error) {
	var rows []roomRow
	if err := db.SelectContext(ctx, &rows, roomSelect+` WHERE rm.user_id = ?`, userID); err != nil {
		return nil, err
	}
	rooms, err := db.fillRooms(ctx, rows)
	if err != nil {
		return nil, err
	}
	created := make(map[string]int64, len(rows))
	for _, r := range rows {
		created[r.ID] = r.CreatedAt
	}
	activity := func(r wire.Room) int64 {
		if r.LastMessage != nil {
			return r.LastMessage.CreatedAt.UnixNano()
		}
		return created[r.ID]
	}
	slices.SortStableFunc(rooms, func(a, b wire.Room) int {
		if d := activity(b) - activity(a); d != 0 {
			if d > 0 {
				return 1
			}
			return -1
		}
		return strings.Compare(a.ID, b.ID)
	})
	return rooms, nil
}

// RoomForUser returns one room as userID sees it.
func (db *DB) RoomForUser(ctx context.Context, roomID, userID string) (wire.Room, error) {
	var rows []roomRow
	if err := db.SelectContext(ctx, &rows, roomSelect+` WHERE rm.user_id = ? AND r.id = ?`, userID, roomID); err != nil {
		return wire.Room{}, err
	}
	if len(rows) == 0 {
		return wire.Room{}, ErrNotFound
	}
	rooms, err := db.fillRooms(ctx, rows)
	if err != nil {
		return wire.Room{}, err
	}
	return rooms[0], nil
}

// fillRooms adds participants and last messages to room rows.
func (db *DB) fillRooms(ctx context.Context, rows []roomRow) ([]wire.Room, error) {
	rooms := make([]wire.Room, len(rows))
	if len(rows) == 0 {
		return rooms, nil
	}
	ids := make([]string, len(rows))
	index := make(map[string]int, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
		index[r.ID] = i
		rooms[i] = wire.Room{ID: r.ID, Name: r.Name, IsGroup: r.IsGroup, Theme: r.Theme, UnreadCount: r.Unread}
	}

	query, args, err := sqlx.In(`SELECT rm.room_id, u.id, COALESCE(NULLIF(u.display_name, ''), u.username) AS name
		FROM room_members rm JOIN users u ON u.id = rm.user_id
		WHERE rm.room_id IN (?) ORDER BY rm.joined_at, u.username`, ids)
	if err != nil {
		return nil, err
	}
	var parts []participantRow
	if err := db.SelectContext(ctx, &parts, db.Rebind(query), args...); err != nil {
		return nil, err
	}
	for _, p := range parts {
		i := index[p.RoomID]
		rooms[i].Participants = append(rooms[i].Participants, wire.UserRef{ID: p.ID, Name: p.Name})
	}

	query, args, err = sqlx.In(messageSelect+` WHERE m.seq IN
		(SELECT MAX(seq) FROM messages WHERE room_id IN (?) GROUP BY room_id)`, ids)
	if err != nil {
		return nil, err
	}
	last, err := db.selectMessages(ctx, db, db.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	for _, m := range last {
		rooms[index[m.RoomID]].LastMessage = &m
	}
	return rooms, nil
}

// CreateRoom creates a room of creatorID and participantIDs. Without a name
// and with exactly one other participant it is a direct room, and an
// existing direct room between the two is returned instead with created false.
func (db *DB) CreateRoom(ctx context.Context, creatorID, name string, participantIDs []string) (string, bool, error) {
	members := []string{creatorID}
	for _, id := range participantIDs {
		if id != "" && !slices.Contains(members, id) {
			members = append(members, id)
		}
	}
	if len(members) < 2 {
		return "", false, ErrInvalid
	}

	query, args, err := sqlx.In(`SELECT COUNT(*) FROM users WHERE id IN (?)`, members)
	if err != nil {
		return "", false, err
	}
	var known int
	if err := db.GetContext(ctx, &known, db.Rebind(query), args...); err != nil {
		return "", false, err
	}
	if known != len(members) {
		return "", false, ErrNotFound
	}

	name = strings.TrimSpace(name)
	isGroup := name != "" || len(members) > 2
	if !isGroup {
		var existing string
		err := db.GetContext(ctx, &existing, `SELECT r.id FROM rooms r
			WHERE r.is_group = 0
			AND (SELECT COUNT(*) FROM room_members WHERE room_id = r.id) = 2
			AND EXISTS (SELECT 1 FROM room_members WHERE room_id = r.id AND user_id = ?)
			AND EXISTS (SELECT 1 FROM room_members WHERE room_id = r.id AND user_id = ?)
			LIMIT 1`, members[0], members[1])
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", false, err
		}
	}

	id := uuid.NewString()
	now := db.stamp()
	err = db.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO rooms (id, name, is_group, created_at) VALUES (?, ?, ?, ?)`, id, name, isGroup, now); err != nil {
			return err
		}
		for _, uid := range members {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO room_members (room_id, user_id, joined_at, last_read_at) VALUES (?, ?, ?, ?)`,
				id, uid, now, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

// DeleteRoom removes a room for everyone and returns its former members.
func (db *DB) DeleteRoom(ctx context.Context, roomID, userID string) ([]string, error) {
	var members []string
	err := db.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := tx.SelectContext(ctx, &members,
			`SELECT user_id FROM room_members WHERE room_id = ? ORDER BY joined_at, user_id`, roomID); err != nil {
			return err
		}
		if !slices.Contains(members, userID) {
			return ErrNotFound
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM rooms WHERE id = ?`, roomID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return members, nil
}

// MarkRead moves userID's read marker in roomID to now.
func (db *DB) MarkRead(ctx context.Context, roomID, userID string) error {
	res, err := db.ExecContext(ctx,
		`UPDATE room_members SET last_read_at = ? WHERE room_id = ? AND user_id = ?`, db.stamp(), roomID, userID)
	ok, err := changed(res, err)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}
