package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/notehub/nhchat/internal/wire"
)

// User is an account row.
type User struct {
	ID           string `db:"id"`
	Username     string `db:"username"`
	DisplayName  string `db:"display_name"`
	PasswordHash string `db:"password_hash"`
	CreatedAt    int64  `db:"created_at"`
}

// Wire returns the public form of u.
func (u User) Wire() wire.User {
	return wire.User{ID: u.ID, Username: u.Username, DisplayName: u.DisplayName}
}

// Ref returns the compact form used in messages and events.
func (u User) Ref() wire.UserRef {
	name := u.DisplayName
	if name == "" {
		name = u.Username
	}
	return wire.UserRef{ID: u.ID, Name: name}
}

const userCols = `id, username, display_name, password_hash, created_at`

// CreateUser inserts an account. A taken username yields ErrConflict.
func (db *DB) CreateUser(ctx context.Context, username, displayName, passwordHash string) (User, error) {
	u := User{
		ID:           uuid.NewString(),
		Username:     username,
		DisplayName:  displayName,
		PasswordHash: passwordHash,
		CreatedAt:    db.stamp(),
	}
	_, err := db.NamedExecContext(ctx,
		`INSERT INTO users (`+userCols+`) VALUES (:id, :username, :display_name, :password_hash, :created_at)`, u)
	var se sqlite3.Error
	if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique {
		return User{}, ErrConflict
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

func (db *DB) userWhere(ctx context.Context, where string, arg any) (User, error) {
	var u User
	err := db.GetContext(ctx, &u, `SELECT `+userCols+` FROM users WHERE `+where, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

// UserByUsername looks an account up case-insensitively.
func (db *DB) UserByUsername(ctx context.Context, username string) (User, error) {
	return db.userWhere(ctx, `username = ?`, username)
}

func (db *DB) UserByID(ctx context.Context, id string) (User, error) {
	return db.userWhere(ctx, `id = ?`, id)
}

// SearchUsers returns accounts whose username or display name contains q.
func (db *DB) SearchUsers(ctx context.Context, q string, limit int) ([]wire.User, error) {
	pattern := "%" + escapeLike(strings.TrimSpace(q)) + "%"
	var rows []User
	err := db.SelectContext(ctx, &rows,
		`SELECT `+userCols+` FROM users
		 WHERE username LIKE ? ESCAPE '\' OR display_name LIKE ? ESCAPE '\'
		 ORDER BY username LIMIT ?`, pattern, pattern, limit)
	if err != nil {
		return nil, err
	}
	out := make([]wire.User, len(rows))
	for i, u := range rows {
		out[i] = u.Wire()
	}
	return out, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
