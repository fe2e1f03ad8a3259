// Package upstream talks to the relay: REST for queries and mutations, a
// WebSocket live channel for events and sends.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/notehub/nhchat/internal/chat"
	"github.com/notehub/nhchat/internal/wire"
	"go.uber.org/zap"
)

const requestTimeout = 15 * time.Second

// Client is the relay REST client.
type Client struct {
	base   *url.URL
	http   *http.Client
	tokens *TokenSource
	logger *zap.Logger
}

// NewClient creates a REST client for the relay at baseURL.
func NewClient(baseURL string, logger *zap.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse relay url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("relay url %q: scheme must be http or https", baseURL)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		base:   u,
		http:   &http.Client{Timeout: requestTimeout},
		logger: logger,
	}
	c.tokens = NewTokenSource(c.refreshAccess)
	return c, nil
}

// Tokens returns the client's token source.
func (c *Client) Tokens() *TokenSource { return c.tokens }

// BaseURL returns the relay base URL.
func (c *Client) BaseURL() *url.URL { return c.base }

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = c.base.Path + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// do sends a request. With auth set it attaches the bearer token and retries
// once after a forced refresh if the relay answers 401.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any, auth bool) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
	}
	token := ""
	if auth {
		var err error
		if token, err = c.tokens.Token(ctx); err != nil {
			return err
		}
	}
	err := c.send(ctx, method, path, query, body, token, out)
	if auth && IsUnauthorized(err) {
		if token, rerr := c.tokens.Refresh(ctx); rerr == nil {
			err = c.send(ctx, method, path, query, body, token, out)
		}
	}
	return err
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, body []byte, token string, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	c.logger.Debug("relay request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var er wire.ErrorResponse
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, &er) != nil || er.Error == "" {
			er.Error = strings.TrimSpace(string(raw))
		}
		return &HTTPError{Status: resp.StatusCode, Message: er.Error}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// Login authenticates and installs the returned tokens.
func (c *Client) Login(ctx context.Context, username, password string) (wire.TokenResponse, error) {
	var tr wire.TokenResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/login", nil, wire.Credentials{Username: username, Password: password}, &tr, false)
	if err != nil {
		return tr, err
	}
	c.tokens.Set(tr.AccessToken, tr.RefreshToken)
	return tr, nil
}

// Register creates an account and installs the returned tokens.
func (c *Client) Register(ctx context.Context, username, password, displayName string) (wire.TokenResponse, error) {
	var tr wire.TokenResponse
	in := wire.Credentials{Username: username, Password: password, DisplayName: displayName}
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", nil, in, &tr, false); err != nil {
		return tr, err
	}
	c.tokens.Set(tr.AccessToken, tr.RefreshToken)
	return tr, nil
}

// refreshAccess is the TokenSource's RefreshFunc.
func (c *Client) refreshAccess(ctx context.Context, refreshToken string) (string, error) {
	var tr wire.TokenResponse
	if err := c.send(ctx, http.MethodPost, "/api/auth/refresh", nil, nil, refreshToken, &tr); err != nil {
		return "", err
	}
	if tr.AccessToken == "" {
		return "", errors.New("refresh returned no access token")
	}
	return tr.AccessToken, nil
}

func (c *Client) Me(ctx context.Context) (chat.UserRef, error) {
	var u wire.User
	if err := c.do(ctx, http.MethodGet, "/api/me", nil, nil, &u, true); err != nil {
		return chat.UserRef{}, err
	}
	return userFromWire(u), nil
}

func (c *Client) ListRooms(ctx context.Context) ([]chat.Room, error) {
	var rr wire.RoomsResponse
	if err := c.do(ctx, http.MethodGet, "/api/rooms", nil, nil, &rr, true); err != nil {
		return nil, err
	}
	rooms := make([]chat.Room, len(rr.Rooms))
	for i, r := range rr.Rooms {
		rooms[i] = roomFromWire(r)
	}
	return rooms, nil
}

func (c *Client) CreateRoom(ctx context.Context, name string, participantIDs []string) (chat.Room, error) {
	var r wire.Room
	in := wire.CreateRoomRequest{Name: name, ParticipantIDs: participantIDs}
	if err := c.do(ctx, http.MethodPost, "/api/rooms", nil, in, &r, true); err != nil {
		return chat.Room{}, err
	}
	return roomFromWire(r), nil
}

func (c *Client) DeleteRoom(ctx context.Context, roomID string) error {
	return c.do(ctx, http.MethodDelete, "/api/rooms/"+url.PathEscape(roomID), nil, nil, nil, true)
}

// ListMessages returns up to limit of the newest messages, oldest first.
func (c *Client) ListMessages(ctx context.Context, roomID string, limit int) ([]chat.Message, error) {
	return c.ListMessagesBefore(ctx, roomID, "", limit)
}

// ListMessagesBefore pages backwards from the message with id before.
func (c *Client) ListMessagesBefore(ctx context.Context, roomID, before string, limit int) ([]chat.Message, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if before != "" {
		q.Set("before", before)
	}
	var mr wire.MessagesResponse
	if err := c.do(ctx, http.MethodGet, "/api/rooms/"+url.PathEscape(roomID)+"/messages", q, nil, &mr, true); err != nil {
		return nil, err
	}
	return messagesFromWire(mr.Messages), nil
}

func (c *Client) messagePath(roomID, msgID string) string {
	return "/api/rooms/" + url.PathEscape(roomID) + "/messages/" + url.PathEscape(msgID)
}

func (c *Client) DeleteMessage(ctx context.Context, roomID, msgID string) error {
	return c.do(ctx, http.MethodDelete, c.messagePath(roomID, msgID), nil, nil, nil, true)
}

func (c *Client) AddReaction(ctx context.Context, roomID, msgID, emoji string) error {
	return c.do(ctx, http.MethodPost, c.messagePath(roomID, msgID)+"/reactions", nil, wire.ReactionRequest{Emoji: emoji}, nil, true)
}

func (c *Client) RemoveReaction(ctx context.Context, roomID, msgID, emoji string) error {
	return c.do(ctx, http.MethodDelete, c.messagePath(roomID, msgID)+"/reactions/"+url.PathEscape(emoji), nil, nil, nil, true)
}

func (c *Client) Pin(ctx context.Context, roomID, msgID string) error {
	return c.do(ctx, http.MethodPost, c.messagePath(roomID, msgID)+"/pin", nil, nil, nil, true)
}

func (c *Client) Unpin(ctx context.Context, roomID, msgID string) error {
	return c.do(ctx, http.MethodDelete, c.messagePath(roomID, msgID)+"/pin", nil, nil, nil, true)
}

func (c *Client) MarkRead(ctx context.Context, roomID string) error {
	return c.do(ctx, http.MethodPost, "/api/rooms/"+url.PathEscape(roomID)+"/read", nil, nil, nil, true)
}

func (c *Client) Search(ctx context.Context, query string) ([]chat.Message, error) {
	var mr wire.MessagesResponse
	if err := c.do(ctx, http.MethodGet, "/api/search", url.Values{"q": {query}}, nil, &mr, true); err != nil {
		return nil, err
	}
	return messagesFromWire(mr.Messages), nil
}

// HiddenNotes returns the server-side hidden note set.
func (c *Client) HiddenNotes(ctx context.Context) ([]string, error) {
	var hn wire.HiddenNotes
	if err := c.do(ctx, http.MethodGet, "/api/me/hidden-notes", nil, nil, &hn, true); err != nil {
		return nil, err
	}
	return hn.NoteIDs, nil
}

// SetHiddenNotes replaces the server-side hidden note set.
func (c *Client) SetHiddenNotes(ctx context.Context, ids []string) ([]string, error) {
	if ids == nil {
		ids = []string{}
	}
	var hn wire.HiddenNotes
	if err := c.do(ctx, http.MethodPut, "/api/me/hidden-notes", nil, wire.HiddenNotes{NoteIDs: ids}, &hn, true); err != nil {
		return nil, err
	}
	return hn.NoteIDs, nil
}
