package model

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/notehub/nhchat/internal/api"
	"github.com/notehub/nhchat/internal/chat"
	"github.com/notehub/nhchat/internal/paginate"
)

// DefaultReaction is used by the quick-react key.
const DefaultReaction = "👍"

// ChatAPI is the subset of the daemon's Chat service the TUI uses.
type ChatAPI interface {
	LoadRooms(ctx context.Context, req *api.LoadRoomsRequest) (*api.RoomsResponse, error)
	SelectRoom(ctx context.Context, roomID string) (*api.ViewResponse, error)
	SendMessage(ctx context.Context, req *api.SendMessageRequest) (*api.SendMessageResponse, error)
	SetTyping(ctx context.Context, typing bool) error
	DeleteMessage(ctx context.Context, req *api.MessageRequest) error
	DeleteRoom(ctx context.Context, roomID string) error
	React(ctx context.Context, req *api.ReactionRequest) error
	Unreact(ctx context.Context, req *api.ReactionRequest) error
	Pin(ctx context.Context, req *api.MessageRequest) error
	Unpin(ctx context.Context, req *api.MessageRequest) error
	Search(ctx context.Context, query string) (*api.ViewResponse, error)
	ClearSearch(ctx context.Context) error
	DismissBanner(ctx context.Context) error
	WatchView(ctx context.Context, fn func(*api.ViewEvent) error) error
}

// SessionAPI is the subset of the daemon's Session service the TUI uses.
type SessionAPI interface {
	GetStatus(ctx context.Context) (*api.StatusResponse, error)
	Login(ctx context.Context, req *api.LoginRequest) (*api.StatusResponse, error)
	Logout(ctx context.Context) (*api.StatusResponse, error)
}

var (
	ErrNoRoom    = errors.New("no room selected")
	ErrNoMessage = errors.New("no message selected")
)

// ViewModel caches the latest view snapshot streamed by the daemon.
type ViewModel struct {
	mu sync.RWMutex

	chat    ChatAPI
	session SessionAPI
	typist  *Typist

	view    chat.View
	state   string
	status  *api.StatusResponse
	page    int
	perPage int
}

// NewViewModel creates a view model connected to the daemon clients.
func NewViewModel(c ChatAPI, s SessionAPI, perPage int) *ViewModel {
	if perPage <= 0 {
		perPage = api.DefaultPageSize
	}
	return &ViewModel{
		chat:    c,
		session: s,
		typist:  NewTypist(DefaultTypingIdle, DefaultTypingResend),
		page:    1,
		perPage: perPage,
	}
}

// Typist returns the composer's typing debouncer.
func (vm *ViewModel) Typist() *Typist { return vm.typist }

// RunTyping forwards debounced typing signals to the daemon until ctx ends.
func (vm *ViewModel) RunTyping(ctx context.Context) {
	vm.typist.Run(ctx, vm.chat.SetTyping)
}

// Watch streams view snapshots, calling onChange after each one is stored.
// It returns when the stream ends.
func (vm *ViewModel) Watch(ctx context.Context, onChange func()) error {
	return vm.chat.WatchView(ctx, func(evt *api.ViewEvent) error {
		vm.Apply(evt)
		if onChange != nil {
			onChange()
		}
		return nil
	})
}

// Apply stores a streamed snapshot.
func (vm *ViewModel) Apply(evt *api.ViewEvent) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.view = evt.View
	vm.state = evt.State
}

// View returns the latest snapshot.
func (vm *ViewModel) View() chat.View {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.view
}

// State returns the daemon's connection state from the latest snapshot or status call.
func (vm *ViewModel) State() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.state
}

// Status returns the last session status fetched.
func (vm *ViewModel) Status() *api.StatusResponse {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.status
}

// LoggedIn reports whether the daemon holds a session.
func (vm *ViewModel) LoggedIn() bool {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.status != nil && vm.status.LoggedIn
}

func (vm *ViewModel) setStatus(st *api.StatusResponse) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.status = st
	vm.state = st.State
}

// LoadStatus refreshes the session status.
func (vm *ViewModel) LoadStatus(ctx context.Context) (*api.StatusResponse, error) {
	st, err := vm.session.GetStatus(ctx)
	if err != nil {
		return nil, err
	}
	vm.setStatus(st)
	return st, nil
}

// Login signs in, or registers first when register is set.
func (vm *ViewModel) Login(ctx context.Context, username, password, displayName string, register bool) error {
	st, err := vm.session.Login(ctx, &api.LoginRequest{
		Username:    strings.TrimSpace(username),
		Password:    password,
		Register:    register,
		DisplayName: strings.TrimSpace(displayName),
	})
	if err != nil {
		return err
	}
	vm.setStatus(st)
	return nil
}

// Logout ends the session.
func (vm *ViewModel) Logout(ctx context.Context) error {
	st, err := vm.session.Logout(ctx)
	if err != nil {
		return err
	}
	vm.setStatus(st)
	vm.mu.Lock()
	vm.page = 1
	vm.mu.Unlock()
	return nil
}

// Refresh asks the daemon to reload the room list from the relay.
func (vm *ViewModel) Refresh(ctx context.Context) error {
	_, err := vm.chat.LoadRooms(ctx, &api.LoadRoomsRequest{Page: 1, PerPage: vm.perPage, Refresh: true})
	return err
}

// RoomPage returns the rooms on the current page. The page is re-clamped
// against the latest room count every time.
func (vm *ViewModel) RoomPage() ([]chat.Room, paginate.Pager) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	rooms, pager := paginate.Slice(vm.view.Rooms, vm.page, vm.perPage)
	vm.page = pager.Page
	return rooms, pager
}

// NextPage moves to the following page, staying on the last one.
func (vm *ViewModel) NextPage() int {
	_, pager := vm.RoomPage()
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.page = pager.Next()
	return vm.page
}

// PrevPage moves to the preceding page, staying on the first one.
func (vm *ViewModel) PrevPage() int {
	_, pager := vm.RoomPage()
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.page = pager.Prev()
	return vm.page
}

// Open selects a room. The returned snapshot is applied immediately so the
// chat page can render before the stream catches up.
func (vm *ViewModel) Open(ctx context.Context, roomID string) error {
	resp, err := vm.chat.SelectRoom(ctx, roomID)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.view = resp.View
	vm.mu.Unlock()
	return nil
}

// Send posts text to the selected room and ends the typing burst.
func (vm *ViewModel) Send(ctx context.Context, text, photoURL string) error {
	vm.typist.Stop()
	roomID := vm.View().SelectedRoom
	if roomID == "" {
		return ErrNoRoom
	}
	_, err := vm.chat.SendMessage(ctx, &api.SendMessageRequest{RoomID: roomID, Text: text, PhotoURL: photoURL})
	return err
}

// ToggleReaction removes emoji if the current user already reacted with it
// and adds it otherwise.
func (vm *ViewModel) ToggleReaction(ctx context.Context, msg chat.Message, emoji string) error {
	if msg.ID == "" {
		return ErrNoMessage
	}
	if emoji == "" {
		emoji = DefaultReaction
	}
	req := &api.ReactionRequest{RoomID: msg.RoomID, MessageID: msg.ID, Emoji: emoji}
	if msg.ReactedBy(emoji, vm.View().Self.ID) {
		return vm.chat.Unreact(ctx, req)
	}
	return vm.chat.React(ctx, req)
}

// TogglePin pins an unpinned message and unpins a pinned one.
func (vm *ViewModel) TogglePin(ctx context.Context, msg chat.Message) error {
	if msg.ID == "" {
		return ErrNoMessage
	}
	req := &api.MessageRequest{RoomID: msg.RoomID, MessageID: msg.ID}
	if msg.Pinned {
		return vm.chat.Unpin(ctx, req)
	}
	return vm.chat.Pin(ctx, req)
}

// DeleteMessage removes a message from its room.
func (vm *ViewModel) DeleteMessage(ctx context.Context, msg chat.Message) error {
	if msg.ID == "" {
		return ErrNoMessage
	}
	return vm.chat.DeleteMessage(ctx, &api.MessageRequest{RoomID: msg.RoomID, MessageID: msg.ID})
}

// DeleteRoom removes a room.
func (vm *ViewModel) DeleteRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return ErrNoRoom
	}
	return vm.chat.DeleteRoom(ctx, roomID)
}

// Search runs a message search; results arrive in the view snapshot.
func (vm *ViewModel) Search(ctx context.Context, query string) error {
	resp, err := vm.chat.Search(ctx, strings.TrimSpace(query))
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.view = resp.View
	vm.mu.Unlock()
	return nil
}

// ClearSearch drops the search overlay.
func (vm *ViewModel) ClearSearch(ctx context.Context) error {
	return vm.chat.ClearSearch(ctx)
}

// DismissBanner clears the current error banner.
func (vm *ViewModel) DismissBanner(ctx context.Context) error {
	return vm.chat.DismissBanner(ctx)
}
