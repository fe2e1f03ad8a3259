package api

import (
	"context"

	"github.com/notehub/nhchat/internal/bus"
	"github.com/notehub/nhchat/internal/chat"
	"github.com/notehub/nhchat/internal/paginate"
	"github.com/notehub/nhchat/internal/status"
)

// Engine is the chat engine as seen by the API.
type Engine interface {
	Snapshot() chat.View
	LoadRooms(ctx context.Context) error
	SelectRoom(ctx context.Context, roomID string) error
	SendMessage(ctx context.Context, text, photoURL string) (chat.Message, error)
	SetTyping(ctx context.Context, typing bool) error
	SetPresence(ctx context.Context, p chat.Presence) error
	DeleteMessage(ctx context.Context, roomID, msgID string) error
	DeleteRoom(ctx context.Context, roomID string) error
	AddReaction(ctx context.Context, roomID, msgID, emoji string) error
	RemoveReaction(ctx context.Context, roomID, msgID, emoji string) error
	PinMessage(ctx context.Context, roomID, msgID string) error
	UnpinMessage(ctx context.Context, roomID, msgID string) error
	CreateRoom(ctx context.Context, name string, participantIDs []string) (chat.Room, error)
	Search(ctx context.Context, query string) error
	ClearSearch()
	DismissBanner()
}

// DefaultPageSize is used when LoadRooms is called without a page size.
const DefaultPageSize = 20

// ChatService implements the Chat gRPC service on top of the engine.
type ChatService struct {
	engine   Engine
	sessions Sessions
	bus      *bus.Bus
	machine  *status.Machine
	pageSize int
}

// NewChatService creates a new chat service.
func NewChatService(engine Engine, sessions Sessions, b *bus.Bus, machine *status.Machine, pageSize int) *ChatService {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &ChatService{engine: engine, sessions: sessions, bus: b, machine: machine, pageSize: pageSize}
}

func (s *ChatService) requireLogin() error {
	if s.sessions != nil && !s.sessions.LoggedIn() {
		return toStatus("chat", ErrLoggedOut)
	}
	return nil
}

func (s *ChatService) LoadRooms(ctx context.Context, req *LoadRoomsRequest) (*RoomsResponse, error) {
	if err := s.requireLogin(); err != nil {
		return nil, err
	}
	if req.Refresh {
		if err := s.engine.LoadRooms(ctx); err != nil {
			return nil, toStatus("load rooms", err)
		}
	}
	perPage := req.PerPage
	if perPage <= 0 {
		perPage = s.pageSize
	}
	v := s.engine.Snapshot()
	rooms, pg := paginate.Slice(v.Rooms, req.Page, perPage)
	return &RoomsResponse{
		Rooms:      rooms,
		Self:       v.Self.ID,
		Page:       pg.Page,
		PerPage:    pg.PerPage,
		Total:      pg.Total,
		TotalPages: pg.TotalPages(),
	}, nil
}

func (s *ChatService) SelectRoom(ctx context.Context, req *RoomRequest) (*ViewResponse, error) {
	if err := s.requireLogin(); err != nil {
		return nil, err
	}
	if err := s.engine.SelectRoom(ctx, req.RoomID); err != nil {
		return nil, toStatus("select room", err)
	}
	return &ViewResponse{View: s.engine.Snapshot()}, nil
}

func (s *ChatService) GetView(_ context.Context, _ *Empty) (*ViewResponse, error) {
	return &ViewResponse{View: s.engine.Snapshot()}, nil
}

// SendMessage sends to req.RoomID, selecting it first when it is not the
// current room, or to the selected room when RoomID is empty.
func (s *ChatService) SendMessage(ctx context.Context, req *SendMessageRequest) (*SendMessageResponse, error) {
	if err := s.requireLogin(); err != nil {
		return nil, err
	}
	if req.RoomID != "" && s.engine.Snapshot().SelectedRoom != req.RoomID {
		if err := s.engine.SelectRoom(ctx, req.RoomID); err != nil {
			return nil, toStatus("send message", err)
		}
	}
	msg, err := s.engine.SendMessage(ctx, req.Text, req.PhotoURL)
	if err != nil {
		return nil, toStatus("send message", err)
	}
	return &SendMessageResponse{Message: msg}, nil
}

func (s *ChatService) SetTyping(ctx context.Context, req *TypingRequest) (*Empty, error) {
	return &Empty{}, toStatus("set typing", s.engine.SetTyping(ctx, req.Typing))
}

func (s *ChatService) SetPresence(ctx context.Context, req *PresenceRequest) (*Empty, error) {
	return &Empty{}, toStatus("set presence", s.engine.SetPresence(ctx, req.Presence))
}

func (s *ChatService) DeleteMessage(ctx context.Context, req *MessageRequest) (*Empty, error) {
	return s.mutate("delete message", func() error { return s.engine.DeleteMessage(ctx, req.RoomID, req.MessageID) })
}

func (s *ChatService) DeleteRoom(ctx context.Context, req *RoomRequest) (*Empty, error) {
	return s.mutate("delete room", func() error { return s.engine.DeleteRoom(ctx, req.RoomID) })
}

func (s *ChatService) React(ctx context.Context, req *ReactionRequest) (*Empty, error) {
	return s.mutate("react", func() error { return s.engine.AddReaction(ctx, req.RoomID, req.MessageID, req.Emoji) })
}

func (s *ChatService) Unreact(ctx context.Context, req *ReactionRequest) (*Empty, error) {
	return s.mutate("unreact", func() error { return s.engine.RemoveReaction(ctx, req.RoomID, req.MessageID, req.Emoji) })
}

func (s *ChatService) Pin(ctx context.Context, req *MessageRequest) (*Empty, error) {
	return s.mutate("pin", func() error { return s.engine.PinMessage(ctx, req.RoomID, req.MessageID) })
}

func (s *ChatService) Unpin(ctx context.Context, req *MessageRequest) (*Empty, error) {
	return s.mutate("unpin", func() error { return s.engine.UnpinMessage(ctx, req.RoomID, req.MessageID) })
}

func (s *ChatService) mutate(op string, fn func() error) (*Empty, error) {
	if err := s.requireLogin(); err != nil {
		return nil, err
	}
	if err := fn(); err != nil {
		return nil, toStatus(op, err)
	}
	return &Empty{}, nil
}

func (s *ChatService) Search(ctx context.Context, req *SearchRequest) (*ViewResponse, error) {
	if err := s.requireLogin(); err != nil {
		return nil, err
	}
	if err := s.engine.Search(ctx, req.Query); err != nil {
		return nil, toStatus("search", err)
	}
	return &ViewResponse{View: s.engine.Snapshot()}, nil
}

func (s *ChatService) ClearSearch(_ context.Context, _ *Empty) (*Empty, error) {
	s.engine.ClearSearch()
	return &Empty{}, nil
}

func (s *ChatService) DismissBanner(_ context.Context, _ *Empty) (*Empty, error) {
	s.engine.DismissBanner()
	return &Empty{}, nil
}

func (s *ChatService) CreateRoom(ctx context.Context, req *CreateRoomRequest) (*RoomResponse, error) {
	if err := s.requireLogin(); err != nil {
		return nil, err
	}
	room, err := s.engine.CreateRoom(ctx, req.Name, req.ParticipantIDs)
	if err != nil {
		return nil, toStatus("create room", err)
	}
	return &RoomResponse{Room: room}, nil
}

// WatchView streams a fresh snapshot whenever the view or the connection
// state changes. Bursts are coalesced into one snapshot.
func (s *ChatService) WatchView(_ *Empty, stream ViewStream) error {
	views, unsubView := s.bus.Subscribe("view.", 256)
	defer unsubView()
	states, unsubState := s.bus.Subscribe(bus.KindStatusChanged, 16)
	defer unsubState()

	send := func(seq uint64, reason string) error {
		return stream.Send(&ViewEvent{
			Seq:    seq,
			Reason: reason,
			State:  string(s.machine.Current()),
			View:   s.engine.Snapshot(),
		})
	}
	if err := send(0, "initial"); err != nil {
		return err
	}

	for {
		var evt bus.Event
		select {
		case evt = <-views:
		case evt = <-states:
		case <-stream.Context().Done():
			return nil
		}
		reason := evt.Kind
		if vc, ok := evt.Payload.(chat.ViewChange); ok {
			reason = vc.Reason
		}
	drain:
		for {
			select {
			case evt = <-views:
			case evt = <-states:
			default:
				break drain
			}
		}
		if err := send(evt.Seq, reason); err != nil {
			return err
		}
	}
}
