package api

import (
	"context"
	"errors"
	"io"

	"google.golang.org/grpc"
)

// CallOptions selects the JSON codec; pass them to grpc.WithDefaultCallOptions.
func CallOptions() []grpc.CallOption {
	return []grpc.CallOption{grpc.CallContentSubtype(CodecName)}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, service, method string, in any) (*Resp, error) {
	out := new(Resp)
	if err := cc.Invoke(ctx, "/"+service+"/"+method, in, out, CallOptions()...); err != nil {
		return nil, err
	}
	return out, nil
}

// SessionClient calls the Session service.
type SessionClient struct{ cc grpc.ClientConnInterface }

func NewSessionClient(cc grpc.ClientConnInterface) *SessionClient { return &SessionClient{cc: cc} }

func (c *SessionClient) GetStatus(ctx context.Context) (*StatusResponse, error) {
	return invoke[StatusResponse](ctx, c.cc, SessionServiceName, "GetStatus", &Empty{})
}

func (c *SessionClient) Login(ctx context.Context, req *LoginRequest) (*StatusResponse, error) {
	return invoke[StatusResponse](ctx, c.cc, SessionServiceName, "Login", req)
}

func (c *SessionClient) Logout(ctx context.Context) (*StatusResponse, error) {
	return invoke[StatusResponse](ctx, c.cc, SessionServiceName, "Logout", &Empty{})
}

// ChatClient calls the Chat service.
type ChatClient struct{ cc grpc.ClientConnInterface }

func NewChatClient(cc grpc.ClientConnInterface) *ChatClient { return &ChatClient{cc: cc} }

func (c *ChatClient) LoadRooms(ctx context.Context, req *LoadRoomsRequest) (*RoomsResponse, error) {
	return invoke[RoomsResponse](ctx, c.cc, ChatServiceName, "LoadRooms", req)
}

func (c *ChatClient) SelectRoom(ctx context.Context, roomID string) (*ViewResponse, error) {
	return invoke[ViewResponse](ctx, c.cc, ChatServiceName, "SelectRoom", &RoomRequest{RoomID: roomID})
}

func (c *ChatClient) GetView(ctx context.Context) (*ViewResponse, error) {
	return invoke[ViewResponse](ctx, c.cc, ChatServiceName, "GetView", &Empty{})
}

func (c *ChatClient) SendMessage(ctx context.Context, req *SendMessageRequest) (*SendMessageResponse, error) {
	return invoke[SendMessageResponse](ctx, c.cc, ChatServiceName, "SendMessage", req)
}

func (c *ChatClient) SetTyping(ctx context.Context, typing bool) error {
	_, err := invoke[Empty](ctx, c.cc, ChatServiceName, "SetTyping", &TypingRequest{Typing: typing})
	return err
}

func (c *ChatClient) SetPresence(ctx context.Context, req *PresenceRequest) error {
	_, err := invoke[Empty](ctx, c.cc, ChatServiceName, "SetPresence", req)
	return err
}

func (c *ChatClient) DeleteMessage(ctx context.Context, req *MessageRequest) error {
	_, err := invoke[Empty](ctx, c.cc, ChatServiceName, "DeleteMessage", req)
	return err
}

func (c *ChatClient) DeleteRoom(ctx context.Context, roomID string) error {
	_, err := invoke[Empty](ctx, c.cc, ChatServiceName, "DeleteRoom", &RoomRequest{RoomID: roomID})
	return err
}

func (c *ChatClient) React(ctx context.Context, req *ReactionRequest) error {
	_, err := invoke[Empty](ctx, c.cc, ChatServiceName, "React", req)
	return err
}

func (c *ChatClient) Unreact(ctx context.Context, req *ReactionRequest) error {
	_, err := invoke[Empty](ctx, c.cc, ChatServiceName, "Unreact", req)
	return err
}

func (c *ChatClient) Pin(ctx context.Context, req *MessageRequest) error {
	_, err := invoke[Empty](ctx, c.cc, ChatServiceName, "Pin", req)
	return err
}

func (c *ChatClient) Unpin(ctx context.Context, req *MessageRequest) error {
	_, err := invoke[Empty](ctx, c.cc, ChatServiceName, "Unpin", req)
	return err
}

func (c *ChatClient) Search(ctx context.Context, query string) (*ViewResponse, error) {
	return invoke[ViewResponse](ctx, c.cc, ChatServiceName, "Search", &SearchRequest{Query: query})
}

func (c *ChatClient) ClearSearch(ctx context.Context) error {
	_, err := invoke[Empty](ctx, c.cc, ChatServiceName, "ClearSearch", &Empty{})
	return err
}

func (c *ChatClient) DismissBanner(ctx context.Context) error {
	_, err := invoke[Empty](ctx, c.cc, ChatServiceName, "DismissBanner", &Empty{})
	return err
}

func (c *ChatClient) CreateRoom(ctx context.Context, req *CreateRoomRequest) (*RoomResponse, error) {
	return invoke[RoomResponse](ctx, c.cc, ChatServiceName, "CreateRoom", req)
}

// WatchView opens the view stream. fn is called for every event until the
// stream ends or fn returns an error; a clean end returns nil.
func (c *ChatClient) WatchView(ctx context.Context, fn func(*ViewEvent) error) error {
	stream, err := c.cc.NewStream(ctx, &chatDesc.Streams[0], "/"+ChatServiceName+"/WatchView", CallOptions()...)
	if err != nil {
		return err
	}
	if err := stream.SendMsg(&Empty{}); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		evt := new(ViewEvent)
		if err := stream.RecvMsg(evt); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := fn(evt); err != nil {
			return err
		}
	}
}

// PrefsClient calls the Prefs service.
type PrefsClient struct{ cc grpc.ClientConnInterface }

func NewPrefsClient(cc grpc.ClientConnInterface) *PrefsClient { return &PrefsClient{cc: cc} }

func (c *PrefsClient) HiddenNotes(ctx context.Context, cached bool) (*HiddenNotesResponse, error) {
	return invoke[HiddenNotesResponse](ctx, c.cc, PrefsServiceName, "HiddenNotes", &HiddenNotesRequest{Cached: cached})
}

func (c *PrefsClient) HideNote(ctx context.Context, noteID string) (*HiddenNotesResponse, error) {
	return invoke[HiddenNotesResponse](ctx, c.cc, PrefsServiceName, "HideNote", &NoteRequest{NoteID: noteID})
}

func (c *PrefsClient) UnhideNote(ctx context.Context, noteID string) (*HiddenNotesResponse, error) {
	return invoke[HiddenNotesResponse](ctx, c.cc, PrefsServiceName, "UnhideNote", &NoteRequest{NoteID: noteID})
}

func (c *PrefsClient) MigrateHiddenNotes(ctx context.Context, legacyPath string) (*MigrateResponse, error) {
	return invoke[MigrateResponse](ctx, c.cc, PrefsServiceName, "MigrateHiddenNotes", &MigrateRequest{LegacyPath: legacyPath})
}
