package api

import (
	"context"

	"google.golang.org/grpc"
)

// Fully qualified service names.
const (
	SessionServiceName = "nhchat.v1.Session"
	ChatServiceName    = "nhchat.v1.Chat"
	PrefsServiceName   = "nhchat.v1.Prefs"
)

// SessionServer is the daemon's session API.
type SessionServer interface {
	GetStatus(context.Context, *Empty) (*StatusResponse, error)
	Login(context.Context, *LoginRequest) (*StatusResponse, error)
	Logout(context.Context, *Empty) (*StatusResponse, error)
}

// ChatServer is the daemon's chat API.
type ChatServer interface {
	LoadRooms(context.Context, *LoadRoomsRequest) (*RoomsResponse, error)
	SelectRoom(context.Context, *RoomRequest) (*ViewResponse, error)
	GetView(context.Context, *Empty) (*ViewResponse, error)
	SendMessage(context.Context, *SendMessageRequest) (*SendMessageResponse, error)
	SetTyping(context.Context, *TypingRequest) (*Empty, error)
	SetPresence(context.Context, *PresenceRequest) (*Empty, error)
	DeleteMessage(context.Context, *MessageRequest) (*Empty, error)
	DeleteRoom(context.Context, *RoomRequest) (*Empty, error)
	React(context.Context, *ReactionRequest) (*Empty, error)
	Unreact(context.Context, *ReactionRequest) (*Empty, error)
	Pin(context.Context, *MessageRequest) (*Empty, error)
	Unpin(context.Context, *MessageRequest) (*Empty, error)
	Search(context.Context, *SearchRequest) (*ViewResponse, error)
	ClearSearch(context.Context, *Empty) (*Empty, error)
	DismissBanner(context.Context, *Empty) (*Empty, error)
	CreateRoom(context.Context, *CreateRoomRequest) (*RoomResponse, error)
	WatchView(*Empty, ViewStream) error
}

// PrefsServer is the daemon's preferences API.
type PrefsServer interface {
	HiddenNotes(context.Context, *HiddenNotesRequest) (*HiddenNotesResponse, error)
	HideNote(context.Context, *NoteRequest) (*HiddenNotesResponse, error)
	UnhideNote(context.Context, *NoteRequest) (*HiddenNotesResponse, error)
	MigrateHiddenNotes(context.Context, *MigrateRequest) (*MigrateResponse, error)
}

// ViewStream is the server side of WatchView.
type ViewStream interface {
	Send(*ViewEvent) error
	Context() context.Context
}

type viewStream struct {
	grpc.ServerStream
}

func (s *viewStream) Send(evt *ViewEvent) error { return s.SendMsg(evt) }

// unary builds a method descriptor that decodes Req and calls fn on the
// registered server implementation S.
func unary[S, Req, Resp any](service, method string, fn func(S, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	full := "/" + service + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			call := func(ctx context.Context, req any) (any, error) {
				return fn(srv.(S), ctx, req.(*Req))
			}
			if interceptor == nil {
				return call(ctx, in)
			}
			return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: full}, call)
		},
	}
}

var sessionDesc = grpc.ServiceDesc{
	ServiceName: SessionServiceName,
	HandlerType: (*SessionServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(SessionServiceName, "GetStatus", SessionServer.GetStatus),
		unary(SessionServiceName, "Login", SessionServer.Login),
		unary(SessionServiceName, "Logout", SessionServer.Logout),
	},
}

var chatDesc = grpc.ServiceDesc{
	ServiceName: ChatServiceName,
	HandlerType: (*ChatServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(ChatServiceName, "LoadRooms", ChatServer.LoadRooms),
		unary(ChatServiceName, "SelectRoom", ChatServer.SelectRoom),
		unary(ChatServiceName, "GetView", ChatServer.GetView),
		unary(ChatServiceName, "SendMessage", ChatServer.SendMessage),
		unary(ChatServiceName, "SetTyping", ChatServer.SetTyping),
		unary(ChatServiceName, "SetPresence", ChatServer.SetPresence),
		unary(ChatServiceName, "DeleteMessage", ChatServer.DeleteMessage),
		unary(ChatServiceName, "DeleteRoom", ChatServer.DeleteRoom),
		unary(ChatServiceName, "React", ChatServer.React),
		unary(ChatServiceName, "Unreact", ChatServer.Unreact),
		unary(ChatServiceName, "Pin", ChatServer.Pin),
		unary(ChatServiceName, "Unpin", ChatServer.Unpin),
		unary(ChatServiceName, "Search", ChatServer.Search),
		unary(ChatServiceName, "ClearSearch", ChatServer.ClearSearch),
		unary(ChatServiceName, "DismissBanner", ChatServer.DismissBanner),
		unary(ChatServiceName, "CreateRoom", ChatServer.CreateRoom),
	},
	Streams: []grpc.StreamDesc{{
		StreamName:    "WatchView",
		ServerStreams: true,
		Handler: func(srv any, stream grpc.ServerStream) error {
			in := new(Empty)
			if err := stream.RecvMsg(in); err != nil {
				return err
			}
			return srv.(ChatServer).WatchView(in, &viewStream{stream})
		},
	}},
}

var prefsDesc = grpc.ServiceDesc{
	ServiceName: PrefsServiceName,
	HandlerType: (*PrefsServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(PrefsServiceName, "HiddenNotes", PrefsServer.HiddenNotes),
		unary(PrefsServiceName, "HideNote", PrefsServer.HideNote),
		unary(PrefsServiceName, "UnhideNote", PrefsServer.UnhideNote),
		unary(PrefsServiceName, "MigrateHiddenNotes", PrefsServer.MigrateHiddenNotes),
	},
}

// RegisterSessionServer registers s on r.
func RegisterSessionServer(r grpc.ServiceRegistrar, s SessionServer) { r.RegisterService(&sessionDesc, s) }

// RegisterChatServer registers s on r.
func RegisterChatServer(r grpc.ServiceRegistrar, s ChatServer) { r.RegisterService(&chatDesc, s) }

// RegisterPrefsServer registers s on r.
func RegisterPrefsServer(r grpc.ServiceRegistrar, s PrefsServer) { r.RegisterService(&prefsDesc, s) }
