package relay

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/notehub/nhchat/internal/relay/auth"
	"github.com/notehub/nhchat/internal/wire"
)

func (s *Server) listRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.db.RoomsForUser(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if rooms == nil {
		rooms = []wire.Room{}
	}
	writeJSON(w, http.StatusOK, wire.RoomsResponse{Rooms: rooms})
}

// createRoom creates a room, or returns the existing direct room with the
// same participant. New rooms are announced to every member.
func (s *Server) createRoom(w http.ResponseWriter, r *http.Request) {
	var in wire.CreateRoomRequest
	if err := decode(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	ctx := r.Context()
	userID := auth.UserID(ctx)
	id, created, err := s.db.CreateRoom(ctx, userID, in.Name, in.ParticipantIDs)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	room, err := s.db.RoomForUser(ctx, id, userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !created {
		writeJSON(w, http.StatusOK, room)
		return
	}

	members, err := s.db.MemberIDs(ctx, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	for _, m := range members {
		view := room
		if m != userID {
			if view, err = s.db.RoomForUser(ctx, id, m); err != nil {
				s.logger.Warn("room view for member", zap.String("room_id", id), zap.String("user_id", m), zap.Error(err))
				continue
			}
		}
		s.hub.PublishEvent([]string{m}, wire.TypeRoomCreated, id, view)
	}
	writeJSON(w, http.StatusCreated, room)
}

func (s *Server) deleteRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	members, err := s.db.DeleteRoom(r.Context(), roomID, auth.UserID(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.hub.PublishEvent(members, wire.TypeRoomDeleted, roomID, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) markRead(w http.ResponseWriter, r *http.Request) {
	if err := s.db.MarkRead(r.Context(), chi.URLParam(r, "roomID"), auth.UserID(r.Context())); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	msgs, err := s.db.Messages(r.Context(), chi.URLParam(r, "roomID"), auth.UserID(r.Context()),
		r.URL.Query().Get("before"), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []wire.Message{}
	}
	writeJSON(w, http.StatusOK, wire.MessagesResponse{Messages: msgs})
}

func (s *Server) deleteMessage(w http.ResponseWriter, r *http.Request) {
	roomID, msgID := chi.URLParam(r, "roomID"), chi.URLParam(r, "msgID")
	if err := s.db.DeleteMessage(r.Context(), roomID, msgID, auth.UserID(r.Context())); err != nil {
		s.fail(w, r, err)
		return
	}
	s.publish(r, roomID, wire.TypeMessageDeleted, wire.MessageRefData{MessageID: msgID})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) addReaction(w http.ResponseWriter, r *http.Request) {
	var in wire.ReactionRequest
	if err := decode(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	s.react(w, r, strings.TrimSpace(in.Emoji), true)
}

func (s *Server) removeReaction(w http.ResponseWriter, r *http.Request) {
	emoji, err := url.PathUnescape(chi.URLParam(r, "emoji"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed emoji")
		return
	}
	s.react(w, r, emoji, false)
}

func (s *Server) react(w http.ResponseWriter, r *http.Request, emoji string, add bool) {
	if emoji == "" {
		writeError(w, http.StatusBadRequest, "emoji is required")
		return
	}
	ctx := r.Context()
	roomID, msgID := chi.URLParam(r, "roomID"), chi.URLParam(r, "msgID")
	u, err := s.currentUser(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	typ := wire.TypeReactionAdded
	var changed bool
	if add {
		changed, err = s.db.AddReaction(ctx, roomID, msgID, u.ID, emoji)
	} else {
		typ = wire.TypeReactionRemoved
		changed, err = s.db.RemoveReaction(ctx, roomID, msgID, u.ID, emoji)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if changed {
		s.publish(r, roomID, typ, wire.ReactionData{MessageID: msgID, Emoji: emoji, User: u.Ref()})
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) pin(w http.ResponseWriter, r *http.Request)   { s.setPinned(w, r, true) }
func (s *Server) unpin(w http.ResponseWriter, r *http.Request) { s.setPinned(w, r, false) }

func (s *Server) setPinned(w http.ResponseWriter, r *http.Request, pinned bool) {
	roomID, msgID := chi.URLParam(r, "roomID"), chi.URLParam(r, "msgID")
	changed, err := s.db.SetPinned(r.Context(), roomID, msgID, auth.UserID(r.Context()), pinned)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if changed {
		typ := wire.TypeMessageUnpinned
		if pinned {
			typ = wire.TypeMessagePinned
		}
		s.publish(r, roomID, typ, wire.MessageRefData{MessageID: msgID})
	}
	w.WriteHeader(http.StatusNoContent)
}

// publish fans a room event out; a failure is logged since the change is
// already stored.
func (s *Server) publish(r *http.Request, roomID, typ string, data any) {
	if err := s.hub.PublishRoom(r.Context(), roomID, typ, data); err != nil {
		s.logger.Warn("publish room event",
			zap.String("room_id", roomID),
			zap.String("type", typ),
			zap.Error(err))
	}
}
