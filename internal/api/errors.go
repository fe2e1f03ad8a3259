package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/notehub/nhchat/internal/chat"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// ErrLoggedOut is returned by chat calls while no user is signed in.
var ErrLoggedOut = errors.New("not logged in")

type statusCoder interface {
	StatusCode() int
}

// toStatus maps domain errors onto gRPC status codes.
func toStatus(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := grpcstatus.FromError(err); ok {
		return err
	}
	return grpcstatus.Errorf(codeFor(err), "%s: %v", op, err)
}

func codeFor(err error) codes.Code {
	var sc statusCoder
	if errors.As(err, &sc) {
		switch sc.StatusCode() {
		case http.StatusUnauthorized:
			return codes.Unauthenticated
		case http.StatusForbidden:
			return codes.PermissionDenied
		case http.StatusNotFound:
			return codes.NotFound
		case http.StatusConflict:
			return codes.AlreadyExists
		}
	}
	switch {
	case errors.Is(err, ErrLoggedOut), errors.Is(err, chat.ErrNotAuthenticated):
		return codes.Unauthenticated
	case errors.Is(err, chat.ErrSelectSuperseded):
		return codes.Aborted
	case errors.Is(err, chat.ErrUnknownRoom):
		return codes.NotFound
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	}
	var ce *chat.Error
	if errors.As(err, &ce) {
		switch ce.Kind {
		case chat.KindInvalid:
			return codes.InvalidArgument
		case chat.KindRejected:
			return codes.FailedPrecondition
		case chat.KindNetwork:
			return codes.Unavailable
		}
	}
	return codes.Internal
}
