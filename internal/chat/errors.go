package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrEmptyMessage     = errors.New("message has no text and no photo")
	ErrNoRoomSelected   = errors.New("no room selected")
	ErrUnknownRoom      = errors.New("unknown room")
	ErrSelectSuperseded = errors.New("room selection superseded")
	ErrNotAuthenticated = errors.New("not authenticated")
)

// Kind classifies a failure for display and retry decisions.
type Kind int

const (
	KindNetwork Kind = iota
	KindRejected
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindRejected:
		return "rejected"
	case KindInvalid:
		return "invalid"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is returned by every Engine operation that fails.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// statusCoder is implemented by upstream HTTP errors.
type statusCoder interface {
	StatusCode() int
}

// classify wraps err as an *Error, inferring its kind.
func classify(op string, err error) *Error {
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	kind := KindNetwork
	var sc statusCoder
	switch {
	case errors.Is(err, ErrEmptyMessage), errors.Is(err, ErrNoRoomSelected), errors.Is(err, ErrUnknownRoom):
		kind = KindInvalid
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		kind = KindNetwork
	case errors.As(err, &sc):
		code := sc.StatusCode()
		switch {
		case code == http.StatusBadRequest || code == http.StatusUnprocessableEntity:
			kind = KindInvalid
		case code >= 400 && code < 500:
			kind = KindRejected
		}
	}
	return &Error{Kind: kind, Op: op, Err: err}
}
