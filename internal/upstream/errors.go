package upstream

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotConnected = errors.New("live channel not connected")
	ErrNoToken      = errors.New("not logged in")
)

// HTTPError is a non-2xx response from the relay.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("relay returned %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("relay returned %d: %s", e.Status, e.Message)
}

// StatusCode exposes the HTTP status for error classification.
func (e *HTTPError) StatusCode() int { return e.Status }

// IsUnauthorized reports whether err is a 401 from the relay.
func IsUnauthorized(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.Status == http.StatusUnauthorized
}
