package upstream

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// refreshSkew is how long before expiry an access token is renewed.
const refreshSkew = time.Minute

// RefreshFunc exchanges a refresh token for a new access token.
type RefreshFunc func(ctx context.Context, refreshToken string) (string, error)

// TokenSource hands out a valid access token, refreshing it shortly before
// it expires.
type TokenSource struct {
	mu       sync.Mutex
	access   string
	refresh  string
	expiry   time.Time
	now      func() time.Time
	renew    RefreshFunc
	onChange func(access, refresh string)
	flight   chan struct{}
}

// NewTokenSource creates an empty token source. renew is used for refreshes.
func NewTokenSource(renew RefreshFunc) *TokenSource {
	return &TokenSource{renew: renew, now: time.Now}
}

// OnChange registers a callback run after every successful refresh.
func (ts *TokenSource) OnChange(fn func(access, refresh string)) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.onChange = fn
}

// Set installs new tokens, e.g. after login or on daemon start.
func (ts *TokenSource) Set(access, refresh string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.access = access
	ts.refresh = refresh
	ts.expiry = tokenExpiry(access)
}

// Clear forgets all tokens.
func (ts *TokenSource) Clear() { ts.Set("", "") }

// Valid reports whether a refresh token is held.
func (ts *TokenSource) Valid() bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.refresh != "" || ts.access != ""
}

// Token returns an access token that is not about to expire.
func (ts *TokenSource) Token(ctx context.Context) (string, error) {
	ts.mu.Lock()
	if ts.access == "" && ts.refresh == "" {
		ts.mu.Unlock()
		return "", ErrNoToken
	}
	if ts.access != "" && (ts.expiry.IsZero() || ts.now().Add(refreshSkew).Before(ts.expiry)) {
		tok := ts.access
		ts.mu.Unlock()
		return tok, nil
	}
	ts.mu.Unlock()
	return ts.Refresh(ctx)
}

// Refresh forces a new access token. Concurrent callers share one request.
func (ts *TokenSource) Refresh(ctx context.Context) (string, error) {
	ts.mu.Lock()
	if ts.flight != nil {
		wait := ts.flight
		ts.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return "", ctx.Err()
		}
		ts.mu.Lock()
		defer ts.mu.Unlock()
		if ts.access == "" {
			return "", ErrNoToken
		}
		return ts.access, nil
	}
	refresh := ts.refresh
	if refresh == "" {
		ts.mu.Unlock()
		return "", ErrNoToken
	}
	done := make(chan struct{})
	ts.flight = done
	ts.mu.Unlock()

	access, err := ts.renew(ctx, refresh)

	ts.mu.Lock()
	ts.flight = nil
	close(done)
	if err != nil {
		ts.mu.Unlock()
		return "", err
	}
	ts.access = access
	ts.expiry = tokenExpiry(access)
	fn := ts.onChange
	ts.mu.Unlock()

	if fn != nil {
		fn(access, refresh)
	}
	return access, nil
}

// tokenExpiry reads the exp claim without verifying the signature; only the
// relay can verify, the client just needs to know when to renew.
func tokenExpiry(token string) time.Time {
	if token == "" {
		return time.Time{}
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil || claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
