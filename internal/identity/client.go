// Package identity implements the identity client (C3): a single GET to the
// configured session endpoint that resolves a token into a Session.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/authava/authgate/internal/rules"
)

// DefaultTTL is used when a token carries no usable exp claim, per §4.3.
const DefaultTTL = 5 * time.Minute

const requestTimeout = 10 * time.Second

// Error wraps a failed resolution, carrying the upstream status code when
// one is available (0 for transport-level failures).
type Error struct {
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("identity: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("identity: %v", e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Client is a stateless, concurrency-safe caller of the external identity
// service.
type Client struct {
	httpClient *http.Client
}

// New builds a Client with the fixed 10s request timeout mandated by §4.3.
func New() *Client {
	return &Client{httpClient: &http.Client{Timeout: requestTimeout}}
}

// Resolve issues one GET to sessionURL with token placed in a cookie named
// "session" regardless of the gateway's own configured cookie name, and
// parses a 2xx body as a Session. Non-2xx responses and parse failures both
// yield *Error.
func (c *Client) Resolve(ctx context.Context, sessionURL, token string) (rules.Session, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sessionURL, nil)
	if err != nil {
		return rules.Session{}, 0, &Error{Err: fmt.Errorf("build request: %w", err)}
	}
	req.AddCookie(&http.Cookie{Name: "session", Value: token})

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return rules.Session{}, 0, &Error{Err: fmt.Errorf("request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return rules.Session{}, 0, &Error{StatusCode: resp.StatusCode, Err: fmt.Errorf("non-2xx response")}
	}

	var session rules.Session
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return rules.Session{}, 0, &Error{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode session: %w", err)}
	}

	return session, TTLForToken(token), nil
}
