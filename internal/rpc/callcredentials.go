package rpc

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CallCredentials holds the mutable bearer token shared between a
// Channel's interceptor and the Driver that owns it (spec.md §4.C).
// It is read on every outbound call and written only on token
// refresh/reset, which the spec notes are rare and brief — hence the
// RWMutex rather than an atomic.Value, matching the teacher's own
// preference for RWMutex-guarded shared state (pkg/config.Config).
type CallCredentials struct {
	username string
	password string

	mu    sync.RWMutex
	token string
	set   bool
}

// NewCallCredentials constructs a CallCredentials for the given basic
// auth pair. No token is set until SetToken is called.
func NewCallCredentials(username, password string) *CallCredentials {
	return &CallCredentials{username: username, password: password}
}

// Username returns the basic-auth username carried alongside the
// bearer token on every call.
func (c *CallCredentials) Username() string { return c.username }

// Password returns the basic-auth password, used only until a bearer
// token has been issued.
func (c *CallCredentials) Password() string { return c.password }

// SetToken installs a freshly issued bearer token.
func (c *CallCredentials) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	c.set = true
}

// ResetToken clears the current token, reverting the interceptor to
// attaching the basic-auth password until a new token is set.
func (c *CallCredentials) ResetToken() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.set = false
}

// Token returns the current bearer token, if any.
func (c *CallCredentials) Token() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token, c.set
}

// NearExpiry reports whether the current token's JWT "exp" claim (if
// present and parseable) falls within the given horizon, so a caller
// can proactively refresh before the server starts rejecting calls.
// Tokens opaque to JWT parsing (or without an exp claim) are never
// reported as near expiry; this is a best-effort hint, not a
// correctness requirement.
func (c *CallCredentials) NearExpiry(horizon time.Duration) bool {
	token, ok := c.Token()
	if !ok {
		return false
	}
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	// ParseUnverified: the driver never validates the token signature
	// (that's the server's job) — it only reads a client-visible
	// expiry hint.
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return time.Until(exp.Time) <= horizon
}
