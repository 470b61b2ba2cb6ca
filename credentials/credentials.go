// Package credentials holds the immutable username/password pair a
// Driver authenticates with. The bearer token issued in exchange for
// these credentials is a separate, mutable concept owned by
// internal/rpc.CallCredentials — see spec.md §4.C.
package credentials

// Credentials is an immutable username/password pair.
type Credentials struct {
	username string
	password string
}

// New constructs a Credentials value.
func New(username, password string) Credentials {
	return Credentials{username: username, password: password}
}

// Username returns the credential's username.
func (c Credentials) Username() string { return c.username }

// Password returns the credential's password.
func (c Credentials) Password() string { return c.password }
