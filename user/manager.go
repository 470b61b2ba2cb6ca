package user

import (
	"context"

	"github.com/redbco/typedriver/internal/transmitter"
	"github.com/redbco/typedriver/internal/wire"
)

// Manager exposes server-wide user administration (spec.md §4.M
// "UserManager").
type Manager struct {
	servers  ServerSet
	username string // the connection's own username, for GetCurrentUser
}

// NewManager wraps a ServerSet, tagging it with the connecting user's
// own name so GetCurrentUser needs no extra argument.
func NewManager(servers ServerSet, connectionUsername string) *Manager {
	return &Manager{servers: servers, username: connectionUsername}
}

// GetCurrentUser returns the user of the current connection.
func (m *Manager) GetCurrentUser(ctx context.Context) (*User, error) {
	return m.Get(ctx, m.username)
}

// Contains reports whether a user named username exists.
func (m *Manager) Contains(ctx context.Context, username string) (bool, error) {
	var contains bool
	err := runOnAny(ctx, m.servers, func(ctx context.Context, t *transmitter.RPCTransmitter) error {
		res, err := t.UsersContains(ctx, username)
		contains = res
		return err
	})
	return contains, err
}

// Get retrieves a user by name, returning (nil, nil) if no such user exists.
func (m *Manager) Get(ctx context.Context, username string) (*User, error) {
	var info *wire.UserInfo
	err := runOnAny(ctx, m.servers, func(ctx context.Context, t *transmitter.RPCTransmitter) error {
		res, err := t.UsersGet(ctx, username)
		info = res
		return err
	})
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, nil
	}
	u := fromWire(*info, m.servers)
	return &u, nil
}

// All lists every user on the server.
func (m *Manager) All(ctx context.Context) ([]User, error) {
	var infos []wire.UserInfo
	err := runOnAny(ctx, m.servers, func(ctx context.Context, t *transmitter.RPCTransmitter) error {
		res, err := t.UsersAll(ctx)
		infos = res
		return err
	})
	if err != nil {
		return nil, err
	}
	users := make([]User, len(infos))
	for i, info := range infos {
		users[i] = fromWire(info, m.servers)
	}
	return users, nil
}

// Create creates a user with the given name and password.
func (m *Manager) Create(ctx context.Context, username, password string) error {
	return runOnAny(ctx, m.servers, func(ctx context.Context, t *transmitter.RPCTransmitter) error {
		return t.UsersCreate(ctx, username, password)
	})
}
