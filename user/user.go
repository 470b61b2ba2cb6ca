// Package user implements User and UserManager (spec.md §4.M): server
// user administration, routed to any reachable server since user
// accounts are cluster-wide rather than per-database.
package user

import (
	"context"

	"github.com/redbco/typedriver/address"
	"github.com/redbco/typedriver/errors"
	"github.com/redbco/typedriver/internal/transmitter"
	"github.com/redbco/typedriver/internal/wire"
)

// ServerSet resolves and lists the servers user-management calls may
// be routed to; the same shape cluster.ServerResolver exposes, since
// user accounts aren't database-scoped and need no replica metadata.
type ServerSet interface {
	AllServers() []address.Address
	Transmitter(addr address.Address) (*transmitter.RPCTransmitter, error)
}

// User is one server account. Password is non-empty only immediately
// after a call the server chooses to echo it back on (spec.md §3
// "User" — password visibility is a server decision, not a client
// one); ordinarily the server omits it.
type User struct {
	Name     string
	Password string

	servers ServerSet
}

func fromWire(info wire.UserInfo, servers ServerSet) User {
	return User{Name: info.Name, Password: info.Password, servers: servers}
}

// UpdatePassword changes this user's password.
func (u User) UpdatePassword(ctx context.Context, newPassword string) error {
	return runOnAny(ctx, u.servers, func(ctx context.Context, t *transmitter.RPCTransmitter) error {
		return t.UsersUpdate(ctx, u.Name, newPassword)
	})
}

// Delete deletes this user.
func (u User) Delete(ctx context.Context) error {
	return runOnAny(ctx, u.servers, func(ctx context.Context, t *transmitter.RPCTransmitter) error {
		return t.UsersDelete(ctx, u.Name)
	})
}

func runOnAny(ctx context.Context, servers ServerSet, fn func(context.Context, *transmitter.RPCTransmitter) error) error {
	var lastErr error
	for _, addr := range servers.AllServers() {
		t, err := servers.Transmitter(addr)
		if err != nil {
			lastErr = err
			continue
		}
		err = fn(ctx, t)
		if err != nil && errors.IsConnectClass(err) {
			lastErr = err
			continue
		}
		return err
	}
	if lastErr == nil {
		lastErr = errors.New(errors.ServerConnectionFailed, "no servers available")
	}
	return lastErr
}
