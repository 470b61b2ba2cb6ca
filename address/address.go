// Package address implements the driver's network-location value type:
// parsing, and the scheme-rewrite transform used to switch between
// plaintext and TLS endpoints of the same server.
package address

import (
	"fmt"
	"net"
	"strings"

	typedriverrrors "github.com/redbco/typedriver/errors"
)

const defaultPath = "/"

// Address is an immutable host:port network location, with an
// optional URI scheme used only for the with-scheme transform.
type Address struct {
	Scheme string
	Host   string
	Port   string
	Path   string
}

// Parse parses s into an Address. s may optionally carry a
// "scheme://" prefix; a port component is mandatory.
func Parse(s string) (Address, error) {
	scheme := ""
	rest := s
	if idx := strings.Index(s, "://"); idx >= 0 {
		scheme = s[:idx]
		rest = s[idx+3:]
	}

	path := defaultPath
	if idx := strings.Index(rest, "/"); idx >= 0 {
		path = rest[idx:]
		rest = rest[:idx]
	}

	host, port, err := net.SplitHostPort(rest)
	if err != nil || port == "" {
		return Address{}, typedriverrrors.New(typedriverrrors.MissingPort, "address %q has no port component", s)
	}

	return Address{Scheme: scheme, Host: host, Port: port, Path: path}, nil
}

// MustParse is like Parse but panics on error; useful for constants in
// tests.
func MustParse(s string) Address {
	addr, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return addr
}

// HostPort returns "host:port", the form accepted by net.Dial and
// grpc.NewClient.
func (a Address) HostPort() string {
	return net.JoinHostPort(a.Host, a.Port)
}

// WithScheme returns a copy of a with its scheme replaced. If a has no
// path, the default path "/" is applied.
func (a Address) WithScheme(scheme string) Address {
	out := a
	out.Scheme = scheme
	if out.Path == "" {
		out.Path = defaultPath
	}
	return out
}

// String renders the address back to "scheme://host:port/path" form,
// omitting the scheme if unset.
func (a Address) String() string {
	hostPort := a.HostPort()
	if a.Scheme == "" {
		return hostPort
	}
	return fmt.Sprintf("%s://%s%s", a.Scheme, hostPort, a.Path)
}

// Equal reports whether two addresses name the same host and port,
// ignoring scheme and path.
func (a Address) Equal(other Address) bool {
	return a.Host == other.Host && a.Port == other.Port
}
