// Package rpc implements the per-server RPC channel (spec.md §4.C) and
// the thin typed stub over it (spec.md §4.D).
package rpc

import (
	"crypto/tls"
	"crypto/x509"
	"os"
	"time"

	"google.golang.org/grpc"
	grpccredentials "google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"

	"github.com/redbco/typedriver/address"
	"github.com/redbco/typedriver/credentials"
	"github.com/redbco/typedriver/errors"
	"github.com/redbco/typedriver/options"
)

const keepaliveInterval = 3 * time.Second

// Channel is a long-lived per-server gRPC transport with lazy
// reconnect, optional TLS, and a bearer-token-injecting interceptor.
type Channel struct {
	Conn  *grpc.ClientConn
	Creds *CallCredentials
	Addr  address.Address
}

// Open dials addr according to driverOpts, wiring creds through the
// interceptor so every outbound call carries the current bearer
// token. The scheme on addr is forced to "https" when TLS is enabled
// (and "http" otherwise); an address that explicitly names the
// opposite scheme is rejected with SchemeTlsSettingsMismatch, per
// spec.md §4.C.
func Open(addr address.Address, creds credentials.Credentials, driverOpts options.DriverOptions) (*Channel, error) {
	wantScheme := "http"
	if driverOpts.TLSEnabled {
		wantScheme = "https"
	}
	if addr.Scheme != "" && addr.Scheme != wantScheme {
		return nil, errors.New(errors.SchemeTlsSettingsMismatch,
			"address scheme %q conflicts with tls_enabled=%v", addr.Scheme, driverOpts.TLSEnabled)
	}
	addr = addr.WithScheme(wantScheme)

	transportCreds, err := buildTransportCredentials(driverOpts)
	if err != nil {
		return nil, err
	}

	callCreds := NewCallCredentials(creds.Username(), creds.Password())

	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(transportCreds),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                keepaliveInterval,
			Timeout:             keepaliveInterval,
			PermitWithoutStream: true,
		}),
		grpc.WithUnaryInterceptor(unaryCredentialInterceptor(callCreds)),
		grpc.WithStreamInterceptor(streamCredentialInterceptor(callCreds)),
	}

	// grpc.NewClient never blocks: the connection is established lazily
	// on the first RPC, matching the original driver's connect_lazy().
	conn, err := grpc.NewClient(addr.HostPort(), dialOpts...)
	if err != nil {
		return nil, errors.Wrap(errors.ServerConnectionFailed, err, "failed to create channel to %s", addr)
	}

	return &Channel{Conn: conn, Creds: callCreds, Addr: addr}, nil
}

func buildTransportCredentials(driverOpts options.DriverOptions) (grpccredentials.TransportCredentials, error) {
	if !driverOpts.TLSEnabled {
		return insecure.NewCredentials(), nil
	}

	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if driverOpts.TLSRootCAPath != "" {
		pem, err := os.ReadFile(driverOpts.TLSRootCAPath)
		if err != nil {
			return nil, errors.Wrap(errors.ServerConnectionFailed, err, "failed to read TLS root CA at %s", driverOpts.TLSRootCAPath)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.New(errors.ServerConnectionFailed, "TLS root CA at %s contains no usable certificates", driverOpts.TLSRootCAPath)
		}
		tlsConfig.RootCAs = pool
	}
	return grpccredentials.NewTLS(tlsConfig), nil
}

// Close tears down the channel's underlying connection.
func (c *Channel) Close() error {
	return c.Conn.Close()
}
