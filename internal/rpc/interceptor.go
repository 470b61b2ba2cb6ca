package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

const (
	metaUsername = "username"
	metaPassword = "password"
	metaToken    = "token"
)

// attachCredentials builds the outgoing metadata every call carries:
// the username always, and either the current bearer token or (until
// one has been issued) the password — mirroring the original
// driver's CredentialInjector.
func attachCredentials(ctx context.Context, creds *CallCredentials) context.Context {
	md := metadata.Pairs(metaUsername, creds.Username())
	if token, ok := creds.Token(); ok {
		md.Set(metaToken, token)
	} else {
		md.Set(metaPassword, creds.Password())
	}
	return metadata.NewOutgoingContext(ctx, md)
}

// unaryCredentialInterceptor attaches the current bearer token (or
// password) to every outbound unary call.
func unaryCredentialInterceptor(creds *CallCredentials) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		return invoker(attachCredentials(ctx, creds), method, req, reply, cc, opts...)
	}
}

// streamCredentialInterceptor attaches the current bearer token (or
// password) when a new stream (e.g. a transaction) is opened.
func streamCredentialInterceptor(creds *CallCredentials) grpc.StreamClientInterceptor {
	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		return streamer(attachCredentials(ctx, creds), desc, cc, method, opts...)
	}
}
