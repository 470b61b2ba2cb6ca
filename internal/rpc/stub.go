package rpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/redbco/typedriver/internal/wire"
)

// Service names the gRPC service the stub talks to. The wire schema
// itself (message encoding) is out of scope per spec.md §1; Stub
// exercises the service purely through the JSON-codec stand-in
// registered in internal/wire.
const serviceName = "typedriver.protocol.TypeDriver"

func method(name string) string {
	return "/" + serviceName + "/" + name
}

// Stub is the typed RPC surface over a Channel (spec.md §4.D): one
// method per logical request, each a thin grpc.ClientConn.Invoke or
// NewStream call forced onto the JSON codec.
type Stub struct {
	conn *grpc.ClientConn
}

// NewStub wraps an already-open Channel's connection.
func NewStub(ch *Channel) *Stub {
	return &Stub{conn: ch.Conn}
}

func (s *Stub) invoke(ctx context.Context, name string, req, res any) error {
	return s.conn.Invoke(ctx, method(name), req, res, grpc.ForceCodec(wire.Codec()))
}

func (s *Stub) ConnectionOpen(ctx context.Context, req wire.ConnectionOpenReq) (wire.ConnectionOpenRes, error) {
	var res wire.ConnectionOpenRes
	err := s.invoke(ctx, "ConnectionOpen", &req, &res)
	return res, err
}

func (s *Stub) ServersAll(ctx context.Context, req wire.ServersAllReq) (wire.ServersAllRes, error) {
	var res wire.ServersAllRes
	err := s.invoke(ctx, "ServersAll", &req, &res)
	return res, err
}

func (s *Stub) DatabasesContains(ctx context.Context, req wire.DatabasesContainsReq) (wire.DatabasesContainsRes, error) {
	var res wire.DatabasesContainsRes
	err := s.invoke(ctx, "DatabasesContains", &req, &res)
	return res, err
}

func (s *Stub) DatabaseGet(ctx context.Context, req wire.DatabaseGetReq) (wire.DatabaseGetRes, error) {
	var res wire.DatabaseGetRes
	err := s.invoke(ctx, "DatabaseGet", &req, &res)
	return res, err
}

func (s *Stub) DatabasesAll(ctx context.Context, req wire.DatabasesAllReq) (wire.DatabasesAllRes, error) {
	var res wire.DatabasesAllRes
	err := s.invoke(ctx, "DatabasesAll", &req, &res)
	return res, err
}

func (s *Stub) DatabaseCreate(ctx context.Context, req wire.DatabaseCreateReq) (wire.DatabaseCreateRes, error) {
	var res wire.DatabaseCreateRes
	err := s.invoke(ctx, "DatabaseCreate", &req, &res)
	return res, err
}

func (s *Stub) DatabaseDelete(ctx context.Context, req wire.DatabaseDeleteReq) (wire.DatabaseDeleteRes, error) {
	var res wire.DatabaseDeleteRes
	err := s.invoke(ctx, "DatabaseDelete", &req, &res)
	return res, err
}

func (s *Stub) DatabaseSchema(ctx context.Context, req wire.DatabaseSchemaReq) (wire.DatabaseSchemaRes, error) {
	var res wire.DatabaseSchemaRes
	err := s.invoke(ctx, "DatabaseSchema", &req, &res)
	return res, err
}

func (s *Stub) DatabaseTypeSchema(ctx context.Context, req wire.DatabaseTypeSchemaReq) (wire.DatabaseTypeSchemaRes, error) {
	var res wire.DatabaseTypeSchemaRes
	err := s.invoke(ctx, "DatabaseTypeSchema", &req, &res)
	return res, err
}

func (s *Stub) UsersAll(ctx context.Context, req wire.UsersAllReq) (wire.UsersAllRes, error) {
	var res wire.UsersAllRes
	err := s.invoke(ctx, "UsersAll", &req, &res)
	return res, err
}

func (s *Stub) UsersContains(ctx context.Context, req wire.UsersContainsReq) (wire.UsersContainsRes, error) {
	var res wire.UsersContainsRes
	err := s.invoke(ctx, "UsersContains", &req, &res)
	return res, err
}

func (s *Stub) UsersCreate(ctx context.Context, req wire.UsersCreateReq) (wire.UsersCreateRes, error) {
	var res wire.UsersCreateRes
	err := s.invoke(ctx, "UsersCreate", &req, &res)
	return res, err
}

func (s *Stub) UsersUpdate(ctx context.Context, req wire.UsersUpdateReq) (wire.UsersUpdateRes, error) {
	var res wire.UsersUpdateRes
	err := s.invoke(ctx, "UsersUpdate", &req, &res)
	return res, err
}

func (s *Stub) UsersDelete(ctx context.Context, req wire.UsersDeleteReq) (wire.UsersDeleteRes, error) {
	var res wire.UsersDeleteRes
	err := s.invoke(ctx, "UsersDelete", &req, &res)
	return res, err
}

func (s *Stub) UsersGet(ctx context.Context, req wire.UsersGetReq) (wire.UsersGetRes, error) {
	var res wire.UsersGetRes
	err := s.invoke(ctx, "UsersGet", &req, &res)
	return res, err
}

// transactionStreamDesc describes the bidirectional RPC multiplexed by
// internal/transmitter's TransactionTransmitter.
var transactionStreamDesc = grpc.StreamDesc{
	StreamName:    "Transaction",
	ClientStreams: true,
	ServerStreams: true,
}

// Transaction opens the single bidirectional stream a transaction's
// entire lifetime runs over (spec.md §4.G).
func (s *Stub) Transaction(ctx context.Context) (grpc.ClientStream, error) {
	return s.conn.NewStream(ctx, &transactionStreamDesc, method("Transaction"), grpc.ForceCodec(wire.Codec()))
}

var exportStreamDesc = grpc.StreamDesc{
	StreamName:    "DatabaseExport",
	ServerStreams: true,
}

// DatabaseExport opens the server-streaming RPC a schema/data export
// reads from (spec.md §4.I).
func (s *Stub) DatabaseExport(ctx context.Context, name string) (grpc.ClientStream, error) {
	cs, err := s.conn.NewStream(ctx, &exportStreamDesc, method("DatabaseExport"), grpc.ForceCodec(wire.Codec()))
	if err != nil {
		return nil, err
	}
	if err := cs.SendMsg(&wire.DatabaseGetReq{Name: name}); err != nil {
		return nil, err
	}
	if err := cs.CloseSend(); err != nil {
		return nil, err
	}
	return cs, nil
}

var importStreamDesc = grpc.StreamDesc{
	StreamName:    "DatabaseImport",
	ClientStreams: true,
}

// DatabaseImport opens the client-streaming RPC a schema/data import
// writes to (spec.md §4.H).
func (s *Stub) DatabaseImport(ctx context.Context) (grpc.ClientStream, error) {
	return s.conn.NewStream(ctx, &importStreamDesc, method("DatabaseImport"), grpc.ForceCodec(wire.Codec()))
}
