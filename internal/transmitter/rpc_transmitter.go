package transmitter

import (
	"context"

	"github.com/redbco/typedriver/address"
	"github.com/redbco/typedriver/credentials"
	"github.com/redbco/typedriver/errors"
	"github.com/redbco/typedriver/internal/rpc"
	"github.com/redbco/typedriver/internal/runtime"
	"github.com/redbco/typedriver/internal/wire"
	"github.com/redbco/typedriver/options"
)

// RPCTransmitter is the per-server request/response transmitter
// (spec.md §4.F): every unary call is forwarded to the Stub directly,
// since gRPC's own flow control already serializes concurrent unary
// calls on one HTTP/2 connection and there is no batching window to
// maintain, unlike the transaction transmitter.
type RPCTransmitter struct {
	channel *rpc.Channel
	stub    *rpc.Stub
	runtime *runtime.Runtime
}

// Start dials addr and returns a ready RPCTransmitter.
func Start(rt *runtime.Runtime, addr address.Address, creds credentials.Credentials, driverOpts options.DriverOptions) (*RPCTransmitter, error) {
	ch, err := rpc.Open(addr, creds, driverOpts)
	if err != nil {
		if log := rt.Logger(); log != nil {
			log.Error("failed to open channel to %s: %v", addr, err)
		}
		return nil, err
	}
	if log := rt.Logger(); log != nil {
		log.Info("channel opened to %s", addr)
	}
	return &RPCTransmitter{channel: ch, stub: rpc.NewStub(ch), runtime: rt}, nil
}

// Credentials exposes the channel's shared CallCredentials so the
// owning connection can install a refreshed bearer token.
func (t *RPCTransmitter) Credentials() *rpc.CallCredentials { return t.channel.Creds }

func (t *RPCTransmitter) ConnectionOpen(ctx context.Context, req wire.ConnectionOpenReq) (wire.ConnectionOpenRes, error) {
	return t.stub.ConnectionOpen(ctx, req)
}

func (t *RPCTransmitter) ServersAll(ctx context.Context) (wire.ServersAllRes, error) {
	return t.stub.ServersAll(ctx, wire.ServersAllReq{})
}

func (t *RPCTransmitter) DatabasesContains(ctx context.Context, name string) (bool, error) {
	res, err := t.stub.DatabasesContains(ctx, wire.DatabasesContainsReq{Name: name})
	return res.Contains, err
}

func (t *RPCTransmitter) DatabaseGet(ctx context.Context, name string) (wire.ClusterDatabase, error) {
	res, err := t.stub.DatabaseGet(ctx, wire.DatabaseGetReq{Name: name})
	return res.Database, err
}

func (t *RPCTransmitter) DatabasesAll(ctx context.Context) ([]wire.ClusterDatabase, error) {
	res, err := t.stub.DatabasesAll(ctx, wire.DatabasesAllReq{})
	return res.Databases, err
}

func (t *RPCTransmitter) DatabaseCreate(ctx context.Context, name string) error {
	_, err := t.stub.DatabaseCreate(ctx, wire.DatabaseCreateReq{Name: name})
	return err
}

func (t *RPCTransmitter) DatabaseDelete(ctx context.Context, name string) error {
	_, err := t.stub.DatabaseDelete(ctx, wire.DatabaseDeleteReq{Name: name})
	return err
}

func (t *RPCTransmitter) DatabaseSchema(ctx context.Context, name string) (string, error) {
	res, err := t.stub.DatabaseSchema(ctx, wire.DatabaseSchemaReq{Name: name})
	return res.Schema, err
}

func (t *RPCTransmitter) DatabaseTypeSchema(ctx context.Context, name string) (string, error) {
	res, err := t.stub.DatabaseTypeSchema(ctx, wire.DatabaseTypeSchemaReq{Name: name})
	return res.Schema, err
}

func (t *RPCTransmitter) UsersAll(ctx context.Context) ([]wire.UserInfo, error) {
	res, err := t.stub.UsersAll(ctx, wire.UsersAllReq{})
	return res.Users, err
}

func (t *RPCTransmitter) UsersContains(ctx context.Context, name string) (bool, error) {
	res, err := t.stub.UsersContains(ctx, wire.UsersContainsReq{Name: name})
	return res.Contains, err
}

func (t *RPCTransmitter) UsersCreate(ctx context.Context, name, password string) error {
	_, err := t.stub.UsersCreate(ctx, wire.UsersCreateReq{Name: name, Password: password})
	return err
}

func (t *RPCTransmitter) UsersUpdate(ctx context.Context, name, newPassword string) error {
	_, err := t.stub.UsersUpdate(ctx, wire.UsersUpdateReq{Name: name, NewPassword: newPassword})
	return err
}

func (t *RPCTransmitter) UsersDelete(ctx context.Context, name string) error {
	_, err := t.stub.UsersDelete(ctx, wire.UsersDeleteReq{Name: name})
	return err
}

func (t *RPCTransmitter) UsersGet(ctx context.Context, name string) (*wire.UserInfo, error) {
	res, err := t.stub.UsersGet(ctx, wire.UsersGetReq{Name: name})
	return res.User, err
}

// OpenedTransaction is the triple the original design returns from
// opening a transaction: the request ID assigned to the Open exchange
// (the client generates it up front so it can be echoed by the
// server), a ready TransactionTransmitter, and the server's reported
// setup duration.
type OpenedTransaction struct {
	RequestID            wire.RequestID
	Transmitter          *TransactionTransmitter
	ServerDurationMillis int64
}

// Transaction opens a fresh bidirectional transaction stream, sends
// the Open request as the stream's first message, and blocks for the
// server's Open acknowledgement before handing back a transmitter
// ready for further multiplexed exchanges (spec.md §4.F "Transaction
// stream opening").
func (t *RPCTransmitter) Transaction(ctx context.Context, open wire.TransactionOpenReq) (OpenedTransaction, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	stream, err := t.stub.Transaction(streamCtx)
	if err != nil {
		cancel()
		return OpenedTransaction{}, errors.Wrap(errors.ServerConnectionFailed, err, "failed to open transaction stream")
	}

	requestID := wire.NewRequestID()
	firstMsg := wire.TransactionClientMsg{Reqs: []wire.TransactionReq{{
		RequestID: requestID,
		Kind:      wire.ReqOpen,
		Open:      &open,
	}}}
	if err := stream.SendMsg(&firstMsg); err != nil {
		cancel()
		return OpenedTransaction{}, errors.Wrap(errors.SendError, err, "failed to send transaction open request")
	}

	var serverMsg wire.TransactionServerMsg
	if err := stream.RecvMsg(&serverMsg); err != nil {
		cancel()
		return OpenedTransaction{}, errors.Wrap(errors.RecvError, err, "failed to receive transaction open response")
	}
	if serverMsg.Res == nil {
		cancel()
		return OpenedTransaction{}, errors.New(errors.UnexpectedResponse, "transaction open reply carried no res")
	}
	if serverMsg.Res.Kind == wire.ResErrorKind && serverMsg.Res.Error != nil {
		cancel()
		return OpenedTransaction{}, errors.New(errors.ServerError, "%s: %s", serverMsg.Res.Error.Code, serverMsg.Res.Error.Message)
	}
	if serverMsg.Res.Kind != wire.ResOpen || serverMsg.Res.Open == nil {
		cancel()
		return OpenedTransaction{}, errors.New(errors.UnexpectedResponse, "transaction open reply carried kind %d", serverMsg.Res.Kind)
	}

	txTransmitter := New(t.runtime, stream, cancel)
	return OpenedTransaction{
		RequestID:            requestID,
		Transmitter:          txTransmitter,
		ServerDurationMillis: serverMsg.Res.Open.ServerDurationMillis,
	}, nil
}

// Export opens a DatabaseExport server-stream for name and starts
// relaying it into an ExportTransmitter (spec.md §4.I).
func (t *RPCTransmitter) Export(ctx context.Context, name string) (*ExportTransmitter, error) {
	stream, err := t.stub.DatabaseExport(ctx, name)
	if err != nil {
		return nil, errors.Wrap(errors.ServerConnectionFailed, err, "failed to open export stream for %s", name)
	}
	return StartExport(t.runtime, stream), nil
}

// Import opens a DatabaseImport client-stream, sends the initial
// database name/schema message, and returns an ImportTransmitter ready
// to accept data batches (spec.md §4.H).
func (t *RPCTransmitter) Import(ctx context.Context, initial wire.ImportInitial) (*ImportTransmitter, error) {
	stream, err := t.stub.DatabaseImport(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.ServerConnectionFailed, err, "failed to open import stream for %s", initial.Name)
	}
	return StartImport(t.runtime, stream, initial)
}

// Close tears down the underlying channel.
func (t *RPCTransmitter) Close() error {
	if log := t.runtime.Logger(); log != nil {
		log.Info("closing channel to %s", t.channel.Addr)
	}
	return t.channel.Close()
}
