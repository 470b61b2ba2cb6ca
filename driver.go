// Package typedriver is the driver root (spec.md §4.N): it builds the
// background runtime, opens a channel per known server, performs the
// ConnectionOpen handshake, and wires together every component package
// (cluster, database, user, transaction) behind one connection handle.
package typedriver

import (
	"context"
	"sync"

	"github.com/redbco/typedriver/address"
	"github.com/redbco/typedriver/cluster"
	"github.com/redbco/typedriver/credentials"
	"github.com/redbco/typedriver/database"
	"github.com/redbco/typedriver/errors"
	"github.com/redbco/typedriver/internal/logger"
	"github.com/redbco/typedriver/internal/runtime"
	"github.com/redbco/typedriver/internal/transmitter"
	"github.com/redbco/typedriver/internal/wire"
	"github.com/redbco/typedriver/options"
	"github.com/redbco/typedriver/transaction"
	"github.com/redbco/typedriver/user"
)

const (
	driverLang    = "go"
	driverVersion = "0.1.0"
)

// Driver is an open connection to a server cluster: one RPCTransmitter
// per known server address, a background runtime shared by all of
// them, and the component managers (Databases, Users) dispatched
// through cluster.Manager's failsafe routing.
type Driver struct {
	runtime *runtime.Runtime
	log     *logger.Logger
	creds   credentials.Credentials
	opts    options.DriverOptions

	mu           sync.RWMutex
	transmitters map[address.Address]*transmitter.RPCTransmitter
	servers      []address.Address

	connectionID         string
	serverDurationMillis int64

	cluster *cluster.Manager

	Databases *database.Manager
	Users     *user.Manager

	closed bool
}

// Connect opens a Driver against the given initial server addresses,
// performing the ConnectionOpen handshake against the first reachable
// one and then asking that server (ServersAll) for the rest of the
// cluster (spec.md §4.N). addrs must name at least one server.
func Connect(ctx context.Context, addrs []string, creds credentials.Credentials, opts options.DriverOptions) (*Driver, error) {
	if len(addrs) == 0 {
		return nil, errors.New(errors.ServerConnectionFailed, "no server addresses given")
	}

	parsed := make([]address.Address, 0, len(addrs))
	for _, s := range addrs {
		a, err := address.Parse(s)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, a)
	}

	log := logger.New("typedriver")
	rt := runtime.New(log)
	d := &Driver{
		runtime:      rt,
		log:          log,
		creds:        creds,
		opts:         opts,
		transmitters: make(map[address.Address]*transmitter.RPCTransmitter),
		servers:      parsed,
	}
	d.cluster = cluster.NewManager(d, log)
	d.Databases = database.NewManager(d.cluster)
	d.Users = user.NewManager(d, creds.Username())

	log.Info("connecting to %v", addrs)
	if err := d.handshake(ctx); err != nil {
		log.Error("handshake failed: %v", err)
		_ = rt.Close()
		return nil, err
	}
	log.Info("connected, connection id %s", d.connectionID)
	return d, nil
}

// handshake tries every known server in turn until one accepts the
// ConnectionOpen, records the connection id, and widens the working
// server list through adoptServers, which asks the same server for
// ServersAll; the database directory in the reply is not used.
func (d *Driver) handshake(ctx context.Context) error {
	var lastErr error
	for _, addr := range d.servers {
		t, err := d.Transmitter(addr)
		if err != nil {
			d.log.Warn("cannot reach %s, trying next server: %v", addr, err)
			lastErr = err
			continue
		}
		res, err := t.ConnectionOpen(ctx, wire.ConnectionOpenReq{
			DriverLang:    driverLang,
			DriverVersion: driverVersion,
			Username:      d.creds.Username(),
			Password:      d.creds.Password(),
		})
		if err != nil {
			if errors.IsConnectClass(err) {
				d.log.Warn("handshake with %s failed, trying next server: %v", addr, err)
				lastErr = err
				continue
			}
			return err
		}
		d.connectionID = res.ConnectionID
		d.serverDurationMillis = res.ServerDurationMillis
		d.adoptServers(res.Databases, addr)
		return nil
	}
	if lastErr == nil {
		lastErr = errors.New(errors.ServerConnectionFailed, "no servers reachable for %v", d.servers)
	}
	return lastErr
}

// adoptServers widens the working server list with whatever ServersAll
// reports, beyond the address the handshake itself succeeded against.
// Failure to enumerate the rest of the cluster is not fatal: the
// driver keeps working against the address it already proved
// reachable.
func (d *Driver) adoptServers(_ []string, handshakeAddr address.Address) {
	t, err := d.Transmitter(handshakeAddr)
	if err != nil {
		return
	}
	res, err := t.ServersAll(d.runtime.Context())
	if err != nil {
		return
	}
	servers := make([]address.Address, 0, len(res.Servers)+1)
	seen := map[address.Address]bool{handshakeAddr: true}
	servers = append(servers, handshakeAddr)
	for _, s := range res.Servers {
		addr, err := address.Parse(s)
		if err != nil || seen[addr] {
			continue
		}
		seen[addr] = true
		servers = append(servers, addr)
	}
	d.mu.Lock()
	d.servers = servers
	d.mu.Unlock()
}

// Transmitter satisfies both cluster.ServerResolver and user.ServerSet:
// it lazily dials addr on first use and caches the channel for the
// Driver's lifetime.
func (d *Driver) Transmitter(addr address.Address) (*transmitter.RPCTransmitter, error) {
	d.mu.RLock()
	t, ok := d.transmitters[addr]
	d.mu.RUnlock()
	if ok {
		return t, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.transmitters[addr]; ok {
		return t, nil
	}
	if d.closed {
		return nil, errors.New(errors.ConnectionClosed, "driver is closed")
	}
	t, err := transmitter.Start(d.runtime, addr, d.creds, d.opts)
	if err != nil {
		return nil, err
	}
	d.transmitters[addr] = t
	return t, nil
}

// AllServers returns the driver's current working server list.
func (d *Driver) AllServers() []address.Address {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]address.Address, len(d.servers))
	copy(out, d.servers)
	return out
}

// ConnectionID returns the connection id the server assigned during
// the handshake.
func (d *Driver) ConnectionID() string { return d.connectionID }

// IsOpen reports whether the driver has not been closed.
func (d *Driver) IsOpen() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return !d.closed
}

// ForceClose tears down every channel and stops the runtime. Idempotent.
func (d *Driver) ForceClose() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	transmitters := d.transmitters
	d.transmitters = make(map[address.Address]*transmitter.RPCTransmitter)
	d.mu.Unlock()

	d.log.Info("closing driver, connection id %s", d.connectionID)
	for _, t := range transmitters {
		_ = t.Close()
	}
	return d.runtime.Close()
}

// Transaction opens a transaction of transactionType against database,
// with default TransactionOptions (spec.md §4.N "transaction").
func (d *Driver) Transaction(ctx context.Context, database string, transactionType transaction.Type) (*transaction.Transaction, error) {
	return d.TransactionWithOptions(ctx, database, transactionType, options.NewTransactionOptions())
}

// TransactionWithOptions is Transaction with an explicit
// TransactionOptions override. Opening is always run through the
// failsafe dispatcher (spec.md §4.J "run_failsafe"): the open is tried
// against any replica first and only hunts down the primary if the
// chosen replica reports ReplicaNotPrimary, mirroring the original
// driver's uniform run_failsafe session-open path regardless of
// transaction type.
func (d *Driver) TransactionWithOptions(ctx context.Context, databaseName string, transactionType transaction.Type, opts options.TransactionOptions) (*transaction.Transaction, error) {
	replicas, err := d.cluster.FetchReplicas(ctx, databaseName)
	if err != nil {
		return nil, err
	}

	openReq := wire.TransactionOpenReq{
		Database:                 databaseName,
		Type:                     transactionType,
		TransactionTimeoutMillis: opts.TransactionTimeout.Milliseconds(),
		SchemaLockTimeoutMillis:  opts.SchemaLockAcquireTimeout.Milliseconds(),
	}

	opened, _, err := cluster.RunFailsafe(ctx, d.cluster, databaseName, replicas,
		func(ctx context.Context, t *transmitter.RPCTransmitter, _ bool) (transmitter.OpenedTransaction, error) {
			return t.Transaction(ctx, openReq)
		})
	if err != nil {
		return nil, err
	}
	return transaction.New(opened, transactionType), nil
}

// Replicas returns databaseName's current known replica set.
func (d *Driver) Replicas(ctx context.Context, databaseName string) ([]cluster.Replica, error) {
	return d.cluster.FetchReplicas(ctx, databaseName)
}

// PrimaryReplica returns the replica currently reporting itself
// primary for databaseName.
func (d *Driver) PrimaryReplica(ctx context.Context, databaseName string) (cluster.Replica, bool, error) {
	replicas, err := d.cluster.FetchReplicas(ctx, databaseName)
	if err != nil {
		return cluster.Replica{}, false, err
	}
	primary, ok := cluster.PrimaryReplica(replicas)
	return primary, ok, nil
}

// ServerVersion reports the reported setup duration of the handshake
// exchange in milliseconds, the closest analogue this wire schema
// exposes to a version string (spec.md §4.N "server_version").
func (d *Driver) ServerVersion() int64 { return d.serverDurationMillis }

// AllDatabases lists every database visible from any reachable server
// (spec.md §4.K "all").
func (d *Driver) AllDatabases(ctx context.Context) ([]*database.Database, error) {
	return d.Databases.All(ctx, d.AllServers(), d.Transmitter)
}
