// Package cluster implements the replica topology and failsafe
// dispatch algorithm described in spec.md §4.J: given a database's
// known replica set, run a task against any replica, retry on the
// primary when told ReplicaNotPrimary, and reseek the topology when
// the primary itself changes.
//
// The original driver hangs this logic directly off cluster::Database;
// here it is generalized into a server-address-agnostic Manager so
// every caller (database schema ops, transaction opens, user
// management against a specific server) shares one implementation
// instead of duplicating the retry loop per component.
package cluster

import (
	"context"
	"time"

	"github.com/redbco/typedriver/address"
	"github.com/redbco/typedriver/errors"
	"github.com/redbco/typedriver/internal/logger"
	"github.com/redbco/typedriver/internal/transmitter"
	"github.com/redbco/typedriver/internal/wire"
)

const (
	primaryReplicaTaskMaxRetries   = 10
	fetchReplicasMaxRetries        = 10
	waitForPrimaryReplicaSelection = 2 * time.Second
)

// Replica mirrors spec.md §3 "Replica": one server's view of a
// database, tagged with the metadata needed to pick a primary.
type Replica struct {
	Address   address.Address
	Primary   bool
	Term      int64
	Preferred bool
}

// ServerResolver looks up (or lazily opens) the transmitter for a
// given server address. The cluster manager never dials directly —
// that stays the connection root's responsibility.
type ServerResolver interface {
	Transmitter(addr address.Address) (*transmitter.RPCTransmitter, error)
	AllServers() []address.Address
}

// Task is one unit of work run against a specific server's
// transmitter. isFirstRun distinguishes the first attempt in a fan-out
// from retries, mirrored from the original design though most tasks
// ignore it.
type Task[R any] func(ctx context.Context, t *transmitter.RPCTransmitter, isFirstRun bool) (R, error)

// Manager implements the failsafe dispatch algorithm shared by every
// cluster-routed operation.
type Manager struct {
	resolver ServerResolver
	log      *logger.Logger
}

// NewManager constructs a Manager bound to resolver, logging retries
// and primary reseeks through log.
func NewManager(resolver ServerResolver, log *logger.Logger) *Manager {
	return &Manager{resolver: resolver, log: log}
}

// FetchReplicas queries the known servers in turn for databaseName's
// current replica set, returning as soon as one answers (spec.md §4.J
// "seek_primary_replica" / the original's Replica::fetch_all).
func (m *Manager) FetchReplicas(ctx context.Context, databaseName string) ([]Replica, error) {
	servers := m.resolver.AllServers()
	var lastErr error
	for _, addr := range servers {
		t, err := m.resolver.Transmitter(addr)
		if err != nil {
			lastErr = err
			continue
		}
		cd, err := t.DatabaseGet(ctx, databaseName)
		if err != nil {
			if errors.IsConnectClass(err) {
				lastErr = err
				continue
			}
			return nil, err
		}
		return replicasFromWire(cd.Replicas), nil
	}
	if lastErr == nil {
		lastErr = errors.New(errors.ServerConnectionFailed, "no servers available to fetch replicas for %q", databaseName)
	}
	return nil, lastErr
}

// ReplicasFromWireMetadata converts the wire-level replica metadata
// the server reports into the cluster package's Replica type. Exposed
// so callers that receive a ClusterDatabase directly (e.g. listing
// every database) don't need to re-fetch it through FetchReplicas.
func ReplicasFromWireMetadata(rs []wire.ReplicaMetadata) []Replica {
	return replicasFromWire(rs)
}

func replicasFromWire(rs []wire.ReplicaMetadata) []Replica {
	out := make([]Replica, 0, len(rs))
	for _, r := range rs {
		addr, err := address.Parse(r.Address)
		if err != nil {
			continue
		}
		out = append(out, Replica{Address: addr, Primary: r.Primary, Term: r.Term, Preferred: r.Preferred})
	}
	return out
}

// PrimaryReplica returns the replica with the highest term among
// those reporting themselves primary, resolving the documented
// stale-primary tie-break by term (spec.md §4.J Open Question).
func PrimaryReplica(replicas []Replica) (Replica, bool) {
	var best Replica
	found := false
	for _, r := range replicas {
		if !r.Primary {
			continue
		}
		if !found || r.Term > best.Term {
			best = r
			found = true
		}
	}
	return best, found
}

// RunOnAnyReplica tries task against each replica, preferred replicas
// first and the rest in their given order (spec.md §4.J "is
// preferred" ordering), moving to the next replica only on a
// connection-class failure.
func RunOnAnyReplica[R any](ctx context.Context, m *Manager, replicas []Replica, task Task[R]) (R, error) {
	var zero R
	var lastErr error
	ordered := make([]Replica, 0, len(replicas))
	for _, r := range replicas {
		if r.Preferred {
			ordered = append(ordered, r)
		}
	}
	for _, r := range replicas {
		if !r.Preferred {
			ordered = append(ordered, r)
		}
	}
	for i, r := range ordered {
		t, err := m.resolver.Transmitter(r.Address)
		if err != nil {
			if m.log != nil {
				m.log.Warn("cannot reach replica %s, trying next: %v", r.Address, err)
			}
			lastErr = err
			continue
		}
		res, err := task(ctx, t, i == 0)
		if err != nil && errors.IsConnectClass(err) {
			if m.log != nil {
				m.log.Warn("replica %s failed, trying next: %v", r.Address, err)
			}
			lastErr = err
			continue
		}
		return res, err
	}
	if lastErr == nil {
		lastErr = errors.New(errors.ServerConnectionFailed, "no replicas available")
	}
	return zero, lastErr
}

// RunOnPrimaryReplica retries task against the current primary,
// reseeking the topology whenever the primary reports
// ReplicaNotPrimary or becomes unreachable, up to
// primaryReplicaTaskMaxRetries times.
func RunOnPrimaryReplica[R any](ctx context.Context, m *Manager, databaseName string, replicas []Replica, task Task[R]) (R, []Replica, error) {
	var zero R
	primary, ok := PrimaryReplica(replicas)
	var err error
	if !ok {
		primary, replicas, err = seekPrimaryReplica(ctx, m, databaseName)
		if err != nil {
			return zero, replicas, err
		}
	}

	for attempt := 0; attempt < primaryReplicaTaskMaxRetries; attempt++ {
		t, dialErr := m.resolver.Transmitter(primary.Address)
		if dialErr == nil {
			res, taskErr := task(ctx, t, attempt == 0)
			if taskErr == nil {
				return res, replicas, nil
			}
			if !errors.IsReplicaNotPrimary(taskErr) && !errors.IsConnectClass(taskErr) {
				return zero, replicas, taskErr
			}
		}
		if m.log != nil {
			m.log.Info("reseeking primary replica for database %q (attempt %d)", databaseName, attempt+1)
		}
		if err := sleepCtx(ctx, waitForPrimaryReplicaSelection); err != nil {
			return zero, replicas, err
		}
		primary, replicas, err = seekPrimaryReplica(ctx, m, databaseName)
		if err != nil {
			return zero, replicas, err
		}
	}
	return zero, replicas, errors.New(errors.ServerConnectionFailed, "exhausted primary replica retries for database %q", databaseName)
}

func seekPrimaryReplica(ctx context.Context, m *Manager, databaseName string) (Replica, []Replica, error) {
	for i := 0; i < fetchReplicasMaxRetries; i++ {
		replicas, err := m.FetchReplicas(ctx, databaseName)
		if err != nil {
			return Replica{}, nil, err
		}
		if primary, ok := PrimaryReplica(replicas); ok {
			return primary, replicas, nil
		}
		if err := sleepCtx(ctx, waitForPrimaryReplicaSelection); err != nil {
			return Replica{}, replicas, err
		}
	}
	return Replica{}, nil, errors.New(errors.NoPrimaryReplica, "no primary replica elected for database %q after %d attempts", databaseName, fetchReplicasMaxRetries)
}

// RunFailsafe is the entry point spec.md §4.J names: run against any
// replica, falling back to hunting down the primary if the first
// attempt reports the chosen replica is not primary.
func RunFailsafe[R any](ctx context.Context, m *Manager, databaseName string, replicas []Replica, task Task[R]) (R, []Replica, error) {
	res, err := RunOnAnyReplica(ctx, m, replicas, task)
	if errors.IsReplicaNotPrimary(err) {
		return RunOnPrimaryReplica(ctx, m, databaseName, replicas, task)
	}
	return res, replicas, err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
