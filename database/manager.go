package database

import (
	"context"

	"github.com/redbco/typedriver/address"
	"github.com/redbco/typedriver/cluster"
	"github.com/redbco/typedriver/errors"
	"github.com/redbco/typedriver/internal/transmitter"
)

// Manager is the database directory exposed off the driver root
// (spec.md §4.K "DatabaseManager"): get/contains/create/all, each
// routed through the shared failsafe cluster.Manager.
type Manager struct {
	cluster *cluster.Manager
}

// NewManager wraps a cluster.Manager as a database directory.
func NewManager(clusterManager *cluster.Manager) *Manager {
	return &Manager{cluster: clusterManager}
}

// Get looks up an existing database by name, fetching its current
// replica set from the topology.
func (m *Manager) Get(ctx context.Context, name string) (*Database, error) {
	replicas, err := m.cluster.FetchReplicas(ctx, name)
	if err != nil {
		return nil, err
	}
	return newDatabase(name, m.cluster, replicas), nil
}

// Contains reports whether a database named name exists.
func (m *Manager) Contains(ctx context.Context, name string) (bool, error) {
	db, err := m.Get(ctx, name)
	if err != nil {
		return false, err
	}
	res, replicas, err := cluster.RunFailsafe(ctx, m.cluster, name, db.replicas,
		func(ctx context.Context, t *transmitter.RPCTransmitter, _ bool) (bool, error) {
			return t.DatabasesContains(ctx, name)
		})
	db.replicas = replicas
	return res, err
}

// Create creates a new database named name, routed to the primary
// replica once the cluster elects one.
func (m *Manager) Create(ctx context.Context, name string) error {
	db := newDatabase(name, m.cluster, nil)
	replicas, err := m.cluster.FetchReplicas(ctx, name)
	if err == nil {
		db.replicas = replicas
	}
	_, replicas, err = cluster.RunOnPrimaryReplica(ctx, m.cluster, name, db.replicas,
		func(ctx context.Context, t *transmitter.RPCTransmitter, _ bool) (struct{}, error) {
			return struct{}{}, t.DatabaseCreate(ctx, name)
		})
	return err
}

// All lists every database visible from any reachable server,
// aggregating replica failures into one reported error only if every
// server was unreachable (spec.md §4.K "all").
func (m *Manager) All(ctx context.Context, servers []address.Address, resolve func(address.Address) (*transmitter.RPCTransmitter, error)) ([]*Database, error) {
	var lastErr error
	for _, addr := range servers {
		t, err := resolve(addr)
		if err != nil {
			lastErr = err
			continue
		}
		list, err := t.DatabasesAll(ctx)
		if err != nil {
			if errors.IsConnectClass(err) {
				lastErr = err
				continue
			}
			return nil, err
		}
		out := make([]*Database, len(list))
		for i, cd := range list {
			out[i] = newDatabase(cd.Name, m.cluster, cluster.ReplicasFromWireMetadata(cd.Replicas))
		}
		return out, nil
	}
	if lastErr == nil {
		lastErr = errors.New(errors.ServerConnectionFailed, "no servers available to list databases")
	}
	return nil, lastErr
}
