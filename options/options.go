// Package options defines the three recognised option bags from
// spec.md §3: DriverOptions, TransactionOptions, and QueryOptions.
// Each is a plain struct built with functional-option constructors so
// zero values stay sensible defaults.
package options

import (
	"time"

	"github.com/redbco/typedriver/address"
)

// DriverOptions configures how a Driver connects to a cluster.
type DriverOptions struct {
	TLSEnabled             bool
	TLSRootCAPath          string
	UseReplication         bool
	PrimaryFailoverRetries int
	ReplicaDiscoveryAttempts *int
}

// DriverOption mutates a DriverOptions during construction.
type DriverOption func(*DriverOptions)

// NewDriverOptions builds a DriverOptions with defaults (TLS enabled,
// ten primary-failover retries) and applies opts in order.
func NewDriverOptions(opts ...DriverOption) DriverOptions {
	o := DriverOptions{
		TLSEnabled:             true,
		PrimaryFailoverRetries: 10,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithTLS toggles TLS and optionally sets a root CA file path.
func WithTLS(enabled bool, rootCAPath string) DriverOption {
	return func(o *DriverOptions) {
		o.TLSEnabled = enabled
		o.TLSRootCAPath = rootCAPath
	}
}

// WithReplication sets DriverOptions.UseReplication. Nothing in the
// driver reads this flag: cluster.Manager routes across replicas
// whether or not it is set.
func WithReplication(enabled bool) DriverOption {
	return func(o *DriverOptions) { o.UseReplication = enabled }
}

// WithPrimaryFailoverRetries sets DriverOptions.PrimaryFailoverRetries
// (see spec.md §4.J). cluster.Manager does not read this field: its
// primary-redirect retry bound is a fixed 10.
func WithPrimaryFailoverRetries(n int) DriverOption {
	return func(o *DriverOptions) { o.PrimaryFailoverRetries = n }
}

// WithReplicaDiscoveryAttempts sets DriverOptions.ReplicaDiscoveryAttempts.
// cluster.Manager does not read this field: its bound on
// topology-refresh attempts while seeking a primary is a fixed 10.
func WithReplicaDiscoveryAttempts(n int) DriverOption {
	return func(o *DriverOptions) { o.ReplicaDiscoveryAttempts = &n }
}

// ReplicaDiscoveryAttemptsOrDefault returns the configured attempt
// bound, defaulting to 10 (the original driver's
// FETCH_REPLICAS_MAX_RETRIES) when unset.
func (o DriverOptions) ReplicaDiscoveryAttemptsOrDefault() int {
	if o.ReplicaDiscoveryAttempts != nil {
		return *o.ReplicaDiscoveryAttempts
	}
	return 10
}

// ConsistencyLevel controls which replica a read may be served from.
type ConsistencyLevel struct {
	kind     consistencyKind
	replica  address.Address
}

type consistencyKind int

const (
	Strong consistencyKind = iota
	Eventual
	ReplicaDependent
)

// StrongConsistency requires the operation to reach the primary.
func StrongConsistency() ConsistencyLevel { return ConsistencyLevel{kind: Strong} }

// EventualConsistency allows any replica to answer.
func EventualConsistency() ConsistencyLevel { return ConsistencyLevel{kind: Eventual} }

// ReplicaDependentConsistency pins the read to a specific replica
// address.
func ReplicaDependentConsistency(addr address.Address) ConsistencyLevel {
	return ConsistencyLevel{kind: ReplicaDependent, replica: addr}
}

// IsStrong reports whether this level requires the primary.
func (c ConsistencyLevel) IsStrong() bool { return c.kind == Strong }

// IsReplicaDependent reports whether this level pins a specific
// replica, returning it.
func (c ConsistencyLevel) IsReplicaDependent() (address.Address, bool) {
	return c.replica, c.kind == ReplicaDependent
}

// TransactionOptions configures a single transaction.
type TransactionOptions struct {
	TransactionTimeout        time.Duration
	SchemaLockAcquireTimeout  time.Duration
	ReadConsistencyLevel      ConsistencyLevel
}

// TransactionOption mutates a TransactionOptions during construction.
type TransactionOption func(*TransactionOptions)

// NewTransactionOptions builds TransactionOptions with strong
// consistency as the default read level.
func NewTransactionOptions(opts ...TransactionOption) TransactionOptions {
	o := TransactionOptions{ReadConsistencyLevel: StrongConsistency()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithTransactionTimeout sets the server-enforced transaction timeout.
func WithTransactionTimeout(d time.Duration) TransactionOption {
	return func(o *TransactionOptions) { o.TransactionTimeout = d }
}

// WithSchemaLockAcquireTimeout sets the wait bound for the schema
// write lock.
func WithSchemaLockAcquireTimeout(d time.Duration) TransactionOption {
	return func(o *TransactionOptions) { o.SchemaLockAcquireTimeout = d }
}

// WithReadConsistencyLevel overrides the default Strong read level.
func WithReadConsistencyLevel(level ConsistencyLevel) TransactionOption {
	return func(o *TransactionOptions) { o.ReadConsistencyLevel = level }
}

// QueryOptions configures a single query submitted within a
// transaction.
type QueryOptions struct {
	IncludeInstanceTypes bool
	AnswerSizeLimit      *int
}

// QueryOption mutates a QueryOptions during construction.
type QueryOption func(*QueryOptions)

// NewQueryOptions builds QueryOptions with defaults.
func NewQueryOptions(opts ...QueryOption) QueryOptions {
	o := QueryOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithIncludeInstanceTypes requests instance type annotations on
// returned concepts.
func WithIncludeInstanceTypes(include bool) QueryOption {
	return func(o *QueryOptions) { o.IncludeInstanceTypes = include }
}

// WithAnswerSizeLimit caps the number of answers the server will
// stream back.
func WithAnswerSizeLimit(limit int) QueryOption {
	return func(o *QueryOptions) { o.AnswerSizeLimit = &limit }
}
