package options

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redbco/typedriver/address"
)

func TestNewDriverOptionsDefaults(t *testing.T) {
	o := NewDriverOptions()
	assert.True(t, o.TLSEnabled)
	assert.Equal(t, 10, o.PrimaryFailoverRetries)
	assert.Equal(t, 10, o.ReplicaDiscoveryAttemptsOrDefault())
}

func TestDriverOptionOverrides(t *testing.T) {
	o := NewDriverOptions(
		WithTLS(false, ""),
		WithReplication(true),
		WithPrimaryFailoverRetries(3),
		WithReplicaDiscoveryAttempts(5),
	)
	assert.False(t, o.TLSEnabled)
	assert.True(t, o.UseReplication)
	assert.Equal(t, 3, o.PrimaryFailoverRetries)
	assert.Equal(t, 5, o.ReplicaDiscoveryAttemptsOrDefault())
}

func TestConsistencyLevels(t *testing.T) {
	strong := StrongConsistency()
	assert.True(t, strong.IsStrong())
	_, ok := strong.IsReplicaDependent()
	assert.False(t, ok)

	eventual := EventualConsistency()
	assert.False(t, eventual.IsStrong())

	addr := address.MustParse("localhost:1729")
	pinned := ReplicaDependentConsistency(addr)
	got, ok := pinned.IsReplicaDependent()
	assert.True(t, ok)
	assert.Equal(t, addr, got)
	assert.False(t, pinned.IsStrong())
}

func TestNewTransactionOptionsDefaults(t *testing.T) {
	o := NewTransactionOptions()
	assert.True(t, o.ReadConsistencyLevel.IsStrong())
	assert.Zero(t, o.TransactionTimeout)
}

func TestTransactionOptionOverrides(t *testing.T) {
	o := NewTransactionOptions(
		WithTransactionTimeout(30*time.Second),
		WithSchemaLockAcquireTimeout(5*time.Second),
		WithReadConsistencyLevel(EventualConsistency()),
	)
	assert.Equal(t, 30*time.Second, o.TransactionTimeout)
	assert.Equal(t, 5*time.Second, o.SchemaLockAcquireTimeout)
	assert.False(t, o.ReadConsistencyLevel.IsStrong())
}

func TestQueryOptionOverrides(t *testing.T) {
	o := NewQueryOptions(WithIncludeInstanceTypes(true), WithAnswerSizeLimit(100))
	assert.True(t, o.IncludeInstanceTypes)
	require.NotNil(t, o.AnswerSizeLimit)
	assert.Equal(t, 100, *o.AnswerSizeLimit)
}
