package message

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relay/pkg/correlation"
)

func TestNewCommand_PopulatesEnvelope(t *testing.T) {
	created := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	cmd := NewCommand("account.create",
		WithMeta("owner", "alice"),
		WithCorrelationID("corr-1"),
		WithInitiator(correlation.Principal{Subject: "user-1"}),
		WithCreatedAt(created),
	)

	assert.NotEqual(t, [16]byte{}, [16]byte(cmd.MessageID()))
	assert.Equal(t, "account.create", cmd.MessageName())
	assert.Equal(t, created, cmd.CreatedAt())
	assert.Equal(t, "corr-1", cmd.CorrelationID())
	assert.Equal(t, "user-1", cmd.Initiator().Subject)

	owner, ok := cmd.Meta("owner")
	require.True(t, ok)
	assert.Equal(t, "alice", owner)
}

func TestMetadata_ReturnsCopy(t *testing.T) {
	cmd := NewCommand("account.create", WithMeta("owner", "alice"))

	meta := cmd.Metadata()
	meta["owner"] = "mallory"

	owner, _ := cmd.Meta("owner")
	assert.Equal(t, "alice", owner, "mutating the returned map must not affect the envelope")
}

func TestCacheKey_DeterministicAcrossMetadataOrder(t *testing.T) {
	q1 := NewQuery("account.balance", WithMetadata(map[string]string{"account_id": "ACC-1", "currency": "EUR"})).AsCacheable(0)
	q2 := NewQuery("account.balance", WithMeta("currency", "EUR"), WithMeta("account_id", "ACC-1")).AsCacheable(0)

	require.NotEmpty(t, q1.CacheKey())
	assert.Equal(t, q1.CacheKey(), q2.CacheKey(), "identical name+metadata must derive identical keys")
}

func TestCacheKey_SensitiveToNameAndMetadata(t *testing.T) {
	base := NewQuery("account.balance", WithMeta("account_id", "ACC-1")).AsCacheable(0)

	otherName := NewQuery("account.history", WithMeta("account_id", "ACC-1")).AsCacheable(0)
	otherMeta := NewQuery("account.balance", WithMeta("account_id", "ACC-2")).AsCacheable(0)

	assert.NotEqual(t, base.CacheKey(), otherName.CacheKey())
	assert.NotEqual(t, base.CacheKey(), otherMeta.CacheKey())
}

func TestCacheKey_BoundaryShiftDoesNotCollide(t *testing.T) {
	q1 := NewQuery("q", WithMeta("ab", "c")).AsCacheable(0)
	q2 := NewQuery("q", WithMeta("a", "bc")).AsCacheable(0)

	assert.NotEqual(t, q1.CacheKey(), q2.CacheKey())
}

func TestCacheKey_EmptyForNonCacheableQuery(t *testing.T) {
	q := NewQuery("account.balance", WithMeta("account_id", "ACC-1"))

	assert.False(t, q.IsCacheable())
	assert.Empty(t, q.CacheKey())
}

func TestAsCacheable_RecordsTTLOverride(t *testing.T) {
	q := NewQuery("account.balance").AsCacheable(5 * time.Minute)

	assert.True(t, q.IsCacheable())
	assert.Equal(t, 5*time.Minute, q.TTLOverride())
}
