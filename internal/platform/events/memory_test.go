package events

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_PublishOrder(t *testing.T) {
	pub := NewMemory()
	defer pub.Close()

	require.NoError(t, pub.Publish(context.Background(), Event{Topic: "accounts", Type: "account.created", Key: "ACC-1"}))
	require.NoError(t, pub.Publish(context.Background(), Event{Topic: "accounts", Type: "account.closed", Key: "ACC-1"}))

	events := pub.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "account.created", events[0].Type)
	assert.Equal(t, "account.closed", events[1].Type)
	assert.False(t, events[0].OccurredAt.IsZero())
}

func TestMemory_ByType(t *testing.T) {
	pub := NewMemory()
	defer pub.Close()

	require.NoError(t, pub.Publish(context.Background(), Event{Type: "account.created", Key: "ACC-1"}))
	require.NoError(t, pub.Publish(context.Background(), Event{Type: "account.closed", Key: "ACC-1"}))
	require.NoError(t, pub.Publish(context.Background(), Event{Type: "account.created", Key: "ACC-2"}))

	created := pub.ByType("account.created")
	require.Len(t, created, 2)
	assert.Equal(t, "ACC-1", created[0].Key)
	assert.Equal(t, "ACC-2", created[1].Key)
}

func TestMemory_CancelledContext(t *testing.T) {
	pub := NewMemory()
	defer pub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := pub.Publish(ctx, Event{Type: "account.created"})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, pub.Events())
}

func TestMemory_ConcurrentPublish(t *testing.T) {
	pub := NewMemory()
	defer pub.Close()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pub.Publish(context.Background(), Event{Type: "account.created"})
		}()
	}
	wg.Wait()

	assert.Len(t, pub.Events(), 50)
}
