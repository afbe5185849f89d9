package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func noop(context.Context, *domain.Message) error { return nil }

func TestChannelBus(t *testing.T) {
	bus := NewChannelBus(100)
	defer bus.Close()

	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("PublishAndSubscribe", func(t *testing.T) {
		got := make(chan *domain.Message, 1)
		_, err := bus.Subscribe(ctx, tenantID, domain.TopicClaimSubmitted, func(ctx context.Context, msg *domain.Message) error {
			got <- msg
			return nil
		})
		require.NoError(t, err)

		require.NoError(t, bus.Publish(ctx, tenantID, domain.TopicClaimSubmitted, []byte(`{"claim_id":"CLM-1"}`)))

		select {
		case msg := <-got:
			assert.Equal(t, `{"claim_id":"CLM-1"}`, string(msg.Payload))
			assert.Equal(t, tenantID, msg.TenantID)
			assert.Equal(t, domain.TopicClaimSubmitted, msg.Topic)
			assert.NotEmpty(t, msg.ID)
			assert.NotZero(t, msg.Timestamp)
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for message")
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		var received1, received2 atomic.Int32

		_, err := bus.Subscribe(ctx, "tenant-a", domain.TopicClaimAssessed, func(ctx context.Context, msg *domain.Message) error {
			received1.Add(1)
			return nil
		})
		require.NoError(t, err)
		_, err = bus.Subscribe(ctx, "tenant-b", domain.TopicClaimAssessed, func(ctx context.Context, msg *domain.Message) error {
			received2.Add(1)
			return nil
		})
		require.NoError(t, err)

		require.NoError(t, bus.Publish(ctx, "tenant-a", domain.TopicClaimAssessed, []byte("msg1")))

		assert.Eventually(t, func() bool { return received1.Load() == 1 }, time.Second, 5*time.Millisecond)
		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, int32(0), received2.Load(), "tenant-b must not see tenant-a traffic")
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		assert.Error(t, bus.Publish(ctx, "", "topic", []byte("data")))

		_, err := bus.Subscribe(ctx, "", "topic", noop)
		assert.Error(t, err)
	})

	t.Run("Unsubscribe", func(t *testing.T) {
		var count atomic.Int32

		sub, err := bus.Subscribe(ctx, tenantID, domain.TopicReviewUpdated, func(ctx context.Context, msg *domain.Message) error {
			count.Add(1)
			return nil
		})
		require.NoError(t, err)

		require.NoError(t, bus.Publish(ctx, tenantID, domain.TopicReviewUpdated, []byte("msg1")))
		assert.Eventually(t, func() bool { return count.Load() == 1 }, time.Second, 5*time.Millisecond)

		require.NoError(t, sub.Unsubscribe())
		require.NoError(t, sub.Unsubscribe(), "second unsubscribe is a no-op")

		bus.mu.RLock()
		_, present := bus.subscriptions[bus.makeKey(tenantID, domain.TopicReviewUpdated)]
		bus.mu.RUnlock()
		assert.False(t, present, "subscription removed from the bus")

		require.NoError(t, bus.Publish(ctx, tenantID, domain.TopicReviewUpdated, []byte("msg2")))
		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, int32(1), count.Load())
	})

	t.Run("MultipleSubscribers", func(t *testing.T) {
		var count1, count2 atomic.Int32

		_, err := bus.Subscribe(ctx, tenantID, domain.TopicClaimEscalated, func(ctx context.Context, msg *domain.Message) error {
			count1.Add(1)
			return nil
		})
		require.NoError(t, err)
		_, err = bus.Subscribe(ctx, tenantID, domain.TopicClaimEscalated, func(ctx context.Context, msg *domain.Message) error {
			count2.Add(1)
			return nil
		})
		require.NoError(t, err)

		require.NoError(t, bus.Publish(ctx, tenantID, domain.TopicClaimEscalated, []byte("broadcast")))

		assert.Eventually(t, func() bool {
			return count1.Load() == 1 && count2.Load() == 1
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("PingAndTopic", func(t *testing.T) {
		assert.NoError(t, bus.Ping(ctx))

		sub, err := bus.Subscribe(ctx, tenantID, "my.topic", noop)
		require.NoError(t, err)
		assert.Equal(t, "my.topic", sub.Topic())
	})
}

func TestChannelBusFullBufferDrops(t *testing.T) {
	bus := NewChannelBus(1)
	defer bus.Close()
	ctx := context.Background()

	release := make(chan struct{})
	var handled atomic.Int32
	_, err := bus.Subscribe(ctx, "t", "slow", func(ctx context.Context, msg *domain.Message) error {
		<-release
		handled.Add(1)
		return nil
	})
	require.NoError(t, err)

	// First message is taken by the handler, second fills the buffer, the
	// rest are dropped without blocking the publisher.
	for range 5 {
		require.NoError(t, bus.Publish(ctx, "t", "slow", []byte("x")))
		time.Sleep(5 * time.Millisecond)
	}
	close(release)

	assert.Eventually(t, func() bool { return handled.Load() >= 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(2), handled.Load())
}

func TestChannelBusClose(t *testing.T) {
	bus := NewChannelBus(100)
	ctx := context.Background()
	tenantID := "tenant-001"

	started := make(chan struct{})
	var finished atomic.Bool
	_, err := bus.Subscribe(ctx, tenantID, "close.topic", func(ctx context.Context, msg *domain.Message) error {
		close(started)
		time.Sleep(30 * time.Millisecond)
		finished.Store(true)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, tenantID, "close.topic", []byte("data")))
	<-started

	require.NoError(t, bus.Close())
	assert.True(t, finished.Load(), "Close waits for in-flight handlers")
	assert.NoError(t, bus.Close(), "second close is a no-op")

	assert.Error(t, bus.Publish(ctx, tenantID, "close.topic", []byte("data")))
	assert.Error(t, bus.Ping(ctx))
	_, err = bus.Subscribe(ctx, tenantID, "close.topic", noop)
	assert.Error(t, err)
}

func TestNewBus(t *testing.T) {
	t.Run("ChannelType", func(t *testing.T) {
		bus, err := New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 50})
		require.NoError(t, err)
		defer bus.Close()

		assert.IsType(t, &ChannelBus{}, bus)
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		_, err := New(domain.EventBusConfig{Type: "kafka"})
		assert.Error(t, err)
	})
}

func TestNATSSubject(t *testing.T) {
	assert.Equal(t, "kestrel.claim.submitted.tenant-001", subject("tenant-001", domain.TopicClaimSubmitted))
	assert.Equal(t, "kestrel.review.updated.acme_eu__x", subject("acme.eu >x", domain.TopicReviewUpdated))
	assert.True(t, queueTopics[domain.TopicClaimSubmitted])
	assert.False(t, queueTopics[domain.TopicClaimAssessed])
}

func TestChannelBusHighLoad(t *testing.T) {
	bus := NewChannelBus(1000)
	defer bus.Close()

	ctx := context.Background()
	tenantID := "tenant-load"
	const messageCount = 100

	var wg sync.WaitGroup
	wg.Add(messageCount)

	_, err := bus.Subscribe(ctx, tenantID, domain.TopicClaimSubmitted, func(ctx context.Context, msg *domain.Message) error {
		wg.Done()
		return nil
	})
	require.NoError(t, err)

	for range messageCount {
		require.NoError(t, bus.Publish(ctx, tenantID, domain.TopicClaimSubmitted, []byte("msg")))
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for all messages")
	}
}
