package progress_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"midjourney-adapter/internal/progress"
)

func collect(t *testing.T, sub *progress.Subscription) []progress.Message {
	t.Helper()
	var got []progress.Message
	timeout := time.After(3 * time.Second)
	for {
		select {
		case msg, ok := <-sub.C:
			if !ok {
				return got
			}
			got = append(got, msg)
		case <-timeout:
			t.Fatalf("subscription did not end, got %d messages", len(got))
			return got
		}
	}
}

func bodies(msgs []progress.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Message
	}
	return out
}

func TestMemoryBus_DeliversInOrderAndEndsOnDone(t *testing.T) {
	bus := progress.NewMemoryBus()
	ctx := context.Background()

	sub, err := bus.Subscribe(ctx, "wf-1")
	require.NoError(t, err)
	defer sub.Close()

	for i := 0; i < 50; i++ {
		require.NoError(t, bus.Publish(ctx, "wf-1", progress.Message{Level: progress.LevelInfo, Message: fmt.Sprintf("m%d", i)}))
	}
	require.NoError(t, bus.Publish(ctx, "wf-1", progress.Message{Level: progress.LevelInfo, Message: progress.Done}))

	got := bodies(collect(t, sub))
	require.Len(t, got, 51)
	for i := 0; i < 50; i++ {
		assert.Equal(t, fmt.Sprintf("m%d", i), got[i])
	}
	assert.Equal(t, progress.Done, got[50])
	assert.Equal(t, 0, bus.SubscriberCount("wf-1"))
}

func TestMemoryBus_AllSubscribersReceiveSameSequence(t *testing.T) {
	bus := progress.NewMemoryBus()
	ctx := context.Background()

	subs := make([]*progress.Subscription, 3)
	for i := range subs {
		sub, err := bus.Subscribe(ctx, "wf-2")
		require.NoError(t, err)
		defer sub.Close()
		subs[i] = sub
	}

	go func() {
		for i := 0; i < 20; i++ {
			_ = bus.Publish(ctx, "wf-2", progress.Message{Message: fmt.Sprintf("m%d", i)})
		}
		_ = bus.Publish(ctx, "wf-2", progress.Message{Message: progress.Done})
	}()

	var results [3][]string
	var wg sync.WaitGroup
	for i, sub := range subs {
		wg.Add(1)
		go func(i int, sub *progress.Subscription) {
			defer wg.Done()
			results[i] = bodies(collect(t, sub))
		}(i, sub)
	}
	wg.Wait()

	assert.Len(t, results[0], 21)
	assert.Equal(t, results[0], results[1])
	assert.Equal(t, results[0], results[2])
}

func TestMemoryBus_IsolatesCorrelationIDs(t *testing.T) {
	bus := progress.NewMemoryBus()
	ctx := context.Background()

	a, err := bus.Subscribe(ctx, "a")
	require.NoError(t, err)
	defer a.Close()
	b, err := bus.Subscribe(ctx, "b")
	require.NoError(t, err)
	defer b.Close()

	var wg sync.WaitGroup
	for _, id := range []string{"a", "b"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_ = bus.Publish(ctx, id, progress.Message{Message: fmt.Sprintf("%s-%d", id, i)})
			}
			_ = bus.Publish(ctx, id, progress.Message{Message: progress.Done})
		}(id)
	}

	gotA := bodies(collect(t, a))
	gotB := bodies(collect(t, b))
	wg.Wait()

	require.Len(t, gotA, 101)
	require.Len(t, gotB, 101)
	for i := 0; i < 100; i++ {
		assert.Equal(t, fmt.Sprintf("a-%d", i), gotA[i])
		assert.Equal(t, fmt.Sprintf("b-%d", i), gotB[i])
	}
}

func TestMemoryBus_CloseStopsDeliveryWithoutAffectingPublisher(t *testing.T) {
	bus := progress.NewMemoryBus()
	ctx := context.Background()

	sub, err := bus.Subscribe(ctx, "wf-3")
	require.NoError(t, err)
	sub.Close()
	sub.Close()

	_, open := <-sub.C
	assert.False(t, open)
	assert.NoError(t, bus.Publish(ctx, "wf-3", progress.Message{Message: "still fine"}))
	assert.Equal(t, 0, bus.SubscriberCount("wf-3"))
}

func TestMemoryBus_ContextCancelEndsSubscription(t *testing.T) {
	bus := progress.NewMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := bus.Subscribe(ctx, "wf-4")
	require.NoError(t, err)
	cancel()

	assert.Empty(t, collect(t, sub))
	assert.Eventually(t, func() bool { return bus.SubscriberCount("wf-4") == 0 }, time.Second, 10*time.Millisecond)
}

func TestMessage_JSON(t *testing.T) {
	msg := progress.Message{Level: progress.LevelWarn, Message: "retrying", Timestamp: 1700000000}
	assert.JSONEq(t, `{"level":"warn","message":"retrying","timestamp":1700000000}`, string(msg.JSON()))
	assert.True(t, progress.Message{Message: "[DONE]"}.IsDone())
	assert.False(t, progress.Message{Message: "not [DONE]"}.IsDone())
}
