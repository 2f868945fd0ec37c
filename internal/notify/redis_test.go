package notify

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
)

// newTestRedisClient creates a Redis client for testing. Tests that require
// a running Redis instance are skipped automatically.
func newTestRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // use a separate DB for tests
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available, skipping: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisNotifier_NotifyAndSubscribe(t *testing.T) {
	client := newTestRedisClient(t)
	n := NewRedisNotifier(client)
	defer n.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := n.Subscribe(ctx, TopicCompletions)
	if ch == nil {
		t.Fatal("Subscribe should return non-nil channel")
	}

	// Allow subscription to establish
	time.Sleep(50 * time.Millisecond)

	if err := n.Notify(ctx, TopicCompletions); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	select {
	case <-ch:
		// success
	case <-time.After(2 * time.Second):
		t.Fatal("expected signal on subscribe channel")
	}
}

func TestRedisNotifier_MultipleTopics(t *testing.T) {
	client := newTestRedisClient(t)
	n := NewRedisNotifier(client)
	defer n.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	completionCh := n.Subscribe(ctx, TopicCompletions)
	registryCh := n.Subscribe(ctx, TopicRegistry)

	time.Sleep(50 * time.Millisecond)

	if err := n.Notify(ctx, TopicRegistry); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	select {
	case <-registryCh:
		// expected
	case <-time.After(2 * time.Second):
		t.Fatal("expected signal on registry channel")
	}

	select {
	case <-completionCh:
		t.Fatal("should not receive signal on completions channel")
	case <-time.After(50 * time.Millisecond):
		// expected
	}
}

func TestRedisNotifier_Close(t *testing.T) {
	client := newTestRedisClient(t)
	n := NewRedisNotifier(client)

	ctx := context.Background()
	ch := n.Subscribe(ctx, TopicCompletions)

	time.Sleep(50 * time.Millisecond)

	if err := n.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("channel should be closed after Close()")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel should have been closed")
	}

	if err := n.Close(); err != nil {
		t.Fatalf("Double close should not fail: %v", err)
	}
}
