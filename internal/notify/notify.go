// Package notify provides a push-based signal layer for call completion.
// Watchers waiting on a pending call can subscribe and wake up as soon as a
// result settles instead of polling on a timer.
//
// Implementations:
//   - NoopNotifier: never sends signals; watchers rely purely on polling
//   - ChannelNotifier: in-process channels, for single-instance deployments
//   - RedisNotifier: Redis pub/sub, for multi-instance deployments
package notify

import (
	"context"
	"sync"
)

// Topic identifies a named signal stream.
type Topic string

const (
	// TopicCompletions fires when an asynchronous call settles.
	TopicCompletions Topic = "completions"
	// TopicRegistry fires when the set of registered operations changes.
	TopicRegistry Topic = "registry"
)

// Notifier broadcasts wakeup signals to subscribers. Signals carry no
// payload; a woken watcher re-reads the state it cares about.
type Notifier interface {
	// Notify signals all subscribers of the given topic.
	Notify(ctx context.Context, topic Topic) error

	// Subscribe returns a channel that receives a signal per notification.
	// The channel is closed when the context is cancelled or Close is
	// called.
	Subscribe(ctx context.Context, topic Topic) <-chan struct{}

	// Close releases all resources held by the notifier.
	Close() error
}

// NoopNotifier never sends signals. Watchers fall back to pure polling.
type NoopNotifier struct{}

func NewNoopNotifier() *NoopNotifier { return &NoopNotifier{} }

func (n *NoopNotifier) Notify(_ context.Context, _ Topic) error { return nil }

func (n *NoopNotifier) Subscribe(ctx context.Context, _ Topic) <-chan struct{} {
	// Never written to; closed on context cancellation so watchers can
	// still unblock.
	ch := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch
}

func (n *NoopNotifier) Close() error { return nil }

// ChannelNotifier is an in-process, channel-based notifier for
// single-instance deployments. No external infrastructure required.
type ChannelNotifier struct {
	mu          sync.Mutex
	subscribers map[Topic][]chan struct{}
	closed      bool
}

func NewChannelNotifier() *ChannelNotifier {
	return &ChannelNotifier{
		subscribers: make(map[Topic][]chan struct{}),
	}
}

func (n *ChannelNotifier) Notify(_ context.Context, topic Topic) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil
	}
	for _, ch := range n.subscribers[topic] {
		select {
		case ch <- struct{}{}:
		default:
			// Non-blocking: subscriber already has a pending signal
		}
	}
	return nil
}

func (n *ChannelNotifier) Subscribe(ctx context.Context, topic Topic) <-chan struct{} {
	ch := make(chan struct{}, 1)

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		close(ch)
		return ch
	}
	n.subscribers[topic] = append(n.subscribers[topic], ch)
	n.mu.Unlock()

	go func() {
		<-ctx.Done()
		n.mu.Lock()
		defer n.mu.Unlock()
		subs := n.subscribers[topic]
		for i, s := range subs {
			if s == ch {
				n.subscribers[topic] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}()

	return ch
}

func (n *ChannelNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil
	}
	n.closed = true
	for _, subs := range n.subscribers {
		for _, ch := range subs {
			close(ch)
		}
	}
	n.subscribers = nil
	return nil
}
