package notify

import (
	"context"
	"sync"

	"github.com/go-redis/redis/v8"
)

const redisChannelPrefix = "halo:notify:"

// RedisNotifier is a distributed notifier that broadcasts signals over
// Redis PUBLISH/SUBSCRIBE. A call settling on one instance wakes watchers
// on every instance.
type RedisNotifier struct {
	client *redis.Client
	mu     sync.Mutex
	subs   map[Topic][]*redisSub
	closed bool
}

type redisSub struct {
	ch     chan struct{}
	cancel context.CancelFunc
}

func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{
		client: client,
		subs:   make(map[Topic][]*redisSub),
	}
}

// Notify publishes a signal to the Redis channel for the given topic.
func (n *RedisNotifier) Notify(ctx context.Context, topic Topic) error {
	channel := redisChannelPrefix + string(topic)
	return n.client.Publish(ctx, channel, "1").Err()
}

// Subscribe returns a channel fed by a background goroutine listening on
// the Redis pub/sub channel for the topic.
func (n *RedisNotifier) Subscribe(ctx context.Context, topic Topic) <-chan struct{} {
	ch := make(chan struct{}, 1)

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		close(ch)
		return ch
	}

	subCtx, cancel := context.WithCancel(ctx)
	rs := &redisSub{ch: ch, cancel: cancel}
	n.subs[topic] = append(n.subs[topic], rs)
	n.mu.Unlock()

	channel := redisChannelPrefix + string(topic)
	pubsub := n.client.Subscribe(subCtx, channel)

	go func() {
		defer pubsub.Close()
		msgCh := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				n.removeSub(topic, rs)
				return
			case _, ok := <-msgCh:
				if !ok {
					return
				}
				select {
				case ch <- struct{}{}:
				default:
					// Non-blocking: subscriber already has a pending signal
				}
			}
		}
	}()

	return ch
}

// Close releases all resources, closing subscriber channels and stopping
// background goroutines.
func (n *RedisNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil
	}
	n.closed = true
	for _, subs := range n.subs {
		for _, s := range subs {
			s.cancel()
			close(s.ch)
		}
	}
	n.subs = nil
	return nil
}

func (n *RedisNotifier) removeSub(topic Topic, target *redisSub) {
	n.mu.Lock()
	defer n.mu.Unlock()
	subs := n.subs[topic]
	for i, s := range subs {
		if s == target {
			n.subs[topic] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}
