// Package bridge fans messages out across backend processes over Redis
// pub/sub. Delivery is at-most-once with no durability: a process that is
// offline when a message is published never sees it, which is acceptable for
// live chat and presence traffic.
package bridge

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/lingolink/realtime-core/internal/metrics"
)

// Handler receives every message published to a subscribed topic, including
// messages published by this same process.
type Handler func(topic string, payload map[string]any)

type Bridge struct {
	rdb    redis.UniversalClient
	pubsub *redis.PubSub

	mu       sync.RWMutex
	handlers map[string]Handler

	cancel context.CancelFunc
	done   chan struct{}
}

func New(rdb redis.UniversalClient) *Bridge {
	return &Bridge{
		rdb:      rdb,
		handlers: make(map[string]Handler),
	}
}

// Topic naming. One topic per chat, one per call, one global presence topic.
func ChatTopic(chatID string) string { return "chat:" + chatID }
func CallTopic(chatID string) string { return "call:" + chatID }
func PresenceTopic() string          { return "presence" }

// Start opens the pub/sub connection and launches the listener goroutine.
// Must be called before Subscribe.
func (b *Bridge) Start(ctx context.Context) {
	ctx, b.cancel = context.WithCancel(ctx)
	b.pubsub = b.rdb.Subscribe(ctx)
	b.done = make(chan struct{})
	go b.listen(ctx)
}

// Publish sends a message to every process subscribed to the topic. Publish
// failures are logged and dropped; the hot path never blocks on the bridge.
func (b *Bridge) Publish(ctx context.Context, topic string, payload map[string]any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Printf("metric=bridge_publish status=error topic=%s err=%q", topic, err.Error())
		return
	}
	if err := b.rdb.Publish(ctx, topic, raw).Err(); err != nil {
		log.Printf("metric=bridge_publish status=error topic=%s err=%q", topic, err.Error())
		metrics.Default().IncCounter("lingo_bridge_messages_total", map[string]string{"direction": "dropped"})
		return
	}
	metrics.Default().IncCounter("lingo_bridge_messages_total", map[string]string{"direction": "published"})
}

// Subscribe registers the handler for a topic and joins the underlying
// channel. Re-subscribing a topic replaces its handler.
func (b *Bridge) Subscribe(ctx context.Context, topic string, h Handler) error {
	b.mu.Lock()
	b.handlers[topic] = h
	b.mu.Unlock()
	return b.pubsub.Subscribe(ctx, topic)
}

// Unsubscribe leaves the topic. Safe to call for topics never subscribed.
func (b *Bridge) Unsubscribe(ctx context.Context, topic string) error {
	b.mu.Lock()
	delete(b.handlers, topic)
	b.mu.Unlock()
	return b.pubsub.Unsubscribe(ctx, topic)
}

func (b *Bridge) listen(ctx context.Context) {
	defer close(b.done)
	ch := b.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				// go-redis closes the channel when the connection is
				// torn down for good; reconnects happen underneath
				// before that. Messages lost in between are accepted.
				log.Printf("metric=bridge_listener status=closed")
				return
			}
			b.dispatch(msg.Channel, msg.Payload)
		}
	}
}

func (b *Bridge) dispatch(topic, raw string) {
	b.mu.RLock()
	h := b.handlers[topic]
	b.mu.RUnlock()
	if h == nil {
		return
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		log.Printf("metric=bridge_dispatch status=error topic=%s err=%q", topic, err.Error())
		return
	}
	metrics.Default().IncCounter("lingo_bridge_messages_total", map[string]string{"direction": "dispatched"})
	h(topic, payload)
}

// Close stops the listener and releases the pub/sub connection.
func (b *Bridge) Close() error {
	if b.cancel != nil {
		b.cancel()
	}
	var err error
	if b.pubsub != nil {
		err = b.pubsub.Close()
	}
	if b.done != nil {
		<-b.done
	}
	return err
}
