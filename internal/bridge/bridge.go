// Package bridge is the fan-out channel between notification producers and
// WebSocket gateways. It rides Redis pub/sub: fire-and-forget, no
// acknowledgment, no replay — a gateway that is down misses messages
// published while it was absent, and catches up through the store's read
// path instead.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Channel is the single logical pub/sub channel shared by all producers and
// gateway processes.
const Channel = "notifications.realtime"

// Message is the bridge payload. Notification stays raw: the bridge does not
// interpret what it fans out.
type Message struct {
	RecipientID  string          `json:"recipientId"`
	Notification json.RawMessage `json:"notification"`
}

// Bridge publishes to and subscribes on the shared channel.
type Bridge struct {
	rdb *redis.Client
}

// New returns a Bridge on rdb.
func New(rdb *redis.Client) *Bridge {
	return &Bridge{rdb: rdb}
}

// Publish fans one notification out to every subscribed gateway process.
// The notification value is marshalled as-is into the payload.
func (b *Bridge) Publish(ctx context.Context, recipientID string, notification any) error {
	raw, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	payload, err := json.Marshal(Message{RecipientID: recipientID, Notification: raw})
	if err != nil {
		return fmt.Errorf("marshal bridge message: %w", err)
	}
	if err := b.rdb.Publish(ctx, Channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", Channel, err)
	}
	return nil
}

// Subscription is one live subscriber on the bridge. Multiple independent
// subscriptions per process are supported; each owns its receive goroutine.
type Subscription struct {
	pubsub *redis.PubSub
	done   chan struct{}
}

// Subscribe registers fn for every bridge message and returns a handle the
// caller must Unsubscribe on shutdown. Malformed payloads are logged and
// skipped.
func (b *Bridge) Subscribe(ctx context.Context, fn func(Message)) (*Subscription, error) {
	pubsub := b.rdb.Subscribe(ctx, Channel)

	// Force the SUBSCRIBE round-trip so registration errors surface here,
	// not on the first missed message.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", Channel, err)
	}

	sub := &Subscription{pubsub: pubsub, done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		for msg := range pubsub.Channel() {
			var m Message
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				slog.Warn("bridge: dropping malformed message", "err", err)
				continue
			}
			fn(m)
		}
	}()
	return sub, nil
}

// Unsubscribe closes the subscription and waits for its receive goroutine
// to drain.
func (s *Subscription) Unsubscribe() error {
	err := s.pubsub.Close()
	<-s.done
	return err
}
