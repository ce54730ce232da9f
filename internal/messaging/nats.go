// Package messaging provides a NATS client wrapper for pub/sub fanout
// between Harbor hub instances. It handles connection lifecycle,
// subject-based subscriptions, and convenience methods for room, private,
// and push channels.
package messaging

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subject patterns used across Harbor hub instances.
const (
	SubjectRoom    = "room"    // + .<room_code>
	SubjectPrivate = "private" // + .<channel_key>
	SubjectPush    = "push"    // + .<user_id>
)

// NATSClient wraps the NATS connection with helper methods for pub/sub.
type NATSClient struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           "nats://localhost:4222",
		Name:          "harbor",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// NewNATSClient connects to NATS with the given config and returns a ready client.
// It returns an error if the initial connection fails.
func NewNATSClient(config NATSConfig) (*NATSClient, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("[nats] connected to %s", nc.ConnectedUrl())

	return &NATSClient{
		conn: nc,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// Publish sends data to the given NATS subject.
func (c *NATSClient) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

// Subscribe registers a handler for the given subject and stores the
// subscription internally for later cleanup.
func (c *NATSClient) Subscribe(subject string, handler func(msg *nats.Msg)) error {
	sub, err := c.conn.Subscribe(subject, handler)
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[subject] = sub
	c.mu.Unlock()

	return nil
}

// SubscribeRoom subscribes a connection to the room.<code> subject. The
// subscription is keyed by connID so that multiple members of the same room
// on the same hub instance do not overwrite each other.
func (c *NATSClient) SubscribeRoom(code string, connID string, handler func(data []byte)) error {
	subject := SubjectRoom + "." + code
	key := "roomsub:" + connID
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[key] = sub
	c.mu.Unlock()
	return nil
}

// UnsubscribeRoom unsubscribes a connection's room subscription.
func (c *NATSClient) UnsubscribeRoom(connID string) error {
	return c.unsubscribe("roomsub:" + connID)
}

// PublishRoom publishes data to the room.<code> subject.
func (c *NATSClient) PublishRoom(code string, data []byte) error {
	return c.Publish(SubjectRoom+"."+code, data)
}

// SubscribePrivate subscribes a connection to the private.<channelKey>
// subject. Both ends of a pair compute the same channel key, so both land on
// the same subject. Keyed by connID like room subscriptions.
func (c *NATSClient) SubscribePrivate(channelKey string, connID string, handler func(data []byte)) error {
	subject := SubjectPrivate + "." + channelKey
	key := "privsub:" + connID
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[key] = sub
	c.mu.Unlock()
	return nil
}

// UnsubscribePrivate unsubscribes a connection's private-channel subscription.
func (c *NATSClient) UnsubscribePrivate(connID string) error {
	return c.unsubscribe("privsub:" + connID)
}

// PublishPrivate publishes data to the private.<channelKey> subject.
func (c *NATSClient) PublishPrivate(channelKey string, data []byte) error {
	return c.Publish(SubjectPrivate+"."+channelKey, data)
}

// SubscribePush subscribes a connection to the push.<userID> subject, the
// per-user channel for notifications and other targeted events. Keyed by
// connID so each of a user's sessions gets its own delivery.
func (c *NATSClient) SubscribePush(userID string, connID string, handler func(data []byte)) error {
	subject := SubjectPush + "." + userID
	key := "pushsub:" + connID
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[key] = sub
	c.mu.Unlock()
	return nil
}

// UnsubscribePush unsubscribes a connection's push subscription.
func (c *NATSClient) UnsubscribePush(connID string) error {
	return c.unsubscribe("pushsub:" + connID)
}

// PublishPush publishes data to the push.<userID> subject.
func (c *NATSClient) PublishPush(userID string, data []byte) error {
	return c.Publish(SubjectPush+"."+userID, data)
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *NATSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for subject, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			log.Printf("[nats] drain %s: %v", subject, err)
		}
	}
	c.subs = make(map[string]*nats.Subscription)

	if err := c.conn.Drain(); err != nil {
		log.Printf("[nats] connection drain: %v", err)
	}

	log.Printf("[nats] client closed")
}

// unsubscribe removes and unsubscribes from a specific subscription key.
func (c *NATSClient) unsubscribe(key string) error {
	c.mu.Lock()
	sub, ok := c.subs[key]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("nats: no subscription for key %s", key)
	}
	delete(c.subs, key)
	c.mu.Unlock()

	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("nats unsubscribe %s: %w", key, err)
	}
	return nil
}
