package realtime

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	// DefaultRelayChannel is the Redis pub/sub channel carrying change events.
	DefaultRelayChannel = "marketchat:changes"
	// relayPublishTimeout bounds one PUBLISH round trip.
	relayPublishTimeout = 2 * time.Second
	// relayOutboxSize is how many events may wait for the publisher before
	// new ones are dropped.
	relayOutboxSize = 256
)

// changeEnvelope is the msgpack payload published for every local write.
type changeEnvelope struct {
	Origin     string   `msgpack:"o"`
	Collection string   `msgpack:"c"`
	Keys       []string `msgpack:"k"`
}

// RedisRelay shares change notifications between server processes that use
// the same database. Local writes are applied to the local broker directly
// and published; events published by other processes are replayed into the
// local broker. Publishing happens on a background goroutine so a slow or
// unreachable Redis never delays the write that triggered the event.
type RedisRelay struct {
	client  *redis.Client
	channel string
	origin  string
	local   *Broker

	pubsub *redis.PubSub
	outbox chan changeEnvelope
	stop   chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewRedisRelay creates a relay. origin must be unique per process.
func NewRedisRelay(client *redis.Client, channel, origin string, local *Broker) *RedisRelay {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	return &RedisRelay{
		client:  client,
		channel: channel,
		origin:  origin,
		local:   local,
		outbox:  make(chan changeEnvelope, relayOutboxSize),
		stop:    make(chan struct{}),
	}
}

// Start subscribes to the relay channel and begins replaying remote events.
func (r *RedisRelay) Start(ctx context.Context) error {
	var startErr error
	r.startOnce.Do(func() {
		pubsub := r.client.Subscribe(ctx, r.channel)
		if _, err := pubsub.Receive(ctx); err != nil {
			_ = pubsub.Close()
			startErr = fmt.Errorf("subscribe to %q: %w", r.channel, err)
			return
		}
		r.pubsub = pubsub

		r.wg.Add(1)
		go r.loop(pubsub.Channel())
		r.startPublisher()
	})
	return startErr
}

func (r *RedisRelay) startPublisher() {
	r.wg.Add(1)
	go r.publishLoop()
}

// Stop closes the subscription and waits for the replay and publish loops
// to exit. Events still queued for publishing are discarded.
func (r *RedisRelay) Stop() {
	r.stopOnce.Do(func() {
		close(r.stop)
		if r.pubsub != nil {
			_ = r.pubsub.Close()
		}
		r.wg.Wait()
	})
}

// Notify applies a change locally and queues it for other processes.
// It never blocks: when the outbox is full the event is dropped and logged.
func (r *RedisRelay) Notify(collection string, keys ...string) {
	r.local.Notify(collection, keys...)

	change := changeEnvelope{
		Origin:     r.origin,
		Collection: collection,
		Keys:       keys,
	}
	select {
	case r.outbox <- change:
	default:
		log.Printf("realtime: relay outbox full, dropping event collection=%s", collection)
	}
}

func (r *RedisRelay) publishLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.stop:
			return
		case change := <-r.outbox:
			r.publish(change)
		}
	}
}

func (r *RedisRelay) publish(change changeEnvelope) {
	payload, err := encodeChange(change)
	if err != nil {
		log.Printf("realtime: encode relay event failed: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), relayPublishTimeout)
	defer cancel()
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		log.Printf("realtime: publish relay event failed collection=%s: %v", change.Collection, err)
	}
}

func (r *RedisRelay) loop(messages <-chan *redis.Message) {
	defer r.wg.Done()

	for msg := range messages {
		if err := r.handlePayload([]byte(msg.Payload)); err != nil {
			log.Printf("realtime: drop relay event: %v", err)
		}
	}
}

func (r *RedisRelay) handlePayload(payload []byte) error {
	change, err := decodeChange(payload)
	if err != nil {
		return err
	}
	if change.Origin == r.origin {
		return nil
	}
	r.local.Notify(change.Collection, change.Keys...)
	return nil
}

func encodeChange(change changeEnvelope) ([]byte, error) {
	return msgpack.Marshal(change)
}

func decodeChange(payload []byte) (changeEnvelope, error) {
	var change changeEnvelope
	if err := msgpack.Unmarshal(payload, &change); err != nil {
		return changeEnvelope{}, fmt.Errorf("decode change event: %w", err)
	}
	if change.Collection == "" {
		return changeEnvelope{}, errors.New("change event has no collection")
	}
	return change, nil
}
