package queue

import (
	"bytes"
	"context"
	"encoding/gob"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/flowcore/flowexpr/pkg/api"
)

func init() {
	gob.Register(api.Tree{})
	gob.Register(api.FEI{})
	gob.Register(api.ExpressionRecord{})
	gob.Register(map[string]any{})
}

// Redis is an api.Queue backed by Redis pub/sub, grounded on the
// teacher's redis/internal/taskqueue.RedisQueue.
//
// Each api.EventChannel maps to a Redis pub/sub channel named
// "<prefix><channel>"; payloads are gob-encoded api.Event values.
type Redis struct {
	client *redis.Client
	prefix string
}

var _ api.Queue = (*Redis)(nil)

// NewRedis constructs a Redis-backed queue. prefix is optional but
// recommended (e.g. "flowexpr:").
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "flowexpr:"
	}
	return &Redis{client: client, prefix: prefix}
}

func (q *Redis) channelKey(channel api.EventChannel) string {
	return q.prefix + string(channel)
}

func encodeEvent(ev api.Event) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&ev); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeEvent(data []byte) (api.Event, error) {
	var ev api.Event
	err := gob.NewDecoder(bytes.NewReader(data)).Decode(&ev)
	return ev, err
}

func (q *Redis) Emit(ctx context.Context, ev api.Event) error {
	data, err := encodeEvent(ev)
	if err != nil {
		return err
	}
	return q.client.Publish(ctx, q.channelKey(ev.Channel), data).Err()
}

// EmitSync publishes and waits for Redis to confirm delivery acceptance;
// Redis pub/sub itself has no subscriber-side acknowledgment, so this is
// as synchronous as the transport allows.
func (q *Redis) EmitSync(ctx context.Context, ev api.Event) error {
	return q.Emit(ctx, ev)
}

// Subscribe starts a background goroutine relaying messages on channel to
// fn until the returned unsubscribe function is called.
func (q *Redis) Subscribe(channel api.EventChannel, fn func(api.Event)) func() {
	ctx, cancel := context.WithCancel(context.Background())
	sub := q.client.Subscribe(ctx, q.channelKey(channel))

	go func() {
		ch := sub.Channel()
		for msg := range ch {
			ev, err := decodeEvent([]byte(msg.Payload))
			if err != nil {
				log.Printf("queue: dropping undecodable event on %s: %v", channel, err)
				continue
			}
			fn(ev)
		}
	}()

	return func() {
		cancel()
		_ = sub.Close()
	}
}
