package ws

import (
	"LiveChat/internal/lib/sl"
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

type backplaneMessage struct {
	Instance string          `json:"instance"`
	Room     string          `json:"room"`
	Data     json.RawMessage `json:"data"`
}

// RedisBackplane fans broadcasts out to other instances over Redis pub/sub.
// Each message carries the origin instance so it is not delivered twice.
type RedisBackplane struct {
	rdb      *redis.Client
	channel  string
	instance string
	log      *slog.Logger
}

func NewRedisBackplane(rdb *redis.Client, channel, instance string, log *slog.Logger) *RedisBackplane {
	return &RedisBackplane{
		rdb:      rdb,
		channel:  channel,
		instance: instance,
		log:      log.With(sl.Module("backplane")),
	}
}

func (b *RedisBackplane) encode(room string, data []byte) ([]byte, error) {
	return json.Marshal(backplaneMessage{Instance: b.instance, Room: room, Data: data})
}

// decode returns ok=false for malformed messages and for our own.
func (b *RedisBackplane) decode(payload string) (backplaneMessage, bool) {
	var msg backplaneMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		b.log.With(sl.Err(err)).Warn("malformed backplane message")
		return msg, false
	}
	return msg, msg.Instance != b.instance
}

func (b *RedisBackplane) Publish(ctx context.Context, room string, data []byte) error {
	payload, err := b.encode(room, data)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, payload).Err()
}

// Run delivers events published by other instances to local rooms until
// ctx is done.
func (b *RedisBackplane) Run(ctx context.Context, hub *Hub) {
	sub := b.rdb.Subscribe(ctx, b.channel)
	defer func() { _ = sub.Close() }()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			msg, deliver := b.decode(m.Payload)
			if deliver {
				hub.Deliver(msg.Room, msg.Data)
			}
		}
	}
}

// RedisPresence keeps per agent connection counts in a Redis hash shared by
// all instances.
type RedisPresence struct {
	rdb *redis.Client
	key string
	log *slog.Logger
}

func NewRedisPresence(rdb *redis.Client, key string, log *slog.Logger) *RedisPresence {
	return &RedisPresence{
		rdb: rdb,
		key: key,
		log: log.With(sl.Module("presence")),
	}
}

func (p *RedisPresence) Connected(ctx context.Context, agentID string) {
	if err := p.rdb.HIncrBy(ctx, p.key, agentID, 1).Err(); err != nil {
		p.log.With(sl.Err(err)).Warn("presence connect")
	}
}

func (p *RedisPresence) Disconnected(ctx context.Context, agentID string) {
	n, err := p.rdb.HIncrBy(ctx, p.key, agentID, -1).Result()
	if err != nil {
		p.log.With(sl.Err(err)).Warn("presence disconnect")
		return
	}
	if n <= 0 {
		p.rdb.HDel(ctx, p.key, agentID)
	}
}

func (p *RedisPresence) Online(ctx context.Context, agentID string) bool {
	n, err := p.rdb.HGet(ctx, p.key, agentID).Int()
	if err != nil {
		return false
	}
	return n > 0
}
