package events

import (
	"context"
	"encoding/json"
	"fmt"

	"vibefi/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	// StreamName is the Redis stream carrying every session event.
	StreamName = "vibefi:session-events"

	channelPrefix = "vibefi:session:"

	streamMaxLen int64 = 10000
)

// RedisConfig holds connection parameters for the Redis client.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisPublisher appends events to a capped stream for indexers and
// publishes them on a per-session pub/sub channel for live consumers.
type RedisPublisher struct {
	rdb *redis.Client
}

var _ Publisher = (*RedisPublisher)(nil)

// NewRedisClient connects and pings Redis.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return rdb, nil
}

func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

// SessionChannel returns the pub/sub channel for one session.
func SessionChannel(sessionID string) string {
	return channelPrefix + sessionID
}

func (p *RedisPublisher) Publish(ctx context.Context, event *models.SessionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}

	err = p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamName,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]any{
			"session_id": event.SessionID,
			"seq":        event.Seq,
			"type":       string(event.Type),
			"data":       data,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis: xadd %s: %w", StreamName, err)
	}

	channel := SessionChannel(event.SessionID)
	if err := p.rdb.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}
