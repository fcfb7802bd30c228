package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultStream = "catsync:audit"

type RedisConfig struct {
	RedisURL string // redis://<user>:<password>@<host>:<port>/<db>
	Stream   string
	MaxLen   int64 // 近似裁剪长度，0 表示不裁剪
}

// RedisSink 把审计记录追加到 Redis stream，供下游消费者订阅
type RedisSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewRedisSink(cfg RedisConfig) (*RedisSink, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	// Fail-fast 连接检查
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return newRedisSink(client, cfg), nil
}

func newRedisSink(client *redis.Client, cfg RedisConfig) *RedisSink {
	stream := cfg.Stream
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisSink{client: client, stream: stream, maxLen: cfg.MaxLen}
}

func (s *RedisSink) Record(ctx context.Context, ev Event) error {
	opts, err := json.Marshal(ev.Options)
	if err != nil {
		return fmt.Errorf("failed to encode audit options: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"id":      ev.ID,
			"time":    ev.Time.Format(time.RFC3339Nano),
			"action":  ev.Action,
			"target":  ev.Target,
			"path":    ev.Path,
			"actor":   ev.Actor,
			"options": string(opts),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}

	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to append audit event: %w", err)
	}
	return nil
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}
