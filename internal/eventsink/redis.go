package eventsink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/koopa0/system-design/drawing-rooms/pkg/errors"
)

// DefaultStream 預設 Redis Stream 名稱
const DefaultStream = "rooms:events"

// RedisOptions Redis 後端選項
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	MaxLen   int64 // 近似上限，0 表示不裁剪
}

// RedisPublisher 以 XADD 追加到 Redis Stream
//
// 使用 MAXLEN ~ 近似裁剪，避免 Stream 無限增長。
type RedisPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
	owned  bool // 是否由本物件負責關閉 client
	logger *slog.Logger
}

// NewRedisPublisher 建立 Redis client 並確認可連線
func NewRedisPublisher(ctx context.Context, opts RedisOptions, logger *slog.Logger) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     4,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "連接 Redis 失敗")
	}

	p := NewRedisPublisherFromClient(client, opts.Stream, opts.MaxLen, logger)
	p.owned = true

	logger.Info("已連接 Redis", "addr", opts.Addr, "stream", p.stream)
	return p, nil
}

// NewRedisPublisherFromClient 使用現有 client（不負責關閉）
func NewRedisPublisherFromClient(client *redis.Client, stream string, maxLen int64, logger *slog.Logger) *RedisPublisher {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisPublisher{
		client: client,
		stream: stream,
		maxLen: maxLen,
		logger: logger,
	}
}

// Publish 追加事件
func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化事件失敗: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"type":    string(event.Type),
			"room_id": event.RoomID,
			"payload": data,
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "Redis XADD 失敗")
	}
	return nil
}

// Close 關閉 client（若由本物件建立）
func (p *RedisPublisher) Close() error {
	if !p.owned {
		return nil
	}
	return p.client.Close()
}
