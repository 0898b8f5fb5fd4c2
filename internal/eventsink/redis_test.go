package eventsink_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/koopa0/system-design/drawing-rooms/internal/eventsink"
	apperrors "github.com/koopa0/system-design/drawing-rooms/pkg/errors"
	"github.com/koopa0/system-design/drawing-rooms/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startRedis 啟動 Redis 測試容器並返回連接地址
func startRedis(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}

	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err, "failed to start redis container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate redis container: %v", err)
		}
	})

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)
	return endpoint
}

// TestRedisPublisher_Publish 測試事件寫入 Stream
func TestRedisPublisher_Publish(t *testing.T) {
	addr := startRedis(t)
	ctx := context.Background()

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })

	p := eventsink.NewRedisPublisherFromClient(client, "test:events", 0, logger.Discard())

	events := []eventsink.Event{
		eventsink.NewEvent(eventsink.RoomCreated, "ROOM01", "a", 1),
		eventsink.NewEvent(eventsink.MemberJoined, "ROOM01", "b", 2),
		eventsink.NewEvent(eventsink.RoomClosed, "ROOM01", "", 0),
	}
	for _, e := range events {
		require.NoError(t, p.Publish(ctx, e))
	}

	msgs, err := client.XRange(ctx, "test:events", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, len(events))

	for i, m := range msgs {
		assert.Equal(t, string(events[i].Type), m.Values["type"])
		assert.Equal(t, "ROOM01", m.Values["room_id"])

		var got eventsink.Event
		require.NoError(t, json.Unmarshal([]byte(m.Values["payload"].(string)), &got))
		assert.Equal(t, events[i].Type, got.Type)
		assert.Equal(t, events[i].ConnectionID, got.ConnectionID)
		assert.Equal(t, events[i].Members, got.Members)
	}

	// client 不屬於 publisher，Close 後仍可使用
	require.NoError(t, p.Close())
	assert.NoError(t, client.Ping(ctx).Err())
}

// TestRedisPublisher_MaxLen 測試近似裁剪
func TestRedisPublisher_MaxLen(t *testing.T) {
	addr := startRedis(t)
	ctx := context.Background()

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })

	p := eventsink.NewRedisPublisherFromClient(client, "trim:events", 10, logger.Discard())
	for i := 0; i < 1000; i++ {
		require.NoError(t, p.Publish(ctx, eventsink.NewEvent(eventsink.TurnChanged, fmt.Sprintf("R%d", i), "c", 2)))
	}

	n, err := client.XLen(ctx, "trim:events").Result()
	require.NoError(t, err)
	assert.Less(t, n, int64(1000))
}

// TestOpen_Redis 透過 Open 建立並關閉自有 client
func TestOpen_Redis(t *testing.T) {
	addr := startRedis(t)
	ctx := context.Background()

	p, err := eventsink.Open(ctx, eventsink.Options{
		Backend:   "redis",
		RedisAddr: addr,
		Stream:    "open:events",
		MaxLen:    100,
	}, logger.Discard())
	require.NoError(t, err)

	require.NoError(t, p.Publish(ctx, eventsink.NewEvent(eventsink.GameStarted, "ROOM01", "a", 2)))
	require.NoError(t, p.Close())

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	n, err := client.XLen(ctx, "open:events").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

// TestNewRedisPublisher_Unreachable 測試無法連線時返回 SERVICE_UNAVAILABLE
func TestNewRedisPublisher_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p, err := eventsink.NewRedisPublisher(ctx, eventsink.RedisOptions{Addr: "127.0.0.1:1"}, logger.Discard())
	assert.Nil(t, p)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.New(apperrors.ErrCodeUnavailable, ""))
}
