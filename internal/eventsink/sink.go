// Package eventsink 將房間生命週期事件輸出到外部訊息系統
//
// 輸出是單向的（只寫不讀），房間狀態仍然只存在記憶體中。
// 支援的後端：
//   - nats：發布到 <prefix>.<type> subject
//   - redis：XADD 到 Redis Stream
//   - none：不輸出
//
// Router 永遠透過 Async 包裝使用，事件處理迴圈不會因網路 I/O 阻塞。
package eventsink

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/koopa0/system-design/drawing-rooms/pkg/errors"
)

// Type 事件類型
type Type string

const (
	RoomCreated  Type = "room.created"
	RoomClosed   Type = "room.closed"
	MemberJoined Type = "member.joined"
	MemberLeft   Type = "member.left"
	GameStarted  Type = "game.started"
	TurnChanged  Type = "turn.changed"
)

// Event 生命週期事件
type Event struct {
	Type         Type      `json:"type"`
	RoomID       string    `json:"room_id"`
	ConnectionID string    `json:"connection_id,omitempty"`
	Members      int       `json:"members"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// NewEvent 建立事件並填入時間
func NewEvent(t Type, roomID, connID string, members int) Event {
	return Event{
		Type:         t,
		RoomID:       roomID,
		ConnectionID: connID,
		Members:      members,
		OccurredAt:   time.Now().UTC(),
	}
}

// Publisher 事件發布者
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Nop 不輸出任何事件
type Nop struct{}

// Publish 實現 Publisher
func (Nop) Publish(context.Context, Event) error { return nil }

// Close 實現 Publisher
func (Nop) Close() error { return nil }

// Options 後端選項
type Options struct {
	Backend string // none、nats、redis

	NATSURL       string
	SubjectPrefix string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Stream        string
	MaxLen        int64
}

// Open 根據選項建立後端
func Open(ctx context.Context, opts Options, logger *slog.Logger) (Publisher, error) {
	switch opts.Backend {
	case "", "none":
		return Nop{}, nil
	case "nats":
		p, err := NewNATSPublisher(opts.NATSURL, opts.SubjectPrefix, logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "redis":
		p, err := NewRedisPublisher(ctx, RedisOptions{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
			Stream:   opts.Stream,
			MaxLen:   opts.MaxLen,
		}, logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, apperrors.ErrInvalidConfig.WithDetails(fmt.Sprintf("unknown events backend %q", opts.Backend))
	}
}
