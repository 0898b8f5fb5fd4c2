package eventsink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	apperrors "github.com/koopa0/system-design/drawing-rooms/pkg/errors"
)

// DefaultSubjectPrefix 預設 subject 前綴
const DefaultSubjectPrefix = "rooms"

// NATSPublisher 發布到 NATS core subject
//
// 不使用 JetStream：事件只是即時通知，不需要持久化與重播。
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
	logger *slog.Logger
}

// NewNATSPublisher 連接 NATS Server
func NewNATSPublisher(url, prefix string, logger *slog.Logger) (*NATSPublisher, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}

	conn, err := nats.Connect(url,
		nats.Name("drawing-rooms"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS 連接中斷", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS 已重新連接", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "連接 NATS 失敗")
	}

	logger.Info("已連接 NATS", "url", url, "prefix", prefix)

	return &NATSPublisher{conn: conn, prefix: prefix, logger: logger}, nil
}

// Subject 返回事件對應的 subject
func (p *NATSPublisher) Subject(t Type) string {
	return fmt.Sprintf("%s.%s", p.prefix, t)
}

// Publish 發布事件
func (p *NATSPublisher) Publish(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化事件失敗: %w", err)
	}

	if err := p.conn.Publish(p.Subject(event.Type), data); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "NATS 發布失敗")
	}
	return nil
}

// Close 送出緩衝中的訊息後關閉連接
func (p *NATSPublisher) Close() error {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
		return err
	}
	return nil
}
