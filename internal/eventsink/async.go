package eventsink

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/koopa0/system-design/drawing-rooms/pkg/errors"
)

// Async 非阻塞包裝
//
// 系統設計考量：
//   - Publish 只做 channel 非阻塞寫入，事件處理迴圈不等網路
//   - 緩衝滿時丟棄事件並計數（優先保證遊戲事件的處理）
//   - 單一 worker 依序發布，保持事件順序
type Async struct {
	next    Publisher
	events  chan Event
	timeout time.Duration
	logger  *slog.Logger

	dropped   atomic.Int64
	published atomic.Int64
	failed    atomic.Int64

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewAsync 建立非阻塞包裝並啟動 worker
func NewAsync(next Publisher, buffer int, timeout time.Duration, logger *slog.Logger) *Async {
	if buffer <= 0 {
		buffer = 256
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	a := &Async{
		next:    next,
		events:  make(chan Event, buffer),
		timeout: timeout,
		logger:  logger,
	}

	a.wg.Add(1)
	go a.run()

	return a
}

// Publish 將事件放入緩衝，緩衝滿或已關閉時返回錯誤
func (a *Async) Publish(_ context.Context, event Event) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return apperrors.ErrSinkUnavailable.WithDetails("closed")
	}

	select {
	case a.events <- event:
		return nil
	default:
		a.dropped.Add(1)
		return apperrors.ErrSinkUnavailable.WithDetails("buffer full")
	}
}

// Close 送完緩衝中的事件後關閉下游
func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.events)
	a.mu.Unlock()

	a.wg.Wait()
	return a.next.Close()
}

// Stats 返回發布統計
func (a *Async) Stats() (published, failed, dropped int64) {
	return a.published.Load(), a.failed.Load(), a.dropped.Load()
}

func (a *Async) run() {
	defer a.wg.Done()

	for event := range a.events {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		err := a.next.Publish(ctx, event)
		cancel()

		if err != nil {
			a.failed.Add(1)
			a.logger.Warn("發布生命週期事件失敗",
				"type", event.Type,
				"room_id", event.RoomID,
				"error", err)
			continue
		}
		a.published.Add(1)
	}
}
