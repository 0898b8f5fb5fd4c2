package internal

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	apperrors "github.com/koopa0/system-design/drawing-rooms/pkg/errors"
)

// 系統設計問題：
//   多個連接的 goroutine 同時送來事件，如何保證「一個事件處理完才處理下一個」？
//
// 設計方案：
//   ✅ 單一 goroutine 依序消費 inbox（所有房間共用，房間數量小）
//   ✅ 斷線事件與客戶端事件走同一條佇列，Submit 阻塞而非丟棄，斷線恰好處理一次
//   ✅ 每個事件 recover panic，一個房間的錯誤不影響其他房間

// EnvelopeKind 事件種類
type EnvelopeKind int

const (
	KindMessage    EnvelopeKind = iota // 客戶端訊息
	KindDisconnect                     // 連接斷開
)

// Envelope 佇列中的事件
type Envelope struct {
	Kind    EnvelopeKind
	ConnID  string
	Message Message
}

// EventHandler 事件處理者（由 Router 實現）
type EventHandler interface {
	Handle(ctx context.Context, connID string, msg Message) error
	Disconnect(ctx context.Context, connID string)
}

// Dispatcher 事件分派器
type Dispatcher struct {
	handler EventHandler
	inbox   chan Envelope
	logger  *slog.Logger

	processed atomic.Int64
	panics    atomic.Int64

	// mu 讓 Submit 與 Stop 互斥：Stop 之後不會再有事件進入 inbox
	mu     sync.RWMutex
	closed bool
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewDispatcher 創建分派器並啟動處理迴圈
func NewDispatcher(handler EventHandler, buffer int, logger *slog.Logger) *Dispatcher {
	if buffer <= 0 {
		buffer = 1024
	}

	d := &Dispatcher{
		handler: handler,
		inbox:   make(chan Envelope, buffer),
		logger:  logger,
		stopCh:  make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

// Submit 送入事件，佇列滿時等待；分派器已停止時返回 false
//
// 返回 true 的事件一定會被處理。
func (d *Dispatcher) Submit(env Envelope) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return false
	}
	// run 在 stopCh 關閉前持續消費，持讀鎖阻塞寫入不會卡住 Stop
	d.inbox <- env
	return true
}

// Stop 停止分派器，已在佇列中的事件會先處理完
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.stopCh)
	}
	d.mu.Unlock()

	d.wg.Wait()
}

// Processed 已處理事件數
func (d *Dispatcher) Processed() int64 {
	return d.processed.Load()
}

// Panics 已恢復的 panic 數
func (d *Dispatcher) Panics() int64 {
	return d.panics.Load()
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case env := <-d.inbox:
			d.dispatch(env)
		case <-d.stopCh:
			// 處理剩餘事件
			for {
				select {
				case env := <-d.inbox:
					d.dispatch(env)
				default:
					d.logger.Info("事件分派器已停止", "processed", d.processed.Load())
					return
				}
			}
		}
	}
}

// dispatch 執行單一事件
func (d *Dispatcher) dispatch(env Envelope) {
	defer d.processed.Add(1)
	defer func() {
		if r := recover(); r != nil {
			d.panics.Add(1)
			d.logger.Error("事件處理發生 panic",
				"panic", r,
				"connection_id", env.ConnID,
				"event", env.Message.Event,
				"stack", string(debug.Stack()))
		}
	}()

	ctx := context.Background()

	switch env.Kind {
	case KindDisconnect:
		d.handler.Disconnect(ctx, env.ConnID)
	default:
		err := d.handler.Handle(ctx, env.ConnID, env.Message)
		d.logResult(ctx, env, err)
	}
}

// logResult 依錯誤分類決定日誌級別
func (d *Dispatcher) logResult(ctx context.Context, env Envelope, err error) {
	if err == nil {
		return
	}

	attrs := []any{
		"connection_id", env.ConnID,
		"event", env.Message.Event,
		"error", err,
	}

	switch {
	case apperrors.IsNotFound(err), apperrors.IsUnauthorized(err):
		// 正常結果：過期的房間 ID、非繪圖者的筆跡
		d.logger.DebugContext(ctx, "事件被忽略", attrs...)
	case apperrors.IsInvariant(err):
		d.logger.ErrorContext(ctx, "房間狀態不一致", attrs...)
	case apperrors.IsInvalidInput(err):
		d.logger.WarnContext(ctx, "無效的客戶端事件", attrs...)
	default:
		d.logger.ErrorContext(ctx, "事件處理失敗", attrs...)
	}
}
