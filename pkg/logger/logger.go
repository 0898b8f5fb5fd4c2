// Package logger 提供結構化日誌功能
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// contextKey 用於上下文的鍵類型
type contextKey string

const (
	// ConnectionIDKey 連接 ID 的上下文鍵
	ConnectionIDKey contextKey = "connection_id"
	// RoomIDKey 房間 ID 的上下文鍵
	RoomIDKey contextKey = "room_id"
)

// Options 日誌選項
type Options struct {
	Level     string
	Format    string // text 或 json
	Output    string // stdout、stderr 或檔案路徑
	AddSource bool
}

// New 建立日誌記錄器
//
// 返回的 io.Closer 在輸出為檔案時負責關閉檔案，stdout/stderr 時為 no-op。
func New(opts Options) (*slog.Logger, io.Closer, error) {
	var (
		output io.Writer
		closer io.Closer = nopCloser{}
	)

	switch opts.Output {
	case "", "stdout":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		// #nosec G304 - 路徑來自配置檔
		file, err := os.OpenFile(opts.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, err
		}
		output = file
		closer = file
	}

	return NewWithWriter(output, opts), closer, nil
}

// NewWithWriter 以指定 writer 建立日誌記錄器（測試用）
func NewWithWriter(w io.Writer, opts Options) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{
		Level:     ParseLevel(opts.Level),
		AddSource: opts.AddSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format("2006-01-02 15:04:05.000"))
				}
			}
			return a
		},
	}

	var handler slog.Handler
	switch strings.ToLower(opts.Format) {
	case "json":
		handler = slog.NewJSONHandler(w, handlerOpts)
	default:
		handler = slog.NewTextHandler(w, handlerOpts)
	}

	return slog.New(&contextHandler{Handler: handler})
}

// Discard 返回丟棄所有輸出的日誌記錄器
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// ParseLevel 解析日誌級別
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// contextHandler 從上下文中提取連接與房間資訊
type contextHandler struct {
	slog.Handler
}

// Handle 處理日誌記錄
func (h *contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if connID, ok := ctx.Value(ConnectionIDKey).(string); ok && connID != "" {
		r.AddAttrs(slog.String("connection_id", connID))
	}

	if roomID, ok := ctx.Value(RoomIDKey).(string); ok && roomID != "" {
		r.AddAttrs(slog.String("room_id", roomID))
	}

	return h.Handler.Handle(ctx, r)
}

// WithAttrs 保留 contextHandler 包裝
func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

// WithGroup 保留 contextHandler 包裝
func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{Handler: h.Handler.WithGroup(name)}
}

// WithConnectionID 添加連接 ID 到上下文
func WithConnectionID(ctx context.Context, connID string) context.Context {
	return context.WithValue(ctx, ConnectionIDKey, connID)
}

// WithRoomID 添加房間 ID 到上下文
func WithRoomID(ctx context.Context, roomID string) context.Context {
	return context.WithValue(ctx, RoomIDKey, roomID)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
