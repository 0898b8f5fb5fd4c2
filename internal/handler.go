package internal

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/koopa0/system-design/drawing-rooms/pkg/errors"
)

// ConnectionCounter 提供連接數（由 WebSocketHub 實現）
type ConnectionCounter interface {
	ConnectionCount() int
}

// Handler 營運用的唯讀 HTTP 介面，遊戲流量只走 WebSocket
type Handler struct {
	registry    *Registry
	connections ConnectionCounter
	dispatcher  *Dispatcher
	startedAt   time.Time
	logger      *slog.Logger
}

// NewHandler 創建 HTTP 處理器，connections 與 dispatcher 可為 nil
func NewHandler(registry *Registry, connections ConnectionCounter, dispatcher *Dispatcher, logger *slog.Logger) *Handler {
	return &Handler{
		registry:    registry,
		connections: connections,
		dispatcher:  dispatcher,
		startedAt:   time.Now(),
		logger:      logger,
	}
}

// Routes 註冊所有唯讀端點
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /api/v1/rooms", h.instrument(h.listRooms))
	mux.Handle("GET /api/v1/rooms/{room_id}", h.instrument(h.roomDetail))
	mux.Handle("GET /health", h.instrument(h.health))
	mux.Handle("GET /stats", h.instrument(h.stats))

	return mux
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// roomSummary 房間列表項目
type roomSummary struct {
	RoomID    string     `json:"room_id"`
	Status    RoomStatus `json:"status"`
	Members   int        `json:"members"`
	CreatedAt time.Time  `json:"created_at"`
}

type roomListResponse struct {
	Rooms []roomSummary `json:"rooms"`
	Total int           `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

// statsResponse /stats 內容
type statsResponse struct {
	RegistryStats
	Connections     int   `json:"connections"`
	EventsProcessed int64 `json:"events_processed"`
	HandlerPanics   int64 `json:"handler_panics"`
	UptimeSeconds   int64 `json:"uptime_seconds"`
}

// listRooms GET /api/v1/rooms?status=lobby|in_game&page=&limit=
func (h *Handler) listRooms(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	want := RoomStatus(query.Get("status"))
	page := queryInt(query.Get("page"), 1, 1, 0)
	limit := queryInt(query.Get("limit"), defaultPageSize, 1, maxPageSize)

	matched := make([]roomSummary, 0)
	for _, room := range h.registry.All() {
		status := room.Status()
		if want != "" && status != want {
			continue
		}
		matched = append(matched, roomSummary{
			RoomID:    room.ID,
			Status:    status,
			Members:   room.MemberCount(),
			CreatedAt: room.CreatedAt,
		})
	}

	from, to := pageBounds(len(matched), page, limit)
	h.writeJSON(w, http.StatusOK, roomListResponse{
		Rooms: matched[from:to],
		Total: len(matched),
		Page:  page,
		Limit: limit,
	})
}

// roomDetail GET /api/v1/rooms/{room_id}
func (h *Handler) roomDetail(w http.ResponseWriter, r *http.Request) {
	room, err := h.registry.Find(r.PathValue("room_id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, room.Snapshot())
}

// health 存活檢查
func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// stats 房間、連接與分派器計數
func (h *Handler) stats(w http.ResponseWriter, _ *http.Request) {
	resp := statsResponse{
		RegistryStats: h.registry.Stats(),
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
	}
	if h.connections != nil {
		resp.Connections = h.connections.ConnectionCount()
	}
	if h.dispatcher != nil {
		resp.EventsProcessed = h.dispatcher.Processed()
		resp.HandlerPanics = h.dispatcher.Panics()
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// queryInt 解析查詢參數，無效或超出 [lo, hi] 時使用 def（hi 為 0 表示無上限）
func queryInt(raw string, def, lo, hi int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < lo || (hi > 0 && v > hi) {
		return def
	}
	return v
}

// pageBounds 計算分頁切片範圍
//
// 超出最後一頁時返回空範圍；先比較頁數再相乘，避免極大的 page 溢位。
func pageBounds(total, page, limit int) (int, int) {
	if page-1 > total/limit {
		return total, total
	}
	from := min((page-1)*limit, total)
	to := min(from+limit, total)
	return from, to
}

// httpStatus 將錯誤分類對應到 HTTP 狀態碼
func httpStatus(err error) int {
	switch {
	case apperrors.IsNotFound(err):
		return http.StatusNotFound
	case apperrors.IsInvalidInput(err):
		return http.StatusBadRequest
	case apperrors.IsUnauthorized(err):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// writeError 以 {"error": {"code", "message"}} 回應
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	body := apperrors.ErrInternal
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		body = appErr
	}
	h.writeJSON(w, httpStatus(err), map[string]any{"error": body})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("編碼 JSON 失敗", "error", err)
	}
}

// instrument 記錄請求並從 panic 恢復
func (h *Handler) instrument(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		defer func() {
			if p := recover(); p != nil {
				h.logger.Error("處理請求時發生 panic",
					"panic", p,
					"method", r.Method,
					"path", r.URL.Path)
				if !rec.wrote {
					h.writeError(rec, errors.New("panic"))
				}
			}
			h.logger.Debug("HTTP 請求",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration", time.Since(start))
		}()

		next(rec, r)
	})
}

// statusRecorder 記錄回應狀態碼
type statusRecorder struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.wrote = true
	r.ResponseWriter.WriteHeader(code)
}
