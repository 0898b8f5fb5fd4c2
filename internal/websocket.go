package internal

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	apperrors "github.com/koopa0/system-design/drawing-rooms/pkg/errors"
)

// 系統設計問題：
//   如何把持久連接變成 Router 需要的「單播 / 群組廣播 / 斷線通知」能力？
//
// 核心挑戰：
//   1. 慢客戶端：一個連接寫不動不能拖住整個房間的廣播
//   2. 死連接：瀏覽器崩潰、網路中斷時服務器要能察覺
//   3. 斷線通知：每個連接恰好通知一次，且與客戶端事件同一條佇列
//   4. 洗版：繪圖事件頻率高，需要限制單一連接的輸入速率
//
// 設計方案：
//   ✅ Hub 模式 - 集中管理連接與群組
//   ✅ 緩衝 channel + 非阻塞寫入 - 發送失敗只影響該接收者
//   ✅ Ping/Pong 心跳 - 54s/60s
//   ✅ sync.Once - 斷線通知只送一次
//   ✅ rate.Limiter - 每個連接的令牌桶

// HubConfig Hub 配置
type HubConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	SendBuffer      int
	PingPeriod      time.Duration
	PongWait        time.Duration
	WriteWait       time.Duration
	MaxMessageSize  int64
	EventsPerSecond float64 // <= 0 表示不限速
	Burst           int
	AllowedOrigins  []string // 空或包含 "*" 表示不檢查
}

// DefaultHubConfig 預設 Hub 配置
func DefaultHubConfig() HubConfig {
	return HubConfig{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBuffer:      256,
		PingPeriod:      54 * time.Second,
		PongWait:        60 * time.Second,
		WriteWait:       10 * time.Second,
		MaxMessageSize:  512 * 1024,
		EventsPerSecond: 120,
		Burst:           240,
	}
}

// Submitter 接收事件的佇列（由 Dispatcher 實現）
type Submitter interface {
	Submit(env Envelope) bool
}

// ErrConnectionGone 目標連接不存在或已關閉
var ErrConnectionGone = apperrors.New(apperrors.ErrCodeNotFound, "connection not found")

// ErrSendBufferFull 目標連接的發送緩衝已滿
var ErrSendBufferFull = apperrors.New(apperrors.ErrCodeUnavailable, "send buffer full")

// WebSocketHub WebSocket 連接中心，實現 Transport
//
// 系統設計考量：
//
//  1. 兩張表：
//     - connections：connID → Connection
//     - groups：groupID → connID 集合（群組 = 房間）
//
//  2. 並發安全：RWMutex
//     - 發送（讀鎖）頻繁，註冊/註銷/加入群組（寫鎖）較少
//     - Send channel 只在寫鎖下關閉，持讀鎖發送不會 panic
type WebSocketHub struct {
	cfg         HubConfig
	logger      *slog.Logger
	upgrader    websocket.Upgrader
	dispatcher  Submitter
	connections map[string]*Connection         // connID -> Connection
	groups      map[string]map[string]struct{} // groupID -> connIDs
	mu          sync.RWMutex
}

// Connection WebSocket 連接
type Connection struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte
	Hub  *WebSocketHub

	limiter        *rate.Limiter
	groups         map[string]struct{} // 受 Hub.mu 保護
	closeOnce      sync.Once           // 確保 channel 只關閉一次
	disconnectOnce sync.Once           // 確保斷線只通知一次
}

// NewWebSocketHub 創建 WebSocket Hub
func NewWebSocketHub(cfg HubConfig, logger *slog.Logger) *WebSocketHub {
	hub := &WebSocketHub{
		cfg:         cfg,
		logger:      logger,
		connections: make(map[string]*Connection),
		groups:      make(map[string]map[string]struct{}),
	}
	hub.upgrader = websocket.Upgrader{
		CheckOrigin:     hub.checkOrigin,
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
	}
	return hub
}

// SetDispatcher 設定事件佇列，必須在開始接受連接前呼叫
func (hub *WebSocketHub) SetDispatcher(d Submitter) {
	hub.dispatcher = d
}

// checkOrigin 檢查來源
func (hub *WebSocketHub) checkOrigin(r *http.Request) bool {
	if len(hub.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range hub.cfg.AllowedOrigins {
		allowed = strings.TrimSpace(allowed)
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	hub.logger.Warn("拒絕 WebSocket 來源", "origin", origin)
	return false
}

// ServeWS 處理 WebSocket 連接
func (hub *WebSocketHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	if hub.dispatcher == nil {
		http.Error(w, "服務尚未就緒", http.StatusServiceUnavailable)
		return
	}

	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("升級 WebSocket 失敗", "error", err)
		return
	}

	connection := &Connection{
		ID:     uuid.NewString(),
		Conn:   conn,
		Send:   make(chan []byte, hub.cfg.SendBuffer),
		Hub:    hub,
		groups: make(map[string]struct{}),
	}
	if hub.cfg.EventsPerSecond > 0 {
		burst := hub.cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		connection.limiter = rate.NewLimiter(rate.Limit(hub.cfg.EventsPerSecond), burst)
	}

	hub.register(connection)

	go connection.writePump()

	// 讓客戶端知道自己的連接 ID（change-turn 與 update-users 用它識別玩家）
	if err := hub.SendTo(connection.ID, EventConnected, connection.ID); err != nil {
		hub.logger.Warn("發送連接 ID 失敗", "connection_id", connection.ID, "error", err)
	}

	go connection.readPump()

	hub.logger.Info("WebSocket 連接建立",
		"connection_id", connection.ID,
		"remote_addr", r.RemoteAddr)
}

// register 註冊連接
func (hub *WebSocketHub) register(conn *Connection) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	hub.connections[conn.ID] = conn
}

// unregister 取消註冊連接並移出所有群組
func (hub *WebSocketHub) unregister(conn *Connection) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	actual, exists := hub.connections[conn.ID]
	if !exists || actual != conn {
		return
	}
	delete(hub.connections, conn.ID)

	for groupID := range conn.groups {
		hub.removeFromGroupLocked(conn.ID, groupID)
	}
	conn.groups = nil

	conn.closeOnce.Do(func() {
		close(conn.Send)
	})
}

// notifyDisconnect 通知 Dispatcher（每個連接一次）
func (hub *WebSocketHub) notifyDisconnect(conn *Connection) {
	conn.disconnectOnce.Do(func() {
		if !hub.dispatcher.Submit(Envelope{Kind: KindDisconnect, ConnID: conn.ID}) {
			hub.logger.Warn("分派器已停止，斷線事件未處理", "connection_id", conn.ID)
		}
	})
}

// JoinGroup 實現 Transport
func (hub *WebSocketHub) JoinGroup(connID, groupID string) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	conn, exists := hub.connections[connID]
	if !exists {
		// 連接已關閉，斷線事件隨後會處理成員移除
		return
	}

	if hub.groups[groupID] == nil {
		hub.groups[groupID] = make(map[string]struct{})
	}
	hub.groups[groupID][connID] = struct{}{}
	conn.groups[groupID] = struct{}{}
}

// LeaveGroup 實現 Transport
func (hub *WebSocketHub) LeaveGroup(connID, groupID string) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	hub.removeFromGroupLocked(connID, groupID)
	if conn, exists := hub.connections[connID]; exists && conn.groups != nil {
		delete(conn.groups, groupID)
	}
}

// removeFromGroupLocked 需要持有寫鎖
func (hub *WebSocketHub) removeFromGroupLocked(connID, groupID string) {
	members, exists := hub.groups[groupID]
	if !exists {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(hub.groups, groupID)
	}
}

// SendTo 實現 Transport
func (hub *WebSocketHub) SendTo(connID, event string, payload any) error {
	message, err := EncodeMessage(event, payload)
	if err != nil {
		return err
	}

	hub.mu.RLock()
	defer hub.mu.RUnlock()

	conn, exists := hub.connections[connID]
	if !exists {
		return ErrConnectionGone.WithDetails(connID)
	}

	select {
	case conn.Send <- message:
		return nil
	default:
		return ErrSendBufferFull.WithDetails(connID)
	}
}

// BroadcastToGroup 實現 Transport
//
// 單一接收者緩衝滿時跳過該接收者，其餘照常送出。
func (hub *WebSocketHub) BroadcastToGroup(groupID, event string, payload any, exclude string) {
	message, err := EncodeMessage(event, payload)
	if err != nil {
		hub.logger.Error("序列化廣播訊息失敗", "event", event, "error", err)
		return
	}

	hub.mu.RLock()
	defer hub.mu.RUnlock()

	for connID := range hub.groups[groupID] {
		if connID == exclude {
			continue
		}
		conn, exists := hub.connections[connID]
		if !exists {
			continue
		}
		select {
		case conn.Send <- message:
		default:
			hub.logger.Warn("連接緩衝區滿，略過",
				"group", groupID,
				"connection_id", connID,
				"event", event)
		}
	}
}

// Stop 關閉所有連接
//
// 連接關閉後 readPump 會退出並送出斷線事件，因此應在 Dispatcher.Stop 之前呼叫。
func (hub *WebSocketHub) Stop() {
	hub.mu.Lock()
	conns := make([]*Connection, 0, len(hub.connections))
	for _, conn := range hub.connections {
		conns = append(conns, conn)
	}
	hub.mu.Unlock()

	for _, conn := range conns {
		conn.Conn.Close()
	}

	hub.logger.Info("WebSocket Hub 已停止", "closed", len(conns))
}

// ConnectionCount 獲取連接數
func (hub *WebSocketHub) ConnectionCount() int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.connections)
}

// GroupSize 獲取群組內連接數
func (hub *WebSocketHub) GroupSize(groupID string) int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.groups[groupID])
}

// readPump 讀取客戶端消息
//
// 60 秒內沒有收到任何訊息（包括 Pong）就關閉連接；
// 退出時先註銷再通知斷線，之後的廣播不會再送到此連接。
func (c *Connection) readPump() {
	defer func() {
		c.Hub.unregister(c)
		c.Conn.Close()
		c.Hub.notifyDisconnect(c)
	}()

	cfg := c.Hub.cfg
	if cfg.MaxMessageSize > 0 {
		c.Conn.SetReadLimit(cfg.MaxMessageSize)
	}
	if err := c.Conn.SetReadDeadline(time.Now().Add(cfg.PongWait)); err != nil {
		c.Hub.logger.Error("設置讀取期限失敗", "error", err)
	}

	c.Conn.SetPongHandler(func(string) error {
		if err := c.Conn.SetReadDeadline(time.Now().Add(cfg.PongWait)); err != nil {
			c.Hub.logger.Error("設置讀取期限失敗", "error", err)
		}
		return nil
	})

	for {
		messageType, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.Hub.logger.Warn("WebSocket 讀取錯誤",
					"error", err,
					"connection_id", c.ID)
			}
			break
		}

		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}

		if c.limiter != nil && !c.limiter.Allow() {
			c.Hub.logger.Debug("超過速率限制，丟棄訊息", "connection_id", c.ID)
			continue
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil || msg.Event == "" {
			c.Hub.logger.Warn("解析客戶端消息失敗",
				"error", err,
				"connection_id", c.ID)
			continue
		}

		if !c.Hub.dispatcher.Submit(Envelope{Kind: KindMessage, ConnID: c.ID, Message: msg}) {
			return
		}
	}
}

// writePump 寫入消息到客戶端
//
// 每 54 秒發送 Ping；Send 被關閉時送出 close frame 後結束。
func (c *Connection) writePump() {
	cfg := c.Hub.cfg
	ticker := time.NewTicker(cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait)); err != nil {
				c.Hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if !ok {
				// Hub 關閉了通道，嘗試送出關閉訊息（連接可能已關閉）
				_ = c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// 批量發送隊列中的消息
			n := len(c.Send)
			for i := 0; i < n; i++ {
				next, ok := <-c.Send
				if !ok {
					return
				}
				if err := c.Conn.WriteMessage(websocket.TextMessage, next); err != nil {
					c.Hub.logger.Debug("發送消息失敗", "connection_id", c.ID, "error", err)
					return
				}
			}

		case <-ticker.C:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait)); err != nil {
				c.Hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
