package internal

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/koopa0/system-design/drawing-rooms/internal/eventsink"
	apperrors "github.com/koopa0/system-design/drawing-rooms/pkg/errors"
	"github.com/koopa0/system-design/drawing-rooms/pkg/logger"
)

// 系統設計問題：
//   如何把連接事件轉成房間操作，並確保只有輪到的人能廣播筆跡？
//
// 設計方案：
//   ✅ Router 是唯一呼叫 Transport 的元件（房間流量）
//   ✅ 每個事件在 Dispatcher 上完整執行，不與其他事件交錯
//   ✅ 非繪圖者的 drawing 直接丟棄，不回報錯誤給客戶端
//   ✅ 錯誤分類：NOT_FOUND / UNAUTHORIZED / INVARIANT / INVALID_INPUT

// Router 會話路由器
type Router struct {
	registry   *Registry
	transport  Transport
	sink       eventsink.Publisher
	strictTurn bool // change-turn 是否只允許目前繪圖者
	logger     *slog.Logger
}

// RouterOption Router 選項
type RouterOption func(*Router)

// WithEventSink 設定生命週期事件輸出
func WithEventSink(p eventsink.Publisher) RouterOption {
	return func(rt *Router) { rt.sink = p }
}

// WithStrictTurnAdvance 只允許目前繪圖者要求換人
func WithStrictTurnAdvance(strict bool) RouterOption {
	return func(rt *Router) { rt.strictTurn = strict }
}

// NewRouter 創建路由器
func NewRouter(registry *Registry, transport Transport, logger *slog.Logger, opts ...RouterOption) *Router {
	rt := &Router{
		registry:  registry,
		transport: transport,
		sink:      eventsink.Nop{},
		logger:    logger,
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// Handle 處理客戶端事件
//
// 返回的錯誤只用於日誌分類；對客戶端的回應已在處理過程中送出。
func (rt *Router) Handle(ctx context.Context, connID string, msg Message) error {
	ctx = logger.WithConnectionID(ctx, connID)

	switch msg.Event {
	case EventCreateRoom:
		return rt.createRoom(ctx, connID, msg.Data)
	case EventJoinRoom:
		return rt.joinRoom(ctx, connID, msg.Data)
	case EventGameStarted:
		return rt.gameStarted(ctx, msg.Data)
	case EventDrawing:
		return rt.drawing(ctx, connID, msg.Data)
	case EventChangeTurn:
		return rt.changeTurn(ctx, connID, msg.Data)
	case EventGetUsers:
		return rt.getUsers(ctx, connID, msg.Data)
	default:
		return apperrors.ErrUnknownEvent.WithDetails(msg.Event)
	}
}

// Disconnect 處理連接斷開（由傳輸層觸發，每個連接恰好一次）
func (rt *Router) Disconnect(ctx context.Context, connID string) {
	ctx = logger.WithConnectionID(ctx, connID)
	rt.leave(ctx, connID)
}

// createRoom 創建房間
func (rt *Router) createRoom(ctx context.Context, connID string, data json.RawMessage) error {
	var req createRoomPayload
	if err := decode(data, &req); err != nil {
		return err
	}

	// 一個連接最多屬於一個房間
	rt.leaveCurrent(ctx, connID, "")

	member := NewMember(connID, req.Username, req.CharacterDetails)
	roomID := rt.registry.Create(member)

	rt.transport.JoinGroup(connID, roomID)
	rt.sendTo(ctx, connID, EventRoomCreated, roomID)

	rt.publish(ctx, eventsink.RoomCreated, roomID, connID, 1)
	return nil
}

// joinRoom 加入房間
func (rt *Router) joinRoom(ctx context.Context, connID string, data json.RawMessage) error {
	var req joinRoomPayload
	if err := decode(data, &req); err != nil {
		return err
	}
	ctx = logger.WithRoomID(ctx, req.RoomID)

	if _, err := rt.registry.Find(req.RoomID); err != nil {
		rt.sendTo(ctx, connID, EventRoomNotFound, nil)
		return err
	}

	rt.leaveCurrent(ctx, connID, req.RoomID)

	member := NewMember(connID, req.Username, req.CharacterDetails)
	room, added, err := rt.registry.Join(req.RoomID, member)
	if err != nil {
		rt.sendTo(ctx, connID, EventRoomNotFound, nil)
		return err
	}

	rt.transport.JoinGroup(connID, room.ID)
	rt.sendTo(ctx, connID, EventRoomJoined, room.ID)
	rt.transport.BroadcastToGroup(room.ID, EventUpdateUsers, room.MemberView(), "")

	if added {
		rt.publish(ctx, eventsink.MemberJoined, room.ID, connID, room.MemberCount())
	}
	return nil
}

// gameStarted 開始遊戲
func (rt *Router) gameStarted(ctx context.Context, data json.RawMessage) error {
	room, err := rt.findRoom(data)
	if err != nil {
		return err
	}
	ctx = logger.WithRoomID(ctx, room.ID)

	holder, err := room.StartGame()
	if err != nil {
		return err
	}

	rt.transport.BroadcastToGroup(room.ID, EventGameStarted, nil, "")
	rt.transport.BroadcastToGroup(room.ID, EventChangeTurn, holder, "")

	rt.publish(ctx, eventsink.GameStarted, room.ID, holder, room.MemberCount())
	return nil
}

// drawing 轉發筆跡
//
// 非繪圖者的筆跡直接丟棄：這是回合獨占的執行機制，不是錯誤回應。
func (rt *Router) drawing(ctx context.Context, connID string, data json.RawMessage) error {
	var req drawingPayload
	if err := decode(data, &req); err != nil {
		return err
	}

	room, err := rt.registry.Find(req.RoomID)
	if err != nil {
		return err
	}

	if !room.IsTurnHolder(connID) {
		return apperrors.ErrNotTurnHolder.WithDetails(room.ID)
	}

	rt.transport.BroadcastToGroup(room.ID, EventDrawing, req.Paths, connID)
	return nil
}

// changeTurn 換下一位繪圖者
func (rt *Router) changeTurn(ctx context.Context, connID string, data json.RawMessage) error {
	room, err := rt.findRoom(data)
	if err != nil {
		return err
	}
	ctx = logger.WithRoomID(ctx, room.ID)

	if rt.strictTurn && !room.IsTurnHolder(connID) {
		return apperrors.ErrNotTurnHolder.WithDetails(room.ID)
	}

	holder, err := room.AdvanceTurn()
	if err != nil {
		return err
	}

	rt.transport.BroadcastToGroup(room.ID, EventChangeTurn, holder, "")
	rt.publish(ctx, eventsink.TurnChanged, room.ID, holder, room.MemberCount())
	return nil
}

// getUsers 只回覆給請求者
func (rt *Router) getUsers(ctx context.Context, connID string, data json.RawMessage) error {
	room, err := rt.findRoom(data)
	if err != nil {
		return err
	}

	rt.sendTo(ctx, connID, EventUpdateUsers, room.MemberView())
	return nil
}

// leaveCurrent 若連接已在其他房間（不是 keep），先離開
func (rt *Router) leaveCurrent(ctx context.Context, connID, keep string) {
	room, ok := rt.registry.RoomOf(connID)
	if !ok || room.ID == keep {
		return
	}

	rt.transport.LeaveGroup(connID, room.ID)
	rt.leave(ctx, connID)
}

// leave 移除成員，房間清空時刪除，否則通知剩餘成員
func (rt *Router) leave(ctx context.Context, connID string) {
	result, ok := rt.registry.Leave(connID)
	if !ok {
		return
	}

	room := result.Room
	ctx = logger.WithRoomID(ctx, room.ID)

	if result.RoomDeleted {
		rt.publish(ctx, eventsink.MemberLeft, room.ID, connID, 0)
		rt.publish(ctx, eventsink.RoomClosed, room.ID, "", 0)
		return
	}

	members := room.MemberView()
	rt.publish(ctx, eventsink.MemberLeft, room.ID, connID, len(members))
	rt.transport.BroadcastToGroup(room.ID, EventUpdateUsers, members, "")

	if result.NewHolder != "" {
		rt.transport.BroadcastToGroup(room.ID, EventChangeTurn, result.NewHolder, "")
		rt.publish(ctx, eventsink.TurnChanged, room.ID, result.NewHolder, len(members))
	} else if result.HeldTurn {
		rt.logger.InfoContext(ctx, "繪圖者離開，回合已清除")
	}
}

// findRoom 解析 roomId 字串並找到房間
func (rt *Router) findRoom(data json.RawMessage) (*Room, error) {
	var roomID string
	if err := decode(data, &roomID); err != nil {
		return nil, err
	}
	return rt.registry.Find(roomID)
}

// sendTo 單播，失敗只記錄
func (rt *Router) sendTo(ctx context.Context, connID, event string, payload any) {
	if err := rt.transport.SendTo(connID, event, payload); err != nil {
		rt.logger.DebugContext(ctx, "單播失敗", "event", event, "error", err)
	}
}

func (rt *Router) publish(ctx context.Context, t eventsink.Type, roomID, connID string, members int) {
	if err := rt.sink.Publish(ctx, eventsink.NewEvent(t, roomID, connID, members)); err != nil {
		rt.logger.DebugContext(ctx, "生命週期事件未送出", "type", t, "error", err)
	}
}

// decode 解析事件內容
func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return apperrors.ErrInvalidPayload.WithDetails("missing data")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "invalid event payload")
	}
	return nil
}
