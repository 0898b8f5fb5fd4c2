package internal

import (
	"log/slog"
	"sort"
	"sync"

	apperrors "github.com/koopa0/system-design/drawing-rooms/pkg/errors"
)

// Registry 房間註冊表
//
// 系統設計考量：
//
//  1. 反向索引 connections：connectionID → roomID
//     斷線時 O(1) 找到所在房間，不需要掃描所有房間；
//     也保證一個連接最多只屬於一個房間。
//
//  2. 離開與刪除在同一把鎖內完成：
//     房間清空的瞬間就從 rooms 移除，其他處理者看不到空房間。
//
//  3. 以實例注入（非全域變數），測試可以平行建立多個獨立的 Registry。
type Registry struct {
	rooms       map[string]*Room  // roomID -> Room
	connections map[string]string // connectionID -> roomID
	names       *NameGenerator
	passOnLeave bool // 繪圖者離開時是否交棒給下一位
	mu          sync.RWMutex
	logger      *slog.Logger
}

// RegistryOption Registry 選項
type RegistryOption func(*Registry)

// WithNameGenerator 指定名稱產生器
func WithNameGenerator(g *NameGenerator) RegistryOption {
	return func(r *Registry) { r.names = g }
}

// WithPassTurnOnLeave 設定繪圖者離開時的策略
//
// true：回合交給原本排在離開者之後的成員；false：回合清除，房間回到 lobby。
func WithPassTurnOnLeave(pass bool) RegistryOption {
	return func(r *Registry) { r.passOnLeave = pass }
}

// LeaveResult 離開房間的結果
type LeaveResult struct {
	Room        *Room
	RoomDeleted bool
	HeldTurn    bool   // 離開者是否持有回合
	NewHolder   string // 交棒後的繪圖者，未交棒時為空
}

// RegistryStats 統計資訊
type RegistryStats struct {
	TotalRooms   int `json:"total_rooms"`
	TotalMembers int `json:"total_members"`
	RoomsInGame  int `json:"rooms_in_game"`
}

// NewRegistry 創建房間註冊表
func NewRegistry(logger *slog.Logger, opts ...RegistryOption) *Registry {
	r := &Registry{
		rooms:       make(map[string]*Room),
		connections: make(map[string]string),
		names:       NewNameGenerator(DefaultRoomNameLength),
		passOnLeave: true,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create 創建房間並返回房間 ID
//
// 碰撞時重新產生，沒有失敗情況。
func (reg *Registry) Create(creator Member) string {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	roomID := reg.names.Generate()
	for {
		if _, exists := reg.rooms[roomID]; !exists {
			break
		}
		reg.logger.Debug("房間名稱碰撞，重新產生", "room_id", roomID)
		roomID = reg.names.Generate()
	}

	reg.rooms[roomID] = NewRoom(roomID, creator)
	reg.connections[creator.ConnectionID] = roomID

	reg.logger.Info("房間已創建",
		"room_id", roomID,
		"creator", creator.ConnectionID)

	return roomID
}

// Find 獲取房間，不存在時返回 NOT_FOUND 錯誤
func (reg *Registry) Find(roomID string) (*Room, error) {
	reg.mu.RLock()
	room, exists := reg.rooms[roomID]
	reg.mu.RUnlock()

	if !exists {
		return nil, apperrors.ErrRoomNotFound.WithDetails(roomID)
	}
	return room, nil
}

// Delete 移除房間，不存在時不做任何事
func (reg *Registry) Delete(roomID string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.deleteLocked(roomID)
}

// deleteLocked 需要持有寫鎖
func (reg *Registry) deleteLocked(roomID string) {
	room, exists := reg.rooms[roomID]
	if !exists {
		return
	}

	for _, view := range room.MemberView() {
		if reg.connections[view.ID] == roomID {
			delete(reg.connections, view.ID)
		}
	}
	delete(reg.rooms, roomID)

	reg.logger.Info("房間已移除", "room_id", roomID)
}

// All 返回所有房間的快照（按房間 ID 排序）
func (reg *Registry) All() []*Room {
	reg.mu.RLock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, room := range reg.rooms {
		rooms = append(rooms, room)
	}
	reg.mu.RUnlock()

	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })
	return rooms
}

// RoomOf 透過反向索引找到連接所在房間
func (reg *Registry) RoomOf(connID string) (*Room, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	roomID, exists := reg.connections[connID]
	if !exists {
		return nil, false
	}
	room, exists := reg.rooms[roomID]
	return room, exists
}

// Join 加入房間
//
// 返回的 added 為 false 表示該連接已是成員（冪等）。
// 呼叫者需先確保連接不在其他房間（見 Router.leaveCurrent）。
func (reg *Registry) Join(roomID string, member Member) (*Room, bool, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	room, exists := reg.rooms[roomID]
	if !exists {
		return nil, false, apperrors.ErrRoomNotFound.WithDetails(roomID)
	}

	added := room.AddMember(member)
	reg.connections[member.ConnectionID] = roomID

	if added {
		reg.logger.Info("玩家加入房間",
			"room_id", roomID,
			"connection_id", member.ConnectionID,
			"username", member.DisplayName)
	}
	return room, added, nil
}

// Leave 將連接從所在房間移除
//
// 房間清空時在同一把鎖內刪除。連接不在任何房間時返回 false。
func (reg *Registry) Leave(connID string) (LeaveResult, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	roomID, exists := reg.connections[connID]
	if !exists {
		return LeaveResult{}, false
	}
	delete(reg.connections, connID)

	room, exists := reg.rooms[roomID]
	if !exists {
		return LeaveResult{}, false
	}

	index, heldTurn, removed := room.removeMember(connID)
	if !removed {
		return LeaveResult{}, false
	}

	result := LeaveResult{Room: room, HeldTurn: heldTurn}

	if room.MemberCount() == 0 {
		reg.deleteLocked(roomID)
		result.RoomDeleted = true
		return result, true
	}

	if heldTurn && reg.passOnLeave {
		// 原本排在離開者後面的成員現在位於 index（超出時回到 0）
		if holder, ok := room.passTurnTo(index); ok {
			result.NewHolder = holder
		}
	}

	reg.logger.Info("玩家離開房間",
		"room_id", roomID,
		"connection_id", connID,
		"held_turn", heldTurn,
		"new_holder", result.NewHolder)

	return result, true
}

// Stats 獲取統計資訊
func (reg *Registry) Stats() RegistryStats {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	stats := RegistryStats{TotalRooms: len(reg.rooms)}
	for _, room := range reg.rooms {
		stats.TotalMembers += room.MemberCount()
		if room.Status() == StatusInGame {
			stats.RoomsInGame++
		}
	}
	return stats
}
