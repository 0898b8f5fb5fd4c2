package internal

import (
	"sync"
	"time"

	apperrors "github.com/koopa0/system-design/drawing-rooms/pkg/errors"
)

// 系統設計問題：
//   多人輪流繪圖時，如何保證任一時刻只有一位繪圖者，且成員列表一致？
//
// 核心挑戰：
//   1. 輪替順序：以加入順序決定，離開不得打亂其他人的相對順序
//   2. 繪圖權限：只有目前輪到的人可以廣播筆跡
//   3. 成員離開：若離開者正持有回合，回合不能懸空指向已離開的人
//
// 設計方案：
//   ✅ 有序 slice - 插入順序即輪替順序
//   ✅ turnHolder 只存 connectionID，未開始時為空字串
//   ✅ RWMutex - HTTP 統計讀取與事件處理並存

// RoomStatus 房間狀態
//
//	lobby → in_game → （成員清空時房間被刪除）
//
// 沒有明確的「遊戲結束」狀態，房間會一直停留在 in_game 直到清空。
type RoomStatus string

const (
	StatusLobby  RoomStatus = "lobby"   // 尚未開始，沒有繪圖者
	StatusInGame RoomStatus = "in_game" // 遊戲中，繪圖權在成員間輪替
)

// Room 繪圖房間
//
// Room 只由 Registry 持有與修改，外部透過 Registry 取得。
type Room struct {
	ID        string
	CreatorID string // 僅記錄，不賦予額外權限
	CreatedAt time.Time

	mu         sync.RWMutex
	members    []Member
	turnHolder string // 空字串表示未設定
}

// RoomState 房間快照（HTTP 查詢用）
type RoomState struct {
	RoomID     string       `json:"room_id"`
	CreatedBy  string       `json:"created_by"`
	Status     RoomStatus   `json:"status"`
	TurnHolder string       `json:"turn_holder,omitempty"`
	Members    []MemberView `json:"members"`
	CreatedAt  time.Time    `json:"created_at"`
}

// NewRoom 創建房間，創建者為第一位成員
func NewRoom(id string, creator Member) *Room {
	return &Room{
		ID:        id,
		CreatorID: creator.ConnectionID,
		CreatedAt: time.Now(),
		members:   []Member{creator},
	}
}

// AddMember 加入成員
//
// 冪等：connectionID 已存在時保留原成員，返回 false。
// 成功加入後呼叫者需重新廣播成員列表。
func (r *Room) AddMember(member Member) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexOf(member.ConnectionID) >= 0 {
		return false
	}
	r.members = append(r.members, member)
	return true
}

// RemoveMember 移除成員
//
// 若離開者持有回合，回合被清除（未設定）；是否交給下一位由 Registry 的策略決定。
func (r *Room) RemoveMember(connID string) bool {
	_, _, ok := r.removeMember(connID)
	return ok
}

// removeMember 返回被移除的位置與是否持有回合
func (r *Room) removeMember(connID string) (index int, heldTurn bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	index = r.indexOf(connID)
	if index < 0 {
		return -1, false, false
	}

	// 保持其餘成員的相對順序
	r.members = append(r.members[:index], r.members[index+1:]...)

	if r.turnHolder == connID {
		r.turnHolder = ""
		heldTurn = true
	}
	return index, heldTurn, true
}

// passTurnTo 將回合交給目前位於 index 的成員（超出則回到 0）
func (r *Room) passTurnTo(index int) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.members) == 0 {
		return "", false
	}
	if index < 0 || index >= len(r.members) {
		index = 0
	}
	r.turnHolder = r.members[index].ConnectionID
	return r.turnHolder, true
}

// StartGame 開始遊戲，第一位成員成為繪圖者
func (r *Room) StartGame() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.members) == 0 {
		return "", apperrors.ErrEmptyRoom.WithDetails(r.ID)
	}
	r.turnHolder = r.members[0].ConnectionID
	return r.turnHolder, nil
}

// AdvanceTurn 輪到下一位成員
//
// 目前繪圖者不在成員列表中（或尚未開始）時回到第 0 位。
func (r *Room) AdvanceTurn() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.members) == 0 {
		return "", apperrors.ErrEmptyRoom.WithDetails(r.ID)
	}

	next := 0
	if i := r.indexOf(r.turnHolder); i >= 0 && r.turnHolder != "" {
		next = (i + 1) % len(r.members)
	}
	r.turnHolder = r.members[next].ConnectionID
	return r.turnHolder, nil
}

// IsTurnHolder 檢查是否為目前繪圖者，未設定時永遠為 false
func (r *Room) IsTurnHolder(connID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.turnHolder != "" && r.turnHolder == connID
}

// TurnHolder 返回目前繪圖者
func (r *Room) TurnHolder() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.turnHolder, r.turnHolder != ""
}

// Status 返回房間狀態
func (r *Room) Status() RoomStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.turnHolder != "" {
		return StatusInGame
	}
	return StatusLobby
}

// HasMember 檢查連接是否為成員
func (r *Room) HasMember(connID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.indexOf(connID) >= 0
}

// MemberCount 獲取成員數量
func (r *Room) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// MemberView 按加入順序返回廣播用投影
func (r *Room) MemberView() []MemberView {
	r.mu.RLock()
	defer r.mu.RUnlock()

	views := make([]MemberView, 0, len(r.members))
	for _, m := range r.members {
		views = append(views, m.view())
	}
	return views
}

// Snapshot 獲取房間快照
func (r *Room) Snapshot() RoomState {
	members := r.MemberView()

	r.mu.RLock()
	defer r.mu.RUnlock()

	status := StatusLobby
	if r.turnHolder != "" {
		status = StatusInGame
	}
	return RoomState{
		RoomID:     r.ID,
		CreatedBy:  r.CreatorID,
		Status:     status,
		TurnHolder: r.turnHolder,
		Members:    members,
		CreatedAt:  r.CreatedAt,
	}
}

// indexOf 需要持有鎖
func (r *Room) indexOf(connID string) int {
	for i, m := range r.members {
		if m.ConnectionID == connID {
			return i
		}
	}
	return -1
}
