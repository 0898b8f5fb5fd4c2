package internal

// Transport 傳輸層提供給 Router 的能力
//
// Router 是唯一直接使用 Transport 的元件。所有發送都是 fire-and-forget：
// 單一連接發送失敗不得影響其他接收者。
type Transport interface {
	// JoinGroup 將連接加入廣播群組
	JoinGroup(connID, groupID string)
	// LeaveGroup 將連接移出廣播群組
	LeaveGroup(connID, groupID string)
	// SendTo 發送給單一連接
	SendTo(connID, event string, payload any) error
	// BroadcastToGroup 廣播給群組內所有連接，exclude 非空時排除該連接
	BroadcastToGroup(groupID, event string, payload any, exclude string)
}
