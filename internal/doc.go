// Package internal 實現多人輪流繪圖的房間服務。
//
// 玩家透過 WebSocket 創建或加入房間，房間內同一時間只有一位繪圖者，
// 繪圖者的筆跡即時轉發給房間內其他成員。
//
// 元件（由底層往上）：
//   - NameGenerator：6 碼英數房間名稱
//   - Room：有序成員列表與回合狀態
//   - Registry：房間表與 connectionID → roomID 反向索引
//   - Router：把連接事件轉成房間操作並廣播
//   - Dispatcher：單一 goroutine 依序處理所有事件
//   - WebSocketHub：gorilla/websocket 實現的 Transport
//
// # 線上協定
//
// 每個 frame 都是 JSON：{"event": "<名稱>", "data": <內容>}
//
//	客戶端 → 服務器：create-room、join-room、game-started、drawing、change-turn、get-users
//	服務器 → 客戶端：connected、room-created、room-joined、room-not-found、
//	                 update-users、game-started、change-turn、drawing
//
// 所有房間狀態只存在記憶體中，隨程序結束消失。
package internal
