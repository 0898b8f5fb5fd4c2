package internal

import (
	"encoding/json"
)

// 客戶端 → 服務器事件
const (
	EventCreateRoom  = "create-room"
	EventJoinRoom    = "join-room"
	EventGameStarted = "game-started"
	EventDrawing     = "drawing"
	EventChangeTurn  = "change-turn"
	EventGetUsers    = "get-users"
)

// 服務器 → 客戶端事件（game-started、drawing、change-turn 與上面同名）
const (
	EventConnected    = "connected"
	EventRoomCreated  = "room-created"
	EventRoomJoined   = "room-joined"
	EventRoomNotFound = "room-not-found"
	EventUpdateUsers  = "update-users"
)

// Message 線上訊息格式：{"event": "...", "data": ...}
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// outboundMessage 發送用訊息
type outboundMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// EncodeMessage 編碼發送訊息，payload 為 nil 時省略 data
func EncodeMessage(event string, payload any) ([]byte, error) {
	return json.Marshal(outboundMessage{Event: event, Data: payload})
}

// createRoomPayload create-room 內容
type createRoomPayload struct {
	Username         string            `json:"username"`
	CharacterDetails *CharacterDetails `json:"characterDetails,omitempty"`
}

// joinRoomPayload join-room 內容
type joinRoomPayload struct {
	RoomID           string            `json:"roomId"`
	Username         string            `json:"username"`
	CharacterDetails *CharacterDetails `json:"characterDetails,omitempty"`
}

// drawingPayload drawing 內容，paths 原樣轉發
type drawingPayload struct {
	RoomID string          `json:"roomId"`
	Paths  json.RawMessage `json:"paths"`
}
