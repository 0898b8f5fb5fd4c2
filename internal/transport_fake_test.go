package internal_test

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/koopa0/system-design/drawing-rooms/internal"
	"github.com/koopa0/system-design/drawing-rooms/internal/eventsink"
	apperrors "github.com/koopa0/system-design/drawing-rooms/pkg/errors"
)

// delivery 一次送達某個連接的訊息
type delivery struct {
	To      string
	Event   string
	Payload any
}

// fakeTransport 記錄所有送達的訊息，廣播展開成逐一送達
type fakeTransport struct {
	mu         sync.Mutex
	groups     map[string]map[string]struct{}
	deliveries []delivery
	failFor    map[string]bool // SendTo 對這些連接返回錯誤
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		groups:  make(map[string]map[string]struct{}),
		failFor: make(map[string]bool),
	}
}

func (f *fakeTransport) JoinGroup(connID, groupID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.groups[groupID] == nil {
		f.groups[groupID] = make(map[string]struct{})
	}
	f.groups[groupID][connID] = struct{}{}
}

func (f *fakeTransport) LeaveGroup(connID, groupID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.groups[groupID], connID)
}

func (f *fakeTransport) SendTo(connID, event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[connID] {
		return apperrors.New(apperrors.ErrCodeNotFound, "connection gone")
	}
	f.deliveries = append(f.deliveries, delivery{To: connID, Event: event, Payload: payload})
	return nil
}

func (f *fakeTransport) BroadcastToGroup(groupID, event string, payload any, exclude string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for connID := range f.groups[groupID] {
		if connID == exclude {
			continue
		}
		f.deliveries = append(f.deliveries, delivery{To: connID, Event: event, Payload: payload})
	}
}

// disconnect 模擬傳輸層：先離開所有群組，再通知路由器
func (f *fakeTransport) disconnect(rt *internal.Router, connID string) {
	f.mu.Lock()
	for _, members := range f.groups {
		delete(members, connID)
	}
	f.mu.Unlock()
	rt.Disconnect(context.Background(), connID)
}

// take 取出並清空目前的送達記錄
func (f *fakeTransport) take() []delivery {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.deliveries
	f.deliveries = nil
	return out
}

// to 過濾出送給某連接的訊息
func to(ds []delivery, connID string) []delivery {
	var out []delivery
	for _, d := range ds {
		if d.To == connID {
			out = append(out, d)
		}
	}
	return out
}

// events 取出事件名稱序列
func events(ds []delivery) []string {
	out := make([]string, 0, len(ds))
	for _, d := range ds {
		out = append(out, d.Event)
	}
	return out
}

// viewIDs 取出 update-users 內容的連接 ID
func viewIDs(payload any) []string {
	views, _ := payload.([]internal.MemberView)
	ids := make([]string, 0, len(views))
	for _, v := range views {
		ids = append(ids, v.ID)
	}
	return ids
}

// recordingSink 記錄生命週期事件
type recordingSink struct {
	mu     sync.Mutex
	events []eventsink.Event
}

func (s *recordingSink) Publish(_ context.Context, e eventsink.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) Close() error { return nil }

func (s *recordingSink) types() []eventsink.Type {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]eventsink.Type, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Type)
	}
	return out
}

// msg 組出客戶端訊息
func msg(event string, data any) internal.Message {
	if data == nil {
		return internal.Message{Event: event}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		panic(err)
	}
	return internal.Message{Event: event, Data: raw}
}
