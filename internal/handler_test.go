package internal_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/koopa0/system-design/drawing-rooms/internal"
	apperrors "github.com/koopa0/system-design/drawing-rooms/pkg/errors"
	"github.com/koopa0/system-design/drawing-rooms/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticCounter 固定連接數
type staticCounter int

func (c staticCounter) ConnectionCount() int { return int(c) }

func newTestHandler(t *testing.T) (*internal.Registry, http.Handler) {
	t.Helper()

	reg := internal.NewRegistry(logger.Discard())
	d := internal.NewDispatcher(new(mockHandler), 8, logger.Discard())
	t.Cleanup(d.Stop)

	h := internal.NewHandler(reg, staticCounter(3), d, logger.Discard())
	return reg, h.Routes()
}

func doRequest(t *testing.T, handler http.Handler, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

// TestHandler_Health 測試健康檢查
func TestHandler_Health(t *testing.T) {
	_, handler := newTestHandler(t)

	w, body := doRequest(t, handler, "/health")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "healthy", body["status"])
}

// TestHandler_Stats 測試統計資訊
func TestHandler_Stats(t *testing.T) {
	reg, handler := newTestHandler(t)
	roomID := reg.Create(member("a"))
	_, _, err := reg.Join(roomID, member("b"))
	require.NoError(t, err)
	reg.Create(member("c"))

	w, body := doRequest(t, handler, "/stats")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), body["total_rooms"])
	assert.Equal(t, float64(3), body["total_members"])
	assert.Equal(t, float64(0), body["rooms_in_game"])
	assert.Equal(t, float64(3), body["connections"])
	assert.Equal(t, float64(0), body["events_processed"])
	assert.Equal(t, float64(0), body["handler_panics"])
	assert.Contains(t, body, "uptime_seconds")
}

// TestHandler_ListRooms 測試房間列表的過濾與分頁
func TestHandler_ListRooms(t *testing.T) {
	reg, handler := newTestHandler(t)
	for _, id := range []string{"a", "b", "c"} {
		reg.Create(member(id))
	}
	started := reg.All()[0]
	_, err := started.StartGame()
	require.NoError(t, err)

	tests := []struct {
		name      string
		target    string
		wantTotal int
		wantLen   int
	}{
		{name: "all rooms", target: "/api/v1/rooms", wantTotal: 3, wantLen: 3},
		{name: "in game only", target: "/api/v1/rooms?status=in_game", wantTotal: 1, wantLen: 1},
		{name: "lobby only", target: "/api/v1/rooms?status=lobby", wantTotal: 2, wantLen: 2},
		{name: "paged", target: "/api/v1/rooms?limit=2&page=2", wantTotal: 3, wantLen: 1},
		{name: "page past end", target: "/api/v1/rooms?limit=2&page=5", wantTotal: 3, wantLen: 0},
		{name: "invalid limit falls back", target: "/api/v1/rooms?limit=1000", wantTotal: 3, wantLen: 3},
		{name: "huge page is empty", target: "/api/v1/rooms?page=9223372036854775807&limit=100", wantTotal: 3, wantLen: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := doRequest(t, handler, tt.target)

			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, float64(tt.wantTotal), body["total"])
			rooms, ok := body["rooms"].([]any)
			require.True(t, ok, "rooms is always an array")
			assert.Len(t, rooms, tt.wantLen)
			assert.Contains(t, body, "limit")
		})
	}
}

// TestHandler_GetRoomDetail 測試房間詳情
func TestHandler_GetRoomDetail(t *testing.T) {
	reg, handler := newTestHandler(t)
	roomID := reg.Create(internal.NewMember("a", "Alice", nil))

	t.Run("existing room", func(t *testing.T) {
		w, body := doRequest(t, handler, "/api/v1/rooms/"+roomID)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, roomID, body["room_id"])
		assert.Equal(t, "a", body["created_by"])
		assert.Equal(t, "lobby", body["status"])
		members, ok := body["members"].([]any)
		require.True(t, ok)
		require.Len(t, members, 1)
		assert.Equal(t, "Alice", members[0].(map[string]any)["username"])
	})

	t.Run("missing room", func(t *testing.T) {
		w, body := doRequest(t, handler, "/api/v1/rooms/NOPE00")

		assert.Equal(t, http.StatusNotFound, w.Code)
		apiErr, ok := body["error"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "NOT_FOUND", apiErr["code"])
		assert.Equal(t, "NOPE00", apiErr["details"])
	})
}

// TestHandler_RecoversPanic 測試處理器 panic 時回應 500 INTERNAL_ERROR
func TestHandler_RecoversPanic(t *testing.T) {
	// 沒有 registry 時列表處理器會 panic
	h := internal.NewHandler(nil, nil, nil, logger.Discard())

	w, body := doRequest(t, h.Routes(), "/api/v1/rooms")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	apiErr, ok := body["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeInternal, apiErr["code"])
}
