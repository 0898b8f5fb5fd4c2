package internal_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/koopa0/system-design/drawing-rooms/internal"
	apperrors "github.com/koopa0/system-design/drawing-rooms/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv 清空會覆蓋配置的環境變數
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "ALLOWED_ORIGINS", "LOG_LEVEL", "LOG_FORMAT",
		"EVENTS_BACKEND", "NATS_URL", "REDIS_ADDR", "REDIS_PASSWORD",
	} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// TestDefaultConfig 測試預設值
func TestDefaultConfig(t *testing.T) {
	cfg := internal.DefaultConfig()

	assert.Equal(t, 3010, cfg.Server.Port)
	assert.Equal(t, 54*time.Second, cfg.WebSocket.PingPeriod)
	assert.Equal(t, 60*time.Second, cfg.WebSocket.PongWait)
	assert.Equal(t, 6, cfg.Game.RoomNameLength)
	assert.False(t, cfg.Game.StrictTurnAdvance)
	assert.True(t, cfg.Game.AdvanceOnDrawerLeave)
	assert.Equal(t, "none", cfg.Events.Backend)
	assert.NoError(t, cfg.Validate())
}

// TestLoadConfig_MissingFile 測試配置檔不存在時使用預設值
func TestLoadConfig_MissingFile(t *testing.T) {
	clearEnv(t)

	cfg, err := internal.LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, internal.DefaultConfig(), cfg)
}

// TestLoadConfig_YAML 測試從 YAML 載入並保留未指定欄位的預設值
func TestLoadConfig_YAML(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, `
server:
  port: 8080
  allowed_origins: ["http://localhost:3000"]
websocket:
  ping_period: 20s
  pong_wait: 30s
game:
  strict_turn_advance: true
  advance_on_drawer_leave: false
events:
  backend: redis
  redis_addr: cache:6379
  stream: drawing:events
log:
  level: debug
  format: json
`)

	cfg, err := internal.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 20*time.Second, cfg.WebSocket.PingPeriod)
	assert.Equal(t, 30*time.Second, cfg.WebSocket.PongWait)
	assert.True(t, cfg.Game.StrictTurnAdvance)
	assert.False(t, cfg.Game.AdvanceOnDrawerLeave)
	assert.Equal(t, 6, cfg.Game.RoomNameLength, "unset fields keep defaults")

	hub := cfg.HubConfig()
	assert.Equal(t, 20*time.Second, hub.PingPeriod)
	assert.Equal(t, []string{"http://localhost:3000"}, hub.AllowedOrigins)

	sink := cfg.SinkOptions()
	assert.Equal(t, "redis", sink.Backend)
	assert.Equal(t, "cache:6379", sink.RedisAddr)
	assert.Equal(t, "drawing:events", sink.Stream)

	logOpts := cfg.LoggerOptions()
	assert.Equal(t, "debug", logOpts.Level)
	assert.Equal(t, "json", logOpts.Format)
	assert.True(t, logOpts.AddSource)
}

// TestLoadConfig_EnvOverride 測試環境變數優先於配置檔
func TestLoadConfig_EnvOverride(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "server:\n  port: 8080\n")

	t.Setenv("PORT", "9090")
	t.Setenv("ALLOWED_ORIGINS", "http://a.example,http://b.example")
	t.Setenv("EVENTS_BACKEND", "nats")
	t.Setenv("NATS_URL", "nats://broker:4222")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := internal.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "nats", cfg.Events.Backend)
	assert.Equal(t, "nats://broker:4222", cfg.Events.NATSURL)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.False(t, cfg.LoggerOptions().AddSource)
}

// TestLoadConfig_Errors 測試載入錯誤
func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		invalid bool // 是否為 INVALID_INPUT 分類
	}{
		{name: "malformed yaml", yaml: "server: [", invalid: false},
		{name: "non numeric port", yaml: "", env: map[string]string{"PORT": "http"}, invalid: true},
		{name: "port out of range", yaml: "server:\n  port: 70000\n", invalid: true},
		{name: "ping not shorter than pong", yaml: "websocket:\n  ping_period: 60s\n  pong_wait: 60s\n", invalid: true},
		{name: "room name too short", yaml: "game:\n  room_name_length: 3\n", invalid: true},
		{name: "burst missing with rate limit", yaml: "ratelimit:\n  events_per_second: 10\n  burst: 0\n", invalid: true},
		{name: "unknown backend", yaml: "events:\n  backend: kafka\n", invalid: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := internal.LoadConfig(writeConfig(t, tt.yaml))
			require.Error(t, err)
			assert.Equal(t, tt.invalid, apperrors.IsInvalidInput(err))
		})
	}
}

// TestConfig_RateLimitDisabled 測試關閉限速時不需要 burst
func TestConfig_RateLimitDisabled(t *testing.T) {
	cfg := internal.DefaultConfig()
	cfg.RateLimit.EventsPerSecond = 0
	cfg.RateLimit.Burst = 0

	assert.NoError(t, cfg.Validate())
}
