package internal

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/koopa0/system-design/drawing-rooms/internal/eventsink"
	apperrors "github.com/koopa0/system-design/drawing-rooms/pkg/errors"
	"github.com/koopa0/system-design/drawing-rooms/pkg/logger"
)

// DefaultPort 預設監聽端口
const DefaultPort = 3010

// Config 整個應用的配置
type Config struct {
	Server struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		AllowedOrigins  []string      `yaml:"allowed_origins"`
	} `yaml:"server"`

	WebSocket struct {
		ReadBufferSize  int           `yaml:"read_buffer_size"`
		WriteBufferSize int           `yaml:"write_buffer_size"`
		SendBuffer      int           `yaml:"send_buffer"`
		PingPeriod      time.Duration `yaml:"ping_period"`
		PongWait        time.Duration `yaml:"pong_wait"`
		WriteWait       time.Duration `yaml:"write_wait"`
		MaxMessageSize  int64         `yaml:"max_message_size"`
	} `yaml:"websocket"`

	Game struct {
		RoomNameLength       int  `yaml:"room_name_length"`
		StrictTurnAdvance    bool `yaml:"strict_turn_advance"`
		AdvanceOnDrawerLeave bool `yaml:"advance_on_drawer_leave"`
		DispatchBuffer       int  `yaml:"dispatch_buffer"`
	} `yaml:"game"`

	RateLimit struct {
		EventsPerSecond float64 `yaml:"events_per_second"`
		Burst           int     `yaml:"burst"`
	} `yaml:"ratelimit"`

	Events struct {
		Backend        string        `yaml:"backend"` // none、nats、redis
		Buffer         int           `yaml:"buffer"`
		PublishTimeout time.Duration `yaml:"publish_timeout"`
		NATSURL        string        `yaml:"nats_url"`
		SubjectPrefix  string        `yaml:"subject_prefix"`
		RedisAddr      string        `yaml:"redis_addr"`
		RedisPassword  string        `yaml:"redis_password"`
		RedisDB        int           `yaml:"redis_db"`
		Stream         string        `yaml:"stream"`
		MaxLen         int64         `yaml:"max_len"`
	} `yaml:"events"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"log"`
}

// DefaultConfig 返回預設配置
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Port = DefaultPort
	cfg.Server.ReadTimeout = 15 * time.Second
	cfg.Server.WriteTimeout = 15 * time.Second
	cfg.Server.ShutdownTimeout = 30 * time.Second

	hub := DefaultHubConfig()
	cfg.WebSocket.ReadBufferSize = hub.ReadBufferSize
	cfg.WebSocket.WriteBufferSize = hub.WriteBufferSize
	cfg.WebSocket.SendBuffer = hub.SendBuffer
	cfg.WebSocket.PingPeriod = hub.PingPeriod
	cfg.WebSocket.PongWait = hub.PongWait
	cfg.WebSocket.WriteWait = hub.WriteWait
	cfg.WebSocket.MaxMessageSize = hub.MaxMessageSize

	cfg.Game.RoomNameLength = DefaultRoomNameLength
	cfg.Game.StrictTurnAdvance = false
	cfg.Game.AdvanceOnDrawerLeave = true
	cfg.Game.DispatchBuffer = 1024

	cfg.RateLimit.EventsPerSecond = hub.EventsPerSecond
	cfg.RateLimit.Burst = hub.Burst

	cfg.Events.Backend = "none"
	cfg.Events.Buffer = 256
	cfg.Events.PublishTimeout = 2 * time.Second
	cfg.Events.NATSURL = "nats://localhost:4222"
	cfg.Events.SubjectPrefix = eventsink.DefaultSubjectPrefix
	cfg.Events.RedisAddr = "localhost:6379"
	cfg.Events.Stream = eventsink.DefaultStream
	cfg.Events.MaxLen = 10000

	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	cfg.Log.Output = "stdout"

	return cfg
}

// LoadConfig 載入配置
//
// 順序：預設值 → YAML 檔（不存在則略過）→ .env → 環境變數 → 驗證。
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		// #nosec G304 - path 來自命令列參數
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("解析配置檔失敗: %w", err)
			}
		case errors.Is(err, fs.ErrNotExist):
			// 沒有配置檔時使用預設值
		default:
			return nil, fmt.Errorf("讀取配置檔失敗: %w", err)
		}
	}

	// .env 是選用的，已存在的環境變數優先
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("載入 .env 失敗: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv 環境變數覆蓋
func (c *Config) applyEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return apperrors.ErrInvalidConfig.WithDetails(fmt.Sprintf("PORT=%q", v))
		}
		c.Server.Port = port
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv("EVENTS_BACKEND"); v != "" {
		c.Events.Backend = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		c.Events.NATSURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Events.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Events.RedisPassword = v
	}
	return nil
}

// Validate 驗證配置
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return apperrors.ErrInvalidConfig.WithDetails(fmt.Sprintf(format, args...))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return invalid("server.port %d out of range", c.Server.Port)
	}
	if c.WebSocket.PingPeriod <= 0 || c.WebSocket.PongWait <= 0 || c.WebSocket.WriteWait <= 0 {
		return invalid("websocket timings must be positive")
	}
	if c.WebSocket.PingPeriod >= c.WebSocket.PongWait {
		return invalid("websocket.ping_period (%s) must be shorter than pong_wait (%s)",
			c.WebSocket.PingPeriod, c.WebSocket.PongWait)
	}
	if c.WebSocket.SendBuffer <= 0 {
		return invalid("websocket.send_buffer must be positive")
	}
	if c.Game.RoomNameLength < 4 {
		return invalid("game.room_name_length %d too short", c.Game.RoomNameLength)
	}
	if c.RateLimit.EventsPerSecond > 0 && c.RateLimit.Burst <= 0 {
		return invalid("ratelimit.burst must be positive when rate limiting is enabled")
	}
	switch c.Events.Backend {
	case "", "none", "nats", "redis":
	default:
		return invalid("events.backend %q", c.Events.Backend)
	}
	return nil
}

// HubConfig 轉換為 Hub 配置
func (c *Config) HubConfig() HubConfig {
	return HubConfig{
		ReadBufferSize:  c.WebSocket.ReadBufferSize,
		WriteBufferSize: c.WebSocket.WriteBufferSize,
		SendBuffer:      c.WebSocket.SendBuffer,
		PingPeriod:      c.WebSocket.PingPeriod,
		PongWait:        c.WebSocket.PongWait,
		WriteWait:       c.WebSocket.WriteWait,
		MaxMessageSize:  c.WebSocket.MaxMessageSize,
		EventsPerSecond: c.RateLimit.EventsPerSecond,
		Burst:           c.RateLimit.Burst,
		AllowedOrigins:  c.Server.AllowedOrigins,
	}
}

// SinkOptions 轉換為事件輸出選項
func (c *Config) SinkOptions() eventsink.Options {
	return eventsink.Options{
		Backend:       c.Events.Backend,
		NATSURL:       c.Events.NATSURL,
		SubjectPrefix: c.Events.SubjectPrefix,
		RedisAddr:     c.Events.RedisAddr,
		RedisPassword: c.Events.RedisPassword,
		RedisDB:       c.Events.RedisDB,
		Stream:        c.Events.Stream,
		MaxLen:        c.Events.MaxLen,
	}
}

// LoggerOptions 轉換為日誌選項
func (c *Config) LoggerOptions() logger.Options {
	return logger.Options{
		Level:     c.Log.Level,
		Format:    c.Log.Format,
		Output:    c.Log.Output,
		AddSource: strings.EqualFold(c.Log.Level, "debug"),
	}
}
