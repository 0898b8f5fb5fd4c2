package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/koopa0/system-design/drawing-rooms/internal"
	"github.com/koopa0/system-design/drawing-rooms/internal/eventsink"
	"github.com/koopa0/system-design/drawing-rooms/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config.yaml", "配置檔路徑（不存在時使用預設值）")
	flag.Parse()

	// 載入配置
	cfg, err := internal.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 設定日誌
	log, closer, err := logger.New(cfg.LoggerOptions())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("服務器異常結束", "error", err)
		os.Exit(1)
	}
}

func run(cfg *internal.Config, log *slog.Logger) error {
	ctx := context.Background()

	// 生命週期事件輸出（選用）
	backend, err := eventsink.Open(ctx, cfg.SinkOptions(), log)
	if err != nil {
		return fmt.Errorf("初始化事件輸出失敗: %w", err)
	}
	sink := eventsink.NewAsync(backend, cfg.Events.Buffer, cfg.Events.PublishTimeout, log)

	// 房間註冊表
	registry := internal.NewRegistry(log,
		internal.WithNameGenerator(internal.NewNameGenerator(cfg.Game.RoomNameLength)),
		internal.WithPassTurnOnLeave(cfg.Game.AdvanceOnDrawerLeave),
	)

	// 傳輸層、路由器、分派器
	hub := internal.NewWebSocketHub(cfg.HubConfig(), log)
	router := internal.NewRouter(registry, hub, log,
		internal.WithEventSink(sink),
		internal.WithStrictTurnAdvance(cfg.Game.StrictTurnAdvance),
	)
	dispatcher := internal.NewDispatcher(router, cfg.Game.DispatchBuffer, log)
	hub.SetDispatcher(dispatcher)

	handler := internal.NewHandler(registry, hub, dispatcher, log)

	// 設置路由
	mux := http.NewServeMux()
	mux.Handle("/", handler.Routes())
	mux.HandleFunc("/ws", hub.ServeWS)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("繪圖房間服務器啟動",
			"port", cfg.Server.Port,
			"events_backend", cfg.Events.Backend,
			"strict_turn_advance", cfg.Game.StrictTurnAdvance)
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case sig := <-shutdown:
		log.Info("收到關閉信號，開始優雅關閉...", "signal", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// 停止接受新連接（已升級的 WebSocket 不受 Shutdown 管理）
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("服務器關閉失敗", "error", err)
		if closeErr := server.Close(); closeErr != nil {
			log.Error("強制關閉服務器失敗", "error", closeErr)
		}
	}

	// 順序：關閉連接 → 等斷線事件處理完 → 關閉事件輸出
	hub.Stop()
	waitForConnections(shutdownCtx, hub)
	dispatcher.Stop()

	if err := sink.Close(); err != nil {
		log.Warn("關閉事件輸出失敗", "error", err)
	}
	published, failed, dropped := sink.Stats()
	log.Info("服務器已關閉",
		"events_published", published,
		"events_failed", failed,
		"events_dropped", dropped)

	return nil
}

// waitForConnections 等待所有 readPump 退出
func waitForConnections(ctx context.Context, hub *internal.WebSocketHub) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for hub.ConnectionCount() > 0 {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
