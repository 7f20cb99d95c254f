package main

import (
	"context"
	"log"

	"github.com/supramm/canvas-connect/internal/config"
	"github.com/supramm/canvas-connect/internal/relay"
)

func main() {
	// 설정 로드
	cfg := config.Load()

	// Redis 브리지 (선택적, 멀티 인스턴스 배포용)
	var bridge *relay.Bridge
	if cfg.Redis.Enabled {
		var err error
		bridge, err = relay.NewBridge(context.Background(), cfg.Redis)
		if err != nil {
			log.Fatalf("❌ Redis connection failed: %v", err)
		}
		defer bridge.Close()
		log.Printf("✅ Redis bridge connected (%s)", cfg.Redis.Addr)
	} else {
		log.Println("ℹ️ Redis bridge disabled, running single-instance")
	}

	hub := relay.NewHub(bridge)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.RunBridge(ctx)

	// 서버 생성 및 설정
	srv := relay.New(cfg, hub)
	srv.SetupMiddleware()
	srv.SetupRoutes()

	// 서버 시작
	if err := srv.Start(); err != nil {
		log.Fatalf("Relay failed to start: %v", err)
	}
}
