// cmd/voice-gateway/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"permit-intake/internal/common/config"
	"permit-intake/internal/common/database"
	"permit-intake/internal/common/logger"
	"permit-intake/internal/common/observability"
	"permit-intake/internal/gateway"
	"permit-intake/internal/relay"
	"permit-intake/internal/store"
	"permit-intake/internal/voice"
	"permit-intake/internal/voice/realtime"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("config load failed: %v", err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting voice gateway...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	obs := observability.New("voice-gateway")
	defer obs.Shutdown()

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		zapLog.Fatal("postgres init failed", zap.Error(err))
	}
	defer pg.Close()
	if err := pg.Ping(ctx); err != nil {
		zapLog.Fatal("postgres unreachable", zap.Error(err))
	}

	rdb, err := database.NewRedis(cfg.Database.Redis)
	if err != nil {
		zapLog.Fatal("redis init failed", zap.Error(err))
	}
	defer rdb.Close()
	if err := rdb.Ping(ctx); err != nil {
		zapLog.Fatal("redis unreachable", zap.Error(err))
	}

	registry := voice.NewRegistry(30 * time.Minute)
	go registry.StartSweeper(ctx, time.Minute)

	orchestrator := voice.NewOrchestrator(voice.Dependencies{
		Sessions:     store.NewSessionStore(pg.GetDB()),
		Applications: store.NewApplicationStore(pg.GetDB()),
		Publisher:    relay.NewPublisher(rdb.GetClient(), log),
		Registry:     registry,
		AgentConfig: realtime.Config{
			APIKey:       cfg.Realtime.APIKey,
			Model:        cfg.Realtime.Model,
			Voice:        cfg.Realtime.Voice,
			Instructions: cfg.Realtime.Instructions,
		},
		Logger:        log,
		Observability: obs,
	})

	gw, err := gateway.New(orchestrator, cfg.VoiceGateway.UpstreamURL, log)
	if err != nil {
		zapLog.Fatal("gateway init failed", zap.Error(err))
	}

	httpServer := &http.Server{
		Addr:    cfg.VoiceGateway.Address,
		Handler: gw.Handler(),
	}

	go func() {
		zapLog.Info("Voice gateway listening", zap.String("address", cfg.VoiceGateway.Address))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zapLog.Info("Shutdown signal received, draining...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("graceful shutdown failed", zap.Error(err))
	}
	zapLog.Info("Voice gateway stopped")
}
