package main

import (
	"context"
	"log"

	"go.uber.org/zap"

	"personal-assistant/internal/app"
	"personal-assistant/internal/config"
	"personal-assistant/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:    cfg.Logger.Level,
		Encoding: cfg.Logger.Encoding,
		Service:  "personal-assistant",
	})
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer zapLogger.Sync()

	assistant, err := app.New(cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("startup failed", zap.Error(err))
	}

	appCtx, cancel := assistant.WithSignals(context.Background())
	defer cancel()

	if err := assistant.Start(appCtx, cancel); err != nil {
		zapLogger.Error("start failed", zap.Error(err))
		cancel()
	}

	<-appCtx.Done()

	if err := assistant.Shutdown(context.Background()); err != nil {
		zapLogger.Error("graceful shutdown error", zap.Error(err))
	}
}
