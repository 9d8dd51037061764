package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/park285/tessu-bridge/internal/app"
	appcfg "github.com/park285/tessu-bridge/internal/config"
	"github.com/park285/tessu-bridge/internal/obslog"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.Init(obslog.OptionsFromEnv()); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	a, err := app.Build(cfg, logger)
	if err != nil {
		logger.Fatal("app_build_failed", zap.Error(err))
	}
	logger.Info("tessu_bridge_starting",
		zap.String("version", cfg.ModVersion),
		zap.String("voice", cfg.VoiceBaseURL),
		zap.String("host", cfg.GameHostURL))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := a.Run(ctx); err != nil {
		logger.Error("app_run_failed", zap.Error(err))
	}

	cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Close(cctx); err != nil {
		logger.Warn("app_close_failed", zap.Error(err))
	}
}
