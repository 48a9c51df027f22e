package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"vivopulse-ptt/internal/config"
	"vivopulse-ptt/internal/service"

	"go.uber.org/zap"

	logpkg "vivopulse-ptt/internal/common/logger"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化Logger
	logger, err := logpkg.NewLogger(cfg.Log.Level, cfg.Log.Format, "vivopulse-ptt")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting vivopulse-ptt service",
		zap.String("version", "1.0.0"),
		zap.String("input_stream", cfg.Intake.Stream),
		zap.String("frame_topic", cfg.Intake.FrameTopic),
		zap.Float64("target_rate_hz", cfg.Pipeline.TargetRateHz),
	)

	// 创建服务
	engine, err := service.NewEngineService(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create engine service", zap.Error(err))
	}

	// 启动服务
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := engine.Start(ctx); err != nil {
			logger.Fatal("Failed to start engine service", zap.Error(err))
		}
	}()

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("Received signal, shutting down", zap.String("signal", sig.String()))

	// 优雅关闭
	cancel()
	if err := engine.Stop(ctx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Service stopped")
}
