// Package service 组装并管理 PTT 估计服务的生命周期
package service

import (
	"context"
	"database/sql"
	"fmt"

	"vivopulse-ptt/internal/config"
	"vivopulse-ptt/internal/consumer"
	"vivopulse-ptt/internal/notifier"
	"vivopulse-ptt/internal/realtime"
	"vivopulse-ptt/internal/repository"
	"vivopulse-ptt/internal/session"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"vivopulse-ptt/internal/common/database"
	mqttcommon "vivopulse-ptt/internal/common/mqtt"
	rediscommon "vivopulse-ptt/internal/common/redis"
)

// EngineService PTT 估计服务
// 批路径：Redis Stream 采集消息 → 估计管线 → Postgres + 缓存 + Webhook
// 实时路径：MQTT 帧 → 环形缓冲 → 周期性状态刷新
type EngineService struct {
	config      *config.Config
	logger      *zap.Logger
	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *mqttcommon.Client

	streamConsumer *consumer.StreamConsumer
	frameConsumer  *consumer.FrameConsumer
	monitor        *realtime.Monitor
}

// NewEngineService 创建服务并初始化全部依赖
func NewEngineService(cfg *config.Config, logger *zap.Logger) (*EngineService, error) {
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	redisClient := rediscommon.NewRedisClient(&cfg.Redis)
	if err := rediscommon.Ping(context.Background(), redisClient); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	mqttClient, err := mqttcommon.NewClient(&cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	sessionRepo := repository.NewSessionRepository(db, logger)
	processor := session.NewProcessor(cfg, logger)
	kv := consumer.NewRedisKVStore(redisClient)
	cache := consumer.NewCacheManager(cfg, kv, logger)
	notifierClient := notifier.NewClient(cfg.Notifier.URL, cfg.Notifier.TimeoutSec, logger)

	streamConsumer := consumer.NewStreamConsumer(
		cfg,
		redisClient,
		processor,
		sessionRepo,
		cache,
		notifierClient,
		logger,
	)

	// 环形缓冲按统一时间轴频率预留容量
	hub := realtime.NewHub(int(cfg.Realtime.BufferSec * cfg.Pipeline.TargetRateHz))
	frameConsumer := consumer.NewFrameConsumer(cfg, mqttClient, hub, logger)
	monitor := realtime.NewMonitor(cfg, hub, kv, logger)

	return &EngineService{
		config:         cfg,
		logger:         logger,
		db:             db,
		redisClient:    redisClient,
		mqttClient:     mqttClient,
		streamConsumer: streamConsumer,
		frameConsumer:  frameConsumer,
		monitor:        monitor,
	}, nil
}

// Start 启动服务，阻塞在批路径消费循环上
func (s *EngineService) Start(ctx context.Context) error {
	s.logger.Info("Starting PTT engine service components")

	go func() {
		if err := s.frameConsumer.Start(ctx); err != nil {
			s.logger.Error("Frame consumer stopped with error", zap.Error(err))
		}
	}()

	go func() {
		if err := s.monitor.Start(ctx); err != nil {
			s.logger.Error("Realtime monitor stopped with error", zap.Error(err))
		}
	}()

	if err := s.streamConsumer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start stream consumer: %w", err)
	}

	s.logger.Info("PTT engine service started successfully")
	return nil
}

// Stop 停止服务并释放连接
func (s *EngineService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping PTT engine service")

	if s.frameConsumer != nil {
		if err := s.frameConsumer.Stop(ctx); err != nil {
			s.logger.Error("Error stopping frame consumer", zap.Error(err))
		}
	}

	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.logger.Error("Error closing Redis client", zap.Error(err))
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Error closing database connection", zap.Error(err))
		}
	}

	s.logger.Info("PTT engine service stopped")
	return nil
}
