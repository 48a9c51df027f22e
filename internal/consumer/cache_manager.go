package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"vivopulse-ptt/internal/config"
	"vivopulse-ptt/internal/models"

	"go.uber.org/zap"
)

// CacheManager 会话结果 Redis 缓存管理器
// 展示端通过 vivopulse:device:<id>:latest 读取设备最近一次结果
type CacheManager struct {
	config *config.Config
	kv     KVStore
	logger *zap.Logger
}

// NewCacheManager 创建缓存管理器
func NewCacheManager(cfg *config.Config, kv KVStore, logger *zap.Logger) *CacheManager {
	return &CacheManager{
		config: cfg,
		kv:     kv,
		logger: logger,
	}
}

// UpdateLatestResult 更新设备最近一次会话结果缓存
func (c *CacheManager) UpdateLatestResult(ctx context.Context, result *models.SessionResult) error {
	key := c.latestKey(result.DeviceID)

	jsonData, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal session result: %w", err)
	}

	ttl := time.Duration(c.config.Cache.ResultTTLSec) * time.Second
	if err := c.kv.Set(ctx, key, string(jsonData), ttl); err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}

	c.logger.Debug("Updated latest result cache",
		zap.String("device_id", result.DeviceID),
		zap.String("key", key),
	)
	return nil
}

// GetLatestResult 读取设备最近一次会话结果缓存
func (c *CacheManager) GetLatestResult(ctx context.Context, deviceID string) (*models.SessionResult, error) {
	raw, err := c.kv.Get(ctx, c.latestKey(deviceID))
	if err != nil {
		return nil, err
	}

	var result models.SessionResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached result: %w", err)
	}
	return &result, nil
}

func (c *CacheManager) latestKey(deviceID string) string {
	return fmt.Sprintf("%s%s:latest", c.config.Cache.ResultKeyPrefix, deviceID)
}
