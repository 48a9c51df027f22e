package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"vivopulse-ptt/internal/config"
	"vivopulse-ptt/internal/models"
	"vivopulse-ptt/internal/realtime"

	"go.uber.org/zap"

	mqttcommon "vivopulse-ptt/internal/common/mqtt"
)

// FrameConsumer 实时帧 MQTT 消费者
// 把采集端推送的小批量帧追加到对应设备的环形缓冲，供实时监视器读取
type FrameConsumer struct {
	config     *config.Config
	mqttClient *mqttcommon.Client
	hub        *realtime.Hub
	logger     *zap.Logger
}

// NewFrameConsumer 创建帧消费者
func NewFrameConsumer(
	cfg *config.Config,
	mqttClient *mqttcommon.Client,
	hub *realtime.Hub,
	logger *zap.Logger,
) *FrameConsumer {
	return &FrameConsumer{
		config:     cfg,
		mqttClient: mqttClient,
		hub:        hub,
		logger:     logger,
	}
}

// Start 启动消费者
func (c *FrameConsumer) Start(ctx context.Context) error {
	topic := c.config.Intake.FrameTopic
	if err := c.mqttClient.Subscribe(topic, c.config.MQTT.QoS, c.handleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to frame topic: %w", err)
	}

	c.logger.Info("Frame consumer started",
		zap.String("topic", topic),
	)

	<-ctx.Done()
	return nil
}

// Stop 停止消费者
func (c *FrameConsumer) Stop(ctx context.Context) error {
	if err := c.mqttClient.Unsubscribe(c.config.Intake.FrameTopic); err != nil {
		c.logger.Error("Failed to unsubscribe", zap.Error(err))
	}

	c.logger.Info("Frame consumer stopped")
	return nil
}

// handleMessage 处理单条帧消息
// 主题格式: vivopulse/{device_id}/frames
func (c *FrameConsumer) handleMessage(topic string, payload []byte) error {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 {
		return fmt.Errorf("invalid topic format: %s", topic)
	}
	topicDeviceID := parts[1]

	var batch models.FrameBatch
	if err := json.Unmarshal(payload, &batch); err != nil {
		c.logger.Error("Failed to unmarshal frame batch",
			zap.String("topic", topic),
			zap.Error(err),
		)
		return fmt.Errorf("failed to unmarshal frame batch: %w", err)
	}

	// 载荷缺设备 ID 时回退到主题中的设备 ID
	if batch.DeviceID == "" {
		batch.DeviceID = topicDeviceID
	}
	if batch.DeviceID == "" {
		return fmt.Errorf("frame batch without device_id: %s", topic)
	}
	if len(batch.Samples) == 0 {
		return nil
	}

	c.hub.Append(&batch)

	c.logger.Debug("Appended frame batch",
		zap.String("device_id", batch.DeviceID),
		zap.String("channel", batch.Channel),
		zap.Int("sample_count", len(batch.Samples)),
	)
	return nil
}
