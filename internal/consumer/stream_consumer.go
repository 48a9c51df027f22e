package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"vivopulse-ptt/internal/config"
	"vivopulse-ptt/internal/models"
	"vivopulse-ptt/internal/notifier"
	"vivopulse-ptt/internal/repository"
	"vivopulse-ptt/internal/session"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	rediscommon "vivopulse-ptt/internal/common/redis"
)

// Metrics 监控指标
type Metrics struct {
	mu sync.RWMutex

	// 消息处理统计
	MessagesProcessed int64 // 处理的消息总数
	MessagesSucceeded int64 // 成功处理的消息数
	MessagesFailed    int64 // 处理失败的消息数
	MessagesSkipped   int64 // 跳过的消息数（缺少设备标识等）
	SessionsWithheld  int64 // 低置信度被抑制的会话数

	// 错误分类统计
	ErrorsParse   int64 // 解析错误
	ErrorsProcess int64 // 管线处理错误（输入畸形）
	ErrorsPersist int64 // 持久化错误
	ErrorsCache   int64 // 缓存更新错误

	// 性能指标
	TotalProcessingTime time.Duration
	LastProcessTime     time.Time

	StartTime time.Time
}

// GetSnapshot 获取指标快照（线程安全）
func (m *Metrics) GetSnapshot() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Metrics{
		MessagesProcessed:   m.MessagesProcessed,
		MessagesSucceeded:   m.MessagesSucceeded,
		MessagesFailed:      m.MessagesFailed,
		MessagesSkipped:     m.MessagesSkipped,
		SessionsWithheld:    m.SessionsWithheld,
		ErrorsParse:         m.ErrorsParse,
		ErrorsProcess:       m.ErrorsProcess,
		ErrorsPersist:       m.ErrorsPersist,
		ErrorsCache:         m.ErrorsCache,
		TotalProcessingTime: m.TotalProcessingTime,
		LastProcessTime:     m.LastProcessTime,
		StartTime:           m.StartTime,
	}
}

// IncrementProcessed 增加处理计数
func (m *Metrics) IncrementProcessed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MessagesProcessed++
}

// IncrementSucceeded 增加成功计数
func (m *Metrics) IncrementSucceeded(duration time.Duration, withheld bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MessagesSucceeded++
	if withheld {
		m.SessionsWithheld++
	}
	m.TotalProcessingTime += duration
	m.LastProcessTime = time.Now()
}

// IncrementFailed 增加失败计数
func (m *Metrics) IncrementFailed(errorType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MessagesFailed++
	switch errorType {
	case "parse":
		m.ErrorsParse++
	case "process":
		m.ErrorsProcess++
	case "persist":
		m.ErrorsPersist++
	case "cache":
		m.ErrorsCache++
	}
}

// IncrementSkipped 增加跳过计数
func (m *Metrics) IncrementSkipped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MessagesSkipped++
}

// StreamConsumer ptt:capture:stream 的 Redis Streams 消费者
//
// 处理流程：
// 1. 解析采集消息（双通道样本 + 辅助指标）
// 2. 分配会话 ID，运行完整估计管线
// 3. 持久化会话结果与 GoodSync 段
// 4. 更新设备最近结果缓存
// 5. 推送 Webhook（尽力而为，失败不影响消息确认）
type StreamConsumer struct {
	config      *config.Config
	redisClient *redis.Client
	processor   *session.Processor
	sessionRepo *repository.SessionRepository
	cache       *CacheManager
	notifier    *notifier.Client
	logger      *zap.Logger
	metrics     *Metrics
}

// NewStreamConsumer 创建 Streams 消费者
func NewStreamConsumer(
	cfg *config.Config,
	redisClient *redis.Client,
	processor *session.Processor,
	sessionRepo *repository.SessionRepository,
	cache *CacheManager,
	notifierClient *notifier.Client,
	logger *zap.Logger,
) *StreamConsumer {
	return &StreamConsumer{
		config:      cfg,
		redisClient: redisClient,
		processor:   processor,
		sessionRepo: sessionRepo,
		cache:       cache,
		notifier:    notifierClient,
		logger:      logger,
		metrics: &Metrics{
			StartTime: time.Now(),
		},
	}
}

// Start 启动消费者
func (c *StreamConsumer) Start(ctx context.Context) error {
	stream := c.config.Intake.Stream
	if err := rediscommon.CreateConsumerGroup(ctx, c.redisClient, stream, c.config.Intake.ConsumerGroup); err != nil {
		return fmt.Errorf("failed to create consumer group for %s: %w", stream, err)
	}

	c.logger.Info("Stream consumer started",
		zap.String("consumer_group", c.config.Intake.ConsumerGroup),
		zap.String("consumer_name", c.config.Intake.ConsumerName),
		zap.String("stream", stream),
	)

	// 启动指标报告协程
	metricsCtx, metricsCancel := context.WithCancel(ctx)
	defer metricsCancel()
	go c.reportMetrics(metricsCtx)

	// 消费循环，失败时指数退避
	backoffDuration := time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			if err := c.consumeStream(ctx, stream); err != nil {
				c.logger.Error("Failed to consume stream",
					zap.Error(err),
					zap.Duration("backoff", backoffDuration),
				)

				select {
				case <-ctx.Done():
					return nil
				case <-time.After(backoffDuration):
					backoffDuration *= 2
					if backoffDuration > maxBackoff {
						backoffDuration = maxBackoff
					}
				}
			} else {
				backoffDuration = time.Second
			}
		}
	}
}

// consumeStream 消费单个 Stream
func (c *StreamConsumer) consumeStream(ctx context.Context, stream string) error {
	messages, err := rediscommon.ReadFromStream(
		ctx,
		c.redisClient,
		stream,
		c.config.Intake.ConsumerGroup,
		c.config.Intake.ConsumerName,
		c.config.Intake.BatchSize,
	)
	if err != nil {
		return fmt.Errorf("failed to read from stream: %w", err)
	}

	for _, msg := range messages {
		c.metrics.IncrementProcessed()
		if err := c.processMessage(ctx, msg); err != nil {
			c.logger.Error("Failed to process message",
				zap.String("stream_id", msg.ID),
				zap.Error(err),
			)
			// 继续处理下一条消息，不中断
		}
		// 畸形输入重试也不会成功，统一确认避免堆积
		if err := rediscommon.AckMessage(ctx, c.redisClient, stream, c.config.Intake.ConsumerGroup, msg.ID); err != nil {
			c.logger.Warn("Failed to ack message",
				zap.String("stream_id", msg.ID),
				zap.Error(err),
			)
		}
	}

	return nil
}

// processMessage 处理单条采集消息
func (c *StreamConsumer) processMessage(ctx context.Context, msg rediscommon.StreamMessage) error {
	startTime := time.Now()

	capture, err := parseCaptureMessage(msg)
	if err != nil {
		c.metrics.IncrementFailed("parse")
		return err
	}

	if capture.DeviceID == "" {
		c.metrics.IncrementSkipped()
		c.logger.Warn("Capture message without device_id, skipping",
			zap.String("stream_id", msg.ID),
		)
		return nil
	}

	sessionID := uuid.New().String()

	result, err := c.processor.Process(sessionID, capture.DeviceID,
		capture.Face, capture.Finger, capture.Aux)
	if err != nil {
		c.metrics.IncrementFailed("process")
		return fmt.Errorf("failed to process capture: %w", err)
	}

	if err := c.sessionRepo.InsertSession(capture.TenantID, result); err != nil {
		c.metrics.IncrementFailed("persist")
		return fmt.Errorf("failed to persist session: %w", err)
	}

	if err := c.cache.UpdateLatestResult(ctx, result); err != nil {
		c.metrics.IncrementFailed("cache")
		return fmt.Errorf("failed to update cache: %w", err)
	}

	// Webhook 推送失败只告警，消息仍视为处理成功
	if c.notifier != nil && c.notifier.Enabled() {
		if err := c.notifier.NotifySessionResult(ctx, result); err != nil {
			c.logger.Warn("Failed to notify session result",
				zap.String("session_id", sessionID),
				zap.Error(err),
			)
		}
	}

	processingDuration := time.Since(startTime)
	withheld := result.Report.Status == models.ReportWithheld
	c.metrics.IncrementSucceeded(processingDuration, withheld)

	c.logger.Info("Processed capture session",
		zap.String("session_id", sessionID),
		zap.String("device_id", capture.DeviceID),
		zap.String("report_status", string(result.Report.Status)),
		zap.Float64("ptt_ms", result.PTTMs),
		zap.Float64("confidence", result.Confidence),
		zap.Duration("processing_time", processingDuration),
	)

	return nil
}

// parseCaptureMessage 从 Stream 消息中解析采集数据
func parseCaptureMessage(msg rediscommon.StreamMessage) (*models.CaptureMessage, error) {
	val, ok := msg.Values["data"]
	if !ok {
		return nil, fmt.Errorf("missing data field in message")
	}
	dataStr, ok := val.(string)
	if !ok {
		return nil, fmt.Errorf("invalid data format in message")
	}

	var capture models.CaptureMessage
	if err := json.Unmarshal([]byte(dataStr), &capture); err != nil {
		return nil, fmt.Errorf("failed to unmarshal capture message: %w", err)
	}
	return &capture, nil
}

// reportMetrics 定期报告指标（每60秒）
func (c *StreamConsumer) reportMetrics(ctx context.Context) {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snapshot := c.metrics.GetSnapshot()
			uptime := time.Since(snapshot.StartTime)

			var avgProcessingTime time.Duration
			if snapshot.MessagesSucceeded > 0 {
				avgProcessingTime = snapshot.TotalProcessingTime / time.Duration(snapshot.MessagesSucceeded)
			}

			successRate := float64(0)
			if snapshot.MessagesProcessed > 0 {
				successRate = float64(snapshot.MessagesSucceeded) / float64(snapshot.MessagesProcessed) * 100
			}

			c.logger.Info("Metrics report",
				zap.Int64("messages_processed", snapshot.MessagesProcessed),
				zap.Int64("messages_succeeded", snapshot.MessagesSucceeded),
				zap.Int64("messages_failed", snapshot.MessagesFailed),
				zap.Int64("messages_skipped", snapshot.MessagesSkipped),
				zap.Int64("sessions_withheld", snapshot.SessionsWithheld),
				zap.Float64("success_rate", successRate),
				zap.Int64("errors_parse", snapshot.ErrorsParse),
				zap.Int64("errors_process", snapshot.ErrorsProcess),
				zap.Int64("errors_persist", snapshot.ErrorsPersist),
				zap.Int64("errors_cache", snapshot.ErrorsCache),
				zap.Duration("avg_processing_time", avgProcessingTime),
				zap.Duration("uptime", uptime),
			)
		}
	}
}
