package consumer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"vivopulse-ptt/internal/config"
	"vivopulse-ptt/internal/models"
	"vivopulse-ptt/internal/repository"
	"vivopulse-ptt/internal/session"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	rediscommon "vivopulse-ptt/internal/common/redis"
)

type consumerFixture struct {
	consumer *StreamConsumer
	client   *redis.Client
	mock     sqlmock.Sqlmock
	cfg      *config.Config
}

func setupConsumer(t *testing.T) *consumerFixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg, err := config.Load()
	require.NoError(t, err)

	logger := zap.NewNop()
	processor := session.NewProcessor(cfg, logger)
	repo := repository.NewSessionRepository(db, logger)
	cache := NewCacheManager(cfg, NewRedisKVStore(client), logger)

	return &consumerFixture{
		consumer: NewStreamConsumer(cfg, client, processor, repo, cache, nil, logger),
		client:   client,
		mock:     mock,
		cfg:      cfg,
	}
}

// flatCapture 无脉搏的平坦采集：走完整管线但产生可预测的结果
// （零 GoodSync 段、withheld 报告）
func flatCapture(deviceID string) *models.CaptureMessage {
	flat := func(fps float64, n int) []models.Sample {
		s := make([]models.Sample, n)
		for i := range s {
			s[i] = models.Sample{TimestampNs: int64(float64(i) / fps * 1e9), Value: 1.0}
		}
		return s
	}
	return &models.CaptureMessage{
		DeviceID:   deviceID,
		TenantID:   "tenant-1",
		CapturedAt: time.Now().Unix(),
		Face:       flat(30, 600),
		Finger:     flat(60, 1200),
	}
}

func TestConsumeStream_RoundTrip(t *testing.T) {
	f := setupConsumer(t)
	ctx := context.Background()

	// 发布采集消息并建组
	_, err := rediscommon.PublishJSONToStream(ctx, f.client, f.cfg.Intake.Stream, flatCapture("dev-1"))
	require.NoError(t, err)
	require.NoError(t, rediscommon.CreateConsumerGroup(ctx, f.client, f.cfg.Intake.Stream, f.cfg.Intake.ConsumerGroup))

	// 平坦信号不产生 GoodSync 段，只有一次会话插入
	f.mock.ExpectBegin()
	f.mock.ExpectExec(`INSERT INTO ptt_sessions`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectCommit()

	require.NoError(t, f.consumer.consumeStream(ctx, f.cfg.Intake.Stream))

	// 持久化
	assert.NoError(t, f.mock.ExpectationsWereMet())

	// 缓存
	raw, err := f.client.Get(ctx, "vivopulse:device:dev-1:latest").Result()
	require.NoError(t, err)
	var cached models.SessionResult
	require.NoError(t, json.Unmarshal([]byte(raw), &cached))
	assert.Equal(t, "dev-1", cached.DeviceID)
	assert.Equal(t, models.ReportWithheld, cached.Report.Status)
	assert.NotEmpty(t, cached.SessionID)

	// 指标与 Ack
	snapshot := f.consumer.metrics.GetSnapshot()
	assert.Equal(t, int64(1), snapshot.MessagesProcessed)
	assert.Equal(t, int64(1), snapshot.MessagesSucceeded)
	assert.Equal(t, int64(1), snapshot.SessionsWithheld)

	pending, err := f.client.XPending(ctx, f.cfg.Intake.Stream, f.cfg.Intake.ConsumerGroup).Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count)
}

func TestProcessMessage_ParseError(t *testing.T) {
	f := setupConsumer(t)

	err := f.consumer.processMessage(context.Background(), rediscommon.StreamMessage{
		ID:     "1-0",
		Values: map[string]interface{}{"data": "{not json"},
	})
	assert.Error(t, err)

	snapshot := f.consumer.metrics.GetSnapshot()
	assert.Equal(t, int64(1), snapshot.MessagesFailed)
	assert.Equal(t, int64(1), snapshot.ErrorsParse)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestProcessMessage_MissingDataField(t *testing.T) {
	f := setupConsumer(t)

	err := f.consumer.processMessage(context.Background(), rediscommon.StreamMessage{
		ID:     "1-0",
		Values: map[string]interface{}{"other": "x"},
	})
	assert.Error(t, err)
	assert.Equal(t, int64(1), f.consumer.metrics.GetSnapshot().ErrorsParse)
}

func TestProcessMessage_SkipWithoutDeviceID(t *testing.T) {
	f := setupConsumer(t)

	capture := flatCapture("")
	data, err := json.Marshal(capture)
	require.NoError(t, err)

	err = f.consumer.processMessage(context.Background(), rediscommon.StreamMessage{
		ID:     "1-0",
		Values: map[string]interface{}{"data": string(data)},
	})
	require.NoError(t, err)

	snapshot := f.consumer.metrics.GetSnapshot()
	assert.Equal(t, int64(1), snapshot.MessagesSkipped)
	assert.Zero(t, snapshot.MessagesFailed)
}

func TestProcessMessage_ProcessErrorOnEmptyStreams(t *testing.T) {
	f := setupConsumer(t)

	capture := &models.CaptureMessage{DeviceID: "dev-1", TenantID: "tenant-1"}
	data, err := json.Marshal(capture)
	require.NoError(t, err)

	err = f.consumer.processMessage(context.Background(), rediscommon.StreamMessage{
		ID:     "1-0",
		Values: map[string]interface{}{"data": string(data)},
	})
	assert.Error(t, err)
	assert.Equal(t, int64(1), f.consumer.metrics.GetSnapshot().ErrorsProcess)
}

func TestCacheManager_RoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	cfg, err := config.Load()
	require.NoError(t, err)
	cache := NewCacheManager(cfg, NewRedisKVStore(client), zap.NewNop())

	ctx := context.Background()
	result := &models.SessionResult{
		SessionID: "session-1",
		DeviceID:  "dev-9",
		PTTMs:     98.4,
		Report:    models.PTTReport{Status: models.ReportReported, PTTMs: 98.4},
	}
	require.NoError(t, cache.UpdateLatestResult(ctx, result))

	got, err := cache.GetLatestResult(ctx, "dev-9")
	require.NoError(t, err)
	assert.Equal(t, "session-1", got.SessionID)
	assert.Equal(t, 98.4, got.PTTMs)

	// TTL 生效
	ttl := mr.TTL("vivopulse:device:dev-9:latest")
	assert.Equal(t, time.Duration(cfg.Cache.ResultTTLSec)*time.Second, ttl)

	_, err = cache.GetLatestResult(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)
}
