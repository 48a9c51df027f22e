package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"vivopulse-ptt/internal/config"
	"vivopulse-ptt/internal/dsp"
	"vivopulse-ptt/internal/models"
	"vivopulse-ptt/internal/quality"
	"vivopulse-ptt/internal/timeline"
	"vivopulse-ptt/internal/timing"

	"go.uber.org/zap"
)

// KVStore 抽象的 KV 存储（用于在单元测试中替换 Redis）
type KVStore interface {
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}

// 单通道快速评估的最小样本数（约 1 秒）
const minChannelSamples = 30

const (
	tipFaceLighting  = "adjust face lighting or camera position"
	tipFingerContact = "press finger more firmly on the sensor"
	tipHoldStill     = "hold both sensors still"
)

// Monitor 近实时状态监视器
// 按配置的刷新频率对每个活跃设备的环形缓冲做快速质量评估，
// 把状态写入 Redis 供展示端读取
type Monitor struct {
	config *config.Config
	hub    *Hub
	kv     KVStore
	logger *zap.Logger
}

// NewMonitor 创建监视器
func NewMonitor(cfg *config.Config, hub *Hub, kv KVStore, logger *zap.Logger) *Monitor {
	return &Monitor{
		config: cfg,
		hub:    hub,
		kv:     kv,
		logger: logger,
	}
}

// Start 启动刷新循环，阻塞直到 ctx 取消
func (m *Monitor) Start(ctx context.Context) error {
	interval := time.Duration(float64(time.Second) / m.config.Realtime.RefreshHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.logger.Info("Starting realtime monitor",
		zap.Duration("interval", interval),
		zap.Float64("refresh_hz", m.config.Realtime.RefreshHz),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.refreshAll(ctx)
		}
	}
}

func (m *Monitor) refreshAll(ctx context.Context) {
	for _, deviceID := range m.hub.DeviceIDs() {
		status := m.Evaluate(deviceID)
		if err := m.publish(ctx, status); err != nil {
			m.logger.Warn("Failed to publish realtime status",
				zap.String("device_id", deviceID),
				zap.Error(err),
			)
		}
	}
}

// Evaluate 对单个设备做一次快速评估
func (m *Monitor) Evaluate(deviceID string) *models.RealtimeStatus {
	face, finger, aux := m.hub.Snapshot(deviceID)

	faceStatus, faceSQI := m.channelMetrics(face, quality.ChannelFace, aux)
	fingerStatus, fingerSQI := m.channelMetrics(finger, quality.ChannelFinger, aux)

	status := &models.RealtimeStatus{
		DeviceID:     deviceID,
		Timestamp:    time.Now().Unix(),
		FaceStatus:   faceStatus,
		FingerStatus: fingerStatus,
		FaceSQI:      faceSQI,
		FingerSQI:    fingerSQI,
	}

	if faceStatus != models.ChannelStatusNoSignal && fingerStatus != models.ChannelStatusNoSignal {
		status.Correlation = m.quickCorrelation(face, finger)
	}

	status.Tip = m.pickTip(status)
	return status
}

// channelMetrics 单通道的快速 SQI 与状态
func (m *Monitor) channelMetrics(stream models.SampleStream, ch quality.Channel, aux models.AuxMetrics) (models.ChannelStatus, float64) {
	if len(stream) < minChannelSamples {
		return models.ChannelStatusNoSignal, 0
	}

	rate := estimateRateHz(stream)
	if rate <= 0 {
		return models.ChannelStatusNoSignal, 0
	}

	dspCfg := dsp.Config{
		RateHz:          rate,
		DetrendCutoffHz: m.config.Pipeline.DetrendCutoffHz,
		BandLowHz:       m.config.Pipeline.BandLowHz,
		BandHighHz:      m.config.Pipeline.BandHighHz,
	}
	sig := dsp.Condition(stream.Values(), dspCfg)

	qualityCfg := quality.DefaultConfig(rate)
	qualityCfg.BandLowHz = m.config.Pipeline.BandLowHz
	qualityCfg.BandHighHz = m.config.Pipeline.BandHighHz
	q := quality.Evaluate(sig, ch, aux, qualityCfg)

	switch {
	case q.CompositeSQI >= 70:
		return models.ChannelStatusGood, q.CompositeSQI
	case q.CompositeSQI >= 40:
		return models.ChannelStatusMarginal, q.CompositeSQI
	default:
		return models.ChannelStatusPoor, q.CompositeSQI
	}
}

// quickCorrelation 双通道对齐后的零滞后附近互相关峰值
func (m *Monitor) quickCorrelation(face, finger models.SampleStream) float64 {
	tl, err := timeline.Synchronize(face, finger, timeline.Config{
		TargetRateHz:   m.config.Pipeline.TargetRateHz,
		DriftWindowSec: m.config.Pipeline.DriftWindowSec,
	})
	if err != nil {
		return 0
	}

	dspCfg := dsp.DefaultConfig(tl.RateHz)
	dspCfg.DetrendCutoffHz = m.config.Pipeline.DetrendCutoffHz
	dspCfg.BandLowHz = m.config.Pipeline.BandLowHz
	dspCfg.BandHighHz = m.config.Pipeline.BandHighHz

	faceSig := dsp.Condition(tl.Face, dspCfg)
	fingerSig := dsp.Condition(tl.Finger, dspCfg)

	est, err := timing.CrossCorrelate(faceSig, fingerSig, timing.Config{
		RateHz:   tl.RateHz,
		MaxLagMs: m.config.Pipeline.MaxLagMs,
	})
	if err != nil {
		return 0
	}
	return est.CorrelationScore
}

// pickTip 至多给出一条改进提示，优先最薄弱的环节
func (m *Monitor) pickTip(s *models.RealtimeStatus) string {
	switch {
	case s.FaceStatus == models.ChannelStatusNoSignal || s.FaceSQI < 40:
		return tipFaceLighting
	case s.FingerStatus == models.ChannelStatusNoSignal || s.FingerSQI < 40:
		return tipFingerContact
	case s.Correlation > 0 && s.Correlation < 0.5:
		return tipHoldStill
	default:
		return ""
	}
}

func (m *Monitor) publish(ctx context.Context, status *models.RealtimeStatus) error {
	jsonData, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal realtime status: %w", err)
	}

	key := fmt.Sprintf("%s%s:realtime", m.config.Cache.RealtimeKeyPrefix, status.DeviceID)
	ttl := time.Duration(m.config.Realtime.StatusTTLSec) * time.Second
	if err := m.kv.Set(ctx, key, string(jsonData), ttl); err != nil {
		return fmt.Errorf("failed to set realtime status: %w", err)
	}

	m.logger.Debug("Published realtime status",
		zap.String("device_id", status.DeviceID),
		zap.String("face_status", string(status.FaceStatus)),
		zap.String("finger_status", string(status.FingerStatus)),
	)
	return nil
}

// estimateRateHz 从时间戳中位间隔估计采样率
func estimateRateHz(stream models.SampleStream) float64 {
	if len(stream) < 2 {
		return 0
	}
	deltas := make([]float64, 0, len(stream)-1)
	for i := 1; i < len(stream); i++ {
		d := float64(stream[i].TimestampNs - stream[i-1].TimestampNs)
		if d > 0 {
			deltas = append(deltas, d)
		}
	}
	if len(deltas) == 0 {
		return 0
	}
	medianNs := dsp.Median(deltas)
	if medianNs <= 0 {
		return 0
	}
	return 1e9 / medianNs
}
