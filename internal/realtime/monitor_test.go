package realtime

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"testing"
	"time"

	"vivopulse-ptt/internal/config"
	"vivopulse-ptt/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeKV 用于替换 Redis 的内存 KV
type fakeKV struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
}

func newFakeKV() *fakeKV {
	return &fakeKV{
		data: make(map[string]string),
		ttls: make(map[string]time.Duration),
	}
}

func (f *fakeKV) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	f.ttls[key] = ttl
	return nil
}

// fillPulse 向设备缓冲写入指定时长的合成脉搏帧
func fillPulse(h *Hub, deviceID, channel string, fps, durationSec, delayMs float64) {
	n := int(fps * durationSec)
	period := 60.0 / 72.0
	samples := make([]models.Sample, n)
	for i := 0; i < n; i++ {
		t := float64(i) / fps
		phase := math.Mod(t-delayMs/1000, period)
		if phase < 0 {
			phase += period
		}
		z := (phase - 0.35*period) / 0.08
		samples[i] = models.Sample{
			TimestampNs: int64(t * 1e9),
			Value:       math.Exp(-0.5 * z * z),
		}
	}
	h.Append(&models.FrameBatch{DeviceID: deviceID, Channel: channel, Samples: samples})
}

func newTestMonitor(t *testing.T) (*Monitor, *Hub, *fakeKV) {
	t.Helper()
	cfg, err := config.Load()
	require.NoError(t, err)
	hub := NewHub(int(cfg.Realtime.BufferSec * 100))
	kv := newFakeKV()
	return NewMonitor(cfg, hub, kv, zap.NewNop()), hub, kv
}

func TestMonitor_EvaluateGoodSignals(t *testing.T) {
	m, hub, _ := newTestMonitor(t)
	fillPulse(hub, "dev-1", "face", 30, 10, 0)
	fillPulse(hub, "dev-1", "finger", 60, 10, 100)

	status := m.Evaluate("dev-1")
	assert.Equal(t, models.ChannelStatusGood, status.FaceStatus)
	assert.Equal(t, models.ChannelStatusGood, status.FingerStatus)
	assert.Greater(t, status.Correlation, 0.9)
	assert.Empty(t, status.Tip)
}

func TestMonitor_EvaluateMissingChannel(t *testing.T) {
	m, hub, _ := newTestMonitor(t)
	fillPulse(hub, "dev-1", "face", 30, 10, 0)

	status := m.Evaluate("dev-1")
	assert.Equal(t, models.ChannelStatusNoSignal, status.FingerStatus)
	assert.Zero(t, status.Correlation)
	assert.NotEmpty(t, status.Tip)
}

func TestMonitor_EvaluateFlatChannelPoor(t *testing.T) {
	m, hub, _ := newTestMonitor(t)
	fillPulse(hub, "dev-1", "face", 30, 10, 0)

	flat := make([]models.Sample, 600)
	for i := range flat {
		flat[i] = models.Sample{TimestampNs: int64(i) * int64(time.Second) / 60, Value: 1}
	}
	hub.Append(&models.FrameBatch{DeviceID: "dev-1", Channel: "finger", Samples: flat})

	status := m.Evaluate("dev-1")
	assert.Equal(t, models.ChannelStatusPoor, status.FingerStatus)
	assert.Equal(t, tipFingerContact, status.Tip)
}

func TestMonitor_PublishWritesStatusKey(t *testing.T) {
	m, hub, kv := newTestMonitor(t)
	fillPulse(hub, "dev-1", "face", 30, 10, 0)
	fillPulse(hub, "dev-1", "finger", 60, 10, 100)

	m.refreshAll(context.Background())

	kv.mu.Lock()
	defer kv.mu.Unlock()
	raw, ok := kv.data["vivopulse:device:dev-1:realtime"]
	require.True(t, ok)

	var status models.RealtimeStatus
	require.NoError(t, json.Unmarshal([]byte(raw), &status))
	assert.Equal(t, "dev-1", status.DeviceID)
	assert.Equal(t, models.ChannelStatusGood, status.FaceStatus)
	assert.Equal(t, 10*time.Second, kv.ttls["vivopulse:device:dev-1:realtime"])
}

func TestMonitor_RefreshIntervalBound(t *testing.T) {
	// 刷新频率受策略上限约束，周期不短于 250ms
	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.Realtime.RefreshHz = 4
	interval := time.Duration(float64(time.Second) / cfg.Realtime.RefreshHz)
	assert.GreaterOrEqual(t, interval, 250*time.Millisecond)
}
