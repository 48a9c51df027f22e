package timeline

import (
	"math"
	"testing"

	"vivopulse-ptt/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeStream 以固定间隔生成采样流
func makeStream(startNs int64, intervalNs int64, n int, value func(i int) float64) models.SampleStream {
	s := make(models.SampleStream, n)
	for i := 0; i < n; i++ {
		s[i] = models.Sample{
			TimestampNs: startNs + int64(i)*intervalNs,
			Value:       value(i),
		}
	}
	return s
}

func TestSynchronize_Basic(t *testing.T) {
	// 30fps 近端 + 60fps 远端，10 秒重叠
	face := makeStream(0, 33_333_333, 300, func(i int) float64 { return float64(i) })
	finger := makeStream(0, 16_666_666, 600, func(i int) float64 { return float64(i) * 2 })

	ut, err := Synchronize(face, finger, DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, 100.0, ut.RateHz)
	assert.Equal(t, 0, ut.FaceViolations)
	assert.Equal(t, 0, ut.FingerViolations)
	assert.InDelta(t, 33.33, ut.FaceIntervalMs, 0.1)
	assert.InDelta(t, 16.67, ut.FingerIntervalMs, 0.1)
	assert.Equal(t, len(ut.TimestampMs), len(ut.Face))
	assert.Equal(t, len(ut.TimestampMs), len(ut.Finger))

	// 统一时间戳为固定步长 10ms
	assert.Equal(t, 0.0, ut.TimestampMs[0])
	assert.InDelta(t, 10.0, ut.TimestampMs[1]-ut.TimestampMs[0], 1e-12)
}

func TestSynchronize_Idempotent(t *testing.T) {
	// 相同输入两次重采样必须逐位一致
	face := makeStream(1_000_000, 33_333_333, 240, func(i int) float64 { return math.Sin(float64(i) * 0.1) })
	finger := makeStream(2_000_000, 16_666_666, 480, func(i int) float64 { return math.Cos(float64(i) * 0.05) })

	cfg := DefaultConfig()
	a, err := Synchronize(face, finger, cfg)
	require.NoError(t, err)
	b, err := Synchronize(face, finger, cfg)
	require.NoError(t, err)

	require.Equal(t, len(a.TimestampMs), len(b.TimestampMs))
	for i := range a.TimestampMs {
		assert.Equal(t, a.TimestampMs[i], b.TimestampMs[i])
		assert.Equal(t, a.Face[i], b.Face[i])
		assert.Equal(t, a.Finger[i], b.Finger[i])
	}
}

func TestSynchronize_NoOverlap(t *testing.T) {
	face := makeStream(0, 33_333_333, 100, func(i int) float64 { return 1 })
	// 远端流完全在近端流之后
	finger := makeStream(10_000_000_000, 16_666_666, 100, func(i int) float64 { return 1 })

	_, err := Synchronize(face, finger, DefaultConfig())
	assert.ErrorIs(t, err, ErrNoOverlap)
}

func TestSynchronize_InsufficientOverlap(t *testing.T) {
	// 重叠区间只有约 2 秒，短于默认 5 秒漂移窗口
	face := makeStream(0, 33_333_333, 300, func(i int) float64 { return 1 })
	finger := makeStream(8_000_000_000, 16_666_666, 600, func(i int) float64 { return 1 })

	_, err := Synchronize(face, finger, DefaultConfig())
	assert.ErrorIs(t, err, ErrInsufficientOverlap)
}

func TestSynchronize_EmptyStream(t *testing.T) {
	finger := makeStream(0, 16_666_666, 600, func(i int) float64 { return 1 })

	_, err := Synchronize(nil, finger, DefaultConfig())
	assert.ErrorIs(t, err, ErrEmptyStream)

	_, err = Synchronize(models.SampleStream{{TimestampNs: 0, Value: 1}}, finger, DefaultConfig())
	assert.ErrorIs(t, err, ErrEmptyStream)
}

func TestSynchronize_CountsMonotonicityViolations(t *testing.T) {
	face := makeStream(0, 33_333_333, 300, func(i int) float64 { return 1 })
	// 注入两处时间戳回退（相机抖动），不应致命
	face[50].TimestampNs = face[49].TimestampNs
	face[120].TimestampNs = face[119].TimestampNs - 1000

	finger := makeStream(0, 16_666_666, 600, func(i int) float64 { return 1 })

	ut, err := Synchronize(face, finger, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, 2, ut.FaceViolations)
	assert.Equal(t, 0, ut.FingerViolations)
}

func TestSynchronize_LinearInterpolation(t *testing.T) {
	// 线性信号插值后仍为线性；边缘钳位不外推
	face := makeStream(0, 100_000_000, 100, func(i int) float64 { return float64(i) }) // 10Hz 线性
	finger := makeStream(0, 100_000_000, 100, func(i int) float64 { return float64(i) })

	ut, err := Synchronize(face, finger, DefaultConfig())
	require.NoError(t, err)

	// t=10ms 处应为 0.1（样点 0 与 1 之间的线性插值）
	assert.InDelta(t, 0.1, ut.Face[1], 1e-9)
	// 首尾值等于原始首尾样本
	assert.InDelta(t, 0.0, ut.Face[0], 1e-9)
	last := ut.Face[len(ut.Face)-1]
	assert.LessOrEqual(t, last, 99.0)
}

func TestSynchronize_DriftEstimate(t *testing.T) {
	// 两路名义同速率但远端时钟慢 3%：漂移估计应非零且方向正确
	face := makeStream(0, 10_000_000, 3000, func(i int) float64 { return 1 })    // 100Hz
	finger := makeStream(0, 10_300_000, 3000, func(i int) float64 { return 1 }) // 约 97Hz

	ut, err := Synchronize(face, finger, DefaultConfig())
	require.NoError(t, err)
	assert.Greater(t, ut.DriftMsPerSec, 0.0)
}
