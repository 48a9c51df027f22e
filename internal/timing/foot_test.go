package timing

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vivopulse-ptt/internal/dsp"
)

func TestDetectFeet_CountMatchesBeats(t *testing.T) {
	cfg := DefaultConfig(100)
	// 10 秒 @ 72bpm ≈ 12 个搏动
	x := pulseTrain(cfg.RateHz, 72, 0, 1000, 0, nil)

	feet := DetectFeet(x, cfg)
	assert.GreaterOrEqual(t, len(feet), 10)
	assert.LessOrEqual(t, len(feet), 13)

	// 足点索引单调递增
	for i := 1; i < len(feet); i++ {
		assert.Greater(t, feet[i], feet[i-1])
	}
}

func TestDetectFeet_BandpassRingingSuppressed(t *testing.T) {
	// 带通滤波在每个脉冲两侧引入振铃旁瓣，其斜率峰可超过固定阈值；
	// 旁瓣不应被当作额外搏动
	cfg := DefaultConfig(100)
	raw := pulseTrain(cfg.RateHz, 72, 0, 1000, 0, nil)
	cond := dsp.Condition(raw, dsp.DefaultConfig(cfg.RateHz))

	feet := DetectFeet(cond, cfg)
	assert.GreaterOrEqual(t, len(feet), 10)
	assert.LessOrEqual(t, len(feet), 13)
}

func TestEstimateHeartRate_ConditionedShortWindows(t *testing.T) {
	// 2 秒短窗逐窗估计：滤波后的干净 72bpm 信号不应出现翻倍/数倍的假心率
	cfg := DefaultConfig(100)
	raw := pulseTrain(cfg.RateHz, 72, 0, 6000, 0, nil)
	cond := dsp.Condition(raw, dsp.DefaultConfig(cfg.RateHz))

	winLen := 200 // 2 秒 @100Hz
	measured := 0
	for start := 0; start+winLen <= len(cond); start += winLen / 2 {
		hr := EstimateHeartRate(cond[start:start+winLen], cfg)
		if hr == 0 {
			continue
		}
		measured++
		assert.InDelta(t, 72, hr, 5, "window start=%d", start)
	}
	assert.Greater(t, measured, 40)
}

func TestDetectFeet_FlatSignal(t *testing.T) {
	cfg := DefaultConfig(100)
	assert.Empty(t, DetectFeet(make([]float64, 1000), cfg))
	assert.Empty(t, DetectFeet(nil, cfg))
}

func TestFootToFoot_RecoversDelay(t *testing.T) {
	cfg := DefaultConfig(100)
	face := pulseTrain(cfg.RateHz, 72, 0, 2000, 0, nil)
	finger := pulseTrain(cfg.RateHz, 72, 100, 2000, 0, nil)

	est := FootToFoot(face, finger, cfg)
	require.True(t, est.Valid)
	assert.InDelta(t, 100, est.MedianLagMs, 20)
	assert.GreaterOrEqual(t, est.PairedBeatCount, 5)
	assert.Less(t, est.IQRMs, 30.0)
}

func TestFootToFoot_ZeroBeatsReturnsInvalid(t *testing.T) {
	// 零心搏静默返回空估计，不报错
	cfg := DefaultConfig(100)
	est := FootToFoot(make([]float64, 1000), make([]float64, 1000), cfg)
	assert.False(t, est.Valid)
	assert.Equal(t, 0, est.PairedBeatCount)
}

func TestFootToFoot_ImplausibleLagRejected(t *testing.T) {
	// 延迟 20ms 低于 50ms 合理下限：所有配对被丢弃
	cfg := DefaultConfig(100)
	face := pulseTrain(cfg.RateHz, 72, 0, 2000, 0, nil)
	finger := pulseTrain(cfg.RateHz, 72, 20, 2000, 0, nil)

	est := FootToFoot(face, finger, cfg)
	assert.False(t, est.Valid)
}

func TestEstimateHeartRate(t *testing.T) {
	cfg := DefaultConfig(100)
	x := pulseTrain(cfg.RateHz, 72, 0, 3000, 0, nil)

	hr := EstimateHeartRate(x, cfg)
	assert.InDelta(t, 72, hr, 3)

	// 足点不足时返回 0
	assert.Equal(t, 0.0, EstimateHeartRate(make([]float64, 100), cfg))
}

func TestMeanFWHM_AgreesAcrossChannels(t *testing.T) {
	cfg := DefaultConfig(100)
	rng := rand.New(rand.NewSource(2))

	face := pulseTrain(cfg.RateHz, 72, 0, 2000, 0.01, rng)
	finger := pulseTrain(cfg.RateHz, 72, 100, 2000, 0.01, rng)

	fwFace := MeanFWHM(face, cfg)
	fwFinger := MeanFWHM(finger, cfg)

	require.Greater(t, fwFace, 0.0)
	require.Greater(t, fwFinger, 0.0)
	// 同形态波形的脉宽一致性远好于 120ms 门限
	assert.InDelta(t, fwFace, fwFinger, 40)

	// 高斯脉冲 σ=80ms 的理论 FWHM ≈ 188ms
	assert.InDelta(t, 188, fwFace, 80)
}

func TestMeanFWHM_NoiseRobustBaseline(t *testing.T) {
	// 噪声会在上升沿高处制造假的局部极小；足点回溯停在那里
	// 会抬高基线、把脉宽压到真实值的一半
	cfg := DefaultConfig(100)
	rng := rand.New(rand.NewSource(7))
	x := pulseTrain(cfg.RateHz, 72, 0, 2000, 0.01, rng)

	w := MeanFWHM(x, cfg)
	assert.InDelta(t, 188, w, 50)
}
