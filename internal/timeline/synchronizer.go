// Package timeline 提供双通道时间戳同步与统一时间轴重采样
//
// 主要功能：
// - 校验每路时间戳单调性（违例计数，不致命——相机时间戳抖动很常见）
// - 估计每路采样间隔（正差分中位数，对偶发重复/负差分鲁棒）
// - 估计双流时钟漂移（重叠起点 K 秒窗口内的样本计数差）
// - 在时间交集上按固定目标频率线性插值重采样
package timeline

import (
	"errors"
	"sort"

	"vivopulse-ptt/internal/models"
)

// 输入错误（硬错误，仅真正畸形的输入触发）
var (
	// ErrEmptyStream 输入流为空或样本数不足
	ErrEmptyStream = errors.New("timeline: empty or too-short sample stream")
	// ErrNoOverlap 双流在时间上无交集
	ErrNoOverlap = errors.New("timeline: streams do not overlap in time")
	// ErrInsufficientOverlap 时间交集短于漂移估计窗口
	ErrInsufficientOverlap = errors.New("timeline: overlap shorter than drift window")
)

// Config 同步器配置
type Config struct {
	TargetRateHz   float64 // 重采样目标频率，默认 100
	DriftWindowSec float64 // 漂移估计窗口，默认 5
}

// DefaultConfig 返回默认同步配置
func DefaultConfig() Config {
	return Config{
		TargetRateHz:   100,
		DriftWindowSec: 5,
	}
}

// Synchronize 将两路原始流对齐到统一时间轴
//
// 相同输入与配置下结果逐位一致（幂等），时间戳由整数索引推导，不做增量累加。
func Synchronize(face, finger models.SampleStream, cfg Config) (*models.UnifiedTimeline, error) {
	if len(face) < 2 || len(finger) < 2 {
		return nil, ErrEmptyStream
	}
	if cfg.TargetRateHz <= 0 {
		return nil, errors.New("timeline: non-positive target rate")
	}

	faceViolations := countViolations(face)
	fingerViolations := countViolations(finger)

	faceIntervalNs := medianPositiveDelta(face)
	fingerIntervalNs := medianPositiveDelta(finger)
	if faceIntervalNs <= 0 || fingerIntervalNs <= 0 {
		return nil, ErrEmptyStream
	}

	// 时间交集
	start := maxInt64(face[0].TimestampNs, finger[0].TimestampNs)
	end := minInt64(face[len(face)-1].TimestampNs, finger[len(finger)-1].TimestampNs)
	if end <= start {
		return nil, ErrNoOverlap
	}

	windowNs := int64(cfg.DriftWindowSec * 1e9)
	if end-start < windowNs {
		return nil, ErrInsufficientOverlap
	}

	drift := estimateDrift(face, finger, start, windowNs, faceIntervalNs, fingerIntervalNs, cfg.DriftWindowSec)

	// 统一时间戳：start + i/rate，直到超出交集
	stepNs := 1e9 / cfg.TargetRateHz
	count := int(float64(end-start)/stepNs) + 1

	timestamps := make([]float64, count)
	faceValues := make([]float64, count)
	fingerValues := make([]float64, count)

	faceIdx, fingerIdx := 0, 0
	for i := 0; i < count; i++ {
		tNs := start + int64(float64(i)*stepNs)
		timestamps[i] = float64(i) * 1000.0 / cfg.TargetRateHz
		faceValues[i], faceIdx = interpolateAt(face, tNs, faceIdx)
		fingerValues[i], fingerIdx = interpolateAt(finger, tNs, fingerIdx)
	}

	return &models.UnifiedTimeline{
		RateHz:           cfg.TargetRateHz,
		StartNs:          start,
		TimestampMs:      timestamps,
		Face:             faceValues,
		Finger:           fingerValues,
		FaceIntervalMs:   faceIntervalNs / 1e6,
		FingerIntervalMs: fingerIntervalNs / 1e6,
		DriftMsPerSec:    drift,
		FaceViolations:   faceViolations,
		FingerViolations: fingerViolations,
	}, nil
}

// countViolations 统计非递增相邻时间戳对
func countViolations(s models.SampleStream) int {
	count := 0
	for i := 1; i < len(s); i++ {
		if s[i].TimestampNs <= s[i-1].TimestampNs {
			count++
		}
	}
	return count
}

// medianPositiveDelta 正差分中位数（纳秒）
// 非正差分（重复/乱序帧）排除在间隔估计之外
func medianPositiveDelta(s models.SampleStream) float64 {
	deltas := make([]float64, 0, len(s)-1)
	for i := 1; i < len(s); i++ {
		d := s[i].TimestampNs - s[i-1].TimestampNs
		if d > 0 {
			deltas = append(deltas, float64(d))
		}
	}
	if len(deltas) == 0 {
		return 0
	}
	sort.Float64s(deltas)
	mid := len(deltas) / 2
	if len(deltas)%2 == 0 {
		return (deltas[mid-1] + deltas[mid]) / 2
	}
	return deltas[mid]
}

// estimateDrift 双流时钟漂移（ms/s）
// 比较重叠起点 K 秒窗口内两路的样本数，换算为隐含帧率差，再乘以平均采样间隔
func estimateDrift(face, finger models.SampleStream, startNs, windowNs int64, faceIntervalNs, fingerIntervalNs, windowSec float64) float64 {
	faceCount := countInWindow(face, startNs, windowNs)
	fingerCount := countInWindow(finger, startNs, windowNs)

	rateDiff := float64(faceCount-fingerCount) / windowSec // Hz
	meanIntervalMs := (faceIntervalNs + fingerIntervalNs) / 2 / 1e6
	return rateDiff * meanIntervalMs
}

func countInWindow(s models.SampleStream, startNs, windowNs int64) int {
	count := 0
	for _, sample := range s {
		if sample.TimestampNs >= startNs && sample.TimestampNs < startNs+windowNs {
			count++
		}
	}
	return count
}

// interpolateAt 在 tNs 处线性插值
// 区间边缘钳位到最近已知样本，不外推；fromIdx 避免每次从头扫描
func interpolateAt(s models.SampleStream, tNs int64, fromIdx int) (float64, int) {
	// 边缘钳位
	if tNs <= s[0].TimestampNs {
		return s[0].Value, 0
	}
	if tNs >= s[len(s)-1].TimestampNs {
		return s[len(s)-1].Value, len(s) - 2
	}

	i := fromIdx
	if i < 0 {
		i = 0
	}
	for i < len(s)-2 && s[i+1].TimestampNs <= tNs {
		i++
	}

	t0, t1 := s[i].TimestampNs, s[i+1].TimestampNs
	if t1 <= t0 {
		// 重复/乱序时间戳：取前一个已知样本值
		return s[i].Value, i
	}

	frac := float64(tNs-t0) / float64(t1-t0)
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	return s[i].Value + frac*(s[i+1].Value-s[i].Value), i
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
