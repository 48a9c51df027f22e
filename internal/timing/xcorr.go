// Package timing 提供两种互相独立的脉搏时延估计方法
//
// - 互相关法：有界时延窗口内的归一化（Pearson）互相关 + 抛物线亚样本精化
// - 足点法：逐搏检测脉搏起点（最陡上升沿前的局部极小），近端/远端足点配对
//
// 两种方法都是 ConditionedSignal 窗口上的纯函数，无共享可变状态；
// 它们的结果由 consensus 包做一致性门控后合并。
package timing

import (
	"errors"
	"math"

	"vivopulse-ptt/internal/dsp"
	"vivopulse-ptt/internal/models"
)

// ErrInsufficientSamples 窗口样本数不足以做互相关估计
var ErrInsufficientSamples = errors.New("timing: insufficient samples for cross-correlation")

// minSamples 互相关所需的最小窗口样本数
const minSamples = 100

// Config 时延估计配置
type Config struct {
	RateHz       float64 // 采样率
	MaxLagMs     float64 // 互相关搜索范围 ±MaxLagMs，默认 200
	MinPairLagMs float64 // 足点配对合理下限，默认 50
	MaxPairLagMs float64 // 足点配对合理上限，默认 500
}

// DefaultConfig 返回默认时延估计配置
func DefaultConfig(rateHz float64) Config {
	return Config{
		RateHz:       rateHz,
		MaxLagMs:     200,
		MinPairLagMs: 50,
		MaxPairLagMs: 500,
	}
}

// CrossCorrelate 归一化互相关时延估计
//
// 正 lag 表示远端（指端）波形滞后于近端（面部）波形。
// 离散峰附近三点做抛物线顶点精化得到亚样本时延；
// 峰值锐度 = 峰值 - 相邻两点均值，作为置信度代理。
func CrossCorrelate(face, finger []float64, cfg Config) (models.TimingEstimate, error) {
	n := len(face)
	if n != len(finger) {
		return models.TimingEstimate{}, errors.New("timing: channel length mismatch")
	}
	if n < minSamples {
		return models.TimingEstimate{}, ErrInsufficientSamples
	}

	maxLag := int(cfg.MaxLagMs * cfg.RateHz / 1000)
	if maxLag < 1 {
		maxLag = 1
	}
	if maxLag >= n-1 {
		maxLag = n - 2
	}

	// 搜索窗口两端各多算一个 lag：峰落在 ±maxLag 边界时
	// 精化所需的相邻两点仍然存在
	span := maxLag + 1
	corr := make([]float64, 2*span+1)
	for lag := -span; lag <= span; lag++ {
		corr[lag+span] = pearsonAtLag(face, finger, lag)
	}

	// 峰只在 ±maxLag 内选取
	bestIdx := 1
	for idx := 1; idx < len(corr)-1; idx++ {
		if corr[idx] > corr[bestIdx] {
			bestIdx = idx
		}
	}

	bestLag := float64(bestIdx - span)
	peak := corr[bestIdx]

	// 抛物线亚样本精化
	prev, next := corr[bestIdx-1], corr[bestIdx+1]
	denom := prev - 2*peak + next
	if denom < 0 {
		bestLag += 0.5 * (prev - next) / denom
	}
	sharpness := peak - (prev+next)/2

	return models.TimingEstimate{
		LagMs:            bestLag * 1000 / cfg.RateHz,
		CorrelationScore: dsp.Clamp(dsp.SafeFloat(peak), 0, 1),
		PeakSharpness:    dsp.SafeFloat(sharpness),
	}, nil
}

// pearsonAtLag 在给定样本偏移处计算两信号重叠区的 Pearson 相关
// 重叠区方差可忽略时返回 0（近零方差归一化的局部恢复）
func pearsonAtLag(face, finger []float64, lag int) float64 {
	n := len(face)

	start := 0
	if lag < 0 {
		start = -lag
	}
	end := n
	if lag > 0 {
		end = n - lag
	}
	m := end - start
	if m < 2 {
		return 0
	}

	var sumA, sumB float64
	for i := start; i < end; i++ {
		sumA += face[i]
		sumB += finger[i+lag]
	}
	meanA := sumA / float64(m)
	meanB := sumB / float64(m)

	var num, varA, varB float64
	for i := start; i < end; i++ {
		da := face[i] - meanA
		db := finger[i+lag] - meanB
		num += da * db
		varA += da * da
		varB += db * db
	}

	denom := math.Sqrt(varA * varB)
	if denom < 1e-12 {
		return 0
	}
	return num / denom
}
