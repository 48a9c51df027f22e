package dsp

import "math"

// DenoiseConfig 小波去噪配置
type DenoiseConfig struct {
	Levels         int     // 分解层数，默认 4
	ThresholdScale float64 // 阈值缩放，1.0 为通用阈值，0 时无损重建
}

// DefaultDenoiseConfig 返回默认去噪配置
func DefaultDenoiseConfig() DenoiseConfig {
	return DenoiseConfig{
		Levels:         4,
		ThresholdScale: 1.0,
	}
}

const invSqrt2 = 0.7071067811865476

// haarForward 单层 Haar 分解
// 奇数长度时末样本原样保留（tail），保证任意长度可精确重建
func haarForward(x []float64) (approx, detail []float64, tail *float64) {
	n := len(x)
	if n%2 == 1 {
		t := x[n-1]
		tail = &t
		n--
	}
	approx = make([]float64, n/2)
	detail = make([]float64, n/2)
	for i := 0; i < n/2; i++ {
		approx[i] = (x[2*i] + x[2*i+1]) * invSqrt2
		detail[i] = (x[2*i] - x[2*i+1]) * invSqrt2
	}
	return approx, detail, tail
}

// haarInverse 单层 Haar 重建
func haarInverse(approx, detail []float64, tail *float64) []float64 {
	n := len(approx) * 2
	out := make([]float64, n, n+1)
	for i := range approx {
		out[2*i] = (approx[i] + detail[i]) * invSqrt2
		out[2*i+1] = (approx[i] - detail[i]) * invSqrt2
	}
	if tail != nil {
		out = append(out, *tail)
	}
	return out
}

// softThreshold 软阈值收缩
func softThreshold(coeffs []float64, thr float64) {
	if thr <= 0 {
		return
	}
	for i, v := range coeffs {
		abs := math.Abs(v) - thr
		if abs < 0 {
			coeffs[i] = 0
		} else if v < 0 {
			coeffs[i] = -abs
		} else {
			coeffs[i] = abs
		}
	}
}

// noiseSigma 基于最细层细节系数 MAD 的噪声估计
func noiseSigma(detail []float64) float64 {
	if len(detail) == 0 {
		return 0
	}
	med := Median(detail)
	abs := make([]float64, len(detail))
	for i, v := range detail {
		abs[i] = math.Abs(v - med)
	}
	return Median(abs) / 0.6745
}

// Denoise 多层 Haar 小波软阈值去噪
//
// 阈值按最细层细节系数的噪声估计缩放（通用阈值 σ√(2 ln N)）。
// ThresholdScale 为 0 时所有系数原样保留，重建结果与输入在浮点容差内一致。
func Denoise(x []float64, cfg DenoiseConfig) []float64 {
	if len(x) < 2 || cfg.Levels <= 0 {
		out := make([]float64, len(x))
		copy(out, x)
		return out
	}

	// 逐层分解
	approx := make([]float64, len(x))
	copy(approx, x)

	var details [][]float64
	var tails []*float64
	for level := 0; level < cfg.Levels && len(approx) >= 2; level++ {
		a, d, t := haarForward(approx)
		details = append(details, d)
		tails = append(tails, t)
		approx = a
	}

	// 阈值来自最细层（details[0]）的噪声估计
	if cfg.ThresholdScale > 0 && len(details) > 0 {
		sigma := noiseSigma(details[0])
		thr := cfg.ThresholdScale * sigma * math.Sqrt(2*math.Log(float64(len(x))))
		for _, d := range details {
			softThreshold(d, thr)
		}
	}

	// 逆序重建
	for i := len(details) - 1; i >= 0; i-- {
		approx = haarInverse(approx, details[i], tails[i])
	}
	return approx
}
