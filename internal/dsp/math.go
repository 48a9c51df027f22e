// Package dsp 提供双通道脉搏波形的信号调理功能
//
// 主要功能：
// - 去趋势（高通，去除基线漂移）
// - 心动频带带通滤波（0.7-4.0 Hz，覆盖 42-240 bpm）
// - 零均值单位方差归一化
// - 条件小波去噪（仅在 SQI 处于边界带时应用）
//
// 所有函数均为纯函数，配置通过显式结构体传入，无包级可变状态
package dsp

import (
	"math"
	"sort"
)

// Mean 均值；空切片返回 0
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}

// Std 总体标准差；长度不足返回 0
func Std(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	mean := Mean(data)
	sumSquares := 0.0
	for _, v := range data {
		diff := v - mean
		sumSquares += diff * diff
	}
	return math.Sqrt(sumSquares / float64(len(data)))
}

// Percentile 线性插值百分位数；空切片返回 NaN
func Percentile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return math.NaN()
	}

	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}

	n := float64(len(sorted) - 1)
	index := (p / 100.0) * n

	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))

	if lower == upper {
		return sorted[lower]
	}

	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

// Median 中位数
func Median(data []float64) float64 {
	return Percentile(data, 50)
}

// IQR 四分位距
func IQR(data []float64) float64 {
	return Percentile(data, 75) - Percentile(data, 25)
}

// Diff 相邻元素差分
func Diff(data []float64) []float64 {
	if len(data) <= 1 {
		return []float64{}
	}
	result := make([]float64, len(data)-1)
	for i := 1; i < len(data); i++ {
		result[i-1] = data[i] - data[i-1]
	}
	return result
}

// Clamp 截断到 [lo, hi]
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// SafeFloat 将 NaN/Inf 替换为 0，避免非有限值向下游传播
func SafeFloat(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0.0
	}
	return v
}
