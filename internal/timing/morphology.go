package timing

import (
	"vivopulse-ptt/internal/dsp"
)

// EstimateHeartRate 基于足点间隔的心率估计（bpm）
// 足点不足两个时返回 0
func EstimateHeartRate(x []float64, cfg Config) float64 {
	feet := DetectFeet(x, cfg)
	if len(feet) < 2 {
		return 0
	}

	intervals := make([]float64, 0, len(feet)-1)
	for i := 1; i < len(feet); i++ {
		intervals = append(intervals, float64(feet[i]-feet[i-1])*1000/cfg.RateHz)
	}
	medianMs := dsp.Median(intervals)
	if medianMs <= 0 {
		return 0
	}
	return 60000 / medianMs
}

// MeanFWHM 半高全宽均值（毫秒）
//
// 每个搏动取相邻足点之间的峰，以足点基线到峰值的一半为半高，
// 求峰两侧跨越半高的宽度；返回所有搏动的均值。
// 不足一个完整搏动返回 0。
func MeanFWHM(x []float64, cfg Config) float64 {
	feet := DetectFeet(x, cfg)
	if len(feet) < 2 {
		return 0
	}

	msPerSample := 1000 / cfg.RateHz
	var widths []float64
	for b := 1; b < len(feet); b++ {
		lo, hi := feet[b-1], feet[b]
		if hi-lo < 3 {
			continue
		}

		// 搏动内峰
		peakIdx := lo
		for i := lo; i <= hi; i++ {
			if x[i] > x[peakIdx] {
				peakIdx = i
			}
		}

		baseline := x[lo]
		if x[hi] < baseline {
			baseline = x[hi]
		}
		half := baseline + (x[peakIdx]-baseline)/2
		if x[peakIdx] <= half {
			continue
		}

		// 峰两侧的半高交点
		left := peakIdx
		for left > lo && x[left] > half {
			left--
		}
		right := peakIdx
		for right < hi && x[right] > half {
			right++
		}

		widths = append(widths, float64(right-left)*msPerSample)
	}

	if len(widths) == 0 {
		return 0
	}
	return dsp.Mean(widths)
}
