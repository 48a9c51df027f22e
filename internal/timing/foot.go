package timing

import (
	"sort"

	"vivopulse-ptt/internal/dsp"
	"vivopulse-ptt/internal/models"
)

// 足点检测参数
const (
	// slopeFraction 上升沿候选的最小斜率：窗口最大斜率的 5%
	slopeFraction = 0.05
	// minUpstrokeSepSec 相邻上升沿的最小间隔下限（240bpm 上限）
	minUpstrokeSepSec = 0.25
	// footSearchSec 从上升沿向前回溯足点的最大距离
	footSearchSec = 0.5
	// minBeatPeriodSec / maxBeatPeriodSec 主导搏动周期的搜索范围（200–30bpm）
	minBeatPeriodSec = 0.3
	maxBeatPeriodSec = 2.0
	// refractoryFraction 不应期与回溯窗口占主导周期的比例；
	// 超过半个周期即可保证任一旁瓣都落在某个真实上升沿的不应期内
	refractoryFraction = 0.6
)

// DetectFeet 最陡上升沿法检测脉搏足点（搏动起点）
//
// 先收集一阶导数的局部极大（超过窗口最大斜率的 5%）作为上升沿候选；
// 带通滤波会在脉冲两侧引入振铃旁瓣，其斜率峰可超过固定阈值，
// 因此按斜率从陡到缓贪心保留候选，并以主导搏动周期定标的不应期抑制邻近者。
// 再从每个保留的上升沿向前回溯窗口内的最低点作为足点。
// 返回足点的样本索引；零心搏返回空切片，不报错。
func DetectFeet(x []float64, cfg Config) []int {
	if len(x) < 3 {
		return nil
	}

	deriv := dsp.Diff(x)
	maxSlope := 0.0
	for _, d := range deriv {
		if d > maxSlope {
			maxSlope = d
		}
	}
	if maxSlope <= 0 {
		return nil
	}
	threshold := slopeFraction * maxSlope

	var candidates []int
	for i := 1; i < len(deriv)-1; i++ {
		if deriv[i] >= threshold && deriv[i] >= deriv[i-1] && deriv[i] >= deriv[i+1] {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	minSep := int(minUpstrokeSepSec * cfg.RateHz)
	searchBack := int(footSearchSec * cfg.RateHz)
	if period := dominantPeriodSamples(x, cfg.RateHz); period > 0 {
		scaled := int(refractoryFraction * float64(period))
		if scaled > minSep {
			minSep = scaled
		}
		if scaled < searchBack {
			searchBack = scaled
		}
	}
	upstrokes := suppressWeaker(candidates, deriv, minSep)

	var feet []int
	for _, u := range upstrokes {
		foot := searchFootBefore(x, u, searchBack)
		// 相邻上升沿的回溯窗口可能重叠到同一谷底
		if len(feet) > 0 && foot <= feet[len(feet)-1] {
			continue
		}
		feet = append(feet, foot)
	}
	return feet
}

// dominantPeriodSamples 自相关估计主导搏动周期（样本数）
//
// 在 30–200bpm 对应的滞后范围内求自相关；周期信号在基波的整数倍处
// 都有相近的峰，故取首个达到全局峰值 80% 的局部极大，而非全局最大。
// 无显著周期性（峰值 < 0.3）返回 0。
func dominantPeriodSamples(x []float64, rateHz float64) int {
	minLag := int(minBeatPeriodSec * rateHz)
	maxLag := int(maxBeatPeriodSec * rateHz)
	if maxLag > len(x)-2 {
		maxLag = len(x) - 2
	}
	if minLag < 1 || minLag > maxLag {
		return 0
	}

	acf := make([]float64, maxLag-minLag+1)
	best := 0.0
	for lag := minLag; lag <= maxLag; lag++ {
		c := pearsonAtLag(x, x, lag)
		acf[lag-minLag] = c
		if c > best {
			best = c
		}
	}
	if best < 0.3 {
		return 0
	}

	floor := 0.8 * best
	for i := 1; i < len(acf)-1; i++ {
		if acf[i] >= floor && acf[i] >= acf[i-1] && acf[i] >= acf[i+1] {
			return minLag + i
		}
	}
	return 0
}

// suppressWeaker 按斜率从陡到缓贪心保留候选，抑制已保留点不应期内的弱候选
func suppressWeaker(candidates []int, deriv []float64, minSep int) []int {
	order := make([]int, len(candidates))
	copy(order, candidates)
	sort.Slice(order, func(a, b int) bool {
		return deriv[order[a]] > deriv[order[b]]
	})

	var kept []int
	for _, c := range order {
		clear := true
		for _, k := range kept {
			if abs(c-k) < minSep {
				clear = false
				break
			}
		}
		if clear {
			kept = append(kept, c)
		}
	}
	sort.Ints(kept)
	return kept
}

// searchFootBefore 取上升沿之前回溯窗口内的最低点作为足点
//
// 取窗口内全局最小而非最近的局部极小：噪声会在上升沿高处
// 制造假极小，把足点基线抬高、脉宽压窄。
func searchFootBefore(x []float64, upstroke, searchBack int) int {
	lo := upstroke - searchBack
	if lo < 0 {
		lo = 0
	}
	minIdx := upstroke
	for j := upstroke; j >= lo; j-- {
		if x[j] < x[minIdx] {
			minIdx = j
		}
	}
	return minIdx
}

// FootToFoot 足点配对时延估计
//
// 每个近端足点与最近的远端足点配对；时延落在 [MinPairLagMs, MaxPairLagMs]
// 合理区间之外的配对丢弃。报告有效配对的中位数与四分位距。
// 零心搏/零有效配对静默返回 Valid=false 的空估计，不报错。
func FootToFoot(face, finger []float64, cfg Config) models.FootEstimate {
	faceFeet := DetectFeet(face, cfg)
	fingerFeet := DetectFeet(finger, cfg)

	if len(faceFeet) == 0 || len(fingerFeet) == 0 {
		return models.FootEstimate{}
	}

	msPerSample := 1000 / cfg.RateHz
	var lags []float64
	j := 0
	for _, ff := range faceFeet {
		// 指针前移到最近的远端足点
		for j < len(fingerFeet)-1 && abs(fingerFeet[j+1]-ff) <= abs(fingerFeet[j]-ff) {
			j++
		}
		lagMs := float64(fingerFeet[j]-ff) * msPerSample
		if lagMs >= cfg.MinPairLagMs && lagMs <= cfg.MaxPairLagMs {
			lags = append(lags, lagMs)
		}
	}

	if len(lags) == 0 {
		return models.FootEstimate{}
	}

	return models.FootEstimate{
		MedianLagMs:     dsp.Median(lags),
		IQRMs:           dsp.IQR(lags),
		PairedBeatCount: len(lags),
		Valid:           true,
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
