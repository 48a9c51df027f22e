// Package syncwindow 检测双通道同时满足质量门限的 GoodSync 段
//
// 对滚动窗口流做多指标门控（跨通道相关、心率一致、脉宽一致、双通道 SQI、
// 可选运动传感器门限），相邻 GOOD 窗口间 ≤1s 的 BAD 间隙做形态学闭合合并，
// 合并后短于最小时长的段按噪声丢弃。空段列表是合法的非错误结果。
package syncwindow

import (
	"math"

	"vivopulse-ptt/internal/models"
)

// Config GoodSync 检测配置
type Config struct {
	WindowSec      float64 // 滚动窗口长度，默认 2
	HopSec         float64 // 窗口步进，默认 1
	MinCorrelation float64 // 跨通道相关下限，默认 0.70
	MaxHRDeltaBpm  float64 // 心率差上限，默认 5
	MaxFWHMDiffMs  float64 // 脉宽（FWHM）一致上限，默认 120
	MinSQI         float64 // 双通道 SQI 下限，默认 70
	MaxAccelRMS    float64 // 运动传感器 RMS 门限；≤0 表示禁用该门
	GapCloseSec    float64 // 段合并的 BAD 间隙上限，默认 1
	MinSegmentSec  float64 // 最短可用段时长，默认 5
}

// DefaultConfig 返回默认 GoodSync 配置
func DefaultConfig() Config {
	return Config{
		WindowSec:      2,
		HopSec:         1,
		MinCorrelation: 0.70,
		MaxHRDeltaBpm:  5,
		MaxFWHMDiffMs:  120,
		MinSQI:         70,
		MaxAccelRMS:    0,
		GapCloseSec:    1,
		MinSegmentSec:  5,
	}
}

// WindowMetrics 单个滚动窗口的门控输入指标
type WindowMetrics struct {
	StartMs     float64
	EndMs       float64
	Correlation float64
	HRFaceBpm   float64 // 0 表示该窗口未检出心搏
	HRFingerBpm float64
	FWHMDiffMs  float64
	SQIFace     float64
	SQIFinger   float64
	AccelRMS    float64
}

// GatePass 多指标门控谓词：所有条件同时成立窗口才通过
func GatePass(m WindowMetrics, cfg Config) bool {
	if m.Correlation < cfg.MinCorrelation {
		return false
	}
	if m.HRFaceBpm <= 0 || m.HRFingerBpm <= 0 {
		return false
	}
	if math.Abs(m.HRFaceBpm-m.HRFingerBpm) > cfg.MaxHRDeltaBpm {
		return false
	}
	if m.FWHMDiffMs > cfg.MaxFWHMDiffMs {
		return false
	}
	if m.SQIFace < cfg.MinSQI || m.SQIFinger < cfg.MinSQI {
		return false
	}
	if cfg.MaxAccelRMS > 0 && m.AccelRMS > cfg.MaxAccelRMS {
		return false
	}
	return true
}

// 状态机状态
type state int

const (
	candidateBad state = iota
	candidateGood
)

// run 连续 GOOD 窗口构成的候选段
type run struct {
	startMs, endMs float64
	windows        []WindowMetrics
}

// DetectSegments 在滚动窗口流上检测 GoodSync 段
//
// 状态机在 CANDIDATE_GOOD / CANDIDATE_BAD 之间切换收集 GOOD 连续段；
// 随后合并间隙 ≤ GapCloseSec 的相邻段，丢弃短于 MinSegmentSec 的段。
func DetectSegments(windows []WindowMetrics, cfg Config) []models.SyncSegment {
	// 1. 收集 GOOD 连续段
	var runs []run
	st := candidateBad
	var current run

	for _, w := range windows {
		pass := GatePass(w, cfg)
		switch st {
		case candidateBad:
			if pass {
				current = run{startMs: w.StartMs, endMs: w.EndMs, windows: []WindowMetrics{w}}
				st = candidateGood
			}
		case candidateGood:
			if pass {
				current.endMs = w.EndMs
				current.windows = append(current.windows, w)
			} else {
				runs = append(runs, current)
				st = candidateBad
			}
		}
	}
	if st == candidateGood {
		runs = append(runs, current)
	}

	// 2. 形态学闭合：间隙 ≤ GapCloseSec 的相邻段合并
	gapMs := cfg.GapCloseSec * 1000
	var merged []run
	for _, r := range runs {
		if len(merged) > 0 && r.startMs-merged[len(merged)-1].endMs <= gapMs {
			last := &merged[len(merged)-1]
			last.endMs = r.endMs
			last.windows = append(last.windows, r.windows...)
		} else {
			merged = append(merged, r)
		}
	}

	// 3. 最小时长过滤 + 段指标汇总
	minMs := cfg.MinSegmentSec * 1000
	var segments []models.SyncSegment
	for _, r := range merged {
		if r.endMs-r.startMs < minMs {
			continue
		}
		segments = append(segments, summarize(r))
	}
	return segments
}

// summarize 段级指标：参与窗口的均值
func summarize(r run) models.SyncSegment {
	var corr, hrDelta, sqiFace, sqiFinger float64
	for _, w := range r.windows {
		corr += w.Correlation
		hrDelta += math.Abs(w.HRFaceBpm - w.HRFingerBpm)
		sqiFace += w.SQIFace
		sqiFinger += w.SQIFinger
	}
	n := float64(len(r.windows))
	return models.SyncSegment{
		StartMs:           r.startMs,
		EndMs:             r.endMs,
		Correlation:       corr / n,
		HeartRateDeltaBpm: hrDelta / n,
		SQIFace:           sqiFace / n,
		SQIFinger:         sqiFinger / n,
	}
}
