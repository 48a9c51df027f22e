// Package confidence 将通道质量、相关性与峰值锐度合并为单一 0-1 置信度
//
// 弱链策略：较差的通道主导置信度，再按相关性与峰值锐度缩放。
// 报告策略：置信度达到阈值（含边界）时报告数值 PTT，否则隐藏数值并
// 按最弱子指标生成按优先级排序的改进建议。纯函数，展示方式由调用方决定。
package confidence

import (
	"sort"

	"vivopulse-ptt/internal/dsp"
	"vivopulse-ptt/internal/models"
)

// Config 置信度门配置
type Config struct {
	ReportThreshold float64 // 报告阈值，默认 0.60（含边界）
}

// DefaultConfig 返回默认置信度配置
func DefaultConfig() Config {
	return Config{ReportThreshold: 0.60}
}

// Inputs 置信度计算输入
type Inputs struct {
	SQIFace       float64 // 0-100
	SQIFinger     float64 // 0-100
	Correlation   float64 // 0-1
	PeakSharpness float64
	PTTMs         float64 // 报告数值
}

// 锐度满分参考值：相关峰锐度达到该值视为完全可信
const sharpnessReference = 0.05

// Compute 弱链置信度
//
// 较差通道的 SQI 归一化后作为基底，相关性映射到 [0.5,1]，
// 峰值锐度映射到 [0.9,1]，三者相乘并截断到 [0,1]。
func Compute(in Inputs) float64 {
	minSQI := in.SQIFace
	if in.SQIFinger < minSQI {
		minSQI = in.SQIFinger
	}

	base := dsp.Clamp(minSQI/100, 0, 1)
	corrFactor := 0.5 + 0.5*dsp.Clamp(in.Correlation, 0, 1)
	sharpFactor := 0.9 + 0.1*dsp.Clamp(in.PeakSharpness/sharpnessReference, 0, 1)

	return dsp.Clamp(base*corrFactor*sharpFactor, 0, 1)
}

// 改进建议文案（按触发的子指标）
const (
	guidanceFaceLighting   = "Improve lighting on the face and avoid backlight"
	guidanceFingerContact  = "Adjust finger contact pressure or enable the torch"
	guidanceHoldStill      = "Hold both sensors still and avoid movement"
	guidanceRetryCapture   = "Retry the capture with a longer steady period"
)

// Report 置信度门控报告
//
// confidence ≥ ReportThreshold（含正好等于）时返回 Reported(pttMs)；
// 否则返回 Withheld 及非空的按优先级排序的建议列表。
func Report(in Inputs, cfg Config) models.PTTReport {
	return ReportAt(Compute(in), in, cfg)
}

// ReportAt 按外部给定的置信度做报告决策
// 调用方（如会话处理器）可能在 Compute 之上叠加方法一致性降权
func ReportAt(conf float64, in Inputs, cfg Config) models.PTTReport {
	if conf >= cfg.ReportThreshold {
		return models.PTTReport{
			Status: models.ReportReported,
			PTTMs:  in.PTTMs,
		}
	}

	return models.PTTReport{
		Status:   models.ReportWithheld,
		Guidance: guidance(in),
	}
}

// metricDeficit 子指标及其相对不足程度（0 好，1 最差）
type metricDeficit struct {
	deficit float64
	text    string
}

// guidance 按最弱子指标生成按优先级排序的建议
// 列表保证非空：无单项明显薄弱时给出通用重试建议
func guidance(in Inputs) []string {
	deficits := []metricDeficit{
		{1 - dsp.Clamp(in.SQIFace/100, 0, 1), guidanceFaceLighting},
		{1 - dsp.Clamp(in.SQIFinger/100, 0, 1), guidanceFingerContact},
		{1 - dsp.Clamp(in.Correlation, 0, 1), guidanceHoldStill},
	}

	sort.SliceStable(deficits, func(i, j int) bool {
		return deficits[i].deficit > deficits[j].deficit
	})

	var out []string
	for _, d := range deficits {
		// 不足超过 30% 才值得给建议
		if d.deficit > 0.3 {
			out = append(out, d.text)
		}
	}
	if len(out) == 0 {
		out = append(out, guidanceRetryCapture)
	}
	return out
}
