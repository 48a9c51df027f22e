// Package quality 计算单通道 0-100 信号质量指数（SQI）
//
// 综合 SQI = 带内信噪比得分 - 通道特有惩罚 - 共享惩罚，截断到 [0,100]。
// 权重是可调策略，但必须保持序不变量：任一惩罚输入增大时综合 SQI 单调不增。
package quality

import (
	"math"

	"vivopulse-ptt/internal/dsp"
	"vivopulse-ptt/internal/models"
)

// Channel 通道标识
type Channel int

const (
	// ChannelFace 近端（面部）通道：惩罚来自光学运动幅度
	ChannelFace Channel = iota
	// ChannelFinger 远端（指端）通道：惩罚来自饱和像素占比
	ChannelFinger
)

// Config 质量引擎配置
type Config struct {
	RateHz     float64 // 采样率
	BandLowHz  float64 // 心动频带下边沿
	BandHighHz float64 // 心动频带上边沿

	// 惩罚权重（可调策略）
	MotionWeight     float64 // 近端运动惩罚权重
	SaturationWeight float64 // 远端饱和惩罚权重
	AccelThreshold   float64 // 加速度计 RMS 惩罚门限
	AccelWeight      float64 // 加速度计惩罚权重

	// SNR 得分映射（dB → 0-100 线性区间）
	SNRFloorDb   float64 // 该值及以下得 0 分
	SNRCeilingDb float64 // 该值及以上得 100 分
}

// DefaultConfig 返回默认质量配置
func DefaultConfig(rateHz float64) Config {
	return Config{
		RateHz:           rateHz,
		BandLowHz:        0.7,
		BandHighHz:       4.0,
		MotionWeight:     8,
		SaturationWeight: 120,
		AccelThreshold:   0.5,
		AccelWeight:      40,
		SNRFloorDb:       -5,
		SNRCeilingDb:     10,
	}
}

// Evaluate 计算一个分析窗口的通道质量
func Evaluate(window []float64, channel Channel, aux models.AuxMetrics, cfg Config) models.ChannelQuality {
	snrScore := snrScore(window, cfg)

	var penalty float64
	switch channel {
	case ChannelFace:
		penalty = dsp.Clamp(aux.MotionMagnitude*cfg.MotionWeight, 0, 100)
	case ChannelFinger:
		penalty = dsp.Clamp(aux.SaturationFraction*cfg.SaturationWeight, 0, 100)
	}

	auxPenalty := 0.0
	if aux.AccelRMS > cfg.AccelThreshold {
		auxPenalty = dsp.Clamp((aux.AccelRMS-cfg.AccelThreshold)*cfg.AccelWeight, 0, 100)
	}

	return models.ChannelQuality{
		SNRScore:     snrScore,
		Penalty:      penalty,
		AuxPenalty:   auxPenalty,
		CompositeSQI: dsp.Clamp(snrScore-penalty-auxPenalty, 0, 100),
	}
}

// snrScore 带内信噪比得分（0-100）
// 带内/带外谱功率比（dB）线性映射到得分区间
func snrScore(window []float64, cfg Config) float64 {
	db := InBandSNRDb(window, cfg)
	if math.IsInf(db, 1) {
		return 100
	}
	if math.IsNaN(db) || math.IsInf(db, -1) {
		return 0
	}
	span := cfg.SNRCeilingDb - cfg.SNRFloorDb
	if span <= 0 {
		return 0
	}
	return dsp.Clamp((db-cfg.SNRFloorDb)/span*100, 0, 100)
}

// InBandSNRDb 窗口内心动频带功率与带外功率之比（dB）
// 直接 DFT 逐频点求功率；窗口长度（百赫兹采样下数秒）内计算量可接受
func InBandSNRDb(window []float64, cfg Config) float64 {
	n := len(window)
	if n < 4 {
		return math.NaN()
	}

	var inBand, outBand float64
	// 跳过直流（k=0），只取到奈奎斯特
	for k := 1; k <= n/2; k++ {
		freq := float64(k) * cfg.RateHz / float64(n)
		power := goertzelPower(window, k)
		if freq >= cfg.BandLowHz && freq <= cfg.BandHighHz {
			inBand += power
		} else {
			outBand += power
		}
	}

	if outBand <= 0 {
		if inBand <= 0 {
			return math.NaN()
		}
		return math.Inf(1)
	}
	return 10 * math.Log10(inBand/outBand)
}

// goertzelPower 第 k 个 DFT 频点的功率（Goertzel 递推）
func goertzelPower(x []float64, k int) float64 {
	n := len(x)
	w := 2 * math.Pi * float64(k) / float64(n)
	coeff := 2 * math.Cos(w)

	var s0, s1, s2 float64
	for _, v := range x {
		s0 = v + coeff*s1 - s2
		s2 = s1
		s1 = s0
	}
	return s1*s1 + s2*s2 - coeff*s1*s2
}
