package dsp

// Config 信号调理配置
type Config struct {
	RateHz          float64 // 采样率（统一时间轴频率）
	DetrendCutoffHz float64 // 去趋势高通截止，默认 0.5
	BandLowHz       float64 // 带通下边沿，默认 0.7
	BandHighHz      float64 // 带通上边沿，默认 4.0
}

// DefaultConfig 返回默认调理配置
func DefaultConfig(rateHz float64) Config {
	return Config{
		RateHz:          rateHz,
		DetrendCutoffHz: 0.5,
		BandLowHz:       0.7,
		BandHighHz:      4.0,
	}
}

// Detrend 去除基线漂移（二阶高通，截止约 0.5 Hz）
func Detrend(x []float64, cfg Config) []float64 {
	if len(x) == 0 {
		return []float64{}
	}
	hp := newHighPass(cfg.DetrendCutoffHz, cfg.RateHz)
	return hp.apply(x)
}

// Bandpass 心动频带限制（4阶：二阶高通 0.7Hz 级联二阶低通 4.0Hz）
// 级联双二阶结构对数千样本的长信号数值稳定，无直流漂移累积
func Bandpass(x []float64, cfg Config) []float64 {
	if len(x) == 0 {
		return []float64{}
	}
	hp := newHighPass(cfg.BandLowHz, cfg.RateHz)
	lp := newLowPass(cfg.BandHighHz, cfg.RateHz)
	return lp.apply(hp.apply(x))
}

// normalizeEpsilon 标准差低于该值视为数值上可忽略
const normalizeEpsilon = 1e-12

// Normalize 零均值单位方差归一化
// 标准差数值上可忽略时输出全零信号，避免 NaN/Inf 向下游传播
func Normalize(x []float64) []float64 {
	out := make([]float64, len(x))
	if len(x) == 0 {
		return out
	}

	mean := Mean(x)
	std := Std(x)
	if std < normalizeEpsilon {
		return out // 全零
	}

	for i, v := range x {
		out[i] = (v - mean) / std
	}
	return out
}

// Condition 完整调理链：去趋势 → 带通 → 归一化
// 输出不变量：零均值、单位方差（容差内）、心动频带限制
func Condition(x []float64, cfg Config) []float64 {
	return Normalize(Bandpass(Detrend(x, cfg), cfg))
}
