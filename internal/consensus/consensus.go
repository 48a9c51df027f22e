// Package consensus 合并两种时延估计方法为单一稳健结果
//
// 窗口级：互相关 lag 与足点中位 lag 做 20ms 一致性门控；
// 不一致时降权（不丢弃），让会话统计反映可靠性下降而不是数据消失。
// 会话级：中位数 + 1.5·IQR 离群剔除的加权汇总，单个噪声窗口无法主导结果。
package consensus

import (
	"math"
	"sort"

	"vivopulse-ptt/internal/dsp"
	"vivopulse-ptt/internal/models"
)

// Config 共识配置
type Config struct {
	AgreementMs float64 // 双方法一致性容差，默认 20
}

// DefaultConfig 返回默认共识配置
func DefaultConfig() Config {
	return Config{AgreementMs: 20}
}

// 降权系数：方法不一致或足点法不可用的窗口
const disagreementWeight = 0.5

// Combine 合并单个窗口的两种估计
//
// 足点法不可用（零心搏）时退化为仅互相关，窗口降权但保留；
// 两法一致时报告二者均值，不一致时以互相关为准并降权。
func Combine(xc models.TimingEstimate, foot models.FootEstimate, cfg Config) models.ConsensusResult {
	if !foot.Valid {
		return models.ConsensusResult{
			PTTMs:             xc.LagMs,
			IQRMs:             0,
			MethodAgreementMs: 0,
			BeatCount:         0,
			Agreeing:          false,
			Weight:            disagreementWeight,
			Valid:             true,
		}
	}

	agreement := math.Abs(xc.LagMs - foot.MedianLagMs)
	agreeing := agreement <= cfg.AgreementMs

	ptt := xc.LagMs
	weight := disagreementWeight
	if agreeing {
		ptt = (xc.LagMs + foot.MedianLagMs) / 2
		weight = 1.0
	}

	return models.ConsensusResult{
		PTTMs:             ptt,
		IQRMs:             foot.IQRMs,
		MethodAgreementMs: agreement,
		BeatCount:         foot.PairedBeatCount,
		Agreeing:          agreeing,
		Weight:            weight,
		Valid:             true,
	}
}

// SessionAggregate 多窗口会话级汇总
type SessionAggregate struct {
	PTTMs            float64 // 离群剔除后的加权中位数
	IQRMs            float64 // 接受窗口的四分位距
	StabilityMs      float64 // 接受窗口 PTT 标准差
	AgreeingFraction float64 // 一致窗口占比
	WindowCount      int     // 输入有效窗口数
	AcceptedCount    int     // 离群剔除后保留窗口数
	Valid            bool
}

// Aggregate 跨窗口会话汇总
//
// 先按中位数 ± 1.5·IQR 剔除离群窗口，再对剩余窗口做加权中位数。
// 全部窗口无效时返回 Valid=false 的空汇总。
func Aggregate(windows []models.ConsensusResult) SessionAggregate {
	var ptts []float64
	var weights []float64
	agreeing := 0
	for _, w := range windows {
		if !w.Valid {
			continue
		}
		ptts = append(ptts, w.PTTMs)
		weights = append(weights, w.Weight)
		if w.Agreeing {
			agreeing++
		}
	}

	if len(ptts) == 0 {
		return SessionAggregate{}
	}

	// 离群剔除
	med := dsp.Median(ptts)
	iqr := dsp.IQR(ptts)
	lo := med - 1.5*iqr
	hi := med + 1.5*iqr

	var accepted []float64
	var acceptedWeights []float64
	for i, p := range ptts {
		if p >= lo && p <= hi {
			accepted = append(accepted, p)
			acceptedWeights = append(acceptedWeights, weights[i])
		}
	}
	if len(accepted) == 0 {
		// IQR 为零且全部相等之外的退化场景：退回全部窗口
		accepted = ptts
		acceptedWeights = weights
	}

	return SessionAggregate{
		PTTMs:            weightedMedian(accepted, acceptedWeights),
		IQRMs:            dsp.IQR(accepted),
		StabilityMs:      dsp.Std(accepted),
		AgreeingFraction: float64(agreeing) / float64(len(ptts)),
		WindowCount:      len(ptts),
		AcceptedCount:    len(accepted),
		Valid:            true,
	}
}

// weightedMedian 加权中位数：按值排序后取累计权重过半的元素
func weightedMedian(values, weights []float64) float64 {
	type pair struct{ v, w float64 }
	pairs := make([]pair, len(values))
	total := 0.0
	for i := range values {
		pairs[i] = pair{values[i], weights[i]}
		total += weights[i]
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].v < pairs[j].v })

	cum := 0.0
	for _, p := range pairs {
		cum += p.w
		if cum >= total/2 {
			return p.v
		}
	}
	return pairs[len(pairs)-1].v
}
