// Package session 将完整的双通道采集处理为会话级 PTT 结果
//
// 处理流程：
// 1. 时间戳同步与统一时间轴重采样
// 2. 每通道去趋势/带通/归一化；SQI 处于边界带时条件小波去噪
// 3. 逐分析窗口：互相关 + 足点两法估计 → 一致性共识
// 4. 会话级稳健汇总（加权中位数 + IQR 离群剔除）
// 5. GoodSync 滚动窗口检测与段合并
// 6. 置信度门控与报告生成
//
// 纯同步计算：无 I/O，无跨调用共享可变状态；坏但合理的输入（噪声、
// 低质量信号）不报错，返回带 Withheld 报告的结构化结果。
package session

import (
	"time"

	"vivopulse-ptt/internal/confidence"
	"vivopulse-ptt/internal/config"
	"vivopulse-ptt/internal/consensus"
	"vivopulse-ptt/internal/dsp"
	"vivopulse-ptt/internal/models"
	"vivopulse-ptt/internal/quality"
	"vivopulse-ptt/internal/syncwindow"
	"vivopulse-ptt/internal/timeline"
	"vivopulse-ptt/internal/timing"

	"go.uber.org/zap"
)

// Processor 会话处理器
type Processor struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewProcessor 创建会话处理器
func NewProcessor(cfg *config.Config, logger *zap.Logger) *Processor {
	return &Processor{
		cfg:    cfg,
		logger: logger,
	}
}

// Process 处理一次完整采集
//
// 硬错误只来自真正畸形的输入（空流、无时间交集、样本总数不足）；
// 低质量输入返回置信度偏低/报告被抑制的正常结果。
func (p *Processor) Process(sessionID, deviceID string, face, finger models.SampleStream, aux models.AuxMetrics) (*models.SessionResult, error) {
	// 1. 同步到统一时间轴
	ut, err := timeline.Synchronize(face, finger, timeline.Config{
		TargetRateHz:   p.cfg.Pipeline.TargetRateHz,
		DriftWindowSec: p.cfg.Pipeline.DriftWindowSec,
	})
	if err != nil {
		return nil, err
	}

	rate := ut.RateHz
	dspCfg := dsp.Config{
		RateHz:          rate,
		DetrendCutoffHz: p.cfg.Pipeline.DetrendCutoffHz,
		BandLowHz:       p.cfg.Pipeline.BandLowHz,
		BandHighHz:      p.cfg.Pipeline.BandHighHz,
	}
	qualityCfg := quality.DefaultConfig(rate)
	qualityCfg.BandLowHz = p.cfg.Pipeline.BandLowHz
	qualityCfg.BandHighHz = p.cfg.Pipeline.BandHighHz
	timingCfg := timing.Config{
		RateHz:       rate,
		MaxLagMs:     p.cfg.Pipeline.MaxLagMs,
		MinPairLagMs: p.cfg.Pipeline.MinPairLagMs,
		MaxPairLagMs: p.cfg.Pipeline.MaxPairLagMs,
	}

	// 2. 信号调理 + 条件去噪
	faceSig := dsp.Condition(ut.Face, dspCfg)
	fingerSig := dsp.Condition(ut.Finger, dspCfg)

	if len(faceSig) < 100 {
		return nil, timing.ErrInsufficientSamples
	}

	faceSig, faceQuality := p.maybeDenoise(faceSig, quality.ChannelFace, aux, qualityCfg)
	fingerSig, fingerQuality := p.maybeDenoise(fingerSig, quality.ChannelFinger, aux, qualityCfg)

	// 3. 逐分析窗口双法估计 + 共识
	consensusCfg := consensus.Config{AgreementMs: p.cfg.Pipeline.AgreementMs}
	winLen := int(p.cfg.Pipeline.WindowSec * rate)
	hop := int(p.cfg.Pipeline.HopSec * rate)
	if winLen < 100 {
		winLen = 100
	}
	if hop < 1 {
		hop = winLen
	}

	var windowResults []models.ConsensusResult
	var corrSum, sharpSum float64
	validWindows := 0
	totalWindows := 0

	for start := 0; start+winLen <= len(faceSig) || start == 0; start += hop {
		end := start + winLen
		if end > len(faceSig) {
			end = len(faceSig)
		}
		if end-start < 100 {
			break
		}
		totalWindows++

		xc, err := timing.CrossCorrelate(faceSig[start:end], fingerSig[start:end], timingCfg)
		if err != nil {
			continue
		}
		foot := timing.FootToFoot(faceSig[start:end], fingerSig[start:end], timingCfg)
		windowResults = append(windowResults, consensus.Combine(xc, foot, consensusCfg))

		corrSum += xc.CorrelationScore
		sharpSum += xc.PeakSharpness
		validWindows++

		if end == len(faceSig) {
			break
		}
	}

	agg := consensus.Aggregate(windowResults)

	meanCorr, meanSharp := 0.0, 0.0
	if validWindows > 0 {
		meanCorr = corrSum / float64(validWindows)
		meanSharp = sharpSum / float64(validWindows)
	}

	// 4. GoodSync 段检测
	segments := p.detectSyncSegments(faceSig, fingerSig, aux, timingCfg, qualityCfg)

	// 5. 置信度与报告
	// 方法不一致的窗口占比越高，整体置信度越低
	in := confidence.Inputs{
		SQIFace:       faceQuality.CompositeSQI,
		SQIFinger:     fingerQuality.CompositeSQI,
		Correlation:   meanCorr,
		PeakSharpness: meanSharp,
		PTTMs:         agg.PTTMs,
	}
	conf := confidence.Compute(in)
	if agg.Valid {
		conf *= 0.8 + 0.2*agg.AgreeingFraction
	} else {
		conf = 0
	}
	confCfg := confidence.Config{ReportThreshold: p.cfg.Confidence.ReportThreshold}
	report := confidence.ReportAt(conf, in, confCfg)

	result := &models.SessionResult{
		SessionID:        sessionID,
		DeviceID:         deviceID,
		PTTMs:            agg.PTTMs,
		CorrelationScore: meanCorr,
		StabilityMs:      agg.StabilityMs,
		Confidence:       conf,
		FaceQuality:      faceQuality,
		FingerQuality:    fingerQuality,
		SyncSegments:     segments,
		WindowCount:      totalWindows,
		ValidWindowCount: agg.WindowCount,
		DriftMsPerSec:    ut.DriftMsPerSec,
		Report:           report,
		ProcessedAt:      time.Now().Unix(),
	}

	p.logger.Info("Session processed",
		zap.String("session_id", sessionID),
		zap.String("device_id", deviceID),
		zap.Float64("ptt_ms", result.PTTMs),
		zap.Float64("correlation", result.CorrelationScore),
		zap.Float64("confidence", result.Confidence),
		zap.String("report_status", string(report.Status)),
		zap.Int("windows", totalWindows),
		zap.Int("sync_segments", len(segments)),
	)

	return result, nil
}

// maybeDenoise 条件小波去噪
// 综合 SQI 落在边界带内才去噪；去噪后重新归一化并重算质量
func (p *Processor) maybeDenoise(sig []float64, ch quality.Channel, aux models.AuxMetrics, qualityCfg quality.Config) ([]float64, models.ChannelQuality) {
	q := quality.Evaluate(sig, ch, aux, qualityCfg)

	lo, hi := p.cfg.Pipeline.DenoiseSQILow, p.cfg.Pipeline.DenoiseSQIHigh
	if q.CompositeSQI < lo || q.CompositeSQI > hi {
		return sig, q
	}

	denoised := dsp.Normalize(dsp.Denoise(sig, dsp.DefaultDenoiseConfig()))
	q2 := quality.Evaluate(denoised, ch, aux, qualityCfg)

	p.logger.Debug("Applied conditional wavelet denoising",
		zap.Int("channel", int(ch)),
		zap.Float64("sqi_before", q.CompositeSQI),
		zap.Float64("sqi_after", q2.CompositeSQI),
	)
	return denoised, q2
}

// detectSyncSegments 在调理后的信号上做 GoodSync 滚动窗口检测
func (p *Processor) detectSyncSegments(faceSig, fingerSig []float64, aux models.AuxMetrics, timingCfg timing.Config, qualityCfg quality.Config) []models.SyncSegment {
	rate := timingCfg.RateHz
	gsCfg := syncwindow.Config{
		WindowSec:      p.cfg.GoodSync.WindowSec,
		HopSec:         p.cfg.GoodSync.HopSec,
		MinCorrelation: p.cfg.GoodSync.MinCorrelation,
		MaxHRDeltaBpm:  p.cfg.GoodSync.MaxHRDeltaBpm,
		MaxFWHMDiffMs:  p.cfg.GoodSync.MaxFWHMDiffMs,
		MinSQI:         p.cfg.GoodSync.MinSQI,
		MaxAccelRMS:    p.cfg.GoodSync.MaxAccelRMS,
		GapCloseSec:    p.cfg.GoodSync.GapCloseSec,
		MinSegmentSec:  p.cfg.GoodSync.MinSegmentSec,
	}

	winLen := int(gsCfg.WindowSec * rate)
	hop := int(gsCfg.HopSec * rate)
	if winLen < 100 {
		winLen = 100
	}
	if hop < 1 {
		hop = winLen
	}

	var windows []syncwindow.WindowMetrics
	for start := 0; start+winLen <= len(faceSig); start += hop {
		end := start + winLen
		faceWin := faceSig[start:end]
		fingerWin := fingerSig[start:end]

		m := syncwindow.WindowMetrics{
			StartMs:  float64(start) * 1000 / rate,
			EndMs:    float64(end) * 1000 / rate,
			AccelRMS: aux.AccelRMS,
		}

		if xc, err := timing.CrossCorrelate(faceWin, fingerWin, timingCfg); err == nil {
			m.Correlation = xc.CorrelationScore
		}
		m.HRFaceBpm = timing.EstimateHeartRate(faceWin, timingCfg)
		m.HRFingerBpm = timing.EstimateHeartRate(fingerWin, timingCfg)

		fwFace := timing.MeanFWHM(faceWin, timingCfg)
		fwFinger := timing.MeanFWHM(fingerWin, timingCfg)
		if fwFace > 0 && fwFinger > 0 {
			m.FWHMDiffMs = abs(fwFace - fwFinger)
		} else {
			// 无完整搏动形态：视为脉宽不一致
			m.FWHMDiffMs = gsCfg.MaxFWHMDiffMs + 1
		}

		m.SQIFace = quality.Evaluate(faceWin, quality.ChannelFace, aux, qualityCfg).CompositeSQI
		m.SQIFinger = quality.Evaluate(fingerWin, quality.ChannelFinger, aux, qualityCfg).CompositeSQI

		windows = append(windows, m)
	}

	return syncwindow.DetectSegments(windows, gsCfg)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
