// Package models 定义双通道脉搏传导时间（PTT）估计的核心数据模型
//
// 数据流：
// - SampleStream（原始采集流）→ UnifiedTimeline（统一时间轴）→ ConditionedSignal（滤波归一化信号）
// - 每个分析窗口产生 ChannelQuality / TimingEstimate / ConsensusResult
// - 会话级汇总为 SessionResult，下游（展示层、持久化层）按值消费，不再修改
package models

// Sample 单个采样点：纳秒时间戳 + 光强度标量
type Sample struct {
	TimestampNs int64   `json:"timestamp_ns"`
	Value       float64 `json:"value"`
}

// SampleStream 单通道的有序采样序列
// 不变量：时间戳严格递增（违例计数，不致命）；核心只读，不修改采集方提供的数据
type SampleStream []Sample

// Values 提取值序列副本
func (s SampleStream) Values() []float64 {
	out := make([]float64, len(s))
	for i, sample := range s {
		out[i] = sample.Value
	}
	return out
}

// UnifiedTimeline 统一时间轴
// 由 TimestampSynchronizer 在会话开始时一次性创建，之后不可变
type UnifiedTimeline struct {
	RateHz      float64   `json:"rate_hz"`       // 重采样目标频率
	StartNs     int64     `json:"start_ns"`      // 重叠区间起点（纳秒）
	TimestampMs []float64 `json:"timestamp_ms"`  // 相对起点的统一时间戳（毫秒）
	Face        []float64 `json:"face"`          // 近端通道插值后的值
	Finger      []float64 `json:"finger"`        // 远端通道插值后的值

	// 同步诊断信息
	FaceIntervalMs   float64 `json:"face_interval_ms"`   // 近端通道帧间隔中位数
	FingerIntervalMs float64 `json:"finger_interval_ms"` // 远端通道帧间隔中位数
	DriftMsPerSec    float64 `json:"drift_ms_per_sec"`   // 双流时钟漂移估计
	FaceViolations   int     `json:"face_violations"`    // 近端非递增时间戳对计数
	FingerViolations int     `json:"finger_violations"`  // 远端非递增时间戳对计数
}

// ChannelQuality 单通道质量评估（按分析窗口重算，不持久化）
type ChannelQuality struct {
	SNRScore     float64 `json:"snr_score"`     // 带内信噪比得分（0-100）
	Penalty      float64 `json:"penalty"`       // 通道特有惩罚（近端:运动，远端:饱和）
	AuxPenalty   float64 `json:"aux_penalty"`   // 共享惩罚（加速度计 RMS）
	CompositeSQI float64 `json:"composite_sqi"` // 综合 SQI（0-100）
}

// TimingEstimate 互相关法的窗口级时延估计
type TimingEstimate struct {
	LagMs            float64 `json:"lag_ms"`
	CorrelationScore float64 `json:"correlation_score"` // 0-1
	PeakSharpness    float64 `json:"peak_sharpness"`    // 峰值锐度（置信度代理）
}

// FootEstimate 逐搏足点配对法的窗口级时延估计
// Valid=false 表示零心搏/零有效配对（质量问题，不是错误）
type FootEstimate struct {
	MedianLagMs     float64 `json:"median_lag_ms"`
	IQRMs           float64 `json:"iqr_ms"`
	PairedBeatCount int     `json:"paired_beat_count"`
	Valid           bool    `json:"valid"`
}

// ConsensusResult 双方法共识后的窗口级结果
type ConsensusResult struct {
	PTTMs             float64 `json:"ptt_ms"`
	IQRMs             float64 `json:"iqr_ms"`
	MethodAgreementMs float64 `json:"method_agreement_ms"` // |互相关lag - 足点中位lag|
	BeatCount         int     `json:"beat_count"`
	Agreeing          bool    `json:"agreeing"` // 是否满足 20ms 一致性容差
	Weight            float64 `json:"weight"`   // 会话汇总权重（不一致时降权，不丢弃）
	Valid             bool    `json:"valid"`
}

// SyncSegment GoodSync 段：双通道同时满足多指标门限的最大闭合区间
// 由 SyncWindowDetector 在会话末尾创建，创建后不再修改
type SyncSegment struct {
	StartMs           float64 `json:"start_ms"`
	EndMs             float64 `json:"end_ms"`
	Correlation       float64 `json:"correlation"`
	HeartRateDeltaBpm float64 `json:"heart_rate_delta_bpm"`
	SQIFace           float64 `json:"sqi_face"`
	SQIFinger         float64 `json:"sqi_finger"`
}

// ReportStatus PTT 报告状态
type ReportStatus string

const (
	// ReportReported 置信度达标，报告数值
	ReportReported ReportStatus = "reported"
	// ReportWithheld 置信度不足，隐藏数值并给出改进建议
	ReportWithheld ReportStatus = "withheld"
)

// PTTReport 带标签的报告结果
// "没有数据"与"因低置信度被抑制"语义不同，必须显式区分（不用裸指针表达）
type PTTReport struct {
	Status   ReportStatus `json:"status"`
	PTTMs    float64      `json:"ptt_ms,omitempty"`
	Guidance []string     `json:"guidance,omitempty"` // 按优先级排序的改进建议
}

// SessionResult 会话级顶层结果
// 核心在单次处理调用内持有，按值交给下游
type SessionResult struct {
	SessionID        string         `json:"session_id"`
	DeviceID         string         `json:"device_id"`
	PTTMs            float64        `json:"ptt_ms"`
	CorrelationScore float64        `json:"correlation_score"`
	StabilityMs      float64        `json:"stability_ms"` // 窗口间 PTT 标准差
	Confidence       float64        `json:"confidence"`   // 0-1
	FaceQuality      ChannelQuality `json:"face_quality"`
	FingerQuality    ChannelQuality `json:"finger_quality"`
	SyncSegments     []SyncSegment  `json:"sync_segments"`
	WindowCount      int            `json:"window_count"`
	ValidWindowCount int            `json:"valid_window_count"`
	DriftMsPerSec    float64        `json:"drift_ms_per_sec"`
	Report           PTTReport      `json:"report"`
	ProcessedAt      int64          `json:"processed_at"` // Unix 秒
}

// AuxMetrics 采集方提供的辅助质量信号
// 核心不关心其计算来源，只作为纯数值输入
type AuxMetrics struct {
	MotionMagnitude    float64 `json:"motion_magnitude"`    // 近端 ROI 光学位移 RMS
	SaturationFraction float64 `json:"saturation_fraction"` // 远端饱和像素占比 0-1
	AccelRMS           float64 `json:"accel_rms"`           // 加速度计 RMS（可选，0 表示缺失）
}
