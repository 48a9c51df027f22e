package models

// CaptureMessage ptt:capture:stream 消息格式
// 采集端在一次采集结束后发布完整的双通道数据
type CaptureMessage struct {
	DeviceID   string     `json:"device_id"`
	TenantID   string     `json:"tenant_id"`
	CapturedAt int64      `json:"captured_at"` // Unix 秒
	Face       []Sample   `json:"face"`
	Finger     []Sample   `json:"finger"`
	Aux        AuxMetrics `json:"aux"`
}

// FrameBatch MQTT 实时帧批次（近实时路径）
// 采集端按小批量（通常 <1s）推送，追加到设备的环形缓冲
type FrameBatch struct {
	DeviceID string     `json:"device_id"`
	Channel  string     `json:"channel"` // "face" 或 "finger"
	Samples  []Sample   `json:"samples"`
	Aux      AuxMetrics `json:"aux"`
}

// ChannelStatus 单通道实时状态
type ChannelStatus string

const (
	ChannelStatusGood     ChannelStatus = "good"
	ChannelStatusMarginal ChannelStatus = "marginal"
	ChannelStatusPoor     ChannelStatus = "poor"
	ChannelStatusNoSignal ChannelStatus = "no_signal"
)

// RealtimeStatus 近实时刷新输出（用于周期性展示，不持久化）
type RealtimeStatus struct {
	DeviceID     string        `json:"device_id"`
	Timestamp    int64         `json:"timestamp"` // Unix 秒
	FaceStatus   ChannelStatus `json:"face_status"`
	FingerStatus ChannelStatus `json:"finger_status"`
	FaceSQI      float64       `json:"face_sqi"`
	FingerSQI    float64       `json:"finger_sqi"`
	Correlation  float64       `json:"correlation"`
	Tip          string        `json:"tip,omitempty"` // 至多一条改进提示
}
