package config

import (
	"os"
	"strconv"

	"vivopulse-ptt/internal/common/database"
	"vivopulse-ptt/internal/common/mqtt"
	"vivopulse-ptt/internal/common/redis"
)

// Config PTT 估计服务配置
type Config struct {
	Database database.Config
	Redis    redis.Config
	MQTT     mqtt.Config

	// 摄入配置
	Intake struct {
		Stream        string // 完整采集输入流，如 "ptt:capture:stream"
		ConsumerGroup string
		ConsumerName  string
		BatchSize     int64
		FrameTopic    string // 实时帧 MQTT 主题，如 "vivopulse/+/frames"
	}

	// 核心管线配置
	Pipeline struct {
		TargetRateHz     float64 // 重采样目标频率（默认 100）
		DriftWindowSec   float64 // 漂移估计窗口（默认 5）
		BandLowHz        float64 // 带通下边沿（默认 0.7）
		BandHighHz       float64 // 带通上边沿（默认 4.0）
		DetrendCutoffHz  float64 // 去趋势高通截止（默认 0.5）
		DenoiseSQILow    float64 // 小波去噪 SQI 边界带下限（默认 40）
		DenoiseSQIHigh   float64 // 小波去噪 SQI 边界带上限（默认 80）
		MaxLagMs         float64 // 互相关最大时延（默认 ±200）
		AgreementMs      float64 // 双方法一致性容差（默认 20）
		WindowSec        float64 // PTT 分析窗口长度（默认 10）
		HopSec           float64 // PTT 分析窗口步进（默认 5）
		MinPairLagMs     float64 // 足点配对合理下限（默认 50）
		MaxPairLagMs     float64 // 足点配对合理上限（默认 500）
	}

	// GoodSync 检测配置
	GoodSync struct {
		WindowSec      float64 // 滚动窗口长度（默认 2）
		HopSec         float64 // 滚动窗口步进（默认 1）
		MinCorrelation float64 // 跨通道相关下限（默认 0.70）
		MaxHRDeltaBpm  float64 // 心率差上限（默认 5）
		MaxFWHMDiffMs  float64 // 脉宽差上限（默认 120）
		MinSQI         float64 // 双通道 SQI 下限（默认 70）
		MaxAccelRMS    float64 // 运动传感器 RMS 门限（0 表示禁用）
		GapCloseSec    float64 // 段合并间隙上限（默认 1）
		MinSegmentSec  float64 // 最短段时长（默认 5）
	}

	// 置信度配置
	Confidence struct {
		ReportThreshold float64 // 报告阈值（默认 0.60，含边界）
	}

	// 近实时配置
	Realtime struct {
		RefreshHz     float64 // 刷新频率（默认 2，上限 4）
		BufferSec     float64 // 环形缓冲时长（默认 12）
		StatusTTLSec  int     // 实时状态缓存 TTL（默认 10）
	}

	// 缓存配置
	Cache struct {
		ResultKeyPrefix   string // 会话结果缓存键前缀，如 "vivopulse:device:"
		ResultTTLSec      int    // 结果缓存 TTL（秒），默认 300
		RealtimeKeyPrefix string // 实时状态缓存键前缀
	}

	// 通知配置
	Notifier struct {
		URL        string // 为空时禁用
		TimeoutSec int
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "vivopulse")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = 0

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "vivopulse-ptt")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = 1

	cfg.Intake.Stream = getEnv("STREAM_INPUT", "ptt:capture:stream")
	cfg.Intake.ConsumerGroup = getEnv("CONSUMER_GROUP", "ptt-engine-group")
	cfg.Intake.ConsumerName = getEnv("CONSUMER_NAME", "ptt-engine-1")
	cfg.Intake.BatchSize = 10
	cfg.Intake.FrameTopic = getEnv("FRAME_TOPIC", "vivopulse/+/frames")

	cfg.Pipeline.TargetRateHz = getEnvFloat("TARGET_RATE_HZ", 100)
	cfg.Pipeline.DriftWindowSec = getEnvFloat("DRIFT_WINDOW_SEC", 5)
	cfg.Pipeline.BandLowHz = getEnvFloat("BAND_LOW_HZ", 0.7)
	cfg.Pipeline.BandHighHz = getEnvFloat("BAND_HIGH_HZ", 4.0)
	cfg.Pipeline.DetrendCutoffHz = getEnvFloat("DETREND_CUTOFF_HZ", 0.5)
	cfg.Pipeline.DenoiseSQILow = getEnvFloat("DENOISE_SQI_LOW", 40)
	cfg.Pipeline.DenoiseSQIHigh = getEnvFloat("DENOISE_SQI_HIGH", 80)
	cfg.Pipeline.MaxLagMs = getEnvFloat("XCORR_MAX_LAG_MS", 200)
	cfg.Pipeline.AgreementMs = getEnvFloat("METHOD_AGREEMENT_MS", 20)
	cfg.Pipeline.WindowSec = getEnvFloat("ANALYSIS_WINDOW_SEC", 10)
	cfg.Pipeline.HopSec = getEnvFloat("ANALYSIS_HOP_SEC", 5)
	cfg.Pipeline.MinPairLagMs = 50
	cfg.Pipeline.MaxPairLagMs = 500

	cfg.GoodSync.WindowSec = getEnvFloat("GOODSYNC_WINDOW_SEC", 2)
	cfg.GoodSync.HopSec = getEnvFloat("GOODSYNC_HOP_SEC", 1)
	cfg.GoodSync.MinCorrelation = getEnvFloat("GOODSYNC_MIN_CORRELATION", 0.70)
	cfg.GoodSync.MaxHRDeltaBpm = getEnvFloat("GOODSYNC_MAX_HR_DELTA_BPM", 5)
	cfg.GoodSync.MaxFWHMDiffMs = getEnvFloat("GOODSYNC_MAX_FWHM_DIFF_MS", 120)
	cfg.GoodSync.MinSQI = getEnvFloat("GOODSYNC_MIN_SQI", 70)
	cfg.GoodSync.MaxAccelRMS = getEnvFloat("GOODSYNC_MAX_ACCEL_RMS", 0)
	cfg.GoodSync.GapCloseSec = getEnvFloat("GOODSYNC_GAP_CLOSE_SEC", 1)
	cfg.GoodSync.MinSegmentSec = getEnvFloat("GOODSYNC_MIN_SEGMENT_SEC", 5)

	cfg.Confidence.ReportThreshold = getEnvFloat("CONFIDENCE_THRESHOLD", 0.60)

	cfg.Realtime.RefreshHz = getEnvFloat("REALTIME_REFRESH_HZ", 2)
	if cfg.Realtime.RefreshHz <= 0 {
		cfg.Realtime.RefreshHz = 2 // 非正值无法驱动刷新定时器，回退默认
	}
	if cfg.Realtime.RefreshHz > 4 {
		cfg.Realtime.RefreshHz = 4 // 刷新频率策略上限
	}
	cfg.Realtime.BufferSec = getEnvFloat("REALTIME_BUFFER_SEC", 12)
	cfg.Realtime.StatusTTLSec = getEnvInt("REALTIME_STATUS_TTL", 10)

	cfg.Cache.ResultKeyPrefix = getEnv("CACHE_RESULT_PREFIX", "vivopulse:device:")
	cfg.Cache.ResultTTLSec = getEnvInt("CACHE_RESULT_TTL", 300)
	cfg.Cache.RealtimeKeyPrefix = getEnv("CACHE_REALTIME_PREFIX", "vivopulse:device:")

	cfg.Notifier.URL = getEnv("NOTIFY_URL", "")
	cfg.Notifier.TimeoutSec = getEnvInt("NOTIFY_TIMEOUT_SEC", 10)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
