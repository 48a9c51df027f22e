// Package repository 提供 PTT 会话结果的 PostgreSQL 持久化
package repository

import (
	"database/sql"
	"fmt"

	"vivopulse-ptt/internal/models"

	"go.uber.org/zap"
)

// SessionRepository 会话结果仓库
//
// 表结构：
//   - ptt_sessions：会话级结果（一行一次采集会话）
//   - ptt_sync_segments：会话的 GoodSync 段（0..n 行）
type SessionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSessionRepository 创建会话仓库
func NewSessionRepository(db *sql.DB, logger *zap.Logger) *SessionRepository {
	return &SessionRepository{
		db:     db,
		logger: logger,
	}
}

// InsertSession 写入会话结果及其 GoodSync 段（单事务）
func (r *SessionRepository) InsertSession(tenantID string, result *models.SessionResult) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO ptt_sessions (
			session_id, tenant_id, device_id,
			ptt_ms, correlation_score, stability_ms, confidence,
			face_sqi, finger_sqi,
			window_count, valid_window_count, drift_ms_per_sec,
			report_status, processed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, to_timestamp($14))
	`,
		result.SessionID, tenantID, result.DeviceID,
		result.PTTMs, result.CorrelationScore, result.StabilityMs, result.Confidence,
		result.FaceQuality.CompositeSQI, result.FingerQuality.CompositeSQI,
		result.WindowCount, result.ValidWindowCount, result.DriftMsPerSec,
		string(result.Report.Status), result.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	for i, seg := range result.SyncSegments {
		_, err = tx.Exec(`
			INSERT INTO ptt_sync_segments (
				session_id, segment_index,
				start_ms, end_ms, correlation,
				heart_rate_delta_bpm, sqi_face, sqi_finger
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`,
			result.SessionID, i,
			seg.StartMs, seg.EndMs, seg.Correlation,
			seg.HeartRateDeltaBpm, seg.SQIFace, seg.SQIFinger,
		)
		if err != nil {
			return fmt.Errorf("failed to insert sync segment %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session: %w", err)
	}

	r.logger.Debug("Inserted session result",
		zap.String("session_id", result.SessionID),
		zap.String("device_id", result.DeviceID),
		zap.Int("segment_count", len(result.SyncSegments)),
	)
	return nil
}

// GetLatestByDevice 查询设备最近一次会话结果（含 GoodSync 段）
func (r *SessionRepository) GetLatestByDevice(tenantID, deviceID string) (*models.SessionResult, error) {
	query := `
		SELECT session_id, device_id,
		       ptt_ms, correlation_score, stability_ms, confidence,
		       face_sqi, finger_sqi,
		       window_count, valid_window_count, drift_ms_per_sec,
		       report_status, EXTRACT(EPOCH FROM processed_at)::bigint
		FROM ptt_sessions
		WHERE tenant_id = $1 AND device_id = $2
		ORDER BY processed_at DESC
		LIMIT 1
	`

	result := &models.SessionResult{}
	var reportStatus string
	err := r.db.QueryRow(query, tenantID, deviceID).Scan(
		&result.SessionID,
		&result.DeviceID,
		&result.PTTMs,
		&result.CorrelationScore,
		&result.StabilityMs,
		&result.Confidence,
		&result.FaceQuality.CompositeSQI,
		&result.FingerQuality.CompositeSQI,
		&result.WindowCount,
		&result.ValidWindowCount,
		&result.DriftMsPerSec,
		&reportStatus,
		&result.ProcessedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("no session found for device: %s", deviceID)
		}
		return nil, fmt.Errorf("failed to query latest session: %w", err)
	}
	result.Report.Status = models.ReportStatus(reportStatus)
	if result.Report.Status == models.ReportReported {
		result.Report.PTTMs = result.PTTMs
	}

	segments, err := r.getSegments(result.SessionID)
	if err != nil {
		return nil, err
	}
	result.SyncSegments = segments

	return result, nil
}

func (r *SessionRepository) getSegments(sessionID string) ([]models.SyncSegment, error) {
	rows, err := r.db.Query(`
		SELECT start_ms, end_ms, correlation,
		       heart_rate_delta_bpm, sqi_face, sqi_finger
		FROM ptt_sync_segments
		WHERE session_id = $1
		ORDER BY segment_index
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync segments: %w", err)
	}
	defer rows.Close()

	var segments []models.SyncSegment
	for rows.Next() {
		var seg models.SyncSegment
		if err := rows.Scan(
			&seg.StartMs, &seg.EndMs, &seg.Correlation,
			&seg.HeartRateDeltaBpm, &seg.SQIFace, &seg.SQIFinger,
		); err != nil {
			return nil, fmt.Errorf("failed to scan sync segment: %w", err)
		}
		segments = append(segments, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sync segments: %w", err)
	}
	return segments, nil
}
