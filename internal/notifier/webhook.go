// Package notifier 把完成的会话结果推送给下游 Webhook
package notifier

import (
	"context"
	"fmt"
	"time"

	"vivopulse-ptt/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Client Webhook 通知客户端
// URL 为空时禁用，所有调用直接返回 nil
type Client struct {
	httpClient *resty.Client
	url        string
	logger     *zap.Logger
}

// NewClient 创建通知客户端
func NewClient(url string, timeoutSec int, logger *zap.Logger) *Client {
	if timeoutSec <= 0 {
		timeoutSec = 10
	}

	client := resty.New().
		SetTimeout(time.Duration(timeoutSec) * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{
		httpClient: client,
		url:        url,
		logger:     logger,
	}
}

// Enabled 是否配置了 Webhook 地址
func (c *Client) Enabled() bool {
	return c.url != ""
}

// NotifySessionResult 推送会话结果
func (c *Client) NotifySessionResult(ctx context.Context, result *models.SessionResult) error {
	if !c.Enabled() {
		return nil
	}

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(result).
		Post(c.url)

	if err != nil {
		c.logger.Error("Webhook call failed",
			zap.String("session_id", result.SessionID),
			zap.Error(err),
		)
		return fmt.Errorf("failed to call webhook: %w", err)
	}

	if resp.IsError() {
		c.logger.Error("Webhook returned error status",
			zap.String("session_id", result.SessionID),
			zap.Int("status_code", resp.StatusCode()),
		)
		return fmt.Errorf("webhook error status: %d", resp.StatusCode())
	}

	c.logger.Debug("Notified session result",
		zap.String("session_id", result.SessionID),
		zap.String("device_id", result.DeviceID),
	)
	return nil
}
