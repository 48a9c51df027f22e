package consumer

import (
	"encoding/json"
	"testing"

	"vivopulse-ptt/internal/config"
	"vivopulse-ptt/internal/models"
	"vivopulse-ptt/internal/realtime"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupFrameConsumer(t *testing.T) (*FrameConsumer, *realtime.Hub) {
	t.Helper()
	cfg, err := config.Load()
	require.NoError(t, err)
	hub := realtime.NewHub(1200)
	return NewFrameConsumer(cfg, nil, hub, zap.NewNop()), hub
}

func frameBatchPayload(t *testing.T, batch models.FrameBatch) []byte {
	t.Helper()
	data, err := json.Marshal(batch)
	require.NoError(t, err)
	return data
}

func TestHandleMessage_AppendsToHub(t *testing.T) {
	c, hub := setupFrameConsumer(t)

	payload := frameBatchPayload(t, models.FrameBatch{
		DeviceID: "dev-1",
		Channel:  "face",
		Samples: []models.Sample{
			{TimestampNs: 0, Value: 0.5},
			{TimestampNs: 33_000_000, Value: 0.6},
		},
	})
	require.NoError(t, c.handleMessage("vivopulse/dev-1/frames", payload))

	face, finger, _ := hub.Snapshot("dev-1")
	assert.Len(t, face, 2)
	assert.Empty(t, finger)
}

func TestHandleMessage_DeviceIDFromTopic(t *testing.T) {
	c, hub := setupFrameConsumer(t)

	payload := frameBatchPayload(t, models.FrameBatch{
		Channel: "finger",
		Samples: []models.Sample{{TimestampNs: 0, Value: 0.5}},
	})
	require.NoError(t, c.handleMessage("vivopulse/dev-7/frames", payload))

	_, finger, _ := hub.Snapshot("dev-7")
	assert.Len(t, finger, 1)
}

func TestHandleMessage_InvalidTopic(t *testing.T) {
	c, _ := setupFrameConsumer(t)

	payload := frameBatchPayload(t, models.FrameBatch{
		DeviceID: "dev-1",
		Channel:  "face",
		Samples:  []models.Sample{{Value: 1}},
	})
	assert.Error(t, c.handleMessage("vivopulse", payload))
}

func TestHandleMessage_InvalidPayload(t *testing.T) {
	c, _ := setupFrameConsumer(t)
	assert.Error(t, c.handleMessage("vivopulse/dev-1/frames", []byte("{bad")))
}

func TestHandleMessage_EmptyBatchIgnored(t *testing.T) {
	c, hub := setupFrameConsumer(t)

	payload := frameBatchPayload(t, models.FrameBatch{
		DeviceID: "dev-1",
		Channel:  "face",
	})
	require.NoError(t, c.handleMessage("vivopulse/dev-1/frames", payload))

	face, _, _ := hub.Snapshot("dev-1")
	assert.Empty(t, face)
}
