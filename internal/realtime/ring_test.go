package realtime

import (
	"testing"
	"time"

	"vivopulse-ptt/internal/models"

	"github.com/stretchr/testify/assert"
)

func sample(i int) models.Sample {
	return models.Sample{TimestampNs: int64(i) * 10_000_000, Value: float64(i)}
}

func TestRingBuffer_AppendAndSnapshot(t *testing.T) {
	r := NewRingBuffer(8)
	for i := 0; i < 5; i++ {
		r.Append(sample(i))
	}

	assert.Equal(t, 5, r.Len())
	snap := r.Snapshot()
	assert.Len(t, snap, 5)
	for i, s := range snap {
		assert.Equal(t, float64(i), s.Value)
	}
}

func TestRingBuffer_WraparoundKeepsNewest(t *testing.T) {
	r := NewRingBuffer(4)
	for i := 0; i < 10; i++ {
		r.Append(sample(i))
	}

	assert.Equal(t, 4, r.Len())
	snap := r.Snapshot()
	assert.Len(t, snap, 4)
	// 覆盖后只保留最新的 4 个样本，且仍按时间顺序
	for i, s := range snap {
		assert.Equal(t, float64(6+i), s.Value)
	}
}

func TestRingBuffer_SnapshotIsCopy(t *testing.T) {
	r := NewRingBuffer(4)
	r.Append(sample(1), sample(2))

	snap := r.Snapshot()
	snap[0].Value = 999

	again := r.Snapshot()
	assert.Equal(t, 1.0, again[0].Value)
}

func TestRingBuffer_BatchLargerThanCapacity(t *testing.T) {
	r := NewRingBuffer(3)
	batch := make([]models.Sample, 7)
	for i := range batch {
		batch[i] = sample(i)
	}
	r.Append(batch...)

	snap := r.Snapshot()
	assert.Len(t, snap, 3)
	assert.Equal(t, 4.0, snap[0].Value)
	assert.Equal(t, 6.0, snap[2].Value)
}

func TestRingBuffer_ReaderWaitsOutInProgressWrite(t *testing.T) {
	// 写入用序号奇偶表示进行中：读取方在写入期间不返回撕裂快照，
	// 写入完成后立即拿到一致副本；写路径自身不持有任何锁
	r := NewRingBuffer(4)
	r.Append(sample(1), sample(2))

	r.seq.Add(1) // 序号置为奇数，模拟写入进行中
	done := make(chan models.SampleStream, 1)
	go func() { done <- r.Snapshot() }()

	select {
	case <-done:
		t.Fatal("snapshot returned while a write was in progress")
	case <-time.After(20 * time.Millisecond):
	}

	r.seq.Add(1) // 写入完成
	select {
	case snap := <-done:
		assert.Len(t, snap, 2)
		assert.Equal(t, 1.0, snap[0].Value)
	case <-time.After(time.Second):
		t.Fatal("snapshot never completed after write finished")
	}
}

func TestRingBuffer_Reset(t *testing.T) {
	r := NewRingBuffer(4)
	r.Append(sample(1), sample(2))
	r.Reset()

	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Snapshot())
}

func TestHub_AppendRoutesByChannel(t *testing.T) {
	h := NewHub(16)
	h.Append(&models.FrameBatch{
		DeviceID: "dev-1",
		Channel:  "face",
		Samples:  []models.Sample{sample(1), sample(2)},
	})
	h.Append(&models.FrameBatch{
		DeviceID: "dev-1",
		Channel:  "finger",
		Samples:  []models.Sample{sample(3)},
		Aux:      models.AuxMetrics{AccelRMS: 0.2},
	})
	// 未知通道被忽略
	h.Append(&models.FrameBatch{
		DeviceID: "dev-1",
		Channel:  "wrist",
		Samples:  []models.Sample{sample(4)},
	})

	face, finger, aux := h.Snapshot("dev-1")
	assert.Len(t, face, 2)
	assert.Len(t, finger, 1)
	assert.Equal(t, 0.2, aux.AccelRMS)

	assert.Equal(t, []string{"dev-1"}, h.DeviceIDs())
}

func TestHub_UnknownDevice(t *testing.T) {
	h := NewHub(16)
	face, finger, _ := h.Snapshot("missing")
	assert.Empty(t, face)
	assert.Empty(t, finger)
}
