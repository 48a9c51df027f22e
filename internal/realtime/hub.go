package realtime

import (
	"sync"
	"sync/atomic"

	"vivopulse-ptt/internal/models"
)

// deviceBuffers 单个设备的双通道缓冲与辅助指标
// 辅助指标整体原子替换，与环形缓冲一样不在写路径上加锁
type deviceBuffers struct {
	face   *RingBuffer
	finger *RingBuffer
	aux    atomic.Pointer[models.AuxMetrics]
}

// Hub 按设备维护实时帧缓冲
// MQTT 消费者写入，监视器周期性读取
type Hub struct {
	mu       sync.RWMutex
	capacity int
	devices  map[string]*deviceBuffers
}

// NewHub 创建缓冲集线器，capacity 为单通道样本容量
func NewHub(capacity int) *Hub {
	return &Hub{
		capacity: capacity,
		devices:  make(map[string]*deviceBuffers),
	}
}

func (h *Hub) buffers(deviceID string) *deviceBuffers {
	h.mu.RLock()
	d, ok := h.devices[deviceID]
	h.mu.RUnlock()
	if ok {
		return d
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if d, ok = h.devices[deviceID]; ok {
		return d
	}
	d = &deviceBuffers{
		face:   NewRingBuffer(h.capacity),
		finger: NewRingBuffer(h.capacity),
	}
	h.devices[deviceID] = d
	return d
}

// Append 将一个帧批次追加到设备缓冲
// 未知通道名的批次被忽略
func (h *Hub) Append(batch *models.FrameBatch) {
	d := h.buffers(batch.DeviceID)

	switch batch.Channel {
	case "face":
		d.face.Append(batch.Samples...)
	case "finger":
		d.finger.Append(batch.Samples...)
	default:
		return
	}

	aux := batch.Aux
	d.aux.Store(&aux)
}

// DeviceIDs 返回当前活跃设备列表
func (h *Hub) DeviceIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.devices))
	for id := range h.devices {
		ids = append(ids, id)
	}
	return ids
}

// Snapshot 返回设备双通道快照与最近辅助指标
func (h *Hub) Snapshot(deviceID string) (face, finger models.SampleStream, aux models.AuxMetrics) {
	h.mu.RLock()
	d, ok := h.devices[deviceID]
	h.mu.RUnlock()
	if !ok {
		return nil, nil, models.AuxMetrics{}
	}

	face = d.face.Snapshot()
	finger = d.finger.Snapshot()
	if p := d.aux.Load(); p != nil {
		aux = *p
	}
	return face, finger, aux
}
