package realtime

import (
	"runtime"
	"sync/atomic"

	"vivopulse-ptt/internal/models"
)

// RingBuffer 固定容量的样本环形缓冲
// 写满后覆盖最旧样本；Snapshot 按时间顺序返回副本。
//
// 单写单读：写入方为 MQTT 消费者，读取方为实时监视器。
// 写路径不加锁、永不阻塞：写入前后各递增一次序号（奇数表示写入进行中），
// 读取方先读序号、复制数据、再校验序号未变，发生并发写则让出调度重试。
type RingBuffer struct {
	seq   atomic.Uint64
	data  []models.Sample
	head  int // 下一个写入位置
	count int
}

// NewRingBuffer 创建环形缓冲
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer{
		data: make([]models.Sample, capacity),
	}
}

// Append 追加一批样本（仅限单一写入方调用）
func (r *RingBuffer) Append(samples ...models.Sample) {
	r.seq.Add(1)
	for _, s := range samples {
		r.data[r.head] = s
		r.head = (r.head + 1) % len(r.data)
		if r.count < len(r.data) {
			r.count++
		}
	}
	r.seq.Add(1)
}

// Len 当前样本数
func (r *RingBuffer) Len() int {
	for {
		v := r.seq.Load()
		if v&1 == 0 {
			n := r.count
			if r.seq.Load() == v {
				return n
			}
		}
		runtime.Gosched()
	}
}

// Snapshot 返回按时间顺序排列的样本副本
func (r *RingBuffer) Snapshot() models.SampleStream {
	for {
		v := r.seq.Load()
		if v&1 != 0 {
			runtime.Gosched()
			continue
		}

		count := r.count
		head := r.head
		out := make(models.SampleStream, count)
		start := head - count
		if start < 0 {
			start += len(r.data)
		}
		for i := 0; i < count; i++ {
			out[i] = r.data[(start+i)%len(r.data)]
		}

		if r.seq.Load() == v {
			return out
		}
		runtime.Gosched()
	}
}

// Reset 清空缓冲（仅限写入方调用）
func (r *RingBuffer) Reset() {
	r.seq.Add(1)
	r.head = 0
	r.count = 0
	r.seq.Add(1)
}
