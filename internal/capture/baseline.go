// Package capture 单眼 IOP 采集会话：摄像头采集、停留采样、读数落定
package capture

import (
	"sync"

	"wisefido-iop/internal/models"
)

// Baseline 会话基线：首个读数确定后，后续读数围绕它聚集
type Baseline struct {
	mu    sync.Mutex
	value *int
}

// NewBaseline 创建空基线
func NewBaseline() *Baseline {
	return &Baseline{}
}

// Get 返回当前基线；未设置时 ok=false
func (b *Baseline) Get() (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.value == nil {
		return 0, false
	}
	return *b.value, true
}

// Set 设置基线（超出范围时截断到合法读数区间）
func (b *Baseline) Set(v int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v = clamp(v)
	b.value = &v
}

// Reset 清空基线（保存测量或放弃会话后调用）
func (b *Baseline) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.value = nil
}

func clamp(v int) int {
	return max(models.MinIOP, min(models.MaxIOP, v))
}
