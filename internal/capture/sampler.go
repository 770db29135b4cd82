package capture

import (
	"math/rand"

	"wisefido-iop/internal/models"
)

// BaselineSpread 基线两侧允许的偏移（mmHg）
const BaselineSpread = 4

// IntSource 随机数来源，返回 [0, n)
type IntSource interface {
	IntN(n int) int
}

type globalSource struct{}

func (globalSource) IntN(n int) int { return rand.Intn(n) }

// Sampler 模拟读数生成器
type Sampler struct {
	baseline *Baseline
	src      IntSource
}

// NewSampler 创建采样器；src 为 nil 时使用 math/rand/v2 全局源
func NewSampler(baseline *Baseline, src IntSource) *Sampler {
	if baseline == nil {
		baseline = NewBaseline()
	}
	if src == nil {
		src = globalSource{}
	}
	return &Sampler{baseline: baseline, src: src}
}

// Baseline 采样器使用的基线
func (s *Sampler) Baseline() *Baseline {
	return s.baseline
}

// Bounds 给定基线下的读数区间（闭区间）
func Bounds(baseline int, ok bool) (low, high int) {
	if !ok {
		return models.MinIOP, models.MaxIOP
	}
	b := clamp(baseline)
	return max(models.MinIOP, b-BaselineSpread), min(models.MaxIOP, b+BaselineSpread)
}

// Sample 生成一个读数：无基线时在全范围内取值并作为基线；否则在基线 ±4 内取值
func (s *Sampler) Sample() int {
	s.baseline.mu.Lock()
	defer s.baseline.mu.Unlock()

	var low, high int
	if s.baseline.value == nil {
		low, high = Bounds(0, false)
	} else {
		low, high = Bounds(*s.baseline.value, true)
	}

	v := low + s.src.IntN(high-low+1)
	if s.baseline.value == nil {
		s.baseline.value = &v
	}
	return v
}
