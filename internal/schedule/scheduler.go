package schedule

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrStopped 调度器已停止（宿主已销毁）
var ErrStopped = errors.New("scheduler stopped")

// Scheduler 可取消的定时任务集合，生命周期绑定到宿主组件
type Scheduler struct {
	mu      sync.Mutex
	tasks   map[uint64]*Task
	nextID  uint64
	stopped chan struct{}
	logger  *zap.Logger
}

// Task 单个定时任务
type Task struct {
	id    uint64
	timer *time.Timer
	owner *Scheduler
}

// New 创建调度器
func New(logger *zap.Logger) *Scheduler {
	return &Scheduler{
		tasks:   make(map[uint64]*Task),
		stopped: make(chan struct{}),
		logger:  logger,
	}
}

// After 在 d 之后执行 fn；调度器已停止时 fn 不会执行
func (s *Scheduler) After(d time.Duration, fn func()) *Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	t := &Task{id: s.nextID, owner: s}
	if s.isStopped() {
		return t
	}

	t.timer = time.AfterFunc(d, func() {
		if !s.remove(t.id) {
			return // 已取消
		}
		s.run(fn)
	})
	s.tasks[t.id] = t
	return t
}

// Cancel 取消任务；返回 true 表示任务尚未执行
func (t *Task) Cancel() bool {
	if t == nil || t.timer == nil {
		return false
	}
	if !t.owner.remove(t.id) {
		return false
	}
	t.timer.Stop()
	return true
}

// Sleep 等待 d；ctx 取消或调度器停止时提前返回
func (s *Scheduler) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopped:
		return ErrStopped
	}
}

// Pending 尚未执行的任务数
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Stop 取消所有挂起任务并唤醒所有 Sleep（可重复调用）
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isStopped() {
		return
	}
	close(s.stopped)
	for id, t := range s.tasks {
		t.timer.Stop()
		delete(s.tasks, id)
	}
}

func (s *Scheduler) isStopped() bool {
	select {
	case <-s.stopped:
		return true
	default:
		return false
	}
}

func (s *Scheduler) remove(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return false
	}
	delete(s.tasks, id)
	return true
}

func (s *Scheduler) run(fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("Scheduled task panicked", zap.Any("panic", rec))
		}
	}()
	fn()
}
