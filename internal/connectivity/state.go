package connectivity

import (
	"context"
	"errors"
	"sync"
	"time"

	"wisefido-iop/internal/broadcast"
	"wisefido-iop/internal/models"
	"wisefido-iop/internal/schedule"

	"go.uber.org/zap"
)

const (
	// DefaultCalibrationDuration 校准忙碌时长
	DefaultCalibrationDuration = 2000 * time.Millisecond

	persistTimeout = 2 * time.Second
)

// Event 设备状态变更广播
type Event struct {
	Event     string    `json:"event"`
	Connected bool      `json:"connected"`
	Busy      bool      `json:"busy"`
	Origin    string    `json:"origin,omitempty"` // 非空表示来自其他进程
	At        time.Time `json:"at"`
}

// State 进程级设备连接状态（唯一实例，注入到所有使用方）
type State struct {
	writeMu sync.Mutex // 串行化 变更→持久化→广播
	mu      sync.RWMutex

	connected bool
	busy      bool
	closed    bool

	store         Store
	hub           *broadcast.Hub[Event]
	sched         *schedule.Scheduler
	calibTask     *schedule.Task
	calibGen      uint64 // 每次开始校准递增，过期计时器据此忽略
	calibDuration time.Duration
	logger        *zap.Logger
}

// Option State 可选项
type Option func(*State)

// WithCalibrationDuration 设置校准忙碌时长
func WithCalibrationDuration(d time.Duration) Option {
	return func(s *State) {
		if d > 0 {
			s.calibDuration = d
		}
	}
}

// NewState 从存储恢复状态；读取失败时默认 connected=true, busy=false
func NewState(ctx context.Context, store Store, logger *zap.Logger, opts ...Option) *State {
	s := &State{
		connected:     true,
		store:         store,
		hub:           broadcast.NewHub[Event](),
		sched:         schedule.New(logger),
		calibDuration: DefaultCalibrationDuration,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	saved, err := store.Load(ctx)
	switch {
	case err == nil:
		s.connected = saved.Connected
		if saved.Busy {
			// 上次校准未正常结束，计时器已不存在，不能恢复为 busy
			s.persist(ctx, s.Snapshot())
		}
	case errors.Is(err, ErrNotPersisted):
		logger.Debug("No persisted connectivity state, using defaults")
	default:
		logger.Warn("Failed to load connectivity state, using defaults", zap.Error(err))
	}

	return s
}

// Connected 设备是否可达
func (s *State) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// Busy 是否正在校准
func (s *State) Busy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.busy
}

// Snapshot 当前状态
func (s *State) Snapshot() models.ConnectivityState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.ConnectivityState{Connected: s.connected, Busy: s.busy}
}

// Toggle 切换连接状态；断开时强制结束校准
func (s *State) Toggle(ctx context.Context) models.ConnectivityState {
	snap, changed := s.mutate(ctx, "", func() bool {
		s.connected = !s.connected
		if !s.connected {
			s.stopCalibrationLocked()
		}
		return true
	})

	if changed {
		s.logger.Info("Device connectivity toggled",
			zap.Bool("connected", snap.Connected),
		)
	}
	return snap
}

// SetConnected 应用来自其他进程的状态；值未变化时不广播
func (s *State) SetConnected(ctx context.Context, connected bool, origin string) bool {
	_, changed := s.mutate(ctx, origin, func() bool {
		if s.connected == connected {
			return false
		}
		s.connected = connected
		if !connected {
			s.stopCalibrationLocked()
		}
		return true
	})
	return changed
}

// StartCalibration 开始校准；未连接或已在校准时忽略
func (s *State) StartCalibration(ctx context.Context) bool {
	_, started := s.mutate(ctx, "", func() bool {
		if !s.connected || s.busy {
			return false
		}
		s.busy = true
		s.calibGen++
		gen := s.calibGen
		s.calibTask = s.sched.After(s.calibDuration, func() { s.finishCalibration(gen) })
		return true
	})

	if started {
		s.logger.Info("Device calibration started", zap.Duration("duration", s.calibDuration))
	}
	return started
}

// finishCalibration 仅结束第 gen 次校准；之后已重新开始的校准不受影响
func (s *State) finishCalibration(gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	_, finished := s.mutate(ctx, "", func() bool {
		if !s.busy || s.calibGen != gen {
			return false
		}
		s.busy = false
		s.calibTask = nil
		return true
	})
	if finished {
		s.logger.Debug("Device calibration finished")
	}
}

// stopCalibrationLocked 需持有 mu
func (s *State) stopCalibrationLocked() {
	s.busy = false
	if s.calibTask != nil {
		s.calibTask.Cancel()
		s.calibTask = nil
	}
}

// Subscribe 订阅状态变更
func (s *State) Subscribe(buffer int) (<-chan Event, func()) {
	return s.hub.Subscribe(buffer)
}

// Close 销毁：取消挂起的校准计时并清除 busy；之后的变更均被忽略（可重复调用）
func (s *State) Close(ctx context.Context) {
	s.mutate(ctx, "", func() bool {
		s.closed = true
		if !s.busy {
			return false
		}
		s.stopCalibrationLocked()
		return true
	})
	s.sched.Stop()
	s.hub.Close()
}

func (s *State) mutate(ctx context.Context, origin string, fn func() bool) (models.ConnectivityState, bool) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	changed := false
	if !s.closed {
		changed = fn()
	}
	snap := models.ConnectivityState{Connected: s.connected, Busy: s.busy}
	s.mu.Unlock()

	if !changed {
		return snap, false
	}

	s.persist(ctx, snap)
	s.hub.Publish(Event{
		Event:     models.DeviceStatusEvent,
		Connected: snap.Connected,
		Busy:      snap.Busy,
		Origin:    origin,
		At:        time.Now(),
	})
	return snap, true
}

func (s *State) persist(ctx context.Context, snap models.ConnectivityState) {
	if err := s.store.Save(ctx, snap); err != nil {
		// 持久化失败不影响内存状态
		s.logger.Warn("Failed to persist connectivity state",
			zap.Bool("connected", snap.Connected),
			zap.Bool("busy", snap.Busy),
			zap.Error(err),
		)
	}
}
