package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"wisefido-iop/internal/broadcast"
	"wisefido-iop/internal/camera"
	"wisefido-iop/internal/models"
	"wisefido-iop/internal/schedule"

	"go.uber.org/zap"
)

const (
	// DefaultDwell 采集到读数之间的停留时间
	DefaultDwell = 2000 * time.Millisecond
	// DefaultSettle 读数出现后的过渡窗口
	DefaultSettle = 500 * time.Millisecond
	// DefaultSurface 摄像头预览挂载点
	DefaultSurface = "cameraPreview"

	releaseTimeout = 5 * time.Second
)

var (
	// ErrInvalidTransition 设备断开或已有会话进行中
	ErrInvalidTransition = errors.New("invalid capture transition")
	// ErrSessionDiscarded 会话被取消或组件已关闭
	ErrSessionDiscarded = errors.New("capture session discarded")
	// ErrSamplingFailed 采样过程异常
	ErrSamplingFailed = errors.New("sampling failed")
)

// ConnectivityReader 只读连接状态
type ConnectivityReader interface {
	Connected() bool
}

// session 一次进行中的采集（同一时刻至多一个）
type session struct {
	id     uint64
	side   models.EyeSide
	ctx    context.Context
	cancel context.CancelFunc
	handle *camera.Handle
}

// Machine 采集状态机：IDLE → ACQUIRING → SAMPLING → DONE → IDLE
type Machine struct {
	mu sync.Mutex

	conn    ConnectivityReader
	camera  camera.Adapter
	sampler *Sampler
	sched   *schedule.Scheduler
	hub     *broadcast.Hub[models.SessionSnapshot]
	wg      sync.WaitGroup

	surface string
	dwell   time.Duration
	settle  time.Duration

	active   *session
	nextID   uint64
	status   map[models.EyeSide]models.CaptureStatus
	readings map[models.EyeSide]*models.Reading
	errs     map[models.EyeSide]string
	settling map[models.EyeSide]*schedule.Task
	closed   bool

	logger *zap.Logger
}

// MachineOption Machine 可选项
type MachineOption func(*Machine)

// WithDwell 设置停留时间
func WithDwell(d time.Duration) MachineOption {
	return func(m *Machine) {
		if d > 0 {
			m.dwell = d
		}
	}
}

// WithSettle 设置过渡窗口
func WithSettle(d time.Duration) MachineOption {
	return func(m *Machine) {
		if d > 0 {
			m.settle = d
		}
	}
}

// WithSurface 设置预览挂载点
func WithSurface(surface string) MachineOption {
	return func(m *Machine) {
		if surface != "" {
			m.surface = surface
		}
	}
}

// NewMachine 创建采集状态机
func NewMachine(conn ConnectivityReader, cam camera.Adapter, sampler *Sampler, logger *zap.Logger, opts ...MachineOption) *Machine {
	if sampler == nil {
		sampler = NewSampler(nil, nil)
	}
	m := &Machine{
		conn:     conn,
		camera:   cam,
		sampler:  sampler,
		sched:    schedule.New(logger),
		hub:      broadcast.NewHub[models.SessionSnapshot](),
		surface:  DefaultSurface,
		dwell:    DefaultDwell,
		settle:   DefaultSettle,
		status:   make(map[models.EyeSide]models.CaptureStatus),
		readings: make(map[models.EyeSide]*models.Reading),
		errs:     make(map[models.EyeSide]string),
		settling: make(map[models.EyeSide]*schedule.Task),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start 异步开始一次采集；被拒绝时返回 false（无副作用）
func (m *Machine) Start(side models.EyeSide) bool {
	s, err := m.begin(context.Background(), side, true)
	if err != nil {
		return false
	}

	go func() {
		defer m.wg.Done()
		_, _ = m.run(s)
	}()
	return true
}

// Capture 同步执行一次采集并返回读数
func (m *Machine) Capture(ctx context.Context, side models.EyeSide) (*models.Reading, error) {
	s, err := m.begin(ctx, side, false)
	if err != nil {
		return nil, err
	}
	return m.run(s)
}

// Cancel 放弃本次测量（离开采集页面时调用），读数与基线一并清空
func (m *Machine) Cancel() {
	m.mu.Lock()
	s := m.discardLocked()
	m.clearLocked()
	for _, side := range models.EyeSides {
		m.hub.Publish(m.snapshotLocked(side))
	}
	m.mu.Unlock()

	if s != nil {
		m.logger.Info("Capture session cancelled", zap.String("side", string(s.side)))
	}
}

// Close 关闭状态机：取消会话、释放摄像头、停止定时任务（可重复调用）
func (m *Machine) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.discardLocked()
	m.mu.Unlock()

	m.wg.Wait()
	m.sched.Stop()
	m.hub.Close()
}

// Snapshot 单眼会话快照
func (m *Machine) Snapshot(side models.EyeSide) models.SessionSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked(side)
}

// Snapshots 双眼会话快照（右眼在前）
func (m *Machine) Snapshots() []models.SessionSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.SessionSnapshot, 0, len(models.EyeSides))
	for _, side := range models.EyeSides {
		out = append(out, m.snapshotLocked(side))
	}
	return out
}

// Active 是否有进行中的会话
func (m *Machine) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active != nil
}

// Readings 已完成的读数
func (m *Machine) Readings() map[models.EyeSide]*models.Reading {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[models.EyeSide]*models.Reading, len(m.readings))
	for side, r := range m.readings {
		copied := *r
		out[side] = &copied
	}
	return out
}

// Reset 清空读数与基线（测量保存后调用）
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearLocked()
}

// clearLocked 需持有 mu；采样也在 mu 内进行，基线不会被已丢弃的会话重新写入
func (m *Machine) clearLocked() {
	clear(m.readings)
	clear(m.errs)
	m.sampler.Baseline().Reset()
}

// Subscribe 订阅会话快照变更
func (m *Machine) Subscribe(buffer int) (<-chan models.SessionSnapshot, func()) {
	return m.hub.Subscribe(buffer)
}

// begin 创建会话；async 时在 mu 内登记 wg，保证 Close 能等到该会话结束
func (m *Machine) begin(ctx context.Context, side models.EyeSide, async bool) (*session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var reason string
	switch {
	case m.closed:
		reason = "closed"
	case !m.conn.Connected():
		reason = "device disconnected"
	case m.active != nil:
		reason = fmt.Sprintf("%s eye capture in progress", m.active.side)
	}
	if reason != "" {
		m.logger.Debug("Capture start rejected",
			zap.String("side", string(side)),
			zap.String("reason", reason),
		)
		return nil, fmt.Errorf("%w: %s", ErrInvalidTransition, reason)
	}

	m.nextID++
	s := &session{id: m.nextID, side: side}
	s.ctx, s.cancel = context.WithCancel(ctx)
	m.active = s
	if async {
		m.wg.Add(1)
	}
	delete(m.errs, side)
	m.setStatusLocked(side, models.StatusAcquiring)

	m.logger.Info("Capture session started", zap.String("side", string(side)))
	return s, nil
}

func (m *Machine) run(s *session) (reading *models.Reading, err error) {
	defer s.cancel()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", ErrSamplingFailed, rec)
			m.logger.Error("Capture session panicked",
				zap.String("side", string(s.side)),
				zap.Any("panic", rec),
			)
			m.fail(s, err)
			reading = nil
		}
	}()

	h, err := m.camera.Acquire(s.ctx, m.surface)
	if err != nil {
		m.fail(s, err)
		return nil, err
	}
	if !m.attach(s, h) {
		m.release(h)
		return nil, ErrSessionDiscarded
	}

	if err := m.sched.Sleep(s.ctx, m.dwell); err != nil {
		m.fail(s, fmt.Errorf("%w: %w", ErrSessionDiscarded, err))
		return nil, ErrSessionDiscarded
	}

	return m.complete(s)
}

// attach 记录句柄并进入 SAMPLING；会话已被丢弃时返回 false
func (m *Machine) attach(s *session, h *camera.Handle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != s {
		return false
	}
	s.handle = h
	m.setStatusLocked(s.side, models.StatusSampling)
	return true
}

func (m *Machine) complete(s *session) (*models.Reading, error) {
	reading, h, ok := m.record(s)
	if !ok {
		return nil, ErrSessionDiscarded
	}

	m.release(h)

	m.mu.Lock()
	if m.active == s {
		m.active = nil
		m.startSettleLocked(s.side)
		m.setStatusLocked(s.side, models.StatusIdle)
	}
	m.mu.Unlock()

	m.logger.Info("Capture session completed",
		zap.String("side", string(s.side)),
		zap.Int("value_mmhg", reading.ValueMmHg),
	)
	copied := *reading
	return &copied, nil
}

// record 采样并记录读数，进入 DONE；会话已被丢弃时不采样
func (m *Machine) record(s *session) (*models.Reading, *camera.Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != s {
		return nil, nil, false
	}

	reading := &models.Reading{ValueMmHg: m.sampler.Sample(), Timestamp: time.Now()}
	m.readings[s.side] = reading
	m.setStatusLocked(s.side, models.StatusDone)
	h := s.handle
	s.handle = nil
	return reading, h, true
}

// fail 会话失败：回到 IDLE、不记录读数，允许重试
func (m *Machine) fail(s *session, err error) {
	m.mu.Lock()
	h := s.handle
	s.handle = nil
	if m.active == s {
		m.active = nil
		m.errs[s.side] = err.Error()
		m.setStatusLocked(s.side, models.StatusIdle)
	}
	m.mu.Unlock()

	m.release(h)

	if errors.Is(err, ErrSessionDiscarded) {
		return
	}
	m.logger.Warn("Capture session failed",
		zap.String("side", string(s.side)),
		zap.Error(err),
	)
}

// discardLocked 丢弃进行中的会话；句柄在锁外异步释放
func (m *Machine) discardLocked() *session {
	s := m.active
	if s == nil {
		return nil
	}
	m.active = nil
	s.cancel()
	h := s.handle
	s.handle = nil
	m.setStatusLocked(s.side, models.StatusIdle)

	if h != nil {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.release(h)
		}()
	}
	return s
}

func (m *Machine) release(h *camera.Handle) {
	if h == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if err := m.camera.Release(ctx, h); err != nil {
		m.logger.Warn("Failed to release camera", zap.String("handle_id", h.ID), zap.Error(err))
	}
}

func (m *Machine) startSettleLocked(side models.EyeSide) {
	if t := m.settling[side]; t != nil {
		t.Cancel()
	}
	var task *schedule.Task
	task = m.sched.After(m.settle, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.settling[side] != task {
			return
		}
		delete(m.settling, side)
		m.hub.Publish(m.snapshotLocked(side))
	})
	m.settling[side] = task
}

func (m *Machine) setStatusLocked(side models.EyeSide, status models.CaptureStatus) {
	m.status[side] = status
	m.hub.Publish(m.snapshotLocked(side))
}

func (m *Machine) snapshotLocked(side models.EyeSide) models.SessionSnapshot {
	status := m.status[side]
	if status == "" {
		status = models.StatusIdle
	}
	snap := models.SessionSnapshot{
		Side:     side,
		Status:   status,
		Settling: m.settling[side] != nil,
		Error:    m.errs[side],
	}
	if r := m.readings[side]; r != nil {
		copied := *r
		snap.Reading = &copied
	}
	return snap
}
