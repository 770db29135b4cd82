package camera

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrCameraUnavailable 权限被拒绝或没有摄像头
	ErrCameraUnavailable = errors.New("camera unavailable")
	// ErrSurfaceBusy 同一画面上已有未释放的采集
	ErrSurfaceBusy = errors.New("surface already has an active acquisition")

	// ErrPermissionDenied / ErrNoDevice 由底层实现返回，对外统一包装为 ErrCameraUnavailable
	ErrPermissionDenied = errors.New("camera permission denied")
	ErrNoDevice         = errors.New("no camera device")
)

// Kind 采集实现类型
type Kind string

const (
	KindMediaStream   Kind = "media-stream"
	KindNativePreview Kind = "native-preview"
)

// Handle 一次采集的句柄
type Handle struct {
	ID         string    `json:"id"`
	Surface    string    `json:"surface"`
	Kind       Kind      `json:"kind"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Adapter 摄像头采集适配器
type Adapter interface {
	// Acquire 在 surface 上开启预览；失败返回 ErrCameraUnavailable 或 ErrSurfaceBusy
	Acquire(ctx context.Context, surface string) (*Handle, error)
	// Release 释放句柄（幂等）
	Release(ctx context.Context, h *Handle) error
}

type binding struct {
	handle  *Handle
	release func(ctx context.Context) error
}

// surfaces 记录每个 surface 上的活跃采集（每个 surface 至多一个）
type surfaces struct {
	mu     sync.Mutex
	active map[string]*binding
	logger *zap.Logger
}

func newSurfaces(logger *zap.Logger) *surfaces {
	return &surfaces{active: make(map[string]*binding), logger: logger}
}

// claim 占用 surface；已被占用返回 ErrSurfaceBusy
func (s *surfaces) claim(surface string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.active[surface]; ok {
		return fmt.Errorf("%w: %s", ErrSurfaceBusy, surface)
	}
	s.active[surface] = nil // 占位，acquire 期间也算占用
	return nil
}

func (s *surfaces) unclaim(surface string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.active[surface]; ok && b == nil {
		delete(s.active, surface)
	}
}

func (s *surfaces) bind(kind Kind, surface string, width, height int, release func(ctx context.Context) error) *Handle {
	h := &Handle{
		ID:         uuid.NewString(),
		Surface:    surface,
		Kind:       kind,
		Width:      width,
		Height:     height,
		AcquiredAt: time.Now(),
	}

	s.mu.Lock()
	s.active[surface] = &binding{handle: h, release: release}
	s.mu.Unlock()

	s.logger.Debug("Camera acquired",
		zap.String("surface", surface),
		zap.String("handle_id", h.ID),
		zap.String("kind", string(kind)),
	)
	return h
}

// release 只释放与句柄匹配的采集；重复释放直接返回
func (s *surfaces) release(ctx context.Context, h *Handle) error {
	if h == nil {
		return nil
	}

	s.mu.Lock()
	b, ok := s.active[h.Surface]
	if !ok || b == nil || b.handle.ID != h.ID {
		s.mu.Unlock()
		return nil
	}
	delete(s.active, h.Surface)
	s.mu.Unlock()

	if err := b.release(ctx); err != nil {
		s.logger.Warn("Camera release reported error",
			zap.String("surface", h.Surface),
			zap.String("handle_id", h.ID),
			zap.Error(err),
		)
		return fmt.Errorf("failed to release camera: %w", err)
	}

	s.logger.Debug("Camera released",
		zap.String("surface", h.Surface),
		zap.String("handle_id", h.ID),
	)
	return nil
}

// unavailable 将底层错误包装为 ErrCameraUnavailable
func unavailable(err error) error {
	if errors.Is(err, ErrCameraUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrCameraUnavailable, err)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
