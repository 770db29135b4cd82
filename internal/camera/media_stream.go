package camera

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

const (
	FacingRear = "environment"
	FacingAny  = ""
)

// Constraints 视频约束（理想值）
type Constraints struct {
	FacingMode string
	Width      int
	Height     int
}

// Stream 进程内媒体流
type Stream interface {
	Size() (width, height int)
	Stop() error
}

// MediaDevices 媒体设备入口
type MediaDevices interface {
	GetUserMedia(ctx context.Context, c Constraints) (Stream, error)
}

// MediaStreamAdapter 进程内媒体流采集：优先后置摄像头，失败时退回任意摄像头
type MediaStreamAdapter struct {
	devices        MediaDevices
	constraints    Constraints
	acquireTimeout time.Duration
	surfaces       *surfaces
	logger         *zap.Logger
}

// NewMediaStreamAdapter 创建媒体流适配器（默认 640x480 后置）
func NewMediaStreamAdapter(devices MediaDevices, acquireTimeout time.Duration, logger *zap.Logger) *MediaStreamAdapter {
	return &MediaStreamAdapter{
		devices: devices,
		constraints: Constraints{
			FacingMode: FacingRear,
			Width:      640,
			Height:     480,
		},
		acquireTimeout: acquireTimeout,
		surfaces:       newSurfaces(logger),
		logger:         logger,
	}
}

func (a *MediaStreamAdapter) Acquire(ctx context.Context, surface string) (*Handle, error) {
	if err := a.surfaces.claim(surface); err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx, a.acquireTimeout)
	defer cancel()

	stream, err := a.devices.GetUserMedia(ctx, a.constraints)
	if errors.Is(err, ErrNoDevice) && a.constraints.FacingMode != FacingAny {
		fallback := a.constraints
		fallback.FacingMode = FacingAny
		a.logger.Debug("Rear camera not found, falling back to any camera", zap.String("surface", surface))
		stream, err = a.devices.GetUserMedia(ctx, fallback)
	}
	if err != nil {
		a.surfaces.unclaim(surface)
		a.logger.Warn("Failed to access camera",
			zap.String("surface", surface),
			zap.Error(err),
		)
		return nil, unavailable(err)
	}

	w, h := stream.Size()
	return a.surfaces.bind(KindMediaStream, surface, w, h, func(context.Context) error {
		return stream.Stop()
	}), nil
}

func (a *MediaStreamAdapter) Release(ctx context.Context, h *Handle) error {
	return a.surfaces.release(ctx, h)
}
