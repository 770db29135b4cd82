package camera

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// PreviewOptions 原生预览参数
type PreviewOptions struct {
	Parent   string `json:"parent"`   // 挂载点名称
	Position string `json:"position"` // "rear" / "front"
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	ToBack   bool   `json:"toBack"`
}

// PreviewPlugin 平台相机预览插件
type PreviewPlugin interface {
	Start(ctx context.Context, opts PreviewOptions) error
	Stop(ctx context.Context) error
}

// NativePreviewAdapter 原生预览采集：在命名挂载点上启动平台预览
type NativePreviewAdapter struct {
	plugin         PreviewPlugin
	size           int
	acquireTimeout time.Duration
	surfaces       *surfaces
	logger         *zap.Logger
}

// NewNativePreviewAdapter 创建原生预览适配器（192x192 后置）
func NewNativePreviewAdapter(plugin PreviewPlugin, acquireTimeout time.Duration, logger *zap.Logger) *NativePreviewAdapter {
	return &NativePreviewAdapter{
		plugin:         plugin,
		size:           192,
		acquireTimeout: acquireTimeout,
		surfaces:       newSurfaces(logger),
		logger:         logger,
	}
}

func (a *NativePreviewAdapter) Acquire(ctx context.Context, surface string) (*Handle, error) {
	if err := a.surfaces.claim(surface); err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx, a.acquireTimeout)
	defer cancel()

	opts := PreviewOptions{
		Parent:   surface,
		Position: "rear",
		Width:    a.size,
		Height:   a.size,
	}
	if err := a.plugin.Start(ctx, opts); err != nil {
		a.surfaces.unclaim(surface)
		a.logger.Warn("Failed to start camera preview",
			zap.String("surface", surface),
			zap.Error(err),
		)
		return nil, unavailable(err)
	}

	return a.surfaces.bind(KindNativePreview, surface, a.size, a.size, a.plugin.Stop), nil
}

func (a *NativePreviewAdapter) Release(ctx context.Context, h *Handle) error {
	return a.surfaces.release(ctx, h)
}
