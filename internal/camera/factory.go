package camera

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Environment 运行环境，决定采集实现
type Environment string

const (
	EnvMediaStream Environment = "media-stream"
	EnvNative      Environment = "native"
)

// Config 采集配置
type Config struct {
	Environment    Environment
	PreviewURL     string        // 原生预览服务地址
	AcquireTimeout time.Duration // 打开摄像头超时
	SimulateDenied bool          // 模拟设备：拒绝权限
}

// NewAdapter 按运行环境在构造时选定实现
func NewAdapter(cfg Config, logger *zap.Logger) (Adapter, error) {
	switch cfg.Environment {
	case EnvMediaStream, "":
		return NewMediaStreamAdapter(NewSimulatedDevices(cfg.SimulateDenied), cfg.AcquireTimeout, logger), nil
	case EnvNative:
		if cfg.PreviewURL == "" {
			return nil, fmt.Errorf("camera preview url is required for %s environment", EnvNative)
		}
		plugin := NewHTTPPreviewPlugin(cfg.PreviewURL, cfg.AcquireTimeout, logger)
		return NewNativePreviewAdapter(plugin, cfg.AcquireTimeout, logger), nil
	default:
		return nil, fmt.Errorf("unknown camera environment: %q", cfg.Environment)
	}
}
