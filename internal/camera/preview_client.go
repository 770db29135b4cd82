package camera

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// previewResponse 设备端预览服务响应
type previewResponse struct {
	Status int    `json:"status"`
	Msg    string `json:"msg"`
}

// HTTPPreviewPlugin 通过设备端 HTTP 服务控制平台相机预览
type HTTPPreviewPlugin struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewHTTPPreviewPlugin 创建预览插件客户端
func NewHTTPPreviewPlugin(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPPreviewPlugin {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(1).
		SetRetryWaitTime(200 * time.Millisecond).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &HTTPPreviewPlugin{
		httpClient: client,
		logger:     logger,
	}
}

// Start POST /camera-preview/start
func (p *HTTPPreviewPlugin) Start(ctx context.Context, opts PreviewOptions) error {
	return p.call(ctx, "/camera-preview/start", opts)
}

// Stop POST /camera-preview/stop
func (p *HTTPPreviewPlugin) Stop(ctx context.Context) error {
	return p.call(ctx, "/camera-preview/stop", struct{}{})
}

func (p *HTTPPreviewPlugin) call(ctx context.Context, path string, body any) error {
	var result previewResponse
	resp, err := p.httpClient.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		SetError(&result).
		Post(path)
	if err != nil {
		return fmt.Errorf("camera preview request %s failed: %w", path, err)
	}

	p.logger.Debug("Camera preview call",
		zap.String("path", path),
		zap.Int("http_status", resp.StatusCode()),
		zap.String("msg", result.Msg),
	)

	switch resp.StatusCode() {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusForbidden, http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrPermissionDenied, result.Msg)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNoDevice, result.Msg)
	default:
		return fmt.Errorf("camera preview %s returned %d: %s", path, resp.StatusCode(), result.Msg)
	}
}
