package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

const apiPrefix = "/iop/api/v1"

// Router 使用标准库 http.ServeMux
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	r := &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
	r.Handle("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, Ok(map[string]string{"status": "ok"}))
	})
	return r
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// method 只允许指定方法
func method(m string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != m {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h(w, req)
	}
}

// RegisterDeviceRoutes 设备状态 / 切换 / 校准 / 事件推送
func (r *Router) RegisterDeviceRoutes(d *DeviceHandler, e *EventsHandler) {
	r.Handle(apiPrefix+"/device/status", method(http.MethodGet, d.GetStatus))
	r.Handle(apiPrefix+"/device/toggle", method(http.MethodPost, d.Toggle))
	r.Handle(apiPrefix+"/device/calibrate", method(http.MethodPost, d.Calibrate))
	if e != nil {
		r.Handle(apiPrefix+"/device/events", method(http.MethodGet, e.ServeWS))
	}
}

// RegisterCaptureRoutes 采集会话
func (r *Router) RegisterCaptureRoutes(c *CaptureHandler) {
	r.Handle(apiPrefix+"/capture/state", method(http.MethodGet, c.GetState))
	r.Handle(apiPrefix+"/capture/cancel", method(http.MethodPost, c.Cancel))
	// capture/{left|right}
	r.Handle(apiPrefix+"/capture/", method(http.MethodPost, func(w http.ResponseWriter, req *http.Request) {
		side := strings.TrimPrefix(req.URL.Path, apiPrefix+"/capture/")
		if side == "" || strings.Contains(side, "/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		c.Start(w, req, side)
	}))
}

// RegisterPatientRoutes 患者目录
func (r *Router) RegisterPatientRoutes(p *PatientHandler) {
	r.Handle(apiPrefix+"/patients", method(http.MethodGet, p.List))
}

// RegisterMeasurementRoutes 保存测量
func (r *Router) RegisterMeasurementRoutes(m *MeasurementHandler) {
	r.Handle(apiPrefix+"/measurements", method(http.MethodPost, m.Save))
}

// RegisterReportRoutes reports/{patientId} 与 reports/{patientId}/export
func (r *Router) RegisterReportRoutes(h *ReportHandler) {
	r.Handle(apiPrefix+"/reports/", method(http.MethodGet, func(w http.ResponseWriter, req *http.Request) {
		rest := strings.TrimPrefix(req.URL.Path, apiPrefix+"/reports/")
		if id, ok := strings.CutSuffix(rest, "/export"); ok {
			if id == "" || strings.Contains(id, "/") {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			h.Export(w, req, id)
			return
		}
		if rest == "" || strings.Contains(rest, "/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.Get(w, req, rest)
	}))
}
