package httpapi

import (
	"net/http"
	"time"

	"wisefido-iop/internal/capture"
	"wisefido-iop/internal/connectivity"
	"wisefido-iop/internal/models"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsWriteWait  = 5 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsBuffer     = 16
)

// EventMessage 推送给视图的事件
type EventMessage struct {
	Type string `json:"type"` // "device" / "capture"
	Data any    `json:"data"`
}

// EventsHandler 通过 WebSocket 推送设备状态与采集会话变更
type EventsHandler struct {
	state    *connectivity.State
	machine  *capture.Machine
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewEventsHandler 创建事件推送 Handler；machine 可为 nil
func NewEventsHandler(state *connectivity.State, machine *capture.Machine, logger *zap.Logger) *EventsHandler {
	return &EventsHandler{
		state:   state,
		machine: machine,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// ServeWS GET /device/events
func (h *EventsHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	deviceEvents, unsubDevice := h.state.Subscribe(wsBuffer)
	defer unsubDevice()

	var captureEvents <-chan models.SessionSnapshot
	if h.machine != nil {
		ch, unsubCapture := h.machine.Subscribe(wsBuffer)
		defer unsubCapture()
		captureEvents = ch
	}

	snap := h.state.Snapshot()
	initial := EventMessage{Type: "device", Data: connectivity.Event{
		Event:     models.DeviceStatusEvent,
		Connected: snap.Connected,
		Busy:      snap.Busy,
		At:        time.Now(),
	}}
	if err := h.write(conn, initial); err != nil {
		return
	}

	closed := h.readPump(conn)
	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	h.logger.Debug("Events subscriber connected", zap.String("remote", r.RemoteAddr))
	for {
		select {
		case <-closed:
			h.logger.Debug("Events subscriber disconnected", zap.String("remote", r.RemoteAddr))
			return
		case ev, ok := <-deviceEvents:
			if !ok {
				return
			}
			if err := h.write(conn, EventMessage{Type: "device", Data: ev}); err != nil {
				return
			}
		case ev, ok := <-captureEvents:
			if !ok {
				captureEvents = nil
				continue
			}
			if err := h.write(conn, EventMessage{Type: "capture", Data: ev}); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *EventsHandler) write(conn *websocket.Conn, msg EventMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(msg); err != nil {
		h.logger.Debug("WebSocket write failed", zap.Error(err))
		return err
	}
	return nil
}

// readPump 处理控制帧；连接关闭时关闭返回的通道
func (h *EventsHandler) readPump(conn *websocket.Conn) <-chan struct{} {
	closed := make(chan struct{})
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return closed
}
