package camera

import (
	"context"
	"sync/atomic"
)

// SimulatedDevices 模拟媒体设备（无真实摄像头时的开发/演示环境）
type SimulatedDevices struct {
	denied atomic.Bool
	opened atomic.Int64
}

// NewSimulatedDevices denied=true 时模拟权限被拒绝
func NewSimulatedDevices(denied bool) *SimulatedDevices {
	d := &SimulatedDevices{}
	d.denied.Store(denied)
	return d
}

// SetDenied 运行时切换权限
func (d *SimulatedDevices) SetDenied(denied bool) {
	d.denied.Store(denied)
}

// Open 当前未停止的流数量
func (d *SimulatedDevices) Open() int64 {
	return d.opened.Load()
}

func (d *SimulatedDevices) GetUserMedia(ctx context.Context, c Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.denied.Load() {
		return nil, ErrPermissionDenied
	}

	w, h := c.Width, c.Height
	if w <= 0 || h <= 0 {
		w, h = 640, 480
	}
	d.opened.Add(1)
	return &simulatedStream{devices: d, width: w, height: h}, nil
}

type simulatedStream struct {
	devices *SimulatedDevices
	width   int
	height  int
	stopped atomic.Bool
}

func (s *simulatedStream) Size() (int, int) {
	return s.width, s.height
}

func (s *simulatedStream) Stop() error {
	if s.stopped.CompareAndSwap(false, true) {
		s.devices.opened.Add(-1)
	}
	return nil
}
