package camera

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// scriptedDevices 按 facingMode 返回预设结果
type scriptedDevices struct {
	mu       sync.Mutex
	errs     map[string]error
	requests []Constraints
	stops    int
}

func (d *scriptedDevices) GetUserMedia(ctx context.Context, c Constraints) (Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests = append(d.requests, c)
	if err := d.errs[c.FacingMode]; err != nil {
		return nil, err
	}
	return &countingStream{d: d, w: c.Width, h: c.Height}, nil
}

type countingStream struct {
	d    *scriptedDevices
	w, h int
}

func (s *countingStream) Size() (int, int) { return s.w, s.h }

func (s *countingStream) Stop() error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.d.stops++
	return nil
}

func TestMediaStreamAdapter_AcquireRelease(t *testing.T) {
	devices := &scriptedDevices{}
	a := NewMediaStreamAdapter(devices, 0, zap.NewNop())
	ctx := context.Background()

	h, err := a.Acquire(ctx, "camera-view")
	require.NoError(t, err)
	assert.Equal(t, KindMediaStream, h.Kind)
	assert.Equal(t, 640, h.Width)
	assert.Equal(t, 480, h.Height)
	assert.Equal(t, FacingRear, devices.requests[0].FacingMode)

	require.NoError(t, a.Release(ctx, h))
	require.NoError(t, a.Release(ctx, h))
	assert.Equal(t, 1, devices.stops)

	// 释放后可再次采集
	h2, err := a.Acquire(ctx, "camera-view")
	require.NoError(t, err)
	assert.NotEqual(t, h.ID, h2.ID)
}

func TestMediaStreamAdapter_SecondAcquireOnSameSurface(t *testing.T) {
	a := NewMediaStreamAdapter(&scriptedDevices{}, 0, zap.NewNop())
	ctx := context.Background()

	_, err := a.Acquire(ctx, "camera-view")
	require.NoError(t, err)

	_, err = a.Acquire(ctx, "camera-view")
	assert.ErrorIs(t, err, ErrSurfaceBusy)

	_, err = a.Acquire(ctx, "other-view")
	assert.NoError(t, err)
}

func TestMediaStreamAdapter_PermissionDenied(t *testing.T) {
	devices := &scriptedDevices{errs: map[string]error{FacingRear: ErrPermissionDenied}}
	a := NewMediaStreamAdapter(devices, 0, zap.NewNop())

	h, err := a.Acquire(context.Background(), "camera-view")
	assert.Nil(t, h)
	assert.ErrorIs(t, err, ErrCameraUnavailable)
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.Len(t, devices.requests, 1)

	// 失败后 surface 不被占用
	devices.errs = nil
	_, err = a.Acquire(context.Background(), "camera-view")
	assert.NoError(t, err)
}

func TestMediaStreamAdapter_FallsBackToAnyCamera(t *testing.T) {
	devices := &scriptedDevices{errs: map[string]error{FacingRear: ErrNoDevice}}
	a := NewMediaStreamAdapter(devices, 0, zap.NewNop())

	h, err := a.Acquire(context.Background(), "camera-view")
	require.NoError(t, err)
	assert.NotNil(t, h)
	require.Len(t, devices.requests, 2)
	assert.Equal(t, FacingAny, devices.requests[1].FacingMode)
}

func TestMediaStreamAdapter_NoCameraAtAll(t *testing.T) {
	devices := &scriptedDevices{errs: map[string]error{FacingRear: ErrNoDevice, FacingAny: ErrNoDevice}}
	a := NewMediaStreamAdapter(devices, 0, zap.NewNop())

	_, err := a.Acquire(context.Background(), "camera-view")
	assert.True(t, errors.Is(err, ErrCameraUnavailable))
}

func TestRelease_NilAndForeignHandle(t *testing.T) {
	devices := &scriptedDevices{}
	a := NewMediaStreamAdapter(devices, 0, zap.NewNop())
	ctx := context.Background()

	assert.NoError(t, a.Release(ctx, nil))

	h, err := a.Acquire(ctx, "camera-view")
	require.NoError(t, err)

	stale := &Handle{ID: "stale", Surface: "camera-view"}
	assert.NoError(t, a.Release(ctx, stale))
	assert.Equal(t, 0, devices.stops)

	require.NoError(t, a.Release(ctx, h))
	assert.Equal(t, 1, devices.stops)
}

func TestSimulatedDevices(t *testing.T) {
	d := NewSimulatedDevices(false)
	a := NewMediaStreamAdapter(d, 0, zap.NewNop())
	ctx := context.Background()

	h, err := a.Acquire(ctx, "camera-view")
	require.NoError(t, err)
	assert.EqualValues(t, 1, d.Open())
	require.NoError(t, a.Release(ctx, h))
	assert.EqualValues(t, 0, d.Open())

	d.SetDenied(true)
	_, err = a.Acquire(ctx, "camera-view")
	assert.ErrorIs(t, err, ErrCameraUnavailable)
}
