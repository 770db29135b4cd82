package connectivity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"wisefido-iop/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// failingStore 读写均失败
type failingStore struct {
	mu    sync.Mutex
	saves int
}

func (f *failingStore) Load(ctx context.Context) (models.ConnectivityState, error) {
	return models.ConnectivityState{}, errors.New("storage unavailable")
}

func (f *failingStore) Save(ctx context.Context, state models.ConnectivityState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	return errors.New("storage unavailable")
}

func newTestState(t *testing.T, store Store, opts ...Option) *State {
	t.Helper()
	s := NewState(context.Background(), store, zap.NewNop(), opts...)
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

func TestNewState_DefaultsWhenNotPersisted(t *testing.T) {
	s := newTestState(t, NewMemoryStore())

	assert.True(t, s.Connected())
	assert.False(t, s.Busy())
}

func TestNewState_DefaultsWhenLoadFails(t *testing.T) {
	store := &failingStore{}
	s := newTestState(t, store)

	assert.True(t, s.Connected())
	assert.False(t, s.Busy())

	// 写入失败不影响内存状态
	snap := s.Toggle(context.Background())
	assert.False(t, snap.Connected)
	assert.False(t, s.Connected())
	assert.Equal(t, 1, store.saves)
}

func TestNewState_RestoresConnectedButNotBusy(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), models.ConnectivityState{Connected: false, Busy: true}))

	s := newTestState(t, store)
	assert.False(t, s.Connected())
	assert.False(t, s.Busy())

	saved, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, saved.Busy)
}

func TestToggle_ParityProperty(t *testing.T) {
	for _, v0 := range []bool{true, false} {
		for n := 0; n < 7; n++ {
			store := NewMemoryStore()
			require.NoError(t, store.Save(context.Background(), models.ConnectivityState{Connected: v0}))
			s := newTestState(t, store)

			for i := 0; i < n; i++ {
				s.Toggle(context.Background())
			}

			want := v0 != (n%2 == 1)
			assert.Equal(t, want, s.Connected(), "v0=%v n=%d", v0, n)

			saved, err := store.Load(context.Background())
			require.NoError(t, err)
			assert.Equal(t, want, saved.Connected)
		}
	}
}

func TestStartCalibration_ClearsAfterDuration(t *testing.T) {
	s := newTestState(t, NewMemoryStore(), WithCalibrationDuration(20*time.Millisecond))

	assert.True(t, s.StartCalibration(context.Background()))
	assert.True(t, s.Busy())

	// 忙碌中再次校准被忽略
	assert.False(t, s.StartCalibration(context.Background()))

	assert.Eventually(t, func() bool { return !s.Busy() }, time.Second, 5*time.Millisecond)
}

func TestStartCalibration_IgnoredWhenDisconnected(t *testing.T) {
	s := newTestState(t, NewMemoryStore())
	s.Toggle(context.Background())

	assert.False(t, s.StartCalibration(context.Background()))
	assert.False(t, s.Busy())
}

func TestStartCalibration_ThenToggleOffClearsBusy(t *testing.T) {
	s := newTestState(t, NewMemoryStore(), WithCalibrationDuration(time.Minute))

	require.True(t, s.StartCalibration(context.Background()))
	snap := s.Toggle(context.Background())

	assert.False(t, snap.Connected)
	assert.False(t, snap.Busy)
	assert.False(t, s.Busy())
}

func TestClose_ClearsPendingCalibration(t *testing.T) {
	store := NewMemoryStore()
	s := NewState(context.Background(), store, zap.NewNop(), WithCalibrationDuration(time.Minute))

	require.True(t, s.StartCalibration(context.Background()))
	s.Close(context.Background())

	assert.False(t, s.Busy())
	saved, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, saved.Busy)
	assert.True(t, saved.Connected)
}

func TestClose_IgnoresLaterChanges(t *testing.T) {
	store := NewMemoryStore()
	s := NewState(context.Background(), store, zap.NewNop(), WithCalibrationDuration(10*time.Millisecond))
	s.Close(context.Background())
	s.Close(context.Background())

	assert.False(t, s.StartCalibration(context.Background()))
	snap := s.Toggle(context.Background())
	assert.True(t, snap.Connected)
	assert.False(t, s.SetConnected(context.Background(), false, "remote-1"))

	time.Sleep(50 * time.Millisecond)
	assert.False(t, s.Busy())
	assert.True(t, s.Connected())
	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, ErrNotPersisted)
}

func TestFinishCalibration_StaleTimerKeepsNewCalibration(t *testing.T) {
	s := newTestState(t, NewMemoryStore(), WithCalibrationDuration(time.Minute))

	require.True(t, s.StartCalibration(context.Background()))
	s.Toggle(context.Background())
	s.Toggle(context.Background())
	require.True(t, s.StartCalibration(context.Background()))

	// 第一次校准的计时器晚到
	s.finishCalibration(1)
	assert.True(t, s.Busy())

	s.finishCalibration(2)
	assert.False(t, s.Busy())
}

func TestSubscribe_ReceivesBroadcast(t *testing.T) {
	s := newTestState(t, NewMemoryStore())
	a, cancelA := s.Subscribe(4)
	b, cancelB := s.Subscribe(4)
	defer cancelA()
	defer cancelB()

	s.Toggle(context.Background())

	for _, ch := range []<-chan Event{a, b} {
		select {
		case ev := <-ch:
			assert.Equal(t, models.DeviceStatusEvent, ev.Event)
			assert.False(t, ev.Connected)
			assert.Empty(t, ev.Origin)
		case <-time.After(time.Second):
			t.Fatal("no broadcast received")
		}
	}
}

func TestSetConnected_NoChangeNoBroadcast(t *testing.T) {
	s := newTestState(t, NewMemoryStore())
	ch, cancel := s.Subscribe(4)
	defer cancel()

	assert.False(t, s.SetConnected(context.Background(), true, "remote-1"))
	assert.True(t, s.SetConnected(context.Background(), false, "remote-1"))

	ev := <-ch
	assert.False(t, ev.Connected)
	assert.Equal(t, "remote-1", ev.Origin)
	select {
	case extra := <-ch:
		t.Fatalf("unexpected event %+v", extra)
	default:
	}
}
