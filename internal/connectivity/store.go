package connectivity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"wisefido-iop/internal/models"

	"github.com/go-redis/redis/v8"
)

// ErrNotPersisted 存储中没有连接状态（首次启动）
var ErrNotPersisted = errors.New("connectivity state not persisted")

// Store 连接状态持久化
type Store interface {
	Load(ctx context.Context) (models.ConnectivityState, error)
	Save(ctx context.Context, state models.ConnectivityState) error
}

const (
	DefaultConnectedKey = "iop:device:connected"
	DefaultBusyKey      = "iop:device:busy"
)

// RedisStore 基于 go-redis 的持久化（值为 JSON 布尔）
type RedisStore struct {
	client       *redis.Client
	connectedKey string
	busyKey      string
}

// NewRedisStore 创建 Redis 存储；key 为空时使用默认键
func NewRedisStore(client *redis.Client, connectedKey, busyKey string) *RedisStore {
	if connectedKey == "" {
		connectedKey = DefaultConnectedKey
	}
	if busyKey == "" {
		busyKey = DefaultBusyKey
	}
	return &RedisStore{client: client, connectedKey: connectedKey, busyKey: busyKey}
}

func (r *RedisStore) Load(ctx context.Context) (models.ConnectivityState, error) {
	vals, err := r.client.MGet(ctx, r.connectedKey, r.busyKey).Result()
	if err != nil {
		return models.ConnectivityState{}, fmt.Errorf("failed to load connectivity state: %w", err)
	}
	if vals[0] == nil {
		return models.ConnectivityState{}, ErrNotPersisted
	}

	var state models.ConnectivityState
	if err := decodeBool(vals[0], &state.Connected); err != nil {
		return models.ConnectivityState{}, fmt.Errorf("invalid %s: %w", r.connectedKey, err)
	}
	if vals[1] != nil {
		if err := decodeBool(vals[1], &state.Busy); err != nil {
			return models.ConnectivityState{}, fmt.Errorf("invalid %s: %w", r.busyKey, err)
		}
	}
	return state, nil
}

func (r *RedisStore) Save(ctx context.Context, state models.ConnectivityState) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.connectedKey, encodeBool(state.Connected), 0)
		pipe.Set(ctx, r.busyKey, encodeBool(state.Busy), 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save connectivity state: %w", err)
	}
	return nil
}

func encodeBool(v bool) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func decodeBool(raw interface{}, out *bool) error {
	s, ok := raw.(string)
	if !ok {
		return fmt.Errorf("unexpected value type %T", raw)
	}
	return json.Unmarshal([]byte(s), out)
}

// MemoryStore 内存存储（Redis 未启用时使用）
type MemoryStore struct {
	mu    sync.Mutex
	state *models.ConnectivityState
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(_ context.Context) (models.ConnectivityState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return models.ConnectivityState{}, ErrNotPersisted
	}
	return *m.state, nil
}

func (m *MemoryStore) Save(_ context.Context, state models.ConnectivityState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = &state
	return nil
}
