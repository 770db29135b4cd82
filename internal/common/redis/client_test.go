package redis

import (
	"context"
	"testing"
	"time"

	"wisefido-iop/internal/common/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisClient_AppliesOptions(t *testing.T) {
	mr := miniredis.RunT(t)
	client := NewRedisClient(&config.RedisConfig{
		Addr:        mr.Addr(),
		DB:          2,
		PoolSize:    4,
		DialTimeout: time.Second,
		ReadTimeout: 500 * time.Millisecond,
	})
	defer Close(client)

	opts := client.Options()
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 4, opts.PoolSize)
	assert.Equal(t, time.Second, opts.DialTimeout)
	assert.Equal(t, 500*time.Millisecond, opts.ReadTimeout)
	assert.Equal(t, 500*time.Millisecond, opts.WriteTimeout)

	require.NoError(t, Ping(context.Background(), client, 0))
}

func TestPing_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	client := NewRedisClient(&config.RedisConfig{Addr: addr, DialTimeout: 100 * time.Millisecond})
	defer Close(client)

	err := Ping(context.Background(), client, 200*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), addr)
}
