package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_PingsServer(t *testing.T) {
	mr := miniredis.RunT(t)

	rdb, err := New(context.Background(), Config{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	require.NoError(t, rdb.Set(context.Background(), "block_uid", "x", time.Minute).Err())
	assert.True(t, mr.Exists("block_uid"))
}

func TestNew_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := New(context.Background(), Config{Addr: addr, MaxRetries: -1})
	assert.Error(t, err)
}

func TestConfig_Options(t *testing.T) {
	cfg := Config{Addr: "cache:6379", DB: 2, PoolSize: 7, IdleTimeout: time.Minute}

	opts := cfg.Options()
	assert.Equal(t, "cache:6379", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 7, opts.PoolSize)
	assert.Equal(t, time.Minute, opts.ConnMaxIdleTime)

	asynqOpt := cfg.AsynqOpt()
	assert.Equal(t, "cache:6379", asynqOpt.Addr)
	assert.Equal(t, 2, asynqOpt.DB)
}
