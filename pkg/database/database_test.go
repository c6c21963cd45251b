package database

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedis(t *testing.T) {
	miniRedis, err := miniredis.Run()
	require.NoError(t, err)
	defer miniRedis.Close()

	client, err := NewRedis(context.Background(), miniRedis.Addr(), "", 0)
	require.NoError(t, err)
	defer client.Close()

	assert.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	got, err := miniRedis.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestNewRedisWithPassword(t *testing.T) {
	miniRedis, err := miniredis.Run()
	require.NoError(t, err)
	defer miniRedis.Close()
	miniRedis.RequireAuth("secret")

	_, err = NewRedis(context.Background(), miniRedis.Addr(), "wrong", 0)
	assert.Error(t, err)

	client, err := NewRedis(context.Background(), miniRedis.Addr(), "secret", 0)
	require.NoError(t, err)
	client.Close()
}

func TestNewRedisUnreachable(t *testing.T) {
	miniRedis, err := miniredis.Run()
	require.NoError(t, err)
	addr := miniRedis.Addr()
	miniRedis.Close()

	_, err = NewRedis(context.Background(), addr, "", 0)
	assert.ErrorContains(t, err, "failed to connect to Redis")
}
