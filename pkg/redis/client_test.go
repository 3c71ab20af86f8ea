package redis

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	c, err := NewClient(context.Background(), Options{Addr: mr.Addr()}, nil)
	require.NoError(t, err)
	defer c.Close()
	assert.NoError(t, c.Healthy(context.Background()))

	mr.Close()
	assert.Error(t, c.Healthy(context.Background()))
}

func TestNewClient_Unreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	_, err = NewClient(context.Background(), Options{Addr: addr}, nil)
	assert.ErrorContains(t, err, "redis ping")
}
