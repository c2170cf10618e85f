package redis_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-backend/pkg/redis"
)

func TestOptions(t *testing.T) {
	opts, err := redis.Options(redis.Config{URL: "rediss://:secret@cache.internal"})
	require.NoError(t, err)
	assert.Equal(t, "cache.internal:6379", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.NotNil(t, opts.TLSConfig)

	opts, err = redis.Options(redis.Config{URL: "redis://localhost:6380", Password: "override"})
	require.NoError(t, err)
	assert.Equal(t, "localhost:6380", opts.Addr)
	assert.Equal(t, "override", opts.Password)
	assert.Nil(t, opts.TLSConfig)
}

func TestOptions_Invalid(t *testing.T) {
	_, err := redis.Options(redis.Config{})
	assert.Error(t, err)

	_, err = redis.Options(redis.Config{URL: "http://localhost"})
	assert.Error(t, err)
}

func TestHealthCheck_NilClient(t *testing.T) {
	assert.Error(t, redis.HealthCheck(context.Background(), nil))
}
