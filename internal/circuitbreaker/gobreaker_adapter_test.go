package circuitbreaker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"racing-gateway/internal/common/errors"
)

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, Config{MaxFailures: 0, Timeout: time.Second, MaxConcurrentRequests: 1}.Validate())
	assert.Error(t, Config{MaxFailures: 1, Timeout: 0, MaxConcurrentRequests: 1}.Validate())
	assert.Error(t, Config{MaxFailures: 1, Timeout: time.Second, MaxConcurrentRequests: 0}.Validate())
}

func TestGoBreaker_PassesThroughSuccess(t *testing.T) {
	cb := NewGoBreaker("test", DefaultConfig(), nil)

	err := cb.Execute(context.Background(), func() error { return nil })
	assert.NoError(t, err)
	assert.Equal(t, "closed", cb.State())
}

func TestGoBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cb := NewGoBreaker("test", Config{
		MaxFailures:           2,
		Timeout:               time.Minute,
		MaxConcurrentRequests: 1,
	}, nil)

	boom := fmt.Errorf("connection refused")
	for i := 0; i < 2; i++ {
		err := cb.Execute(context.Background(), func() error { return boom })
		require.Error(t, err)
	}

	assert.Equal(t, "open", cb.State())

	// Calls are rejected without invoking the function
	called := false
	err := cb.Execute(context.Background(), func() error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, called)
	assert.True(t, errors.IsType(err, errors.ErrTypeUpstream))
}

func TestGoBreaker_EndpointRejectionsDoNotTrip(t *testing.T) {
	cb := NewGoBreaker("test", Config{
		MaxFailures:           2,
		Timeout:               time.Minute,
		MaxConcurrentRequests: 1,
	}, nil)

	// Auth and rate-limit rejections prove the endpoint is reachable
	for i := 0; i < 5; i++ {
		_ = cb.Execute(context.Background(), func() error {
			return errors.AuthError("bad credentials")
		})
		_ = cb.Execute(context.Background(), func() error {
			return errors.RateLimitError("token endpoint")
		})
	}

	assert.Equal(t, "closed", cb.State())
}

func TestNewGoBreaker_InvalidConfigFallsBack(t *testing.T) {
	cb := NewGoBreaker("test", Config{}, nil)
	require.NotNil(t, cb)
	assert.Equal(t, "closed", cb.State())
}
