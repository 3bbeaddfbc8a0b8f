package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCalculateBackoff(t *testing.T) {
	cfg := Config{InitialBackoffMs: 100, MaxBackoffMs: 1000}

	for attempt, base := range []time.Duration{100, 200, 400, 800, 1000, 1000} {
		d := CalculateBackoff(attempt, cfg)
		lo := base * time.Millisecond
		assert.GreaterOrEqual(t, d, lo, "attempt %d", attempt)
		assert.LessOrEqual(t, d, lo+lo/4, "attempt %d", attempt)
	}
}

func TestCalculateRateLimitBackoff(t *testing.T) {
	cfg := Config{InitialBackoffMs: 100, MaxBackoffMs: 10000}

	retryAfter := "3"
	d := CalculateRateLimitBackoff(0, cfg, &retryAfter)
	assert.GreaterOrEqual(t, d, 3*time.Second)
	assert.Less(t, d, 4*time.Second)

	bogus := "soon"
	d = CalculateRateLimitBackoff(2, cfg, &bogus)
	assert.GreaterOrEqual(t, d, 900*time.Millisecond)
	assert.LessOrEqual(t, d, 1125*time.Millisecond)
}

func TestFetchRetryError(t *testing.T) {
	cause := errors.New("connection reset")
	err := &FetchRetryError{URL: "http://x/task", Attempts: 4, LastError: cause}
	assert.Equal(t, "failed to fetch http://x/task after 4 attempts: connection reset", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.True(t, err.Retryable())

	err = &FetchRetryError{URL: "http://x/task", Attempts: 1, LastStatus: 404}
	assert.Contains(t, err.Error(), "(HTTP 404)")
	assert.False(t, err.Retryable())
}

func TestSleepHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))
}

func TestNewLimiter(t *testing.T) {
	l := NewLimiter(Config{RequestsPerSecond: 0})
	assert.True(t, l.Allow())
	assert.True(t, l.Allow())

	l = NewLimiter(Config{RequestsPerSecond: 1})
	assert.True(t, l.Allow())
	assert.False(t, l.Allow())
}

func TestNewLimiterBurst(t *testing.T) {
	l := NewLimiter(Config{RequestsPerSecond: 1, Burst: 3})
	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow(), "token %d", i)
	}
	assert.False(t, l.Allow())
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, Config{MaxRetries: -1}.Validate())
	assert.Error(t, Config{InitialBackoffMs: 500, MaxBackoffMs: 100}.Validate())
	assert.NoError(t, Config{InitialBackoffMs: 500}.Validate())
}
