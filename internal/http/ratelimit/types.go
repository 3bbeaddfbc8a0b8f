package ratelimit

import (
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Config holds rate limiting configuration
type Config struct {
	RequestsPerSecond int `json:"requestsPerSecond"`
	Burst             int `json:"burst"`
	MaxRetries        int `json:"maxRetries"`
	InitialBackoffMs  int `json:"initialBackoffMs"`
	MaxBackoffMs      int `json:"maxBackoffMs"`
}

// DefaultConfig returns the default rate limit configuration. The provider
// throttles bursts of bundle downloads, so the bucket holds one token.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 2,
		Burst:             1,
		MaxRetries:        3,
		InitialBackoffMs:  100,
		MaxBackoffMs:      30000,
	}
}

// Validate rejects settings that would make the retry schedule meaningless.
func (c Config) Validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative, got %d", c.MaxRetries)
	}
	if c.InitialBackoffMs < 0 || c.MaxBackoffMs < 0 {
		return fmt.Errorf("backoff must not be negative")
	}
	if c.MaxBackoffMs > 0 && c.MaxBackoffMs < c.InitialBackoffMs {
		return fmt.Errorf("max backoff %dms is below initial backoff %dms", c.MaxBackoffMs, c.InitialBackoffMs)
	}
	return nil
}

// NewLimiter builds a token bucket for the configured request rate. A
// non-positive rate disables limiting.
func NewLimiter(config Config) *rate.Limiter {
	if config.RequestsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := config.Burst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Every(time.Second/time.Duration(config.RequestsPerSecond)), burst)
}
