package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/clarity-dx/referral-portal/internal/config"
)

func TestRetryFromConfig(t *testing.T) {
	t.Run("zero values fall back to defaults", func(t *testing.T) {
		rc := retryFromConfig(config.RetryConfig{})
		assert.Equal(t, 3, rc.MaxAttempts)
		assert.Equal(t, 500*time.Millisecond, rc.InitialBackoff)
		assert.Equal(t, 30*time.Second, rc.MaxBackoff)
	})

	t.Run("configured values convert from milliseconds", func(t *testing.T) {
		rc := retryFromConfig(config.RetryConfig{
			MaxAttempts:      5,
			InitialBackoffMs: 100,
			MaxBackoffMs:     2000,
			Multiplier:       1.5,
			JitterFraction:   0.1,
		})
		assert.Equal(t, 5, rc.MaxAttempts)
		assert.Equal(t, 100*time.Millisecond, rc.InitialBackoff)
		assert.Equal(t, 2*time.Second, rc.MaxBackoff)
		assert.Equal(t, 1.5, rc.Multiplier)
		assert.Equal(t, 0.1, rc.JitterFraction)
	})
}
