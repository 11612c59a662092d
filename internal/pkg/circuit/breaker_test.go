package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker("BTCUSDT", 3, time.Hour)

	cb.RecordFailure()
	cb.RecordFailure()
	assert.True(t, cb.Allow())
	assert.Equal(t, Closed, cb.State())

	cb.RecordFailure()
	assert.Equal(t, Open, cb.State())
	assert.False(t, cb.Allow())
}

func TestBreakerProbesAfterCooldown(t *testing.T) {
	cb := NewCircuitBreaker("ETHUSDT", 1, 0)

	cb.RecordFailure()
	// 冷却为 0，下一次 Allow 立即进入探测态。
	assert.True(t, cb.Allow())
	assert.Equal(t, Probing, cb.State())

	cb.RecordSuccess()
	assert.Equal(t, Closed, cb.State())
	assert.True(t, cb.Allow())
}

func TestBreakerProbeFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker("SOLUSDT", 2, 0)

	cb.RecordFailure()
	cb.RecordFailure()
	assert.True(t, cb.Allow())
	assert.Equal(t, Probing, cb.State())

	cb.RecordFailure()
	assert.Equal(t, Open, cb.State())
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker("BTCUSDT", 2, time.Hour)

	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	assert.Equal(t, Closed, cb.State())
	assert.True(t, cb.Allow())
}
