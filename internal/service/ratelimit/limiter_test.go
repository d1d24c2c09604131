package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowPerKeyBurstAndRefill(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New(2, 2, time.Minute)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"), "burst exhausted")
	assert.True(t, l.Allow("b"), "keys are independent")

	now = now.Add(500 * time.Millisecond)
	assert.True(t, l.Allow("a"), "one token refilled at 2 rps")
	assert.False(t, l.Allow("a"))
}

func TestDisabledLimiterAlwaysAllows(t *testing.T) {
	l := New(0, 0, 0)
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow("x"))
	}
	assert.Equal(t, 0, l.Sweep())
}

func TestSweepForgetsIdleKeys(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New(1, 1, time.Minute)
	l.now = func() time.Time { return now }

	l.Allow("old")
	now = now.Add(2 * time.Minute)
	l.Allow("fresh")

	assert.Equal(t, 1, l.Sweep())
	assert.Equal(t, 1, l.Len())
}
