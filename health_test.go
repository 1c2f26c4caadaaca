package visionrouter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHealthTracker_Transitions(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	h := NewHealthTracker()
	h.now = func() time.Time { return now }

	assert.Equal(t, HealthHealthy, h.State("gemini"))

	h.RecordFailure("gemini")
	h.RecordFailure("gemini")
	assert.Equal(t, HealthHealthy, h.State("gemini"))

	h.RecordFailure("gemini")
	assert.Equal(t, HealthUnhealthy, h.State("gemini"))
	assert.Equal(t, "unhealthy", h.State("gemini").String())

	now = now.Add(healthCooldown)
	assert.Equal(t, HealthHalfOpen, h.State("gemini"))

	h.RecordFailure("gemini")
	assert.Equal(t, HealthUnhealthy, h.State("gemini"), "failed trial call reopens")

	now = now.Add(healthCooldown)
	h.RecordSuccess("gemini")
	assert.Equal(t, HealthHealthy, h.State("gemini"))
}

func TestHealthTracker_FailuresOutsideWindowExpire(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	h := NewHealthTracker()
	h.now = func() time.Time { return now }

	h.RecordFailure("openai")
	h.RecordFailure("openai")
	now = now.Add(healthFailureWindow + time.Second)
	h.RecordFailure("openai")

	assert.Equal(t, HealthHealthy, h.State("openai"))
}
