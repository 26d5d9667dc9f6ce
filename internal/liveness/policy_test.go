package liveness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassifyThresholdBoundaries(t *testing.T) {
	policy := DefaultPolicy()
	now := time.Now().UTC()

	testCases := []struct {
		name     string
		delta    time.Duration
		expected Status
	}{
		{"fresh heartbeat", 0, StatusOnline},
		{"one ms before offline threshold", policy.Offline - time.Millisecond, StatusOnline},
		{"exactly at offline threshold", policy.Offline, StatusOnline},
		{"one ms past offline threshold", policy.Offline + time.Millisecond, StatusOffline},
		{"one ms before critical threshold", policy.Critical - time.Millisecond, StatusOffline},
		{"exactly at critical threshold", policy.Critical, StatusOffline},
		{"one ms past critical threshold", policy.Critical + time.Millisecond, StatusCritical},
		{"hours stale", 6 * time.Hour, StatusCritical},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			lastSeen := now.Add(-tc.delta).UnixMilli()
			assert.Equal(t, tc.expected, policy.Classify(lastSeen, now))
		})
	}
}

func TestClassifyInvalidHeartbeat(t *testing.T) {
	policy := DefaultPolicy()
	now := time.Now().UTC()

	assert.Equal(t, StatusInvalid, policy.Classify(0, now))
	assert.Equal(t, StatusInvalid, policy.Classify(-1, now))
}

func TestDefaultPolicyThresholds(t *testing.T) {
	policy := DefaultPolicy()
	assert.Equal(t, 5*time.Minute, policy.Offline)
	assert.Equal(t, 30*time.Minute, policy.Critical)
}
