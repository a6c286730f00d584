package middleware

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionRateLimiter_BurstThenLimit(t *testing.T) {
	rl := NewSessionRateLimiter(10, 5)

	allowed := 0
	for i := 0; i < 20; i++ {
		if rl.Allow("s1") {
			allowed++
		}
	}
	assert.GreaterOrEqual(t, allowed, 5, "burst capacity should be granted")
	assert.Less(t, allowed, 20, "sustained burst should be limited")
}

func TestSessionRateLimiter_SessionsAreIndependent(t *testing.T) {
	rl := NewSessionRateLimiter(10, 1)

	assert.True(t, rl.Allow("s1"))
	assert.False(t, rl.Allow("s1"))
	assert.True(t, rl.Allow("s2"), "another session has its own bucket")
}

func TestSessionRateLimiter_Defaults(t *testing.T) {
	rl := NewSessionRateLimiter(0, 0)
	assert.True(t, rl.Allow("s1"))
}
