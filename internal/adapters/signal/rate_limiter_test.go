package signal_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	ws "github.com/okonek/matchd/internal/adapters/signal"
)

func TestJoinRateLimiter(t *testing.T) {
	rl := ws.NewJoinRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("A"), "attempt %d should pass", i+1)
	}
	assert.False(t, rl.Allow("A"), "fourth attempt inside the window is blocked")
	assert.True(t, rl.Allow("B"), "sessions are limited independently")

	rl.Forget("A")
	assert.True(t, rl.Allow("A"), "history is gone after Forget")
}

func TestJoinRateLimiterWindowSlides(t *testing.T) {
	rl := ws.NewJoinRateLimiter(1, 10*time.Millisecond)

	assert.True(t, rl.Allow("A"))
	assert.False(t, rl.Allow("A"))
	time.Sleep(20 * time.Millisecond)
	assert.True(t, rl.Allow("A"), "old attempts age out of the window")
}
