package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaultsAndDurations(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://localhost/courier")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("JWT_SIGNING_KEY", "secret")
	t.Setenv("WA_DELAY_MIN_MS", "250")

	c := Load()

	assert.Equal(t, "development", c.AppEnv)
	assert.Equal(t, ":3000", c.APIAddr)
	assert.Equal(t, 3, c.QueueAttempts)
	assert.Equal(t, 5, c.WorkerCount)
	assert.Equal(t, 10, c.RateLimitMax)

	assert.Equal(t, time.Second, c.QueueBackoffDelay())
	assert.Equal(t, time.Second, c.RateLimitWindow())
	assert.Equal(t, 250*time.Millisecond, c.DelayMin())
	assert.Equal(t, 10*time.Second, c.DelayMax())
	assert.Equal(t, time.Second, c.TypingMin())
	assert.Equal(t, 3*time.Second, c.TypingMax())
}
