package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBlacklistInMemory(t *testing.T) {
	SetRedis(nil)
	BlacklistToken("mem-token", time.Now().Add(time.Hour))
	assert.True(t, IsTokenBlacklisted("mem-token"))
	assert.False(t, IsTokenBlacklisted("other"))

	// already expired tokens are not worth remembering
	BlacklistToken("old-token", time.Now().Add(-time.Second))
	assert.False(t, IsTokenBlacklisted("old-token"))
}

func TestBlacklistInRedis(t *testing.T) {
	mr := withMiniredis(t)
	BlacklistToken("redis-token", time.Now().Add(time.Minute))
	assert.True(t, mr.Exists(blacklistPrefix+"redis-token"))
	assert.True(t, IsTokenBlacklisted("redis-token"))

	mr.FastForward(2 * time.Minute)
	assert.False(t, IsTokenBlacklisted("redis-token"))
}
