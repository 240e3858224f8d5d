package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/imalive/server/config"
)

func TestRegisterGuardFailsOpenWithoutRedis(t *testing.T) {
	SetRedis(nil)
	g := NewRegisterGuard(config.AppConfig{RegisterAttemptCooldownSec: 10, RegisterMaxPerIPPerDay: 1})
	assert.True(t, g.TryCooldown("1.2.3.4"))
	assert.True(t, g.TryCooldown("1.2.3.4"))
	g.RecordSuccess("1.2.3.4")
	assert.True(t, g.UnderDailyLimit("1.2.3.4"))
	g.RecordFailure("1.2.3.4")
	assert.False(t, g.IsBanned("1.2.3.4"))
}

func TestRegisterGuardLimits(t *testing.T) {
	mr := withMiniredis(t)
	g := NewRegisterGuard(config.AppConfig{
		RegisterAttemptCooldownSec:    10,
		RegisterMaxPerIPPerDay:        2,
		RegisterFailedMaxPerIPPerHour: 3,
		RegisterTempBanMinutes:        5,
	})
	g.now = func() time.Time { return time.Date(2024, 3, 1, 10, 0, 0, 0, time.Local) }
	ip := "10.0.0.1"

	assert.True(t, g.TryCooldown(ip))
	assert.False(t, g.TryCooldown(ip))
	assert.True(t, g.TryCooldown("10.0.0.2"), "other addresses are not affected")
	mr.FastForward(11 * time.Second)
	assert.True(t, g.TryCooldown(ip))

	assert.True(t, g.UnderDailyLimit(ip))
	g.RecordSuccess(ip)
	assert.True(t, g.UnderDailyLimit(ip))
	g.RecordSuccess(ip)
	assert.False(t, g.UnderDailyLimit(ip))

	g.RecordFailure(ip)
	g.RecordFailure(ip)
	assert.False(t, g.IsBanned(ip))
	g.RecordFailure(ip)
	assert.True(t, g.IsBanned(ip))
	mr.FastForward(6 * time.Minute)
	assert.False(t, g.IsBanned(ip))
}
