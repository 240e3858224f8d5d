package utils

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/imalive/server/config"
)

// RegisterGuard throttles account creation per client IP. All checks fail open:
// without redis, or when redis errors, registration is allowed.
type RegisterGuard struct {
	cfg config.AppConfig
	now func() time.Time
}

// NewRegisterGuard builds a guard over the shared redis client.
func NewRegisterGuard(cfg config.AppConfig) *RegisterGuard {
	return &RegisterGuard{cfg: cfg, now: time.Now}
}

func regKey(parts ...string) string {
	return "reg:" + strings.Join(parts, ":")
}

func shortCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 500*time.Millisecond)
}

// TryCooldown enforces a short cooldown between attempts per IP. It reports false while cooling down.
func (g *RegisterGuard) TryCooldown(ip string) bool {
	sec := g.cfg.RegisterAttemptCooldownSec
	rc := GetRedis()
	if sec <= 0 || rc == nil {
		return true
	}
	ctx, cancel := shortCtx()
	defer cancel()
	ok, err := rc.SetNX(ctx, regKey("cooldown", ip), "1", time.Duration(sec)*time.Second).Result()
	if err != nil {
		return true
	}
	return ok
}

// UnderDailyLimit reports whether ip may still create an account today.
func (g *RegisterGuard) UnderDailyLimit(ip string) bool {
	limit := g.cfg.RegisterMaxPerIPPerDay
	rc := GetRedis()
	if limit <= 0 || rc == nil {
		return true
	}
	ctx, cancel := shortCtx()
	defer cancel()
	n, err := rc.Get(ctx, g.dayKey(ip)).Int()
	if err == redis.Nil {
		return true
	}
	if err != nil {
		return true
	}
	return n < limit
}

// RecordSuccess counts a created account against today's limit.
func (g *RegisterGuard) RecordSuccess(ip string) {
	rc := GetRedis()
	if rc == nil {
		return
	}
	ctx, cancel := shortCtx()
	defer cancel()
	key := g.dayKey(ip)
	if err := rc.Incr(ctx, key).Err(); err == nil {
		_ = rc.Expire(ctx, key, 24*time.Hour).Err()
	}
}

// RecordFailure counts a failed attempt and bans the IP once the hourly budget is spent.
func (g *RegisterGuard) RecordFailure(ip string) {
	rc := GetRedis()
	if rc == nil {
		return
	}
	ctx, cancel := shortCtx()
	defer cancel()
	key := regKey("failhour", ip, g.now().Format("2006010215"))
	n, err := rc.Incr(ctx, key).Result()
	if err != nil {
		return
	}
	_ = rc.Expire(ctx, key, time.Hour).Err()
	if max := g.cfg.RegisterFailedMaxPerIPPerHour; max > 0 && int(n) >= max {
		minutes := g.cfg.RegisterTempBanMinutes
		if minutes <= 0 {
			minutes = 60
		}
		_ = rc.Set(ctx, regKey("ban", ip), "1", time.Duration(minutes)*time.Minute).Err()
	}
}

// IsBanned checks temporary ban status for IP.
func (g *RegisterGuard) IsBanned(ip string) bool {
	rc := GetRedis()
	if rc == nil {
		return false
	}
	ctx, cancel := shortCtx()
	defer cancel()
	n, err := rc.Exists(ctx, regKey("ban", ip)).Result()
	return err == nil && n > 0
}

func (g *RegisterGuard) dayKey(ip string) string {
	return regKey("succday", ip, g.now().Format("20060102"))
}
