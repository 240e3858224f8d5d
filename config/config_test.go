package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadDefaultsWithoutFile(t *testing.T) {
	c, err := Read(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "3002", c.AppPort)
	assert.Equal(t, "mysql", c.DBDriver)
	assert.Equal(t, "3306", c.DBPort)
	assert.Equal(t, 7*24*time.Hour, c.TokenTTL())
	assert.True(t, c.ReminderEnabled)
	assert.Equal(t, []string{"*"}, c.AllowedOrigins)
	assert.NotEmpty(t, c.MoodTags)
	assert.False(t, c.RedisEnabled())
}

func TestReadFileThenEnvironment(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte(`
AppPort: "9000"
DBDriver: postgres
RedisHost: cache.local
MoodTags: ["🙂", "🙁"]
ReminderEnabled: false
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))

	t.Setenv("APP_PORT", "9100")
	t.Setenv("ADMIN_USERNAMES", " alice , ,bob")

	c, err := Read(dir)
	require.NoError(t, err)

	assert.Equal(t, "9100", c.AppPort, "environment wins over the file")
	assert.Equal(t, "postgres", c.DBDriver)
	assert.Equal(t, "5432", c.DBPort, "port default follows the driver")
	assert.True(t, c.RedisEnabled())
	assert.Equal(t, []string{"🙂", "🙁"}, c.MoodTags)
	assert.Equal(t, []string{"alice", "bob"}, c.AdminUsernames)
	assert.False(t, c.ReminderEnabled)
}

func TestLocation(t *testing.T) {
	assert.Equal(t, time.Local, AppConfig{}.Location())
	assert.Equal(t, time.Local, AppConfig{Timezone: "Not/AZone"}.Location())
	assert.Equal(t, "UTC", AppConfig{Timezone: "UTC"}.Location().String())
}

func TestSetFillsDefaults(t *testing.T) {
	Set(AppConfig{JWTSecret: "s"})
	got := Get()
	assert.Equal(t, "s", got.JWTSecret)
	assert.Equal(t, 120, got.RateLimitPerMinute)
}
