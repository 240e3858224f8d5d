package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/imalive/server/config"
	"github.com/imalive/server/models"
	"github.com/imalive/server/services"
)

func newDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, config.Migrate(db))
	return db
}

func newScheduler(t *testing.T, rc *redis.Client) (*Scheduler, *gorm.DB) {
	t.Helper()
	db := newDB(t)
	cfg := config.AppConfig{ReminderEnabled: true, ReminderCron: "* * * * *", UploadCleanupCron: "*/10 * * * *"}
	reminders := services.NewReminderService(db, services.NewMessageService(db, nil), time.Local, 5*time.Minute)
	uploads := services.NewUploadStore(db, t.TempDir(), "/uploads/covers", 1)
	s := NewScheduler(cfg, reminders, uploads, rc, nil)
	s.now = func() time.Time {
		return time.Date(2024, 3, 1, 9, 2, 0, 0, time.Local)
	}

	require.NoError(t, db.Create(&models.User{Username: "sleepy", PasswordHash: "x", ReminderTime: "09:00"}).Error)
	return s, db
}

func TestRunRemindersWithoutRedis(t *testing.T) {
	s, db := newScheduler(t, nil)
	n, err := s.RunReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var count int64
	require.NoError(t, db.Model(&models.Message{}).Where("message_type = ?", models.MessageReminder).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestRunRemindersSkipsWhenLockHeld(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	s, _ := newScheduler(t, rc)

	// another instance holds the lock
	lock, err := redislock.New(rc).Obtain(context.Background(), reminderLockKey, time.Minute, nil)
	require.NoError(t, err)
	n, err := s.RunReminders(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, lock.Release(context.Background()))
	n, err = s.RunReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, mr.Exists(reminderLockKey), "lock released after the run")
}

func TestRunUploadCleanup(t *testing.T) {
	s, db := newScheduler(t, nil)
	past := s.now().Add(-time.Minute)
	require.NoError(t, db.Create(&models.UploadedFile{OwnerID: 1, FilePath: "", URL: "/uploads/covers/gone.png", ExpireAt: &past}).Error)

	n, err := s.RunUploadCleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s, _ := newScheduler(t, nil)
	s.cfg.ReminderCron = "not a cron"
	assert.Error(t, s.Start())

	s, _ = newScheduler(t, nil)
	require.NoError(t, s.Start())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
