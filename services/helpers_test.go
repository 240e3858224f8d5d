package services

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/imalive/server/calendar"
	"github.com/imalive/server/config"
	"github.com/imalive/server/models"
	"github.com/imalive/server/utils"
)

func init() {
	utils.PasswordCost = bcrypt.MinCost
}

// newTestDB opens a migrated in-memory database on a single connection.
func newTestDB(t *testing.T) *gorm.DB {
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

func createUser(t *testing.T, db *gorm.DB, name, password string) models.User {
	t.Helper()
	hash, err := utils.HashPassword(password)
	require.NoError(t, err)
	u := models.User{Username: name, PasswordHash: hash, Region: "北京"}
	require.NoError(t, db.Create(&u).Error)
	return u
}

func befriend(t *testing.T, db *gorm.DB, a, b uint) {
	t.Helper()
	require.NoError(t, db.Create(&models.Friendship{RequesterID: a, AddresseeID: b, Status: models.FriendshipAccepted}).Error)
}

func seedCheckIns(t *testing.T, db *gorm.DB, userID uint, days ...calendar.Date) {
	t.Helper()
	for _, d := range days {
		require.NoError(t, db.Create(&models.CheckIn{UserID: userID, CheckDate: d, CheckTime: d.Time(time.Local).Add(9 * time.Hour)}).Error)
	}
}

// clockAt returns a clock pinned to noon of day.
func clockAt(day calendar.Date) func() time.Time {
	return func() time.Time { return day.Time(time.Local).Add(12 * time.Hour) }
}

// recordingNotifier keeps every pushed event.
type recordingNotifier struct {
	events []pushed
}

type pushed struct {
	userID uint
	event  string
	data   interface{}
}

func (r *recordingNotifier) Push(userID uint, event string, data interface{}) {
	r.events = append(r.events, pushed{userID, event, data})
}

// useMiniredis points the shared redis client at a throwaway server for the test.
func useMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	utils.SetRedis(rc)
	t.Cleanup(func() {
		utils.SetRedis(nil)
		_ = rc.Close()
	})
	return mr
}
