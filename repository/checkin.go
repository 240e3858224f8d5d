// Package repository holds the storage access used by the check-in and achievement flows.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/imalive/server/calendar"
	"github.com/imalive/server/models"
)

var (
	// ErrNotFound is returned when a looked up row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique constraint rejected the write.
	ErrDuplicate = errors.New("duplicate record")
)

// CheckinRepository is the storage the check-in flow needs. Implementations must
// report unique violations on (user, day) as ErrDuplicate.
type CheckinRepository interface {
	FindCheckIn(ctx context.Context, userID uint, day calendar.Date) (*models.CheckIn, error)
	CreateCheckIn(ctx context.Context, c *models.CheckIn) error
	CheckInDates(ctx context.Context, userID uint) ([]calendar.Date, error)
	// CheckInsBetween returns the user's check-ins in [from, to], newest first.
	CheckInsBetween(ctx context.Context, userID uint, from, to calendar.Date) ([]models.CheckIn, error)
	CountCheckIns(ctx context.Context, userID uint) (int64, error)

	Achievements(ctx context.Context) ([]models.Achievement, error)
	UnlockedAchievementIDs(ctx context.Context, userID uint) (map[uint]struct{}, error)
	// UnlockAchievement inserts the grant if absent and reports whether a row was created.
	UnlockAchievement(ctx context.Context, userID, achievementID uint, at time.Time) (bool, error)
	UnlockedAchievements(ctx context.Context, userID uint) ([]models.UnlockedAchievement, error)
	LatestAchievement(ctx context.Context, userID uint) (*models.UnlockedAchievement, error)

	// Transaction runs fn against a repository bound to one transaction.
	// A non-nil error from fn rolls everything back.
	Transaction(ctx context.Context, fn func(CheckinRepository) error) error
}

type gormCheckinRepository struct {
	db *gorm.DB
}

// NewCheckinRepository returns a CheckinRepository over db. db must be opened with TranslateError.
func NewCheckinRepository(db *gorm.DB) CheckinRepository {
	return &gormCheckinRepository{db: db}
}

func (r *gormCheckinRepository) FindCheckIn(ctx context.Context, userID uint, day calendar.Date) (*models.CheckIn, error) {
	var c models.CheckIn
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND check_date = ?", userID, day).
		Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find check-in: %w", err)
	}
	return &c, nil
}

func (r *gormCheckinRepository) CreateCheckIn(ctx context.Context, c *models.CheckIn) error {
	err := r.db.WithContext(ctx).Create(c).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("create check-in: %w", err)
	}
	return nil
}

func (r *gormCheckinRepository) CheckInDates(ctx context.Context, userID uint) ([]calendar.Date, error) {
	var rows []models.CheckIn
	err := r.db.WithContext(ctx).Select("check_date").
		Where("user_id = ?", userID).
		Order("check_date DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load check-in dates: %w", err)
	}
	return datesOf(rows), nil
}

func (r *gormCheckinRepository) CheckInsBetween(ctx context.Context, userID uint, from, to calendar.Date) ([]models.CheckIn, error) {
	rows := []models.CheckIn{}
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND check_date >= ? AND check_date <= ?", userID, from, to).
		Order("check_date DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load check-ins: %w", err)
	}
	return rows, nil
}

func datesOf(rows []models.CheckIn) []calendar.Date {
	out := make([]calendar.Date, len(rows))
	for i := range rows {
		out[i] = rows[i].CheckDate
	}
	return out
}

func (r *gormCheckinRepository) CountCheckIns(ctx context.Context, userID uint) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.CheckIn{}).Where("user_id = ?", userID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count check-ins: %w", err)
	}
	return n, nil
}

func (r *gormCheckinRepository) Achievements(ctx context.Context) ([]models.Achievement, error) {
	var defs []models.Achievement
	if err := r.db.WithContext(ctx).Order("required_days ASC").Find(&defs).Error; err != nil {
		return nil, fmt.Errorf("load achievements: %w", err)
	}
	return defs, nil
}

func (r *gormCheckinRepository) UnlockedAchievementIDs(ctx context.Context, userID uint) (map[uint]struct{}, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.UserAchievement{}).
		Where("user_id = ?", userID).
		Pluck("achievement_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("load unlocked achievements: %w", err)
	}
	set := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

func (r *gormCheckinRepository) UnlockAchievement(ctx context.Context, userID, achievementID uint, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "achievement_id"}},
			DoNothing: true,
		}).
		Create(&models.UserAchievement{UserID: userID, AchievementID: achievementID, UnlockedAt: at})
	if res.Error != nil {
		return false, fmt.Errorf("unlock achievement: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *gormCheckinRepository) unlockedQuery(ctx context.Context, userID uint) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("user_achievements AS ua").
		Select("a.id AS tier_id, a.name, a.description, a.icon, ua.unlocked_at").
		Joins("JOIN achievements AS a ON a.id = ua.achievement_id").
		Where("ua.user_id = ?", userID)
}

func (r *gormCheckinRepository) UnlockedAchievements(ctx context.Context, userID uint) ([]models.UnlockedAchievement, error) {
	out := []models.UnlockedAchievement{}
	if err := r.unlockedQuery(ctx, userID).Order("a.required_days ASC").Scan(&out).Error; err != nil {
		return nil, fmt.Errorf("load unlocked achievements: %w", err)
	}
	return out, nil
}

func (r *gormCheckinRepository) LatestAchievement(ctx context.Context, userID uint) (*models.UnlockedAchievement, error) {
	var out []models.UnlockedAchievement
	err := r.unlockedQuery(ctx, userID).
		Order("ua.unlocked_at DESC").Order("a.required_days DESC").
		Limit(1).Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("load latest achievement: %w", err)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return &out[0], nil
}

func (r *gormCheckinRepository) Transaction(ctx context.Context, fn func(CheckinRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormCheckinRepository{db: tx})
	})
}
