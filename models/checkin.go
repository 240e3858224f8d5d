package models

import (
	"time"

	"github.com/imalive/server/calendar"
)

// MaxMoodLength bounds the mood tag, in runes.
const MaxMoodLength = 20

// CheckIn is one user's presence record for one calendar day.
// The (user_id, check_date) unique index is the authoritative one-per-day guard.
type CheckIn struct {
	ID        uint          `gorm:"primaryKey" json:"id"`
	UserID    uint          `gorm:"not null;uniqueIndex:idx_checkin_user_date,priority:1" json:"user_id"`
	CheckDate calendar.Date `gorm:"not null;uniqueIndex:idx_checkin_user_date,priority:2;index" json:"check_date"`
	Mood      string        `gorm:"size:20" json:"mood"`
	CheckTime time.Time     `gorm:"not null" json:"check_time"`
}

// Achievement is a static milestone tier, unlocked when a streak first equals RequiredDays.
type Achievement struct {
	ID           uint   `gorm:"primaryKey" json:"tier_id"`
	Name         string `gorm:"size:50;not null" json:"name"`
	Description  string `gorm:"size:255" json:"description"`
	RequiredDays int    `gorm:"not null;uniqueIndex" json:"required_consecutive_days"`
	Icon         string `gorm:"size:16" json:"icon"`
}

// UserAchievement records that a user holds a tier. At most one row per (user, tier).
type UserAchievement struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UserID        uint      `gorm:"not null;uniqueIndex:idx_user_achievement,priority:1" json:"user_id"`
	AchievementID uint      `gorm:"not null;uniqueIndex:idx_user_achievement,priority:2" json:"tier_id"`
	UnlockedAt    time.Time `gorm:"not null" json:"unlocked_at"`
}

// UnlockedAchievement is the read view joining a grant with its definition.
type UnlockedAchievement struct {
	TierID      uint      `json:"tier_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Icon        string    `json:"icon"`
	UnlockedAt  time.Time `json:"unlocked_at"`
}

// DefaultAchievements is the seeded tier table.
func DefaultAchievements() []Achievement {
	return []Achievement{
		{Name: "新手上路", Description: "完成第一次打卡", RequiredDays: 1, Icon: "🎯"},
		{Name: "坚持一周", Description: "连续打卡7天", RequiredDays: 7, Icon: "📅"},
		{Name: "月度达人", Description: "连续打卡30天", RequiredDays: 30, Icon: "🏆"},
		{Name: "季度英雄", Description: "连续打卡90天", RequiredDays: 90, Icon: "👑"},
		{Name: "半年勇士", Description: "连续打卡180天", RequiredDays: 180, Icon: "⭐"},
		{Name: "年度传奇", Description: "连续打卡365天", RequiredDays: 365, Icon: "💎"},
		{Name: "不朽之魂", Description: "连续打卡1000天", RequiredDays: 1000, Icon: "🔥"},
	}
}
