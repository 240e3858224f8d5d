package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/imalive/server/calendar"
)

const (
	ThemeLight = "light"
	ThemeDark  = "dark"

	DefaultReminderTime = "09:00"
	DefaultAvatar       = "👤"
)

// User is an account. Passwords are stored as bcrypt hashes only.
type User struct {
	ID                  uint           `gorm:"primaryKey" json:"id"`
	Username            string         `gorm:"size:64;not null;uniqueIndex" json:"username"`
	PasswordHash        string         `gorm:"size:255;not null" json:"-"`
	Birthday            *calendar.Date `json:"birthday"`
	Region              string         `gorm:"size:100;index" json:"region"`
	Avatar              string         `gorm:"size:32" json:"avatar"`
	RegisterIP          string         `gorm:"size:45" json:"-"`
	TutorialCompleted   bool           `gorm:"not null;default:false" json:"tutorial_completed"`
	NotificationEnabled bool           `gorm:"not null;default:true" json:"notification_enabled"`
	DoNotDisturb        bool           `gorm:"not null;default:false" json:"do_not_disturb"`
	ReminderTime        string         `gorm:"size:5;not null;default:'09:00'" json:"reminder_time"`
	Theme               string         `gorm:"size:10;not null;default:'light'" json:"theme"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

// BeforeCreate fills the presentation defaults for rows built in code.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.Avatar == "" {
		u.Avatar = DefaultAvatar
	}
	if u.ReminderTime == "" {
		u.ReminderTime = DefaultReminderTime
	}
	if u.Theme == "" {
		u.Theme = ThemeLight
	}
	return nil
}
