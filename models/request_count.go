package models

import (
	"time"

	"github.com/imalive/server/calendar"
)

// RequestCount aggregates successful API requests per day and route template.
type RequestCount struct {
	ID        uint          `gorm:"primaryKey" json:"id"`
	Date      calendar.Date `gorm:"uniqueIndex:idx_request_date_route,priority:1;not null" json:"date"`
	Route     string        `gorm:"uniqueIndex:idx_request_date_route,priority:2;size:191;not null" json:"route"`
	Count     int64         `gorm:"not null;default:0" json:"count"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}
