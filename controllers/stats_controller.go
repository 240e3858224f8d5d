package controllers

import (
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/imalive/server/calendar"
	"github.com/imalive/server/models"
	"github.com/imalive/server/utils"
)

// StatsController provides site statistics.
type StatsController struct {
	db  *gorm.DB
	loc *time.Location
}

// NewStatsController creates a new StatsController instance.
func NewStatsController(db *gorm.DB, loc *time.Location) *StatsController {
	if loc == nil {
		loc = time.Local
	}
	return &StatsController{db: db, loc: loc}
}

// GetStats returns aggregate counts. A failing counter reads as 0 instead of failing the endpoint.
func (s *StatsController) GetStats(ctx *gin.Context) {
	db := s.db.WithContext(ctx.Request.Context())
	today := calendar.Today(s.loc, time.Now())

	var userCount, checkinCount, postCount, requestCount int64
	if err := db.Model(&models.User{}).Count(&userCount).Error; err != nil {
		userCount = 0
	}
	if err := db.Model(&models.CheckIn{}).Where("check_date = ?", today).Count(&checkinCount).Error; err != nil {
		checkinCount = 0
	}
	if err := db.Model(&models.PlazaPost{}).Count(&postCount).Error; err != nil {
		postCount = 0
	}
	if err := db.Model(&models.RequestCount{}).
		Where("date = ?", today).
		Select("COALESCE(SUM(count),0)").
		Scan(&requestCount).Error; err != nil {
		requestCount = 0
	}

	utils.Success(ctx, gin.H{
		"user_count":          userCount,
		"today_checkin_count": checkinCount,
		"post_count":          postCount,
		"today_request_count": requestCount,
	})
}
