package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/imalive/server/calendar"
	"github.com/imalive/server/models"
)

// RequestCounter counts successful API requests per day and route template.
// The route template (not the raw path) keys the counter, so /posts/1 and /posts/2 share a row.
func RequestCounter(db *gorm.DB, loc *time.Location) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		route := c.FullPath()
		if route == "" || route == "/health" {
			return
		}
		status := c.Writer.Status()
		if status < 200 || status >= 400 {
			return
		}

		now := time.Now()
		// Atomic upsert to avoid duplicate key errors under concurrency
		_ = db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "date"}, {Name: "route"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"count": gorm.Expr("request_counts.count + 1"), "updated_at": now}),
		}).Create(&models.RequestCount{Date: calendar.Today(loc, now), Route: c.Request.Method + " " + route, Count: 1}).Error
	}
}
