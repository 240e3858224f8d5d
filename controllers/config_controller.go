package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/imalive/server/config"
	"github.com/imalive/server/services"
	"github.com/imalive/server/utils"
)

// ConfigController serves configuration the UI needs before login.
type ConfigController struct {
	moods services.MoodValidator
}

func NewConfigController(moods services.MoodValidator) *ConfigController {
	return &ConfigController{moods: moods}
}

// GetNotice returns the announcement bar content.
func (c *ConfigController) GetNotice(ctx *gin.Context) {
	cfg := config.Get()
	utils.Success(ctx, gin.H{
		"title": cfg.NoticeTitle,
		"html":  utils.SanitizeHTML(cfg.NoticeHTML),
	})
}

// GetMoods lists the accepted mood tags. any_tag is true when every well-formed tag is accepted.
func (c *ConfigController) GetMoods(ctx *gin.Context) {
	tags := c.moods.Tags()
	if tags == nil {
		utils.Success(ctx, gin.H{"moods": []string{}, "any_tag": true})
		return
	}
	utils.Success(ctx, gin.H{"moods": tags, "any_tag": false})
}
