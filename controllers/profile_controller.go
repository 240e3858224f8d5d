package controllers

import (
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/imalive/server/middleware"
	"github.com/imalive/server/models"
	"github.com/imalive/server/services"
	"github.com/imalive/server/utils"
)

var reminderTimeRe = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// ProfileController serves the signed-in user's own profile, history and settings.
type ProfileController struct {
	db       *gorm.DB
	checkins *services.CheckinService
	accounts *services.AccountService
}

func NewProfileController(db *gorm.DB, checkins *services.CheckinService, accounts *services.AccountService) *ProfileController {
	return &ProfileController{db: db, checkins: checkins, accounts: accounts}
}

func (p *ProfileController) loadUser(ctx *gin.Context) (*models.User, bool) {
	userID, ok := requireUser(ctx)
	if !ok {
		return nil, false
	}
	var user models.User
	err := p.db.WithContext(ctx.Request.Context()).First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		utils.Error(ctx, http.StatusNotFound, 40401, "user not found")
		return nil, false
	}
	if err != nil {
		dbError(ctx, err)
		return nil, false
	}
	return &user, true
}

// Me returns the user with the achievements unlocked so far, newest first.
func (p *ProfileController) Me(ctx *gin.Context) {
	user, ok := p.loadUser(ctx)
	if !ok {
		return
	}
	unlocked, err := p.checkins.Unlocked(ctx.Request.Context(), user.ID)
	if err != nil {
		serviceError(ctx, err)
		return
	}
	for i, j := 0, len(unlocked)-1; i < j; i, j = i+1, j-1 {
		unlocked[i], unlocked[j] = unlocked[j], unlocked[i]
	}
	resp := userResponse(*user)
	resp["achievements"] = unlocked
	utils.Success(ctx, resp)
}

// Calendar lists one month of check-ins; defaults to the current month.
func (p *ProfileController) Calendar(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	today := p.checkins.Today()
	year, month := today.Year, today.Month
	if v := ctx.Query("year"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1970 || n > 9999 {
			utils.Error(ctx, http.StatusBadRequest, 40005, "invalid year")
			return
		}
		year = n
	}
	if v := ctx.Query("month"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 12 {
			utils.Error(ctx, http.StatusBadRequest, 40005, "invalid month")
			return
		}
		month = time.Month(n)
	}

	rows, err := p.checkins.Calendar(ctx.Request.Context(), userID, year, month)
	if err != nil {
		serviceError(ctx, err)
		return
	}
	utils.Success(ctx, rows)
}

// Stats returns streak and monthly check-in figures.
func (p *ProfileController) Stats(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	st, err := p.checkins.Stats(ctx.Request.Context(), userID)
	if err != nil {
		serviceError(ctx, err)
		return
	}
	utils.Success(ctx, st)
}

// UpdateSettings changes notification, reminder and theme preferences. Omitted fields are kept.
func (p *ProfileController) UpdateSettings(ctx *gin.Context) {
	user, ok := p.loadUser(ctx)
	if !ok {
		return
	}
	var req struct {
		NotificationEnabled *bool   `json:"notification_enabled"`
		DoNotDisturb        *bool   `json:"do_not_disturb"`
		ReminderTime        *string `json:"reminder_time"`
		Theme               *string `json:"theme"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}

	updates := map[string]interface{}{}
	if req.NotificationEnabled != nil {
		updates["notification_enabled"] = *req.NotificationEnabled
	}
	if req.DoNotDisturb != nil {
		updates["do_not_disturb"] = *req.DoNotDisturb
	}
	if req.ReminderTime != nil {
		if !reminderTimeRe.MatchString(*req.ReminderTime) {
			utils.Error(ctx, http.StatusBadRequest, 40006, "提醒时间格式应为 HH:MM")
			return
		}
		updates["reminder_time"] = *req.ReminderTime
	}
	if req.Theme != nil {
		if *req.Theme != models.ThemeLight && *req.Theme != models.ThemeDark {
			utils.Error(ctx, http.StatusBadRequest, 40007, "主题只能是 light 或 dark")
			return
		}
		updates["theme"] = *req.Theme
	}
	if len(updates) > 0 {
		db := p.db.WithContext(ctx.Request.Context())
		if err := db.Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
			dbError(ctx, err)
			return
		}
		if err := db.First(user, user.ID).Error; err != nil {
			dbError(ctx, err)
			return
		}
	}
	utils.SuccessMsg(ctx, "设置已保存", userResponse(*user))
}

// UpdateAvatar switches to one of the preset avatars.
func (p *ProfileController) UpdateAvatar(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	var req struct {
		Avatar string `json:"avatar" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}
	if !isPresetAvatar(req.Avatar) {
		utils.Error(ctx, http.StatusBadRequest, 40008, "头像不在可选列表中")
		return
	}
	if err := p.db.WithContext(ctx.Request.Context()).Model(&models.User{}).Where("id = ?", userID).Update("avatar", req.Avatar).Error; err != nil {
		dbError(ctx, err)
		return
	}
	utils.SuccessMsg(ctx, "头像已更新", gin.H{"avatar": req.Avatar})
}

// Avatars lists the preset avatars by category.
func (p *ProfileController) Avatars(ctx *gin.Context) {
	utils.Success(ctx, avatarCategories)
}

// CompleteTutorial marks the onboarding tutorial as done.
func (p *ProfileController) CompleteTutorial(ctx *gin.Context) {
	p.setTutorial(ctx, true)
}

// ResetTutorial shows the onboarding tutorial again.
func (p *ProfileController) ResetTutorial(ctx *gin.Context) {
	p.setTutorial(ctx, false)
}

func (p *ProfileController) setTutorial(ctx *gin.Context, done bool) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	if err := p.db.WithContext(ctx.Request.Context()).Model(&models.User{}).Where("id = ?", userID).Update("tutorial_completed", done).Error; err != nil {
		dbError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"tutorial_completed": done})
}

// DeleteAccount erases the account and everything it owns, then revokes the token.
func (p *ProfileController) DeleteAccount(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	var req struct {
		ConfirmPassword string `json:"confirmPassword" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40009, "请输入密码确认")
		return
	}
	if err := p.accounts.Erase(ctx.Request.Context(), userID, req.ConfirmPassword); err != nil {
		serviceError(ctx, err)
		return
	}

	if token := ctx.GetString(middleware.ContextTokenKey); token != "" {
		claimsVal, _ := ctx.Get(middleware.ContextClaimsKey)
		if claims, ok := claimsVal.(*utils.Claims); ok && claims.ExpiresAt != nil {
			utils.BlacklistToken(token, claims.ExpiresAt.Time)
		}
	}
	utils.SuccessMsg(ctx, "账户已删除", nil)
}
