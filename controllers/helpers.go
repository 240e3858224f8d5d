package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/imalive/server/config"
	"github.com/imalive/server/middleware"
	"github.com/imalive/server/models"
	"github.com/imalive/server/services"
	"github.com/imalive/server/utils"
)

func parsePagination(pageStr, sizeStr string, defSize int) (int, int) {
	page := 1
	pageSize := defSize
	if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
		page = p
	}
	if s, err := strconv.Atoi(sizeStr); err == nil && s > 0 && s <= 100 {
		pageSize = s
	}
	return page, pageSize
}

func getUserID(ctx *gin.Context) (uint, bool) {
	value, exists := ctx.Get(middleware.ContextUserIDKey)
	if !exists {
		return 0, false
	}
	id, ok := value.(uint)
	return id, ok && id != 0
}

// requireUser returns the authenticated user id or writes a 401.
func requireUser(ctx *gin.Context) (uint, bool) {
	id, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
	}
	return id, ok
}

func paramID(ctx *gin.Context, name string) (uint, bool) {
	n, err := strconv.ParseUint(strings.TrimSpace(ctx.Param(name)), 10, 64)
	if err != nil || n == 0 {
		utils.Error(ctx, http.StatusBadRequest, 40004, "invalid "+name)
		return 0, false
	}
	return uint(n), true
}

// isAdminUsername checks whether given username is configured as an admin (case-insensitive)
func isAdminUsername(username string) bool {
	uname := strings.TrimSpace(username)
	if uname == "" {
		return false
	}
	for _, u := range config.Get().AdminUsernames {
		if strings.EqualFold(strings.TrimSpace(u), uname) {
			return true
		}
	}
	return false
}

func userResponse(user models.User) gin.H {
	return gin.H{
		"id":                   user.ID,
		"username":             user.Username,
		"birthday":             user.Birthday,
		"region":               user.Region,
		"avatar":               user.Avatar,
		"tutorial_completed":   user.TutorialCompleted,
		"notification_enabled": user.NotificationEnabled,
		"do_not_disturb":       user.DoNotDisturb,
		"reminder_time":        user.ReminderTime,
		"theme":                user.Theme,
		"created_at":           user.CreatedAt,
		"is_admin":             isAdminUsername(user.Username),
	}
}

// publicUser is the slice of a user shown to other users.
type publicUser struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
	Region   string `json:"region,omitempty"`
}

func toPublic(u models.User) publicUser {
	return publicUser{ID: u.ID, Username: u.Username, Avatar: u.Avatar, Region: u.Region}
}

// serviceError maps service sentinels onto the response envelope.
func serviceError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrAlreadyCheckedIn):
		utils.Error(ctx, http.StatusBadRequest, 40030, "今天已经打过卡了")
	case errors.Is(err, services.ErrInvalidMoodTag):
		utils.Error(ctx, http.StatusBadRequest, 40031, "无效的心情标签")
	case errors.Is(err, services.ErrUserNotFound):
		utils.Error(ctx, http.StatusNotFound, 40401, "user not found")
	case errors.Is(err, services.ErrWrongPassword):
		utils.Error(ctx, http.StatusBadRequest, 40010, "密码错误")
	case errors.Is(err, services.ErrNotFriends):
		utils.Error(ctx, http.StatusForbidden, 40302, "只能和好友互动")
	case errors.Is(err, services.ErrStorageUnavailable):
		ctx.Error(err)
		utils.Error(ctx, http.StatusServiceUnavailable, 50330, "服务暂时不可用，请稍后重试")
	default:
		ctx.Error(err)
		utils.Error(ctx, http.StatusInternalServerError, 50000, "internal server error")
	}
}

// dbError logs err on the request and writes the storage-unavailable response.
func dbError(ctx *gin.Context, err error) {
	ctx.Error(err)
	utils.Error(ctx, http.StatusServiceUnavailable, 50330, "服务暂时不可用，请稍后重试")
}
