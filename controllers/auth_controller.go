package controllers

import (
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/imalive/server/calendar"
	"github.com/imalive/server/config"
	"github.com/imalive/server/middleware"
	"github.com/imalive/server/models"
	"github.com/imalive/server/utils"
)

// AuthController handles registration, login and logout.
type AuthController struct {
	db    *gorm.DB
	guard *utils.RegisterGuard
}

// NewAuthController creates an AuthController.
func NewAuthController(db *gorm.DB, guard *utils.RegisterGuard) *AuthController {
	return &AuthController{db: db, guard: guard}
}

// Register handles local account registration with bcrypt hashing.
func (a *AuthController) Register(ctx *gin.Context) {
	var req struct {
		Username      string `json:"username"`
		Password      string `json:"password"`
		Birthday      string `json:"birthday"`
		Region        string `json:"region"`
		CaptchaID     string `json:"captcha_id"`
		CaptchaAnswer string `json:"captcha_answer"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if l := utf8.RuneCountInString(req.Username); l < 2 || l > 32 {
		utils.Error(ctx, http.StatusBadRequest, 40002, "用户名长度需为2-32个字符")
		return
	}
	if !validUsername(req.Username) {
		utils.Error(ctx, http.StatusBadRequest, 40002, "用户名仅允许中文、英文、数字及 - _")
		return
	}
	if l := len(req.Password); l < 6 || l > 64 {
		utils.Error(ctx, http.StatusBadRequest, 40002, "密码长度需为6-64位")
		return
	}
	region := utils.PlainText(req.Region)
	if region == "" || utf8.RuneCountInString(region) > 100 {
		utils.Error(ctx, http.StatusBadRequest, 40002, "请选择所在地区")
		return
	}
	var birthday *calendar.Date
	if b := strings.TrimSpace(req.Birthday); b != "" {
		d, err := calendar.Parse(b)
		if err != nil {
			utils.Error(ctx, http.StatusBadRequest, 40002, "生日格式应为 YYYY-MM-DD")
			return
		}
		birthday = &d
	}

	cfg := config.Get()
	if cfg.RegisterCaptchaEnabled && !utils.VerifyCaptcha(strings.TrimSpace(req.CaptchaID), strings.TrimSpace(req.CaptchaAnswer)) {
		utils.Error(ctx, http.StatusBadRequest, 40042, "验证码错误或已过期")
		return
	}

	// Anti-abuse: cooldown, per-IP daily limit, ban check
	ip := ctx.ClientIP()
	if a.guard.IsBanned(ip) {
		utils.Error(ctx, http.StatusTooManyRequests, 42920, "当前 IP 已被临时限制，请稍后再试")
		return
	}
	if !a.guard.TryCooldown(ip) {
		utils.Error(ctx, http.StatusTooManyRequests, 42910, "请求过于频繁，请稍后再试")
		return
	}
	if !a.guard.UnderDailyLimit(ip) {
		utils.Error(ctx, http.StatusTooManyRequests, 42921, "今日注册次数已达上限")
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50001, "failed to hash password")
		return
	}

	user := models.User{
		Username:     req.Username,
		PasswordHash: hash,
		Birthday:     birthday,
		Region:       region,
		Avatar:       randomAvatar(),
		RegisterIP:   ip,
	}
	if err := a.db.WithContext(ctx.Request.Context()).Create(&user).Error; err != nil {
		a.guard.RecordFailure(ip)
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			utils.Error(ctx, http.StatusConflict, 40901, "用户名已存在")
			return
		}
		dbError(ctx, err)
		return
	}
	a.guard.RecordSuccess(ip)

	a.issueToken(ctx, user)
}

// Login verifies user credentials and issues a JWT.
func (a *AuthController) Login(ctx *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40003, "invalid request payload")
		return
	}

	var user models.User
	err := a.db.WithContext(ctx.Request.Context()).Where("username = ?", strings.TrimSpace(req.Username)).Take(&user).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		dbError(ctx, err)
		return
	}
	if err != nil || !utils.CheckPassword(user.PasswordHash, req.Password) {
		utils.Error(ctx, http.StatusUnauthorized, 40106, "用户名或密码错误")
		return
	}

	a.issueToken(ctx, user)
}

func (a *AuthController) issueToken(ctx *gin.Context, user models.User) {
	token, exp, err := utils.GenerateToken(user.ID, user.Username)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50003, "failed to generate token")
		return
	}
	utils.Success(ctx, gin.H{
		"token":      token,
		"expires_at": exp,
		"user":       userResponse(user),
	})
}

// Logout invalidates the token by blacklisting it until expiration.
func (a *AuthController) Logout(ctx *gin.Context) {
	token := ctx.GetString(middleware.ContextTokenKey)
	claimsVal, _ := ctx.Get(middleware.ContextClaimsKey)
	claims, ok := claimsVal.(*utils.Claims)
	if token == "" || !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40105, "invalid token")
		return
	}

	expiresAt := time.Now().Add(config.Get().TokenTTL())
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	utils.BlacklistToken(token, expiresAt)
	utils.SuccessMsg(ctx, "logged out", nil)
}

// Avatar returns the avatar for a username so the login page can preview it.
func (a *AuthController) Avatar(ctx *gin.Context) {
	var user models.User
	err := a.db.WithContext(ctx.Request.Context()).Select("avatar").
		Where("username = ?", strings.TrimSpace(ctx.Param("username"))).Take(&user).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		dbError(ctx, err)
		return
	}
	avatar := user.Avatar
	if avatar == "" {
		avatar = models.DefaultAvatar
	}
	utils.Success(ctx, gin.H{"avatar": avatar})
}

// Captcha returns a fresh captcha id and base64 image (data URI)
func (a *AuthController) Captcha(ctx *gin.Context) {
	id, b64, err := utils.GenerateCaptcha()
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50060, "生成验证码失败")
		return
	}
	utils.Success(ctx, gin.H{"id": id, "image": b64, "enabled": config.Get().RegisterCaptchaEnabled})
}

// Allow Chinese, letters, digits, '-' and '_'
func validUsername(s string) bool {
	for _, r := range s {
		switch {
		case r == '-' || r == '_':
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
		case unicode.Is(unicode.Han, r):
		default:
			return false
		}
	}
	return true
}
