package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/imalive/server/config"
	"github.com/imalive/server/controllers"
	"github.com/imalive/server/jobs"
	"github.com/imalive/server/middleware"
	"github.com/imalive/server/realtime"
	"github.com/imalive/server/services"
	"github.com/imalive/server/utils"
)

// UploadURLPrefix is where stored cover images are served from.
const UploadURLPrefix = "/uploads/covers"

// Deps carries everything the HTTP layer needs. Construct once in main.
type Deps struct {
	DB        *gorm.DB
	Checkins  *services.CheckinService
	Accounts  *services.AccountService
	Messages  *services.MessageService
	Ranking   *services.RankingService
	Reminders *services.ReminderService
	Uploads   *services.UploadStore
	Hub       *realtime.Hub
	Scheduler *jobs.Scheduler
	Guard     *utils.RegisterGuard
}

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(d Deps) *gin.Engine {
	cfg := config.Get()
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// access log goes to its own rolling file
	gl := utils.NewRollingFileLogger(cfg, cfg.GinPath)
	r.Use(utils.RequestID())
	r.Use(utils.Ginzap(gl))
	r.Use(utils.RecoveryWithZap(utils.Logger))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", utils.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", utils.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	if cfg.TrafficStatsEnabled {
		r.Use(middleware.RequestCounter(d.DB, cfg.Location()))
	}

	r.Static("/static", "./static")
	r.Static(UploadURLPrefix, cfg.UploadDir)

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})

	authController := controllers.NewAuthController(d.DB, d.Guard)
	checkinController := controllers.NewCheckinController(d.Checkins)
	profileController := controllers.NewProfileController(d.DB, d.Checkins, d.Accounts)
	messageController := controllers.NewMessageController(d.DB, d.Messages, d.Checkins,
		time.Duration(cfg.FriendRemindCooldownMinutes)*time.Minute)
	chatController := controllers.NewChatController(d.DB, d.Messages.Notifier())
	plazaController := controllers.NewPlazaController(d.DB, d.Uploads, d.Messages)
	rankingController := controllers.NewRankingController(d.Ranking)
	reminderController := controllers.NewReminderController(d.Reminders, d.Scheduler)
	statsController := controllers.NewStatsController(d.DB, cfg.Location())
	configController := controllers.NewConfigController(d.Checkins.Moods())
	wsController := controllers.NewWSController(d.Hub, cfg.AllowedOrigins)

	api := r.Group("/api/v1")
	limit := middleware.RateLimitMiddleware(cfg.RateLimitPerMinute)
	auth := middleware.AuthRequired()

	authGroup := api.Group("/auth")
	authGroup.Use(limit)
	authGroup.POST("/register", authController.Register)
	authGroup.POST("/login", authController.Login)
	authGroup.GET("/captcha", authController.Captcha)
	authGroup.GET("/avatar/:username", authController.Avatar)
	authGroup.POST("/logout", auth, authController.Logout)

	// public
	api.GET("/stats", statsController.GetStats)
	api.GET("/config/notice", configController.GetNotice)
	api.GET("/config/moods", configController.GetMoods)
	api.GET("/achievements", checkinController.Definitions)

	// the handshake is long lived, keep it out of the rate limiter
	api.GET("/ws", auth, wsController.Serve)

	protected := api.Group("")
	protected.Use(auth, limit)

	checkin := protected.Group("/checkin")
	checkin.GET("/status", checkinController.Status)
	checkin.POST("", checkinController.CheckIn)
	protected.GET("/achievements/unlocked", checkinController.Unlocked)

	profile := protected.Group("/profile")
	profile.GET("/me", profileController.Me)
	profile.GET("/calendar", profileController.Calendar)
	profile.GET("/stats", profileController.Stats)
	profile.PUT("/settings", profileController.UpdateSettings)
	profile.PUT("/avatar", profileController.UpdateAvatar)
	profile.GET("/avatars", profileController.Avatars)
	profile.POST("/tutorial/complete", profileController.CompleteTutorial)
	profile.POST("/tutorial/reset", profileController.ResetTutorial)
	profile.DELETE("/delete-account", profileController.DeleteAccount)

	protected.GET("/friends", messageController.Friends)
	messages := protected.Group("/messages")
	messages.GET("", messageController.List)
	messages.GET("/unread-count", messageController.UnreadCount)
	messages.PUT("/mark-all-read", messageController.MarkAllRead)
	messages.PUT("/:id/read", messageController.MarkRead)
	messages.POST("/friend-request", messageController.SendFriendRequest)
	messages.POST("/friend-request/:action", messageController.RespondFriendRequest)
	messages.POST("/remind-checkin", messageController.RemindCheckin)
	messages.POST("/batch-remind-friends", messageController.BatchRemindFriends)
	messages.GET("/batch-remind-cooldown", messageController.BatchRemindCooldown)

	chat := protected.Group("/chat")
	chat.GET("/conversations", chatController.Conversations)
	chat.POST("/conversations", chatController.OpenConversation)
	chat.GET("/conversations/:id/messages", chatController.Messages)
	chat.PUT("/conversations/:id/read", chatController.MarkConversationRead)
	chat.POST("/messages", chatController.Send)
	chat.GET("/unread-count", chatController.UnreadCount)
	chat.PUT("/mark-all-read", chatController.MarkAllRead)

	plaza := protected.Group("/plaza")
	plaza.GET("/posts", plazaController.ListPosts)
	plaza.POST("/posts", plazaController.CreatePost)
	plaza.GET("/posts/:id", plazaController.GetPost)
	plaza.DELETE("/posts/:id", plazaController.DeletePost)
	plaza.POST("/posts/:id/like", plazaController.ToggleLike)
	plaza.GET("/posts/:id/comments", plazaController.Comments)
	plaza.POST("/posts/:id/comments", plazaController.AddComment)
	plaza.POST("/posts/:id/share", plazaController.Share)
	plaza.POST("/comments/:id/replies", plazaController.AddReply)
	plaza.POST("/comments/:id/like", plazaController.ToggleCommentLike)
	plaza.POST("/replies/:id/like", plazaController.ToggleReplyLike)

	ranking := protected.Group("/ranking")
	ranking.GET("/friends", rankingController.Friends)
	ranking.GET("/region", rankingController.Region)
	ranking.GET("/national", rankingController.National)

	reminders := protected.Group("/reminders", middleware.AdminRequired())
	reminders.GET("/pending", reminderController.Pending)
	reminders.POST("/check", reminderController.Check)
	reminders.POST("/send", reminderController.Send)

	r.NoRoute(func(ctx *gin.Context) {
		path := ctx.Request.URL.Path
		if strings.HasPrefix(path, "/api/") {
			utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
			return
		}
		// anything else falls back to the SPA entry
		ctx.File("./static/index.html")
	})

	return r
}
